package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/edukit/classsync/internal/domain"
)

// EntryParams identifies the joining user to the room entry endpoint.
type EntryParams struct {
	UserName string      `json:"userName"`
	RoomName string      `json:"roomName"`
	Type     int         `json:"type"`
	Role     domain.Role `json:"role"`
	UUID     string      `json:"uuid,omitempty"`
	Password string      `json:"password,omitempty"`
}

// UserUpdate is a partial per-participant attribute update. Nil fields are
// not sent.
type UserUpdate struct {
	UserID      domain.UserID `json:"-"`
	EnableChat  *int          `json:"enableChat,omitempty"`
	EnableVideo *int          `json:"enableVideo,omitempty"`
	EnableAudio *int          `json:"enableAudio,omitempty"`
	GrantBoard  *int          `json:"grantBoard,omitempty"`
	CoVideo     *int          `json:"coVideo,omitempty"`
}

// CourseUpdate is a partial room-wide update.
type CourseUpdate struct {
	CourseState *int `json:"courseState,omitempty"`
	MuteAllChat *int `json:"muteAllChat,omitempty"`
	LockBoard   *int `json:"lockBoard,omitempty"`
}

// Tokens is the refreshed transport credential set.
type Tokens struct {
	RTCToken    string `json:"rtcToken"`
	RTMToken    string `json:"rtmToken"`
	ScreenToken string `json:"screenToken"`
}

// Record is one entry of the recording list.
type Record struct {
	RecordID  string `json:"recordId"`
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime"`
	URL       string `json:"url"`
	Status    int    `json:"status"`
}

// LoginResult is everything the lifecycle controller needs after entry.
type LoginResult struct {
	Me          domain.Me
	Course      domain.Course
	Users       map[string]domain.Participant
	OnlineUsers int
}

// RoomStatePull is the payload of a full reconciliation pull.
type RoomStatePull struct {
	Users  map[string]domain.Participant
	Me     domain.Participant
	Course domain.CourseAttrs
}

type wireUser struct {
	UID         int64  `json:"uid"`
	UserID      string `json:"userId"`
	UserName    string `json:"userName"`
	Role        int    `json:"role"`
	EnableVideo int    `json:"enableVideo"`
	EnableAudio int    `json:"enableAudio"`
	EnableChat  int    `json:"enableChat"`
	GrantBoard  int    `json:"grantBoard"`
	CoVideo     int    `json:"coVideo"`
	ScreenID    int64  `json:"screenId"`
}

type wireMe struct {
	wireUser
	UserToken   string `json:"userToken"`
	RTCToken    string `json:"rtcToken"`
	RTMToken    string `json:"rtmToken"`
	ScreenToken string `json:"screenToken"`
}

type wireRoom struct {
	RoomID        string     `json:"roomId"`
	RoomName      string     `json:"roomName"`
	ChannelName   string     `json:"channelName"`
	Type          int        `json:"type"`
	CourseState   int        `json:"courseState"`
	MuteAllChat   int        `json:"muteAllChat"`
	IsRecording   int        `json:"isRecording"`
	RecordID      string     `json:"recordId"`
	RecordingTime int64      `json:"recordingTime"`
	BoardID       string     `json:"boardId"`
	BoardToken    string     `json:"boardToken"`
	LockBoard     int        `json:"lockBoard"`
	OnlineUsers   int        `json:"onlineUsers"`
	CoVideoUsers  []wireUser `json:"coVideoUsers"`
}

type roomInfo struct {
	Room wireRoom `json:"room"`
	User wireMe   `json:"user"`
}

func toParticipant(u wireUser) domain.Participant {
	return domain.Participant{
		UID:        domain.UID(u.UID),
		UserID:     domain.UserID(u.UserID),
		Account:    u.UserName,
		Role:       domain.Role(u.Role),
		Video:      domain.ClampFlag(u.EnableVideo),
		Audio:      domain.ClampFlag(u.EnableAudio),
		Chat:       domain.ClampFlag(u.EnableChat),
		GrantBoard: domain.ClampFlag(u.GrantBoard),
		CoVideo:    domain.ClampFlag(u.CoVideo),
		ScreenID:   domain.UID(u.ScreenID),
	}
}

func toUsers(list []wireUser) map[string]domain.Participant {
	users := make(map[string]domain.Participant, len(list))
	for _, u := range list {
		p := toParticipant(u)
		users[p.UID.Key()] = p
	}
	return users
}

// Config resolves the app identity before any room call.
func (c *Client) Config(ctx context.Context) error {
	var data struct {
		AppID         string `json:"appId"`
		Authorization string `json:"authorization"`
	}
	if err := c.fetchJSON(ctx, http.MethodGet, "/v1/config?platform=0&device=0", nil, &data); err != nil {
		return err
	}
	c.appID = data.AppID
	if data.Authorization != "" {
		c.authKey = data.Authorization
	}
	if c.appID == "" {
		return fmt.Errorf("config returned empty app id")
	}
	return nil
}

func (c *Client) entry(ctx context.Context, params EntryParams) (roomID string, err error) {
	var data struct {
		RoomID    string `json:"roomId"`
		UserToken string `json:"userToken"`
	}
	path := fmt.Sprintf("/v1/apps/%s/room/entry", c.appID)
	if err := c.fetchJSON(ctx, http.MethodPost, path, params, &data); err != nil {
		return "", err
	}
	c.roomID = data.RoomID
	c.userToken = data.UserToken
	return data.RoomID, nil
}

func (c *Client) roomInfo(ctx context.Context, roomID string) (roomInfo, error) {
	var data roomInfo
	path := fmt.Sprintf("/v1/apps/%s/room/%s", c.appID, roomID)
	if err := c.fetchJSON(ctx, http.MethodGet, path, nil, &data); err != nil {
		return roomInfo{}, err
	}
	return data, nil
}

// Login runs the backend half of the join sequence: resolve app identity,
// enter the room, fetch the authoritative room snapshot.
func (c *Client) Login(ctx context.Context, params EntryParams) (LoginResult, error) {
	if c.appID == "" {
		if err := c.Config(ctx); err != nil {
			return LoginResult{}, err
		}
	}
	roomID, err := c.entry(ctx, params)
	if err != nil {
		return LoginResult{}, err
	}
	info, err := c.roomInfo(ctx, roomID)
	if err != nil {
		return LoginResult{}, err
	}

	me := domain.Me{
		Participant: toParticipant(info.User.wireUser),
		RTCToken:    info.User.RTCToken,
		RTMToken:    info.User.RTMToken,
		ChannelName: info.Room.ChannelName,
		AppID:       c.appID,
		Password:    params.Password,
	}
	course := domain.Course{
		RoomID:        domain.RoomID(info.Room.RoomID),
		RoomName:      domain.RoomName(info.Room.RoomName),
		BoardID:       info.Room.BoardID,
		BoardToken:    info.Room.BoardToken,
		CourseState:   domain.ClampFlag(info.Room.CourseState),
		MuteChat:      domain.ClampFlag(info.Room.MuteAllChat),
		LockBoard:     domain.ClampFlag(info.Room.LockBoard),
		IsRecording:   info.Room.IsRecording != 0,
		RecordID:      info.Room.RecordID,
		RecordingTime: info.Room.RecordingTime,
	}
	return LoginResult{
		Me:          me,
		Course:      course,
		Users:       toUsers(info.Room.CoVideoUsers),
		OnlineUsers: info.Room.OnlineUsers,
	}, nil
}

// RoomState fetches the authoritative participant set plus the course
// fields a participant-level pull is allowed to overwrite.
func (c *Client) RoomState(ctx context.Context) (RoomStatePull, error) {
	info, err := c.roomInfo(ctx, c.roomID)
	if err != nil {
		return RoomStatePull{}, err
	}
	return RoomStatePull{
		Users: toUsers(info.Room.CoVideoUsers),
		Me:    toParticipant(info.User.wireUser),
		Course: domain.CourseAttrs{
			CourseState: domain.Ptr(domain.ClampFlag(info.Room.CourseState)),
			MuteChat:    domain.Ptr(domain.ClampFlag(info.Room.MuteAllChat)),
			LockBoard:   domain.Ptr(domain.ClampFlag(info.Room.LockBoard)),
			IsRecording: domain.Ptr(info.Room.IsRecording != 0),
			BoardID:     domain.Ptr(info.Room.BoardID),
			BoardToken:  domain.Ptr(info.Room.BoardToken),
		},
	}, nil
}

// CourseState fetches only the room-wide fields, merging nothing personal.
func (c *Client) CourseState(ctx context.Context) (domain.CourseAttrs, error) {
	info, err := c.roomInfo(ctx, c.roomID)
	if err != nil {
		return domain.CourseAttrs{}, err
	}
	return domain.CourseAttrs{
		RoomID:        domain.Ptr(domain.RoomID(info.Room.RoomID)),
		RoomName:      domain.Ptr(domain.RoomName(info.Room.RoomName)),
		CourseState:   domain.Ptr(domain.ClampFlag(info.Room.CourseState)),
		MuteChat:      domain.Ptr(domain.ClampFlag(info.Room.MuteAllChat)),
		LockBoard:     domain.Ptr(domain.ClampFlag(info.Room.LockBoard)),
		IsRecording:   domain.Ptr(info.Room.IsRecording != 0),
		RecordID:      domain.Ptr(info.Room.RecordID),
		RecordingTime: domain.Ptr(info.Room.RecordingTime),
		BoardID:       domain.Ptr(info.Room.BoardID),
		BoardToken:    domain.Ptr(info.Room.BoardToken),
	}, nil
}

// UpdateCourse persists room-wide fields. Teacher only; the backend
// enforces this too.
func (c *Client) UpdateCourse(ctx context.Context, update CourseUpdate) error {
	path := fmt.Sprintf("/v1/apps/%s/room/%s", c.appID, c.roomID)
	return c.fetchJSON(ctx, http.MethodPost, path, update, nil)
}

// UpdateUser persists one participant's capability flags.
func (c *Client) UpdateUser(ctx context.Context, update UserUpdate) error {
	path := fmt.Sprintf("/v1/apps/%s/room/%s/user/%s", c.appID, c.roomID, update.UserID)
	return c.fetchJSON(ctx, http.MethodPost, path, update, nil)
}

func (c *Client) StartRecording(ctx context.Context) (string, error) {
	var data struct {
		RecordID string `json:"recordId"`
	}
	path := fmt.Sprintf("/v1/apps/%s/room/%s/record/start", c.appID, c.roomID)
	if err := c.fetchJSON(ctx, http.MethodPost, path, struct{}{}, &data); err != nil {
		return "", err
	}
	c.recordID = data.RecordID
	return data.RecordID, nil
}

func (c *Client) StopRecording(ctx context.Context, recordID string) error {
	path := fmt.Sprintf("/v1/apps/%s/room/%s/record/%s/stop", c.appID, c.roomID, recordID)
	return c.fetchJSON(ctx, http.MethodPost, path, nil, nil)
}

func (c *Client) RecordingList(ctx context.Context) ([]Record, error) {
	var data struct {
		List []Record `json:"list"`
	}
	path := fmt.Sprintf("/v1/apps/%s/room/%s/records", c.appID, c.roomID)
	if err := c.fetchJSON(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	return data.List, nil
}

func (c *Client) RefreshToken(ctx context.Context) (Tokens, error) {
	var data Tokens
	path := fmt.Sprintf("/v1/apps/%s/room/%s/token/refresh", c.appID, c.roomID)
	if err := c.fetchJSON(ctx, http.MethodPost, path, nil, &data); err != nil {
		return Tokens{}, err
	}
	return data, nil
}
