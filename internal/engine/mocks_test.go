package engine

import (
	"context"
	"errors"

	"github.com/edukit/classsync/internal/backend"
	"github.com/edukit/classsync/internal/domain"
	"github.com/edukit/classsync/internal/store"
)

var errMock = errors.New("mock failure")

type mockBackend struct {
	shouldFailLogin        bool
	shouldFailUpdateUser   bool
	shouldFailUpdateCourse bool
	shouldFailRoomState    bool
	shouldFailRecording    bool

	loginResult backend.LoginResult
	pull        backend.RoomStatePull
	courseAttrs domain.CourseAttrs
	recordID    string
	tokens      backend.Tokens

	userUpdates    []backend.UserUpdate
	courseUpdates  []backend.CourseUpdate
	stoppedRecords []string
}

func (m *mockBackend) Login(ctx context.Context, params backend.EntryParams) (backend.LoginResult, error) {
	if m.shouldFailLogin {
		return backend.LoginResult{}, errMock
	}
	return m.loginResult, nil
}

func (m *mockBackend) RoomState(ctx context.Context) (backend.RoomStatePull, error) {
	if m.shouldFailRoomState {
		return backend.RoomStatePull{}, errMock
	}
	return m.pull, nil
}

func (m *mockBackend) CourseState(ctx context.Context) (domain.CourseAttrs, error) {
	return m.courseAttrs, nil
}

func (m *mockBackend) UpdateCourse(ctx context.Context, update backend.CourseUpdate) error {
	if m.shouldFailUpdateCourse {
		return errMock
	}
	m.courseUpdates = append(m.courseUpdates, update)
	return nil
}

func (m *mockBackend) UpdateUser(ctx context.Context, update backend.UserUpdate) error {
	if m.shouldFailUpdateUser {
		return errMock
	}
	m.userUpdates = append(m.userUpdates, update)
	return nil
}

func (m *mockBackend) StartRecording(ctx context.Context) (string, error) {
	if m.shouldFailRecording {
		return "", errMock
	}
	return m.recordID, nil
}

func (m *mockBackend) StopRecording(ctx context.Context, recordID string) error {
	if m.shouldFailRecording {
		return errMock
	}
	m.stoppedRecords = append(m.stoppedRecords, recordID)
	return nil
}

func (m *mockBackend) RecordingList(ctx context.Context) ([]backend.Record, error) {
	return nil, nil
}

func (m *mockBackend) RefreshToken(ctx context.Context) (backend.Tokens, error) {
	return m.tokens, nil
}

type peerSend struct {
	uid     domain.UID
	payload []byte
}

type mockSignal struct {
	shouldFailLogin  bool
	shouldFailJoin   bool
	shouldFailLogout bool
	shouldFailExit   bool
	shouldFailSend   bool
	shouldFailNotify bool

	loginUID      domain.UID
	joinedChannel string
	logoutCalls   int
	exitCalls     int

	peerSends    []peerSend
	channelSends [][]byte
}

func (m *mockSignal) Login(ctx context.Context, uid domain.UID, token string) error {
	if m.shouldFailLogin {
		return errMock
	}
	m.loginUID = uid
	return nil
}

func (m *mockSignal) Join(ctx context.Context, channel string) error {
	if m.shouldFailJoin {
		return errMock
	}
	m.joinedChannel = channel
	return nil
}

func (m *mockSignal) Logout(ctx context.Context) error {
	m.logoutCalls++
	if m.shouldFailLogout {
		return errMock
	}
	return nil
}

func (m *mockSignal) Exit(ctx context.Context) error {
	m.exitCalls++
	if m.shouldFailExit {
		return errMock
	}
	return nil
}

func (m *mockSignal) SendPeerMessage(ctx context.Context, uid domain.UID, payload []byte) error {
	if m.shouldFailSend {
		return errMock
	}
	m.peerSends = append(m.peerSends, peerSend{uid: uid, payload: payload})
	return nil
}

func (m *mockSignal) NotifyMessage(ctx context.Context, payload []byte) error {
	if m.shouldFailNotify {
		return errMock
	}
	m.channelSends = append(m.channelSends, payload)
	return nil
}

type mockMedia struct {
	shouldFailJoin    bool
	shouldFailPublish bool
	shouldFailExit    bool

	joinedChannel string
	published     bool
	publishCalls  int
	audioMuted    []bool
	videoMuted    []bool
	exitCalls     int
}

func (m *mockMedia) Join(ctx context.Context, channel, token string, uid domain.UID) error {
	if m.shouldFailJoin {
		return errMock
	}
	m.joinedChannel = channel
	return nil
}

func (m *mockMedia) Publish(ctx context.Context) error {
	if m.shouldFailPublish {
		return errMock
	}
	m.publishCalls++
	m.published = true
	return nil
}

func (m *mockMedia) Unpublish(ctx context.Context) error {
	m.published = false
	return nil
}

func (m *mockMedia) MuteLocalAudio(muted bool) error {
	m.audioMuted = append(m.audioMuted, muted)
	return nil
}

func (m *mockMedia) MuteLocalVideo(muted bool) error {
	m.videoMuted = append(m.videoMuted, muted)
	return nil
}

func (m *mockMedia) Exit(ctx context.Context) error {
	m.exitCalls++
	if m.shouldFailExit {
		return errMock
	}
	return nil
}

func teacherRow() domain.Participant {
	return domain.Participant{
		UID: 1, UserID: "u-teacher", Account: "alice",
		Role: domain.RoleTeacher, Video: domain.On, Audio: domain.On, Chat: domain.On,
	}
}

func studentRow() domain.Participant {
	return domain.Participant{
		UID: 5, UserID: "u-student", Account: "bob",
		Role: domain.RoleStudent, Video: domain.On, Audio: domain.On, Chat: domain.On,
	}
}

type testRig struct {
	engine  *Engine
	store   *store.RoomStore
	backend *mockBackend
	signal  *mockSignal
	media   *mockMedia
}

// newRig builds an engine over a seeded two-person classroom with the
// given local role.
func newRig(meRole domain.Role) *testRig {
	st := store.New(nil)
	var me domain.Me
	if meRole == domain.RoleTeacher {
		me = domain.Me{Participant: teacherRow(), ChannelName: "room-1", RTCToken: "rtc", RTMToken: "rtm"}
	} else {
		me = domain.Me{Participant: studentRow(), ChannelName: "room-1", RTCToken: "rtc", RTMToken: "rtm"}
	}
	users := map[string]domain.Participant{
		"1": teacherRow(),
		"5": studentRow(),
	}
	st.SeedSession(me, users, domain.Course{RoomName: "math"})

	be := &mockBackend{}
	sig := &mockSignal{}
	media := &mockMedia{}
	return &testRig{
		engine:  New(st, be, sig, media, nil),
		store:   st,
		backend: be,
		signal:  sig,
		media:   media,
	}
}
