// Package domain contains classroom entities without logic, just meta-data.
package domain

import (
	"errors"
	"strconv"
)

const MaxAccountLen = 36

var (
	ErrAccountEmpty   = errors.New("account empty")
	ErrAccountTooLong = errors.New("account too long")
)

// UID is the stable numeric identity used on the media/messaging transport.
type UID int64

// UserID is the opaque backend identity of a participant.
type UserID string

func (u UID) Key() string { return strconv.FormatInt(int64(u), 10) }

func ParseUID(s string) (UID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return UID(n), nil
}

type Role int

const (
	RoleNone    Role = 0
	RoleTeacher Role = 1
	RoleStudent Role = 2
)

func (r Role) String() string {
	switch r {
	case RoleTeacher:
		return "teacher"
	case RoleStudent:
		return "student"
	default:
		return "none"
	}
}

// Flag is a boolean-as-int capability flag, always exactly 0 or 1.
type Flag int

const (
	Off Flag = 0
	On  Flag = 1
)

func (f Flag) Enabled() bool { return f == On }

// ClampFlag normalizes any integer to a valid Flag.
func ClampFlag(v int) Flag {
	if v != 0 {
		return On
	}
	return Off
}

// Participant is one user's role/capability record within a room.
type Participant struct {
	UID        UID    `json:"uid"`
	UserID     UserID `json:"userId"`
	Account    string `json:"account"`
	Role       Role   `json:"role"`
	Video      Flag   `json:"video"`
	Audio      Flag   `json:"audio"`
	Chat       Flag   `json:"chat"`
	GrantBoard Flag   `json:"grantBoard"`
	CoVideo    Flag   `json:"coVideo"`
	ScreenID   UID    `json:"screenId,omitempty"`
}

func (p Participant) IsTeacher() bool { return p.Role == RoleTeacher }

// NewParticipant avoids raw literals in adapters and keeps construction obvious.
func NewParticipant(uid UID, account string, role Role) (Participant, error) {
	if account == "" {
		return Participant{}, ErrAccountEmpty
	}
	if len(account) > MaxAccountLen {
		return Participant{}, ErrAccountTooLong
	}
	return Participant{
		UID:     uid,
		Account: account,
		Role:    role,
		Video:   On,
		Audio:   On,
		Chat:    On,
	}, nil
}

// Me is the local participant plus session-scoped secrets and local-only fields.
type Me struct {
	Participant
	RTCToken    string `json:"rtcToken"`
	RTMToken    string `json:"rtmToken"`
	ChannelName string `json:"channelName"`
	AppID       string `json:"appId"`
	Password    string `json:"-"`
}
