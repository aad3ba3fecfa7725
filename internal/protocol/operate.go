// Package protocol defines the wire protocol of the classroom signaling
// channel: integer operate codes for point-to-point instructions and the
// cmd-discriminated envelope for channel broadcasts.
package protocol

import "github.com/edukit/classsync/internal/domain"

// OperateCode identifies a single state transition instruction on the wire.
// Values are stable; never renumber.
type OperateCode int

const (
	MuteAudio     OperateCode = 101
	UnmuteAudio   OperateCode = 102
	MuteVideo     OperateCode = 103
	UnmuteVideo   OperateCode = 104
	MuteChat      OperateCode = 105
	UnmuteChat    OperateCode = 106
	MuteBoard     OperateCode = 107
	UnmuteBoard   OperateCode = 108
	ApplyCoVideo  OperateCode = 109
	AcceptCoVideo OperateCode = 110
	RejectCoVideo OperateCode = 111
	CancelCoVideo OperateCode = 112

	LockBoard     OperateCode = 201
	UnlockBoard   OperateCode = 202
	StartCourse   OperateCode = 203
	EndCourse     OperateCode = 204
	MuteAllChat   OperateCode = 205
	UnmuteAllChat OperateCode = 206
)

func (c OperateCode) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "unknown"
}

var codeNames = map[OperateCode]string{
	MuteAudio:     "muteAudio",
	UnmuteAudio:   "unmuteAudio",
	MuteVideo:     "muteVideo",
	UnmuteVideo:   "unmuteVideo",
	MuteChat:      "muteChat",
	UnmuteChat:    "unmuteChat",
	MuteBoard:     "muteBoard",
	UnmuteBoard:   "unmuteBoard",
	ApplyCoVideo:  "applyCoVideo",
	AcceptCoVideo: "acceptCoVideo",
	RejectCoVideo: "rejectCoVideo",
	CancelCoVideo: "cancelCoVideo",
	LockBoard:     "lockBoard",
	UnlockBoard:   "unlockBoard",
	StartCourse:   "startCourse",
	EndCourse:     "endCourse",
	MuteAllChat:   "muteAllChat",
	UnmuteAllChat: "unmuteAllChat",
}

// Field names a mutable participant or course attribute.
type Field string

const (
	FieldAudio       Field = "audio"
	FieldVideo       Field = "video"
	FieldChat        Field = "chat"
	FieldGrantBoard  Field = "grantBoard"
	FieldCoVideo     Field = "coVideo"
	FieldLockBoard   Field = "lockBoard"
	FieldCourseState Field = "courseState"
	FieldMuteChat    Field = "muteChat"
)

// RoomWide reports whether the field belongs to the shared course state
// rather than to a single participant.
func (f Field) RoomWide() bool {
	switch f {
	case FieldLockBoard, FieldCourseState, FieldMuteChat:
		return true
	}
	return false
}

type transition struct {
	field Field
	value domain.Flag
}

var codeByTransition = map[transition]OperateCode{
	{FieldAudio, domain.Off}:       MuteAudio,
	{FieldAudio, domain.On}:        UnmuteAudio,
	{FieldVideo, domain.Off}:       MuteVideo,
	{FieldVideo, domain.On}:        UnmuteVideo,
	{FieldChat, domain.Off}:        MuteChat,
	{FieldChat, domain.On}:         UnmuteChat,
	{FieldGrantBoard, domain.Off}:  MuteBoard,
	{FieldGrantBoard, domain.On}:   UnmuteBoard,
	{FieldCoVideo, domain.Off}:     CancelCoVideo,
	{FieldCoVideo, domain.On}:      AcceptCoVideo,
	{FieldLockBoard, domain.On}:    LockBoard,
	{FieldLockBoard, domain.Off}:   UnlockBoard,
	{FieldCourseState, domain.On}:  StartCourse,
	{FieldCourseState, domain.Off}: EndCourse,
	{FieldMuteChat, domain.On}:     MuteAllChat,
	{FieldMuteChat, domain.Off}:    UnmuteAllChat,
}

var transitionByCode = func() map[OperateCode]transition {
	m := make(map[OperateCode]transition, len(codeByTransition))
	for t, c := range codeByTransition {
		m[c] = t
	}
	return m
}()

// Encode maps a field change to its operate code.
func Encode(field Field, value domain.Flag) (OperateCode, bool) {
	c, ok := codeByTransition[transition{field, value}]
	return c, ok
}

// Decode is the exact inverse of Encode. ApplyCoVideo and RejectCoVideo
// carry no field mutation and decode as ok=false.
func Decode(code OperateCode) (Field, domain.Flag, bool) {
	t, ok := transitionByCode[code]
	if !ok {
		return "", domain.Off, false
	}
	return t.field, t.value, true
}
