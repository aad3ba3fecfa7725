package domain

// Ptr is a literal-to-pointer helper for building partial attrs.
func Ptr[T any](v T) *T { return &v }

// MeAttrs is a partial overlay of the local participant. Nil fields are
// left untouched; merging is an explicit whitelist, never reflection.
type MeAttrs struct {
	UID         *UID
	UserID      *UserID
	Account     *string
	Role        *Role
	Video       *Flag
	Audio       *Flag
	Chat        *Flag
	GrantBoard  *Flag
	CoVideo     *Flag
	ScreenID    *UID
	RTCToken    *string
	RTMToken    *string
	ChannelName *string
	AppID       *string
	Password    *string
}

// CourseAttrs is a partial overlay of the shared course state. Derived
// fields (TeacherID, CoVideoUIDs) are deliberately absent.
type CourseAttrs struct {
	RoomID        *RoomID
	RoomName      *RoomName
	BoardID       *string
	BoardToken    *string
	CourseState   *Flag
	MuteChat      *Flag
	LockBoard     *Flag
	IsRecording   *bool
	RecordID      *string
	RecordingTime *int64
}
