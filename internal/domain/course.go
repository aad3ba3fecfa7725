package domain

type (
	RoomName string
	RoomID   string
)

// Course is the shared, room-wide mutable state of a classroom.
// TeacherID and CoVideoUIDs are derived, never independently assigned.
type Course struct {
	RoomID        RoomID   `json:"roomId"`
	RoomName      RoomName `json:"roomName"`
	TeacherID     UID      `json:"teacherId"`
	BoardID       string   `json:"boardId"`
	BoardToken    string   `json:"boardToken"`
	CourseState   Flag     `json:"courseState"`
	MuteChat      Flag     `json:"muteChat"`
	LockBoard     Flag     `json:"lockBoard"`
	IsRecording   bool     `json:"isRecording"`
	RecordID      string   `json:"recordId"`
	RecordingTime int64    `json:"recordingTime"`
	CoVideoUIDs   []UID    `json:"coVideoUids"`
}

// MediaDevice holds the locally selected capture/playback devices.
type MediaDevice struct {
	MicrophoneID  string `json:"microphoneId"`
	SpeakerID     string `json:"speakerId"`
	CameraID      string `json:"cameraId"`
	SpeakerVolume int    `json:"speakerVolume"`
	Camera        int    `json:"camera"`
	Microphone    int    `json:"microphone"`
	Speaker       int    `json:"speaker"`
}
