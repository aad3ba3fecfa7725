// Package engine orchestrates classroom-session synchronization: optimistic
// local mutation plus remote persistence and peer notification for local
// intents, interpretation of inbound peer/channel messages, and full-state
// reconciliation pulls.
package engine

import (
	"context"

	"github.com/edukit/classsync/internal/backend"
	"github.com/edukit/classsync/internal/domain"
)

// Backend is the authoritative REST surface the engine persists against.
type Backend interface {
	Login(ctx context.Context, params backend.EntryParams) (backend.LoginResult, error)
	RoomState(ctx context.Context) (backend.RoomStatePull, error)
	CourseState(ctx context.Context) (domain.CourseAttrs, error)
	UpdateCourse(ctx context.Context, update backend.CourseUpdate) error
	UpdateUser(ctx context.Context, update backend.UserUpdate) error
	StartRecording(ctx context.Context) (string, error)
	StopRecording(ctx context.Context, recordID string) error
	RecordingList(ctx context.Context) ([]backend.Record, error)
	RefreshToken(ctx context.Context) (backend.Tokens, error)
}

// SignalTransport is the peer-messaging surface. Point-to-point and channel
// payloads are textual JSON with at-least-once delivery.
type SignalTransport interface {
	Login(ctx context.Context, uid domain.UID, token string) error
	Join(ctx context.Context, channel string) error
	Logout(ctx context.Context) error
	Exit(ctx context.Context) error
	SendPeerMessage(ctx context.Context, uid domain.UID, payload []byte) error
	NotifyMessage(ctx context.Context, payload []byte) error
}

// MediaTransport publishes and subscribes media streams. The engine only
// drives it from capability-flag transitions and teardown; it is an
// external collaborator and its failures are never load-bearing here.
type MediaTransport interface {
	Join(ctx context.Context, channel, token string, uid domain.UID) error
	Publish(ctx context.Context) error
	Unpublish(ctx context.Context) error
	MuteLocalAudio(muted bool) error
	MuteLocalVideo(muted bool) error
	Exit(ctx context.Context) error
}
