package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edukit/classsync/internal/backend"
	"github.com/edukit/classsync/internal/domain"
	"github.com/edukit/classsync/internal/policy"
	"github.com/edukit/classsync/internal/protocol"
	"github.com/edukit/classsync/internal/storage"
	"github.com/edukit/classsync/internal/store"
)

var (
	ErrNotPermitted = errors.New("operation not permitted for role")
	ErrUnknownUser  = errors.New("unknown participant")
	ErrNoApplicant  = errors.New("no matching co-video applicant")
	ErrChatMuted    = errors.New("chat is muted")
	ErrNotRecording = errors.New("no recording in progress")
)

// Engine drives one participant's view of a live classroom. All outbound
// mutations persist to the backend before the local store is updated and
// before peers are notified; that ordering is load-bearing.
type Engine struct {
	store   *store.RoomStore
	backend Backend
	signal  SignalTransport
	media   MediaTransport
	gate    policy.Gate
	arbiter Arbiter
	persist *storage.Store

	mu       sync.Mutex
	loggedIn bool

	// OnSessionAborted is invoked when the signaling transport reports the
	// session invalid (login failure, remote login). The UI navigates away.
	OnSessionAborted func(reason string)
}

func New(st *store.RoomStore, be Backend, sig SignalTransport, media MediaTransport, persist *storage.Store) *Engine {
	return &Engine{
		store:   st,
		backend: be,
		signal:  sig,
		media:   media,
		persist: persist,
	}
}

// Store exposes the session container for subscription by the UI layer.
func (e *Engine) Store() *store.RoomStore { return e.store }

// Arbiter exposes the co-video slot, read-only in practice.
func (e *Engine) Arbiter() *Arbiter { return &e.arbiter }

// Mute disables one capability flag of the target participant.
func (e *Engine) Mute(ctx context.Context, uid domain.UID, field protocol.Field) error {
	return e.SetParticipantFlag(ctx, uid, field, domain.Off, true)
}

// Unmute enables one capability flag of the target participant.
func (e *Engine) Unmute(ctx context.Context, uid domain.UID, field protocol.Field) error {
	return e.SetParticipantFlag(ctx, uid, field, domain.On, true)
}

// SetParticipantFlag runs the outbound path for a personal capability
// change: gate check, backend persistence, local apply, peer/channel
// notification per the routing policy.
func (e *Engine) SetParticipantFlag(ctx context.Context, target domain.UID, field protocol.Field, value domain.Flag, broad bool) error {
	if field.RoomWide() {
		return fmt.Errorf("%w: %s is a course field", ErrNotPermitted, field)
	}
	st := e.store.State()
	actor := st.Me.Participant
	if !e.gate.CanMutateParticipant(actor, target) {
		return fmt.Errorf("%w: %s may not mutate uid %d", ErrNotPermitted, actor.Role, target)
	}

	var row domain.Participant
	if target == actor.UID {
		row = actor
	} else {
		p, ok := st.Users[target.Key()]
		if !ok {
			return fmt.Errorf("%w: uid %d", ErrUnknownUser, target)
		}
		row = p
	}

	update := backend.UserUpdate{UserID: row.UserID}
	if err := setUserUpdateField(&update, field, value); err != nil {
		return err
	}
	if err := e.backend.UpdateUser(ctx, update); err != nil {
		return fmt.Errorf("persist %s: %w", field, err)
	}

	if target == actor.UID {
		e.applyMyFlag(ctx, field, value)
	} else {
		setParticipantField(&row, field, value)
		e.store.SetUser(row)
	}

	switch e.gate.NotifyRoute(actor, field, target, broad) {
	case policy.RoutePeer:
		code, ok := protocol.Encode(field, value)
		if !ok {
			return fmt.Errorf("no operate code for %s=%d", field, value)
		}
		payload, err := protocol.MarshalPeer(code)
		if err != nil {
			return err
		}
		if err := e.signal.SendPeerMessage(ctx, target, payload); err != nil {
			return fmt.Errorf("notify peer %d: %w", target, err)
		}
	case policy.RouteChannel:
		payload, err := protocol.MarshalUpdate()
		if err != nil {
			return err
		}
		if err := e.signal.NotifyMessage(ctx, payload); err != nil {
			return fmt.Errorf("notify channel: %w", err)
		}
	}
	return nil
}

// applyMyFlag updates the local row and drives the media transport for
// audio/video/co-video transitions. Media failures are logged, never
// propagated: the store already reflects the durable state.
func (e *Engine) applyMyFlag(ctx context.Context, field protocol.Field, value domain.Flag) {
	attrs := domain.MeAttrs{}
	switch field {
	case protocol.FieldAudio:
		attrs.Audio = domain.Ptr(value)
	case protocol.FieldVideo:
		attrs.Video = domain.Ptr(value)
	case protocol.FieldChat:
		attrs.Chat = domain.Ptr(value)
	case protocol.FieldGrantBoard:
		attrs.GrantBoard = domain.Ptr(value)
	case protocol.FieldCoVideo:
		attrs.CoVideo = domain.Ptr(value)
	default:
		log.Warn().Str("module", "engine").Str("field", string(field)).Msg("unknown personal field")
		return
	}
	e.store.UpdateMe(attrs)

	if e.media == nil {
		return
	}
	switch field {
	case protocol.FieldAudio:
		if err := e.media.MuteLocalAudio(value == domain.Off); err != nil {
			log.Warn().Err(err).Str("module", "engine").Msg("mute local audio")
		}
	case protocol.FieldVideo:
		if err := e.media.MuteLocalVideo(value == domain.Off); err != nil {
			log.Warn().Err(err).Str("module", "engine").Msg("mute local video")
		}
	case protocol.FieldCoVideo:
		if value == domain.On {
			if err := e.media.Publish(ctx); err != nil {
				log.Warn().Err(err).Str("module", "engine").Msg("publish media")
			} else {
				e.store.SetPublished(true)
			}
		} else {
			if err := e.media.Unpublish(ctx); err != nil {
				log.Warn().Err(err).Str("module", "engine").Msg("unpublish media")
			} else {
				e.store.SetPublished(false)
			}
		}
	}
}

// SetCourseFlag runs the outbound path for a room-wide change. Teacher
// only; notification always goes to the whole channel as an invalidation.
func (e *Engine) SetCourseFlag(ctx context.Context, field protocol.Field, value domain.Flag) error {
	if !field.RoomWide() {
		return fmt.Errorf("%s is not a course field", field)
	}
	st := e.store.State()
	actor := st.Me.Participant
	if !e.gate.CanMutateCourse(actor) {
		return fmt.Errorf("%w: %s may not mutate course", ErrNotPermitted, actor.Role)
	}

	update := backend.CourseUpdate{}
	attrs := domain.CourseAttrs{}
	switch field {
	case protocol.FieldCourseState:
		update.CourseState = domain.Ptr(int(value))
		attrs.CourseState = domain.Ptr(value)
	case protocol.FieldMuteChat:
		update.MuteAllChat = domain.Ptr(int(value))
		attrs.MuteChat = domain.Ptr(value)
	case protocol.FieldLockBoard:
		update.LockBoard = domain.Ptr(int(value))
		attrs.LockBoard = domain.Ptr(value)
	}
	if err := e.backend.UpdateCourse(ctx, update); err != nil {
		return fmt.Errorf("persist course %s: %w", field, err)
	}
	e.store.UpdateCourse(attrs)

	payload, err := protocol.MarshalCourse()
	if err != nil {
		return err
	}
	if err := e.signal.NotifyMessage(ctx, payload); err != nil {
		return fmt.Errorf("notify channel: %w", err)
	}
	return nil
}

func (e *Engine) StartCourse(ctx context.Context) error {
	return e.SetCourseFlag(ctx, protocol.FieldCourseState, domain.On)
}

func (e *Engine) EndCourse(ctx context.Context) error {
	return e.SetCourseFlag(ctx, protocol.FieldCourseState, domain.Off)
}

func (e *Engine) LockBoard(ctx context.Context) error {
	return e.SetCourseFlag(ctx, protocol.FieldLockBoard, domain.On)
}

func (e *Engine) UnlockBoard(ctx context.Context) error {
	return e.SetCourseFlag(ctx, protocol.FieldLockBoard, domain.Off)
}

func (e *Engine) MuteAllChat(ctx context.Context) error {
	return e.SetCourseFlag(ctx, protocol.FieldMuteChat, domain.On)
}

func (e *Engine) UnmuteAllChat(ctx context.Context) error {
	return e.SetCourseFlag(ctx, protocol.FieldMuteChat, domain.Off)
}

// ApplyCoVideo raises the local student's hand: a point-to-point request
// to the teacher. Nothing is persisted until the teacher decides.
func (e *Engine) ApplyCoVideo(ctx context.Context) error {
	st := e.store.State()
	if st.Me.IsTeacher() {
		return fmt.Errorf("%w: teacher cannot apply for co-video", ErrNotPermitted)
	}
	if st.Course.TeacherID == 0 {
		return fmt.Errorf("%w: no teacher present", ErrUnknownUser)
	}
	payload, err := protocol.MarshalPeer(protocol.ApplyCoVideo)
	if err != nil {
		return err
	}
	return e.signal.SendPeerMessage(ctx, st.Course.TeacherID, payload)
}

// CancelCoVideo withdraws the local student's request or promotion. If
// already promoted, the flag is persisted off; in both cases the teacher
// is told point-to-point.
func (e *Engine) CancelCoVideo(ctx context.Context) error {
	st := e.store.State()
	if st.Me.IsTeacher() {
		return fmt.Errorf("%w: teacher has no co-video application", ErrNotPermitted)
	}
	if st.Me.CoVideo == domain.On {
		if err := e.SetParticipantFlag(ctx, st.Me.UID, protocol.FieldCoVideo, domain.Off, true); err != nil {
			return err
		}
	}
	if st.Course.TeacherID == 0 {
		return nil
	}
	payload, err := protocol.MarshalPeer(protocol.CancelCoVideo)
	if err != nil {
		return err
	}
	return e.signal.SendPeerMessage(ctx, st.Course.TeacherID, payload)
}

// AcceptCoVideo is the teacher's decision on the pending applicant: the
// promotion is persisted, the applicant is told point-to-point and the
// channel is invalidated so every client reconciles.
func (e *Engine) AcceptCoVideo(ctx context.Context, uid domain.UID) error {
	st := e.store.State()
	if !st.Me.IsTeacher() {
		return fmt.Errorf("%w: only the teacher decides co-video", ErrNotPermitted)
	}
	if e.arbiter.Pending() != uid {
		return fmt.Errorf("%w: uid %d", ErrNoApplicant, uid)
	}
	row, ok := st.Users[uid.Key()]
	if !ok {
		row = domain.Participant{UID: uid, Role: domain.RoleStudent}
	}

	update := backend.UserUpdate{UserID: row.UserID, CoVideo: domain.Ptr(1)}
	if err := e.backend.UpdateUser(ctx, update); err != nil {
		return fmt.Errorf("persist co-video accept: %w", err)
	}

	row.CoVideo = domain.On
	e.store.SetUser(row)
	e.arbiter.Resolve()
	e.store.SetApplyUser(0)

	payload, err := protocol.MarshalPeer(protocol.AcceptCoVideo)
	if err != nil {
		return err
	}
	if err := e.signal.SendPeerMessage(ctx, uid, payload); err != nil {
		return fmt.Errorf("notify applicant %d: %w", uid, err)
	}
	invalidate, err := protocol.MarshalUpdate()
	if err != nil {
		return err
	}
	if err := e.signal.NotifyMessage(ctx, invalidate); err != nil {
		return fmt.Errorf("notify channel: %w", err)
	}
	return nil
}

// RejectCoVideo clears the pending slot and tells the applicant. No state
// change, nothing persisted.
func (e *Engine) RejectCoVideo(ctx context.Context, uid domain.UID) error {
	st := e.store.State()
	if !st.Me.IsTeacher() {
		return fmt.Errorf("%w: only the teacher decides co-video", ErrNotPermitted)
	}
	if e.arbiter.Pending() != uid {
		return fmt.Errorf("%w: uid %d", ErrNoApplicant, uid)
	}
	e.arbiter.Resolve()
	e.store.SetApplyUser(0)

	payload, err := protocol.MarshalPeer(protocol.RejectCoVideo)
	if err != nil {
		return err
	}
	return e.signal.SendPeerMessage(ctx, uid, payload)
}

// SendChatMessage appends locally and broadcasts to the channel. Students
// are blocked by their own chat flag and by the room-wide chat lock.
func (e *Engine) SendChatMessage(ctx context.Context, text string) error {
	st := e.store.State()
	if !st.Me.Chat.Enabled() {
		return ErrChatMuted
	}
	if st.Course.MuteChat.Enabled() && !st.Me.IsTeacher() {
		return ErrChatMuted
	}
	payload, err := protocol.MarshalChat(protocol.ChatData{
		Account: st.Me.Account,
		Content: text,
	})
	if err != nil {
		return err
	}
	if err := e.signal.NotifyMessage(ctx, payload); err != nil {
		return fmt.Errorf("notify channel: %w", err)
	}
	e.store.AppendMessage(domain.ChatMessage{
		Account: st.Me.Account,
		Text:    text,
		TS:      time.Now().UnixMilli(),
		ID:      st.Me.UID.Key(),
	})
	return nil
}

// StartRecording begins cloud recording and invalidates the channel.
func (e *Engine) StartRecording(ctx context.Context) error {
	st := e.store.State()
	if !e.gate.CanMutateCourse(st.Me.Participant) {
		return fmt.Errorf("%w: %s may not record", ErrNotPermitted, st.Me.Role)
	}
	recordID, err := e.backend.StartRecording(ctx)
	if err != nil {
		return fmt.Errorf("start recording: %w", err)
	}
	e.store.UpdateCourse(domain.CourseAttrs{
		IsRecording: domain.Ptr(true),
		RecordID:    domain.Ptr(recordID),
	})
	payload, err := protocol.MarshalCourse()
	if err != nil {
		return err
	}
	if err := e.signal.NotifyMessage(ctx, payload); err != nil {
		return fmt.Errorf("notify channel: %w", err)
	}
	return nil
}

// StopRecording ends cloud recording and announces the replay link.
func (e *Engine) StopRecording(ctx context.Context) error {
	st := e.store.State()
	if !e.gate.CanMutateCourse(st.Me.Participant) {
		return fmt.Errorf("%w: %s may not record", ErrNotPermitted, st.Me.Role)
	}
	if st.Course.RecordID == "" {
		return ErrNotRecording
	}
	if err := e.backend.StopRecording(ctx, st.Course.RecordID); err != nil {
		return fmt.Errorf("stop recording: %w", err)
	}
	e.store.UpdateCourse(domain.CourseAttrs{IsRecording: domain.Ptr(false)})

	payload, err := protocol.MarshalReplay(protocol.ReplayData{
		Account:  st.Me.Account,
		Content:  "course recording",
		RecordID: st.Course.RecordID,
	})
	if err != nil {
		return err
	}
	if err := e.signal.NotifyMessage(ctx, payload); err != nil {
		return fmt.Errorf("notify channel: %w", err)
	}
	e.store.AppendMessage(domain.ChatMessage{
		Account: st.Me.Account,
		Text:    "course recording",
		Link:    st.Course.RecordID,
		TS:      time.Now().UnixMilli(),
		ID:      st.Me.UID.Key(),
	})
	return nil
}

// RefreshTokens replaces the transport credentials on the local row.
func (e *Engine) RefreshTokens(ctx context.Context) error {
	tokens, err := e.backend.RefreshToken(ctx)
	if err != nil {
		return fmt.Errorf("refresh tokens: %w", err)
	}
	e.store.UpdateMe(domain.MeAttrs{
		RTCToken: domain.Ptr(tokens.RTCToken),
		RTMToken: domain.Ptr(tokens.RTMToken),
	})
	return nil
}

// SaveSnapshot persists the restorable subset of the session, called on
// every navigation away from the entry screen.
func (e *Engine) SaveSnapshot() error {
	if e.persist == nil {
		return nil
	}
	return e.persist.Save(e.store.PersistedSnapshot())
}

func setUserUpdateField(u *backend.UserUpdate, field protocol.Field, value domain.Flag) error {
	v := int(value)
	switch field {
	case protocol.FieldAudio:
		u.EnableAudio = &v
	case protocol.FieldVideo:
		u.EnableVideo = &v
	case protocol.FieldChat:
		u.EnableChat = &v
	case protocol.FieldGrantBoard:
		u.GrantBoard = &v
	case protocol.FieldCoVideo:
		u.CoVideo = &v
	default:
		return fmt.Errorf("unknown personal field %q", field)
	}
	return nil
}

func setParticipantField(p *domain.Participant, field protocol.Field, value domain.Flag) {
	switch field {
	case protocol.FieldAudio:
		p.Audio = value
	case protocol.FieldVideo:
		p.Video = value
	case protocol.FieldChat:
		p.Chat = value
	case protocol.FieldGrantBoard:
		p.GrantBoard = value
	case protocol.FieldCoVideo:
		p.CoVideo = value
	}
}
