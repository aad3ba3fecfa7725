package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edukit/classsync/internal/domain"
	"github.com/edukit/classsync/internal/protocol"
	"github.com/edukit/classsync/internal/store"
)

// HandlePeerMessage interprets an inbound point-to-point instruction.
// Out-of-policy messages (wrong sender/receiver role pair, malformed
// payloads) are logged and dropped, never surfaced.
func (e *Engine) HandlePeerMessage(ctx context.Context, payload []byte, senderUID domain.UID) {
	env, err := protocol.ParsePeer(payload)
	if err != nil {
		log.Warn().Err(err).Str("module", "engine").Int64("sender", int64(senderUID)).Msg("malformed peer message")
		return
	}
	st := e.store.State()
	receiver := st.Me.Participant
	sender := senderRow(st, senderUID)

	if !e.gate.AllowPeerCommand(sender, receiver, env.Cmd) {
		log.Warn().Str("module", "engine").
			Int64("sender", int64(senderUID)).
			Str("cmd", env.Cmd.String()).
			Str("sender_role", sender.Role.String()).
			Str("receiver_role", receiver.Role.String()).
			Msg("peer command dropped by role policy")
		return
	}

	if sender.IsTeacher() {
		e.applyTeacherCommand(ctx, env.Cmd)
		return
	}
	e.handleStudentRequest(senderUID, env.Cmd)
}

// senderRow resolves the sender's participant record; an unknown uid falls
// back to a role derived from the teacher id so role filtering still works.
func senderRow(st store.RoomState, uid domain.UID) domain.Participant {
	if p, ok := st.Users[uid.Key()]; ok {
		return p
	}
	role := domain.RoleStudent
	if uid != 0 && uid == st.Course.TeacherID {
		role = domain.RoleTeacher
	}
	return domain.Participant{UID: uid, Role: role}
}

// applyTeacherCommand applies an authoritative instruction from the
// teacher to the local participant: local-only, never re-emitted.
func (e *Engine) applyTeacherCommand(ctx context.Context, code protocol.OperateCode) {
	field, value, ok := protocol.Decode(code)
	if !ok {
		// RejectCoVideo carries no mutation, only a notice.
		log.Info().Str("module", "engine").Str("cmd", code.String()).Msg("teacher notice without field mutation")
		return
	}
	if field.RoomWide() {
		// Room-wide fields never arrive point-to-point; the channel
		// invalidation path owns them.
		log.Warn().Str("module", "engine").Str("cmd", code.String()).Msg("room-wide operate code on peer path dropped")
		return
	}
	log.Info().Str("module", "engine").Str("cmd", code.String()).Msg("applying teacher instruction")
	e.applyMyFlag(ctx, field, value)
}

// handleStudentRequest processes a co-video request on the teacher side.
func (e *Engine) handleStudentRequest(senderUID domain.UID, code protocol.OperateCode) {
	switch code {
	case protocol.ApplyCoVideo:
		if e.arbiter.Apply(senderUID) {
			e.store.SetApplyUser(senderUID)
		}
	case protocol.CancelCoVideo:
		if e.arbiter.Cancel(senderUID) {
			e.store.SetApplyUser(0)
		}
	}
}

// HandleChannelMessage interprets an inbound channel broadcast. update and
// course carry no delta; they trigger reconciliation pulls.
func (e *Engine) HandleChannelMessage(ctx context.Context, payload []byte, memberID string) {
	env, err := protocol.ParseChannel(payload)
	if err != nil {
		log.Warn().Err(err).Str("module", "engine").Str("member", memberID).Msg("malformed channel message")
		return
	}
	switch env.Cmd {
	case protocol.CmdChat:
		var data protocol.ChatData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			log.Warn().Err(err).Str("module", "engine").Msg("malformed chat payload")
			return
		}
		e.store.AppendMessage(domain.ChatMessage{
			Account: data.Account,
			Text:    data.Content,
			TS:      time.Now().UnixMilli(),
			ID:      memberID,
		})
	case protocol.CmdReplay:
		var data protocol.ReplayData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			log.Warn().Err(err).Str("module", "engine").Msg("malformed replay payload")
			return
		}
		e.store.AppendMessage(domain.ChatMessage{
			Account: data.Account,
			Text:    data.Content,
			Link:    data.RecordID,
			TS:      time.Now().UnixMilli(),
			ID:      memberID,
		})
	case protocol.CmdUpdate:
		if err := e.FetchRoomState(ctx); err != nil {
			log.Warn().Err(err).Str("module", "engine").Msg("reconciliation pull failed")
		}
	case protocol.CmdCourse:
		if err := e.FetchCourse(ctx); err != nil {
			log.Warn().Err(err).Str("module", "engine").Msg("course pull failed")
		}
	default:
		log.Warn().Str("module", "engine").Int("cmd", int(env.Cmd)).Msg("unknown channel cmd dropped")
	}
}

// FetchRoomState performs a full reconciliation pull: authoritative users
// plus course fields, applied local-only. Idempotent against unchanged
// backend state.
func (e *Engine) FetchRoomState(ctx context.Context) error {
	pull, err := e.backend.RoomState(ctx)
	if err != nil {
		return fmt.Errorf("fetch room state: %w", err)
	}
	e.store.ApplyRoomState(pull.Me, pull.Users, pull.Course)
	return nil
}

// FetchCourse pulls only the room-wide fields, merging nothing personal.
func (e *Engine) FetchCourse(ctx context.Context) error {
	attrs, err := e.backend.CourseState(ctx)
	if err != nil {
		return fmt.Errorf("fetch course: %w", err)
	}
	e.store.UpdateCourse(attrs)
	return nil
}

// HandleConnectionStateChanged reacts to signaling transport state. A
// rejected login or a remote login invalidates the whole session.
func (e *Engine) HandleConnectionStateChanged(state, reason string) {
	log.Info().Str("module", "engine").Str("state", state).Str("reason", reason).Msg("signal connection state changed")
	if reason == "LOGIN_FAILURE" || reason == "REMOTE_LOGIN" || state == "ABORTED" {
		if e.OnSessionAborted != nil {
			e.OnSessionAborted(reason)
		}
	}
}

// HandleMemberCountChanged mirrors the channel member count.
func (e *Engine) HandleMemberCountChanged(count int) {
	e.store.SetMemberCount(count)
}
