package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/edukit/classsync/internal/backend"
	"github.com/edukit/classsync/internal/domain"
	"github.com/edukit/classsync/internal/protocol"
)

// LoginAndJoin runs the ordered join sequence: backend entry, signaling
// login, channel join, then a self-announcing update when resuming as an
// already-promoted co-video participant. Each step must complete before
// the next.
func (e *Engine) LoginAndJoin(ctx context.Context, params backend.EntryParams) error {
	res, err := e.backend.Login(ctx, params)
	if err != nil {
		return fmt.Errorf("backend entry: %w", err)
	}

	e.store.SeedSession(res.Me, res.Users, res.Course)

	if err := e.signal.Login(ctx, res.Me.UID, res.Me.RTMToken); err != nil {
		// Login never succeeded, so there is nothing to log out.
		return fmt.Errorf("signal login: %w", err)
	}
	e.setLoggedIn(true)

	if err := e.signal.Join(ctx, res.Me.ChannelName); err != nil {
		e.logoutCleanup(ctx)
		return fmt.Errorf("signal join: %w", err)
	}
	e.store.SetRTMJoined(true)
	e.store.SetMemberCount(res.OnlineUsers)

	if res.Me.CoVideo == domain.On {
		payload, err := protocol.MarshalUpdate()
		if err == nil {
			err = e.signal.NotifyMessage(ctx, payload)
		}
		if err != nil {
			log.Warn().Err(err).Str("module", "engine").Msg("resume announcement failed")
		}
	}

	log.Info().Str("module", "engine").
		Int64("uid", int64(res.Me.UID)).
		Str("channel", res.Me.ChannelName).
		Str("role", res.Me.Role.String()).
		Msg("joined classroom")
	return nil
}

// JoinMedia brings up the media transport with the credentials captured at
// login and publishes if the local participant is promoted.
func (e *Engine) JoinMedia(ctx context.Context) error {
	if e.media == nil {
		return nil
	}
	st := e.store.State()
	if err := e.media.Join(ctx, st.Me.ChannelName, st.Me.RTCToken, st.Me.UID); err != nil {
		return fmt.Errorf("media join: %w", err)
	}
	e.store.SetRTCJoined(true)

	if st.Me.IsTeacher() || st.Me.CoVideo == domain.On {
		if err := e.media.Publish(ctx); err != nil {
			log.Warn().Err(err).Str("module", "engine").Msg("publish on media join")
		} else {
			e.store.SetPublished(true)
		}
	}
	return nil
}

func (e *Engine) setLoggedIn(v bool) {
	e.mu.Lock()
	e.loggedIn = v
	e.mu.Unlock()
}

func (e *Engine) isLoggedIn() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loggedIn
}

// logoutCleanup tears the signaling login back down after a failed join.
// Logout is only invoked if a prior login had in fact succeeded.
func (e *Engine) logoutCleanup(ctx context.Context) {
	if !e.isLoggedIn() {
		return
	}
	if err := e.signal.Logout(ctx); err != nil {
		log.Warn().Err(err).Str("module", "engine").Msg("logout cleanup failed")
	}
	e.setLoggedIn(false)
}

// ExitAll tears down both transports independently; each failure is logged
// and never aborts the other. Local storage is cleared and the store reset
// unconditionally, so teardown is always terminal-successful for the
// caller.
func (e *Engine) ExitAll(ctx context.Context) {
	defer func() {
		if e.persist != nil {
			e.persist.Clear()
		}
		e.arbiter.Resolve()
		e.setLoggedIn(false)
		e.store.Reset()
	}()

	if err := e.signal.Exit(ctx); err != nil {
		log.Warn().Err(err).Str("module", "engine").Msg("signal exit failed")
	}
	if e.media != nil {
		if err := e.media.Exit(ctx); err != nil {
			log.Warn().Err(err).Str("module", "engine").Msg("media exit failed")
		}
	}
}
