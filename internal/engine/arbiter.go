package engine

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/edukit/classsync/internal/domain"
)

// Arbiter serializes co-video hand-raise requests into a single pending
// slot. It is not a queue: a second apply while one is pending is dropped,
// an accepted trade-off given the single-teacher-decision UI.
type Arbiter struct {
	mu      sync.Mutex
	pending domain.UID
}

// Apply records uid as the pending applicant. Returns false and drops the
// request if another applicant is already pending.
func (a *Arbiter) Apply(uid domain.UID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending != 0 {
		log.Warn().Str("module", "engine.arbiter").
			Int64("pending", int64(a.pending)).
			Int64("uid", int64(uid)).
			Msg("apply dropped, applicant already pending")
		return false
	}
	a.pending = uid
	return true
}

// Cancel clears the slot only if uid matches the recorded applicant.
// A cancel from anyone else is a no-op.
func (a *Arbiter) Cancel(uid domain.UID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending == 0 || a.pending != uid {
		log.Debug().Str("module", "engine.arbiter").
			Int64("pending", int64(a.pending)).
			Int64("uid", int64(uid)).
			Msg("cancel ignored, uid not pending")
		return false
	}
	a.pending = 0
	return true
}

// Resolve clears the slot after a teacher decision and returns the
// applicant that was pending, or zero.
func (a *Arbiter) Resolve() domain.UID {
	a.mu.Lock()
	defer a.mu.Unlock()
	uid := a.pending
	a.pending = 0
	return uid
}

// Pending returns the currently recorded applicant, zero for none.
func (a *Arbiter) Pending() domain.UID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending
}
