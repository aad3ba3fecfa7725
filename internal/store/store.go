package store

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/edukit/classsync/internal/domain"
	"github.com/edukit/classsync/internal/storage"
)

// SnapshotSource restores a previously persisted session snapshot into the
// default state. May be nil.
type SnapshotSource interface {
	Load() (storage.Snapshot, bool)
}

// RoomStore is the single-writer, single-subscriber session container.
// Every mutator is a synchronous state transition: read the current
// snapshot, produce a new one, assign, commit. A store with no observer
// silently drops commits.
type RoomStore struct {
	mu       sync.Mutex
	state    RoomState
	observer func(RoomState)
	restore  SnapshotSource
}

func New(restore SnapshotSource) *RoomStore {
	return &RoomStore{state: defaultState(), restore: restore}
}

// Subscribe resets the store to its default state (plus any restored
// snapshot), registers the single observer and immediately delivers the
// current snapshot.
func (s *RoomStore) Subscribe(observer func(RoomState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = s.initialState()
	s.observer = observer
	s.commitLocked()
}

func (s *RoomStore) initialState() RoomState {
	st := defaultState()
	if s.restore == nil {
		return st
	}
	snap, ok := s.restore.Load()
	if !ok {
		return st
	}
	st.Me = snap.Me
	st.Course = snap.Course
	st.MediaDevice = snap.MediaDevice
	st.ApplyUser = snap.ApplyUser
	if st.Me.UID != 0 {
		st.Users[st.Me.UID.Key()] = st.Me.Participant
	}
	log.Info().Str("module", "store").Int64("uid", int64(st.Me.UID)).Msg("restored persisted session")
	return st
}

func (s *RoomStore) Unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = nil
}

// Commit delivers the current snapshot to the observer if one is attached.
func (s *RoomStore) Commit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitLocked()
}

func (s *RoomStore) commitLocked() {
	if s.observer != nil {
		s.observer(s.state.clone())
	}
}

// State returns a deep copy of the current snapshot.
func (s *RoomStore) State() RoomState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Reset discards all session state and notifies the observer.
func (s *RoomStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = defaultState()
	s.commitLocked()
}

// mutate runs fn over a fresh copy of the snapshot, derives the dependent
// fields, assigns and commits. All mutators funnel through here.
func (s *RoomStore) mutate(fn func(*RoomState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.clone()
	fn(&next)
	derive(&next)
	s.state = next
	s.commitLocked()
}

// derive recomputes the fields that are never independently assigned:
// the me row mirrored in users, the teacher id and the co-video list.
func derive(st *RoomState) {
	if st.Me.UID != 0 {
		st.Users[st.Me.UID.Key()] = st.Me.Participant
	}
	st.Course.TeacherID = 0
	for _, p := range st.Users {
		if p.IsTeacher() {
			st.Course.TeacherID = p.UID
			break
		}
	}
	uids := make([]domain.UID, 0, len(st.Users))
	for _, p := range st.Users {
		if p.UID != st.Course.TeacherID {
			uids = append(uids, p.UID)
		}
	}
	st.Course.CoVideoUIDs = uids
}

// SeedSession installs an authoritative login result wholesale. Derived
// course fields are recomputed, not trusted from the input.
func (s *RoomStore) SeedSession(me domain.Me, users map[string]domain.Participant, course domain.Course) {
	s.mutate(func(st *RoomState) {
		st.Me = me
		next := make(map[string]domain.Participant, len(users))
		for k, v := range users {
			next[k] = v
		}
		st.Users = next
		course.TeacherID = 0
		course.CoVideoUIDs = nil
		st.Course = course
	})
}

// UpdateMe overlays the given attrs onto the local participant.
func (s *RoomStore) UpdateMe(attrs domain.MeAttrs) {
	s.mutate(func(st *RoomState) {
		st.Me = compositeMe(st.Me, attrs)
	})
}

// UpdateCourse overlays the given attrs onto the shared course state.
func (s *RoomStore) UpdateCourse(attrs domain.CourseAttrs) {
	s.mutate(func(st *RoomState) {
		st.Course = compositeCourse(st.Course, attrs)
	})
}

// ApplyRoomState applies a full reconciliation pull: the authoritative me
// row, users map and partial course fields. The local row prefers the
// dedicated me record; a row in the fetched set wins over it, so me and
// users[me.uid] stay identical.
func (s *RoomStore) ApplyRoomState(me domain.Participant, users map[string]domain.Participant, course domain.CourseAttrs) {
	s.mutate(func(st *RoomState) {
		if me.UID != 0 && me.UID == st.Me.UID {
			st.Me.Participant = me
		}
		if fetched, ok := users[st.Me.UID.Key()]; ok {
			st.Me.Participant = fetched
		}
		next := make(map[string]domain.Participant, len(users))
		for k, v := range users {
			next[k] = v
		}
		st.Users = next
		st.Course = compositeCourse(st.Course, course)
	})
}

// SetUser inserts or replaces one participant row.
func (s *RoomStore) SetUser(p domain.Participant) {
	s.mutate(func(st *RoomState) {
		st.Users[p.UID.Key()] = p
		if p.UID == st.Me.UID {
			st.Me.Participant = p
		}
	})
}

// RemoveUser drops a participant row. Removing the local row is refused.
func (s *RoomStore) RemoveUser(uid domain.UID) {
	s.mutate(func(st *RoomState) {
		if uid == st.Me.UID {
			return
		}
		delete(st.Users, uid.Key())
	})
}

// AppendMessage appends to the ordered chat/replay sequence.
func (s *RoomStore) AppendMessage(msg domain.ChatMessage) {
	s.mutate(func(st *RoomState) {
		st.Messages = append(st.Messages, msg)
	})
}

// SetApplyUser records the pending co-video applicant. Zero clears it.
func (s *RoomStore) SetApplyUser(uid domain.UID) {
	s.mutate(func(st *RoomState) {
		st.ApplyUser = uid
	})
}

func (s *RoomStore) SetRTMJoined(joined bool) {
	s.mutate(func(st *RoomState) {
		st.RTM.Joined = joined
	})
}

func (s *RoomStore) SetMemberCount(count int) {
	s.mutate(func(st *RoomState) {
		st.RTM.MemberCount = count
	})
}

func (s *RoomStore) SetRTCJoined(joined bool) {
	s.mutate(func(st *RoomState) {
		st.RTC.Joined = joined
	})
}

func (s *RoomStore) SetPublished(published bool) {
	s.mutate(func(st *RoomState) {
		st.RTC.Published = published
	})
}

func (s *RoomStore) SetScreenShare(shared bool) {
	s.mutate(func(st *RoomState) {
		st.RTC.Shared = shared
	})
}

func (s *RoomStore) AddPeerUser(uid domain.UID) {
	s.mutate(func(st *RoomState) {
		st.RTC.Users[uid] = struct{}{}
	})
}

func (s *RoomStore) RemovePeerUser(uid domain.UID) {
	s.mutate(func(st *RoomState) {
		delete(st.RTC.Users, uid)
	})
}

func (s *RoomStore) SetMediaDevice(dev domain.MediaDevice) {
	s.mutate(func(st *RoomState) {
		st.MediaDevice = dev
	})
}

func (s *RoomStore) SetLanguage(lang string) {
	s.mutate(func(st *RoomState) {
		st.Language = lang
	})
}

// PersistedSnapshot extracts the subset of state written to local storage.
func (s *RoomStore) PersistedSnapshot() storage.Snapshot {
	st := s.State()
	return storage.Snapshot{
		Me:          st.Me,
		Course:      st.Course,
		MediaDevice: st.MediaDevice,
		ApplyUser:   st.ApplyUser,
	}
}
