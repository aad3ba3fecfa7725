// Package storage persists the local session snapshot between navigations
// so a reload can resume the classroom without re-entry.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/edukit/classsync/internal/domain"
)

// RoomKey is the fixed storage key of the session snapshot.
const RoomKey = "classsync_room"

// Snapshot is the persisted subset of the session envelope.
type Snapshot struct {
	Me          domain.Me          `json:"me"`
	Course      domain.Course      `json:"course"`
	MediaDevice domain.MediaDevice `json:"mediaDevice"`
	ApplyUser   domain.UID         `json:"applyUser"`
}

// Store writes snapshots under a single fixed key in dir.
type Store struct {
	dir string
}

func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path() string {
	return filepath.Join(s.dir, RoomKey+".json")
}

func (s *Store) Save(snap Snapshot) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("storage mkdir: %w", err)
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("storage marshal: %w", err)
	}
	if err := os.WriteFile(s.path(), b, 0o600); err != nil {
		return fmt.Errorf("storage write: %w", err)
	}
	return nil
}

// Load returns the persisted snapshot if one exists and parses.
func (s *Store) Load() (Snapshot, bool) {
	b, err := os.ReadFile(s.path())
	if err != nil {
		return Snapshot{}, false
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		log.Warn().Err(err).Str("module", "storage").Msg("discarding corrupt snapshot")
		return Snapshot{}, false
	}
	return snap, true
}

// Clear removes the persisted snapshot. Missing file is not an error.
func (s *Store) Clear() {
	if err := os.Remove(s.path()); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("module", "storage").Msg("clear snapshot")
	}
}
