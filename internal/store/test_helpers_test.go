package store

import (
	"path/filepath"
	"testing"
)

// createTestStore opens a fresh database in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestFired(seq int64, container, cueID, event string) FiredEvent {
	return FiredEvent{
		Seq:       seq,
		Container: container,
		Cue:       cueID,
		Player:    1,
		Event:     event,
		Config:    "entered",
		Message:   "note",
		Note:      60,
		Channel:   1,
	}
}
