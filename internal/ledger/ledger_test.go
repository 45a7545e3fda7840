package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/dokzlo13/huemood/internal/db"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "huemood.db"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return New(database.DB)
}

func TestAppendAndRecent(t *testing.T) {
	l := newTestLedger(t)
	now := time.Now()

	if err := l.Append("sess-1", "Billy", "session_started", now, nil); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := l.Append("sess-1", "Billy", "cycle_completed", now.Add(time.Second), map[string]any{"hue": 30000.0}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := l.Append("sess-2", "Anna", "session_restored", now.Add(2*time.Second), nil); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	entries, err := l.Recent(10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}

	// Newest first.
	if entries[0].Bulb != "Anna" || entries[0].EventType != "session_restored" {
		t.Errorf("entries[0] = %+v, want Anna session_restored", entries[0])
	}
	if entries[1].Payload["hue"] != 30000.0 {
		t.Errorf("entries[1].Payload = %v, want hue 30000", entries[1].Payload)
	}
	if entries[2].SessionID != "sess-1" {
		t.Errorf("entries[2].SessionID = %q, want sess-1", entries[2].SessionID)
	}
}

func TestRecentLimit(t *testing.T) {
	l := newTestLedger(t)
	for i := 0; i < 5; i++ {
		if err := l.Append("sess-1", "Billy", "cycle_completed", time.Now(), nil); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	entries, err := l.Recent(2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d entries, want 2", len(entries))
	}
}

func TestCleanup(t *testing.T) {
	l := newTestLedger(t)

	old := time.Now().Add(-48 * time.Hour)
	if err := l.Append("sess-old", "Billy", "session_restored", old, nil); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := l.Append("sess-new", "Billy", "session_started", time.Now(), nil); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	deleted, err := l.Cleanup(24 * time.Hour)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("Cleanup() deleted = %d, want 1", deleted)
	}

	entries, err := l.Recent(10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 1 || entries[0].SessionID != "sess-new" {
		t.Errorf("remaining entries = %+v, want only sess-new", entries)
	}
}
