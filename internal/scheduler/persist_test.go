package scheduler

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWallClockStoreRoundTrip(t *testing.T) {
	store := NewWallClockStore(t.TempDir())
	want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	if err := store.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestWallClockStoreLoadMissingFileReturnsZeroValue(t *testing.T) {
	store := NewWallClockStore(t.TempDir())
	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.IsZero() {
		t.Fatalf("expected zero time, got %v", got)
	}
}

func TestSetWallClockStoreDetectsGapAsTimeJump(t *testing.T) {
	dir := t.TempDir()
	store := NewWallClockStore(dir)
	if err := store.Save(time.Now().Add(-2 * time.Hour)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	refreshed := 0
	s := New(nil, func() { refreshed++ })
	s.SetWallClockStore(store)

	// The jump is handled by scheduling a 5s settle-delay countdown, not
	// firing onSceneRefresh synchronously.
	for i := 0; i < 6; i++ {
		s.Tick()
	}
	if refreshed != 1 {
		t.Fatalf("expected exactly 1 refresh after the gap was detected, got %d", refreshed)
	}
}

func TestMidnightEntryPersistsWallClock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wallclock.json")

	s := New(nil, nil)
	s.SetWallClockStore(NewWallClockStore(dir))

	s.mu.Lock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	var midnight *entry
	for _, e := range entries {
		if e.kind == KindDaily && e.hour == 0 && e.minute == 0 && e.second == 0 {
			midnight = e
		}
	}
	if midnight == nil {
		t.Fatal("expected the self-rescheduling midnight entry to exist")
	}
	midnight.fire()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected wall-clock snapshot to be written: %v", err)
	}
}
