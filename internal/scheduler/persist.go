package scheduler

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// WallClockStore persists the scheduler's last-known wall-clock time so a
// restart can detect a clock jump that happened while the process was
// down, the same way OnTimeChange detects one that happens while running.
type WallClockStore struct {
	path string
	mu   sync.Mutex
}

// NewWallClockStore returns a store backed by wallclock.json under dataDir.
func NewWallClockStore(dataDir string) *WallClockStore {
	return &WallClockStore{path: filepath.Join(dataDir, "wallclock.json")}
}

type wallClockDoc struct {
	Time time.Time `json:"time"`
}

// Load reads the last persisted wall-clock time, or the zero Time if
// nothing has been persisted yet.
func (c *WallClockStore) Load() (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}

	var doc wallClockDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Warnf("scheduler: corrupt wall-clock snapshot, ignoring: %v", err)
		return time.Time{}, nil
	}
	return doc.Time, nil
}

// Save writes t as the new last-known wall-clock time, atomically.
func (c *WallClockStore) Save(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(wallClockDoc{Time: t})
	if err != nil {
		return err
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
