package remote

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
)

// FileStore persists a Persisted document to a single JSON file, written
// atomically via a tmp-file-plus-rename, grounded on
// discovery/cache.go's Save.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a FileStore writing to reg.dat under dataDir.
func NewFileStore(dataDir string) *FileStore {
	return &FileStore{path: filepath.Join(dataDir, "reg.dat")}
}

// Load reads the persisted document, returning a zero-value Persisted
// (no registration) if the file does not yet exist.
func (s *FileStore) Load() (Persisted, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Persisted{}, nil
		}
		return Persisted{}, err
	}

	var p Persisted
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warnf("remote: registration file corrupt, starting unregistered: %v", err)
		return Persisted{}, nil
	}
	return p, nil
}

// Save writes p atomically: a temp file in the same directory, then
// renamed over the real path.
func (s *FileStore) Save(p Persisted) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
