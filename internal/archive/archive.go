// Package archive persists accepted messages as .eml files for later
// inspection.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Store writes raw messages into a directory, one file per message.
type Store struct {
	dir string
}

// New creates a Store rooted at dir. The directory must already exist.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Save writes raw to a fresh .eml file named after the current Unix time
// plus a short unique suffix, and returns the file path. File permissions
// restrict the archive to the owning user.
func (s *Store) Save(raw []byte) (string, error) {
	name := fmt.Sprintf("%d-%s.eml", time.Now().Unix(), uuid.New().String()[:8])
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}
