// Package checkpoint persists a single monotonically-advancing cursor for a
// stream consumer. Each consumer owns exactly one cursor; the file-backed
// implementation survives crashes through a write-temp-then-rename update.
package checkpoint

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Store loads and saves one non-negative integer cursor.
type Store interface {
	// Load returns the last saved cursor. Missing or unreadable state
	// degrades to 0 so a consumer restarts from the beginning of its
	// stream instead of failing.
	Load() (int64, error)

	// Save durably records the cursor. A crash mid-save must leave the
	// previously saved value intact.
	Save(value int64) error
}

// FileStore keeps the cursor as a plain decimal integer in a single file.
type FileStore struct {
	path string
}

// NewFileStore creates a cursor store backed by the file at path. The file
// does not have to exist yet.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the cursor file. A missing file, unreadable content, or a
// negative value all yield 0 with no error: corrupt checkpoint state means
// "start over", never "crash".
func (s *FileStore) Load() (int64, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		// Missing file or any other read failure; the consumer restarts
		// from the beginning of its stream either way.
		return 0, nil
	}

	value, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil || value < 0 {
		return 0, nil
	}
	return value, nil
}

// Save writes the cursor to a temporary file and renames it over the
// checkpoint location. The rename is atomic on POSIX filesystems, so a
// torn write is never observable by a subsequent Load.
func (s *FileStore) Save(value int64) error {
	if value < 0 {
		return fmt.Errorf("saving checkpoint: negative cursor %d", value)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatInt(value, 10)), 0o644); err != nil {
		return fmt.Errorf("writing checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing checkpoint file: %w", err)
	}
	return nil
}
