// Package file stores the session blob in a single JSON file.
package file

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// Slot is a file-backed persistence slot. Writes replace the file
// atomically, so a crash leaves either the old or the new blob.
type Slot struct {
	mu   sync.Mutex
	path string
}

func NewSlot(path string) (*Slot, error) {
	if path == "" {
		return nil, errors.New("file slot: empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "file slot: resolving path")
	}
	return &Slot{path: abs}, nil
}

// Path returns the absolute location of the slot file.
func (s *Slot) Path() string {
	return s.path
}

func (s *Slot) Read(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "file slot: reading %s", s.path)
	}
	return data, nil
}

func (s *Slot) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(err, "file slot: creating directory")
	}

	f, err := os.CreateTemp(dir, ".sessions-*.tmp")
	if err != nil {
		return errors.Wrap(err, "file slot: creating temp file")
	}
	tmp := f.Name()

	ok := false
	defer func() {
		if !ok {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return errors.Wrap(err, "file slot: writing temp file")
	}
	if err := f.Sync(); err != nil {
		return errors.Wrap(err, "file slot: syncing temp file")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "file slot: closing temp file")
	}
	if err := os.Chmod(tmp, 0o600); err != nil {
		return errors.Wrap(err, "file slot: setting permissions")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "file slot: replacing slot file")
	}
	ok = true
	return nil
}
