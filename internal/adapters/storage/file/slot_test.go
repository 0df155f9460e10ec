package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadMissingFileIsEmpty(t *testing.T) {
	s, err := NewSlot(filepath.Join(t.TempDir(), "nested", "sessions.json"))
	require.NoError(t, err)

	data, err := s.Read(context.Background())
	require.NoError(t, err)
	require.Nil(t, data)
}

func TestWriteReplacesContent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewSlot(filepath.Join(dir, "data", "sessions.json"))
	require.NoError(t, err)

	require.NoError(t, s.Write(ctx, []byte(`{"version":2,"sessions":[]}`)))
	require.NoError(t, s.Write(ctx, []byte(`[]`)))

	data, err := s.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, "[]", string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "data"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWriteHonorsCancelledContext(t *testing.T) {
	s, err := NewSlot(filepath.Join(t.TempDir(), "sessions.json"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.Write(ctx, []byte("[]")), context.Canceled)
}

func TestNewSlotRequiresPath(t *testing.T) {
	_, err := NewSlot("")
	require.Error(t, err)
}
