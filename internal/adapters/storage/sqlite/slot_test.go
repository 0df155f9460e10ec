package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "slots.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSlotReadWrite(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	slot := db.Slot("blue_shark_ai_sessions")

	data, err := slot.Read(ctx)
	require.NoError(t, err)
	require.Nil(t, data)

	require.NoError(t, slot.Write(ctx, []byte(`{"version":2}`)))
	require.NoError(t, slot.Write(ctx, []byte(`{"version":2,"sessions":[]}`)))

	data, err = slot.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, `{"version":2,"sessions":[]}`, string(data))
}

func TestSlotsAreIsolatedByKey(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	require.NoError(t, db.Slot("a").Write(ctx, []byte("one")))
	require.NoError(t, db.Slot("b").Write(ctx, []byte("two")))

	data, err := db.Slot("a").Read(ctx)
	require.NoError(t, err)
	require.Equal(t, "one", string(data))

	keys, err := db.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, keys)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "slots.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Slot("k").Write(ctx, []byte("persisted")))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	data, err := db.Slot("k").Read(ctx)
	require.NoError(t, err)
	require.Equal(t, "persisted", string(data))
}

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}
