package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlotCopiesData(t *testing.T) {
	ctx := context.Background()
	s := NewSlot()

	data, err := s.Read(ctx)
	require.NoError(t, err)
	require.Nil(t, data)

	buf := []byte("abc")
	require.NoError(t, s.Write(ctx, buf))
	buf[0] = 'x'

	data, err = s.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, "abc", string(data))
	require.Equal(t, 1, s.Writes())
}

func TestSlotFailWrites(t *testing.T) {
	s := NewSlotWithData([]byte("old"))
	s.FailWrites = errors.New("disk full")

	require.Error(t, s.Write(context.Background(), []byte("new")))
	data, err := s.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, "old", string(data))
	require.Zero(t, s.Writes())
}
