package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	registryblob "github.com/chirino/solace-bridge/internal/registry/blob"
)

func TestPutGetDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "message-1.json", []byte(`{"a":1}`)))
	data, err := s.Get(ctx, "message-1.json")
	require.NoError(t, err)
	require.Equal(t, []byte(`{"a":1}`), data)

	_, err = s.Get(ctx, "missing.json")
	require.ErrorIs(t, err, registryblob.ErrNotFound)

	require.NoError(t, s.Delete(ctx, "message-1.json"))
	require.ErrorIs(t, s.Delete(ctx, "message-1.json"), registryblob.ErrNotFound)
}

func TestGetReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "b", []byte("abc")))

	data, err := s.Get(ctx, "b")
	require.NoError(t, err)
	data[0] = 'X'

	again, err := s.Get(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), again)
}

func TestListNewestFirstWithPrefixAndLimit(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "message-old.json", []byte("1")))
	require.NoError(t, s.Put(ctx, "transformation-x.json", []byte("2")))
	require.NoError(t, s.Put(ctx, "message-new.json", []byte("3")))

	names, err := s.List(ctx, "message-", 0)
	require.NoError(t, err)
	require.Equal(t, []string{"message-new.json", "message-old.json"}, names)

	names, err = s.List(ctx, "message-", 1)
	require.NoError(t, err)
	require.Equal(t, []string{"message-new.json"}, names)

	// Overwriting refreshes recency.
	require.NoError(t, s.Put(ctx, "message-old.json", []byte("4")))
	names, err = s.List(ctx, "message-", 0)
	require.NoError(t, err)
	require.Equal(t, []string{"message-old.json", "message-new.json"}, names)
}
