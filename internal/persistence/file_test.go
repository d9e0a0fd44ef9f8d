package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(t.TempDir(), zerolog.Nop())
}

func TestFileStoreWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t)

	require.NoError(t, s.Write(ctx, "signal/trend/BTCUSDT", "abc-123", []byte(`{"id":"abc-123"}`)))

	data, err := s.Read(ctx, "signal/trend/BTCUSDT", "abc-123")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"abc-123"}`, string(data))
}

func TestFileStoreReadMissingReturnsErrNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t)

	_, err := s.Read(ctx, "signal/trend/BTCUSDT", "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFileStoreWriteOverwritesAtomically(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t)

	require.NoError(t, s.Write(ctx, "ns", "k", []byte("first")))
	require.NoError(t, s.Write(ctx, "ns", "k", []byte("second")))

	data, err := s.Read(ctx, "ns", "k")
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestFileStoreRemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t)

	require.NoError(t, s.Write(ctx, "ns", "k", []byte("v")))
	require.NoError(t, s.Remove(ctx, "ns", "k"))
	require.NoError(t, s.Remove(ctx, "ns", "k")) // removing twice is not an error

	_, err := s.Read(ctx, "ns", "k")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFileStoreList(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t)

	require.NoError(t, s.Write(ctx, "ns", "a", []byte("1")))
	require.NoError(t, s.Write(ctx, "ns", "b", []byte("2")))

	ids, err := s.List(ctx, "ns")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestFileStoreListOnMissingNamespaceIsEmptyNotError(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t)

	ids, err := s.List(ctx, "never-written")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestFileStoreInitRemovesCorruptEntries(t *testing.T) {
	ctx := context.Background()
	s := newTestFileStore(t)

	require.NoError(t, s.Write(ctx, "signal/trend/BTCUSDT", "good", []byte(`{"id":"good"}`)))
	require.NoError(t, s.Write(ctx, "signal/trend/BTCUSDT", "bad", []byte(`not json`)))

	verify := func(namespace, entityID string, value []byte) error {
		if entityID == "bad" {
			return errors.New("invalid record")
		}
		return nil
	}
	require.NoError(t, s.Init(ctx, verify))

	ids, err := s.List(ctx, "signal/trend/BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, ids)
}

func TestFileStoreInitOnFreshRootCreatesIt(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir()+"/nested/root", zerolog.Nop())
	require.NoError(t, s.Init(ctx, nil))

	ids, err := s.List(ctx, "anything")
	require.NoError(t, err)
	assert.Empty(t, ids)
}
