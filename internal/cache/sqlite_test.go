package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache", "verdicts.db"), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_PutGet(t *testing.T) {
	s := openTemp(t, 0)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "k", `{"action":"PASS"}`))
	require.NoError(t, s.Put(ctx, "k", `{"action":"ERROR"}`))

	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"action":"ERROR"}`, v)

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_TTL(t *testing.T) {
	s := openTemp(t, time.Hour)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return base }

	require.NoError(t, s.Put(ctx, "old", "v"))

	s.now = func() time.Time { return base.Add(30 * time.Minute) }
	_, ok, err := s.Get(ctx, "old")
	require.NoError(t, err)
	assert.True(t, ok, "entry inside ttl")

	s.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, ok, err = s.Get(ctx, "old")
	require.NoError(t, err)
	assert.False(t, ok, "entry past ttl")

	removed, err := s.Prune(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)
}
