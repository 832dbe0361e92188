package kv_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/screenbreakers/internal/kv"
)

// exerciseStore runs the same contract checks against any Store.
func exerciseStore(t *testing.T, s kv.Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "user_name")
	require.NoError(t, err)
	assert.False(t, ok, "fresh store should not contain user_name")

	require.NoError(t, s.Set(ctx, "user_name", "Player 1"))
	v, ok, err := s.Get(ctx, "user_name")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Player 1", v)

	require.NoError(t, s.Set(ctx, "user_name", "Rival"))
	v, _, _ = s.Get(ctx, "user_name")
	assert.Equal(t, "Rival", v)

	require.NoError(t, s.Remove(ctx, "user_name"))
	_, ok, err = s.Get(ctx, "user_name")
	require.NoError(t, err)
	assert.False(t, ok)

	// removing a missing key is not an error
	require.NoError(t, s.Remove(ctx, "missing"))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, kv.NewMemory())
}

func TestFileStore(t *testing.T) {
	exerciseStore(t, mustOpenFile(t, filepath.Join(t.TempDir(), "settings.yaml")))
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")

	first := mustOpenFile(t, path)
	require.NoError(t, first.Set(ctx, "leaderboard_id", "A1B2C3D"))
	require.NoError(t, first.Set(ctx, "leaderboard_name", "Office: floor 3"))

	second := mustOpenFile(t, path)
	v, ok, err := second.Get(ctx, "leaderboard_id")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "A1B2C3D", v)
	v, _, _ = second.Get(ctx, "leaderboard_name")
	assert.Equal(t, "Office: floor 3", v)
}

func TestFileStoreRejectsCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- not\n- a\n- mapping\n"), 0o600))

	_, err := kv.OpenFile(path)
	assert.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	s := kv.NewRedis(rdb, "")
	exerciseStore(t, s)

	n, err := s.Incr(context.Background(), "accumulated_usage_minutes", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, "1", mr.HGet(kv.DefaultNamespace, "accumulated_usage_minutes"))
}

func mustOpenFile(t *testing.T, path string) *kv.File {
	t.Helper()
	f, err := kv.OpenFile(path)
	require.NoError(t, err)
	return f
}
