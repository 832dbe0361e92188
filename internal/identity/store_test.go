package identity_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/screenbreakers/internal/identity"
	"github.com/jason-s-yu/screenbreakers/internal/kv"
	"github.com/jason-s-yu/screenbreakers/internal/models"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestGetSynthesizesIdentityOnce(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()

	first := identity.New(mem, quietLogger()).Get(ctx)
	require.NotEqual(t, uuid.Nil, first.UserID)
	assert.Equal(t, models.DefaultPlayerName, first.PlayerName)
	assert.False(t, first.InLeaderboard())

	// persisted immediately, not deferred
	raw, ok, _ := mem.Get(ctx, identity.KeyUserID)
	require.True(t, ok)
	assert.Equal(t, first.UserID.String(), raw)

	// a second store over the same kv (a restart) sees the same id
	second := identity.New(mem, quietLogger()).Get(ctx)
	assert.Equal(t, first.UserID, second.UserID)
	assert.Equal(t, first.PlayerName, second.PlayerName)
}

func TestLeaderboardMembershipPersists(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	s := identity.New(mem, quietLogger())

	s.SetPlayerName(ctx, "Alex")
	s.SetLeaderboard(ctx, "L1", "Leaderboard")
	s.SetLeaderboardName(ctx, "Night owls")

	restarted := identity.New(mem, quietLogger()).Get(ctx)
	assert.Equal(t, "Alex", restarted.PlayerName)
	assert.Equal(t, "L1", restarted.LeaderboardID)
	assert.Equal(t, "Night owls", restarted.LeaderboardName)

	cleared := s.ClearLeaderboard(ctx)
	assert.Empty(t, cleared.LeaderboardID)
	assert.Empty(t, cleared.LeaderboardName)

	restarted = identity.New(mem, quietLogger()).Get(ctx)
	assert.False(t, restarted.InLeaderboard())
	assert.Empty(t, restarted.LeaderboardName)
}

func TestSetLeaderboardNameWithoutLeaderboardIsNoop(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	s := identity.New(mem, quietLogger())

	id := s.SetLeaderboardName(ctx, "orphan")
	assert.Empty(t, id.LeaderboardName)
	_, ok, _ := mem.Get(ctx, identity.KeyLeaderboardName)
	assert.False(t, ok)
}

func TestEmptyPlayerNameFallsBackToDefault(t *testing.T) {
	s := identity.New(kv.NewMemory(), quietLogger())
	id := s.SetPlayerName(context.Background(), "")
	assert.Equal(t, models.DefaultPlayerName, id.PlayerName)
}

func TestCorruptUserIDIsReplaced(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	require.NoError(t, mem.Set(ctx, identity.KeyUserID, "not-a-uuid"))

	id := identity.New(mem, quietLogger()).Get(ctx)
	assert.NotEqual(t, uuid.Nil, id.UserID)
	raw, _, _ := mem.Get(ctx, identity.KeyUserID)
	assert.Equal(t, id.UserID.String(), raw)
}

// flakyKV wraps a kv.Store. Reads of a key fail while failReads[key] is
// positive; writes fail when failWrites is set.
type flakyKV struct {
	kv.Store
	failReads  map[string]int
	failWrites bool
}

var errIO = errors.New("i/o timeout")

func (f *flakyKV) Get(ctx context.Context, key string) (string, bool, error) {
	if f.failReads[key] > 0 {
		f.failReads[key]--
		return "", false, errIO
	}
	return f.Store.Get(ctx, key)
}

func (f *flakyKV) Set(ctx context.Context, key, value string) error {
	if f.failWrites {
		return errIO
	}
	return f.Store.Set(ctx, key, value)
}

func (f *flakyKV) Remove(ctx context.Context, key string) error {
	if f.failWrites {
		return errIO
	}
	return f.Store.Remove(ctx, key)
}

func TestWriteErrorsKeepInMemoryIdentity(t *testing.T) {
	ctx := context.Background()
	s := identity.New(&flakyKV{Store: kv.NewMemory(), failWrites: true}, quietLogger())

	id := s.Get(ctx)
	assert.NotEqual(t, uuid.Nil, id.UserID)
	assert.Equal(t, models.DefaultPlayerName, id.PlayerName)

	id = s.SetLeaderboard(ctx, "L9", "Leaderboard")
	assert.Equal(t, "L9", id.LeaderboardID)
	// the in-memory identity stays stable across calls
	assert.Equal(t, id, s.Get(ctx))
}

func TestReadErrorNeverMintsUserID(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	stored := uuid.New()
	require.NoError(t, mem.Set(ctx, identity.KeyUserID, stored.String()))
	require.NoError(t, mem.Set(ctx, identity.KeyPlayerName, "Alex"))

	s := identity.New(&flakyKV{Store: mem, failReads: map[string]int{identity.KeyUserID: 1}}, quietLogger())

	_, err := s.Load(ctx)
	require.ErrorIs(t, err, errIO)
	assert.Equal(t, uuid.Nil, s.Get(ctx).UserID)

	raw, _, _ := mem.Get(ctx, identity.KeyUserID)
	assert.Equal(t, stored.String(), raw)

	// the failure was not cached
	id, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, stored, id.UserID)
	assert.Equal(t, "Alex", id.PlayerName)
}

func TestReadErrorKeepsMembership(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	seed := identity.New(mem, quietLogger())
	want := seed.SetLeaderboard(ctx, "L1", "Night owls")

	s := identity.New(&flakyKV{Store: mem, failReads: map[string]int{identity.KeyLeaderboardID: 1}}, quietLogger())

	got := s.Get(ctx)
	assert.False(t, got.InLeaderboard())

	got = s.Get(ctx)
	assert.Equal(t, want, got)
}

func TestNilLoggerDefaults(t *testing.T) {
	s := identity.New(kv.NewMemory(), nil)
	assert.NotEqual(t, uuid.Nil, s.Get(context.Background()).UserID)
}
