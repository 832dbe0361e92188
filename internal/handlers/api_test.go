package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/screenbreakers/internal/auth"
	"github.com/jason-s-yu/screenbreakers/internal/kv"
	"github.com/jason-s-yu/screenbreakers/internal/models"
	"github.com/jason-s-yu/screenbreakers/internal/remote"
)

// today is the server clock of every test; usage is keyed by its day.
var today = time.Date(2026, time.October, 15, 12, 0, 0, 0, time.UTC)

type apiFixture struct {
	store    *memStore
	notifier *memNotifier
	keys     *auth.Keys
	srv      *httptest.Server
}

func newAPIFixture(t *testing.T, rpcLimit int) *apiFixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	keys, err := auth.Generate(time.Hour)
	require.NoError(t, err)

	f := &apiFixture{store: newMemStore(), notifier: newMemNotifier(), keys: keys}
	f.srv = httptest.NewServer(NewRouter(Options{
		Store:          f.store,
		Notifier:       f.notifier,
		Keys:           keys,
		Logger:         logger,
		AllowedOrigins: []string{"*"},
		RPCRateLimit:   rpcLimit,
		Now:            func() time.Time { return today },
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *apiFixture) client(t *testing.T, tokens kv.Store) *remote.HTTPClient {
	t.Helper()
	logger, _ := test.NewNullLogger()
	c, err := remote.NewHTTPClient(f.srv.URL, tokens, logger, remote.WithWatchBackoff(10*time.Millisecond, 50*time.Millisecond))
	require.NoError(t, err)
	return c
}

// signIn registers a fresh user named name and returns its id and client.
func (f *apiFixture) signIn(t *testing.T, ctx context.Context, name string) (uuid.UUID, *remote.HTTPClient) {
	t.Helper()
	c := f.client(t, kv.NewMemory())
	id, err := c.CreateOrUpdateUser(ctx, uuid.New(), name)
	require.NoError(t, err)
	return id, c
}

func (f *apiFixture) post(t *testing.T, path, token string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, f.srv.URL+path, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSignInAndRename(t *testing.T) {
	f := newAPIFixture(t, 0)
	ctx := testContext(t)

	tokens := kv.NewMemory()
	c := f.client(t, tokens)
	userID := uuid.New()

	got, err := c.CreateOrUpdateUser(ctx, userID, "Alice")
	require.NoError(t, err)
	assert.Equal(t, userID, got)

	tok, ok, err := tokens.Get(ctx, remote.KeySessionToken)
	require.NoError(t, err)
	require.True(t, ok)
	sub, err := f.keys.AuthenticateJWT(tok)
	require.NoError(t, err)
	assert.Equal(t, userID, sub)

	// a second call reuses the session
	_, err = c.CreateOrUpdateUser(ctx, userID, "Alice B")
	require.NoError(t, err)
	u, err := f.store.EnsureUser(ctx, userID, "")
	require.NoError(t, err)
	assert.Equal(t, "Alice B", u.Name)
}

func TestLeaderboardRoundTrip(t *testing.T) {
	f := newAPIFixture(t, 0)
	ctx := testContext(t)

	alice, ac := f.signIn(t, ctx, "Alice")
	bob, bc := f.signIn(t, ctx, "Bob")

	id, err := ac.CreateLeaderboard(ctx, models.DefaultLeaderboardName)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.NoError(t, bc.JoinLeaderboard(ctx, id))

	require.NoError(t, ac.UpdateDailyUsage(ctx, alice, today.Day(), 12))
	require.NoError(t, bc.UpdateDailyUsage(ctx, bob, today.Day(), 30))
	// yesterday's row is not today's
	require.NoError(t, bc.UpdateDailyUsage(ctx, bob, today.Day()-1, 99))

	require.NoError(t, bc.UpdateLeaderboardName(ctx, id, "Night owls"))

	members, err := ac.GetLeaderboardData(ctx, id)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, models.Member{UserID: alice, UserName: "Alice", TodayMinutes: 12, LeaderboardName: "Night owls"}, members[0])
	assert.Equal(t, models.Member{UserID: bob, UserName: "Bob", TodayMinutes: 30, LeaderboardName: "Night owls"}, members[1])
}

func TestUnknownLeaderboardIsNotFound(t *testing.T) {
	f := newAPIFixture(t, 0)
	ctx := testContext(t)
	_, c := f.signIn(t, ctx, "Alice")

	err := c.JoinLeaderboard(ctx, "NOPE000")
	assert.True(t, remote.IsNotFound(err), "got %v", err)

	_, err = c.GetLeaderboardData(ctx, "NOPE000")
	assert.True(t, remote.IsNotFound(err), "got %v", err)

	err = c.UpdateLeaderboardName(ctx, "NOPE000", "x")
	assert.True(t, remote.IsNotFound(err), "got %v", err)
}

func TestEmptyLeaderboardListsNoMembers(t *testing.T) {
	f := newAPIFixture(t, 0)
	ctx := testContext(t)
	_, ac := f.signIn(t, ctx, "Alice")
	_, bc := f.signIn(t, ctx, "Bob")

	first, err := ac.CreateLeaderboard(ctx, "")
	require.NoError(t, err)
	_, err = ac.CreateLeaderboard(ctx, "")
	require.NoError(t, err)

	// alice moved on; bob can still read the abandoned board
	members, err := bc.GetLeaderboardData(ctx, first)
	require.NoError(t, err)
	assert.NotNil(t, members)
	assert.Empty(t, members)
}

func TestMissingTokenIsRejected(t *testing.T) {
	f := newAPIFixture(t, 0)

	resp := f.post(t, "/leaderboards", "", models.CreateLeaderboardRequest{Name: "x"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var body models.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body.Message)

	resp = f.post(t, "/leaderboards", "garbage", models.CreateLeaderboardRequest{Name: "x"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUnknownUserDropsSession(t *testing.T) {
	f := newAPIFixture(t, 0)
	ctx := testContext(t)

	// a token whose user row no longer exists, e.g. after a database reset
	tok, err := f.keys.CreateJWT(uuid.New())
	require.NoError(t, err)
	tokens := kv.NewMemory()
	require.NoError(t, tokens.Set(ctx, remote.KeySessionToken, tok))
	c := f.client(t, tokens)

	_, err = c.CreateLeaderboard(ctx, "Board")
	require.True(t, errors.Is(err, remote.ErrUnauthenticated), "got %v", err)
	_, ok, err := tokens.Get(ctx, remote.KeySessionToken)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateDailyUsageValidation(t *testing.T) {
	f := newAPIFixture(t, 0)
	ctx := testContext(t)
	alice, _ := f.signIn(t, ctx, "Alice")
	tok, err := f.keys.CreateJWT(alice)
	require.NoError(t, err)

	cases := []struct {
		name   string
		params models.UpdateDailyUsageParams
		status int
	}{
		{"ok", models.UpdateDailyUsageParams{UserID: alice, Day: 31, Minutes: 0}, http.StatusNoContent},
		{"day zero", models.UpdateDailyUsageParams{UserID: alice, Day: 0, Minutes: 1}, http.StatusBadRequest},
		{"day 32", models.UpdateDailyUsageParams{UserID: alice, Day: 32, Minutes: 1}, http.StatusBadRequest},
		{"negative minutes", models.UpdateDailyUsageParams{UserID: alice, Day: 1, Minutes: -1}, http.StatusBadRequest},
		{"other user", models.UpdateDailyUsageParams{UserID: uuid.New(), Day: 1, Minutes: 1}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := f.post(t, "/rpc/update_daily_usage", tok, tc.params)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestRPCRateLimit(t *testing.T) {
	f := newAPIFixture(t, 2)
	ctx := testContext(t)
	alice, _ := f.signIn(t, ctx, "Alice")
	tok, err := f.keys.CreateJWT(alice)
	require.NoError(t, err)

	params := models.UpdateDailyUsageParams{UserID: alice, Day: 1, Minutes: 1}
	assert.Equal(t, http.StatusNoContent, f.post(t, "/rpc/update_daily_usage", tok, params).StatusCode)
	assert.Equal(t, http.StatusNoContent, f.post(t, "/rpc/update_daily_usage", tok, params).StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, f.post(t, "/rpc/update_daily_usage", tok, params).StatusCode)

	// the limit only covers /rpc
	assert.Equal(t, http.StatusCreated, f.post(t, "/leaderboards", tok, models.CreateLeaderboardRequest{}).StatusCode)
}

func TestRosterStream(t *testing.T) {
	f := newAPIFixture(t, 0)
	ctx := testContext(t)
	_, ac := f.signIn(t, ctx, "Alice")
	bob, bc := f.signIn(t, ctx, "Bob")

	id, err := ac.CreateLeaderboard(ctx, "Board")
	require.NoError(t, err)

	watchCtx, stop := context.WithCancel(ctx)
	changes := make(chan models.RosterChange, 8)
	done := make(chan error, 1)
	go func() {
		done <- ac.WatchRoster(watchCtx, id, func(c models.RosterChange) { changes <- c })
	}()
	require.Eventually(t, func() bool { return f.notifier.subscribers(id) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, bc.JoinLeaderboard(ctx, id))
	select {
	case got := <-changes:
		assert.Equal(t, models.RosterJoin, got.Type)
		assert.Equal(t, id, got.LeaderboardID)
		assert.Equal(t, bob, got.UserID)
		assert.Equal(t, today.UnixMilli(), got.Timestamp)
	case <-ctx.Done():
		t.Fatal("no roster change received")
	}

	stop()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-ctx.Done():
		t.Fatal("WatchRoster did not return")
	}
	require.Eventually(t, func() bool { return f.notifier.subscribers(id) == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestRosterStreamUnknownLeaderboard(t *testing.T) {
	f := newAPIFixture(t, 0)
	ctx := testContext(t)
	_, c := f.signIn(t, ctx, "Alice")

	err := c.WatchRoster(ctx, "NOPE000", func(models.RosterChange) {})
	assert.True(t, remote.IsNotFound(err), "got %v", err)
}

func TestPing(t *testing.T) {
	f := newAPIFixture(t, 0)
	resp, err := http.Get(f.srv.URL + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
