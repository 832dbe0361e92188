package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/screenbreakers/internal/kv"
	"github.com/jason-s-yu/screenbreakers/internal/models"
)

// KeySessionToken is the kv key holding the bearer token between runs.
const KeySessionToken = "session_token"

// HTTPClient implements Client and RosterWatcher against the leaderboard API.
type HTTPClient struct {
	baseURL *url.URL
	http    *http.Client
	tokens  kv.Store
	logger  logrus.FieldLogger

	retryFloor time.Duration
	retryCeil  time.Duration

	mu     sync.Mutex
	token  string
	loaded bool
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.http = hc }
}

// WithWatchBackoff bounds the reconnect delay of WatchRoster.
func WithWatchBackoff(floor, ceil time.Duration) Option {
	return func(c *HTTPClient) {
		c.retryFloor = floor
		c.retryCeil = ceil
	}
}

// NewHTTPClient builds a client for the API rooted at baseURL. The session
// token is cached in tokens under KeySessionToken.
func NewHTTPClient(baseURL string, tokens kv.Store, logger logrus.FieldLogger, opts ...Option) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid api url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid api url %q: scheme must be http or https", baseURL)
	}
	c := &HTTPClient{
		baseURL:    u,
		http:       &http.Client{Timeout: 15 * time.Second},
		tokens:     tokens,
		logger:     logger.WithField("component", "remote"),
		retryFloor: 500 * time.Millisecond,
		retryCeil:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateOrUpdateUser signs in anonymously when no session exists, then
// upserts the user's name.
func (c *HTTPClient) CreateOrUpdateUser(ctx context.Context, userID uuid.UUID, name string) (uuid.UUID, error) {
	if err := c.ensureSession(ctx, userID, name); err != nil {
		return uuid.Nil, err
	}
	var user models.User
	err := c.do(ctx, http.MethodPut, "/users/me", models.UpsertUserRequest{ID: userID, Name: name}, &user)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upsert user %s: %w", userID, err)
	}
	return user.ID, nil
}

func (c *HTTPClient) CreateLeaderboard(ctx context.Context, name string) (string, error) {
	var lb models.Leaderboard
	if err := c.do(ctx, http.MethodPost, "/leaderboards", models.CreateLeaderboardRequest{Name: name}, &lb); err != nil {
		return "", fmt.Errorf("create leaderboard: %w", err)
	}
	return lb.ID, nil
}

func (c *HTTPClient) JoinLeaderboard(ctx context.Context, leaderboardID string) error {
	path := "/leaderboards/" + url.PathEscape(leaderboardID) + "/join"
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("join leaderboard %s: %w", leaderboardID, err)
	}
	return nil
}

func (c *HTTPClient) UpdateDailyUsage(ctx context.Context, userID uuid.UUID, day, minutes int) error {
	params := models.UpdateDailyUsageParams{UserID: userID, Day: day, Minutes: minutes}
	if err := c.do(ctx, http.MethodPost, "/rpc/update_daily_usage", params, nil); err != nil {
		return fmt.Errorf("update daily usage: %w", err)
	}
	return nil
}

func (c *HTTPClient) GetLeaderboardData(ctx context.Context, leaderboardID string) ([]models.Member, error) {
	var members []models.Member
	params := models.GetLeaderboardDataParams{LeaderboardID: leaderboardID}
	if err := c.do(ctx, http.MethodPost, "/rpc/get_leaderboard_data", params, &members); err != nil {
		return nil, fmt.Errorf("get leaderboard %s: %w", leaderboardID, err)
	}
	return members, nil
}

func (c *HTTPClient) UpdateLeaderboardName(ctx context.Context, leaderboardID, name string) error {
	path := "/leaderboards/" + url.PathEscape(leaderboardID)
	if err := c.do(ctx, http.MethodPatch, path, models.RenameLeaderboardRequest{Name: name}, nil); err != nil {
		return fmt.Errorf("rename leaderboard %s: %w", leaderboardID, err)
	}
	return nil
}

// ensureSession exchanges the user id for a bearer token if none is cached.
func (c *HTTPClient) ensureSession(ctx context.Context, userID uuid.UUID, name string) error {
	if c.currentToken(ctx) != "" {
		return nil
	}
	var sess models.SessionResponse
	req := models.AnonymousSignInRequest{UserID: userID, Name: name}
	if err := c.send(ctx, http.MethodPost, "/auth/anonymous", req, &sess, ""); err != nil {
		return fmt.Errorf("anonymous sign-in: %w", err)
	}
	if sess.Token == "" {
		return fmt.Errorf("anonymous sign-in: %w: empty token", ErrUnauthenticated)
	}
	c.setToken(ctx, sess.Token)
	c.logger.WithField("user_id", sess.UserID).Info("signed in anonymously")
	return nil
}

func (c *HTTPClient) currentToken(ctx context.Context) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		tok, _, err := c.tokens.Get(ctx, KeySessionToken)
		if err != nil {
			c.logger.WithError(err).Warn("failed to load session token")
		}
		c.token = tok
		c.loaded = true
	}
	return c.token
}

func (c *HTTPClient) setToken(ctx context.Context, tok string) {
	c.mu.Lock()
	c.token = tok
	c.loaded = true
	c.mu.Unlock()

	var err error
	if tok == "" {
		err = c.tokens.Remove(ctx, KeySessionToken)
	} else {
		err = c.tokens.Set(ctx, KeySessionToken, tok)
	}
	if err != nil {
		c.logger.WithError(err).Warn("failed to persist session token")
	}
}

// do performs an authenticated request. A 401 drops the cached token so the
// next CreateOrUpdateUser signs in again.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	tok := c.currentToken(ctx)
	if tok == "" {
		return ErrUnauthenticated
	}
	err := c.send(ctx, method, path, body, out, tok)
	if errors.Is(err, ErrUnauthenticated) {
		c.setToken(ctx, "")
	}
	return err
}

func (c *HTTPClient) send(ctx context.Context, method, path string, body, out any, tok string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrServer, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode %s %s response: %w", ErrServer, method, path, err)
	}
	return nil
}

// statusError maps an HTTP status to the error taxonomy.
func statusError(resp *http.Response) error {
	var body models.ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(raw, &body); err != nil || body.Message == "" {
		body.Message = strings.TrimSpace(string(raw))
	}

	var kind error
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = ErrUnauthenticated
	case http.StatusNotFound:
		kind = ErrNotFound
	default:
		kind = ErrServer
	}
	return fmt.Errorf("%w: status %d: %s", kind, resp.StatusCode, body.Message)
}
