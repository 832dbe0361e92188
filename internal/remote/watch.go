package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/coder/retry"
	"github.com/coder/websocket"

	"github.com/jason-s-yu/screenbreakers/internal/models"
)

// RosterSubprotocol is the websocket subprotocol spoken by the roster stream.
const RosterSubprotocol = "roster"

// WatchRoster follows the roster stream of leaderboardID and calls onChange
// for every message. Dropped connections are re-dialled with exponential
// back-off. It returns ErrNotFound when the leaderboard no longer exists and
// ctx.Err() when ctx ends.
func (c *HTTPClient) WatchRoster(ctx context.Context, leaderboardID string, onChange func(models.RosterChange)) error {
	logger := c.logger.WithField("leaderboard_id", leaderboardID)
	wsURL := c.websocketURL("/leaderboards/" + url.PathEscape(leaderboardID) + "/ws")

	for r := retry.New(c.retryFloor, c.retryCeil); r.Wait(ctx); {
		tok := c.currentToken(ctx)
		if tok == "" {
			logger.Debug("no session yet, waiting before watching roster")
			continue
		}

		conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
			HTTPClient:   c.http,
			HTTPHeader:   http.Header{"Authorization": []string{"Bearer " + tok}},
			Subprotocols: []string{RosterSubprotocol},
		})
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusNotFound {
				return fmt.Errorf("watch roster %s: %w", leaderboardID, ErrNotFound)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.WithError(err).Warn("roster websocket dial failed")
			continue
		}
		r.Reset()
		logger.Debug("roster websocket connected")

		err = c.readRoster(ctx, conn, onChange)
		conn.Close(websocket.StatusNormalClosure, "")
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.WithError(err).Info("roster websocket disconnected")
	}
	return ctx.Err()
}

func (c *HTTPClient) readRoster(ctx context.Context, conn *websocket.Conn, onChange func(models.RosterChange)) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var change models.RosterChange
		if err := json.Unmarshal(data, &change); err != nil {
			c.logger.WithError(err).Warn("invalid roster message")
			continue
		}
		onChange(change)
	}
}

func (c *HTTPClient) websocketURL(path string) string {
	u := *c.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String() + path
}

// IsNotFound reports whether err means the leaderboard does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
