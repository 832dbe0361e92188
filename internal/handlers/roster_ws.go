// internal/handlers/roster_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/screenbreakers/internal/middleware"
	"github.com/jason-s-yu/screenbreakers/internal/models"
	"github.com/jason-s-yu/screenbreakers/internal/remote"
)

const rosterWriteTimeout = 5 * time.Second

// RosterWSHandler streams roster changes of one leaderboard to the client.
// The stream is one-way; anything the client sends is discarded. A missing
// leaderboard is answered with a plain 404 before the upgrade.
func (s *APIServer) RosterWSHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	caller := userIDFrom(r.Context())
	logger := s.logger.WithFields(logrus.Fields{"leaderboard_id": id, "user_id": caller})

	exists, err := s.store.LeaderboardExists(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "leaderboard not found")
		return
	}
	if s.notifier == nil {
		writeError(w, http.StatusServiceUnavailable, "roster stream unavailable")
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{remote.RosterSubprotocol},
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		logger.WithError(err).Warn("websocket accept error")
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler finished")

	if c.Subprotocol() != remote.RosterSubprotocol {
		c.Close(BadSubprotocolError, "client must speak the roster subprotocol")
		return
	}

	// CloseRead cancels ctx once the client goes away.
	ctx := c.CloseRead(r.Context())
	changes, err := s.notifier.Subscribe(ctx, id)
	if err != nil {
		logger.WithError(err).Warn("roster subscribe failed")
		c.Close(RosterUnavailableError, "roster stream unavailable")
		return
	}

	middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)
	err = relayRoster(ctx, c, changes)
	middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, err)

	if err == nil {
		c.Close(websocket.StatusGoingAway, "roster stream ended")
	}
}

// relayRoster writes every change until the subscription or ctx ends. It
// returns nil when the subscription closed on its own.
func relayRoster(ctx context.Context, c *websocket.Conn, changes <-chan models.RosterChange) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case change, ok := <-changes:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return nil
			}
			data, err := json.Marshal(change)
			if err != nil {
				return err
			}
			writeCtx, cancel := context.WithTimeout(ctx, rosterWriteTimeout)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
