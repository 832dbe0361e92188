package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/screenbreakers/internal/models"
)

// CreateLeaderboardHandler creates a leaderboard and moves the caller into it.
func (s *APIServer) CreateLeaderboardHandler(w http.ResponseWriter, r *http.Request) {
	caller := userIDFrom(r.Context())
	var req models.CreateLeaderboardRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	lb, err := s.store.CreateLeaderboard(r.Context(), caller, req.Name)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.logger.WithFields(logrus.Fields{"leaderboard_id": lb.ID, "user_id": caller}).Info("leaderboard created")
	writeJSON(w, http.StatusCreated, lb)
}

// JoinLeaderboardHandler moves the caller into the leaderboard in the path.
// Both the old and the new roster are notified.
func (s *APIServer) JoinLeaderboardHandler(w http.ResponseWriter, r *http.Request) {
	caller := userIDFrom(r.Context())
	id := chi.URLParam(r, "id")

	previous, err := s.store.UserLeaderboard(r.Context(), caller)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if err := s.store.JoinLeaderboard(r.Context(), caller, id); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	if previous != id {
		s.notify(r.Context(), models.RosterChange{Type: models.RosterJoin, LeaderboardID: previous, UserID: caller})
		s.notify(r.Context(), models.RosterChange{Type: models.RosterJoin, LeaderboardID: id, UserID: caller})
	}
	w.WriteHeader(http.StatusNoContent)
}

// RenameLeaderboardHandler renames the leaderboard for every member.
func (s *APIServer) RenameLeaderboardHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req models.RenameLeaderboardRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.store.RenameLeaderboard(r.Context(), id, req.Name); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.notify(r.Context(), models.RosterChange{
		Type:          models.RosterRename,
		LeaderboardID: id,
		UserID:        userIDFrom(r.Context()),
	})
	w.WriteHeader(http.StatusNoContent)
}
