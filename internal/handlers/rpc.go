package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/jason-s-yu/screenbreakers/internal/models"
)

// UpdateDailyUsageHandler records the caller's minutes for a day of month.
// The latest report wins.
func (s *APIServer) UpdateDailyUsageHandler(w http.ResponseWriter, r *http.Request) {
	caller := userIDFrom(r.Context())
	var p models.UpdateDailyUsageParams
	if !decodeJSON(w, r, &p) {
		return
	}
	switch {
	case p.UserID != uuid.Nil && p.UserID != caller:
		writeError(w, http.StatusForbidden, "cannot report usage for another user")
		return
	case p.Day < 1 || p.Day > 31:
		writeError(w, http.StatusBadRequest, "p_day must be between 1 and 31")
		return
	case p.Minutes < 0:
		writeError(w, http.StatusBadRequest, "p_minutes must not be negative")
		return
	}

	if err := s.store.UpdateDailyUsage(r.Context(), caller, p.Day, p.Minutes); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	if current, err := s.store.UserLeaderboard(r.Context(), caller); err != nil {
		s.logger.WithError(err).WithField("user_id", caller).Warn("failed to look up leaderboard for usage notification")
	} else {
		s.notify(r.Context(), models.RosterChange{Type: models.RosterUsage, LeaderboardID: current, UserID: caller})
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetLeaderboardDataHandler lists the members of a leaderboard with today's
// minutes. Today is the server's day of month.
func (s *APIServer) GetLeaderboardDataHandler(w http.ResponseWriter, r *http.Request) {
	var p models.GetLeaderboardDataParams
	if !decodeJSON(w, r, &p) {
		return
	}
	if p.LeaderboardID == "" {
		writeError(w, http.StatusBadRequest, "p_leaderboard_id is required")
		return
	}

	members, err := s.store.GetLeaderboardData(r.Context(), p.LeaderboardID, s.now().Day())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if members == nil {
		members = []models.Member{}
	}
	writeJSON(w, http.StatusOK, members)
}
