package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/screenbreakers/internal/database"
	"github.com/jason-s-yu/screenbreakers/internal/models"
)

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 64 << 10

// extractBearerToken returns the token of an "Authorization: Bearer" header,
// or empty if there is none.
func extractBearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorResponse{Message: msg})
}

// writeStoreError maps a store failure onto a status. A missing user answers
// 401 so the client signs in again and recreates its row.
func (s *APIServer) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "leaderboard not found")
	case errors.Is(err, database.ErrUserNotFound):
		writeError(w, http.StatusUnauthorized, "user not found")
	default:
		s.logger.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("store failure")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
