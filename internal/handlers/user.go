package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/jason-s-yu/screenbreakers/internal/models"
)

type ctxKey int

const userIDKey ctxKey = iota

// userIDFrom returns the caller set by RequireSession.
func userIDFrom(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(userIDKey).(uuid.UUID)
	return id
}

// RequireSession rejects requests without a valid bearer token and stores the
// caller's id in the request context.
func (s *APIServer) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, err := s.keys.AuthenticateJWT(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AnonymousSignInHandler exchanges a client-minted user id for a session
// token, creating the user row on first sight. The id is trusted as given.
func (s *APIServer) AnonymousSignInHandler(w http.ResponseWriter, r *http.Request) {
	var req models.AnonymousSignInRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	user, err := s.store.EnsureUser(r.Context(), req.UserID, req.Name)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	token, err := s.keys.CreateJWT(user.ID)
	if err != nil {
		s.logger.WithError(err).Error("failed to create session token")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.logger.WithField("user_id", user.ID).Debug("anonymous sign-in")
	writeJSON(w, http.StatusOK, models.SessionResponse{UserID: user.ID, Token: token})
}

// UpsertUserHandler sets the caller's display name.
func (s *APIServer) UpsertUserHandler(w http.ResponseWriter, r *http.Request) {
	caller := userIDFrom(r.Context())
	var req models.UpsertUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ID != uuid.Nil && req.ID != caller {
		writeError(w, http.StatusForbidden, "cannot modify another user")
		return
	}

	user, err := s.store.UpsertUser(r.Context(), caller, req.Name)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if user.CurrentLeaderboardID != nil {
		s.notify(r.Context(), models.RosterChange{
			Type:          models.RosterMemberRename,
			LeaderboardID: *user.CurrentLeaderboardID,
			UserID:        caller,
		})
	}
	writeJSON(w, http.StatusOK, user)
}
