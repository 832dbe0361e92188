// internal/handlers/api_server.go
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/screenbreakers/internal/auth"
	"github.com/jason-s-yu/screenbreakers/internal/middleware"
	"github.com/jason-s-yu/screenbreakers/internal/models"
)

// Store is the persistence the API needs. *database.Store implements it.
type Store interface {
	EnsureUser(ctx context.Context, id uuid.UUID, name string) (models.User, error)
	UpsertUser(ctx context.Context, id uuid.UUID, name string) (models.User, error)
	UserLeaderboard(ctx context.Context, userID uuid.UUID) (string, error)
	CreateLeaderboard(ctx context.Context, userID uuid.UUID, name string) (models.Leaderboard, error)
	JoinLeaderboard(ctx context.Context, userID uuid.UUID, leaderboardID string) error
	RenameLeaderboard(ctx context.Context, leaderboardID, name string) error
	UpdateDailyUsage(ctx context.Context, userID uuid.UUID, day, minutes int) error
	GetLeaderboardData(ctx context.Context, leaderboardID string, day int) ([]models.Member, error)
	LeaderboardExists(ctx context.Context, leaderboardID string) (bool, error)
}

// Notifier fans roster changes out to websocket subscribers. *cache.Roster
// implements it.
type Notifier interface {
	Publish(ctx context.Context, change models.RosterChange) error
	Subscribe(ctx context.Context, leaderboardID string) (<-chan models.RosterChange, error)
}

// Options configures the API server.
type Options struct {
	Store    Store
	Notifier Notifier
	Keys     *auth.Keys
	Logger   logrus.FieldLogger

	AllowedOrigins []string
	// RPCRateLimit is the per-IP request budget per minute on /rpc. Zero
	// disables limiting.
	RPCRateLimit int
	// Now defaults to time.Now; its day of month keys usage reads.
	Now func() time.Time
}

// APIServer holds the dependencies shared by every handler.
type APIServer struct {
	store    Store
	notifier Notifier
	keys     *auth.Keys
	logger   logrus.FieldLogger
	now      func() time.Time
}

// NewRouter builds the HTTP API.
func NewRouter(opts Options) http.Handler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &APIServer{
		store:    opts.Store,
		notifier: opts.Notifier,
		keys:     opts.Keys,
		logger:   opts.Logger,
		now:      opts.Now,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.LogMiddleware(opts.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Post("/auth/anonymous", s.AnonymousSignInHandler)

	r.Group(func(r chi.Router) {
		r.Use(s.RequireSession)

		r.Put("/users/me", s.UpsertUserHandler)

		r.Post("/leaderboards", s.CreateLeaderboardHandler)
		r.Post("/leaderboards/{id}/join", s.JoinLeaderboardHandler)
		r.Patch("/leaderboards/{id}", s.RenameLeaderboardHandler)
		r.Get("/leaderboards/{id}/ws", s.RosterWSHandler)

		r.Route("/rpc", func(r chi.Router) {
			if opts.RPCRateLimit > 0 {
				r.Use(httprate.Limit(
					opts.RPCRateLimit,
					time.Minute,
					httprate.WithKeyFuncs(httprate.KeyByIP),
					httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
						writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
					}),
				))
			}
			r.Post("/update_daily_usage", s.UpdateDailyUsageHandler)
			r.Post("/get_leaderboard_data", s.GetLeaderboardDataHandler)
		})
	})

	return r
}

// notify publishes change, logging instead of failing the request.
func (s *APIServer) notify(ctx context.Context, change models.RosterChange) {
	if s.notifier == nil || change.LeaderboardID == "" {
		return
	}
	change.Timestamp = s.now().UnixMilli()
	if err := s.notifier.Publish(ctx, change); err != nil {
		s.logger.WithError(err).WithField("leaderboard_id", change.LeaderboardID).Warn("failed to publish roster change")
	}
}
