// Package remote is the boundary to the shared leaderboard store. The core
// depends only on the Client interface; HTTPClient talks to cmd/server and
// remotetest.Fake stands in for it in tests.
package remote

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/jason-s-yu/screenbreakers/internal/models"
)

var (
	// ErrUnauthenticated means there is no valid session for the caller.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrNotFound means the leaderboard id does not exist (or no longer does).
	ErrNotFound = errors.New("leaderboard not found")
	// ErrServer covers transport failures and unexpected server responses.
	ErrServer = errors.New("server error")
)

// Client is the set of remote operations the sync core depends on.
// Implementations must be safe for concurrent use.
type Client interface {
	// CreateOrUpdateUser upserts the user row, signing in first if needed.
	CreateOrUpdateUser(ctx context.Context, userID uuid.UUID, name string) (uuid.UUID, error)
	// CreateLeaderboard allocates a leaderboard and makes it the caller's current one.
	CreateLeaderboard(ctx context.Context, name string) (string, error)
	// JoinLeaderboard makes leaderboardID the caller's current leaderboard.
	JoinLeaderboard(ctx context.Context, leaderboardID string) error
	// UpdateDailyUsage upserts today's minutes. day is the day of the month.
	UpdateDailyUsage(ctx context.Context, userID uuid.UUID, day, minutes int) error
	// GetLeaderboardData returns every member of the leaderboard.
	GetLeaderboardData(ctx context.Context, leaderboardID string) ([]models.Member, error)
	// UpdateLeaderboardName renames the leaderboard for every member.
	UpdateLeaderboardName(ctx context.Context, leaderboardID, name string) error
}

// RosterWatcher delivers a callback whenever a leaderboard's roster changes.
// WatchRoster blocks until ctx is done or the leaderboard is gone.
type RosterWatcher interface {
	WatchRoster(ctx context.Context, leaderboardID string, onChange func(models.RosterChange)) error
}
