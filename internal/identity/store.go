// Package identity persists who this device is and which leaderboard it
// belongs to. The store is not safe for concurrent use; the session actor is
// its only caller.
package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/screenbreakers/internal/kv"
	"github.com/jason-s-yu/screenbreakers/internal/models"
)

// Keys used in the underlying kv.Store.
const (
	KeyUserID          = "user_id"
	KeyPlayerName      = "user_name"
	KeyLeaderboardID   = "leaderboard_id"
	KeyLeaderboardName = "leaderboard_name"
)

// Store reads and writes the Identity fields. Write failures are logged and
// otherwise ignored: the in-memory copy stays authoritative for the life of
// the process. Read failures are never cached, so a later call retries.
type Store struct {
	kv     kv.Store
	logger logrus.FieldLogger

	cached *models.Identity
}

// New creates a Store over kvs.
func New(kvs kv.Store, logger logrus.FieldLogger) *Store {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{kv: kvs, logger: logger.WithField("component", "identity")}
}

// Load returns the identity, minting and persisting a user id and the default
// player name the first time it is called on an empty store. A user id is
// only minted when none is stored or the stored one is not a uuid; if the
// store cannot be read, Load writes nothing and returns the error.
func (s *Store) Load(ctx context.Context) (models.Identity, error) {
	if s.cached != nil {
		return *s.cached, nil
	}

	id := models.Identity{PlayerName: models.DefaultPlayerName}
	rawID, hasID, err := s.kv.Get(ctx, KeyUserID)
	if err != nil {
		return id, fmt.Errorf("failed to read %s: %w", KeyUserID, err)
	}
	name, hasName, err := s.kv.Get(ctx, KeyPlayerName)
	if err != nil {
		return id, fmt.Errorf("failed to read %s: %w", KeyPlayerName, err)
	}
	leaderboardID, _, err := s.kv.Get(ctx, KeyLeaderboardID)
	if err != nil {
		return id, fmt.Errorf("failed to read %s: %w", KeyLeaderboardID, err)
	}
	var leaderboardName string
	if leaderboardID != "" {
		if leaderboardName, _, err = s.kv.Get(ctx, KeyLeaderboardName); err != nil {
			return id, fmt.Errorf("failed to read %s: %w", KeyLeaderboardName, err)
		}
	}

	if parsed, perr := uuid.Parse(rawID); hasID && perr == nil {
		id.UserID = parsed
	} else {
		if hasID {
			s.logger.WithField("user_id", rawID).Warn("stored user id is not a uuid, minting a new one")
		}
		id.UserID = uuid.New()
		s.write(ctx, KeyUserID, id.UserID.String())
	}
	if hasName && name != "" {
		id.PlayerName = name
	} else {
		s.write(ctx, KeyPlayerName, id.PlayerName)
	}
	id.LeaderboardID = leaderboardID
	id.LeaderboardName = leaderboardName

	s.cached = &id
	return id, nil
}

// Get is Load for callers that cannot act on a read failure. On failure it
// logs and returns an identity with a nil UserID and the default name, which
// is not cached.
func (s *Store) Get(ctx context.Context) models.Identity {
	id, err := s.Load(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("identity unavailable")
	}
	return id
}

// update applies fn to the current identity and caches the result when the
// identity could be loaded.
func (s *Store) update(ctx context.Context, fn func(id *models.Identity)) models.Identity {
	id, err := s.Load(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("identity unavailable, change kept for this call only")
		fn(&id)
		return id
	}
	fn(&id)
	s.cached = &id
	return id
}

// SetPlayerName stores a new display name. An empty name resets to the default.
func (s *Store) SetPlayerName(ctx context.Context, name string) models.Identity {
	if name == "" {
		name = models.DefaultPlayerName
	}
	s.write(ctx, KeyPlayerName, name)
	return s.update(ctx, func(id *models.Identity) { id.PlayerName = name })
}

// SetLeaderboard records membership of leaderboard leaderboardID.
func (s *Store) SetLeaderboard(ctx context.Context, leaderboardID, name string) models.Identity {
	s.write(ctx, KeyLeaderboardID, leaderboardID)
	s.write(ctx, KeyLeaderboardName, name)
	return s.update(ctx, func(id *models.Identity) {
		id.LeaderboardID = leaderboardID
		id.LeaderboardName = name
	})
}

// SetLeaderboardName updates the cached leaderboard name. It is a no-op when
// there is no active leaderboard.
func (s *Store) SetLeaderboardName(ctx context.Context, name string) models.Identity {
	id := s.Get(ctx)
	if !id.InLeaderboard() {
		return id
	}
	s.write(ctx, KeyLeaderboardName, name)
	return s.update(ctx, func(id *models.Identity) { id.LeaderboardName = name })
}

// ClearLeaderboard drops the leaderboard id and name together.
func (s *Store) ClearLeaderboard(ctx context.Context) models.Identity {
	s.remove(ctx, KeyLeaderboardID)
	s.remove(ctx, KeyLeaderboardName)
	return s.update(ctx, func(id *models.Identity) {
		id.LeaderboardID = ""
		id.LeaderboardName = ""
	})
}

func (s *Store) write(ctx context.Context, key, value string) {
	if err := s.kv.Set(ctx, key, value); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("failed to persist identity field")
	}
}

func (s *Store) remove(ctx context.Context, key string) {
	if err := s.kv.Remove(ctx, key); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("failed to remove identity field")
	}
}
