package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/screenbreakers/internal/models"
)

// idAttempts bounds retries when a generated leaderboard id collides.
const idAttempts = 5

// NewLeaderboardID returns 7 upper-case hex characters of a random uuid.
func NewLeaderboardID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:7])
}

// CreateLeaderboard inserts a leaderboard and makes it the creator's current one.
func (s *Store) CreateLeaderboard(ctx context.Context, userID uuid.UUID, name string) (models.Leaderboard, error) {
	if name == "" {
		name = models.DefaultLeaderboardName
	}

	for attempt := 1; ; attempt++ {
		lb := models.Leaderboard{ID: NewLeaderboardID(), Name: name}
		err := s.inTx(ctx, func(tx pgx.Tx) error {
			err := tx.QueryRow(ctx,
				`INSERT INTO leaderboards (id, name) VALUES ($1, $2) RETURNING created_at`,
				lb.ID, lb.Name,
			).Scan(&lb.CreatedAt)
			if err != nil {
				return err
			}
			tag, err := tx.Exec(ctx,
				`UPDATE users SET current_leaderboard_id = $2, updated_at = now() WHERE id = $1`,
				userID, lb.ID,
			)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return ErrUserNotFound
			}
			return nil
		})
		switch {
		case err == nil:
			s.logger.WithFields(logrus.Fields{"leaderboard_id": lb.ID, "user_id": userID}).Info("leaderboard created")
			return lb, nil
		case pgCode(err) == codeUniqueViolation && attempt < idAttempts:
			s.logger.WithField("leaderboard_id", lb.ID).Warn("leaderboard id collision, retrying")
			continue
		case errors.Is(err, ErrUserNotFound):
			return models.Leaderboard{}, err
		default:
			return models.Leaderboard{}, fmt.Errorf("failed to create leaderboard: %w", err)
		}
	}
}

// JoinLeaderboard makes leaderboardID the user's current leaderboard.
// Joining the current leaderboard again is a no-op.
func (s *Store) JoinLeaderboard(ctx context.Context, userID uuid.UUID, leaderboardID string) error {
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE users SET current_leaderboard_id = $2, updated_at = now() WHERE id = $1`,
			userID, leaderboardID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrUserNotFound
		}
		return nil
	})
	switch {
	case err == nil:
		return nil
	case pgCode(err) == codeForeignKeyViolation:
		return ErrNotFound
	case errors.Is(err, ErrUserNotFound):
		return err
	default:
		return fmt.Errorf("failed to join leaderboard %s: %w", leaderboardID, err)
	}
}

// RenameLeaderboard sets a new name for every member.
func (s *Store) RenameLeaderboard(ctx context.Context, leaderboardID, name string) error {
	var affected int64
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE leaderboards SET name = $2 WHERE id = $1`, leaderboardID, name)
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to rename leaderboard %s: %w", leaderboardID, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetLeaderboardData lists every member with their minutes on day, ordered
// by join time. Members without a usage row report zero.
func (s *Store) GetLeaderboardData(ctx context.Context, leaderboardID string, day int) ([]models.Member, error) {
	var name string
	err := s.pool.QueryRow(ctx, `SELECT name FROM leaderboards WHERE id = $1`, leaderboardID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard %s: %w", leaderboardID, err)
	}

	q := `
	SELECT u.id, u.name, COALESCE(d.minutes, 0)
	FROM users u
	LEFT JOIN daily_usage d ON d.user_id = u.id AND d.day = $2
	WHERE u.current_leaderboard_id = $1
	ORDER BY u.created_at, u.id
	`
	rows, err := s.pool.Query(ctx, q, leaderboardID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to list members of %s: %w", leaderboardID, err)
	}
	members, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Member, error) {
		m := models.Member{LeaderboardName: name}
		err := row.Scan(&m.UserID, &m.UserName, &m.TodayMinutes)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan members of %s: %w", leaderboardID, err)
	}
	return members, nil
}

// LeaderboardExists reports whether a leaderboard with id exists.
func (s *Store) LeaderboardExists(ctx context.Context, leaderboardID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM leaderboards WHERE id = $1)`, leaderboardID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to look up leaderboard %s: %w", leaderboardID, err)
	}
	return exists, nil
}
