package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jason-s-yu/screenbreakers/internal/models"
)

const userColumns = `id, name, current_leaderboard_id, created_at, updated_at`

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Name, &u.CurrentLeaderboardID, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// EnsureUser creates the user row on anonymous sign-in. An existing row is
// returned unchanged.
func (s *Store) EnsureUser(ctx context.Context, id uuid.UUID, name string) (models.User, error) {
	if name == "" {
		name = models.DefaultPlayerName
	}
	q := `
	WITH ins AS (
		INSERT INTO users (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
		RETURNING ` + userColumns + `
	)
	SELECT ` + userColumns + ` FROM ins
	UNION ALL
	SELECT ` + userColumns + ` FROM users WHERE id = $1
	LIMIT 1
	`
	u, err := scanUser(s.pool.QueryRow(ctx, q, id, name))
	if err != nil {
		return models.User{}, fmt.Errorf("failed to ensure user %s: %w", id, err)
	}
	return u, nil
}

// UpsertUser creates the user or updates its name.
func (s *Store) UpsertUser(ctx context.Context, id uuid.UUID, name string) (models.User, error) {
	if name == "" {
		name = models.DefaultPlayerName
	}
	q := `
	INSERT INTO users (id, name) VALUES ($1, $2)
	ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, updated_at = now()
	RETURNING ` + userColumns

	var u models.User
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var scanErr error
		u, scanErr = scanUser(tx.QueryRow(ctx, q, id, name))
		return scanErr
	})
	if err != nil {
		return models.User{}, fmt.Errorf("failed to upsert user %s: %w", id, err)
	}
	return u, nil
}

// UserLeaderboard returns the user's current leaderboard id, or "" if none.
func (s *Store) UserLeaderboard(ctx context.Context, userID uuid.UUID) (string, error) {
	var current *string
	err := s.pool.QueryRow(ctx, `SELECT current_leaderboard_id FROM users WHERE id = $1`, userID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read leaderboard of user %s: %w", userID, err)
	}
	if current == nil {
		return "", nil
	}
	return *current, nil
}
