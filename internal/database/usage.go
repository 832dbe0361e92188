package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UpdateDailyUsage upserts the user's minutes for a day of the month.
// The last write wins.
func (s *Store) UpdateDailyUsage(ctx context.Context, userID uuid.UUID, day, minutes int) error {
	q := `
	INSERT INTO daily_usage (user_id, day, minutes) VALUES ($1, $2, $3)
	ON CONFLICT (user_id, day) DO UPDATE SET minutes = EXCLUDED.minutes, updated_at = now()
	`
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, userID, day, minutes)
		return err
	})
	if pgCode(err) == codeForeignKeyViolation {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update daily usage of %s: %w", userID, err)
	}
	return nil
}
