package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a row in the users table. Users are anonymous: the id is minted by
// the client on first launch and the name is whatever the player typed.
type User struct {
	ID                   uuid.UUID `json:"id"`
	Name                 string    `json:"name"`
	CurrentLeaderboardID *string   `json:"current_leaderboard_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
