package models

import "github.com/google/uuid"

// DefaultPlayerName is assigned to a freshly created identity.
const DefaultPlayerName = "Player 1"

// Identity is the locally persisted view of who this device is and which
// leaderboard it currently belongs to.
type Identity struct {
	UserID     uuid.UUID `json:"user_id"`
	PlayerName string    `json:"player_name"`

	// LeaderboardID is empty when the user has not created or joined one.
	LeaderboardID   string `json:"leaderboard_id,omitempty"`
	LeaderboardName string `json:"leaderboard_name,omitempty"`
}

// InLeaderboard reports whether a leaderboard membership is recorded.
func (id Identity) InLeaderboard() bool {
	return id.LeaderboardID != ""
}
