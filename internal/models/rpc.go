package models

import "github.com/google/uuid"

// Request and response bodies of the leaderboard HTTP API. Parameter names of
// the two RPC endpoints keep the p_ prefix of the stored procedures they
// replaced.

type AnonymousSignInRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name,omitempty"`
}

type SessionResponse struct {
	UserID uuid.UUID `json:"user_id"`
	Token  string    `json:"token"`
}

type UpsertUserRequest struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type CreateLeaderboardRequest struct {
	Name string `json:"name"`
}

type RenameLeaderboardRequest struct {
	Name string `json:"name"`
}

// UpdateDailyUsageParams carries a day-of-month, not a date: two different
// months share the same key. Kept for compatibility with existing rows.
type UpdateDailyUsageParams struct {
	UserID  uuid.UUID `json:"p_user_id"`
	Day     int       `json:"p_day"`
	Minutes int       `json:"p_minutes"`
}

type GetLeaderboardDataParams struct {
	LeaderboardID string `json:"p_leaderboard_id"`
}

// RosterChangeType enumerates roster websocket messages.
type RosterChangeType string

const (
	RosterUsage        RosterChangeType = "roster_usage"
	RosterJoin         RosterChangeType = "roster_join"
	RosterRename       RosterChangeType = "roster_rename"
	RosterMemberRename RosterChangeType = "roster_member_rename"
)

// RosterChange is published whenever a write affects a leaderboard's roster.
type RosterChange struct {
	Type          RosterChangeType `json:"type"`
	LeaderboardID string           `json:"leaderboard_id"`
	UserID        uuid.UUID        `json:"user_id,omitempty"`
	Timestamp     int64            `json:"ts"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Message string `json:"message"`
}
