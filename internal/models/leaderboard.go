// internal/models/leaderboard.go
package models

import (
	"cmp"
	"slices"
	"time"

	"github.com/google/uuid"
)

// DefaultLeaderboardName names a leaderboard created by sharing.
const DefaultLeaderboardName = "Leaderboard"

// Leaderboard represents a row in the leaderboards table.
type Leaderboard struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Member is one row returned by the get_leaderboard_data RPC. Every member of
// a leaderboard carries the same LeaderboardName.
type Member struct {
	UserID          uuid.UUID `json:"user_id"`
	UserName        string    `json:"user_name"`
	TodayMinutes    int       `json:"today_minutes"`
	LeaderboardName string    `json:"leaderboard_name"`
}

// Entry is a single renderable leaderboard row.
type Entry struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Minutes int    `json:"minutes"`
}

// LeaderboardView is the derived, renderable leaderboard. It is rebuilt on
// every successful fetch and never patched in place by callers.
type LeaderboardView struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Entries []Entry `json:"entries"`
}

// Clone returns a deep copy so snapshots handed out of the owning goroutine
// cannot alias its state.
func (v *LeaderboardView) Clone() *LeaderboardView {
	if v == nil {
		return nil
	}
	out := *v
	out.Entries = slices.Clone(v.Entries)
	return &out
}

// SortEntries orders entries by minutes, highest first. Ties fall back to
// name and then id so the order never depends on server row order.
func SortEntries(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		if c := cmp.Compare(b.Minutes, a.Minutes); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
