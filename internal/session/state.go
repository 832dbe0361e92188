package session

import (
	"github.com/jason-s-yu/screenbreakers/internal/models"
)

// State is the lifecycle state of a Controller.
type State int

const (
	StateUninitialized State = iota
	StateAuthorizing
	StateNoLeaderboard
	StateInLeaderboard
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAuthorizing:
		return "authorizing"
	case StateNoLeaderboard:
		return "idle(no_leaderboard)"
	case StateInLeaderboard:
		return "idle(in_leaderboard)"
	default:
		return "unknown"
	}
}

// Snapshot is a consistent copy of everything the UI renders.
type Snapshot struct {
	State   State
	Loading bool

	Identity    models.Identity
	Leaderboard *models.LeaderboardView
	ShareLink   string

	// PendingJoin is a join id held until authorization completes.
	PendingJoin string
}

// EventKind distinguishes controller notifications.
type EventKind int

const (
	// EventChanged carries a new Snapshot.
	EventChanged EventKind = iota
	// EventJoinFailed reports a join that did not succeed, including one
	// replayed after authorization.
	EventJoinFailed
)

type Event struct {
	Kind     EventKind
	Snapshot Snapshot

	// set for EventJoinFailed
	LeaderboardID string
	Err           error
}
