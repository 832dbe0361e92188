package main

import (
	"fmt"
	"strings"

	"github.com/jason-s-yu/screenbreakers/internal/session"
)

// renderSnapshot formats a snapshot for the terminal.
func renderSnapshot(snap session.Snapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "state: %s", snap.State)
	if snap.Loading {
		b.WriteString(" (loading)")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "player: %s\n", snap.Identity.PlayerName)
	if snap.PendingJoin != "" {
		fmt.Fprintf(&b, "pending join: %s (run \"authorize\")\n", snap.PendingJoin)
	}

	if !snap.Identity.InLeaderboard() {
		b.WriteString("no leaderboard; \"share\" creates one, \"join <link>\" joins one\n")
		return b.String()
	}

	name := snap.Identity.LeaderboardName
	if snap.Leaderboard != nil && snap.Leaderboard.Name != "" {
		name = snap.Leaderboard.Name
	}
	fmt.Fprintf(&b, "leaderboard: %s [%s]\n", name, snap.Identity.LeaderboardID)
	if snap.ShareLink != "" {
		fmt.Fprintf(&b, "share: %s\n", snap.ShareLink)
	}
	if snap.Leaderboard == nil {
		b.WriteString("  (not loaded)\n")
		return b.String()
	}

	self := snap.Identity.UserID.String()
	for i, e := range snap.Leaderboard.Entries {
		marker := " "
		if e.ID == self {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %2d. %-20s %4dm\n", marker, i+1, e.Name, e.Minutes)
	}
	return b.String()
}
