package leaderboard

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// DefaultScheme is the URI scheme of share links.
const DefaultScheme = "screenbreakers"

var ErrInvalidLink = errors.New("invalid join link")

// ShareLink returns scheme://leaderboardID.
func ShareLink(scheme, leaderboardID string) string {
	if scheme == "" {
		scheme = DefaultScheme
	}
	return scheme + "://" + leaderboardID
}

// ParseJoinLink extracts the leaderboard id from a link produced by ShareLink.
func ParseJoinLink(scheme, link string) (string, error) {
	if scheme == "" {
		scheme = DefaultScheme
	}
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidLink, err)
	}
	if !strings.EqualFold(u.Scheme, scheme) {
		return "", fmt.Errorf("%w: scheme %q, want %q", ErrInvalidLink, u.Scheme, scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing leaderboard id", ErrInvalidLink)
	}
	return u.Host, nil
}
