// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/screenbreakers/internal/models"
)

// ConnectRedis opens a client for addr/db and pings it.
func ConnectRedis(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// RosterChannel is the pub/sub channel of one leaderboard.
func RosterChannel(leaderboardID string) string {
	return "leaderboard:" + leaderboardID + ":roster"
}

// Roster publishes and relays roster change notifications over redis.
type Roster struct {
	rdb    *redis.Client
	logger logrus.FieldLogger
}

func NewRoster(rdb *redis.Client, logger logrus.FieldLogger) *Roster {
	return &Roster{rdb: rdb, logger: logger.WithField("component", "roster_pubsub")}
}

// Publish serializes change to JSON and publishes it on the leaderboard's
// channel. Delivery is best effort.
func (r *Roster) Publish(ctx context.Context, change models.RosterChange) error {
	if change.Timestamp == 0 {
		change.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("failed to marshal RosterChange: %w", err)
	}
	channel := RosterChannel(change.LeaderboardID)
	if err := r.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to '%s': %w", channel, err)
	}
	return nil
}

// Subscribe streams changes of leaderboardID until ctx is done. The returned
// channel is closed when the subscription ends.
func (r *Roster) Subscribe(ctx context.Context, leaderboardID string) (<-chan models.RosterChange, error) {
	sub := r.rdb.Subscribe(ctx, RosterChannel(leaderboardID))
	// wait for the confirmation so no publish after return is missed
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to leaderboard %s: %w", leaderboardID, err)
	}

	out := make(chan models.RosterChange)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var change models.RosterChange
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					r.logger.WithError(err).WithField("channel", msg.Channel).Warn("invalid roster message")
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
