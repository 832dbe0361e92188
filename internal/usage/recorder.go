package usage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/coder/quartz"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/screenbreakers/internal/kv"
)

// Keys shared between the monitor and the client.
const (
	KeyAccumulatedMinutes = "accumulated_usage_minutes"
	KeyAccumulatedDay     = "accumulated_usage_day"
)

// incrementer is implemented by stores that can add to a counter atomically
// (kv.Redis). Other stores fall back to read-modify-write.
type incrementer interface {
	Incr(ctx context.Context, key string, delta int64) (int64, error)
}

// Recorder is the monitor side: it is called once per measured minute and
// bumps today's accumulated total in the shared store.
type Recorder struct {
	kv     kv.Store
	clock  quartz.Clock
	logger logrus.FieldLogger
}

func NewRecorder(store kv.Store, clock quartz.Clock, logger logrus.FieldLogger) *Recorder {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Recorder{kv: store, clock: clock, logger: logger.WithField("component", "recorder")}
}

// RecordMinute adds one minute to today's total and returns the new total.
// The counter restarts from zero when the stored day differs from today.
func (r *Recorder) RecordMinute(ctx context.Context) (int, error) {
	today := r.clock.Now().Day()

	day, err := readInt(ctx, r.kv, KeyAccumulatedDay)
	if err != nil {
		return 0, err
	}
	if day != today {
		if err := r.kv.Set(ctx, KeyAccumulatedMinutes, "1"); err != nil {
			return 0, fmt.Errorf("reset accumulated minutes: %w", err)
		}
		if err := r.kv.Set(ctx, KeyAccumulatedDay, strconv.Itoa(today)); err != nil {
			return 0, fmt.Errorf("store accumulated day: %w", err)
		}
		r.logger.WithField("day", today).Info("started a new usage day")
		return 1, nil
	}

	if inc, ok := r.kv.(incrementer); ok {
		n, err := inc.Incr(ctx, KeyAccumulatedMinutes, 1)
		if err != nil {
			return 0, fmt.Errorf("increment accumulated minutes: %w", err)
		}
		return int(n), nil
	}

	minutes, err := readInt(ctx, r.kv, KeyAccumulatedMinutes)
	if err != nil {
		return 0, err
	}
	minutes++
	if err := r.kv.Set(ctx, KeyAccumulatedMinutes, strconv.Itoa(minutes)); err != nil {
		return 0, fmt.Errorf("store accumulated minutes: %w", err)
	}
	return minutes, nil
}

// readInt returns 0 for a missing or malformed value.
func readInt(ctx context.Context, store kv.Store, key string) (int, error) {
	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, nil
	}
	return n, nil
}
