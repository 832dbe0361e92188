package usage

import (
	"context"
	"time"

	"github.com/coder/quartz"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/screenbreakers/internal/kv"
)

// DefaultPollInterval is how often Source reads the shared counter.
const DefaultPollInterval = 15 * time.Second

// Source watches the accumulated-minutes counter written by the Recorder and
// reports today's total whenever it changes.
type Source struct {
	kv       kv.Store
	clock    quartz.Clock
	interval time.Duration
	logger   logrus.FieldLogger

	last     int
	reported bool
}

func NewSource(store kv.Store, clock quartz.Clock, interval time.Duration, logger logrus.FieldLogger) *Source {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Source{
		kv:       store,
		clock:    clock,
		interval: interval,
		logger:   logger.WithField("component", "usage_source"),
	}
}

// Run polls once immediately and then on every tick until ctx is done,
// calling onChange with the absolute total when it differs from the last one
// reported. A counter left over from another day reads as zero.
func (s *Source) Run(ctx context.Context, onChange func(minutes int)) error {
	s.poll(ctx, onChange)
	tkr := s.clock.TickerFunc(ctx, s.interval, func() error {
		s.poll(ctx, onChange)
		return nil
	}, "usage", "poll")
	err := tkr.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *Source) poll(ctx context.Context, onChange func(int)) {
	minutes, err := s.read(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("failed to read accumulated usage")
		return
	}
	if s.reported && minutes == s.last {
		return
	}
	s.last = minutes
	s.reported = true
	onChange(minutes)
}

func (s *Source) read(ctx context.Context) (int, error) {
	day, err := readInt(ctx, s.kv, KeyAccumulatedDay)
	if err != nil {
		return 0, err
	}
	if day != s.clock.Now().Day() {
		return 0, nil
	}
	return readInt(ctx, s.kv, KeyAccumulatedMinutes)
}
