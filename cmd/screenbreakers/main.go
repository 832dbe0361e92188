// cmd/screenbreakers is a terminal client for the screen time leaderboard.
// An optional argument is a share link to join on start.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coder/quartz"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jason-s-yu/screenbreakers/internal/cache"
	"github.com/jason-s-yu/screenbreakers/internal/config"
	"github.com/jason-s-yu/screenbreakers/internal/identity"
	"github.com/jason-s-yu/screenbreakers/internal/kv"
	"github.com/jason-s-yu/screenbreakers/internal/remote"
	"github.com/jason-s-yu/screenbreakers/internal/session"
	"github.com/jason-s-yu/screenbreakers/internal/usage"
)

func main() {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	cfg := config.LoadClient()
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Args[1:], os.Stdin, os.Stdout, logger); err != nil {
		logger.WithError(err).Fatal("screenbreakers exited")
	}
}

// syncWriter serializes writes from the shell and the controller goroutine.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func run(ctx context.Context, cfg config.Client, args []string, in io.Reader, stdout io.Writer, logger *logrus.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	client, err := remote.NewHTTPClient(cfg.APIURL, store, logger)
	if err != nil {
		return err
	}

	out := &syncWriter{w: stdout}
	clock := quartz.NewReal()
	opts := session.Options{
		Client:        client,
		Identity:      identity.New(store, logger),
		Clock:         clock,
		DebounceDelay: cfg.Debounce,
		LinkScheme:    cfg.LinkScheme,
		Logger:        logger,
		OnEvent: func(e session.Event) {
			switch e.Kind {
			case session.EventJoinFailed:
				fmt.Fprintf(out, "could not join %s: %v\n", e.LeaderboardID, e.Err)
			case session.EventChanged:
				if !e.Snapshot.Loading {
					fmt.Fprint(out, renderSnapshot(e.Snapshot))
				}
			}
		},
	}
	if cfg.WatchRoster {
		opts.Watcher = client
	}
	ctrl := session.New(ctx, opts)
	defer ctrl.Close()

	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	if len(args) > 0 {
		if _, err := ctrl.HandleDeepLink(ctx, args[0]); err != nil && !errors.Is(err, session.ErrJoinPending) {
			logger.WithError(err).Warn("failed to join from link")
		}
	}

	recorder := usage.NewRecorder(store, clock, logger)
	sh := &shell{ctrl: ctrl, recorder: recorder, out: out, logger: logger}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return sh.run(gctx, readLines(in))
	})
	g.Go(func() error {
		return usage.NewSource(store, clock, cfg.PollInterval, logger).Run(gctx, ctrl.UsageChanged)
	})
	if cfg.RecordMinutes {
		g.Go(func() error {
			return clock.TickerFunc(gctx, time.Minute, func() error {
				if _, err := recorder.RecordMinute(gctx); err != nil {
					logger.WithError(err).Warn("failed to record usage minute")
				}
				return nil
			}, "usage", "record").Wait()
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// openStore picks the redis settings store when REDIS_ADDR is set and the
// YAML file otherwise.
func openStore(ctx context.Context, cfg config.Client) (kv.Store, func(), error) {
	if cfg.RedisAddr == "" {
		f, err := kv.OpenFile(cfg.SettingsPath)
		if err != nil {
			return nil, nil, err
		}
		return f, func() {}, nil
	}
	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		return nil, nil, err
	}
	return kv.NewRedis(rdb, kv.DefaultNamespace), func() { _ = rdb.Close() }, nil
}

// readLines feeds lines of in to the returned channel. The reader goroutine
// is not stopped on exit; it dies with the process.
func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}
