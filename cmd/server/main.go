// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jason-s-yu/screenbreakers/internal/auth"
	"github.com/jason-s-yu/screenbreakers/internal/cache"
	"github.com/jason-s-yu/screenbreakers/internal/config"
	"github.com/jason-s-yu/screenbreakers/internal/database"
	"github.com/jason-s-yu/screenbreakers/internal/handlers"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.LoadServer()
	if err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("server exited")
	}
}

func run(ctx context.Context, cfg config.Server, logger *logrus.Logger) error {
	var (
		keys *auth.Keys
		err  error
	)
	if cfg.PrivateKeyPath != "" && cfg.PublicKeyPath != "" {
		keys, err = auth.LoadFromPath(cfg.PrivateKeyPath, cfg.PublicKeyPath, cfg.TokenExpire)
	} else {
		logger.Warn("no JWT key paths configured, generating an ephemeral key pair")
		keys, err = auth.Generate(cfg.TokenExpire)
	}
	if err != nil {
		return err
	}

	if err := database.Migrate(cfg.DatabaseURL, logger); err != nil {
		return err
	}
	store, err := database.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer rdb.Close()

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: handlers.NewRouter(handlers.Options{
			Store:          store,
			Notifier:       cache.NewRoster(rdb, logger),
			Keys:           keys,
			Logger:         logger,
			AllowedOrigins: cfg.AllowedOrigins,
			RPCRateLimit:   cfg.RPCRateLimit,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		// roster websockets are hijacked and outlive Shutdown otherwise
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Running on %s", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
