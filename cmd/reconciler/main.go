package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dispatchly/ledger-api/internal/config"
	"github.com/dispatchly/ledger-api/internal/pkg/database"
	"github.com/dispatchly/ledger-api/internal/pkg/logger"
	"github.com/dispatchly/ledger-api/internal/server"
)

// wakeChannel lets operators trigger an immediate sweep:
// redis-cli PUBLISH ledger:reconcile now
const wakeChannel = "ledger:reconcile"

const defaultInterval = 5 * time.Minute

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	cfg := config.Load()
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env, LogFile: cfg.LogFile}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	log.Info().Dur("interval", cfg.ReconcileInterval).Msg("Starting reconciler")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := server.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ledger core")
	}
	defer srv.Close()

	if *once {
		sweep(ctx, srv)
		return
	}

	wake := make(chan struct{}, 1)
	if rdb, err := database.NewRedis(cfg.RedisURL, "reconcile-wakeups"); err != nil {
		log.Warn().Err(err).Msg("Wake-ups disabled, polling only")
	} else {
		defer database.CloseRedis(rdb)
		go subscribeWakeups(ctx, rdb, wake)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigChan
		log.Info().Msg("Shutdown signal received")
		cancel()
	}()

	interval := cfg.ReconcileInterval
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sweep(ctx, srv)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("reconciler stopped")
			return
		case <-wake:
		case <-ticker.C:
		}
		sweep(ctx, srv)
	}
}

func sweep(ctx context.Context, srv *server.Server) {
	start := time.Now()
	s, err := srv.Reconciler.RunOnce(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Reconciliation sweep failed")
		return
	}
	log.Info().
		Int("checked", s.Checked).
		Int("applied", s.Applied).
		Int("cancelled", s.Cancelled).
		Int("errors", s.Errors).
		Dur("took", time.Since(start)).
		Msg("Reconciliation sweep finished")
}

func subscribeWakeups(ctx context.Context, rdb *redis.Client, wake chan<- struct{}) {
	sub := rdb.Subscribe(ctx, wakeChannel)
	defer func() { _ = sub.Close() }()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			select {
			case wake <- struct{}{}:
			default:
			}
		}
	}
}
