// Command process-queue runs the delivery queue once, for use from cron.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mailer/internal/clock"
	"mailer/internal/config"
	"mailer/internal/delivery"
	"mailer/internal/lock"
	"mailer/internal/logger"
	"mailer/internal/metrics"
	"mailer/internal/processor"
	"mailer/internal/provider"
	"mailer/internal/store"
	"mailer/pkg/models"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "process-queue: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.MySQL, log)
	if err != nil {
		return err
	}
	defer st.Close()

	var locker lock.Locker = lock.NopLocker{}
	if cfg.Redis.Addr != "" {
		redisLocker, err := lock.NewRedisLocker(ctx, cfg.Redis, log)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisLocker.Close()
		locker = redisLocker
	}

	m := metrics.New()
	clk := clock.System{}
	router := provider.NewRouter(st, cfg.Legacy, provider.Options{Logger: log, Clock: clk}, rand.New(rand.NewSource(time.Now().UnixNano())))
	manager := delivery.NewManager(st, router, delivery.Options{
		Defaults: models.Defaults{
			From:       cfg.Mail.DefaultFrom,
			Language:   cfg.Mail.DefaultLanguage,
			MaxRetries: cfg.Mail.MaxRetries,
		},
		BackoffUnit:     cfg.Queue.BackoffUnit,
		DispatchTimeout: cfg.Queue.DispatchTimeout,
	}, clk, m, log)

	queue := processor.NewQueueProcessor(manager, locker, cfg.Queue.ProcessInterval, cfg.Queue.LockTTL, m, log)
	result, err := queue.Process(ctx)
	if err != nil {
		return fmt.Errorf("queue processing failed: %w", err)
	}

	log.Info("queue processed",
		zap.Int("successes", result.Successes),
		zap.Int("failures", result.Failures))
	return nil
}
