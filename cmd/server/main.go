package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mailer/internal/api"
	"mailer/internal/clock"
	"mailer/internal/config"
	"mailer/internal/delivery"
	"mailer/internal/lock"
	"mailer/internal/logger"
	"mailer/internal/metrics"
	"mailer/internal/processor"
	"mailer/internal/provider"
	"mailer/internal/smtp"
	"mailer/internal/store"
	"mailer/pkg/models"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mailer: %v\n", err)
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

	// Try MySQL first, fall back to the in-memory store
	var st store.Store
	mysqlStore, err := store.Open(ctx, cfg.MySQL, log)
	if err != nil {
		log.Error("failed to open MySQL store, using in-memory store instead", zap.Error(err))
		st = store.NewMemoryStore()
	} else {
		st = mysqlStore
	}
	defer st.Close()

	// Without Redis, runs are only serialized within this process
	var locker lock.Locker = lock.NewLocalLocker()
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
	if err := router.Reload(ctx); err != nil {
		log.Warn("initial transport load failed", zap.Error(err))
	}
	m.ActiveTransports(len(router.Active()))

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

	httpServer := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(api.Deps{
			Manager: manager,
			Router:  router,
			Queue:   queue,
			Metrics: m,
			Logger:  log,
			Debug:   cfg.Log.Development,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting HTTP server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return queue.Start(gctx)
	})

	var intake *smtp.Server
	if cfg.SMTP.Enabled {
		intake = smtp.NewServer(cfg.SMTP, manager, m, log)
		g.Go(func() error {
			if err := intake.Start(); err != nil {
				return fmt.Errorf("smtp intake: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		var err error
		if intake != nil {
			err = multierr.Append(err, intake.Stop())
		}
		return multierr.Append(err, httpServer.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("servers stopped")
	return nil
}
