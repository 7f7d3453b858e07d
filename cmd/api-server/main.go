package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/hackgods/telehealth-provider-scheduling/internal/api"
	"github.com/hackgods/telehealth-provider-scheduling/internal/config"
	"github.com/hackgods/telehealth-provider-scheduling/internal/db"
	"github.com/hackgods/telehealth-provider-scheduling/internal/logging"
	"github.com/hackgods/telehealth-provider-scheduling/internal/metrics"
	"github.com/hackgods/telehealth-provider-scheduling/internal/notify"
	redisclient "github.com/hackgods/telehealth-provider-scheduling/internal/redis"
	"github.com/hackgods/telehealth-provider-scheduling/internal/scheduling"
	"github.com/hackgods/telehealth-provider-scheduling/internal/session"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("config load error: %v", err))
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("version", version),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.DefaultPoolOptions)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to Redis")

	notifier, closeNotifier, err := buildNotifier(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("notifier setup error", zap.Error(err))
	}
	defer closeNotifier()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	svc := scheduling.NewService(
		scheduling.NewPgRepository(pgPool),
		redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL, logger),
		notifier,
		scheduling.WithLogger(logger),
		scheduling.WithMetrics(m),
		scheduling.WithLocation(cfg.Location),
	)

	sessions := session.NewManager(cfg.SessionSecret, cfg.SessionTTL, session.NewRedisRevocations(rdb))

	router := api.NewRouter(api.RouterConfig{
		Calendar:       svc.Calendar,
		Availability:   svc.Availability,
		Registry:       svc.Registry,
		Providers:      svc.Providers,
		Sessions:       sessions,
		Postgres:       pgPool,
		Redis:          api.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
		Logger:         logger,
		Metrics:        m,
		Gatherer:       registry,
		RequestTimeout: cfg.RequestTimeout,
		Env:            cfg.Env,
		Version:        version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-rootCtx.Done():
	case err := <-serverErr:
		if err != nil {
			logger.Error("http server error", zap.Error(err))
		}
	}

	logger.Info("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// buildNotifier picks the alert channel named by NOTIFY_DRIVER.
func buildNotifier(ctx context.Context, cfg config.Config, logger *zap.Logger) (scheduling.Notifier, func(), error) {
	noop := func() {}
	sender := notify.SenderConfig{FromEmail: cfg.NotifyFromEmail, FromName: cfg.NotifyFromName}

	switch cfg.NotifyDriver {
	case config.NotifyKafka:
		n, err := notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaAlertTopic, logger)
		if err != nil {
			return nil, noop, err
		}
		return n, func() {
			if err := n.Close(); err != nil {
				logger.Warn("error closing kafka writer", zap.Error(err))
			}
		}, nil
	case config.NotifySendGrid:
		s, err := notify.NewSendGridSender(cfg.SendGridAPIKey, sender, logger)
		if err != nil {
			return nil, noop, err
		}
		return notify.NewEmailNotifier(s), noop, nil
	case config.NotifySES:
		s, err := notify.NewSESSender(ctx, cfg.AWSRegion, sender, logger)
		if err != nil {
			return nil, noop, err
		}
		return notify.NewEmailNotifier(s), noop, nil
	default:
		return notify.NewLogNotifier(logger), noop, nil
	}
}
