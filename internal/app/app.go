// Package app wires configuration, storage, notification sinks and the
// accrual scheduler into the hourmeterd commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	"hourmeter-backend/config"
	"hourmeter-backend/internal/accrual"
	"hourmeter-backend/internal/api"
	"hourmeter-backend/internal/db"
	"hourmeter-backend/internal/logger"
	"hourmeter-backend/internal/metrics"
	"hourmeter-backend/internal/notification"
	"hourmeter-backend/internal/store"
)

const shutdownTimeout = 5 * time.Second

// Options controls how a command loads its configuration.
type Options struct {
	// ConfigPath is the YAML configuration file.
	ConfigPath string
	// LogLevel overrides log.level from the configuration when set.
	LogLevel string
}

// Load reads the configuration and applies the log level.
func Load(opts *Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	level, ok := logger.ParseLogLevel(cfg.Log.Level)
	if !ok {
		return nil, fmt.Errorf("unknown log level %q", cfg.Log.Level)
	}
	logger.SetLevel(level)
	return cfg, nil
}

func openDB(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	return db.Init(ctx, &cfg.Database, logger.Level() == zapcore.DebugLevel)
}

func closeDB(ctx context.Context, gormDB *gorm.DB) {
	sqlDB, err := gormDB.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		logger.WarnKV(ctx, "failed to close database", "error", err)
	}
}

func webpushOptions(cfg config.PushConfig) *webpush.Options {
	if !cfg.Enabled() {
		return nil
	}
	return &webpush.Options{
		VAPIDPublicKey:  cfg.PublicKey,
		VAPIDPrivateKey: cfg.PrivateKey,
		Subscriber:      cfg.Subject,
		TTL:             cfg.TTL,
	}
}

// newSink builds the fan-out of every configured notification channel. The
// returned cleanup disconnects the MQTT client.
func newSink(ctx context.Context, cfg *config.Config, s store.Store) (accrual.Sink, func(), error) {
	sinks := notification.Multi{notification.LogSink{}}
	cleanup := func() {}

	if opts := webpushOptions(cfg.Push); opts != nil {
		sinks = append(sinks, notification.NewWebPushSink(s, opts))
	} else {
		logger.Warnf(ctx, "VAPID keys are not configured, web push notifications are disabled")
	}

	if cfg.MQTT.Enabled {
		client, err := notification.DialMQTT(cfg.MQTT)
		if err != nil {
			return nil, cleanup, fmt.Errorf("mqtt: %w", err)
		}
		cleanup = func() { client.Disconnect(250) }
		sinks = append(sinks, notification.NewMQTTSink(client, cfg.MQTT.TopicPrefix, cfg.MQTT.QoS, cfg.MQTT.Timeout()))
		logger.InfoKV(ctx, "publishing alarm triggers to mqtt", "broker", cfg.MQTT.Broker, "topic_prefix", cfg.MQTT.TopicPrefix)
	}
	return sinks, cleanup, nil
}

func newService(s store.Store, sink accrual.Sink, cfg config.AccrualConfig, m *metrics.Metrics) (*accrual.Service, error) {
	return accrual.NewService(s, sink,
		accrual.WithWorkers(cfg.Workers),
		accrual.WithMaxConflictRetries(cfg.MaxConflictRetries),
		accrual.WithRunRecorder(s),
		accrual.WithMetrics(m),
	)
}

// Serve runs the HTTP API and, when enabled, the daily accrual runner until
// ctx is cancelled.
func Serve(ctx context.Context, cfg *config.Config) error {
	ctx = logger.WithName(ctx, "hourmeterd")

	gormDB, err := openDB(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialise database: %w", err)
	}
	defer closeDB(ctx, gormDB)
	appStore := store.NewGormStore(gormDB)

	sink, closeSink, err := newSink(ctx, cfg, appStore)
	if err != nil {
		return err
	}
	defer closeSink()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc, err := newService(appStore, sink, cfg.Accrual, metrics.New(registry))
	if err != nil {
		return fmt.Errorf("initialise accrual service: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runnerDone := make(chan struct{})
	if cfg.Accrual.Enabled {
		runner, err := accrual.NewRunner(svc, cfg.Accrual.DailyAt, cfg.Accrual.Location, cfg.Accrual.RunOnStart)
		if err != nil {
			return err
		}
		go func() {
			defer close(runnerDone)
			runner.Run(runCtx)
		}()
	} else {
		logger.Warnf(ctx, "daily accrual is disabled, runs can only be triggered through the API")
		close(runnerDone)
	}

	handler := api.NewHandler(appStore, svc, webpushOptions(cfg.Push), cfg.Accrual.Location)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(handler, cfg.Server, registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.InfoKV(ctx, "HTTP server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info(ctx, "shutdown signal received, stopping services")
	case err := <-serveErr:
		if err != nil {
			cancel()
			<-runnerDone
			return fmt.Errorf("http server: %w", err)
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	<-runnerDone

	logger.Info(ctx, "server gracefully stopped")
	return nil
}

// RunOnce performs a single daily accrual for the given weekday and moment.
func RunOnce(ctx context.Context, cfg *config.Config, today time.Weekday, now time.Time) (*accrual.RunReport, error) {
	ctx = logger.WithName(ctx, "run-once")

	gormDB, err := openDB(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initialise database: %w", err)
	}
	defer closeDB(ctx, gormDB)
	appStore := store.NewGormStore(gormDB)

	sink, closeSink, err := newSink(ctx, cfg, appStore)
	if err != nil {
		return nil, err
	}
	defer closeSink()

	svc, err := newService(appStore, sink, cfg.Accrual, nil)
	if err != nil {
		return nil, fmt.Errorf("initialise accrual service: %w", err)
	}
	return svc.RunDailyAccrual(ctx, today, now)
}

// Migrate creates or updates the database schema.
func Migrate(ctx context.Context, cfg *config.Config) error {
	ctx = logger.WithName(ctx, "migrate")
	gormDB, err := db.Open(&cfg.Database, logger.Level() == zapcore.DebugLevel)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer closeDB(ctx, gormDB)
	return db.Migrate(ctx, gormDB)
}
