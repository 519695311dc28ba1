package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kerigma/internal/api"
	"kerigma/internal/config"
	"kerigma/internal/connectivity"
	"kerigma/internal/delivery"
	"kerigma/internal/events"
	"kerigma/internal/logging"
	"kerigma/internal/metrics"
	"kerigma/internal/notify"
	"kerigma/internal/offline"
	"kerigma/internal/reporting"
	"kerigma/internal/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reporter := initReporter(cfg, logger)
	if c, ok := reporter.(io.Closer); ok {
		defer (func() { _ = c.Close() })()
	}

	store, cleanup, err := initStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	source, sw := initConnectivity(ctx, cfg, logger)

	bus := events.NewEventBus()
	history := events.NewHistory(200)
	history.Attach(bus)
	logEvents(bus, logger)
	notifier, closeNotifier := initNotifier(cfg, bus, logger)
	defer closeNotifier()

	var observer offline.Observer
	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		observer = metrics.NewRecorder()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
	}

	manager, err := offline.New(ctx, store, source, notifier, initDeliverer(cfg), offline.Options{
		StorageKey:      cfg.Storage.Key,
		DeliveryTimeout: cfg.Sync.DeliveryTimeout,
		Retry:           delivery.RetryPolicyFromConfig(cfg.Sync.Retry),
		Logger:          logger,
		Reporter:        reporter,
		Observer:        observer,
		Bus:             bus,
	})
	if err != nil {
		logger.Error().Err(err).Msg("start offline manager")
		return err
	}
	defer manager.Close()

	return serve(ctx, cfg, manager, sw, history, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, baseLogger, closer, nil
}

func initReporter(cfg *config.Config, logger *zerolog.Logger) reporting.Reporter {
	if cfg.Sentry.DSN == "" {
		return reporting.Nop
	}
	reporter, err := reporting.NewSentryReporter(cfg.Sentry, cfg.App)
	if err != nil {
		logger.Warn().Err(err).Msg("sentry init failed, continuing without error reporting")
		return reporting.Nop
	}
	logger.Info().Msg("sentry connected")
	return reporter
}

// initStore opens the configured backend. With failover enabled a redis
// primary is mirrored into sqlite, which serves reads during an outage.
func initStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (storage.Store, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		logger.Warn().Msg("memory storage selected, pending actions will not survive a restart")
		return storage.NewMemoryStore(), func() {}, nil

	case config.BackendRedis:
		client := storage.NewRedisClient(cfg.Redis)
		if err := storage.Ping(ctx, client); err != nil {
			if !cfg.Storage.Failover {
				_ = storage.Close(client)
				logger.Error().Err(err).Str("addr", cfg.Redis.Address).Msg("redis connection failed")
				return nil, nil, err
			}
			logger.Warn().Err(err).Msg("redis connection failed, reads served from sqlite mirror")
		} else {
			logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
		}
		primary := storage.NewRedisStore(client, cfg.Redis.KeyPrefix)
		if !cfg.Storage.Failover {
			return primary, func() { _ = storage.Close(client) }, nil
		}

		mirror, err := storage.NewSQLiteStore(cfg.Storage.SQLitePath, logger)
		if err != nil {
			_ = storage.Close(client)
			logger.Error().Err(err).Str("db_path", cfg.Storage.SQLitePath).Msg("init sqlite mirror")
			return nil, nil, err
		}
		cleanup := func() {
			_ = storage.Close(client)
			_ = mirror.Close()
		}
		return storage.NewFailoverStore(primary, mirror, logger), cleanup, nil

	default:
		db, err := storage.NewSQLiteStore(cfg.Storage.SQLitePath, logger)
		if err != nil {
			logger.Error().Err(err).Str("db_path", cfg.Storage.SQLitePath).Msg("init sqlite store")
			return nil, nil, err
		}
		if cfg.Storage.Failover {
			logger.Warn().Msg("storage.failover only applies to the redis backend")
		}
		return db, func() { _ = db.Close() }, nil
	}
}

// initConnectivity returns the source the manager listens to and, in signal
// mode, the switch the HTTP API drives.
func initConnectivity(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (connectivity.Source, api.Switch) {
	if cfg.Connectivity.Mode == config.ConnectivityProbe {
		prober := connectivity.NewProber(
			cfg.Connectivity.ProbeURL,
			cfg.Connectivity.ProbeInterval,
			cfg.Connectivity.ProbeTimeout,
			cfg.StartOnline(),
			logger,
		)
		go prober.Run(ctx)
		return prober, nil
	}

	sig := connectivity.NewSignal(cfg.StartOnline())
	return sig, sig
}

func initNotifier(cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) (notify.Notifier, func()) {
	notifiers := notify.Multi{notify.NewBusNotifier(bus)}
	if cfg.Notifications.Log {
		notifiers = append(notifiers, notify.NewLogNotifier(logger))
	}

	tg := cfg.Notifications.Telegram
	if tg.BotToken == "" || tg.ChatID == 0 {
		return notifiers, func() {}
	}

	bot, err := notify.NewTelegramBot(tg.BotToken, tg.Debug)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, continuing without telegram notifications")
		return notifiers, func() {}
	}
	telegram := notify.NewTelegramNotifier(bot, tg.ChatID, logger)
	logger.Info().Int64("chat_id", tg.ChatID).Msg("telegram notifications enabled")
	return append(notifiers, telegram), func() { _ = telegram.Close() }
}

// logEvents traces every lifecycle event at debug level.
func logEvents(bus *events.EventBus, logger *zerolog.Logger) {
	l := logging.Component(logger, "events")
	for _, t := range events.AllTypes {
		bus.Subscribe(t, func(e *events.Event) error {
			l.Debug().Int64("event_id", e.ID).Str("type", e.Type).RawJSON("payload", e.Payload).Msg("event")
			return nil
		})
	}
}

func initDeliverer(cfg *config.Config) delivery.Deliverer {
	router := delivery.NewRouter()
	router.Fallback(delivery.NewHTTPDeliverer(cfg.Delivery))
	return router
}

func serve(
	ctx context.Context,
	cfg *config.Config,
	manager *offline.Manager,
	sw api.Switch,
	history api.EventLog,
	logger *zerolog.Logger,
) error {
	var httpServer *api.HTTPServer
	if cfg.API.Enabled {
		httpServer = api.NewHTTPServer(cfg.API, manager, sw, history, logger)
		go func() {
			if err := httpServer.Start(); err != nil {
				logger.Error().Err(err).Msg("http server stopped")
			}
		}()
	}

	logger.Info().
		Bool("online", manager.IsOnline()).
		Int("pending", len(manager.Pending())).
		Msg("offline sync service started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if httpServer != nil {
		_ = httpServer.Shutdown(shutdownCtx)
	}

	logger.Info().Msg("offline sync service stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
