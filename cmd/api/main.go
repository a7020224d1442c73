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
	"path/filepath"
	"syscall"
	"time"
	_ "time/tzdata"

	"gigflow/internal/api"
	"gigflow/internal/config"
	"gigflow/internal/database"
	"gigflow/internal/domain"
	"gigflow/internal/events"
	"gigflow/internal/google"
	"gigflow/internal/logging"
	"gigflow/internal/metrics"
	"gigflow/internal/repository"
	"gigflow/internal/service"
	"gigflow/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
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

	db, err := initDatabase(cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, &logger)

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	drafts := initDraftStore(cfg, redisClient, &logger)

	eventBus := events.NewEventBus()
	subscribeMarketplaceEvents(eventBus, &logger)

	var calendarQueue domain.CalendarQueue
	if cfg.Worker.Enabled {
		calendarWorker := worker.NewCalendarWorker(
			db,
			initCalendarSink(ctx, cfg, &logger),
			redisClient,
			worker.RetryPolicyFromConfig(cfg.Worker),
			cfg.Worker.QueueSize,
			cfg.Worker.PollInterval,
			logging.Component(&logger, "calendar-worker"),
		)
		go calendarWorker.Start(ctx)
		calendarQueue = calendarWorker
	}

	svc := service.NewMarketplaceService(
		db, drafts, eventBus, calendarQueue,
		service.OptionsFromConfig(cfg.Marketplace),
		logging.Component(&logger, "marketplace"),
	)

	httpServer := api.NewHTTPServer(cfg.API, svc, readiness(db, redisClient), &logger)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, svc, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initDatabase(cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("create database directory")
		return nil, err
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initDraftStore prefers redis and keeps an in-memory copy for when it fails.
func initDraftStore(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.DraftStore {
	memory := repository.NewMemoryDraftStore(cfg.Marketplace.SelectionTTL)
	if redisClient == nil {
		return memory
	}
	primary := repository.NewRedisDraftStore(redisClient, cfg.Marketplace.SelectionTTL)
	return repository.NewFailoverDraftStore(primary, memory, logging.Component(logger, "drafts"))
}

func initCalendarSink(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) domain.CalendarSink {
	if !cfg.Google.CalendarEnabled() {
		return nil
	}

	calendarService, err := google.NewCalendarService(ctx, cfg.Google.CredentialsFile, cfg.Google.CalendarID, cfg.Marketplace.Location())
	if err != nil {
		logger.Warn().Err(err).Msg("google calendar init failed, continuing without calendar sync")
		return nil
	}
	if err := calendarService.TestConnection(ctx); err != nil {
		email, _ := google.ServiceAccountEmail(cfg.Google.CredentialsFile)
		logger.Warn().Err(err).Str("service_account", email).Msg("google calendar not reachable, share the calendar with the service account")
		return nil
	}

	logger.Info().Str("calendar_id", cfg.Google.CalendarID).Msg("google calendar connected")
	return calendarService
}

func subscribeMarketplaceEvents(bus *events.EventBus, logger *zerolog.Logger) {
	eventLog := logging.Component(logger, "events")

	bus.OnError(func(ev *events.Event, err error) {
		eventLog.Error().Err(err).Str("event", ev.Type).Msg("event handler failed")
	})

	bus.Subscribe(events.AllEvents, func(ev *events.Event) error {
		metrics.IncEvent(ev.Type)
		return nil
	})

	logGig := func(ev *events.Event) error {
		var payload events.GigEventPayload
		if err := ev.Decode(&payload); err != nil {
			return fmt.Errorf("decode %s: %w", ev.Type, err)
		}
		eventLog.Info().
			Str("event", ev.Type).
			Int64("gig_id", payload.GigID).
			Str("status", payload.Status).
			Int64("actor_id", payload.ActorID).
			Ints64("hired_ids", payload.HiredIDs).
			Ints64("rejected_ids", payload.RejectedIDs).
			Msg("gig event")
		return nil
	}
	for _, eventType := range []string{
		events.EventGigCreated,
		events.EventGigUpdated,
		events.EventApplicationSubmitted,
		events.EventGigHired,
		events.EventApplicationRejected,
		events.EventGigClosed,
		events.EventGigCancelled,
	} {
		bus.Subscribe(eventType, logGig)
	}

	bus.Subscribe(events.EventChatMessagePosted, func(ev *events.Event) error {
		var payload events.ChatEventPayload
		if err := ev.Decode(&payload); err != nil {
			return fmt.Errorf("decode %s: %w", ev.Type, err)
		}
		eventLog.Debug().
			Int64("application_id", payload.ApplicationID).
			Int64("sender_id", payload.SenderID).
			Msg("chat message")
		return nil
	})
}

func readiness(db *database.DB, redisClient *redis.Client) api.ReadyFunc {
	return func(ctx context.Context) error {
		if err := db.Ready(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		if redisClient != nil {
			if err := repository.Ping(ctx, redisClient); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	metrics.Register()
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	started := logger.Info().Int("http_port", cfg.API.HTTP.Port)
	if grpcServer != nil {
		started = started.Str("grpc_addr", grpcServer.Addr())
	}
	started.Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
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
