package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"neswara/internal/activity"
	"neswara/internal/api"
	"neswara/internal/article"
	"neswara/internal/config"
	"neswara/internal/dashboard"
	"neswara/internal/db"
	"neswara/internal/event"
	"neswara/internal/logging"
	"neswara/internal/notification"
	"neswara/internal/store"
	"neswara/internal/ticker"
	"neswara/internal/user"
)

func main() {
	// Root context cancelled on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New(logging.Config{})
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("service stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	ctx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	var (
		docs        store.Client
		mongoClient *mongo.Client
		database    *mongo.Database
	)

	switch cfg.StoreBackend {
	case config.BackendMemory:
		logger.Warn().Msg("using in-memory document store, data is lost on exit")
		docs = store.NewMemory()
	default:
		client, err := db.ConnectMongo(ctx, cfg.MongoURI, cfg.ConnectTimeout)
		if err != nil {
			return err
		}
		mongoClient = client
		database = client.Database(cfg.MongoDBName)

		m, err := store.NewMongo(database, logger)
		if err != nil {
			return err
		}
		docs = m
		logger.Info().Str("db", cfg.MongoDBName).Msg("document store connected")
	}

	logs := activity.NewLogger(docs, logger)
	pipeline := dashboard.New(docs, dashboard.Config{
		RangeDays:            cfg.TrendRangeDays,
		ClockInterval:        cfg.ClockInterval,
		CommentRetryAttempts: cfg.CommentRetryAttempts,
		CommentRetryBackoff:  cfg.CommentRetryBackoff,
	}, logger)
	hub := api.NewHub(pipeline, logger)

	server := api.NewServer(api.Deps{
		Articles:      article.NewRepository(docs, logs, logger),
		Ticker:        ticker.NewController(docs, logs, logger),
		Users:         user.NewService(docs, logs, logger),
		Notifications: notification.NewService(docs, logs, logger),
		Activity:      logs,
		Dashboard:     pipeline,
		Hub:           hub,
	}, logger)

	// Start background workers
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		pipeline.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		_ = hub.Run(ctx)
	}()

	if cfg.EventsEnabled {
		if database == nil {
			logger.Warn().Msg("content events need the mongo backend, skipping")
		} else {
			publisher, err := event.NewRabbitPublisher(cfg.RabbitURI, cfg.RabbitExchange, logger)
			if err != nil {
				return err
			}
			defer publisher.Close()

			events := event.NewService(database, publisher, logger)
			wg.Add(1)
			go func() {
				defer wg.Done()
				events.Run(ctx)
			}()
		}
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Router(),
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	logger.Info().Str("backend", cfg.StoreBackend).Msg("service started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received, shutting down...")
	case runErr = <-serveErr:
		logger.Error().Err(runErr).Msg("HTTP server failed")
	}

	// Unified shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn().Err(err).Msg("HTTP server shutdown error")
	}

	stopWorkers()
	wg.Wait()
	logs.Wait()

	if mongoClient != nil {
		if err := mongoClient.Disconnect(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("mongo disconnect error")
		}
	}
	return runErr
}
