package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/run-matchmaker/internal/battle"
	"github.com/run-matchmaker/internal/bot"
	"github.com/run-matchmaker/internal/catalog"
	"github.com/run-matchmaker/internal/config"
	"github.com/run-matchmaker/internal/handler"
	"github.com/run-matchmaker/internal/kafka"
	"github.com/run-matchmaker/internal/matchmaking"
	"github.com/run-matchmaker/internal/memory"
	"github.com/run-matchmaker/internal/postgres"
	"github.com/run-matchmaker/internal/redis"
	"github.com/run-matchmaker/internal/replay"
	"github.com/run-matchmaker/internal/run"
	"github.com/run-matchmaker/internal/service"
	"github.com/run-matchmaker/internal/websocket"
	"github.com/run-matchmaker/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Environment overrides referenced by ${VAR} in the config file
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to load .env file", "error", err)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Game content
	content, err := catalog.New(cfg.Catalog.Version)
	if err != nil {
		logger.Error("failed to load catalog", "version", cfg.Catalog.Version, "error", err)
		os.Exit(1)
	}
	bots, err := bot.NewGenerator(content)
	if err != nil {
		logger.Error("failed to load bot compositions", "error", err)
		os.Exit(1)
	}
	logger.Info("catalog loaded", "version", content.Version(), "factions", content.FactionIDs())

	// Run storage
	var runs service.RunRepository
	switch cfg.Storage.Runs {
	case config.BackendMemory:
		logger.Warn("using in-memory run storage")
		runs = memory.NewRunStore()
	default:
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		postgresRepo, err := postgres.NewRepository(&cfg.Postgres, logger)
		if err != nil {
			logger.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		defer postgresRepo.Close()
		logger.Info("connected to PostgreSQL")

		// Run database migrations
		if err := postgresRepo.RunMigrations(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		runs = postgresRepo
	}

	// Snapshot pool
	var pool matchmaking.SnapshotStore
	switch cfg.Storage.Snapshots {
	case config.BackendMemory:
		logger.Warn("using in-memory snapshot pool")
		pool = memory.NewSnapshotPool()
	default:
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		redisPool, err := redis.NewSnapshotPool(&cfg.Redis, logger)
		if err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redisPool.Close()
		logger.Info("connected to Redis")
		pool = redisPool
	}

	// Replay archive
	var replayStore replay.Store
	switch cfg.Replay.Backend {
	case config.BackendS3:
		s3Store, err := replay.NewS3Store(ctx, &cfg.Replay)
		if err != nil {
			logger.Error("failed to configure replay bucket", "error", err)
			os.Exit(1)
		}
		logger.Info("replays stored in bucket", "bucket", cfg.Replay.Bucket)
		replayStore = s3Store
	default:
		replayStore = replay.NewMemoryStore()
	}
	replays := replay.NewWriter(replayStore, cfg.Replay.Attempts, cfg.Replay.RetryDelay, logger)

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	// Initialize services
	engine := matchmaking.NewEngine(pool, bots, matchmaking.Config{
		RatingRange:           cfg.Matchmaking.RatingRange,
		MaxCandidates:         cfg.Matchmaking.MaxCandidates,
		BotFallback:           cfg.Matchmaking.BotFallback,
		MaxSnapshotsPerPlayer: cfg.Matchmaking.MaxSnapshotsPerPlayer,
	}, logger)

	machine := run.NewMachine(content,
		run.WithStartingGold(cfg.Run.StartingGold),
		run.WithStartingRating(cfg.Run.StartingRating),
	)

	runService := service.NewRunService(
		runs,
		machine,
		content,
		engine,
		battle.NewStrengthResolver(),
		replays,
		&cfg.Run,
		logger,
	)

	// Set the WebSocket hub on the service for broadcasting
	runService.SetBroadcaster(wsHub)

	// Initialize sweep worker
	sweepWorker := worker.NewSweepWorker(engine, &cfg.Sweep, logger)
	if cfg.Sweep.Enabled {
		sweepWorker.RunOnce(ctx)
		if err := sweepWorker.Start(ctx); err != nil {
			logger.Error("failed to start sweep worker", "error", err)
			os.Exit(1)
		}
	}

	// Initialize Kafka consumer for pool seeding
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		var err error
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, engine, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else {
			if err := kafkaConsumer.Start(); err != nil {
				logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
				kafkaConsumer = nil
			} else {
				logger.Info("Kafka consumer started successfully")
			}
		}
	}

	// Initialize HTTP handler with WebSocket hub
	httpHandler := handler.NewHandler(runService, content, wsHub, handler.NewAuthenticator(&cfg.Auth), logger)
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("no jwt secret configured, trusting the " + handler.PlayerHeader + " header")
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	// Stop WebSocket hub
	wsHub.Stop()

	// Stop Kafka consumer
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	// Stop sweep worker
	if err := sweepWorker.Stop(); err != nil {
		logger.Error("failed to stop sweep worker", "error", err)
	}

	logger.Info("server stopped")
}
