package main

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"
	"time"

	"app/internal/config"
	"app/internal/logger"
	"app/internal/model"
	"app/internal/pgmq"
	"app/internal/pubsub"
	"app/internal/repository"
	"app/internal/service"
	"app/internal/worker/videojob"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

func main() {
	// Initialize logger
	logger := logger.New()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("Warning: no .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Msgf("Error loading config: %v", err)
	}

	// Set up context with graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize DB connections: pgxpool for the ledger, database/sql for pgmq.
	pool, err := pgxpool.New(ctx, cfg.DBConnectionString)
	if err != nil {
		logger.Fatal().Msgf("Failed to open DB pool: %v", err)
	}
	defer pool.Close()

	db, err := sql.Open("pgx", cfg.DBConnectionString)
	if err != nil {
		logger.Fatal().Msgf("Failed to open DB connection: %v", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal().Msgf("Failed to ping DB: %v", err)
	}
	logger.Info().Msg("Database connection established")

	pgmqClient := pgmq.New(db)
	logger.Info().Msg("PGMQ client initialized")

	// Event publisher; a Nop keeps development working without GCP.
	var publisher pubsub.Publisher
	if cfg.GCPProjectID != "" {
		p, err := pubsub.NewPublisher(ctx, cfg.GCPProjectID)
		if err != nil {
			logger.Fatal().Msgf("Failed to create Pub/Sub publisher: %v", err)
		}
		publisher = p
	} else {
		publisher = pubsub.NopPublisher{}
	}

	ledgerRepo := repository.NewLedgerRepo(pool, model.PlanFree, cfg.FreeCredits)
	activityRepo := repository.NewActivityRepo(pool)
	ledgerSvc := service.NewLedgerService(ledgerRepo, activityRepo, publisher, cfg, logger)
	generator := service.NewGenerationClient(cfg.ImageServiceURL, cfg.VideoServiceURL, time.Duration(cfg.GenerationTimeoutSec)*time.Second)

	if err := videojob.Run(ctx, cfg, logger, pgmqClient, ledgerSvc, generator, publisher); err != nil {
		logger.Fatal().Msgf("Video job worker failed: %v", err)
	}

	logger.Info().Msg("Video job worker stopped gracefully")
}
