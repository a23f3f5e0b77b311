package router

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"time"

	"app/internal/api/v1/handler"
	"app/internal/config"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/pgmq"
	"app/internal/pubsub"
	"app/internal/repository"
	"app/internal/service"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awsmiddleware "github.com/aws/smithy-go/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// New wires the full API: storage, collaborator clients, services, handlers
// and middleware. The returned cleanup closes both database handles.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (http.Handler, func(), error) {
	logger.Info().Str("environment", cfg.Environment).Msg("Router initializing")

	dsn := normalizeDSN(cfg)

	// Run schema migrations before anything touches the tables.
	if err := repository.RunMigrations(ctx, dsn); err != nil {
		return nil, nil, err
	}

	// pgxpool for the repositories.
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	// A database/sql handle for the pgmq queue client.
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)
	logger.Info().Msg("Database connection successful")

	cleanup := func() {
		pool.Close()
		_ = db.Close()
	}

	// S3 client for generated assets.
	s3Config, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
		awsconfig.WithAPIOptions([]func(*awsmiddleware.Stack) error{removeDisableGzip()}),
	)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	s3Client := s3.NewFromConfig(s3Config, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3URL)
		o.UsePathStyle = true
	})

	validate := validator.New(validator.WithRequiredStructEnabled())

	// Event publisher; a Nop keeps development working without GCP.
	var publisher pubsub.Publisher
	if cfg.GCPProjectID != "" {
		p, err := pubsub.NewPublisher(ctx, cfg.GCPProjectID)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		publisher = p
	} else {
		logger.Warn().Msg("GCP project not configured, account events will not be published")
		publisher = pubsub.NopPublisher{}
	}

	// Repositories, services, handlers.
	ledgerRepo := repository.NewLedgerRepo(pool, model.PlanFree, cfg.FreeCredits)
	challengeRepo := repository.NewChallengeRepo(pool)
	activityRepo := repository.NewActivityRepo(pool)

	mailer := service.NewMailer(cfg, logger)
	ledgerSvc := service.NewLedgerService(ledgerRepo, activityRepo, publisher, cfg, logger)
	authSvc := service.NewAuthService(challengeRepo, mailer, cfg, logger)
	sessionSvc := service.NewSessionService(cfg)
	billingSvc := service.NewBillingService(cfg, ledgerSvc, logger)
	authz := service.NewAuthorizer(cfg)

	assets := service.NewS3AssetStore(s3Client, cfg.S3Bucket, time.Duration(cfg.PresignedURLExpirySec)*time.Second)
	genClient := service.NewGenerationClient(cfg.ImageServiceURL, cfg.VideoServiceURL, time.Duration(cfg.GenerationTimeoutSec)*time.Second)
	queue := pgmq.New(db)
	generationSvc := service.NewGenerationService(cfg, ledgerSvc, genClient, assets, queue, logger)

	authHandler := handler.NewAuthHandler(authSvc, sessionSvc, ledgerSvc, validate, logger)
	userHandler := handler.NewUserHandler(ledgerSvc, logger)
	billingHandler := handler.NewBillingHandler(billingSvc, validate, logger)
	generationHandler := handler.NewGenerationHandler(generationSvc, validate, logger)
	adminHandler := handler.NewAdminHandler(ledgerSvc, validate, logger)

	authMiddleware := middleware.AuthMiddleware(sessionSvc)
	adminMiddleware := middleware.AdminMiddleware(authz)

	apiV1Mux := http.NewServeMux()
	authHandler.RegisterRoutes(apiV1Mux)
	userHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	billingHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	generationHandler.RegisterRoutes(apiV1Mux, authMiddleware)
	adminHandler.RegisterRoutes(apiV1Mux, authMiddleware, adminMiddleware)

	mux := http.NewServeMux()
	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1Mux))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Swagger documentation
	mux.HandleFunc("/swagger/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./docs/swagger/swagger.json")
	})
	mux.Handle("/swagger/", http.StripPrefix("/swagger/", http.FileServer(http.Dir("./docs/swagger/swagger-ui"))))

	c := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.AllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return middleware.LoggerMiddleware(c.Handler(mux)), cleanup, nil
}

// normalizeDSN applies environment-appropriate connection options. Local
// development disables SSL; pooled production connections need the simple
// query protocol.
func normalizeDSN(cfg *config.Config) string {
	dsn := cfg.DBConnectionString
	if cfg.Environment == "development" && !strings.Contains(dsn, "sslmode") {
		dsn += dsnSeparator(dsn) + "sslmode=disable"
	}
	if cfg.Environment != "development" && !strings.Contains(dsn, "prefer_simple_protocol") {
		dsn += dsnSeparator(dsn) + "prefer_simple_protocol=true"
	}
	return dsn
}

func dsnSeparator(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		if strings.Contains(dsn, "?") {
			return "&"
		}
		return "?"
	}
	return " "
}

// removeDisableGzip is a workaround for S3 signature errors with some
// S3-compatible services.
// See: https://github.com/supabase/storage/issues/577
func removeDisableGzip() func(*awsmiddleware.Stack) error {
	return func(stack *awsmiddleware.Stack) error {
		if _, ok := stack.Finalize.Get("DisableAcceptEncodingGzip"); ok {
			_, err := stack.Finalize.Remove("DisableAcceptEncodingGzip")
			return err
		}
		return nil
	}
}
