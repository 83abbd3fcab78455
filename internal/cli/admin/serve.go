package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/revisehq/cardsmith/internal/anki"
	"github.com/revisehq/cardsmith/internal/api/handlers"
	"github.com/revisehq/cardsmith/internal/chunker"
	"github.com/revisehq/cardsmith/internal/config"
	"github.com/revisehq/cardsmith/internal/database"
	"github.com/revisehq/cardsmith/internal/dedup"
	"github.com/revisehq/cardsmith/internal/extract"
	"github.com/revisehq/cardsmith/internal/genai"
	"github.com/revisehq/cardsmith/internal/jobs"
	"github.com/revisehq/cardsmith/internal/pipeline"
	"github.com/revisehq/cardsmith/internal/progress"
	"github.com/revisehq/cardsmith/internal/repository"
	"github.com/revisehq/cardsmith/internal/server"
	"github.com/revisehq/cardsmith/internal/service"
	"github.com/revisehq/cardsmith/internal/storage"
	"github.com/revisehq/cardsmith/internal/telemetry"
	"github.com/revisehq/cardsmith/internal/tracker"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and pipeline workers",
		Long:  "Start the cardsmith API server and the background workers that process flashcard jobs",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().Bool("no-worker", false, "Serve the API without processing jobs")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.SentryDSN != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	documentRepo := repository.NewDocumentRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	jobRepo := repository.NewJobRepository(pool)
	ledgerRepo := repository.NewLedgerRepository(pool)

	var store *storage.S3Client
	if cfg.HasS3() {
		s3Config := storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		}
		store, err = storage.NewS3Client(ctx, s3Config)
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
	}

	extractor := extract.NewPDFExtractor()
	planner := chunker.NewService(chunkRepo)
	jobTracker := tracker.NewTracker(jobRepo)
	ledger := dedup.NewLedger(ledgerRepo)
	bus := progress.NewBus()

	var documentSvc *service.DocumentService
	if store != nil {
		documentSvc = service.NewDocumentServiceWithUploader(documentRepo, chunkRepo, extractor, store)
	} else {
		documentSvc = service.NewDocumentService(documentRepo, chunkRepo, extractor)
	}
	jobSvc := service.NewJobService(documentSvc, planner, jobTracker, ledger)

	var pipelineWorker, sweepWorker *jobs.Worker
	var processor *pipeline.Processor
	noWorker, _ := cmd.Flags().GetBool("no-worker")
	if !noWorker {
		if !cfg.HasOpenAI() {
			return fmt.Errorf("OPENAI_API_KEY is required to process jobs (use --no-worker for an API-only server)")
		}

		generator := genai.NewClientWithConfig(genai.Config{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIModel,
		})
		sink := anki.NewClient(cfg.AnkiURL)
		if err := sink.Ping(ctx); err != nil {
			log.Printf("flashcard sink not reachable at %s, imports will fail until it is: %v", cfg.AnkiURL, err)
		}

		var docStore pipeline.DocumentStore
		if store != nil {
			docStore = store
		}
		runner := pipeline.NewRunner(documentRepo, chunkRepo, jobTracker, ledger, generator, sink, extractor, docStore, bus)
		processor = pipeline.NewProcessor(jobRepo, runner, cfg.MaxConcurrentJobs)

		pipelineWorker = jobs.NewWorker("pipeline", processor, time.Duration(cfg.PollIntervalSeconds)*time.Second)
		go pipelineWorker.Start(ctx)

		sweeper := jobs.NewSweeper(jobRepo, time.Duration(cfg.StaleThresholdMinutes)*time.Minute)
		sweepWorker = jobs.NewWorker("sweeper", sweeper, time.Minute)
		go sweepWorker.Start(ctx)

		log.Printf("pipeline workers started (max %d concurrent jobs)", cfg.MaxConcurrentJobs)
	}

	routerCfg := server.RouterConfig{
		DocumentHandler: handlers.NewDocumentHandler(documentSvc),
		JobHandler:      handlers.NewJobHandler(jobSvc, bus),
	}

	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if pipelineWorker != nil {
		pipelineWorker.Stop()
	}
	if sweepWorker != nil {
		sweepWorker.Stop()
	}
	if processor != nil {
		// In-flight jobs finish; interrupted ones are requeued by the sweeper
		// on the next start.
		processor.Wait()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

func runMigrations(databaseURL string) error {
	// Create a sql.DB connection for golang-migrate
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	// Create postgres driver instance
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// Create migrate instance with file source
	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	// Run migrations
	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Get migration version and status
	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
