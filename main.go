package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sitepulse-io/sitepulse-engine/pkg/auth"
	"github.com/sitepulse-io/sitepulse-engine/pkg/blobstore"
	"github.com/sitepulse-io/sitepulse-engine/pkg/config"
	"github.com/sitepulse-io/sitepulse-engine/pkg/database"
	"github.com/sitepulse-io/sitepulse-engine/pkg/handlers"
	"github.com/sitepulse-io/sitepulse-engine/pkg/llm"
	"github.com/sitepulse-io/sitepulse-engine/pkg/logging"
	"github.com/sitepulse-io/sitepulse-engine/pkg/repositories"
	"github.com/sitepulse-io/sitepulse-engine/pkg/services"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sitepulse-engine: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(version)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("Starting sitepulse-engine",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Migrations run over database/sql; the application itself uses pgxpool.
	migrationDB, err := sql.Open("pgx", cfg.Database.URL())
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	if err := database.RunMigrations(migrationDB, cfg.MigrationsPath, logger); err != nil {
		migrationDB.Close()
		return err
	}
	migrationDB.Close()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.URL(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	projectRepo := repositories.NewProjectRepository(db)
	datasetRepo := repositories.NewDatasetRepository(db)
	rowRepo := repositories.NewDatasetRowRepository(db)
	catalogRepo := repositories.NewMetricCatalogRepository(db)
	unifiedStore := repositories.NewUnifiedStore(db)

	if err := services.SeedMetricCatalog(ctx, cfg.CatalogSeedPath, catalogRepo, logger); err != nil {
		return err
	}

	var blob blobstore.Store
	if cfg.Blob.Enabled() {
		s3, err := blobstore.NewS3(ctx, blobstore.Config{
			Bucket:    cfg.Blob.Bucket,
			Region:    cfg.Blob.Region,
			Endpoint:  cfg.Blob.Endpoint,
			PathStyle: cfg.Blob.PathStyle,
		})
		if err != nil {
			return err
		}
		blob = s3
		logger.Info("Blob archive enabled", zap.String("bucket", cfg.Blob.Bucket))
	}

	llmClient, err := llm.NewClient(&llm.Config{
		Provider: cfg.Inference.Provider,
		Endpoint: cfg.Inference.Endpoint,
		Model:    cfg.Inference.Model,
		APIKey:   cfg.Inference.APIKey,
	}, logger)
	if err != nil {
		return err
	}

	inference := services.NewInferenceService(llmClient, cfg.Inference.Timeout(), cfg.Inference.SampleRows, logger)
	validator := services.NewMappingValidator()
	etl := services.NewETLEngine(unifiedStore, services.IngestPolicy{
		BatchSize:         cfg.Ingest.BatchSize,
		RowErrorLimit:     cfg.Ingest.RowErrorLimit,
		MaxRejectFraction: cfg.Ingest.MaxRejectFraction,
		TimestampLayouts:  cfg.Ingest.TimestampLayouts,
	}, logger)
	datasetService := services.NewDatasetService(
		datasetRepo, rowRepo, projectRepo, inference, validator, etl,
		blob, cfg.Ingest.BatchSize, logger)

	tokenValidator, err := auth.NewValidator(ctx, cfg.Auth.JWKSURL, cfg.Auth.EnableVerification)
	if err != nil {
		return err
	}
	authMW := auth.NewMiddleware(tokenValidator, logger)
	global := authMW.RequireAuth
	scoped := authMW.RequireProject("pid")

	mux := http.NewServeMux()
	handlers.NewHealthHandler(db, cfg.Version, logger).RegisterRoutes(mux)
	handlers.NewProjectHandler(projectRepo, logger).RegisterRoutes(mux, global, scoped)
	handlers.NewDatasetHandler(datasetService, logger).RegisterRoutes(mux, global, scoped)
	handlers.NewQueryHandler(unifiedStore, catalogRepo, logger).RegisterRoutes(mux, scoped)
	mux.Handle("GET /metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
