/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the approval engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load configuration (defaults < config file < .env / environment)
  3. Build the zap logger
  4. Open the SQLite store (runs migrations)
  5. Open the receipt blob store (local directory or S3)
  6. Create API handler and router
  7. Serve until SIGINT/SIGTERM, then shut down gracefully

COMMAND-LINE FLAGS:
  -config  Path to a YAML config file (optional)

ENVIRONMENT:
  Every key can be overridden with APPROVALS_<SECTION>_<KEY>, for example
  APPROVALS_SERVER_PORT=3000 or APPROVALS_DATABASE_PATH=./data/dev.db.
  A .env file in the working directory is loaded first if present.

EXAMPLES:
  ./server -config=./config.yaml
  APPROVALS_RECEIPTS_BACKEND=s3 APPROVALS_RECEIPTS_S3_BUCKET=receipts ./server

SEE ALSO:
  - config/config.go: Configuration keys and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/approval-engine/api"
	"github.com/warp/approval-engine/config"
	"github.com/warp/approval-engine/logging"
	"github.com/warp/approval-engine/receipts"
	"github.com/warp/approval-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		OutputPath: cfg.Logger.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path, cfg.Database.BusyTimeout)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	blobs, err := receipts.Open(cfg.Receipts, logger.Named("receipts"))
	if err != nil {
		return fmt.Errorf("open receipt storage: %w", err)
	}
	if blobs == nil {
		logger.Warn("receipt storage disabled, uploads will fail")
	}

	handler := api.NewHandler(store, blobs, api.Options{
		Policy:         cfg.Authz.Policy(),
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Logger:         logger,
	})
	router := api.NewRouter(handler, api.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("database", cfg.Database.Path),
			zap.String("receipts", cfg.Receipts.Backend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server", zap.Duration("timeout", cfg.Server.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}
