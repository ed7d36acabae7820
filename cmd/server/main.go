/*
main.go - Application entry point

STARTUP SEQUENCE:
  1. Load configuration (defaults, .env, environment, flags)
  2. Open the SQL store (SQLite or PostgreSQL)
  3. Build the reconciliation engine and API handler
  4. Optionally start the index repair scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port             HTTP server port (default: 8080)
  -driver           sqlite3 | postgres (default: sqlite3)
  -db               DSN or SQLite path (default: attendance.db)
                    Use ":memory:" for in-memory database
  -batches          comma-separated batch names
  -repair-interval  index repair period, e.g. 15m (default: disabled)
  -log-level        debug | info | warn | error

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the repair scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

SEE ALSO:
  - config/config.go: Configuration keys and environment variables
  - api/server.go: Router configuration
  - store/sqlstore/sqlstore.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/attendance-engine/api"
	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/config"
	"github.com/warp/attendance-engine/store/sqlstore"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if cfg.JWTSecret == config.DevJWTSecret {
		logger.Warn("using the development JWT secret; set ATTENDANCE_JWT_SECRET")
	}

	// Initialize store
	store, err := sqlstore.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logger.Error("failed to initialize database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	batches := attendance.NewBatchSet(cfg.Batches...)
	engine := attendance.NewEngine(store, store, batches, attendance.WithLogger(logger))

	handler := api.NewHandler(store, store, engine, batches)
	handler.HistoryLimit = cfg.HistoryLimit

	scheduler := api.NewIndexRepairScheduler(engine, logger)
	scheduler.CheckInterval = cfg.RepairInterval
	scheduler.Start()

	router := api.NewRouter(handler, api.NewAuthenticator(cfg.JWTSecret), cfg.CORSOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			slog.String("addr", fmt.Sprintf("http://localhost:%d", cfg.Port)),
			slog.String("driver", cfg.DBDriver),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}
