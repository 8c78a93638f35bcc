/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the points server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load optional YAML config
  2. Configure structured logging
  3. Open the Lot Store (memory or SQLite) and reset it
  4. Create Ledger, metrics, and API handler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config     YAML config file (optional)
  -port       HTTP server port (overrides listen)
  -store      Store backend: memory | sqlite
  -db         SQLite database path (default ":memory:")
  -log-level  debug | info | warn | error

STATE:
  The Ledger keeps no state across restarts. The SQLite backend is reset
  on startup, whatever path it is given.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (shutdown_timeout)
  3. Close the store
  4. Exit

EXAMPLES:
  ./server
  ./server -store=sqlite -db=":memory:"
  ./server -config=./points.yaml -port=3000

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Config file format
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/points-engine/api"
	"github.com/warp/points-engine/config"
	"github.com/warp/points-engine/generic"
	memstore "github.com/warp/points-engine/generic/store"
	"github.com/warp/points-engine/logging"
	"github.com/warp/points-engine/rewards"
	"github.com/warp/points-engine/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "points server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Flags
	configPath := flag.String("config", "", "YAML config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config listen)")
	storeDriver := flag.String("store", "", "Store backend: memory or sqlite")
	dbPath := flag.String("db", "", "SQLite database path")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *port != 0 {
		cfg.ListenAddress = fmt.Sprintf(":%d", *port)
	}
	if *storeDriver != "" {
		cfg.Store.Driver = *storeDriver
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	logger := logging.Setup("points-engine", cfg.Log.Level, cfg.Log.Format)

	// Initialize store
	store, closeStore, err := openStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer closeStore()

	if err := store.Reset(context.Background()); err != nil {
		return fmt.Errorf("failed to reset store: %w", err)
	}

	// Initialize handler
	ledger := rewards.NewLedger(store)
	handler := api.NewHandler(ledger, api.NewMetrics(), logger)

	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RateLimiter:    api.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst),
	})

	server := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("listen", cfg.ListenAddress),
			slog.String("store", cfg.Store.Driver),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func openStore(cfg config.StoreConfig) (generic.TxStore, func(), error) {
	switch cfg.Driver {
	case config.StoreSQLite:
		s, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		return memstore.NewMemory(), func() {}, nil
	}
}
