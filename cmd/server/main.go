/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the supply-chain ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env / environment (config.Load)
  2. Parse command-line flags (override the environment)
  3. Build the zap logger
  4. Open the store (SQLite or MySQL)
  5. Create API handler, router and integrity auditor
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (PORT, default: 8080)
  -driver  sqlite | mysql (DB_DRIVER, default: sqlite)
  -db      SQLite database path (SQLITE_PATH, default: supplychain.db)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the integrity auditor
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  # Run with file database and demo scenarios
  ENABLE_SCENARIOS=true ./server -db="./data/supplychain.db"

  # Run against MySQL
  DB_DRIVER=mysql MYSQL_HOST=db JWT_SECRET=... APP_ENV=production ./server

SEE ALSO:
  - config/config.go: Environment keys
  - api/server.go: Router configuration
  - store/sqlite, store/mysql: Database implementations
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
	"time"

	"go.uber.org/zap"

	"github.com/warp/supplychain/api"
	"github.com/warp/supplychain/auth"
	"github.com/warp/supplychain/config"
	"github.com/warp/supplychain/logging"
	"github.com/warp/supplychain/store/mysql"
	"github.com/warp/supplychain/store/sqlite"
	"github.com/warp/supplychain/store/sqlstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Flags
	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.Database.Driver, "driver", cfg.Database.Driver, "Store driver: sqlite or mysql")
	flag.StringVar(&cfg.Database.SQLitePath, "db", cfg.Database.SQLitePath, "SQLite database path")
	flag.Parse()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	// Initialize store
	store, err := openStore(cfg.Database)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()
	log.Info("store ready", zap.String("driver", store.Dialect()))

	// Initialize handler
	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	handler := api.NewHandler(store, issuer, log.Named("api"))

	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins:     cfg.CORSOrigins,
		EnableScenarios: cfg.EnableScenarios,
	})

	auditor := api.NewIntegrityAuditor(handler.Ledger, store, log, cfg.AuditInterval)
	handler.Auditor = auditor
	auditor.Start()
	defer auditor.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serveErr := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.Int("port", cfg.Port),
			zap.String("env", cfg.Env),
			zap.Bool("scenarios", cfg.EnableScenarios),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return err
	case sig := <-quit:
		log.Info("shutting down server", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}

func openStore(db config.DatabaseConfig) (*sqlstore.Store, error) {
	switch db.Driver {
	case config.DriverMySQL:
		return mysql.New(mysql.Config{
			Host:     db.MySQL.Host,
			Port:     db.MySQL.Port,
			User:     db.MySQL.User,
			Password: db.MySQL.Password,
			Database: db.MySQL.Database,
		})
	default:
		return sqlite.New(db.SQLitePath)
	}
}
