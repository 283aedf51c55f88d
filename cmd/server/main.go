/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the household payments server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags (environment variables override defaults)
  2. Configure structured logging
  3. Initialize SQLite store
  4. Create API handler and router
  5. Start the auto-attribution scheduler (optionally redis-locked)
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS (ENVIRONMENT):
  -port       (PORT)                HTTP server port (default: 8080)
  -db         (DB_PATH)             SQLite database path (default: payments.db)
                                    Use ":memory:" for in-memory database
  -busy-timeout (DB_BUSY_TIMEOUT)   Wait for a locked database (default: 5s)
  -schedule   (SCHEDULER_INTERVAL)  Auto-attribution interval (default: 1h, 0 disables)
  -redis      (REDIS_ADDR)          Redis address for the scheduler job lock (optional)
  -jwt-secret (JWT_SECRET)          HS256 secret; empty means X-Member-ID identity
  -log-level  (LOG_LEVEL)           debug, info, warn, error (default: info)
  -cors       (CORS_ORIGINS)        Comma-separated allowed origins
  -static     (STATIC_DIR)          Frontend directory served at / (optional)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler (waits for an in-flight pass)
  4. Close database and redis connections
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/payments.db"

  # Run with in-memory database and no scheduler
  ./server -db=":memory:" -schedule=0

  # Several instances sharing one scheduler lock
  REDIS_ADDR=localhost:6379 ./server

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Auto-attribution scheduler
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/warp/household-payments/api"
	"github.com/warp/household-payments/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envString("DB_PATH", "payments.db"), "SQLite database path")
	busyTimeout := flag.Duration("busy-timeout", envDuration("DB_BUSY_TIMEOUT", sqlite.DefaultBusyTimeout), "wait for another writer before failing with a conflict")
	interval := flag.Duration("schedule", envDuration("SCHEDULER_INTERVAL", time.Hour), "auto-attribution interval (0 disables)")
	redisAddr := flag.String("redis", envString("REDIS_ADDR", ""), "redis address for the scheduler job lock")
	jwtSecret := flag.String("jwt-secret", envString("JWT_SECRET", ""), "HS256 secret for bearer identity")
	logLevel := flag.String("log-level", envString("LOG_LEVEL", "info"), "log level")
	corsOrigins := flag.String("cors", envString("CORS_ORIGINS", ""), "comma-separated allowed origins")
	staticDir := flag.String("static", envString("STATIC_DIR", "./web/dist"), "frontend directory")
	flag.Parse()

	logger := newLogger(*logLevel)
	slog.SetDefault(logger)

	// Initialize store
	store, err := sqlite.Open(*dbPath, *busyTimeout)
	if err != nil {
		logger.Error("failed to initialize database", "path", *dbPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Initialize handler and router
	handler := api.NewHandler(store, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		AllowedOrigins: splitList(*corsOrigins),
		JWTSecret:      []byte(*jwtSecret),
		StaticDir:      *staticDir,
	})

	// Scheduler, shared with the manual auto-attribute endpoint
	scheduler := handler.Scheduler
	scheduler.CheckInterval = *interval
	if *redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, scheduler passes will be skipped until it recovers", "addr", *redisAddr, "error", err)
		}
		cancel()
		scheduler.Redis = rdb
	}
	scheduler.Start()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting", "addr", server.Addr, "db", *dbPath, "jwt_identity", *jwtSecret != "")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	scheduler.Stop()

	logger.Info("server stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// =============================================================================
// ENVIRONMENT
// =============================================================================

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
