package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chepyr/charity-tasks/internal/config"
	"github.com/chepyr/charity-tasks/internal/db"
	"github.com/chepyr/charity-tasks/internal/events"
	"github.com/chepyr/charity-tasks/internal/handlers"
	"github.com/chepyr/charity-tasks/internal/lifecycle"
	"github.com/chepyr/charity-tasks/internal/logger"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("ERROR", os.Stderr).Error("Invalid configuration", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	lg := logger.New(cfg.LogLevel, os.Stdout)

	dbConn := initDB(cfg, lg)
	defer func() {
		if err := dbConn.Close(); err != nil {
			lg.Error("Error closing database connection", map[string]any{"error": err.Error()})
		}
	}()

	handler, cleanup := initHandlers(cfg, dbConn, lg)
	defer cleanup()

	server := initServer(cfg, handler)
	startServer(cfg, server, lg)
}

func initDB(cfg *config.Config, lg *logger.Logger) *sql.DB {
	dbConn, err := db.Connect(cfg.DBDriver, cfg.DSN())
	if err != nil {
		lg.Error("Failed to connect to database", map[string]any{"driver": cfg.DBDriver, "error": err.Error()})
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.Migrate(ctx, dbConn); err != nil {
		dbConn.Close()
		lg.Error("Failed to migrate database", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	return dbConn
}

func initHandlers(cfg *config.Config, dbConn *sql.DB, lg *logger.Logger) (*handlers.Handler, func()) {
	taskRepo := db.NewTaskRepository(dbConn)
	hub := handlers.NewWSHub(lg)
	rateLimiter := handlers.NewRateLimiter(cfg.LoginRateLimit, cfg.LoginRateWindow)
	wsRateLimiter := handlers.NewRateLimiter(cfg.WSRateLimit, cfg.WSRateWindow)

	trustedProxies, err := handlers.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		lg.Error("Invalid trusted proxies", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	publisher, closers := initPublisher(cfg, hub, lg)
	closers = append(closers, rateLimiter.Stop, wsRateLimiter.Stop)

	handler := &handlers.Handler{
		UserRepo:       db.NewUserRepository(dbConn),
		ProfileRepo:    db.NewProfileRepository(dbConn),
		TaskRepo:       taskRepo,
		Lifecycle:      lifecycle.NewService(taskRepo, lifecycle.WithMaxAttempts(cfg.TransitionAttempts)),
		RateLimiter:    rateLimiter,
		WSRateLimiter:  wsRateLimiter,
		WSHub:          hub,
		Publisher:      publisher,
		Logger:         lg,
		JWTSecret:      []byte(cfg.JWTSecret),
		TokenTTL:       24 * time.Hour,
		RequestTimeout: cfg.RequestTimeout,
		AllowedOrigins: cfg.AllowedOrigins,
		TrustedProxies: trustedProxies,
	}

	return handler, func() {
		for _, c := range closers {
			c()
		}
	}
}

// initPublisher delivers events straight to the local hub, or through Redis
// when it is configured so websocket clients of every instance see them.
// The Redis subscription relays events back into the local hub.
func initPublisher(cfg *config.Config, hub *handlers.WSHub, lg *logger.Logger) (events.Publisher, []func()) {
	if cfg.RedisURL == "" {
		return hub, nil
	}
	redisPub, err := events.NewRedisPublisher(cfg.RedisURL, cfg.RedisChannel)
	if err != nil {
		lg.Warn("Redis unavailable, events stay in-process", map[string]any{"error": err.Error()})
		return hub, nil
	}

	relayCtx, stopRelay := context.WithCancel(context.Background())
	closers := []func(){stopRelay, func() { redisPub.Close() }}

	incoming, err := redisPub.Subscribe(relayCtx)
	if err != nil {
		lg.Warn("Redis subscribe failed, websocket events stay in-process", map[string]any{"error": err.Error()})
		return events.Multi{hub, redisPub}, closers
	}
	go events.Forward(relayCtx, incoming, hub, func(err error) {
		lg.Warn("Failed to relay task event", map[string]any{"error": err.Error()})
	})

	lg.Info("Relaying task events through Redis", map[string]any{"channel": cfg.RedisChannel})
	return redisPub, closers
}

func initServer(cfg *config.Config, handler *handlers.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Address(),
		Handler:           handlers.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func startServer(cfg *config.Config, server *http.Server, lg *logger.Logger) {
	lg.Info("Starting charity service", map[string]any{"addr": server.Addr, "driver": cfg.DBDriver})

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("Server failed", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	lg.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		lg.Error("Server shutdown failed", map[string]any{"error": err.Error()})
		return
	}
	lg.Info("Server stopped")
}
