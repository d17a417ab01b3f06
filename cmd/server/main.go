package main

import (
	"context"
	"ctchen222/passplay/internal/auth"
	"ctchen222/passplay/internal/config"
	"ctchen222/passplay/internal/db"
	"ctchen222/passplay/internal/events"
	"ctchen222/passplay/internal/hub"
	"ctchen222/passplay/internal/logger"
	"ctchen222/passplay/internal/repository"
	"ctchen222/passplay/internal/server"
	"ctchen222/passplay/internal/table"
	"ctchen222/passplay/internal/telemetry"
	"ctchen222/passplay/internal/version"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Initialize telemetry
	shutdown, err := telemetry.InitOtel(ctx, cfg.Telemetry)
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down telemetry: %v", err)
		}
	}()

	logger.Init(os.Stdout, cfg.LogLevel)
	gin.SetMode(gin.ReleaseMode)
	slog.InfoContext(ctx, "Starting server", "version", version.Version, "build", version.Build, "store", cfg.Store)

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		log.Fatalf("failed to create metrics: %v", err)
	}

	// Create the table store and event broker
	var (
		repo   repository.TableRepository
		broker events.Broker
	)
	switch cfg.Store {
	case config.StoreRedis:
		rdb, err := db.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatalf("failed to initialize redis: %v", err)
		}
		defer rdb.Close()
		repo = repository.NewRedisTableRepository(rdb, cfg.TableTTL)
		broker = events.NewRedisBroker(rdb)
	case config.StoreSQLite:
		pool, err := db.SQLiteConnect(ctx, cfg.SQLitePath)
		if err != nil {
			log.Fatalf("failed to initialize sqlite db: %v", err)
		}
		defer pool.Close()
		repo = repository.NewSQLiteTableRepository(pool, cfg.TableTTL)
		broker = events.NewLocalBroker()
	}

	tables := table.NewService(repo, broker, metrics)
	tokens := auth.NewTableTokens(cfg.TokenSecret)

	// Create hub
	h := hub.NewHub(broker, tables)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		if err := h.Run(ctx); err != nil {
			slog.ErrorContext(ctx, "Hub stopped", "error", err)
			stop()
		}
	}()

	// Create the Gin-based server
	srv := server.NewServer(tables, tokens, h)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: srv.Engine(),
	}

	go func() {
		slog.Info("http server started", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("ListenAndServe failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	<-hubDone

	slog.Info("Server exiting")
}
