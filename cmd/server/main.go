package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/landb/internal/config"
	"github.com/stwalsh4118/landb/internal/database"
	"github.com/stwalsh4118/landb/internal/fetcher"
	"github.com/stwalsh4118/landb/internal/handlers"
	"github.com/stwalsh4118/landb/internal/ingest"
	"github.com/stwalsh4118/landb/internal/logger"
	"github.com/stwalsh4118/landb/internal/middleware"
	"github.com/stwalsh4118/landb/internal/models"
	"github.com/stwalsh4118/landb/internal/prosperity"
	"github.com/stwalsh4118/landb/internal/repository"
	"github.com/stwalsh4118/landb/internal/services"
	"github.com/stwalsh4118/landb/internal/store"
)

const (
	shutdownTimeout = 30 * time.Second
	// coldStartTimeout bounds the initial fetch of all islands
	coldStartTimeout = 2 * time.Minute
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	log := logger.New(cfg.Server.Env, cfg.Server.LogLevel)
	log.Info("Starting landb API", map[string]interface{}{
		"version":     handlers.APIVersion,
		"environment": cfg.Server.Env,
		"port":        cfg.Server.Port,
		"store":       cfg.Store.Driver,
	})

	ctx := context.Background()
	landStore, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to open land store", err, map[string]interface{}{
			"driver": cfg.Store.Driver,
		})
	}
	defer closeStore()

	islands, err := models.ParseIslands(cfg.Fetch.Islands)
	if err != nil {
		log.Fatal("Invalid island list", err, map[string]interface{}{
			"islands": cfg.Fetch.Islands,
		})
	}

	calculator, err := newCalculator(cfg.Prosperity.TablesPath)
	if err != nil {
		log.Fatal("Failed to load prosperity tables", err, map[string]interface{}{
			"path": cfg.Prosperity.TablesPath,
		})
	}

	// Fetch pipeline: HTTP client -> throttle on the primary island -> normalizer
	clock := fetcher.NewClock()
	header := make(http.Header, len(cfg.Fetch.Headers))
	for name, value := range cfg.Fetch.Headers {
		header.Set(name, value)
	}
	client := fetcher.NewClient(fetcher.Options{
		URL:       cfg.Fetch.URL,
		Origin:    cfg.Fetch.Origin,
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.Fetch.Timeout,
		Header:    header,
	}, clock, log)
	throttled := fetcher.NewThrottled(client, landStore, clock, cfg.Fetch.Interval, islands[0], log)
	normalizer := ingest.NewNormalizer(log)

	// Initialize repository and service layers
	landRepo, err := repository.NewLandRepository(landStore, throttled, normalizer, calculator, islands, log)
	if err != nil {
		log.Fatal("Failed to create land repository", err, nil)
	}
	landService := services.NewLandService(landRepo, cfg.Fetch.Interval, log)

	if cfg.Server.RefreshOnStart && !landStore.ReadOnly() {
		refreshCtx, cancel := context.WithTimeout(ctx, coldStartTimeout)
		refreshed, err := landService.RefreshIfEmpty(refreshCtx)
		cancel()
		if err != nil {
			// The API still serves; reads answer 503 until a refresh succeeds.
			log.Error("Cold-start refresh failed", err, nil)
		} else if refreshed {
			log.Info("Cold-start refresh complete", nil)
		}
	}

	// Setup Gin router
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware in order: RequestID -> Logger -> Recovery -> CORS
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS(cfg.CORS.Origins))

	// Register health check routes
	healthHandler := handlers.NewHealthHandler(landStore, landService, landStore.Driver(), cfg.Server.Env)
	router.GET("/health", healthHandler.Health)
	router.GET("/health/ready", healthHandler.Ready)
	router.GET("/api/v1/info", healthHandler.Info)

	// Initialize handlers
	landHandler := handlers.NewLandHandler(landService)
	ownerHandler := handlers.NewOwnerHandler(landService)

	// Register API v1 routes
	v1 := router.Group("/api/v1")
	{
		lands := v1.Group("/lands")
		{
			lands.GET("", landHandler.List)
			lands.GET("/on-market", landHandler.OnMarket)
			lands.GET("/at", landHandler.At)
			lands.GET("/token/:tokenId", landHandler.ByToken)
			lands.GET("/token/:tokenId/adjacent", landHandler.Adjacent)
			lands.GET("/region/:regionId", landHandler.ByRegion)
		}

		owners := v1.Group("/owners")
		{
			owners.GET("", ownerHandler.Ranking)
			owners.GET("/:address/neighbors", ownerHandler.Neighbors)
			owners.GET("/:address/prosperity", ownerHandler.OwnerProsperity)
		}

		v1.GET("/counts", landHandler.Counts)
		v1.GET("/prosperity", ownerHandler.Prosperity)
		v1.POST("/refresh", landHandler.Refresh)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server listening", map[string]interface{}{
			"port": cfg.Server.Port,
			"addr": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", err, nil)
		}
	}()

	// Wait for interrupt signal (SIGINT or SIGTERM)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	log.Info("Shutting down server...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", err, map[string]interface{}{
			"timeout": shutdownTimeout.String(),
		})
	}

	log.Info("Server exited", nil)
}

// openStore opens the configured backend and returns the store with its closer.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (store.Store, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		db, err := database.NewPostgresPool(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		s, err := store.NewPostgresStore(ctx, db, cfg.Store.ReadOnly)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Info("Database connection established", map[string]interface{}{
			"host":      cfg.Database.Host,
			"port":      cfg.Database.Port,
			"database":  cfg.Database.Name,
			"pool_min":  cfg.Database.PoolMin,
			"pool_max":  cfg.Database.PoolMax,
			"read_only": s.ReadOnly(),
		})
		return s, db.Close, nil

	default:
		db, err := database.OpenSQLite(ctx, cfg.Store.Path, cfg.Store.ReadOnly)
		if err != nil {
			return nil, nil, err
		}
		s, err := store.NewSQLiteStore(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		path := cfg.Store.Path
		if path == "" {
			path = ":memory:"
		}
		log.Info("SQLite store opened", map[string]interface{}{
			"path":      path,
			"read_only": s.ReadOnly(),
		})
		return s, func() { db.Close() }, nil
	}
}

func newCalculator(path string) (*prosperity.Calculator, error) {
	var (
		tables prosperity.Tables
		err    error
	)
	if path == "" {
		tables, err = prosperity.DefaultTables()
	} else {
		tables, err = prosperity.LoadTables(path)
	}
	if err != nil {
		return nil, err
	}
	return prosperity.NewCalculator(tables)
}
