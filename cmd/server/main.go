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
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/fpl-squad-optimizer/internal/api"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/cache"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/config"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/services"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/store"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/websocket"
	"github.com/stitts-dev/fpl-squad-optimizer/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	structuredLogger := logger.InitLogger(cfg.LogLevel, cfg.IsDevelopment())
	log := logger.WithService("fpl-squad-optimizer")
	log.WithFields(logrus.Fields{
		"environment": cfg.Env,
		"port":        cfg.Port,
	}).Info("Starting squad optimizer service")

	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// The database only backs snapshots, so the service runs without it
	var db *store.DB
	if cfg.DatabaseURL != "" {
		db, err = store.NewConnection(cfg.DatabaseDriver, cfg.DatabaseURL, cfg.IsDevelopment())
		if err != nil {
			log.WithError(err).Warn("Database unavailable, snapshot routes disabled")
			db = nil
		} else {
			defer db.Close()
		}
	}

	var squadCache *cache.SquadCache
	if cfg.RedisURL != "" {
		squadCache, err = cache.NewSquadCache(cfg.RedisURL, cfg.CacheTTL, structuredLogger)
		if err != nil {
			log.WithError(err).Warn("Redis unavailable, optimization results will not be cached")
			squadCache = nil
		} else {
			defer squadCache.Close()
		}
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	wsHub := websocket.NewHub(structuredLogger)
	go wsHub.Run(ctx)

	router := api.NewRouter(api.Dependencies{
		Service: services.NewSquadService(services.OptionsFromConfig(cfg), structuredLogger),
		DB:      db,
		Cache:   squadCache,
		Hub:     wsHub,
		Config:  cfg,
		Logger:  structuredLogger,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("Squad optimizer service started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down squad optimizer service...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Squad optimizer service forced to shutdown: %v", err)
	}

	log.Info("Squad optimizer service exited")
}
