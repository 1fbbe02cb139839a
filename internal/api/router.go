package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/fpl-squad-optimizer/internal/api/handlers"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/api/middleware"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/cache"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/config"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/services"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/store"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/websocket"
)

// Dependencies are the shared components behind the routes. DB, Cache and
// Hub may be nil.
type Dependencies struct {
	Service *services.SquadService
	DB      *store.DB
	Cache   *cache.SquadCache
	Hub     *websocket.Hub
	Config  *config.Config
	Logger  *logrus.Logger
}

// NewRouter builds the gin engine with middleware and every route
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger())

	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Cache, deps.Hub, deps.Logger)
	router.GET("/health", healthHandler.GetHealth)
	router.GET("/ready", healthHandler.GetReady)

	if deps.Hub != nil {
		router.GET("/ws/progress/:channel", deps.Hub.HandleWebSocket)
	}

	apiV1 := router.Group("/api/v1")
	if deps.Config != nil && deps.Config.RateLimitRPS > 0 {
		apiV1.Use(middleware.NewRateLimiter(deps.Config.RateLimitRPS, deps.Config.RateLimitBurst).Middleware())
	}
	SetupRoutes(apiV1, deps)
	return router
}

// SetupRoutes configures all API routes on the given router group
func SetupRoutes(group *gin.RouterGroup, deps Dependencies) {
	squadHandler := handlers.NewSquadHandler(deps.Service, deps.DB, deps.Cache, deps.Hub, deps.Config, deps.Logger)
	transferHandler := handlers.NewTransferHandler(deps.Service, deps.DB, deps.Config, deps.Logger)
	scoringHandler := handlers.NewScoringHandler(deps.Service, deps.DB, deps.Logger)

	// Squad endpoints
	group.POST("/squads/optimize", squadHandler.OptimizeSquad)
	group.POST("/squads/sample", squadHandler.SampleSquads)

	// Transfer endpoints
	group.POST("/transfers/swaps", transferHandler.SingleSwaps)
	group.POST("/transfers/reoptimize", transferHandler.Reoptimize)

	// Scoring endpoints
	group.POST("/scoring/weights", scoringHandler.ScoreWeights)

	// Snapshot endpoints need a database
	if deps.DB != nil {
		snapshotHandler := handlers.NewSnapshotHandler(deps.DB, deps.Logger)
		group.POST("/snapshots", snapshotHandler.CreateSnapshot)
		group.GET("/snapshots", snapshotHandler.ListSnapshots)
		group.GET("/snapshots/:id", snapshotHandler.GetSnapshot)
	}
}
