package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/fpl-squad-optimizer/internal/cache"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/config"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/optimizer"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/services"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/store"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/websocket"
	"github.com/stitts-dev/fpl-squad-optimizer/pkg/logger"
)

// SampleRequest adds the sampling knobs to a run request
type SampleRequest struct {
	RunRequest
	// Seed makes the run reproducible; the service seed is used when nil
	Seed            *int64 `json:"seed,omitempty"`
	ProgressChannel string `json:"progress_channel,omitempty"`
}

// SquadHandler serves whole-squad optimization
type SquadHandler struct {
	service *services.SquadService
	pools   poolResolver
	cache   *cache.SquadCache
	wsHub   *websocket.Hub
	config  *config.Config
	logger  *logrus.Logger
}

// NewSquadHandler creates a new squad handler. db, cache and wsHub are optional.
func NewSquadHandler(
	service *services.SquadService,
	db *store.DB,
	cache *cache.SquadCache,
	wsHub *websocket.Hub,
	config *config.Config,
	logger *logrus.Logger,
) *SquadHandler {
	return &SquadHandler{
		service: service,
		pools:   poolResolver{store: db},
		cache:   cache,
		wsHub:   wsHub,
		config:  config,
		logger:  logger,
	}
}

// OptimizeSquad runs the exact optimizer, serving repeated requests from cache
func (h *SquadHandler) OptimizeSquad(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format", err)
		return
	}
	rc, err := decodeRunConfig(req.Config)
	if err != nil {
		badRequest(c, "Invalid run config", err)
		return
	}

	var cacheKey string
	if h.cache != nil {
		if cacheKey, err = cache.Key("optimize", req); err == nil {
			var cached services.OptimizeResult
			if err := h.cache.Get(c.Request.Context(), cacheKey, &cached); err == nil {
				h.logger.WithField("cache_key", cacheKey).Info("Returning cached optimization result")
				c.Header("X-Cache", "HIT")
				c.JSON(http.StatusOK, cached)
				return
			}
		}
	}

	ctx, cancel := withTimeout(c, h.config)
	defer cancel()

	pool, err := h.pools.resolve(ctx, req.PoolSource)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.service.Optimize(ctx, pool, rc)
	if err != nil {
		h.logger.WithError(err).Error("Optimization failed")
		respondError(c, err)
		return
	}

	if cacheKey != "" {
		if err := h.cache.Set(c.Request.Context(), cacheKey, result); err != nil {
			h.logger.WithError(err).Warn("Failed to cache optimization result")
		}
	}
	c.Header("X-Cache", "MISS")
	c.JSON(http.StatusOK, result)
}

// SampleSquads runs the group pipeline, streaming per-group progress to the
// websocket channel named in the request
func (h *SquadHandler) SampleSquads(c *gin.Context) {
	var req SampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format", err)
		return
	}
	rc, err := decodeRunConfig(req.Config)
	if err != nil {
		badRequest(c, "Invalid run config", err)
		return
	}

	ctx, cancel := withTimeout(c, h.config)
	defer cancel()

	pool, err := h.pools.resolve(ctx, req.PoolSource)
	if err != nil {
		respondError(c, err)
		return
	}

	seed := time.Now().UnixNano()
	if h.config != nil {
		seed = h.config.Seed()
	}
	if req.Seed != nil {
		seed = *req.Seed
	}

	var progress func(optimizer.ProgressEvent)
	if req.ProgressChannel != "" && h.wsHub != nil {
		progress = func(e optimizer.ProgressEvent) {
			h.wsHub.Publish(req.ProgressChannel, "progress", e)
		}
	}

	result, err := h.service.Sample(ctx, pool, rc, seed, progress)
	if err != nil {
		h.logger.WithError(err).Error("Sampling failed")
		respondError(c, err)
		return
	}

	logger.WithRequestContext(c.GetString("request_id"), result.RunID).WithFields(logrus.Fields{
		"status": result.Status,
		"seed":   seed,
	}).Info("Sampling request served")

	if progress != nil {
		h.wsHub.Publish(req.ProgressChannel, "completed", gin.H{
			"run_id": result.RunID,
			"status": result.Status,
			"squads": len(result.Squads),
			"seed":   seed,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"seed":   seed,
		"result": result,
	})
}
