package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/fpl-squad-optimizer/internal/config"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/services"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/store"
)

type SwapsRequest struct {
	RunRequest
	services.SwapQuery
	// Limit caps the ranked list; 0 returns every candidate
	Limit int `json:"limit"`
}

type ReoptimizeRequest struct {
	RunRequest
	services.ReoptimizeQuery
}

// TransferHandler serves transfer planning for an existing squad
type TransferHandler struct {
	service *services.SquadService
	pools   poolResolver
	config  *config.Config
	logger  *logrus.Logger
}

// NewTransferHandler creates a new transfer handler
func NewTransferHandler(service *services.SquadService, db *store.DB, config *config.Config, logger *logrus.Logger) *TransferHandler {
	return &TransferHandler{
		service: service,
		pools:   poolResolver{store: db},
		config:  config,
		logger:  logger,
	}
}

// SingleSwaps lists every one-for-one transfer, best first
func (h *TransferHandler) SingleSwaps(c *gin.Context) {
	var req SwapsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format", err)
		return
	}
	rc, err := decodeRunConfig(req.Config)
	if err != nil {
		badRequest(c, "Invalid run config", err)
		return
	}

	pool, err := h.pools.resolve(c.Request.Context(), req.PoolSource)
	if err != nil {
		respondError(c, err)
		return
	}

	candidates, err := h.service.Swaps(pool, rc, req.SwapQuery)
	if err != nil {
		respondError(c, err)
		return
	}
	total := len(candidates)
	if req.Limit > 0 && len(candidates) > req.Limit {
		candidates = candidates[:req.Limit]
	}

	c.JSON(http.StatusOK, gin.H{
		"total":      total,
		"candidates": candidates,
	})
}

// Reoptimize re-solves the squad keeping all but the allowed transfers
func (h *TransferHandler) Reoptimize(c *gin.Context) {
	var req ReoptimizeRequest
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

	plan, err := h.service.Reoptimize(ctx, pool, rc, req.ReoptimizeQuery)
	if err != nil {
		h.logger.WithError(err).Error("Re-optimization failed")
		respondError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"status":    plan.Status,
		"transfers": len(plan.Out),
		"net_gain":  plan.NetGain,
	}).Info("Transfer plan computed")
	c.JSON(http.StatusOK, plan)
}
