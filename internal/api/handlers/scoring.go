package handlers

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/fpl-squad-optimizer/internal/config"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/models"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/services"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/store"
)

type ScoreRequest struct {
	PoolSource
	// Weights defaults to the standard FPL recipe
	Weights *models.WeightSpec `json:"weights,omitempty"`
	// Sorted orders the rows by weight instead of pool order
	Sorted bool `json:"sorted"`
}

// ScoringHandler exposes the scoring model
type ScoringHandler struct {
	service *services.SquadService
	pools   poolResolver
	logger  *logrus.Logger
}

func NewScoringHandler(service *services.SquadService, db *store.DB, logger *logrus.Logger) *ScoringHandler {
	return &ScoringHandler{service: service, pools: poolResolver{store: db}, logger: logger}
}

// ScoreWeights returns one normalized weight per pool player
func (h *ScoringHandler) ScoreWeights(c *gin.Context) {
	var req ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format", err)
		return
	}

	pool, err := h.pools.resolve(c.Request.Context(), req.PoolSource)
	if err != nil {
		respondError(c, err)
		return
	}

	spec := config.DefaultWeights()
	if req.Weights != nil {
		spec = *req.Weights
	}
	rows, err := h.service.Score(pool, spec)
	if err != nil {
		respondError(c, err)
		return
	}
	if req.Sorted {
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Weight > rows[j].Weight })
	}

	c.JSON(http.StatusOK, gin.H{
		"weights": spec.Name,
		"players": rows,
	})
}
