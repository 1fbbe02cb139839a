package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/fpl-squad-optimizer/internal/models"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/store"
)

type CreateSnapshotRequest struct {
	Label string      `json:"label"`
	Pool  models.Pool `json:"pool"`
}

// SnapshotHandler stores player pools so later requests can name them by id
type SnapshotHandler struct {
	db     *store.DB
	logger *logrus.Logger
}

func NewSnapshotHandler(db *store.DB, logger *logrus.Logger) *SnapshotHandler {
	return &SnapshotHandler{db: db, logger: logger}
}

// CreateSnapshot saves an immutable pool
func (h *SnapshotHandler) CreateSnapshot(c *gin.Context) {
	var req CreateSnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format", err)
		return
	}
	if err := req.Pool.Validate(); err != nil {
		badRequest(c, "Invalid pool", err)
		return
	}

	id, err := h.db.SaveSnapshot(c.Request.Context(), req.Label, req.Pool)
	if err != nil {
		h.logger.WithError(err).Error("Failed to save snapshot")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to save snapshot", Code: "DATABASE_ERROR"})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"snapshot_id": id,
		"players":     len(req.Pool.Players),
	}).Info("Snapshot saved")
	c.JSON(http.StatusCreated, gin.H{"id": id, "player_count": len(req.Pool.Players)})
}

// ListSnapshots returns the newest snapshots, ?limit= defaulting to 20
func (h *SnapshotHandler) ListSnapshots(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid limit", Code: "INVALID_REQUEST"})
		return
	}

	snapshots, err := h.db.ListSnapshots(c.Request.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list snapshots")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list snapshots", Code: "DATABASE_ERROR"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": snapshots})
}

// GetSnapshot returns the stored pool
func (h *SnapshotHandler) GetSnapshot(c *gin.Context) {
	pool, err := h.db.LoadSnapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pool)
}
