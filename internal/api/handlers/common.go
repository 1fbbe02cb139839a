package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stitts-dev/fpl-squad-optimizer/internal/config"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/models"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/optimizer"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/services"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/store"
)

var errNoPool = errors.New("request needs a pool or a snapshot_id")

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// PoolSource names the player pool of a request, inline or by snapshot
type PoolSource struct {
	SnapshotID string       `json:"snapshot_id,omitempty"`
	Pool       *models.Pool `json:"pool,omitempty"`
}

// RunRequest is the common body of the optimization endpoints. Config is a
// run config document; omitted sections take the FPL defaults.
type RunRequest struct {
	PoolSource
	Config json.RawMessage `json:"config,omitempty"`
}

// poolResolver loads request pools; store is nil when no database is configured
type poolResolver struct {
	store *store.DB
}

func (r poolResolver) resolve(ctx context.Context, src PoolSource) (models.Pool, error) {
	if src.Pool != nil {
		return *src.Pool, nil
	}
	if src.SnapshotID == "" {
		return models.Pool{}, errNoPool
	}
	if r.store == nil {
		return models.Pool{}, fmt.Errorf("snapshots are unavailable without a database")
	}
	return r.store.LoadSnapshot(ctx, src.SnapshotID)
}

func decodeRunConfig(raw json.RawMessage) (config.RunConfig, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = json.RawMessage("{}")
	}
	return config.DecodeRunConfig(bytes.NewReader(raw))
}

func withTimeout(c *gin.Context, cfg *config.Config) (context.Context, context.CancelFunc) {
	if cfg == nil || cfg.OptimizationTimeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), time.Duration(cfg.OptimizationTimeout)*time.Second)
}

func badRequest(c *gin.Context, msg string, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: msg,
		Code:  "INVALID_REQUEST",
		Details: map[string]string{
			"validation_error": err.Error(),
		},
	})
}

// respondError maps service errors onto HTTP statuses
func respondError(c *gin.Context, err error) {
	status, code, msg := http.StatusInternalServerError, "OPTIMIZATION_ERROR", "Optimization failed"
	switch {
	case errors.Is(err, store.ErrSnapshotNotFound):
		status, code, msg = http.StatusNotFound, "SNAPSHOT_NOT_FOUND", "Snapshot not found"
	case errors.Is(err, errNoPool),
		errors.Is(err, services.ErrInvalidInput),
		errors.Is(err, services.ErrUnknownPlayer),
		errors.Is(err, services.ErrNoPickGroups),
		errors.Is(err, models.ErrInvalidConstraints),
		errors.Is(err, optimizer.ErrUnknownRankKey):
		status, code, msg = http.StatusBadRequest, "INVALID_REQUEST", "Invalid request"
	case errors.Is(err, optimizer.ErrTooManyCombinations):
		status, code, msg = http.StatusUnprocessableEntity, "TOO_MANY_COMBINATIONS", "Too many group combinations"
	case errors.Is(err, context.DeadlineExceeded):
		status, code, msg = http.StatusGatewayTimeout, "OPTIMIZATION_TIMEOUT", "Optimization timed out"
	}
	c.JSON(status, ErrorResponse{
		Error: msg,
		Code:  code,
		Details: map[string]string{
			"error": err.Error(),
		},
	})
}
