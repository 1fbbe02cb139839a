package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/fpl-squad-optimizer/internal/cache"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/store"
	"github.com/stitts-dev/fpl-squad-optimizer/internal/websocket"
)

const serviceName = "fpl-squad-optimizer"

// HealthStatus is the body of the health endpoints
type HealthStatus struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	db      *store.DB
	cache   *cache.SquadCache
	wsHub   *websocket.Hub
	started time.Time
	logger  *logrus.Logger
}

// NewHealthHandler creates a new health handler. Every dependency is optional.
func NewHealthHandler(db *store.DB, cache *cache.SquadCache, wsHub *websocket.Hub, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{
		db:      db,
		cache:   cache,
		wsHub:   wsHub,
		started: time.Now(),
		logger:  logger,
	}
}

// GetHealth reports every dependency. Optimization works without the
// database and the cache, so their failures only degrade the service.
func (h *HealthHandler) GetHealth(c *gin.Context) {
	response := HealthStatus{
		Status:    "ok",
		Service:   serviceName,
		Timestamp: time.Now(),
		Checks:    make(map[string]string),
	}

	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			response.Status = "degraded"
			response.Checks["database"] = "failed: " + err.Error()
		} else {
			response.Checks["database"] = "ok"
		}
	} else {
		response.Checks["database"] = "not_configured"
	}

	if h.cache != nil {
		if err := h.cache.Ping(c.Request.Context()); err != nil {
			response.Status = "degraded"
			response.Checks["redis"] = "failed: " + err.Error()
		} else {
			response.Checks["redis"] = "ok"
		}
		response.Checks["cache_breaker"] = h.cache.State().String()
	} else {
		response.Checks["redis"] = "not_configured"
	}

	if h.wsHub != nil {
		response.Checks["websocket_connections"] = strconv.Itoa(h.wsHub.ConnectionCount())
	}
	response.Checks["uptime"] = time.Since(h.started).Round(time.Second).String()

	c.JSON(http.StatusOK, response)
}

// GetReady reports whether the service can accept optimization requests
func (h *HealthHandler) GetReady(c *gin.Context) {
	response := HealthStatus{
		Status:    "ready",
		Service:   serviceName,
		Timestamp: time.Now(),
		Checks:    make(map[string]string),
	}

	// snapshot requests need the database once one is configured
	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			response.Status = "not_ready"
			response.Checks["database"] = "failed: " + err.Error()
		} else {
			response.Checks["database"] = "ok"
		}
	}

	statusCode := http.StatusOK
	if response.Status != "ready" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}
