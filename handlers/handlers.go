// Package handlers exposes the read-only status API for the daemon.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/algariis/polymarket-trading-bot/api"
	"github.com/algariis/polymarket-trading-bot/config"
	"github.com/algariis/polymarket-trading-bot/storage"
	"github.com/algariis/polymarket-trading-bot/syncer"
)

// Handler handles HTTP requests
type Handler struct {
	cfg     *config.Config
	store   storage.Store
	metrics *syncer.Metrics
	queue   *syncer.PendingQueue
	data    api.DataGateway

	startedAt time.Time
}

// NewHandler creates a new handler
func NewHandler(cfg *config.Config, store storage.Store, metrics *syncer.Metrics,
	queue *syncer.PendingQueue, data api.DataGateway) *Handler {
	return &Handler{
		cfg:       cfg,
		store:     store,
		metrics:   metrics,
		queue:     queue,
		data:      data,
		startedAt: time.Now(),
	}
}

// Health reports liveness plus basic pipeline state.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"target_user":   h.cfg.TargetUser,
		"queue_depth":   h.queue.Len(),
		"queue_dropped": h.queue.Dropped(),
		"uptime":        time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// GetMetrics returns the replication counters.
func (h *Handler) GetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}

// GetExecutions returns recent replication attempts, newest first.
func (h *Handler) GetExecutions(c *gin.Context) {
	limit := 100
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
	}

	executions, err := h.store.ListExecutions(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load executions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"executions": executions,
		"count":      len(executions),
	})
}

// GetPositions returns the open positions of any wallet, typically ours or
// the target's.
func (h *Handler) GetPositions(c *gin.Context) {
	address := c.GetString("validatedAddress")
	if address == "" {
		address = c.Param("address")
	}

	positions, err := h.data.GetOpenPositions(c.Request.Context(), address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load positions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":   address,
		"positions": positions,
		"count":     len(positions),
	})
}
