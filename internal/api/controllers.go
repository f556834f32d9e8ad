package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jiajunxiong/fix/pkg/config"
	"github.com/jiajunxiong/fix/pkg/db"
)

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// respondStoreError maps a store lookup failure to a response.
func (s *Server) respondStoreError(c *gin.Context, what, id string, err error) {
	if errors.Is(err, db.ErrNotFound) {
		respondError(c, http.StatusNotFound, "NOT_FOUND", what+" "+id+" not found")
		return
	}
	s.log.Error("store lookup failed", zap.String("entity", what), zap.String("id", id), zap.Error(err))
	respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "store unavailable")
}

func (s *Server) getOrder(c *gin.Context) {
	id := c.Param("id")
	order, err := s.store.GetOrder(c.Request.Context(), id)
	if err != nil {
		s.respondStoreError(c, "order", id, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) getPositions(c *gin.Context) {
	positions, err := s.store.ListPositions(c.Request.Context())
	if err != nil {
		s.respondStoreError(c, "positions", "", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions, "count": len(positions)})
}

// getPosition accepts the position id (exchange|symbol), or the exchange
// and symbol as query parameters.
func (s *Server) getPosition(c *gin.Context) {
	id := c.Param("id")
	if ex, sym := c.Query("exchange"), c.Query("symbol"); ex != "" && sym != "" {
		id = db.PositionID(ex, sym)
	}
	pos, err := s.store.GetPosition(c.Request.Context(), id)
	if err != nil {
		s.respondStoreError(c, "position", id, err)
		return
	}
	c.JSON(http.StatusOK, pos)
}

func (s *Server) getTrade(c *gin.Context) {
	id := c.Param("id")
	trade, err := s.store.GetTrade(c.Request.Context(), id)
	if err != nil {
		s.respondStoreError(c, "trade", id, err)
		return
	}
	c.JSON(http.StatusOK, trade)
}

func (s *Server) getRoutes(c *gin.Context) {
	names := config.Routing{Routes: s.routeTable}.Names()
	out := make([]gin.H, 0, len(names))
	for _, name := range names {
		out = append(out, gin.H{"destination": name, "comp_id": s.routeTable[name]})
	}
	c.JSON(http.StatusOK, gin.H{"routes": out})
}

func (s *Server) getMetrics(c *gin.Context) {
	if s.metrics == nil {
		respondError(c, http.StatusServiceUnavailable, "METRICS_UNAVAILABLE", "metrics not available")
		return
	}
	c.JSON(http.StatusOK, s.metrics.GetSnapshot())
}

func (s *Server) getQueueMetrics(c *gin.Context) {
	if s.queue == nil {
		respondError(c, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "engine queue not available")
		return
	}
	response := gin.H{
		"current_depth": s.queue.Len(),
		"capacity":      s.queue.Cap(),
		"rejected":      s.queue.Rejected(),
		"policy":        s.queue.Policy().String(),
	}
	if s.bus != nil {
		stats := s.bus.Stats()
		response["broadcast_delivered"] = stats.Delivered
		response["broadcast_dropped"] = stats.Dropped
	}
	c.JSON(http.StatusOK, response)
}
