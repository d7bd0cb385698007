package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger is satisfied by *pgxpool.Pool. Redis is adapted with RedisPinger.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db     Pinger
	redis  Pinger
	logger *zap.Logger
}

// NewHealthHandler accepts nil dependencies; a nil dependency is reported as
// "disabled" and does not affect overall health.
func NewHealthHandler(db Pinger, redis Pinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:     db,
		redis:  redis,
		logger: logger.Named("HealthHandler"),
	}
}

func (h *HealthHandler) Check(c *gin.Context) {
	dbStatus := h.probe(c.Request.Context(), h.db, "database")
	redisStatus := h.probe(c.Request.Context(), h.redis, "redis")

	if dbStatus == "error" || redisStatus == "error" {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"dependencies": gin.H{
				"database": dbStatus,
				"redis":    redisStatus,
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"dependencies": gin.H{
			"database": dbStatus,
			"redis":    redisStatus,
		},
	})
}

func (h *HealthHandler) probe(ctx context.Context, p Pinger, name string) string {
	if p == nil {
		return "disabled"
	}
	if err := p.Ping(ctx); err != nil {
		h.logger.Error("Health check: ping failed", zap.String("dependency", name), zap.Error(err))
		return "error"
	}
	return "ok"
}
