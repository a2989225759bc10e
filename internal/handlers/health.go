package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"ritualflow/internal/database"
	"ritualflow/internal/services"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	db        *database.DB
	redis     *services.RedisSessionStore // nil when sessions are in-memory
	startedAt time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *database.DB, redis *services.RedisSessionStore) *HealthHandler {
	return &HealthHandler{
		db:        db,
		redis:     redis,
		startedAt: time.Now(),
	}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	status := "healthy"

	dbStatus := "ok"
	if err := h.db.Ping(); err != nil {
		dbStatus = "unreachable"
		status = "degraded"
	}

	sessionStatus := "memory"
	if h.redis != nil {
		sessionStatus = "ok"
		if err := h.redis.Ping(c.Context()); err != nil {
			sessionStatus = "unreachable"
			status = "degraded"
		}
	}

	return c.JSON(fiber.Map{
		"status":    status,
		"database":  dbStatus,
		"sessions":  sessionStatus,
		"uptime":    time.Since(h.startedAt).Round(time.Second).String(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
