package handlers

import (
	"github.com/gofiber/fiber/v2"

	"careerpilot/internal/database"
)

// HealthHandler reports service liveness and store connectivity.
type HealthHandler struct {
	mongo *database.MongoDB
	db    *database.DB
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(mongo *database.MongoDB, db *database.DB) *HealthHandler {
	return &HealthHandler{mongo: mongo, db: db}
}

// Health responds to GET /health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	status := "ok"
	checks := fiber.Map{}

	if err := h.mongo.Ping(c.Context()); err != nil {
		status = "degraded"
		checks["mongodb"] = err.Error()
	} else {
		checks["mongodb"] = "ok"
	}

	if err := h.db.PingContext(c.Context()); err != nil {
		status = "degraded"
		checks["database"] = err.Error()
	} else {
		checks["database"] = "ok"
	}

	code := fiber.StatusOK
	if status != "ok" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status": status,
		"checks": checks,
	})
}
