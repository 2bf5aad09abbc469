package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"careerpilot/internal/jobs"
	"careerpilot/internal/services"
)

// AssistantHandler exposes the assistant engine over HTTP. Thin adapter:
// all semantics live in the services layer.
type AssistantHandler struct {
	orchestrator *services.Orchestrator
	threads      services.ThreadStore
	contextB     *services.ContextBuilder
	cleanup      *jobs.CleanupJob
}

// NewAssistantHandler creates a new assistant handler
func NewAssistantHandler(orchestrator *services.Orchestrator, threads services.ThreadStore, contextBuilder *services.ContextBuilder, cleanup *jobs.CleanupJob) *AssistantHandler {
	return &AssistantHandler{
		orchestrator: orchestrator,
		threads:      threads,
		contextB:     contextBuilder,
		cleanup:      cleanup,
	}
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	ThreadID  string `json:"thread_id"`
	UserID    string `json:"user_id"`
	Message   string `json:"message"`
}

// Chat runs one conversation turn.
// POST /api/assistant/chat
func (h *AssistantHandler) Chat(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "message is required",
		})
	}

	threadID := req.ThreadID
	if threadID == "" && req.SessionID != "" {
		resolved, err := h.threads.ResolveSessionThread(c.Context(), req.SessionID)
		if err != nil {
			log.Printf("🚨 [API] Session resolution failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Could not start a conversation, please try again",
			})
		}
		threadID = resolved
	}
	if threadID == "" {
		threadID = uuid.New().String()
	}

	answer, err := h.orchestrator.ProcessMessage(c.Context(), threadID, req.UserID, req.Message)
	if err != nil {
		if answer != "" {
			// The turn produced an answer but persisting it failed. The
			// user still gets the answer; the flag tells callers the
			// conversation may not be remembered.
			return c.JSON(fiber.Map{
				"answer":    answer,
				"thread_id": threadID,
				"persisted": false,
			})
		}
		log.Printf("🚨 [API] Turn failed for thread %s: %v", threadID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Something went wrong, please try again",
		})
	}

	return c.JSON(fiber.Map{
		"answer":    answer,
		"thread_id": threadID,
	})
}

// UserContext returns the personalization block for a user.
// GET /api/assistant/context/:userID
func (h *AssistantHandler) UserContext(c *fiber.Ctx) error {
	userID := c.Params("userID")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "userID is required",
		})
	}

	// Absence of a profile is "no personalization", not an error
	context := h.contextB.BuildUserContext(c.Context(), userID)
	return c.JSON(fiber.Map{
		"user_id": userID,
		"context": context,
	})
}

// RunCleanup triggers a retention pass immediately.
// POST /api/assistant/cleanup
func (h *AssistantHandler) RunCleanup(c *fiber.Ctx) error {
	stats, err := h.cleanup.Run(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Cleanup failed",
		})
	}
	return c.JSON(fiber.Map{
		"deleted": stats,
		"total":   stats.Total(),
	})
}
