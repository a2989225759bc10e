package handlers

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"ritualflow/internal/models"
	"ritualflow/internal/services"
)

// ChatHandler handles chat turn requests
type ChatHandler struct {
	orchestrator *services.Orchestrator
}

// NewChatHandler creates a new chat handler
func NewChatHandler(orchestrator *services.Orchestrator) *ChatHandler {
	return &ChatHandler{orchestrator: orchestrator}
}

// SubmitTurn processes one user message for a session
// POST /api/chat/turn
func (h *ChatHandler) SubmitTurn(c *fiber.Ctx) error {
	var req models.TurnRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "session_id is required",
		})
	}
	if strings.TrimSpace(req.UserMessage) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_message is required",
		})
	}

	resp, err := h.orchestrator.SubmitTurn(c.Context(), req.SessionID, req.UserMessage, req.NextActivity)
	if err != nil {
		// Only session-store failures reach here; oracle trouble is already
		// absorbed into a fail-closed reply.
		slog.Error("turn failed", "session_id", req.SessionID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process turn",
		})
	}

	return c.JSON(resp)
}

// GetSession returns the stored state for a session
// GET /api/chat/session/:id
func (h *ChatHandler) GetSession(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Session ID is required",
		})
	}

	session, err := h.orchestrator.GetSession(c.Context(), sessionID)
	if err != nil {
		slog.Error("session lookup failed", "session_id", sessionID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load session",
		})
	}
	if session == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}

	return c.JSON(session)
}

// DeleteSession removes a session
// DELETE /api/chat/session/:id
func (h *ChatHandler) DeleteSession(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Session ID is required",
		})
	}

	if err := h.orchestrator.DeleteSession(c.Context(), sessionID); err != nil {
		slog.Error("session delete failed", "session_id", sessionID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete session",
		})
	}

	return c.JSON(fiber.Map{"deleted": sessionID})
}
