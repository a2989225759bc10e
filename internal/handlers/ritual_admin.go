package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"ritualflow/internal/models"
	"ritualflow/internal/services"
)

// RitualAdminHandler handles the versioned ritual configuration API.
// All routes sit behind the admin shared-secret middleware.
type RitualAdminHandler struct {
	store    *services.RitualStore
	resolver *services.ConfigResolver
}

// NewRitualAdminHandler creates a new admin handler
func NewRitualAdminHandler(store *services.RitualStore, resolver *services.ConfigResolver) *RitualAdminHandler {
	return &RitualAdminHandler{store: store, resolver: resolver}
}

// CreateVersion creates a new config version for a ritual
// POST /api/admin/rituals/:slug/versions
func (h *RitualAdminHandler) CreateVersion(c *fiber.Ctx) error {
	slug := c.Params("slug")
	if slug == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Ritual slug is required",
		})
	}

	var req models.CreateVersionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.RitualName == "" {
		req.RitualName = slug
	}

	makeActive := true
	if req.MakeActive != nil {
		makeActive = *req.MakeActive
	}

	version, err := h.store.CreateVersion(c.Context(), slug, req.RitualName, req.RitualDescription,
		req.Config, req.Label, req.Notes, req.CreatedBy, makeActive)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		slog.Error("version create failed", "ritual", slug, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create version",
		})
	}

	if m := services.GetMetrics(); m != nil {
		m.VersionCreates.Inc()
	}
	return c.Status(fiber.StatusCreated).JSON(version.Summary())
}

// ListVersions returns all versions for a ritual, newest first
// GET /api/admin/rituals/:slug/versions
func (h *RitualAdminHandler) ListVersions(c *fiber.Ctx) error {
	slug := c.Params("slug")
	if slug == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Ritual slug is required",
		})
	}

	versions, err := h.store.ListVersions(c.Context(), slug)
	if err != nil {
		slog.Error("version list failed", "ritual", slug, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list versions",
		})
	}

	summaries := make([]models.VersionSummary, 0, len(versions))
	for _, v := range versions {
		summaries = append(summaries, v.Summary())
	}
	return c.JSON(summaries)
}

// ActivateVersion makes a version the single active one for its ritual
// POST /api/admin/versions/:id/activate
func (h *RitualAdminHandler) ActivateVersion(c *fiber.Ctx) error {
	versionID := c.Params("id")
	if versionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Version ID is required",
		})
	}

	version, err := h.store.ActivateVersion(c.Context(), versionID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		slog.Error("activation failed", "version_id", versionID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to activate version",
		})
	}

	if m := services.GetMetrics(); m != nil {
		m.Activations.Inc()
	}
	return c.JSON(version.Summary())
}

// DuplicateVersion copies a version's config into a new version
// POST /api/admin/versions/:id/duplicate
func (h *RitualAdminHandler) DuplicateVersion(c *fiber.Ctx) error {
	versionID := c.Params("id")
	if versionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Version ID is required",
		})
	}

	var req models.DuplicateVersionRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	makeActive := true
	if req.MakeActive != nil {
		makeActive = *req.MakeActive
	}

	version, err := h.store.DuplicateVersion(c.Context(), versionID, req.Label, req.Notes, req.CreatedBy, makeActive)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		slog.Error("duplicate failed", "version_id", versionID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to duplicate version",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(version.Summary())
}

// GetActiveConfig returns the configuration a new session would use
// GET /api/admin/rituals/:slug/active
func (h *RitualAdminHandler) GetActiveConfig(c *fiber.Ctx) error {
	slug := c.Params("slug")
	if slug == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Ritual slug is required",
		})
	}

	return c.JSON(h.resolver.Resolve(c.Context(), slug))
}
