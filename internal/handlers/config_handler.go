package handlers

import (
	"github.com/gofiber/fiber/v2"

	"alfredoptarigan/report-console/internal/repositories"
)

type ConfigHandler struct {
	sessions repositories.SessionRepository
}

func NewConfigHandler(sessions repositories.SessionRepository) *ConfigHandler {
	return &ConfigHandler{sessions: sessions}
}

type APIKeyRequest struct {
	APIKey string `json:"api_key"`
}

// HandleValidate handles POST /sessions/:id/config/validate
func (h *ConfigHandler) HandleValidate(c *fiber.Ctx) error {
	return h.handleKey(c, false)
}

// HandleSave handles POST /sessions/:id/config/save
func (h *ConfigHandler) HandleSave(c *fiber.Ctx) error {
	return h.handleKey(c, true)
}

func (h *ConfigHandler) handleKey(c *fiber.Ctx, save bool) error {
	session, err := findSession(h.sessions, c)
	if err != nil {
		return errorResponse(c, err)
	}

	var req APIKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request payload",
		})
	}

	if save {
		err = session.Orchestrator.SaveKey(userContext(c), req.APIKey)
	} else {
		err = session.Orchestrator.ValidateKey(userContext(c), req.APIKey)
	}
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"configured": session.App.APIConfigured(),
	})
}
