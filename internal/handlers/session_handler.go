package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/report-console/internal/repositories"
	"alfredoptarigan/report-console/internal/services"
	"alfredoptarigan/report-console/internal/state"
)

// OrchestratorFactory binds the shared services to one session's state.
type OrchestratorFactory func(app *state.App) services.Orchestrator

type SessionHandler struct {
	sessions        repositories.SessionRepository
	newOrchestrator OrchestratorFactory
	logger          *zap.Logger
}

func NewSessionHandler(
	sessions repositories.SessionRepository,
	newOrchestrator OrchestratorFactory,
	logger *zap.Logger,
) *SessionHandler {
	return &SessionHandler{
		sessions:        sessions,
		newOrchestrator: newOrchestrator,
		logger:          logger,
	}
}

type SessionResponse struct {
	ID       string         `json:"id"`
	Snapshot state.Snapshot `json:"state"`
}

// HandleCreate handles POST /sessions
func (h *SessionHandler) HandleCreate(c *fiber.Ctx) error {
	app := state.New()
	session := &repositories.Session{
		ID:           uuid.New(),
		App:          app,
		Orchestrator: h.newOrchestrator(app),
	}
	if err := h.sessions.Create(session); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create session",
		})
	}

	// A failed status check only leaves the key flagged as unconfigured
	if err := session.Orchestrator.CheckConfig(userContext(c)); err != nil {
		h.logger.Debug("config status unavailable", zap.String("session", session.ID.String()), zap.Error(err))
	}

	h.logger.Info("🆕 session created", zap.String("session", session.ID.String()))
	return c.Status(fiber.StatusCreated).JSON(SessionResponse{
		ID:       session.ID.String(),
		Snapshot: app.Snapshot(true),
	})
}

// HandleGet handles GET /sessions/:id
func (h *SessionHandler) HandleGet(c *fiber.Ctx) error {
	session, err := findSession(h.sessions, c)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(SessionResponse{
		ID:       session.ID.String(),
		Snapshot: session.App.Snapshot(true),
	})
}

// HandleDelete handles DELETE /sessions/:id
func (h *SessionHandler) HandleDelete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid session ID format",
		})
	}
	if !h.sessions.Delete(id) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func findSession(sessions repositories.SessionRepository, c *fiber.Ctx) (*repositories.Session, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid session ID format")
	}
	return sessions.FindByID(id)
}

func userContext(c *fiber.Ctx) context.Context {
	if ctx := c.UserContext(); ctx != nil {
		return ctx
	}
	return context.Background()
}
