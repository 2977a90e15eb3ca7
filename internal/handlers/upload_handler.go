package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"alfredoptarigan/report-console/internal/models"
	"alfredoptarigan/report-console/internal/repositories"
	"alfredoptarigan/report-console/internal/services"
)

type UploadHandler struct {
	sessions       repositories.SessionRepository
	storageService services.StorageService
	logger         *zap.Logger
}

func NewUploadHandler(
	sessions repositories.SessionRepository,
	storageService services.StorageService,
	logger *zap.Logger,
) *UploadHandler {
	return &UploadHandler{
		sessions:       sessions,
		storageService: storageService,
		logger:         logger,
	}
}

// HandleUpload handles POST /sessions/:id/slots/:slot
func (h *UploadHandler) HandleUpload(c *fiber.Ctx) error {
	session, err := findSession(h.sessions, c)
	if err != nil {
		return errorResponse(c, err)
	}

	slot, err := models.ParseSlotName(c.Params("slot"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No file uploaded. Please send the file in the 'file' field.",
		})
	}

	// Stage the file locally for validation and streaming
	staged, err := h.storageService.SaveFile(fileHeader, slot)
	if err != nil {
		return errorResponse(c, err)
	}
	defer func() {
		if err := h.storageService.DeleteFile(staged); err != nil {
			h.logger.Warn("⚠️  failed to remove staged upload", zap.String("path", staged.Path), zap.Error(err))
		}
	}()

	result, err := session.Orchestrator.Upload(userContext(c), slot, staged)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

type ParseRequest struct {
	Path string `json:"path"`
	Slot string `json:"slot"`
}

// HandleParse handles POST /sessions/:id/parse/:kind
func (h *UploadHandler) HandleParse(c *fiber.Ctx) error {
	session, err := findSession(h.sessions, c)
	if err != nil {
		return errorResponse(c, err)
	}

	var req ParseRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request payload",
		})
	}

	path := req.Path
	if path == "" && req.Slot != "" {
		slot, err := models.ParseSlotName(req.Slot)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		path = session.App.Slot(slot).Reference
	}
	if path == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "path or a ready slot is required",
		})
	}

	ctx := userContext(c)
	switch c.Params("kind") {
	case "document":
		err = session.Orchestrator.ParseDocument(ctx, path)
	case "score":
		err = session.Orchestrator.ParseScore(ctx, path)
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "kind must be 'document' or 'score'",
		})
	}
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(session.App.Snapshot(false))
}
