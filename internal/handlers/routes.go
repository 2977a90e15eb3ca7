package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// Routes groups the console API handlers.
type Routes struct {
	Sessions  *SessionHandler
	Uploads   *UploadHandler
	Pipelines *PipelineHandler
	Config    *ConfigHandler
}

// Register mounts every console route on router.
func (r Routes) Register(router fiber.Router) {
	// Health check
	router.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now(),
		})
	})

	sessions := router.Group("/sessions")
	sessions.Post("/", r.Sessions.HandleCreate)
	sessions.Get("/:id", r.Sessions.HandleGet)
	sessions.Delete("/:id", r.Sessions.HandleDelete)

	sessions.Post("/:id/slots/:slot", r.Uploads.HandleUpload)
	sessions.Post("/:id/parse/:kind", r.Uploads.HandleParse)

	sessions.Post("/:id/pipelines/:name", r.Pipelines.HandleTrigger)
	sessions.Post("/:id/exports/:kind", r.Pipelines.HandleExport)
	sessions.Post("/:id/scoring-suggestion/submit", r.Pipelines.HandleSubmitScore)
	sessions.Post("/:id/scoring-suggestion/evidence", r.Pipelines.HandleExportEvidence)

	sessions.Post("/:id/config/validate", r.Config.HandleValidate)
	sessions.Post("/:id/config/save", r.Config.HandleSave)
}
