package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/report-console/internal/models"
	"alfredoptarigan/report-console/internal/repositories"
	"alfredoptarigan/report-console/internal/services"
)

type PipelineHandler struct {
	sessions repositories.SessionRepository
	worker   services.Worker
	logger   *zap.Logger
}

func NewPipelineHandler(
	sessions repositories.SessionRepository,
	worker services.Worker,
	logger *zap.Logger,
) *PipelineHandler {
	return &PipelineHandler{
		sessions: sessions,
		worker:   worker,
		logger:   logger,
	}
}

// DiagnosisBody is the optional request body of the diagnosis pipeline.
// Empty employee fields let the backend extract them from the document.
type DiagnosisBody struct {
	EmployeeName             string `json:"employee_name"`
	AbilityModel             string `json:"ability_model"`
	Quarter                  string `json:"quarter"`
	PDFAnalysisPath          string `json:"pdf_analysis_path"`
	IncludeEmployeeAnalysis  *bool  `json:"include_employee_analysis"`
	IncludeGrowthSuggestions *bool  `json:"include_growth_suggestions"`
}

func (b DiagnosisBody) options() services.DiagnosisOptions {
	return services.DiagnosisOptions{
		EmployeeName:             b.EmployeeName,
		AbilityModel:             b.AbilityModel,
		Quarter:                  b.Quarter,
		PDFAnalysisPath:          b.PDFAnalysisPath,
		IncludeEmployeeAnalysis:  b.IncludeEmployeeAnalysis == nil || *b.IncludeEmployeeAnalysis,
		IncludeGrowthSuggestions: b.IncludeGrowthSuggestions == nil || *b.IncludeGrowthSuggestions,
	}
}

type TriggerResponse struct {
	ID       string `json:"id"`
	Pipeline string `json:"pipeline"`
	Status   string `json:"status"`
}

var triggerable = map[models.PipelineName]bool{
	models.PipelineVerify:    true,
	models.PipelineScoring:   true,
	models.PipelineDiagnosis: true,
}

// HandleTrigger handles POST /sessions/:id/pipelines/:name
func (h *PipelineHandler) HandleTrigger(c *fiber.Ctx) error {
	session, err := findSession(h.sessions, c)
	if err != nil {
		return errorResponse(c, err)
	}

	// The route param aliases the request buffer; the run outlives the request
	name, err := models.ParsePipelineName(c.Params("name"))
	if err != nil || !triggerable[name] {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "pipeline must be one of verify, scoring, diagnosis",
		})
	}

	var opts services.TriggerOptions
	if name == models.PipelineDiagnosis && len(c.Body()) > 0 {
		var body DiagnosisBody
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request payload",
			})
		}
		opts.Diagnosis = body.options()
	} else {
		opts.Diagnosis = DiagnosisBody{}.options()
	}

	run, err := session.Orchestrator.Trigger(name, opts)
	if err != nil {
		return errorResponse(c, err)
	}

	// Enqueue job to worker
	job := services.Job{ID: uuid.New(), Session: session.ID.String(), Run: run}
	if err := h.worker.EnqueueJob(job); err != nil {
		run.Abort(err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Failed to schedule pipeline",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(TriggerResponse{
		ID:       job.ID.String(),
		Pipeline: string(name),
		Status:   string(models.PipelineRunning),
	})
}

var exportPipelines = map[services.ExportKind]models.PipelineName{
	services.ExportScoring:   models.PipelineExportScoring,
	services.ExportDiagnosis: models.PipelineExportDiagnosis,
	services.ExportPDF:       models.PipelineExportPDF,
}

// HandleExport handles POST /sessions/:id/exports/:kind
func (h *PipelineHandler) HandleExport(c *fiber.Ctx) error {
	session, err := findSession(h.sessions, c)
	if err != nil {
		return errorResponse(c, err)
	}

	kind, err := services.ParseExportKind(c.Params("kind"))
	pipeline, ok := exportPipelines[kind]
	if err != nil || !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "export must be one of scoring, diagnosis, pdf",
		})
	}

	return h.export(c, session, pipeline, services.TriggerOptions{})
}

// HandleExportEvidence handles POST /sessions/:id/scoring-suggestion/evidence
func (h *PipelineHandler) HandleExportEvidence(c *fiber.Ctx) error {
	session, err := findSession(h.sessions, c)
	if err != nil {
		return errorResponse(c, err)
	}

	suggestion, err := parseSuggestion(c)
	if err != nil {
		return errorResponse(c, err)
	}

	return h.export(c, session, models.PipelineExportEvidence, services.TriggerOptions{Suggestion: suggestion})
}

// HandleSubmitScore handles POST /sessions/:id/scoring-suggestion/submit
func (h *PipelineHandler) HandleSubmitScore(c *fiber.Ctx) error {
	session, err := findSession(h.sessions, c)
	if err != nil {
		return errorResponse(c, err)
	}

	suggestion, err := parseSuggestion(c)
	if err != nil {
		return errorResponse(c, err)
	}

	if _, err := session.Orchestrator.Execute(userContext(c), models.PipelineSubmitScore, services.TriggerOptions{Suggestion: suggestion}); err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{"success": true})
}

// export runs an export pipeline on the request goroutine and streams the
// artifact back as an attachment.
func (h *PipelineHandler) export(c *fiber.Ctx, session *repositories.Session, pipeline models.PipelineName, opts services.TriggerOptions) error {
	downloader := &services.MemoryDownloader{}
	opts.Downloader = downloader

	if _, err := session.Orchestrator.Execute(userContext(c), pipeline, opts); err != nil {
		return errorResponse(c, err)
	}

	h.logger.Info("📦 export delivered",
		zap.String("session", session.ID.String()),
		zap.String("pipeline", string(pipeline)),
		zap.String("file", downloader.FileName),
	)

	c.Attachment(downloader.FileName)
	if downloader.Artifact.ContentType != "" {
		c.Set(fiber.HeaderContentType, downloader.Artifact.ContentType)
	}
	return c.Send(downloader.Artifact.Data)
}

// parseSuggestion reads a scoring suggestion body. A missing body yields nil
// so the orchestrator reports the malformed-data warning.
func parseSuggestion(c *fiber.Ctx) (*models.ScoringSuggestion, error) {
	if len(c.Body()) == 0 {
		return nil, nil
	}
	var suggestion models.ScoringSuggestion
	if err := c.BodyParser(&suggestion); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid request payload")
	}
	return &suggestion, nil
}
