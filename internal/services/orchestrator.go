package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"alfredoptarigan/report-console/internal/models"
	"alfredoptarigan/report-console/internal/state"
)

// TriggerOptions carries the per-run inputs that do not live in the
// application state.
type TriggerOptions struct {
	Diagnosis  DiagnosisOptions
	Suggestion *models.ScoringSuggestion
	// Downloader receives export artifacts. Nil uses the orchestrator's
	// default downloader.
	Downloader Downloader
}

type DiagnosisOptions struct {
	EmployeeName             string
	AbilityModel             string
	Quarter                  string
	PDFAnalysisPath          string
	IncludeEmployeeAnalysis  bool
	IncludeGrowthSuggestions bool
}

type Orchestrator interface {
	App() *state.App
	CheckConfig(ctx context.Context) error
	ValidateKey(ctx context.Context, apiKey string) error
	SaveKey(ctx context.Context, apiKey string) error
	Upload(ctx context.Context, slot models.SlotName, file LocalFile) (models.UploadSlot, error)
	ParseDocument(ctx context.Context, docPath string) error
	ParseScore(ctx context.Context, scorePath string) error
	// Trigger checks the pipeline's precondition and marks it running. The
	// returned Run must be either executed or aborted.
	Trigger(name models.PipelineName, opts TriggerOptions) (*Run, error)
	// Execute triggers and runs a pipeline on the calling goroutine.
	Execute(ctx context.Context, name models.PipelineName, opts TriggerOptions) (*Run, error)
}

type orchestrator struct {
	app        *state.App
	backend    BackendClient
	validator  ArtifactValidator
	renderer   ResultRenderer
	downloader Downloader
	metrics    *Metrics
	logger     *zap.Logger
}

func NewOrchestrator(
	app *state.App,
	backend BackendClient,
	validator ArtifactValidator,
	renderer ResultRenderer,
	downloader Downloader,
	metrics *Metrics,
	logger *zap.Logger,
) Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if renderer == nil {
		renderer = NewResultRenderer()
	}
	return &orchestrator{
		app:        app,
		backend:    backend,
		validator:  validator,
		renderer:   renderer,
		downloader: downloader,
		metrics:    metrics,
		logger:     logger,
	}
}

func (o *orchestrator) App() *state.App {
	return o.app
}

// Run is one triggered pipeline execution.
type Run struct {
	Pipeline models.PipelineName

	o     *orchestrator
	steps func(ctx context.Context, run *Run) error
	once  sync.Once
	err   error
	path  string
	start time.Time
}

// Execute performs the pipeline's steps. The pipeline returns to Idle or
// Failed when it returns. Calling Execute again is a no-op.
func (r *Run) Execute(ctx context.Context) error {
	r.once.Do(func() {
		r.finish(r.steps(ctx, r))
	})
	return r.err
}

// Abort ends a run that will never execute, for example because it could
// not be scheduled.
func (r *Run) Abort(err error) {
	r.once.Do(func() {
		if err == nil {
			err = errors.New("pipeline run aborted")
		}
		r.o.app.ClearLoading(panelsOf(r.Pipeline)...)
		r.finish(err)
	})
}

// Err reports the outcome once the run has finished.
func (r *Run) Err() error {
	return r.err
}

// Path is where an export run delivered its artifact.
func (r *Run) Path() string {
	return r.path
}

func (r *Run) finish(err error) {
	r.err = err
	o := r.o
	if err != nil {
		o.logger.Warn("❌ pipeline failed",
			zap.String("pipeline", string(r.Pipeline)),
			zap.Duration("elapsed", time.Since(r.start)),
			zap.Error(err),
		)
		o.app.Notify(models.LevelDanger, failurePrefix(r.Pipeline)+NoticeMessage(err))
	} else {
		o.logger.Info("✅ pipeline completed",
			zap.String("pipeline", string(r.Pipeline)),
			zap.Duration("elapsed", time.Since(r.start)),
		)
	}
	o.metrics.PipelineFinished(string(r.Pipeline), err)
	o.app.Pipeline(r.Pipeline).Finish(err)
}

func failurePrefix(name models.PipelineName) string {
	switch name {
	case models.PipelineVerify:
		return "校对失败: "
	case models.PipelineScoring:
		return "生成打分建议失败: "
	case models.PipelineDiagnosis:
		return "生成诊断报告失败: "
	case models.PipelineExportScoring:
		return "导出Excel失败: "
	case models.PipelineExportDiagnosis:
		return "报告导出失败: "
	case models.PipelineExportPDF:
		return "导出PDF失败: "
	case models.PipelineExportEvidence:
		return "导出评估依据错误: "
	case models.PipelineSubmitScore:
		return "评分提交失败: "
	}
	return ""
}

func panelsOf(name models.PipelineName) []models.PanelName {
	switch name {
	case models.PipelineVerify:
		return []models.PanelName{models.PanelVerification}
	case models.PipelineScoring:
		return []models.PanelName{models.PanelScoring, models.PanelAnalysis}
	case models.PipelineDiagnosis:
		return []models.PanelName{models.PanelDiagnosis}
	}
	return nil
}

func (o *orchestrator) Execute(ctx context.Context, name models.PipelineName, opts TriggerOptions) (*Run, error) {
	run, err := o.Trigger(name, opts)
	if err != nil {
		return nil, err
	}
	return run, run.Execute(ctx)
}

func (o *orchestrator) Trigger(name models.PipelineName, opts TriggerOptions) (*Run, error) {
	pipeline := o.app.Pipeline(name)
	if pipeline == nil {
		return nil, fmt.Errorf("unknown pipeline: %q", name)
	}
	if pipeline.Running() {
		return nil, state.ErrBusy
	}

	steps, err := o.prepare(name, opts)
	if err != nil {
		return nil, err
	}

	if err := pipeline.Begin(); err != nil {
		return nil, err
	}
	o.metrics.PipelineStarted()
	o.logger.Info("🚀 pipeline started", zap.String("pipeline", string(name)))

	run := &Run{Pipeline: name, o: o, steps: steps, start: time.Now()}
	o.enter(name)
	return run, nil
}

// enter applies the Running-state presentation that is not derived from the
// pipeline state itself.
func (o *orchestrator) enter(name models.PipelineName) {
	switch name {
	case models.PipelineVerify:
		o.app.SetPanel(models.PanelVerification, models.PanelLoading, "")
	case models.PipelineScoring:
		if o.app.IsReady(models.SlotAudio) {
			o.app.SetBusyLabel(models.ControlScoring, "正在处理录音文件并生成报告...")
			o.app.Notify(models.LevelInfo, "正在进行语音转文本处理，请稍候...")
		}
		o.app.SetPanel(models.PanelScoring, models.PanelLoading, "")
		o.app.SetPanel(models.PanelAnalysis, models.PanelLoading, "")
	case models.PipelineDiagnosis:
		o.app.SetPanel(models.PanelDiagnosis, models.PanelLoading, "")
	case models.PipelineExportPDF:
		o.app.Notify(models.LevelInfo, "正在生成PDF报告...")
	case models.PipelineExportEvidence:
		o.app.Notify(models.LevelInfo, "正在生成评估依据文档...")
	}
}

func (o *orchestrator) precondition(control models.ControlName, warning string) error {
	if o.app.PreconditionHolds(control) {
		return nil
	}
	o.app.Notify(models.LevelWarning, warning)
	return fmt.Errorf("%w: %s", ErrPrecondition, warning)
}

// prepare captures the run's inputs at trigger time and returns its steps.
func (o *orchestrator) prepare(name models.PipelineName, opts TriggerOptions) (func(context.Context, *Run) error, error) {
	downloader := opts.Downloader
	if downloader == nil {
		downloader = o.downloader
	}

	switch name {
	case models.PipelineVerify:
		if err := o.precondition(models.ControlVerify, "请先上传并解析文档和评分表文件"); err != nil {
			return nil, err
		}
		req := models.VerifyRequest{DocText: o.app.DocText(), ScoreItems: o.app.ScoreItems()}
		return func(ctx context.Context, _ *Run) error {
			return o.verify(ctx, req)
		}, nil

	case models.PipelineScoring:
		warning := "请先上传评分标准Excel文件"
		if !o.app.IsReady(models.SlotReport) {
			warning = "请先上传述职原文Word文件"
		}
		if err := o.precondition(models.ControlScoring, warning); err != nil {
			return nil, err
		}
		report := o.app.Slot(models.SlotReport)
		standard := o.app.Slot(models.SlotStandard)
		return func(ctx context.Context, _ *Run) error {
			return o.scoring(ctx, report.Reference, standard.Reference)
		}, nil

	case models.PipelineDiagnosis:
		if err := o.precondition(models.ControlDiagnosis, "请先上传述职PDF文件"); err != nil {
			return nil, err
		}
		req := o.diagnosisRequest(opts.Diagnosis)
		return func(ctx context.Context, _ *Run) error {
			return o.diagnosis(ctx, req, opts.Diagnosis)
		}, nil

	case models.PipelineExportScoring:
		if err := o.precondition(models.ControlExportScoring, "没有可导出的评分结果"); err != nil {
			return nil, err
		}
		scoring := o.app.Scoring()
		payload := models.ExportScoringRequest{ScoringResults: scoring.Rows, ColumnOrder: models.ScoringColumns()}
		fileName := ScoringFileName(o.slotStem(models.SlotReport), o.slotStem(models.SlotStandard))
		return o.exportSteps(name, ExportScoring, payload, fileName, "Excel文件已下载", downloader), nil

	case models.PipelineExportDiagnosis:
		if err := o.precondition(models.ControlExportDiagnosis, "请先生成诊断报告"); err != nil {
			return nil, err
		}
		diagnosis := o.app.Diagnosis()
		var rows []*models.ScoringRow
		if scoring := o.app.Scoring(); scoring != nil {
			rows = scoring.Rows
		}
		employee := ResolveEmployeeName(o.slotStem(models.SlotReport), &diagnosis.Result, rows)
		var quarter string
		if diagnosis.Result.EmployeeInfo != nil {
			quarter = diagnosis.Result.EmployeeInfo.Quarter
		}
		payload := models.ExportDiagnosisRequest{Diagnosis: diagnosis.Raw}
		fileName := DiagnosisFileName(employee, quarter)
		return o.exportSteps(name, ExportDiagnosis, payload, fileName, "报告导出成功！", downloader), nil

	case models.PipelineExportPDF:
		payload, ok := o.pdfReportPayload()
		if !ok {
			o.app.Notify(models.LevelWarning, "没有可导出的数据，请先生成能力评分和分析结果")
			return nil, fmt.Errorf("%w: nothing to export", ErrPrecondition)
		}
		return o.exportSteps(name, ExportPDF, payload, payload.FileName+".pdf", "PDF报告导出成功", downloader), nil

	case models.PipelineExportEvidence:
		payload, err := o.evidencePayload(opts.Suggestion)
		if err != nil {
			return nil, err
		}
		fileName := EvidenceFileName(payload.EmployeeName, payload.Quarter)
		return o.exportSteps(name, ExportEvidence, payload, fileName, "评估依据已导出", downloader), nil

	case models.PipelineSubmitScore:
		req, err := o.submitRequest(opts.Suggestion)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, _ *Run) error {
			if err := o.step(ctx, name, "submit_score", func(ctx context.Context) error {
				return o.backend.SubmitScore(ctx, req)
			}); err != nil {
				return err
			}
			o.app.Notify(models.LevelSuccess, "评分已成功提交")
			return nil
		}, nil
	}

	return nil, fmt.Errorf("unknown pipeline: %q", name)
}

// step runs one backend call and records its duration.
func (o *orchestrator) step(ctx context.Context, pipeline models.PipelineName, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	o.metrics.ObserveStep(string(pipeline), name, err, time.Since(start))
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	o.logger.Debug("step completed", zap.String("pipeline", string(pipeline)), zap.String("step", name))
	return nil
}

func (o *orchestrator) verify(ctx context.Context, req models.VerifyRequest) error {
	var resp *models.VerifyResponse
	err := o.step(ctx, models.PipelineVerify, "verify", func(ctx context.Context) error {
		var err error
		resp, err = o.backend.Verify(ctx, req)
		return err
	})
	if err != nil {
		o.app.ClearLoading(models.PanelVerification)
		return err
	}

	view := o.renderer.Verification(resp)
	o.app.SetVerification(view)
	if view.Consistent {
		o.app.Notify(models.LevelSuccess, "恭喜！未检测到内容不一致")
	} else {
		o.app.Notify(models.LevelInfo, fmt.Sprintf("共检测到 %d处 可能的不一致", len(view.MissingItems)))
	}
	return nil
}

// scoring generates the table and then always runs the analysis step. The
// pipeline stays busy until the analysis has finished.
func (o *orchestrator) scoring(ctx context.Context, reportRef, standardRef string) error {
	var resp *models.ScoringResponse
	err := o.step(ctx, models.PipelineScoring, "generate_ability_scoring", func(ctx context.Context) error {
		var err error
		resp, err = o.backend.GenerateScoring(ctx, reportRef, standardRef)
		return err
	})
	if err != nil {
		o.app.ClearLoading(models.PanelScoring, models.PanelAnalysis)
		return err
	}

	rows := resp.ScoringResults
	o.app.SetScoring(state.ScoringSet{
		Rows:    rows,
		Columns: models.ScoringColumns(),
		Table:   o.renderer.ScoringTable(rows),
	})
	o.app.Notify(models.LevelSuccess, "能力评分已生成")

	o.analysis(ctx, reportRef)
	return nil
}

// analysis never fails: any error renders the fixed fallback. Loading
// placeholders are always cleared.
func (o *orchestrator) analysis(ctx context.Context, reportRef string) {
	defer o.app.ClearLoading(models.PanelScoring, models.PanelAnalysis)

	if reportRef == "" {
		o.logger.Debug("no report reference, skipping analysis")
		return
	}

	var result *models.AnalysisResult
	err := o.step(ctx, models.PipelineScoring, "generate_report_analysis", func(ctx context.Context) error {
		var err error
		result, err = o.backend.GenerateAnalysis(ctx, models.AnalysisRequest{
			ReportFilePath: reportRef,
			AnalysisType:   models.AnalysisTypeAbilityReport,
		})
		return err
	})

	fallback := false
	if err != nil {
		o.logger.Warn("⚠️  report analysis failed, showing defaults", zap.Error(err))
		defaults := models.DefaultAnalysis()
		result = &defaults
		fallback = true
	}

	o.app.SetAnalysis(state.AnalysisSet{
		Result: *result,
		View:   o.renderer.Analysis(result, fallback),
	})
}

func (o *orchestrator) diagnosisRequest(opts DiagnosisOptions) models.DiagnosisRequest {
	req := models.DiagnosisRequest{
		EmployeeName:            opts.EmployeeName,
		AbilityModel:            opts.AbilityModel,
		Quarter:                 opts.Quarter,
		DocPath:                 o.app.Slot(models.SlotDoc).Reference,
		IncludeEmployeeAnalysis: opts.IncludeEmployeeAnalysis,
		IncludeGrowthSuggestion: opts.IncludeGrowthSuggestions,
		PDFAnalysisPath:         opts.PDFAnalysisPath,
	}
	if slot := o.app.Slot(models.SlotJudgeScore); slot.Ready() {
		req.JudgeScorePath = slot.Reference
	}
	if slot := o.app.Slot(models.SlotAudio); slot.Ready() {
		req.AudioAnalysisPath = slot.Reference
	}
	return req
}

func (o *orchestrator) diagnosis(ctx context.Context, req models.DiagnosisRequest, opts DiagnosisOptions) error {
	var resp *models.DiagnosisResponse
	err := o.step(ctx, models.PipelineDiagnosis, "generate_diagnosis", func(ctx context.Context) error {
		var err error
		resp, err = o.backend.GenerateDiagnosis(ctx, req)
		return err
	})
	if err == nil && (len(resp.Diagnosis) == 0 || string(resp.Diagnosis) == "null") {
		err = &ApplicationError{Endpoint: EndpointGenerateDiagnose, Message: "获取诊断报告数据失败"}
	}

	var result models.DiagnosisResult
	if err == nil {
		if decodeErr := json.Unmarshal(resp.Diagnosis, &result); decodeErr != nil {
			err = &ApplicationError{Endpoint: EndpointGenerateDiagnose, Message: "诊断结果格式错误: " + decodeErr.Error()}
		}
	}
	if err != nil {
		o.app.ClearLoading(models.PanelDiagnosis)
		return err
	}

	o.app.SetDiagnosis(state.DiagnosisSet{
		Result: result,
		Raw:    resp.Diagnosis,
		View:   o.renderer.Diagnosis(result, opts.IncludeEmployeeAnalysis, opts.IncludeGrowthSuggestions),
	})

	if note := ExtractedInfoNotice(resp.ExtractedInfo); note != "" {
		o.app.Notify(models.LevelInfo, note)
	}
	message := "诊断报告已生成"
	if resp.Note != "" {
		message += " (" + resp.Note + ")"
	}
	o.app.Notify(models.LevelSuccess, message)
	return nil
}

const extractedInfoPrefix = "已自动提取员工信息："

// ExtractedInfoNotice lists the employee fields the backend extracted. It
// returns "" when every field is unknown.
func ExtractedInfoNotice(info *models.EmployeeInfo) string {
	if info == nil {
		return ""
	}
	message := extractedInfoPrefix
	if info.Name != unknownField {
		message += " 姓名：" + info.Name
	}
	if info.Position != unknownField {
		message += " 职位：" + info.Position
	}
	if info.Quarter != unknownField {
		message += " 评估周期：" + info.Quarter
	}
	if message == extractedInfoPrefix {
		return ""
	}
	return message
}

func (o *orchestrator) exportSteps(pipeline models.PipelineName, kind ExportKind, payload any, fileName, success string, downloader Downloader) func(context.Context, *Run) error {
	return func(ctx context.Context, run *Run) error {
		if downloader == nil {
			return errors.New("no downloader configured")
		}
		var artifact *Artifact
		if err := o.step(ctx, pipeline, string(kind), func(ctx context.Context) error {
			var err error
			artifact, err = o.backend.Export(ctx, kind.Endpoint(), payload)
			return err
		}); err != nil {
			return err
		}

		path, err := downloader.Deliver(ctx, fileName, artifact)
		if err != nil {
			return fmt.Errorf("failed to deliver %s: %w", fileName, err)
		}
		run.path = path
		o.app.Notify(models.LevelSuccess, success)
		return nil
	}
}

func (o *orchestrator) slotStem(name models.SlotName) string {
	slot := o.app.Slot(name)
	if !slot.Ready() {
		return ""
	}
	return models.FileStem(slot.DisplayName)
}

// pdfReportPayload builds the full report request from the current analysis
// and scoring results. It reports false when neither exists.
func (o *orchestrator) pdfReportPayload() (models.ExportPDFRequest, bool) {
	var analysis *models.AnalysisData
	if set := o.app.Analysis(); set != nil {
		data := models.AnalysisData{
			CoreStrengths:       strings.Join(set.View.Strengths, "\n"),
			AreasForDevelopment: strings.Join(set.View.Improvements, "\n"),
		}
		if data.CoreStrengths != "" || data.AreasForDevelopment != "" {
			analysis = &data
		}
	}

	var rows []*models.ScoringRow
	if set := o.app.Scoring(); set != nil && len(set.Rows) > 0 {
		rows = set.Rows
	}
	if analysis == nil && rows == nil {
		return models.ExportPDFRequest{}, false
	}

	var diagnosis *models.DiagnosisResult
	if set := o.app.Diagnosis(); set != nil {
		diagnosis = &set.Result
	}
	reportStem := o.slotStem(models.SlotReport)

	return models.ExportPDFRequest{
		AnalysisData:   analysis,
		ScoringResults: rows,
		FileName:       ExportStem(reportStem, o.slotStem(models.SlotStandard), defaultReportStem),
		EmployeeName:   ResolveEmployeeName(reportStem, diagnosis, rows),
	}, true
}

func (o *orchestrator) evidencePayload(suggestion *models.ScoringSuggestion) (models.ExportEvidenceRequest, error) {
	if suggestion == nil {
		o.app.Notify(models.LevelWarning, "打分建议数据格式不正确")
		return models.ExportEvidenceRequest{}, fmt.Errorf("%w: missing scoring suggestion", ErrPrecondition)
	}
	req := models.ExportEvidenceRequest{
		EmployeeName: orDefault(suggestion.EmployeeName, defaultEvidenceName),
		Position:     orDefault(suggestion.Position, "未知职位"),
		Quarter:      orDefault(suggestion.Quarter, defaultEvidenceTerm),
	}
	for _, entry := range suggestion.ScoringSuggestions {
		if entry.Ability == "" || (entry.Evidence == "" && entry.Quote == "") {
			continue
		}
		req.Suggestions = append(req.Suggestions, models.EvidenceEntry{
			Ability:  entry.Ability,
			Evidence: orDefault(entry.Evidence, "无评估依据"),
			Quote:    orDefault(entry.Quote, "无原文引用"),
		})
	}
	if len(req.Suggestions) == 0 {
		o.app.Notify(models.LevelWarning, "没有可导出的评估依据")
		return models.ExportEvidenceRequest{}, fmt.Errorf("%w: no evidence to export", ErrPrecondition)
	}
	return req, nil
}

func (o *orchestrator) submitRequest(suggestion *models.ScoringSuggestion) (models.SubmitScoreRequest, error) {
	if suggestion == nil {
		o.app.Notify(models.LevelWarning, "打分建议数据格式不正确")
		return models.SubmitScoreRequest{}, fmt.Errorf("%w: missing scoring suggestion", ErrPrecondition)
	}
	req := models.SubmitScoreRequest{
		EmployeeName: orDefault(suggestion.EmployeeName, defaultEvidenceName),
		Position:     orDefault(suggestion.Position, "未知职位"),
		Quarter:      orDefault(suggestion.Quarter, defaultEvidenceTerm),
		Scores:       map[string]float64{},
	}
	for _, entry := range suggestion.ScoringSuggestions {
		if entry.Ability == "" || entry.ScoreRange == "" {
			continue
		}
		req.Scores[entry.Ability] = SuggestedScore(entry.ScoreRange)
	}
	return req, nil
}

const defaultSuggestedScore = 3

var rangeLowerBound = regexp.MustCompile(`^\s*[+-]?(\d+\.?\d*|\.\d+)`)

// SuggestedScore takes the lower bound of a range such as "3-4". Ranges
// that do not start with a non-zero number score 3.
func SuggestedScore(scoreRange string) float64 {
	lower, _, _ := strings.Cut(scoreRange, "-")
	match := rangeLowerBound.FindString(lower)
	if match == "" {
		return defaultSuggestedScore
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(match), 64)
	if err != nil || value == 0 {
		return defaultSuggestedScore
	}
	return value
}
