package services

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alfredoptarigan/report-console/internal/models"
	"alfredoptarigan/report-console/internal/state"
)

type orchestratorFixture struct {
	app     *state.App
	orch    Orchestrator
	backend *fakeBackend
	metrics *Metrics
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()
	fb := newFakeBackend(t)
	app := state.New()
	metrics := MustNewMetrics(prometheus.NewRegistry())
	orch := NewOrchestrator(app, fb.client(), NewArtifactValidator(ValidatorOptions{}, nil), nil, nil, metrics, nil)
	return &orchestratorFixture{app: app, orch: orch, backend: fb, metrics: metrics}
}

func (f *orchestratorFixture) upload(t *testing.T, slot models.SlotName, name string) {
	t.Helper()
	result, err := f.orch.Upload(context.Background(), slot, tempFile(t, name, "content"))
	require.NoError(t, err)
	require.True(t, result.Ready())
}

func TestScoringChainKeepsBusyUntilAnalysisFinishes(t *testing.T) {
	f := newOrchestratorFixture(t)

	var busyDuringAnalysis, controlBusy atomic.Bool
	f.backend.handle(EndpointGenerateScoring, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"scoring_results":[
			{"能力维度":"专业","具体能力项":"技术深度","能力值（1-10分）":0,"其他":7}
		]}`))
	})
	f.backend.handle(EndpointGenerateAnalysis, func(w http.ResponseWriter, r *http.Request) {
		busyDuringAnalysis.Store(f.app.Pipeline(models.PipelineScoring).Running())
		controlBusy.Store(f.app.Control(models.ControlScoring).Busy)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "analysis down"})
	})

	f.upload(t, models.SlotReport, "Alice_Report.docx")
	f.upload(t, models.SlotStandard, "Q4_Standard.xlsx")
	require.True(t, f.app.Control(models.ControlScoring).Enabled)

	run, err := f.orch.Execute(context.Background(), models.PipelineScoring, TriggerOptions{})
	require.NoError(t, err)
	require.NoError(t, run.Err())

	assert.True(t, busyDuringAnalysis.Load())
	assert.True(t, controlBusy.Load())
	assert.False(t, f.app.Pipeline(models.PipelineScoring).Running())
	assert.True(t, f.app.Control(models.ControlScoring).Enabled)

	scoring := f.app.Scoring()
	require.NotNil(t, scoring)
	require.Len(t, scoring.Table.Rows, 1)
	assert.Equal(t, "0", scoring.Table.Rows[0][6].Text)

	analysis := f.app.Analysis()
	require.NotNil(t, analysis)
	assert.True(t, analysis.View.Fallback)
	assert.Len(t, analysis.View.Strengths, 3)
	assert.Len(t, analysis.View.Improvements, 3)

	assert.Equal(t, models.PanelReady, f.app.Panel(models.PanelScoring).State)
	assert.Equal(t, models.PanelReady, f.app.Panel(models.PanelAnalysis).State)
	assert.True(t, hasNotification(f.app, models.LevelSuccess, "能力评分已生成"))

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.pipelineRuns.WithLabelValues("scoring", "success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.pipelinesActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.uploads.WithLabelValues("report", "success"))+
		testutil.ToFloat64(f.metrics.uploads.WithLabelValues("standard", "success")))
}

func TestScoringPreconditionWarns(t *testing.T) {
	f := newOrchestratorFixture(t)

	_, err := f.orch.Trigger(models.PipelineScoring, TriggerOptions{})
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.True(t, hasNotification(f.app, models.LevelWarning, "请先上传述职原文Word文件"))

	f.upload(t, models.SlotReport, "a.docx")
	_, err = f.orch.Trigger(models.PipelineScoring, TriggerOptions{})
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.True(t, hasNotification(f.app, models.LevelWarning, "请先上传评分标准Excel文件"))
	assert.Zero(t, f.backend.callCount(EndpointGenerateScoring))
}

func TestTriggerWhileRunningIsBusy(t *testing.T) {
	f := newOrchestratorFixture(t)
	require.NoError(t, f.app.SetSlot(models.SlotDoc, "uploads/a.pdf", "a.pdf"))

	run, err := f.orch.Trigger(models.PipelineDiagnosis, TriggerOptions{})
	require.NoError(t, err)

	_, err = f.orch.Trigger(models.PipelineDiagnosis, TriggerOptions{})
	assert.ErrorIs(t, err, state.ErrBusy)

	run.Abort(nil)
	assert.Equal(t, models.PipelineFailed, f.app.Pipeline(models.PipelineDiagnosis).Status().State)
	assert.Equal(t, models.PanelEmpty, f.app.Panel(models.PanelDiagnosis).State)
	assert.Error(t, run.Execute(context.Background()), "execute after abort returns the abort error")
}

func TestScoringFailureRestoresControls(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.backend.handle(EndpointGenerateScoring, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "评分服务异常"})
	})
	f.upload(t, models.SlotReport, "a.docx")
	f.upload(t, models.SlotStandard, "b.xlsx")

	_, err := f.orch.Execute(context.Background(), models.PipelineScoring, TriggerOptions{})

	require.Error(t, err)
	assert.True(t, hasNotification(f.app, models.LevelDanger, "生成打分建议失败: 评分服务异常"))
	assert.Equal(t, models.PanelEmpty, f.app.Panel(models.PanelScoring).State)
	assert.Equal(t, models.PanelEmpty, f.app.Panel(models.PanelAnalysis).State)
	assert.True(t, f.app.Control(models.ControlScoring).Enabled)
	assert.Zero(t, f.backend.callCount(EndpointGenerateAnalysis))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.pipelineRuns.WithLabelValues("scoring", "error")))
}

func TestDiagnosisAndExport(t *testing.T) {
	f := newOrchestratorFixture(t)

	var got models.DiagnosisRequest
	f.backend.handle(EndpointGenerateDiagnose, func(w http.ResponseWriter, r *http.Request) {
		decodeBody(t, r, &got)
		_, _ = w.Write([]byte(`{
			"success": true,
			"diagnosis": {
				"employee_info": {"name": "方糖", "position": "工程师", "quarter": "Q4"},
				"abilities": {"technical_innovation": 4},
				"strengths": ["稳定"]
			},
			"extracted_info": {"name": "方糖", "position": "未知", "quarter": "Q4"},
			"note": "使用缓存"
		}`))
	})
	f.backend.handle(EndpointExportDiagnosis, func(w http.ResponseWriter, r *http.Request) {
		var req models.ExportDiagnosisRequest
		decodeBody(t, r, &req)
		assert.Contains(t, string(req.Diagnosis), "方糖")
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF"))
	})

	f.upload(t, models.SlotDoc, "述职.pdf")
	f.upload(t, models.SlotJudgeScore, "judge.xlsx")

	opts := TriggerOptions{Diagnosis: DiagnosisOptions{IncludeEmployeeAnalysis: true, IncludeGrowthSuggestions: true}}
	_, err := f.orch.Execute(context.Background(), models.PipelineDiagnosis, opts)
	require.NoError(t, err)

	assert.Equal(t, "uploads/述职.pdf", got.DocPath)
	assert.Equal(t, "uploads/judge.xlsx", got.JudgeScorePath)
	assert.Empty(t, got.AudioAnalysisPath)
	assert.True(t, got.IncludeEmployeeAnalysis)

	assert.True(t, hasNotification(f.app, models.LevelInfo, "已自动提取员工信息： 姓名：方糖 评估周期：Q4"))
	assert.True(t, hasNotification(f.app, models.LevelSuccess, "诊断报告已生成 (使用缓存)"))

	diagnosis := f.app.Diagnosis()
	require.NotNil(t, diagnosis)
	assert.Equal(t, "方糖", diagnosis.View.Info.Name)
	assert.Equal(t, []string{"稳定"}, diagnosis.View.Strengths)
	assert.True(t, f.app.Control(models.ControlExportDiagnosis).Enabled)

	downloader := &MemoryDownloader{}
	_, err = f.orch.Execute(context.Background(), models.PipelineExportDiagnosis, TriggerOptions{Downloader: downloader})
	require.NoError(t, err)
	assert.Equal(t, "方糖_诊断报告_Q4.pdf", downloader.FileName)
	assert.Equal(t, "%PDF", string(downloader.Artifact.Data))
	assert.True(t, hasNotification(f.app, models.LevelSuccess, "报告导出成功！"))
}

func TestDiagnosisWithoutPayloadFails(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.backend.handle(EndpointGenerateDiagnose, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	require.NoError(t, f.app.SetSlot(models.SlotDoc, "uploads/a.pdf", "a.pdf"))

	_, err := f.orch.Execute(context.Background(), models.PipelineDiagnosis, TriggerOptions{})

	require.Error(t, err)
	assert.True(t, hasNotification(f.app, models.LevelDanger, "生成诊断报告失败: 获取诊断报告数据失败"))
	assert.Nil(t, f.app.Diagnosis())
	assert.Equal(t, models.PanelEmpty, f.app.Panel(models.PanelDiagnosis).State)
}

func TestExportScoringFileName(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.backend.handle(EndpointGenerateScoring, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"scoring_results":[{"具体能力项":"A","能力值（1-10分）":5}]}`))
	})
	f.backend.handle(EndpointGenerateAnalysis, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"analysis_result":{"strengths":["好"],"improvements":["多练"]}}`))
	})
	var pdfReq models.ExportPDFRequest
	f.backend.handle(EndpointExportScoring, func(w http.ResponseWriter, r *http.Request) {
		var req models.ExportScoringRequest
		decodeBody(t, r, &req)
		assert.Equal(t, models.ScoringColumns(), req.ColumnOrder)
		_, _ = w.Write([]byte("xlsx"))
	})
	f.backend.handle(EndpointExportPDF, func(w http.ResponseWriter, r *http.Request) {
		decodeBody(t, r, &pdfReq)
		_, _ = w.Write([]byte("pdf"))
	})

	_, err := f.orch.Trigger(models.PipelineExportScoring, TriggerOptions{})
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.True(t, hasNotification(f.app, models.LevelWarning, "没有可导出的评分结果"))

	f.upload(t, models.SlotReport, "Alice_Report.docx")
	f.upload(t, models.SlotStandard, "Q4_Standard.xlsx")
	_, err = f.orch.Execute(context.Background(), models.PipelineScoring, TriggerOptions{})
	require.NoError(t, err)

	downloader := &MemoryDownloader{}
	run, err := f.orch.Execute(context.Background(), models.PipelineExportScoring, TriggerOptions{Downloader: downloader})
	require.NoError(t, err)
	assert.Equal(t, "Alice_Report+Q4_Standard.xlsx", downloader.FileName)
	assert.Equal(t, "Alice_Report+Q4_Standard.xlsx", run.Path())
	assert.True(t, hasNotification(f.app, models.LevelSuccess, "Excel文件已下载"))

	_, err = f.orch.Execute(context.Background(), models.PipelineExportPDF, TriggerOptions{Downloader: downloader})
	require.NoError(t, err)
	assert.Equal(t, "Alice_Report+Q4_Standard.pdf", downloader.FileName)
	require.NotNil(t, pdfReq.AnalysisData)
	assert.Equal(t, "好", pdfReq.AnalysisData.CoreStrengths)
	assert.Equal(t, "多练", pdfReq.AnalysisData.AreasForDevelopment)
	assert.Equal(t, "Alice_Report+Q4_Standard", pdfReq.FileName)
	assert.True(t, hasNotification(f.app, models.LevelInfo, "正在生成PDF报告..."))
}

func TestExportPDFWithNothingToExport(t *testing.T) {
	f := newOrchestratorFixture(t)

	_, err := f.orch.Trigger(models.PipelineExportPDF, TriggerOptions{})

	assert.ErrorIs(t, err, ErrPrecondition)
	assert.True(t, hasNotification(f.app, models.LevelWarning, "没有可导出的数据，请先生成能力评分和分析结果"))
	assert.Zero(t, f.backend.callCount(EndpointExportPDF))
}

func TestVerifyNotifications(t *testing.T) {
	f := newOrchestratorFixture(t)
	missing := []string{}
	f.backend.handle(EndpointVerify, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "missing_items": missing})
	})
	f.backend.handle(EndpointParseDocument, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "doc_text": "述职全文"})
	})
	f.backend.handle(EndpointParseScore, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "score_items": []map[string]string{{"item": "A"}}})
	})

	_, err := f.orch.Trigger(models.PipelineVerify, TriggerOptions{})
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.True(t, hasNotification(f.app, models.LevelWarning, "请先上传并解析文档和评分表文件"))

	require.NoError(t, f.orch.ParseDocument(context.Background(), "uploads/a.docx"))
	require.NoError(t, f.orch.ParseScore(context.Background(), "uploads/b.xlsx"))
	assert.True(t, hasNotification(f.app, models.LevelSuccess, "文档解析成功！"))
	assert.True(t, hasNotification(f.app, models.LevelSuccess, "评分表解析成功！"))
	assert.True(t, f.app.Control(models.ControlVerify).Enabled)

	_, err = f.orch.Execute(context.Background(), models.PipelineVerify, TriggerOptions{})
	require.NoError(t, err)
	assert.True(t, hasNotification(f.app, models.LevelSuccess, "恭喜！未检测到内容不一致"))

	missing = []string{"项目A", "项目B"}
	_, err = f.orch.Execute(context.Background(), models.PipelineVerify, TriggerOptions{})
	require.NoError(t, err)
	assert.True(t, hasNotification(f.app, models.LevelInfo, "共检测到 2处 可能的不一致"))
	view := f.app.Verification()
	require.NotNil(t, view)
	assert.Equal(t, "暂无修改参考", view.Suggestions)
}

func TestSubmitScoreUsesRangeLowerBound(t *testing.T) {
	f := newOrchestratorFixture(t)
	var got models.SubmitScoreRequest
	f.backend.handle(EndpointSubmitScore, func(w http.ResponseWriter, r *http.Request) {
		decodeBody(t, r, &got)
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	})

	suggestion := &models.ScoringSuggestion{
		EmployeeName: "方糖",
		ScoringSuggestions: []models.SuggestionEntry{
			{Ability: "技术", ScoreRange: "4-5"},
			{Ability: "沟通", ScoreRange: "良好"},
			{Ability: "协作"},
		},
	}
	_, err := f.orch.Execute(context.Background(), models.PipelineSubmitScore, TriggerOptions{Suggestion: suggestion})

	require.NoError(t, err)
	assert.Equal(t, "方糖", got.EmployeeName)
	assert.Equal(t, "未知职位", got.Position)
	assert.Equal(t, "未知季度", got.Quarter)
	assert.Equal(t, map[string]float64{"技术": 4, "沟通": 3}, got.Scores)
	assert.True(t, hasNotification(f.app, models.LevelSuccess, "评分已成功提交"))
}

func TestExportEvidenceFiltersSuggestions(t *testing.T) {
	f := newOrchestratorFixture(t)
	var got models.ExportEvidenceRequest
	f.backend.handle(EndpointExportEvidence, func(w http.ResponseWriter, r *http.Request) {
		decodeBody(t, r, &got)
		_, _ = w.Write([]byte("pdf"))
	})

	_, err := f.orch.Trigger(models.PipelineExportEvidence, TriggerOptions{Suggestion: &models.ScoringSuggestion{
		ScoringSuggestions: []models.SuggestionEntry{{Ability: "技术"}},
	}})
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.True(t, hasNotification(f.app, models.LevelWarning, "没有可导出的评估依据"))

	downloader := &MemoryDownloader{}
	_, err = f.orch.Execute(context.Background(), models.PipelineExportEvidence, TriggerOptions{
		Downloader: downloader,
		Suggestion: &models.ScoringSuggestion{
			Quarter: "Q3",
			ScoringSuggestions: []models.SuggestionEntry{
				{Ability: "技术", Quote: "原文"},
				{Ability: "", Evidence: "x"},
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, got.Suggestions, 1)
	assert.Equal(t, models.EvidenceEntry{Ability: "技术", Evidence: "无评估依据", Quote: "原文"}, got.Suggestions[0])
	assert.Equal(t, "未知员工_评估依据_Q3.pdf", downloader.FileName)
}

func TestUploadFailureNotifications(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.backend.handle(EndpointUpload, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "文件损坏"})
	})

	slot, err := f.orch.Upload(context.Background(), models.SlotReport, tempFile(t, "a.docx", "x"))

	require.Error(t, err)
	assert.Equal(t, models.SlotError, slot.Status)
	assert.True(t, hasNotification(f.app, models.LevelDanger, "上传失败: 文件损坏"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.uploads.WithLabelValues("report", "error")))

	f.backend.Close()
	_, err = f.orch.Upload(context.Background(), models.SlotReport, tempFile(t, "a.docx", "x"))
	require.Error(t, err)
	found := false
	for _, message := range messages(f.app) {
		if strings.HasPrefix(message, "上传错误: ") {
			found = true
		}
	}
	assert.True(t, found, "network failure notified as upload error")
}

func TestUploadSlotSpecificNotifications(t *testing.T) {
	f := newOrchestratorFixture(t)

	f.upload(t, models.SlotJudgeScore, "judge.xlsx")
	f.upload(t, models.SlotDoc, "deck.pptx")
	f.upload(t, models.SlotReport, "r.docx")
	f.upload(t, models.SlotStandard, "notes.txt")

	assert.True(t, hasNotification(f.app, models.LevelSuccess, "评委打分结果上传成功"))
	assert.True(t, hasNotification(f.app, models.LevelSuccess, "述职文档上传成功"))
	assert.True(t, hasNotification(f.app, models.LevelSuccess, "r.docx 上传成功"))
	assert.True(t, hasNotification(f.app, models.LevelWarning, "notes.txt 的文件类型可能不匹配，建议上传 .xlsx、.xls 格式"))
}

func TestConfigFlow(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.backend.handle(EndpointConfigStatus, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.ConfigStatusResponse{Success: true, Configured: true})
	})
	f.backend.handle(EndpointConfigValidate, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.ValidateKeyResponse{Success: true, Validation: &models.KeyValidation{Valid: false, Error: "密钥无效"}})
	})
	f.backend.handle(EndpointConfigSet, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.SuccessResponse{Success: true})
	})

	require.NoError(t, f.orch.CheckConfig(context.Background()))
	assert.True(t, f.app.APIConfigured())

	err := f.orch.ValidateKey(context.Background(), "  ")
	assert.Error(t, err)
	assert.True(t, hasNotification(f.app, models.LevelWarning, "请输入API密钥"))
	assert.Zero(t, f.backend.callCount(EndpointConfigValidate))

	assert.Error(t, f.orch.ValidateKey(context.Background(), "sk-bad"))
	assert.True(t, hasNotification(f.app, models.LevelDanger, "密钥无效"))

	require.NoError(t, f.orch.SaveKey(context.Background(), "sk-good"))
	assert.True(t, hasNotification(f.app, models.LevelSuccess, "API密钥保存成功！"))
}

func TestSuggestedScore(t *testing.T) {
	tests := map[string]float64{
		"3-4":   3,
		"4.5-5": 4.5,
		"0-1":   3,
		"abc":   3,
		"":      3,
		"2":     2,
	}
	for in, want := range tests {
		assert.Equal(t, want, SuggestedScore(in), in)
	}
}

func TestExtractedInfoNotice(t *testing.T) {
	assert.Equal(t, "", ExtractedInfoNotice(nil))
	assert.Equal(t, "", ExtractedInfoNotice(&models.EmployeeInfo{Name: "未知", Position: "未知", Quarter: "未知"}))
	assert.Equal(t, "已自动提取员工信息： 职位：工程师", ExtractedInfoNotice(&models.EmployeeInfo{Name: "未知", Position: "工程师", Quarter: "未知"}))
}
