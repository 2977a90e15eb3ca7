package state

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alfredoptarigan/report-console/internal/models"
)

func ready(t *testing.T, app *App, slot models.SlotName, reference, name string) {
	t.Helper()
	require.NoError(t, app.SetSlot(slot, reference, name))
}

func TestNewAppStartsEmptyAndDisabled(t *testing.T) {
	app := New()

	snap := app.Snapshot(false)
	require.Len(t, snap.Slots, len(models.AllSlots()))
	for _, slot := range snap.Slots {
		assert.Equal(t, models.SlotEmpty, slot.Status, slot.Name)
	}
	for _, control := range snap.Controls {
		assert.False(t, control.Enabled, control.Name)
		assert.False(t, control.Busy, control.Name)
	}
	assert.Equal(t, "生成能力评分", app.Control(models.ControlScoring).Label)
}

func TestScoringControlNeedsReportAndStandard(t *testing.T) {
	app := New()

	ready(t, app, models.SlotReport, "uploads/a.docx", "a.docx")
	assert.False(t, app.Control(models.ControlScoring).Enabled)

	ready(t, app, models.SlotStandard, "uploads/b.xlsx", "b.xlsx")
	assert.True(t, app.Control(models.ControlScoring).Enabled)

	// Re-applying after an unrelated change must not flip the result
	app.SetDocText("text")
	assert.True(t, app.Control(models.ControlScoring).Enabled)

	// Marking report ready again keeps scoring enabled
	ready(t, app, models.SlotReport, "uploads/a2.docx", "a2.docx")
	assert.True(t, app.Control(models.ControlScoring).Enabled)
	assert.Equal(t, "uploads/a2.docx", app.Slot(models.SlotReport).Reference)

	app.ResetSlot(models.SlotReport)
	assert.False(t, app.Control(models.ControlScoring).Enabled)
}

func TestVerifyControlNeedsParsedInputs(t *testing.T) {
	app := New()

	app.SetDocText("述职内容")
	assert.False(t, app.Control(models.ControlVerify).Enabled)

	app.SetScoreItems([]json.RawMessage{json.RawMessage(`{"item":"a"}`)})
	assert.True(t, app.Control(models.ControlVerify).Enabled)
}

func TestStaleUploadCompletionIsDiscarded(t *testing.T) {
	app := New()

	first, err := app.BeginUpload(models.SlotReport, "first.docx")
	require.NoError(t, err)
	second, err := app.BeginUpload(models.SlotReport, "second.docx")
	require.NoError(t, err)

	assert.True(t, app.CompleteUpload(second, "uploads/second.docx", "second.docx", nil))
	assert.False(t, app.CompleteUpload(first, "uploads/first.docx", "first.docx", nil))

	slot := app.Slot(models.SlotReport)
	assert.Equal(t, models.SlotReady, slot.Status)
	assert.Equal(t, "uploads/second.docx", slot.Reference)
	assert.Equal(t, "second.docx", slot.DisplayName)
}

func TestFailedUploadRestoresReadySlot(t *testing.T) {
	app := New()
	ready(t, app, models.SlotDoc, "uploads/old.pdf", "old.pdf")

	token, err := app.BeginUpload(models.SlotDoc, "new.pdf")
	require.NoError(t, err)
	assert.Equal(t, models.SlotUploading, app.Slot(models.SlotDoc).Status)
	assert.False(t, app.Control(models.ControlDiagnosis).Enabled)

	assert.True(t, app.FailUpload(token, errors.New("boom")))

	slot := app.Slot(models.SlotDoc)
	assert.Equal(t, models.SlotReady, slot.Status)
	assert.Equal(t, "uploads/old.pdf", slot.Reference)
	assert.Equal(t, "boom", slot.Error)
	assert.True(t, app.Control(models.ControlDiagnosis).Enabled)
}

func TestFailedUploadOnEmptySlotRecordsError(t *testing.T) {
	app := New()

	token, err := app.BeginUpload(models.SlotAudio, "a.mp3")
	require.NoError(t, err)
	require.True(t, app.FailUpload(token, errors.New("网络错误")))

	slot := app.Slot(models.SlotAudio)
	assert.Equal(t, models.SlotError, slot.Status)
	assert.Empty(t, slot.Reference)
	assert.Equal(t, "网络错误", slot.Error)
}

func TestBeginUploadRejectsUnknownSlot(t *testing.T) {
	_, err := New().BeginUpload("nope", "x")
	assert.Error(t, err)
}

func TestRunningPipelineDisablesControl(t *testing.T) {
	app := New()
	ready(t, app, models.SlotDoc, "uploads/a.pdf", "a.pdf")

	pipeline := app.Pipeline(models.PipelineDiagnosis)
	require.NoError(t, pipeline.Begin())
	assert.ErrorIs(t, pipeline.Begin(), ErrBusy)

	control := app.Control(models.ControlDiagnosis)
	assert.False(t, control.Enabled)
	assert.True(t, control.Busy)
	assert.Equal(t, "生成中...", control.Label)

	pipeline.Finish(nil)
	control = app.Control(models.ControlDiagnosis)
	assert.True(t, control.Enabled)
	assert.Equal(t, "生成诊断报告", control.Label)
	assert.Equal(t, models.PipelineIdle, pipeline.Status().State)
}

func TestBusyLabelOverrideLastsOneRun(t *testing.T) {
	app := New()
	pipeline := app.Pipeline(models.PipelineScoring)

	require.NoError(t, pipeline.Begin())
	app.SetBusyLabel(models.ControlScoring, "正在处理录音文件并生成报告...")
	assert.Equal(t, "正在处理录音文件并生成报告...", app.Control(models.ControlScoring).Label)

	pipeline.Finish(errors.New("failed"))
	assert.Equal(t, models.PipelineFailed, pipeline.Status().State)
	assert.Equal(t, "failed", pipeline.Status().Error)

	require.NoError(t, pipeline.Begin())
	assert.Equal(t, "生成中...", app.Control(models.ControlScoring).Label)
}

func TestRegisterPreconditionReplacesDefault(t *testing.T) {
	app := New()
	app.RegisterPrecondition(models.ControlDiagnosis, func(Facts) bool { return true })

	assert.True(t, app.Control(models.ControlDiagnosis).Enabled)
	assert.True(t, app.PreconditionHolds(models.ControlDiagnosis))
}

func TestClearLoadingOnlyTouchesLoadingPanels(t *testing.T) {
	app := New()
	app.SetPanel(models.PanelScoring, models.PanelLoading, "")
	app.SetPanel(models.PanelAnalysis, models.PanelLoading, "")
	app.SetAnalysis(AnalysisSet{Result: models.DefaultAnalysis()})

	app.ClearLoading(models.PanelScoring, models.PanelAnalysis, models.PanelDiagnosis)

	assert.Equal(t, models.PanelEmpty, app.Panel(models.PanelScoring).State)
	assert.Equal(t, models.PanelReady, app.Panel(models.PanelAnalysis).State)
	assert.Equal(t, models.PanelEmpty, app.Panel(models.PanelDiagnosis).State)
}

func TestExportControlsFollowResults(t *testing.T) {
	app := New()
	assert.False(t, app.Control(models.ControlExportPDF).Enabled)

	app.SetAnalysis(AnalysisSet{Result: models.DefaultAnalysis()})
	assert.True(t, app.Control(models.ControlExportPDF).Enabled)
	assert.False(t, app.Control(models.ControlExportScoring).Enabled)

	row := models.NewScoringRow()
	row.Set(models.ColumnItem, "技术深度")
	app.SetScoring(ScoringSet{Rows: []*models.ScoringRow{row}})
	assert.True(t, app.Control(models.ControlExportScoring).Enabled)

	app.SetDiagnosis(DiagnosisSet{Raw: []byte(`{}`)})
	assert.True(t, app.Control(models.ControlExportDiagnosis).Enabled)
}

func TestSubscribersReceiveEventsOutsideLock(t *testing.T) {
	app := New()

	var kinds []EventKind
	unsubscribe := app.Subscribe(func(e Event) {
		kinds = append(kinds, e.Kind)
		// Reading back must not deadlock
		_ = app.Slot(models.SlotReport)
	})

	app.Notify(models.LevelInfo, "hello")
	ready(t, app, models.SlotReport, "uploads/a.docx", "a.docx")
	unsubscribe()
	app.Notify(models.LevelInfo, "ignored")

	assert.Contains(t, kinds, EventNotification)
	assert.Contains(t, kinds, EventSlot)
	assert.Equal(t, 1, countKind(kinds, EventNotification))
}

func countKind(kinds []EventKind, kind EventKind) int {
	n := 0
	for _, k := range kinds {
		if k == kind {
			n++
		}
	}
	return n
}

func TestNotificationFeedIsBoundedAndDrains(t *testing.T) {
	app := New()
	for i := 0; i < defaultFeedSize+5; i++ {
		app.Notify(models.LevelInfo, "n")
	}

	recent := app.Notifications(false)
	require.Len(t, recent, defaultFeedSize)
	assert.Equal(t, uint64(6), recent[0].ID)

	drained := app.Snapshot(true).Notifications
	assert.Len(t, drained, defaultFeedSize)
	assert.Empty(t, app.Notifications(false))
}

func TestSnapshotIsACopy(t *testing.T) {
	app := New()
	token, err := app.BeginUpload(models.SlotAudio, "a.wav")
	require.NoError(t, err)
	app.CompleteUpload(token, "uploads/a.wav", "a.wav", &models.ValidationResult{Valid: true, Message: "ok"})

	snap := app.Snapshot(false)
	for i := range snap.Slots {
		if snap.Slots[i].Validation != nil {
			snap.Slots[i].Validation.Message = "changed"
		}
	}
	assert.Equal(t, "ok", app.Slot(models.SlotAudio).Validation.Message)
}
