package state

import (
	"alfredoptarigan/report-console/internal/models"
)

// Facts is the read-only view preconditions are evaluated against.
type Facts struct {
	Slots       map[models.SlotName]models.UploadSlot
	HasDocText  bool
	ScoreItems  int
	ScoringRows int
	HasAnalysis bool
	HasDiagnose bool
}

func (f Facts) Ready(names ...models.SlotName) bool {
	for _, name := range names {
		slot, ok := f.Slots[name]
		if !ok || !slot.Ready() {
			return false
		}
	}
	return true
}

// Precondition gates a trigger control. It must be a pure function of Facts.
type Precondition func(Facts) bool

func DefaultPreconditions() map[models.ControlName]Precondition {
	return map[models.ControlName]Precondition{
		models.ControlVerify: func(f Facts) bool {
			return f.HasDocText && f.ScoreItems > 0
		},
		models.ControlScoring: func(f Facts) bool {
			return f.Ready(models.SlotReport, models.SlotStandard)
		},
		models.ControlDiagnosis: func(f Facts) bool {
			return f.Ready(models.SlotDoc)
		},
		models.ControlExportScoring: func(f Facts) bool {
			return f.ScoringRows > 0
		},
		models.ControlExportDiagnosis: func(f Facts) bool {
			return f.HasDiagnose
		},
		models.ControlExportPDF: func(f Facts) bool {
			return f.HasAnalysis || f.ScoringRows > 0
		},
	}
}

type controlSpec struct {
	pipeline models.PipelineName
	idle     string
	busy     string
}

var controlSpecs = map[models.ControlName]controlSpec{
	models.ControlVerify:          {pipeline: models.PipelineVerify, idle: "开始校对", busy: "校对中..."},
	models.ControlScoring:         {pipeline: models.PipelineScoring, idle: "生成能力评分", busy: "生成中..."},
	models.ControlDiagnosis:       {pipeline: models.PipelineDiagnosis, idle: "生成诊断报告", busy: "生成中..."},
	models.ControlExportScoring:   {pipeline: models.PipelineExportScoring, idle: "导出Excel", busy: "导出中..."},
	models.ControlExportDiagnosis: {pipeline: models.PipelineExportDiagnosis, idle: "导出报告", busy: "导出中..."},
	models.ControlExportPDF:       {pipeline: models.PipelineExportPDF, idle: "导出完整报告(PDF)", busy: "导出中..."},
}

var controlOrder = []models.ControlName{
	models.ControlVerify,
	models.ControlScoring,
	models.ControlDiagnosis,
	models.ControlExportScoring,
	models.ControlExportDiagnosis,
	models.ControlExportPDF,
}

type controlEntry struct {
	control   models.Control
	busyLabel string
}

// RegisterPrecondition replaces the precondition gating control and
// re-evaluates every control.
func (a *App) RegisterPrecondition(control models.ControlName, pre Precondition) {
	a.mutate(func() []Event {
		a.preconditions[control] = pre
		return a.applyPreconditionsLocked()
	})
}

// SetBusyLabel overrides the label shown while the control's pipeline runs.
// The override is dropped when the run finishes.
func (a *App) SetBusyLabel(control models.ControlName, label string) {
	a.mutate(func() []Event {
		entry, ok := a.controls[control]
		if !ok {
			return nil
		}
		entry.busyLabel = label
		return a.applyPreconditionsLocked()
	})
}

func (a *App) Control(name models.ControlName) models.Control {
	a.mu.Lock()
	defer a.mu.Unlock()
	if entry, ok := a.controls[name]; ok {
		return entry.control
	}
	return models.Control{Name: name}
}

// Facts evaluates the current precondition inputs.
func (a *App) Facts() Facts {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.factsLocked()
}

func (a *App) factsLocked() Facts {
	facts := Facts{
		Slots:       make(map[models.SlotName]models.UploadSlot, len(a.slots)),
		HasDocText:  a.docText != "",
		ScoreItems:  len(a.scoreItems),
		HasAnalysis: a.analysis != nil,
		HasDiagnose: a.diagnosis != nil,
	}
	for name, entry := range a.slots {
		facts.Slots[name] = entry.slot
	}
	if a.scoring != nil {
		facts.ScoringRows = len(a.scoring.Rows)
	}
	return facts
}

// applyPreconditionsLocked recomputes every control. A control is enabled
// when its precondition holds and its pipeline is not running.
func (a *App) applyPreconditionsLocked() []Event {
	facts := a.factsLocked()
	var events []Event

	for _, name := range controlOrder {
		entry := a.controls[name]
		spec := controlSpecs[name]

		busy := false
		if p, ok := a.pipelines[spec.pipeline]; ok {
			busy = p.Running()
		}

		next := entry.control
		next.Busy = busy
		if busy {
			next.Enabled = false
			next.Label = spec.busy
			if entry.busyLabel != "" {
				next.Label = entry.busyLabel
			}
		} else {
			next.Label = spec.idle
			pre, ok := a.preconditions[name]
			next.Enabled = !ok || pre(facts)
		}

		if next != entry.control {
			entry.control = next
			control := next
			events = append(events, Event{Kind: EventControl, Control: &control})
		}
	}

	return events
}

func (a *App) onTransition(t Transition) {
	a.mutate(func() []Event {
		if t.To != models.PipelineRunning {
			for name, spec := range controlSpecs {
				if spec.pipeline == t.Pipeline {
					a.controls[name].busyLabel = ""
				}
			}
		}
		transition := t
		events := []Event{{Kind: EventPipeline, Transition: &transition}}
		return append(events, a.applyPreconditionsLocked()...)
	})
}

// ControlFor returns the trigger control bound to pipeline, if any.
func ControlFor(pipeline models.PipelineName) (models.ControlName, bool) {
	for _, name := range controlOrder {
		if controlSpecs[name].pipeline == pipeline {
			return name, true
		}
	}
	return "", false
}

// PreconditionHolds evaluates the control's precondition against the
// current state, ignoring whether its pipeline is running.
func (a *App) PreconditionHolds(control models.ControlName) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	pre, ok := a.preconditions[control]
	if !ok {
		return true
	}
	return pre(a.factsLocked())
}
