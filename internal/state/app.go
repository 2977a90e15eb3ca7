// Package state holds the per-session application state: upload slots,
// pipeline state machines, trigger controls, result panels, the current
// results and the notification feed. The UI layer only reads snapshots and
// subscribes to events.
package state

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"alfredoptarigan/report-console/internal/models"
)

type EventKind string

const (
	EventSlot         EventKind = "slot"
	EventPipeline     EventKind = "pipeline"
	EventControl      EventKind = "control"
	EventPanel        EventKind = "panel"
	EventNotification EventKind = "notification"
	EventResult       EventKind = "result"
)

type Event struct {
	Kind         EventKind
	Slot         *models.UploadSlot
	Transition   *Transition
	Control      *models.Control
	Panel        *models.Panel
	Notification *models.Notification
	Result       string
}

// ScoringSet is the current scoring table, overwritten wholesale on each
// successful generation. Rows are not mutated after being stored.
type ScoringSet struct {
	Rows    []*models.ScoringRow
	Columns []string
	Table   models.ScoringTable
}

type DiagnosisSet struct {
	Result models.DiagnosisResult
	Raw    json.RawMessage
	View   models.DiagnosisView
}

type AnalysisSet struct {
	Result models.AnalysisResult
	View   models.AnalysisView
}

type Snapshot struct {
	Slots         []models.UploadSlot      `json:"slots"`
	Controls      []models.Control         `json:"controls"`
	Panels        []models.Panel           `json:"panels"`
	Pipelines     []models.PipelineStatus  `json:"pipelines"`
	Notifications []models.Notification    `json:"notifications"`
	APIConfigured bool                     `json:"api_configured"`
	DocParsed     bool                     `json:"doc_parsed"`
	ScoreItems    int                      `json:"score_items"`
	Scoring       *models.ScoringTable     `json:"scoring,omitempty"`
	Analysis      *models.AnalysisView     `json:"analysis,omitempty"`
	Verification  *models.VerificationView `json:"verification,omitempty"`
	Diagnosis     *models.DiagnosisView    `json:"diagnosis,omitempty"`
}

type App struct {
	mu sync.Mutex

	slots         map[models.SlotName]*slotEntry
	docText       string
	scoreItems    []json.RawMessage
	scoring       *ScoringSet
	analysis      *AnalysisSet
	diagnosis     *DiagnosisSet
	verification  *models.VerificationView
	apiConfigured bool

	panels        map[models.PanelName]*models.Panel
	controls      map[models.ControlName]*controlEntry
	preconditions map[models.ControlName]Precondition
	pipelines     map[models.PipelineName]*Pipeline
	feed          *feed

	listeners    map[int]func(Event)
	nextListener int
	now          func() time.Time
}

// New builds an App with every slot empty and the default preconditions
// registered.
func New() *App {
	a := &App{
		slots:         make(map[models.SlotName]*slotEntry),
		panels:        make(map[models.PanelName]*models.Panel),
		controls:      make(map[models.ControlName]*controlEntry),
		preconditions: make(map[models.ControlName]Precondition),
		pipelines:     make(map[models.PipelineName]*Pipeline),
		feed:          newFeed(defaultFeedSize),
		listeners:     make(map[int]func(Event)),
		now:           time.Now,
	}

	for _, name := range models.AllSlots() {
		a.slots[name] = &slotEntry{slot: models.UploadSlot{Name: name, Status: models.SlotEmpty}}
	}
	for _, name := range []models.PanelName{models.PanelScoring, models.PanelAnalysis, models.PanelVerification, models.PanelDiagnosis} {
		a.panels[name] = &models.Panel{Name: name, State: models.PanelEmpty}
	}
	for _, name := range models.AllPipelines() {
		p := NewPipeline(name)
		p.OnTransition(a.onTransition)
		a.pipelines[name] = p
	}
	for name, spec := range controlSpecs {
		a.controls[name] = &controlEntry{
			control: models.Control{Name: name, Label: spec.idle},
		}
	}
	for name, pre := range DefaultPreconditions() {
		a.preconditions[name] = pre
	}

	a.mu.Lock()
	events := a.applyPreconditionsLocked()
	a.mu.Unlock()
	a.dispatch(events)

	return a
}

// Subscribe registers an observer and returns a function removing it.
// Observers run outside the state lock and may call back into the App.
func (a *App) Subscribe(fn func(Event)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.nextListener
	a.nextListener++
	a.listeners[id] = fn

	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.listeners, id)
	}
}

// Pipeline returns the state machine for name.
func (a *App) Pipeline(name models.PipelineName) *Pipeline {
	return a.pipelines[name]
}

func (a *App) mutate(fn func() []Event) {
	a.mu.Lock()
	events := fn()
	a.mu.Unlock()
	a.dispatch(events)
}

func (a *App) dispatch(events []Event) {
	if len(events) == 0 {
		return
	}
	a.mu.Lock()
	ids := make([]int, 0, len(a.listeners))
	for id := range a.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, a.listeners[id])
	}
	a.mu.Unlock()

	for _, event := range events {
		for _, fn := range listeners {
			fn(event)
		}
	}
}

func (a *App) SetAPIConfigured(configured bool) {
	a.mutate(func() []Event {
		a.apiConfigured = configured
		return nil
	})
}

func (a *App) APIConfigured() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.apiConfigured
}

// SetDocText stores the parsed document text used by verification.
func (a *App) SetDocText(text string) {
	a.mutate(func() []Event {
		a.docText = text
		return a.applyPreconditionsLocked()
	})
}

func (a *App) DocText() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.docText
}

func (a *App) SetScoreItems(items []json.RawMessage) {
	a.mutate(func() []Event {
		a.scoreItems = append([]json.RawMessage(nil), items...)
		return a.applyPreconditionsLocked()
	})
}

func (a *App) ScoreItems() []json.RawMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]json.RawMessage(nil), a.scoreItems...)
}

func (a *App) SetScoring(set ScoringSet) {
	a.mutate(func() []Event {
		stored := set
		a.scoring = &stored
		events := []Event{{Kind: EventResult, Result: "scoring"}}
		state := models.PanelReady
		if set.Table.Empty() {
			state = models.PanelEmpty
		}
		events = append(events, a.setPanelLocked(models.PanelScoring, state, "")...)
		return append(events, a.applyPreconditionsLocked()...)
	})
}

// Scoring returns the current scoring set, or nil before the first success.
func (a *App) Scoring() *ScoringSet {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scoring == nil {
		return nil
	}
	copied := *a.scoring
	return &copied
}

func (a *App) SetAnalysis(set AnalysisSet) {
	a.mutate(func() []Event {
		stored := set
		a.analysis = &stored
		events := []Event{{Kind: EventResult, Result: "analysis"}}
		events = append(events, a.setPanelLocked(models.PanelAnalysis, models.PanelReady, "")...)
		return append(events, a.applyPreconditionsLocked()...)
	})
}

func (a *App) Analysis() *AnalysisSet {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.analysis == nil {
		return nil
	}
	copied := *a.analysis
	return &copied
}

func (a *App) SetDiagnosis(set DiagnosisSet) {
	a.mutate(func() []Event {
		stored := set
		stored.Raw = append(json.RawMessage(nil), set.Raw...)
		a.diagnosis = &stored
		events := []Event{{Kind: EventResult, Result: "diagnosis"}}
		events = append(events, a.setPanelLocked(models.PanelDiagnosis, models.PanelReady, "")...)
		return append(events, a.applyPreconditionsLocked()...)
	})
}

func (a *App) Diagnosis() *DiagnosisSet {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.diagnosis == nil {
		return nil
	}
	copied := *a.diagnosis
	return &copied
}

func (a *App) SetVerification(view models.VerificationView) {
	a.mutate(func() []Event {
		stored := view
		a.verification = &stored
		events := []Event{{Kind: EventResult, Result: "verification"}}
		return append(events, a.setPanelLocked(models.PanelVerification, models.PanelReady, "")...)
	})
}

func (a *App) Verification() *models.VerificationView {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.verification == nil {
		return nil
	}
	copied := *a.verification
	return &copied
}

// SetPanel puts a result panel into the given state.
func (a *App) SetPanel(name models.PanelName, state models.PanelState, message string) {
	a.mutate(func() []Event {
		return a.setPanelLocked(name, state, message)
	})
}

// ClearLoading returns every named panel still showing a loading placeholder
// to Empty. Panels that already hold a result are left alone.
func (a *App) ClearLoading(names ...models.PanelName) {
	a.mutate(func() []Event {
		var events []Event
		for _, name := range names {
			panel, ok := a.panels[name]
			if !ok || panel.State != models.PanelLoading {
				continue
			}
			next := models.PanelEmpty
			if name == models.PanelAnalysis && a.analysis != nil {
				next = models.PanelReady
			}
			if name == models.PanelScoring && a.scoring != nil && !a.scoring.Table.Empty() {
				next = models.PanelReady
			}
			events = append(events, a.setPanelLocked(name, next, "")...)
		}
		return events
	})
}

func (a *App) Panel(name models.PanelName) models.Panel {
	a.mu.Lock()
	defer a.mu.Unlock()
	if panel, ok := a.panels[name]; ok {
		return *panel
	}
	return models.Panel{Name: name, State: models.PanelEmpty}
}

func (a *App) setPanelLocked(name models.PanelName, state models.PanelState, message string) []Event {
	panel, ok := a.panels[name]
	if !ok {
		panel = &models.Panel{Name: name}
		a.panels[name] = panel
	}
	if panel.State == state && panel.Message == message {
		return nil
	}
	panel.State = state
	panel.Message = message
	copied := *panel
	return []Event{{Kind: EventPanel, Panel: &copied}}
}

// Snapshot returns a deep copy of the presentation state. When drain is set
// the returned notifications are removed from the feed.
func (a *App) Snapshot(drain bool) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := Snapshot{
		APIConfigured: a.apiConfigured,
		DocParsed:     a.docText != "",
		ScoreItems:    len(a.scoreItems),
	}

	for _, name := range models.AllSlots() {
		snap.Slots = append(snap.Slots, a.slots[name].copySlot())
	}
	for _, name := range controlOrder {
		snap.Controls = append(snap.Controls, a.controls[name].control)
	}
	for _, name := range []models.PanelName{models.PanelScoring, models.PanelAnalysis, models.PanelVerification, models.PanelDiagnosis} {
		snap.Panels = append(snap.Panels, *a.panels[name])
	}
	for _, name := range models.AllPipelines() {
		snap.Pipelines = append(snap.Pipelines, a.pipelines[name].Status())
	}

	if drain {
		snap.Notifications = a.feed.drain()
	} else {
		snap.Notifications = a.feed.recent()
	}

	if a.scoring != nil {
		table := a.scoring.Table
		snap.Scoring = &table
	}
	if a.analysis != nil {
		view := a.analysis.View
		snap.Analysis = &view
	}
	if a.verification != nil {
		view := *a.verification
		snap.Verification = &view
	}
	if a.diagnosis != nil {
		view := a.diagnosis.View
		snap.Diagnosis = &view
	}

	return snap
}
