package models

import "time"

type ControlName string

const (
	ControlVerify          ControlName = "verify"
	ControlScoring         ControlName = "scoring"
	ControlDiagnosis       ControlName = "diagnosis"
	ControlExportScoring   ControlName = "export_scoring"
	ControlExportDiagnosis ControlName = "export_diagnosis"
	ControlExportPDF       ControlName = "export_pdf"
)

// Control is the presentation state of a trigger button.
type Control struct {
	Name    ControlName `json:"name"`
	Enabled bool        `json:"enabled"`
	Busy    bool        `json:"busy"`
	Label   string      `json:"label"`
}

type PanelName string

const (
	PanelScoring      PanelName = "scoring"
	PanelAnalysis     PanelName = "analysis"
	PanelVerification PanelName = "verification"
	PanelDiagnosis    PanelName = "diagnosis"
)

type PanelState string

const (
	PanelEmpty   PanelState = "empty"
	PanelLoading PanelState = "loading"
	PanelReady   PanelState = "ready"
)

type Panel struct {
	Name    PanelName  `json:"name"`
	State   PanelState `json:"state"`
	Message string     `json:"message,omitempty"`
}

type NotificationLevel string

const (
	LevelSuccess NotificationLevel = "success"
	LevelInfo    NotificationLevel = "info"
	LevelWarning NotificationLevel = "warning"
	LevelDanger  NotificationLevel = "danger"
)

type Notification struct {
	ID        uint64            `json:"id"`
	Level     NotificationLevel `json:"level"`
	Message   string            `json:"message"`
	CreatedAt time.Time         `json:"created_at"`
}

// Cell is one rendered table cell. Style carries a presentation hint.
type Cell struct {
	Text  string `json:"text"`
	Style string `json:"style,omitempty"`
}

type ScoringTable struct {
	Columns []string `json:"columns"`
	Rows    [][]Cell `json:"rows"`
}

func (t ScoringTable) Empty() bool {
	return len(t.Rows) == 0
}

type AnalysisView struct {
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	Fallback     bool     `json:"fallback,omitempty"`
}

type VerificationView struct {
	Consistent   bool     `json:"consistent"`
	MissingItems []string `json:"missing_items,omitempty"`
	Suggestions  string   `json:"suggestions"`
}

type ChartSeries struct {
	Label  string    `json:"label"`
	Values []float64 `json:"values"`
}

// RadarChart is what the chart widget receives; values are within [0,5].
type RadarChart struct {
	Kind   string        `json:"kind"`
	Labels []string      `json:"labels"`
	Series []ChartSeries `json:"series"`
	Max    float64       `json:"max"`
}

type ScoreDetail struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value string `json:"value"`
}

type DiagnosisView struct {
	Info               EmployeeInfo  `json:"info"`
	Chart              RadarChart    `json:"chart"`
	ScoreDetails       []ScoreDetail `json:"score_details"`
	Strengths          []string      `json:"strengths,omitempty"`
	Weaknesses         []string      `json:"weaknesses,omitempty"`
	GrowthSuggestions  []string      `json:"growth_suggestions,omitempty"`
	ManagerSuggestions []string      `json:"manager_suggestions,omitempty"`
	ShowAnalysis       bool          `json:"show_analysis"`
	ShowSuggestions    bool          `json:"show_suggestions"`
}
