package services

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"alfredoptarigan/report-console/internal/models"
)

const (
	defaultNoStrengths    = "暂无优势分析"
	defaultNoImprovements = "暂无改进建议"
	defaultSuggestions    = "暂无修改参考"
	unknownField          = "未知"
	radarSeriesLabel      = "当前能力"
	radarMax              = 5.0
)

// ResultRenderer projects backend results into view models.
type ResultRenderer interface {
	ScoringTable(rows []*models.ScoringRow) models.ScoringTable
	Analysis(result *models.AnalysisResult, fallback bool) models.AnalysisView
	Verification(resp *models.VerifyResponse) models.VerificationView
	Diagnosis(result models.DiagnosisResult, includeAnalysis, includeSuggestions bool) models.DiagnosisView
}

type resultRenderer struct{}

func NewResultRenderer() ResultRenderer {
	return &resultRenderer{}
}

// ScoringTable renders rows against the fixed column order regardless of the
// order the backend reported.
func (r *resultRenderer) ScoringTable(rows []*models.ScoringRow) models.ScoringTable {
	table := models.ScoringTable{Columns: models.ScoringColumns()}
	for _, row := range rows {
		if row == nil {
			row = models.NewScoringRow()
		}
		cells := make([]models.Cell, 0, len(table.Columns))
		for _, column := range table.Columns {
			var text string
			if column == models.ColumnAbilityValue {
				text = AbilityValueText(row)
			} else {
				value, _ := row.Get(column)
				text = truthyText(value)
			}
			cells = append(cells, models.Cell{Text: text, Style: cellStyle(column, text)})
		}
		table.Rows = append(table.Rows, cells)
	}
	return table
}

// AbilityValueText resolves the 1-10 ability value of a row. A literal 0
// is a value; only a missing or null field falls back.
func AbilityValueText(row *models.ScoringRow) string {
	if value, ok := row.Get(models.ColumnAbilityValue); ok && value != nil {
		return valueText(value)
	}

	var fuzzyKeys []string
	for pair := row.Oldest(); pair != nil; pair = pair.Next() {
		if strings.Contains(pair.Key, "能力值") && strings.Contains(pair.Key, "分") {
			fuzzyKeys = append(fuzzyKeys, pair.Key)
		}
	}
	if len(fuzzyKeys) > 0 {
		if value, _ := row.Get(fuzzyKeys[0]); value != nil {
			return valueText(value)
		}
		return "0"
	}

	for pair := row.Oldest(); pair != nil; pair = pair.Next() {
		if number, ok := pair.Value.(float64); ok && number >= 1 && number <= 10 {
			return valueText(number)
		}
	}
	return "0"
}

func valueText(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return string(encoded)
}

// truthyText mirrors the "value or empty" rule used by every non-numeric
// column: zero, false and empty render blank.
func truthyText(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == 0 || math.IsNaN(v) {
			return ""
		}
	case bool:
		if !v {
			return ""
		}
	}
	return valueText(value)
}

func cellStyle(column, text string) string {
	switch column {
	case models.ColumnAbilityValue:
		return "badge-primary"
	case models.ColumnPossessed:
		return "possessed"
	case models.ColumnDimension:
		return "bold"
	case models.ColumnProficiency:
		switch text {
		case "高":
			return "badge-success"
		case "中":
			return "badge-warning"
		case "低":
			return "badge-danger"
		}
		return "badge-secondary"
	}
	return ""
}

func (r *resultRenderer) Analysis(result *models.AnalysisResult, fallback bool) models.AnalysisView {
	if result == nil {
		defaults := models.DefaultAnalysis()
		result = &defaults
		fallback = true
	}
	view := models.AnalysisView{
		Strengths:    result.Strengths.Strings(),
		Improvements: result.Improvements.Strings(),
		Fallback:     fallback,
	}
	if result.Strengths == nil {
		view.Strengths = []string{defaultNoStrengths}
	}
	if result.Improvements == nil {
		view.Improvements = []string{defaultNoImprovements}
	}
	return view
}

func (r *resultRenderer) Verification(resp *models.VerifyResponse) models.VerificationView {
	if resp == nil || len(resp.MissingItems) == 0 {
		return models.VerificationView{Consistent: true}
	}
	suggestions := defaultSuggestions
	if resp.Suggestions != nil {
		if text := resp.Suggestions.Display(); text != "" {
			suggestions = text
		}
	}
	return models.VerificationView{
		Consistent:   false,
		MissingItems: append([]string(nil), resp.MissingItems...),
		Suggestions:  suggestions,
	}
}

func (r *resultRenderer) Diagnosis(result models.DiagnosisResult, includeAnalysis, includeSuggestions bool) models.DiagnosisView {
	info := models.EmployeeInfo{Name: unknownField, Position: unknownField, Quarter: unknownField}
	if result.EmployeeInfo != nil {
		info.Name = orDefault(result.EmployeeInfo.Name, unknownField)
		info.Position = orDefault(result.EmployeeInfo.Position, unknownField)
		info.Quarter = orDefault(result.EmployeeInfo.Quarter, unknownField)
	}

	view := models.DiagnosisView{
		Info:            info,
		Chart:           RadarChart(result.Abilities),
		ShowAnalysis:    includeAnalysis,
		ShowSuggestions: includeSuggestions,
	}

	for _, dimension := range models.Dimensions() {
		raw := truthyText(result.Abilities[dimension.Key])
		if raw == "" {
			raw = "0"
		}
		view.ScoreDetails = append(view.ScoreDetails, models.ScoreDetail{
			Key:   dimension.Key,
			Label: dimension.DetailLabel,
			Value: raw + "/5",
		})
	}

	if includeAnalysis {
		view.Strengths = result.Strengths.Strings()
		view.Weaknesses = result.Weaknesses.Strings()
	}
	if includeSuggestions {
		view.GrowthSuggestions = result.GrowthSuggestions.Strings()
		view.ManagerSuggestions = result.ManagerSuggestions.Strings()
	}
	return view
}

// RadarChart builds the six-axis chart with every score clamped into [0,5].
func RadarChart(abilities models.Abilities) models.RadarChart {
	dimensions := models.Dimensions()
	chart := models.RadarChart{
		Kind:   "radar",
		Labels: make([]string, 0, len(dimensions)),
		Max:    radarMax,
	}
	values := make([]float64, 0, len(dimensions))
	for _, dimension := range dimensions {
		chart.Labels = append(chart.Labels, dimension.Label)
		values = append(values, ClampScore(abilities[dimension.Key]))
	}
	chart.Series = []models.ChartSeries{{Label: radarSeriesLabel, Values: values}}
	return chart
}

var leadingNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// ClampScore parses numbers and numeric strings and clamps them into [0,5].
// Anything else is 0.
func ClampScore(value any) float64 {
	var score float64
	switch v := value.(type) {
	case float64:
		score = v
	case int:
		score = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0
		}
		score = parsed
	case string:
		match := leadingNumber.FindString(strings.TrimSpace(v))
		if match == "" {
			return 0
		}
		parsed, err := strconv.ParseFloat(match, 64)
		if err != nil {
			return 0
		}
		score = parsed
	default:
		return 0
	}
	if math.IsNaN(score) {
		return 0
	}
	return math.Max(0, math.Min(radarMax, score))
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
