package models

import (
	"bytes"
	"encoding/json"
	"strconv"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Fixed scoring table columns, in display order.
const (
	ColumnDimension    = "能力维度"
	ColumnItem         = "具体能力项"
	ColumnDefinition   = "核心定义"
	ColumnPossessed    = "是否具备（√）"
	ColumnDescription  = "能力描述"
	ColumnProficiency  = "擅长程度"
	ColumnAbilityValue = "能力值（1-10分）"
)

func ScoringColumns() []string {
	return []string{
		ColumnDimension,
		ColumnItem,
		ColumnDefinition,
		ColumnPossessed,
		ColumnDescription,
		ColumnProficiency,
		ColumnAbilityValue,
	}
}

// ScoringRow keeps the backend's key order; field-name fallbacks depend on it.
type ScoringRow = orderedmap.OrderedMap[string, any]

func NewScoringRow() *ScoringRow {
	return orderedmap.New[string, any]()
}

// Dimension is one of the six fixed competency axes.
type Dimension struct {
	Key         string
	Label       string
	DetailLabel string
}

func Dimensions() []Dimension {
	return []Dimension{
		{Key: "technical_innovation", Label: "技术创新", DetailLabel: "技术创新能力"},
		{Key: "business_impact", Label: "业务影响力", DetailLabel: "业务影响力"},
		{Key: "teamwork", Label: "团队协作", DetailLabel: "团队协作能力"},
		{Key: "project_management", Label: "项目管理", DetailLabel: "项目管理能力"},
		{Key: "cost_awareness", Label: "成本意识", DetailLabel: "成本意识"},
		{Key: "strategic_thinking", Label: "战略思维", DetailLabel: "战略思维"},
	}
}

type ItemKind int

const (
	ItemPlain ItemKind = iota
	ItemDetailed
	ItemOther
)

// Item is a strength, weakness or suggestion entry. The backend sends either
// a plain string or an object carrying point/description and reason.
type Item struct {
	Kind        ItemKind
	Text        string
	Point       string
	Description string
	Reason      string
	raw         json.RawMessage
}

func PlainItem(text string) Item {
	return Item{Kind: ItemPlain, Text: text}
}

func DetailedItem(point, reason string) Item {
	return Item{Kind: ItemDetailed, Point: point, Reason: reason}
}

// Display normalizes the item to a single line of text.
func (i Item) Display() string {
	switch i.Kind {
	case ItemPlain:
		return i.Text
	case ItemDetailed:
		switch {
		case i.Point != "" && i.Reason != "":
			return i.Point + "（" + i.Reason + "）"
		case i.Description != "" && i.Reason != "":
			return i.Description + "（" + i.Reason + "）"
		case i.Point != "":
			return i.Point
		case i.Description != "":
			return i.Description
		}
	}
	if len(i.raw) == 0 || bytes.Equal(i.raw, []byte("null")) {
		return ""
	}
	return string(i.raw)
}

func (i *Item) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	*i = Item{raw: append(json.RawMessage(nil), trimmed...)}

	if len(trimmed) > 0 && trimmed[0] == '"' {
		i.Kind = ItemPlain
		return json.Unmarshal(trimmed, &i.Text)
	}

	if len(trimmed) > 0 && trimmed[0] == '{' {
		var fields map[string]any
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return err
		}
		i.Kind = ItemDetailed
		i.Point = scalarText(fields["point"])
		i.Description = scalarText(fields["description"])
		i.Reason = scalarText(fields["reason"])
		return nil
	}

	i.Kind = ItemOther
	return nil
}

func (i Item) MarshalJSON() ([]byte, error) {
	switch i.Kind {
	case ItemPlain:
		return json.Marshal(i.Text)
	case ItemDetailed:
		if len(i.raw) > 0 {
			return i.raw, nil
		}
		fields := map[string]string{}
		if i.Point != "" {
			fields["point"] = i.Point
		}
		if i.Description != "" {
			fields["description"] = i.Description
		}
		if i.Reason != "" {
			fields["reason"] = i.Reason
		}
		return json.Marshal(fields)
	}
	if len(i.raw) == 0 {
		return []byte("null"), nil
	}
	return i.raw, nil
}

func scalarText(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		if value == 0 {
			return ""
		}
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		if value {
			return "true"
		}
	}
	return ""
}

// ItemList accepts either an array or a single truthy value.
type ItemList []Item

func (l *ItemList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*l = nil
		return nil
	}

	if trimmed[0] == '[' {
		var items []Item
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}

	switch string(trimmed) {
	case `""`, "false", "0":
		*l = nil
		return nil
	}

	var single Item
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return err
	}
	*l = ItemList{single}
	return nil
}

func (l ItemList) Strings() []string {
	out := make([]string, 0, len(l))
	for _, item := range l {
		out = append(out, item.Display())
	}
	return out
}

func PlainItems(texts ...string) ItemList {
	items := make(ItemList, 0, len(texts))
	for _, text := range texts {
		items = append(items, PlainItem(text))
	}
	return items
}

type AnalysisResult struct {
	Strengths    ItemList `json:"strengths"`
	Improvements ItemList `json:"improvements"`
}

const AnalysisTypeAbilityReport = "能力述职"

// DefaultAnalysis is shown whenever the analysis step fails.
func DefaultAnalysis() AnalysisResult {
	return AnalysisResult{
		Strengths:    PlainItems("技术创新能力突出", "团队协作表现优秀", "项目执行力强"),
		Improvements: PlainItems("业务影响力需提升", "战略思维有待加强", "跨部门协作需改善"),
	}
}

type EmployeeInfo struct {
	Name     string `json:"name"`
	Position string `json:"position"`
	Quarter  string `json:"quarter"`
}

// Abilities maps dimension keys to raw scores; values may be numbers or
// numeric strings.
type Abilities map[string]any

type DiagnosisResult struct {
	EmployeeInfo       *EmployeeInfo `json:"employee_info,omitempty"`
	Abilities          Abilities     `json:"abilities,omitempty"`
	Strengths          ItemList      `json:"strengths"`
	Weaknesses         ItemList      `json:"weaknesses"`
	GrowthSuggestions  ItemList      `json:"growth_suggestions"`
	ManagerSuggestions ItemList      `json:"manager_suggestions"`
}

func (d DiagnosisResult) EmployeeName() string {
	if d.EmployeeInfo == nil {
		return ""
	}
	return d.EmployeeInfo.Name
}

// ScoringSuggestion is the judge-facing suggestion payload.
type ScoringSuggestion struct {
	EmployeeName       string            `json:"employee_name"`
	Position           string            `json:"position"`
	Quarter            string            `json:"quarter"`
	Abilities          Abilities         `json:"abilities,omitempty"`
	ScoringSuggestions []SuggestionEntry `json:"scoring_suggestions"`
	Strengths          ItemList          `json:"strengths,omitempty"`
	DevelopmentAreas   ItemList          `json:"development_areas,omitempty"`
}

type SuggestionEntry struct {
	Ability    string  `json:"ability"`
	Percentage float64 `json:"percentage,omitempty"`
	ScoreRange string  `json:"score_range"`
	Evidence   string  `json:"evidence"`
	Quote      string  `json:"quote"`
}
