package services

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"alfredoptarigan/report-console/internal/models"
)

// ConsoleWriter prints view models for a terminal.
type ConsoleWriter struct {
	out io.Writer
}

func NewConsoleWriter(out io.Writer) *ConsoleWriter {
	return &ConsoleWriter{out: out}
}

var levelColors = map[models.NotificationLevel]*color.Color{
	models.LevelSuccess: color.New(color.FgGreen),
	models.LevelInfo:    color.New(color.FgCyan),
	models.LevelWarning: color.New(color.FgYellow),
	models.LevelDanger:  color.New(color.FgRed, color.Bold),
}

func (w *ConsoleWriter) Notification(n models.Notification) {
	c, ok := levelColors[n.Level]
	if !ok {
		c = color.New(color.Reset)
	}
	fmt.Fprintf(w.out, "%s %s\n", c.Sprintf("[%s]", n.Level), n.Message)
}

func (w *ConsoleWriter) Slots(slots []models.UploadSlot) {
	table := w.table([]string{"slot", "status", "file", "reference"})
	for _, slot := range slots {
		status := string(slot.Status)
		switch slot.Status {
		case models.SlotReady:
			status = color.GreenString(status)
		case models.SlotError:
			status = color.RedString(status)
		case models.SlotUploading:
			status = color.YellowString(status)
		}
		table.Append([]string{string(slot.Name), status, slot.DisplayName, slot.Reference})
	}
	table.Render()
}

func (w *ConsoleWriter) Controls(controls []models.Control) {
	table := w.table([]string{"control", "enabled", "label"})
	for _, control := range controls {
		enabled := color.RedString("no")
		if control.Enabled {
			enabled = color.GreenString("yes")
		}
		table.Append([]string{string(control.Name), enabled, control.Label})
	}
	table.Render()
}

func (w *ConsoleWriter) ScoringTable(t models.ScoringTable) {
	if t.Empty() {
		fmt.Fprintln(w.out, color.HiBlackString("暂无评分结果"))
		return
	}
	table := w.table(t.Columns)
	for _, row := range t.Rows {
		cells := make([]string, 0, len(row))
		for _, cell := range row {
			cells = append(cells, styled(cell))
		}
		table.Append(cells)
	}
	table.Render()
}

func styled(cell models.Cell) string {
	switch cell.Style {
	case "bold":
		return color.New(color.Bold).Sprint(cell.Text)
	case "badge-success", "possessed":
		return color.GreenString(cell.Text)
	case "badge-warning":
		return color.YellowString(cell.Text)
	case "badge-danger":
		return color.RedString(cell.Text)
	case "badge-primary":
		return color.BlueString(cell.Text)
	}
	return cell.Text
}

func (w *ConsoleWriter) Analysis(v models.AnalysisView) {
	w.list("核心优势", "+", v.Strengths)
	w.list("待发展领域", "↑", v.Improvements)
	if v.Fallback {
		fmt.Fprintln(w.out, color.HiBlackString("(分析服务不可用，显示默认内容)"))
	}
}

func (w *ConsoleWriter) Verification(v models.VerificationView) {
	if v.Consistent {
		fmt.Fprintln(w.out, color.GreenString("恭喜！未检测到内容不一致"))
		return
	}
	fmt.Fprintf(w.out, "共检测到 %s 可能的不一致\n", color.New(color.Bold).Sprintf("%d处", len(v.MissingItems)))
	w.list("与评价表对比缺失项", "-", v.MissingItems)
	w.list("修改参考", "*", []string{v.Suggestions})
}

func (w *ConsoleWriter) Diagnosis(v models.DiagnosisView) {
	fmt.Fprintf(w.out, "姓名：%s  职位：%s  评估周期：%s\n", v.Info.Name, v.Info.Position, v.Info.Quarter)

	table := w.table([]string{"能力", "得分", "图表"})
	var values []float64
	if len(v.Chart.Series) > 0 {
		values = v.Chart.Series[0].Values
	}
	for i, detail := range v.ScoreDetails {
		bar := ""
		if i < len(values) {
			bar = strings.Repeat("█", int(values[i]*4)) + " " + strconv.FormatFloat(values[i], 'f', 1, 64)
		}
		table.Append([]string{detail.Label, detail.Value, bar})
	}
	table.Render()

	if v.ShowAnalysis {
		w.list("核心优势", "✓", v.Strengths)
		w.list("待发展领域", "↑", v.Weaknesses)
	}
	if v.ShowSuggestions {
		w.numbered("个人成长建议", v.GrowthSuggestions)
		w.numbered("管理者建议", v.ManagerSuggestions)
	}
}

func (w *ConsoleWriter) table(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w.out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	return table
}

func (w *ConsoleWriter) list(title, bullet string, items []string) {
	fmt.Fprintln(w.out, color.New(color.Bold).Sprint(title))
	for _, item := range items {
		fmt.Fprintf(w.out, "  %s %s\n", bullet, item)
	}
}

func (w *ConsoleWriter) numbered(title string, items []string) {
	fmt.Fprintln(w.out, color.New(color.Bold).Sprint(title))
	for i, item := range items {
		fmt.Fprintf(w.out, "  %d. %s\n", i+1, item)
	}
}
