package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"alfredoptarigan/report-console/internal/models"
)

type ExportKind string

const (
	ExportScoring   ExportKind = "scoring"
	ExportDiagnosis ExportKind = "diagnosis"
	ExportPDF       ExportKind = "pdf"
	ExportEvidence  ExportKind = "evidence"
)

func ParseExportKind(raw string) (ExportKind, error) {
	for _, kind := range []ExportKind{ExportScoring, ExportDiagnosis, ExportPDF, ExportEvidence} {
		if strings.EqualFold(raw, string(kind)) {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown export kind: %q", raw)
}

func (k ExportKind) Endpoint() string {
	switch k {
	case ExportScoring:
		return EndpointExportScoring
	case ExportDiagnosis:
		return EndpointExportDiagnosis
	case ExportPDF:
		return EndpointExportPDF
	case ExportEvidence:
		return EndpointExportEvidence
	}
	return ""
}

const (
	defaultScoringStem   = "能力评分结果"
	defaultReportStem    = "能力诊断报告"
	defaultDiagnosisName = "员工"
	defaultDiagnosisTerm = "未知周期"
	defaultEvidenceName  = "未知员工"
	defaultEvidenceTerm  = "未知季度"
)

// ExportStem joins the report and standard display names with "+", falling
// back to whichever exists, then to fallback.
func ExportStem(reportName, standardName, fallback string) string {
	switch {
	case reportName != "" && standardName != "":
		return reportName + "+" + standardName
	case reportName != "":
		return reportName
	case standardName != "":
		return standardName
	}
	return fallback
}

func ScoringFileName(reportName, standardName string) string {
	return ExportStem(reportName, standardName, defaultScoringStem) + ".xlsx"
}

func ReportFileName(reportName, standardName string) string {
	return ExportStem(reportName, standardName, defaultReportStem) + ".pdf"
}

func DiagnosisFileName(employee, quarter string) string {
	return fmt.Sprintf("%s_诊断报告_%s.pdf", orDefault(employee, defaultDiagnosisName), orDefault(quarter, defaultDiagnosisTerm))
}

func EvidenceFileName(employee, quarter string) string {
	return fmt.Sprintf("%s_评估依据_%s.pdf", orDefault(employee, defaultEvidenceName), orDefault(quarter, defaultEvidenceTerm))
}

var employeeNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^([a-zA-Z\x{4e00}-\x{9fa5}]{1,10})\+`),
	regexp.MustCompile(`^([a-zA-Z\x{4e00}-\x{9fa5}]{1,10})-`),
	regexp.MustCompile(`^([a-zA-Z\x{4e00}-\x{9fa5}]{1,10})述职`),
	regexp.MustCompile(`^([a-zA-Z\x{4e00}-\x{9fa5}]{1,10})报告`),
	regexp.MustCompile(`^([a-zA-Z\x{4e00}-\x{9fa5}]{2,4})$`),
	regexp.MustCompile(`[-_]([a-zA-Z\x{4e00}-\x{9fa5}]{2,4})$`),
}

var notEmployeeNames = map[string]bool{
	"述职": true, "报告": true, "材料": true, "能力": true, "认定": true, "打分": true,
	"参考": true, "文档": true, "资料": true, "PPT": true, "PDF": true, "WORD": true, "DOC": true,
}

// EmployeeNameFromFileName extracts an employee name from a report file
// stem such as "方糖+【材料】" or "方糖-述职报告". It returns "" when no
// pattern yields a plausible name.
func EmployeeNameFromFileName(stem string) string {
	for _, pattern := range employeeNamePatterns {
		match := pattern.FindStringSubmatch(stem)
		if match == nil {
			continue
		}
		name := strings.TrimSpace(match[1])
		if !notEmployeeNames[name] {
			return name
		}
	}
	return ""
}

// ResolveEmployeeName picks the first non-empty name from the report file
// name, the diagnosis and the first scoring row.
func ResolveEmployeeName(reportName string, diagnosis *models.DiagnosisResult, rows []*models.ScoringRow) string {
	if name := EmployeeNameFromFileName(reportName); name != "" {
		return name
	}
	if diagnosis != nil {
		if name := diagnosis.EmployeeName(); name != "" {
			return name
		}
	}
	if len(rows) > 0 && rows[0] != nil {
		for _, key := range []string{"员工姓名", "姓名"} {
			if value, ok := rows[0].Get(key); ok {
				if name := truthyText(value); name != "" {
					return name
				}
			}
		}
	}
	return ""
}

// Downloader delivers an exported artifact to the user.
type Downloader interface {
	Deliver(ctx context.Context, fileName string, artifact *Artifact) (string, error)
}

type fileDownloader struct {
	dir    string
	logger *zap.Logger
}

// NewFileDownloader writes artifacts into dir. Each write goes through a
// temporary file that is always removed.
func NewFileDownloader(dir string, logger *zap.Logger) Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &fileDownloader{dir: dir, logger: logger}
}

func (d *fileDownloader) Deliver(ctx context.Context, fileName string, artifact *Artifact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	tmp, err := os.CreateTemp(d.dir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(artifact.Data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write download: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close download: %w", err)
	}

	target := filepath.Join(d.dir, sanitizeFileName(fileName))
	if err := os.Rename(tmpPath, target); err != nil {
		return "", fmt.Errorf("failed to move download into place: %w", err)
	}

	d.logger.Info("artifact downloaded", zap.String("path", target), zap.Int("bytes", len(artifact.Data)))
	return target, nil
}

// MemoryDownloader keeps the last delivered artifact; the console API uses
// it to stream the export back to the browser.
type MemoryDownloader struct {
	FileName string
	Artifact *Artifact
}

func (d *MemoryDownloader) Deliver(ctx context.Context, fileName string, artifact *Artifact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.FileName = fileName
	d.Artifact = artifact
	return fileName, nil
}

var unsafeFileChars = strings.NewReplacer("/", "_", "\\", "_", "\x00", "")

func sanitizeFileName(name string) string {
	name = unsafeFileChars.Replace(strings.TrimSpace(name))
	if name == "" || name == "." || name == ".." {
		return "download"
	}
	return name
}
