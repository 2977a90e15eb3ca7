package models

import (
	"fmt"
	"strings"
	"time"
)

type PipelineName string

const (
	PipelineVerify          PipelineName = "verify"
	PipelineScoring         PipelineName = "scoring"
	PipelineDiagnosis       PipelineName = "diagnosis"
	PipelineExportScoring   PipelineName = "export_scoring"
	PipelineExportDiagnosis PipelineName = "export_diagnosis"
	PipelineExportPDF       PipelineName = "export_pdf"
	PipelineExportEvidence  PipelineName = "export_evidence"
	PipelineSubmitScore     PipelineName = "submit_score"
)

func AllPipelines() []PipelineName {
	return []PipelineName{
		PipelineVerify,
		PipelineScoring,
		PipelineDiagnosis,
		PipelineExportScoring,
		PipelineExportDiagnosis,
		PipelineExportPDF,
		PipelineExportEvidence,
		PipelineSubmitScore,
	}
}

// ParsePipelineName returns the pipeline constant matching raw.
func ParsePipelineName(raw string) (PipelineName, error) {
	for _, name := range AllPipelines() {
		if strings.EqualFold(raw, string(name)) {
			return name, nil
		}
	}
	return "", fmt.Errorf("unknown pipeline: %q", raw)
}

type PipelineState string

const (
	PipelineIdle    PipelineState = "idle"
	PipelineRunning PipelineState = "running"
	PipelineFailed  PipelineState = "failed"
)

type PipelineStatus struct {
	Name       PipelineName  `json:"name"`
	State      PipelineState `json:"state"`
	Error      string        `json:"error,omitempty"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

// Busy is true while the pipeline holds its re-entrancy guard.
func (s PipelineStatus) Busy() bool {
	return s.State == PipelineRunning
}
