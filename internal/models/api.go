package models

import "encoding/json"

// Backend wire shapes. Field names are the contract with the report backend.

type ConfigStatusResponse struct {
	Success    bool   `json:"success"`
	Configured bool   `json:"configured"`
	CurrentKey string `json:"current_key,omitempty"`
	Error      string `json:"error,omitempty"`
}

type APIKeyRequest struct {
	APIKey string `json:"api_key"`
}

type KeyValidation struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

type ValidateKeyResponse struct {
	Success    bool           `json:"success"`
	Validation *KeyValidation `json:"validation,omitempty"`
	Error      string         `json:"error,omitempty"`
}

type SuccessResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type UploadResponse struct {
	FilePath string `json:"file_path,omitempty"`
	Error    string `json:"error,omitempty"`
}

type ParseDocumentRequest struct {
	DocPath string `json:"doc_path"`
}

type ParseDocumentResponse struct {
	Success *bool  `json:"success,omitempty"`
	DocText string `json:"doc_text"`
	Error   string `json:"error,omitempty"`
}

type ParseScoreRequest struct {
	ScorePath string `json:"score_path"`
}

type ParseScoreResponse struct {
	Success    *bool             `json:"success,omitempty"`
	ScoreItems []json.RawMessage `json:"score_items"`
	Error      string            `json:"error,omitempty"`
}

type VerifyRequest struct {
	DocText    string            `json:"doc_text"`
	ScoreItems []json.RawMessage `json:"score_items"`
}

type VerifyResponse struct {
	Success      *bool    `json:"success,omitempty"`
	MissingItems []string `json:"missing_items"`
	Suggestions  *Item    `json:"suggestions,omitempty"`
	Error        string   `json:"error,omitempty"`
}

type ScoringResponse struct {
	Success        bool          `json:"success"`
	ScoringResults []*ScoringRow `json:"scoring_results"`
	ColumnOrder    []string      `json:"column_order"`
	Error          string        `json:"error,omitempty"`
}

type AnalysisRequest struct {
	ReportFilePath string `json:"report_file_path"`
	AnalysisType   string `json:"analysis_type"`
}

type AnalysisResponse struct {
	Success        bool            `json:"success"`
	AnalysisResult *AnalysisResult `json:"analysis_result,omitempty"`
	Error          string          `json:"error,omitempty"`
}

type DiagnosisRequest struct {
	EmployeeName            string `json:"employee_name"`
	AbilityModel            string `json:"ability_model"`
	Quarter                 string `json:"quarter"`
	DocPath                 string `json:"doc_path"`
	IncludeEmployeeAnalysis bool   `json:"include_employee_analysis"`
	IncludeGrowthSuggestion bool   `json:"include_growth_suggestions"`
	JudgeScorePath          string `json:"judge_score_path"`
	PDFAnalysisPath         string `json:"pdf_analysis_path"`
	AudioAnalysisPath       string `json:"audio_analysis_path"`
}

type DiagnosisResponse struct {
	Success       bool            `json:"success"`
	Diagnosis     json.RawMessage `json:"diagnosis,omitempty"`
	ExtractedInfo *EmployeeInfo   `json:"extracted_info,omitempty"`
	Note          string          `json:"note,omitempty"`
	Error         string          `json:"error,omitempty"`
}

type SubmitScoreRequest struct {
	EmployeeName string             `json:"employee_name"`
	Position     string             `json:"position"`
	Quarter      string             `json:"quarter"`
	Scores       map[string]float64 `json:"scores"`
}

type ExportScoringRequest struct {
	ScoringResults []*ScoringRow `json:"scoring_results"`
	ColumnOrder    []string      `json:"column_order"`
}

type ExportDiagnosisRequest struct {
	Diagnosis json.RawMessage `json:"diagnosis"`
}

type AnalysisData struct {
	CoreStrengths       string `json:"core_strengths"`
	AreasForDevelopment string `json:"areas_for_development"`
}

type ExportPDFRequest struct {
	AnalysisData   *AnalysisData `json:"analysis_data"`
	ScoringResults []*ScoringRow `json:"scoring_results"`
	FileName       string        `json:"file_name"`
	EmployeeName   string        `json:"employee_name"`
}

type EvidenceEntry struct {
	Ability  string `json:"ability"`
	Evidence string `json:"evidence"`
	Quote    string `json:"quote"`
}

type ExportEvidenceRequest struct {
	EmployeeName string          `json:"employee_name"`
	Position     string          `json:"position"`
	Quarter      string          `json:"quarter"`
	Suggestions  []EvidenceEntry `json:"suggestions"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
