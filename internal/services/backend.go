package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"alfredoptarigan/report-console/internal/models"
)

// Backend endpoints, relative to the configured base URL.
const (
	EndpointConfigStatus     = "/api/config/status"
	EndpointConfigValidate   = "/api/config/validate"
	EndpointConfigSet        = "/api/config/set"
	EndpointUpload           = "/api/upload"
	EndpointParseDocument    = "/api/parse_document"
	EndpointParseScore       = "/api/parse_score"
	EndpointVerify           = "/api/verify"
	EndpointGenerateScoring  = "/api/generate_ability_scoring"
	EndpointGenerateAnalysis = "/api/generate_report_analysis"
	EndpointGenerateDiagnose = "/api/generate_diagnosis"
	EndpointSubmitScore      = "/api/submit_score"
	EndpointExportScoring    = "/api/export_scoring_excel"
	EndpointExportDiagnosis  = "/api/export_diagnosis_report"
	EndpointExportPDF        = "/api/export_pdf_report"
	EndpointExportEvidence   = "/api/export_scoring_evidence"
)

const defaultMaxResponseSize = 64 << 20

// ResponseTooLargeError reports that a backend body exceeded the limit.
type ResponseTooLargeError struct {
	Limit int64
}

func (e ResponseTooLargeError) Error() string {
	return fmt.Sprintf("response body exceeded limit of %d bytes", e.Limit)
}

// ReadAllWithLimit reads r up to limit bytes. A limit <= 0 reads everything.
func ReadAllWithLimit(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	lr := &io.LimitedReader{R: r, N: limit + 1}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ResponseTooLargeError{Limit: limit}
	}
	return data, nil
}

// Artifact is a server-rendered binary export.
type Artifact struct {
	Data        []byte
	ContentType string
}

// UploadClient sends a local file to the backend artifact store.
type UploadClient interface {
	Upload(ctx context.Context, file LocalFile) (string, error)
}

type BackendClient interface {
	UploadClient
	ConfigStatus(ctx context.Context) (*models.ConfigStatusResponse, error)
	ValidateKey(ctx context.Context, apiKey string) (*models.KeyValidation, error)
	SaveKey(ctx context.Context, apiKey string) error
	ParseDocument(ctx context.Context, docPath string) (string, error)
	ParseScore(ctx context.Context, scorePath string) ([]json.RawMessage, error)
	Verify(ctx context.Context, req models.VerifyRequest) (*models.VerifyResponse, error)
	GenerateScoring(ctx context.Context, reportPath, standardPath string) (*models.ScoringResponse, error)
	GenerateAnalysis(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error)
	GenerateDiagnosis(ctx context.Context, req models.DiagnosisRequest) (*models.DiagnosisResponse, error)
	SubmitScore(ctx context.Context, req models.SubmitScoreRequest) error
	Export(ctx context.Context, endpoint string, payload any) (*Artifact, error)
}

type BackendOptions struct {
	BaseURL         string
	Timeout         time.Duration
	MaxResponseSize int64
	HTTPClient      *http.Client
}

type backendClient struct {
	baseURL  string
	http     *http.Client
	maxBytes int64
	logger   *zap.Logger
}

func NewBackendClient(opts BackendOptions, logger *zap.Logger) BackendClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	maxBytes := opts.MaxResponseSize
	if maxBytes == 0 {
		maxBytes = defaultMaxResponseSize
	}
	return &backendClient{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		http:     client,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

func (c *backendClient) ConfigStatus(ctx context.Context) (*models.ConfigStatusResponse, error) {
	var resp models.ConfigStatusResponse
	if err := c.doJSON(ctx, http.MethodGet, EndpointConfigStatus, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, appError(EndpointConfigStatus, resp.Error, "API状态检查失败")
	}
	return &resp, nil
}

func (c *backendClient) ValidateKey(ctx context.Context, apiKey string) (*models.KeyValidation, error) {
	var resp models.ValidateKeyResponse
	if err := c.doJSON(ctx, http.MethodPost, EndpointConfigValidate, models.APIKeyRequest{APIKey: apiKey}, &resp); err != nil {
		return nil, err
	}
	if !resp.Success || resp.Validation == nil {
		return nil, appError(EndpointConfigValidate, resp.Error, "密钥验证失败")
	}
	return resp.Validation, nil
}

func (c *backendClient) SaveKey(ctx context.Context, apiKey string) error {
	var resp models.SuccessResponse
	if err := c.doJSON(ctx, http.MethodPost, EndpointConfigSet, models.APIKeyRequest{APIKey: apiKey}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return appError(EndpointConfigSet, resp.Error, "保存失败")
	}
	return nil
}

// Upload streams the file as the multipart field "file".
func (c *backendClient) Upload(ctx context.Context, file LocalFile) (string, error) {
	src, err := os.Open(file.Path)
	if err != nil {
		return "", &ValidationError{Message: fmt.Sprintf("failed to open %s: %v", file.Name, err)}
	}
	defer src.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		part, err := writer.CreateFormFile("file", file.Name)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, src); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(writer.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+EndpointUpload, pr)
	if err != nil {
		pr.Close()
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var resp models.UploadResponse
	if err := c.send(req, EndpointUpload, &resp); err != nil {
		pr.CloseWithError(err)
		return "", err
	}
	if resp.FilePath == "" {
		return "", appError(EndpointUpload, resp.Error, "未知错误")
	}

	c.logger.Debug("file uploaded", zap.String("file", file.Name), zap.String("file_path", resp.FilePath))
	return resp.FilePath, nil
}

func (c *backendClient) ParseDocument(ctx context.Context, docPath string) (string, error) {
	var resp models.ParseDocumentResponse
	if err := c.doJSON(ctx, http.MethodPost, EndpointParseDocument, models.ParseDocumentRequest{DocPath: docPath}, &resp); err != nil {
		return "", err
	}
	if resp.Success != nil && !*resp.Success {
		return "", appError(EndpointParseDocument, resp.Error, "未知错误")
	}
	return resp.DocText, nil
}

func (c *backendClient) ParseScore(ctx context.Context, scorePath string) ([]json.RawMessage, error) {
	var resp models.ParseScoreResponse
	if err := c.doJSON(ctx, http.MethodPost, EndpointParseScore, models.ParseScoreRequest{ScorePath: scorePath}, &resp); err != nil {
		return nil, err
	}
	if resp.Success != nil && !*resp.Success {
		return nil, appError(EndpointParseScore, resp.Error, "未知错误")
	}
	return resp.ScoreItems, nil
}

func (c *backendClient) Verify(ctx context.Context, req models.VerifyRequest) (*models.VerifyResponse, error) {
	var resp models.VerifyResponse
	if err := c.doJSON(ctx, http.MethodPost, EndpointVerify, req, &resp); err != nil {
		return nil, err
	}
	if resp.Success != nil && !*resp.Success {
		return nil, appError(EndpointVerify, resp.Error, "未知错误")
	}
	return &resp, nil
}

// GenerateScoring posts both references as multipart form fields.
func (c *backendClient) GenerateScoring(ctx context.Context, reportPath, standardPath string) (*models.ScoringResponse, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("report_file_path", reportPath); err != nil {
		return nil, fmt.Errorf("failed to write form field: %w", err)
	}
	if err := writer.WriteField("standard_file_path", standardPath); err != nil {
		return nil, fmt.Errorf("failed to write form field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+EndpointGenerateScoring, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to build scoring request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var resp models.ScoringResponse
	if err := c.send(req, EndpointGenerateScoring, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, appError(EndpointGenerateScoring, resp.Error, "未知错误")
	}
	return &resp, nil
}

func (c *backendClient) GenerateAnalysis(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error) {
	var resp models.AnalysisResponse
	if err := c.doJSON(ctx, http.MethodPost, EndpointGenerateAnalysis, req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, appError(EndpointGenerateAnalysis, resp.Error, "未知错误")
	}
	if resp.AnalysisResult == nil {
		return nil, appError(EndpointGenerateAnalysis, "", "分析结果格式错误")
	}
	return resp.AnalysisResult, nil
}

func (c *backendClient) GenerateDiagnosis(ctx context.Context, req models.DiagnosisRequest) (*models.DiagnosisResponse, error) {
	var resp models.DiagnosisResponse
	if err := c.doJSON(ctx, http.MethodPost, EndpointGenerateDiagnose, req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, appError(EndpointGenerateDiagnose, resp.Error, "未知错误")
	}
	return &resp, nil
}

func (c *backendClient) SubmitScore(ctx context.Context, req models.SubmitScoreRequest) error {
	var resp models.SuccessResponse
	if err := c.doJSON(ctx, http.MethodPost, EndpointSubmitScore, req, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return appError(EndpointSubmitScore, resp.Error, "未知错误")
	}
	return nil
}

// Export posts payload and returns the binary body. A non-OK status carries
// a JSON error body.
func (c *backendClient) Export(ctx context.Context, endpoint string, payload any) (*Artifact, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode export payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build export request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	data, err := ReadAllWithLimit(resp.Body, c.maxBytes)
	if err != nil {
		return nil, &NetworkError{Endpoint: endpoint, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(endpoint, resp.StatusCode, data, "导出失败")
	}

	contentType := resp.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && mediaType == "application/json" {
		var errBody models.ErrorResponse
		if json.Unmarshal(data, &errBody) == nil && errBody.Error != "" {
			return nil, &ApplicationError{Endpoint: endpoint, Status: resp.StatusCode, Message: errBody.Error}
		}
	}

	return &Artifact{Data: data, ContentType: contentType}, nil
}

func (c *backendClient) doJSON(ctx context.Context, method, endpoint string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, endpoint, out)
}

func (c *backendClient) send(req *http.Request, endpoint string, out any) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed", zap.String("endpoint", endpoint), zap.Error(err))
		return &NetworkError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	data, err := ReadAllWithLimit(resp.Body, c.maxBytes)
	if err != nil {
		return &NetworkError{Endpoint: endpoint, Err: err}
	}

	c.logger.Debug("backend request completed",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(endpoint, resp.StatusCode, data, "未知错误")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &ApplicationError{Endpoint: endpoint, Status: resp.StatusCode, Message: "invalid response from backend: " + err.Error()}
	}
	return nil
}

func statusError(endpoint string, status int, body []byte, fallback string) error {
	var errBody models.ErrorResponse
	if err := json.Unmarshal(body, &errBody); err == nil && errBody.Error != "" {
		return &ApplicationError{Endpoint: endpoint, Status: status, Message: errBody.Error}
	}
	return &ApplicationError{Endpoint: endpoint, Status: status, Message: fallback}
}

func appError(endpoint, message, fallback string) error {
	if message == "" {
		message = fallback
	}
	return &ApplicationError{Endpoint: endpoint, Message: message}
}

// IsApplicationError reports whether err is a backend-signalled failure.
func IsApplicationError(err error) bool {
	var appErr *ApplicationError
	return errors.As(err, &appErr)
}
