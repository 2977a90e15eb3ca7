package services

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alfredoptarigan/report-console/internal/models"
)

func TestReadAllWithLimit(t *testing.T) {
	data, err := ReadAllWithLimit(strings.NewReader("abc"), 3)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	_, err = ReadAllWithLimit(strings.NewReader("abcd"), 3)
	var tooLarge ResponseTooLargeError
	assert.True(t, errors.As(err, &tooLarge))
}

func TestBackendUploadStreamsFile(t *testing.T) {
	fb := newFakeBackend(t)
	file := tempFile(t, "Alice_Report.docx", "content")

	reference, err := fb.client().Upload(context.Background(), file)

	require.NoError(t, err)
	assert.Equal(t, "uploads/Alice_Report.docx", reference)
}

func TestBackendUploadWithoutPathIsApplicationError(t *testing.T) {
	fb := newFakeBackend(t)
	fb.handle(EndpointUpload, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"error": "文件类型不支持"})
	})

	_, err := fb.client().Upload(context.Background(), tempFile(t, "a.docx", "x"))

	var appErr *ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "文件类型不支持", appErr.Message)
}

func TestBackendNetworkError(t *testing.T) {
	fb := newFakeBackend(t)
	client := fb.client()
	fb.Close()

	_, err := client.ConfigStatus(context.Background())

	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, EndpointConfigStatus, netErr.Endpoint)
	assert.True(t, strings.HasPrefix(NoticeMessage(err), "网络错误: "))
}

func TestBackendStatusErrorUsesBodyMessage(t *testing.T) {
	fb := newFakeBackend(t)
	fb.handle(EndpointVerify, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "校对服务不可用"})
	})

	_, err := fb.client().Verify(context.Background(), models.VerifyRequest{DocText: "x"})

	var appErr *ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.Equal(t, "校对服务不可用", appErr.Message)
}

func TestBackendGenerateScoringSendsFormFields(t *testing.T) {
	fb := newFakeBackend(t)
	fb.handle(EndpointGenerateScoring, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "uploads/r.docx", r.FormValue("report_file_path"))
		assert.Equal(t, "uploads/s.xlsx", r.FormValue("standard_file_path"))
		_, _ = w.Write([]byte(`{"success":true,"scoring_results":[{"具体能力项":"A","能力值（1-10分）":0}]}`))
	})

	resp, err := fb.client().GenerateScoring(context.Background(), "uploads/r.docx", "uploads/s.xlsx")

	require.NoError(t, err)
	require.Len(t, resp.ScoringResults, 1)
	value, ok := resp.ScoringResults[0].Get(models.ColumnAbilityValue)
	require.True(t, ok)
	assert.Equal(t, float64(0), value)
}

func TestBackendValidateKey(t *testing.T) {
	fb := newFakeBackend(t)
	fb.handle(EndpointConfigValidate, func(w http.ResponseWriter, r *http.Request) {
		var req models.APIKeyRequest
		decodeBody(t, r, &req)
		writeJSON(w, http.StatusOK, models.ValidateKeyResponse{
			Success:    true,
			Validation: &models.KeyValidation{Valid: req.APIKey == "good"},
		})
	})

	validation, err := fb.client().ValidateKey(context.Background(), "good")
	require.NoError(t, err)
	assert.True(t, validation.Valid)

	validation, err = fb.client().ValidateKey(context.Background(), "bad")
	require.NoError(t, err)
	assert.False(t, validation.Valid)
}

func TestBackendExport(t *testing.T) {
	fb := newFakeBackend(t)
	pdf := []byte("%PDF-1.4 fake")
	fb.handle(EndpointExportPDF, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(pdf)
	})
	fb.handle(EndpointExportScoring, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"error": "没有数据"})
	})
	fb.handle(EndpointExportDiagnosis, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	client := fb.client()

	artifact, err := client.Export(context.Background(), EndpointExportPDF, map[string]string{})
	require.NoError(t, err)
	assert.True(t, bytes.Equal(pdf, artifact.Data))
	assert.Equal(t, "application/pdf", artifact.ContentType)

	_, err = client.Export(context.Background(), EndpointExportScoring, map[string]string{})
	assert.EqualError(t, err, "没有数据")

	_, err = client.Export(context.Background(), EndpointExportDiagnosis, map[string]string{})
	assert.EqualError(t, err, "导出失败")
}
