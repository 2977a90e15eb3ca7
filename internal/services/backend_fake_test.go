package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alfredoptarigan/report-console/internal/models"
	"alfredoptarigan/report-console/internal/state"
)

// fakeBackend is an httptest server standing in for the report backend.
type fakeBackend struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	calls    map[string]int
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{handlers: map[string]http.HandlerFunc{}, calls: map[string]int{}}
	fb.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		fb.calls[r.URL.Path]++
		fn, ok := fb.handlers[r.URL.Path]
		fb.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		fn(w, r)
	}))
	t.Cleanup(fb.Close)

	// Uploads echo the file name back as the reference
	fb.handle(EndpointUpload, func(w http.ResponseWriter, r *http.Request) {
		_, header, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "没有文件"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"file_path": "uploads/" + header.Filename})
	})
	return fb
}

// handle installs or replaces the handler for endpoint.
func (fb *fakeBackend) handle(endpoint string, fn http.HandlerFunc) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.handlers[endpoint] = fn
}

func (fb *fakeBackend) callCount(endpoint string) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.calls[endpoint]
}

func (fb *fakeBackend) client() BackendClient {
	return NewBackendClient(BackendOptions{BaseURL: fb.URL}, nil)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decodeBody runs on the server goroutine, so it cannot stop the test.
func decodeBody(t *testing.T, r *http.Request, out any) {
	t.Helper()
	assert.NoError(t, json.NewDecoder(r.Body).Decode(out))
}

func tempFile(t *testing.T, name, content string) LocalFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return LocalFile{Name: name, Path: path, Size: int64(len(content))}
}

func messages(app *state.App) []string {
	var out []string
	for _, n := range app.Notifications(false) {
		out = append(out, n.Message)
	}
	return out
}

func hasNotification(app *state.App, level models.NotificationLevel, message string) bool {
	for _, n := range app.Notifications(false) {
		if n.Level == level && n.Message == message {
			return true
		}
	}
	return false
}
