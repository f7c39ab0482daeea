package httptransport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proscan-server-go/internal/app/services"
	"proscan-server-go/internal/domain/auth"
	"proscan-server-go/internal/domain/quality"
	"proscan-server-go/internal/domain/scan"
	"proscan-server-go/internal/domain/stats"
	"proscan-server-go/internal/platform/config"
	"proscan-server-go/internal/platform/errors"
	"proscan-server-go/internal/platform/storage"
)

type fakeScanner struct {
	running  bool
	cfg      scan.ProcessingConfig
	rows     []stats.Row
	cleared  bool
	startErr error
	filter   storage.ScanFilter
}

func newFakeScanner() *fakeScanner {
	return &fakeScanner{cfg: scan.DefaultProcessingConfig()}
}

func (f *fakeScanner) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	if f.running {
		return scan.ErrAlreadyRunning
	}
	f.running = true
	return nil
}

func (f *fakeScanner) Stop() error {
	if !f.running {
		return scan.ErrNotRunning
	}
	f.running = false
	return nil
}

func (f *fakeScanner) Running() bool { return f.running }

func (f *fakeScanner) Status() services.ScannerStatus {
	st := scan.Status{Config: f.cfg, State: scan.StateIdle}
	if f.running {
		st.State = scan.StateRunning
	}
	return services.ScannerStatus{Processor: st, Source: "directory:test"}
}

func (f *fakeScanner) Config() config.Config { return *config.DefaultConfig() }

func (f *fakeScanner) UpdateProcessing(u services.ProcessingUpdate) (scan.ProcessingConfig, error) {
	next := f.cfg
	if u.TargetFPS != nil {
		next.TargetFPS = *u.TargetFPS
	}
	if u.SuppressionWindowSeconds != nil {
		next.SuppressionWindow = time.Duration(*u.SuppressionWindowSeconds) * time.Second
	}
	if err := next.Validate(); err != nil {
		return f.cfg, err
	}
	f.cfg = next
	return next, nil
}

func (f *fakeScanner) Stats() stats.Snapshot { return stats.Snapshot{Total: len(f.rows), PassRate: 100} }
func (f *fakeScanner) ResetStats()           {}

func (f *fakeScanner) Recent(limit int) []stats.Row {
	if limit > 0 && limit < len(f.rows) {
		return f.rows[len(f.rows)-limit:]
	}
	return f.rows
}

func (f *fakeScanner) ClearScans() { f.cleared = true; f.rows = nil }

func (f *fakeScanner) ExportCSV(w io.Writer) error {
	_, err := io.WriteString(w, "Time,Barcode,Type,Grade,Defect\n")
	return err
}

func (f *fakeScanner) ExportLastReport() (string, error) {
	if len(f.rows) == 0 {
		return "", services.ErrNoScans
	}
	return "/tmp/report.json", nil
}

func (f *fakeScanner) History(_ context.Context, filter storage.ScanFilter) ([]storage.ScanRecord, int64, error) {
	f.filter = filter
	return []storage.ScanRecord{{EventID: "e1", Payload: "ABC"}}, 1, nil
}

func newTestRouter(t *testing.T, sc Scanner, secret string) *gin.Engine {
	t.Helper()
	router, err := Build(Options{
		Config:         config.DefaultConfig(),
		AuthMiddleware: BearerAuth(auth.NewAuthToken(secret)),
	})
	require.NoError(t, err)
	NewScannerHandler(context.Background(), sc, nil).RegisterRoutes(router)
	NewSystemHandler("test", nil).RegisterRoutes(router)
	return router.Engine
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp APIResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestScannerHandler_StartStop(t *testing.T) {
	sc := newFakeScanner()
	h := newTestRouter(t, sc, "")

	rec, resp := do(t, h, http.MethodPost, "/api/scanner/start", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.True(t, sc.running)

	rec, resp = do(t, h, http.MethodPost, "/api/scanner/start", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, resp.Success)

	rec, _ = do(t, h, http.MethodPost, "/api/scanner/stop", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, h, http.MethodPost, "/api/scanner/stop", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestScannerHandler_StartCaptureFailure(t *testing.T) {
	sc := newFakeScanner()
	sc.startErr = errors.New(errors.KindCapture, "capture.open", "no images")
	rec, resp := do(t, newTestRouter(t, sc, ""), http.MethodPost, "/api/scanner/start", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, resp.Message, "no images")
}

func TestScannerHandler_Config(t *testing.T) {
	sc := newFakeScanner()
	h := newTestRouter(t, sc, "")

	rec, resp := do(t, h, http.MethodPut, "/api/scanner/config", `{"target_fps":25,"suppression_window_seconds":4}`)
	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]any)
	assert.EqualValues(t, 25, data["target_fps"])
	assert.EqualValues(t, 4, data["suppression_window_seconds"])

	rec, _ = do(t, h, http.MethodPut, "/api/scanner/config", `{"target_fps":2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 25, sc.cfg.TargetFPS)

	rec, _ = do(t, h, http.MethodPut, "/api/scanner/config", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = do(t, h, http.MethodGet, "/api/scanner/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 25, resp.Data.(map[string]any)["target_fps"])
}

func TestScannerHandler_ScansAndExports(t *testing.T) {
	sc := newFakeScanner()
	sc.rows = []stats.Row{
		{Payload: "A", Grade: quality.GradeA, Defect: quality.DefectOK},
		{Payload: "B", Grade: quality.GradeF, Defect: quality.DefectBlur},
	}
	h := newTestRouter(t, sc, "")

	rec, resp := do(t, h, http.MethodGet, "/api/scans?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rows := resp.Data.([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "B", rows[0].(map[string]any)["payload"])

	rec, _ = do(t, h, http.MethodGet, "/api/scans?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/scans/export.csv", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, "Time,Barcode,Type,Grade,Defect\n", rec.Body.String())

	rec, resp = do(t, h, http.MethodPost, "/api/reports/last", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/tmp/report.json", resp.Data.(map[string]any)["path"])

	rec, _ = do(t, h, http.MethodDelete, "/api/scans", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, sc.cleared)

	rec, _ = do(t, h, http.MethodPost, "/api/reports/last", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScannerHandler_History(t *testing.T) {
	sc := newFakeScanner()
	h := newTestRouter(t, sc, "")

	rec, resp := do(t, h, http.MethodGet, "/api/scans/history?grade=A&limit=5&since=2024-01-01T00:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, resp.Data.(map[string]any)["total"])
	assert.Equal(t, "A", sc.filter.Grade)
	assert.Equal(t, 5, sc.filter.Limit)
	assert.Equal(t, 2024, sc.filter.Since.Year())

	rec, _ = do(t, h, http.MethodGet, "/api/scans/history?since=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBearerAuth_GuardsMutations(t *testing.T) {
	sc := newFakeScanner()
	tokens := auth.NewAuthToken("s3cret")
	h := newTestRouter(t, sc, "s3cret")

	rec, _ := do(t, h, http.MethodGet, "/api/scanner/status", "")
	assert.Equal(t, http.StatusOK, rec.Code, "reads stay open")

	rec, _ = do(t, h, http.MethodPost, "/api/scanner/start", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, sc.running)

	rec, _ = do(t, h, http.MethodPost, "/api/scanner/start", "", "Authorization", "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tok, err := tokens.GenerateToken("line-2")
	require.NoError(t, err)
	rec, _ = do(t, h, http.MethodPost, "/api/scanner/start", "", "Authorization", "Bearer "+tok)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, sc.running)
}

func TestSystemHandler(t *testing.T) {
	h := newTestRouter(t, newFakeScanner(), "")

	rec, resp := do(t, h, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", resp.Data.(map[string]any)["status"])

	rec, resp = do(t, h, http.MethodGet, "/api/system", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", resp.Data.(map[string]any)["version"])
}
