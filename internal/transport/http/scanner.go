package httptransport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"proscan-server-go/internal/app/services"
	"proscan-server-go/internal/domain/scan"
	"proscan-server-go/internal/domain/stats"
	"proscan-server-go/internal/platform/config"
	"proscan-server-go/internal/platform/logging"
	"proscan-server-go/internal/platform/storage"
)

// Scanner is what the handlers need from the scanner service.
type Scanner interface {
	Start(ctx context.Context) error
	Stop() error
	Running() bool
	Status() services.ScannerStatus
	Config() config.Config
	UpdateProcessing(u services.ProcessingUpdate) (scan.ProcessingConfig, error)
	Stats() stats.Snapshot
	ResetStats()
	Recent(limit int) []stats.Row
	ClearScans()
	ExportCSV(w io.Writer) error
	ExportLastReport() (string, error)
	History(ctx context.Context, f storage.ScanFilter) ([]storage.ScanRecord, int64, error)
}

// ScannerHandler serves the scanner control and data endpoints.
type ScannerHandler struct {
	scanner Scanner
	logger  *logging.Logger
	// runCtx outlives the request that starts the scanner.
	runCtx context.Context
}

func NewScannerHandler(runCtx context.Context, scanner Scanner, logger *logging.Logger) *ScannerHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &ScannerHandler{scanner: scanner, logger: logger, runCtx: runCtx}
}

// RegisterRoutes mounts reads on the open group and mutations on the
// secured one.
func (h *ScannerHandler) RegisterRoutes(router *Router) {
	router.API.GET("/scanner/status", h.Status)
	router.API.GET("/scanner/config", h.GetConfig)
	router.API.GET("/stats", h.Stats)
	router.API.GET("/scans", h.Recent)
	router.API.GET("/scans/export.csv", h.ExportCSV)
	router.API.GET("/scans/history", h.History)

	router.Secured.POST("/scanner/start", h.Start)
	router.Secured.POST("/scanner/stop", h.Stop)
	router.Secured.PUT("/scanner/config", h.UpdateConfig)
	router.Secured.POST("/stats/reset", h.ResetStats)
	router.Secured.DELETE("/scans", h.ClearScans)
	router.Secured.POST("/reports/last", h.ExportLastReport)
}

func (h *ScannerHandler) Status(c *gin.Context) {
	RespondSuccess(c, http.StatusOK, h.scanner.Status(), "")
}

func (h *ScannerHandler) Start(c *gin.Context) {
	if err := h.scanner.Start(h.runCtx); err != nil {
		RespondErr(c, err)
		return
	}
	h.logger.InfoTag(logging.TagHTTP, "scanner started by %q", Operator(c))
	RespondSuccess(c, http.StatusOK, h.scanner.Status(), "scanner started")
}

func (h *ScannerHandler) Stop(c *gin.Context) {
	if err := h.scanner.Stop(); err != nil {
		RespondErr(c, err)
		return
	}
	h.logger.InfoTag(logging.TagHTTP, "scanner stopped by %q", Operator(c))
	RespondSuccess(c, http.StatusOK, h.scanner.Status(), "scanner stopped")
}

// processingView is the wire form of the runtime processing settings.
type processingView struct {
	TargetFPS                int  `json:"target_fps"`
	SuppressionWindowSeconds int  `json:"suppression_window_seconds"`
	Running                  bool `json:"running"`
}

func viewOf(pc scan.ProcessingConfig, running bool) processingView {
	return processingView{
		TargetFPS:                pc.TargetFPS,
		SuppressionWindowSeconds: int(pc.SuppressionWindow / time.Second),
		Running:                  running,
	}
}

func (h *ScannerHandler) GetConfig(c *gin.Context) {
	RespondSuccess(c, http.StatusOK, viewOf(h.scanner.Status().Processor.Config, h.scanner.Running()), "")
}

func (h *ScannerHandler) UpdateConfig(c *gin.Context) {
	var req services.ProcessingUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if req.TargetFPS == nil && req.SuppressionWindowSeconds == nil {
		RespondError(c, http.StatusBadRequest, "nothing to update", nil)
		return
	}
	pc, err := h.scanner.UpdateProcessing(req)
	if err != nil {
		RespondErr(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, viewOf(pc, h.scanner.Running()), "config updated")
}

func (h *ScannerHandler) Stats(c *gin.Context) {
	RespondSuccess(c, http.StatusOK, h.scanner.Stats(), "")
}

func (h *ScannerHandler) ResetStats(c *gin.Context) {
	h.scanner.ResetStats()
	RespondSuccess(c, http.StatusOK, h.scanner.Stats(), "statistics reset")
}

func (h *ScannerHandler) Recent(c *gin.Context) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		RespondError(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	RespondSuccess(c, http.StatusOK, h.scanner.Recent(limit), "")
}

func (h *ScannerHandler) ClearScans(c *gin.Context) {
	h.scanner.ClearScans()
	RespondSuccess(c, http.StatusOK, nil, "scans cleared")
}

func (h *ScannerHandler) ExportCSV(c *gin.Context) {
	name := fmt.Sprintf("scans_%s.csv", time.Now().Format("20060102_150405"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Status(http.StatusOK)
	if err := h.scanner.ExportCSV(c.Writer); err != nil {
		_ = c.Error(err)
		h.logger.ErrorTag(logging.TagHTTP, "csv export failed: %v", err)
	}
}

func (h *ScannerHandler) ExportLastReport(c *gin.Context) {
	path, err := h.scanner.ExportLastReport()
	if err != nil {
		RespondErr(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, gin.H{"path": path}, "report written")
}

// historyPage is the paged history response.
type historyPage struct {
	Total   int64                `json:"total"`
	Limit   int                  `json:"limit"`
	Offset  int                  `json:"offset"`
	Records []storage.ScanRecord `json:"records"`
}

func (h *ScannerHandler) History(c *gin.Context) {
	f := storage.ScanFilter{
		Payload: c.Query("payload"),
		Grade:   c.Query("grade"),
		Defect:  c.Query("defect"),
	}
	var err error
	if f.Limit, err = queryInt(c, "limit", storage.DefaultListLimit); err != nil {
		RespondError(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if f.Offset, err = queryInt(c, "offset", 0); err != nil {
		RespondError(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if f.Since, err = queryTime(c, "since"); err != nil {
		RespondError(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if f.Until, err = queryTime(c, "until"); err != nil {
		RespondError(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	recs, total, err := h.scanner.History(c.Request.Context(), f)
	if err != nil {
		RespondErr(c, err)
		return
	}
	RespondSuccess(c, http.StatusOK, historyPage{Total: total, Limit: f.Limit, Offset: f.Offset, Records: recs}, "")
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}

func queryTime(c *gin.Context, key string) (time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be RFC3339", key)
	}
	return t, nil
}
