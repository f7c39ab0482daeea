package httptransport

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"proscan-server-go/internal/platform/observability"
)

// LiveStats reports live-feed state for /system.
type LiveStats interface {
	Count() int
}

// SystemHandler serves health and host diagnostics.
type SystemHandler struct {
	version string
	live    LiveStats
}

func NewSystemHandler(version string, live LiveStats) *SystemHandler {
	return &SystemHandler{version: version, live: live}
}

func (h *SystemHandler) RegisterRoutes(router *Router) {
	router.API.GET("/health", h.Health)
	router.API.GET("/system", h.System)
}

func (h *SystemHandler) Health(c *gin.Context) {
	RespondSuccess(c, http.StatusOK, gin.H{
		"status":  "ok",
		"version": h.version,
		"uptime":  observability.Uptime().Round(time.Second).String(),
	}, "")
}

func (h *SystemHandler) System(c *gin.Context) {
	data := gin.H{
		"version":    h.version,
		"go":         runtime.Version(),
		"goroutines": runtime.NumGoroutine(),
		"host":       observability.CollectHostStats(c.Request.Context()),
		"metrics":    observability.Snapshot(),
	}
	if h.live != nil {
		data["ws_clients"] = h.live.Count()
	}
	RespondSuccess(c, http.StatusOK, data, "")
}
