package handler

import (
	"net/http"
	"runtime"
	"time"

	"rsm-inventory-bot/pkg/response"
)

// AdminHandler serves operator statistics.
type AdminHandler struct {
	cache     Pinger
	cacheType string
	watchSize int
	workers   int
	startTime time.Time
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(cache Pinger, cacheType string, watchSize, workers int) *AdminHandler {
	return &AdminHandler{
		cache:     cache,
		cacheType: cacheType,
		watchSize: watchSize,
		workers:   workers,
		startTime: time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	cacheStats := map[string]any{"type": h.cacheType}
	if h.cache == nil {
		cacheStats["status"] = "not_configured"
	} else if err := h.cache.Ping(r.Context()); err != nil {
		cacheStats["status"] = "error"
		cacheStats["error"] = err.Error()
	} else {
		cacheStats["status"] = "connected"
	}

	response.OK(w, map[string]any{
		"uptime_seconds": int64(uptime.Seconds()),
		"uptime_human":   uptime.Round(time.Second).String(),
		"server_time":    time.Now().Format(time.RFC3339),
		"cache":          cacheStats,
		"watch_list":     h.watchSize,
		"esi_workers":    h.workers,
		"memory": map[string]any{
			"alloc_mb":      float64(mem.Alloc) / 1024 / 1024,
			"sys_mb":        float64(mem.Sys) / 1024 / 1024,
			"heap_inuse_mb": float64(mem.HeapInuse) / 1024 / 1024,
			"num_gc":        mem.NumGC,
			"goroutines":    runtime.NumGoroutine(),
		},
		"runtime": map[string]any{
			"go_version": runtime.Version(),
			"os":         runtime.GOOS,
			"arch":       runtime.GOARCH,
			"cpus":       runtime.NumCPU(),
		},
	})
}
