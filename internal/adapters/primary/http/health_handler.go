package http

import (
	"net/http"
	"runtime"
	"time"

	"github.com/lorrc/agent-console/internal/core/domain"
)

// ConnectionChecker reports the state of the realtime connection
type ConnectionChecker interface {
	State() domain.ConnectionState
}

// HealthHandler handles health check requests
type HealthHandler struct {
	conn      ConnectionChecker
	startTime time.Time
	version   string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(conn ConnectionChecker, version string) *HealthHandler {
	return &HealthHandler{
		conn:      conn,
		startTime: time.Now(),
		version:   version,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Version   string           `json:"version,omitempty"`
	Uptime    string           `json:"uptime,omitempty"`
	Checks    map[string]Check `json:"checks,omitempty"`
}

// Check represents an individual health check result
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HandleLiveness reports that the process is running
func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleHealth reports the realtime connection plus runtime stats. A
// console that is not connected is degraded.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]Check{"realtime": h.checkConnection()}
	overallStatus := "healthy"
	if checks["realtime"].Status != "healthy" {
		overallStatus = "degraded"
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	response := struct {
		HealthResponse
		Memory struct {
			Alloc uint64 `json:"alloc_bytes"`
			Sys   uint64 `json:"sys_bytes"`
			NumGC uint32 `json:"num_gc"`
		} `json:"memory"`
		Goroutines int `json:"goroutines"`
	}{
		HealthResponse: HealthResponse{
			Status:    overallStatus,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   h.version,
			Uptime:    time.Since(h.startTime).Round(time.Second).String(),
			Checks:    checks,
		},
		Goroutines: runtime.NumGoroutine(),
	}
	response.Memory.Alloc = memStats.Alloc
	response.Memory.Sys = memStats.Sys
	response.Memory.NumGC = memStats.NumGC

	statusCode := http.StatusOK
	if overallStatus != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}
	WriteJSON(w, statusCode, response)
}

func (h *HealthHandler) checkConnection() Check {
	if h.conn == nil {
		return Check{Status: "unhealthy", Message: "Realtime connection not configured"}
	}

	state := h.conn.State()
	if state != domain.StateConnected {
		return Check{Status: "unhealthy", Message: string(state)}
	}
	return Check{Status: "healthy"}
}
