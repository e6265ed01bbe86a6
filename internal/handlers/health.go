package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"photo-library/internal/metrics"
	"photo-library/internal/orchestrator"
	"photo-library/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status       string         `json:"status"`
	Version      string         `json:"version"`
	Uptime       string         `json:"uptime"`
	DatabaseErr  string         `json:"databaseError,omitempty"`
	RunningScans int            `json:"runningScans"`
	QueuedScans  int            `json:"queuedScans"`
	Catalog      *metrics.Stats `json:"catalog,omitempty"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service. It answers 503
// when the catalog cannot be queried.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:       statusHealthy,
		Version:      startup.Version,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	for _, job := range h.scans.Jobs() {
		switch job.State {
		case orchestrator.StateRunning:
			response.RunningScans++
		case orchestrator.StateQueued:
			response.QueuedScans++
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	stats, err := h.db.CatalogStats(ctx)
	if err != nil {
		response.Status = statusDegraded
		response.DatabaseErr = err.Error()
		respond(w, http.StatusServiceUnavailable, response)
		return
	}
	response.Catalog = &stats
	respond(w, http.StatusOK, response)
}

// LivenessCheck is a simple liveness check (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// VersionResponse is the build information with the derived asset backend.
type VersionResponse struct {
	startup.BuildInfo
	Storage string `json:"storage,omitempty"`
}

// GetVersion returns the application version and build information
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	response := VersionResponse{BuildInfo: startup.GetBuildInfo()}
	if h.store != nil {
		response.Storage = h.store.Type()
	}
	w.Header().Set("Cache-Control", "no-cache")
	respond(w, http.StatusOK, response)
}
