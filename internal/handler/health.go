package handler

import (
	"net/http"
	"time"

	"bikeflow/internal/store"
)

type ReadinessChecker interface {
	IsReady() bool
}

type HealthHandler struct {
	ready ReadinessChecker
	store *store.Store
}

func NewHealthHandler(ready ReadinessChecker, s *store.Store) *HealthHandler {
	return &HealthHandler{
		ready: ready,
		store: s,
	}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready        bool      `json:"ready"`
	StationCount int       `json:"stationCount"`
	Version      string    `json:"version,omitempty"`
	ServerTime   time.Time `json:"serverTime"`
}

// Readyz reports 503 until the first dataset has been installed.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ready := h.ready.IsReady()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, ReadyResponse{
		Ready:        ready,
		StationCount: h.store.Count(),
		Version:      h.store.Version(),
		ServerTime:   time.Now(),
	})
}
