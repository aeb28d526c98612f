package handler

import (
	"net/http"

	"bikeflow/internal/domain"
)

type OverlayHandler struct {
	overlays []domain.Overlay
}

func NewOverlayHandler(overlays []domain.Overlay) *OverlayHandler {
	return &OverlayHandler{overlays: overlays}
}

type OverlaysResponse struct {
	Overlays []domain.Overlay `json:"overlays"`
}

func (h *OverlayHandler) ListOverlays(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	respondJSON(w, http.StatusOK, OverlaysResponse{Overlays: h.overlays})
}
