package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bikeflow/internal/cache"
	"bikeflow/internal/domain"
	"bikeflow/internal/geo"
	"bikeflow/internal/store"
	"bikeflow/internal/traffic"
)

type QueryMetrics interface {
	ObserveQuery(timeFilter int, d time.Duration)
}

type TrafficHandler struct {
	store   *store.Store
	cache   *cache.TrafficCache
	metrics QueryMetrics
	logger  *slog.Logger
}

// NewTrafficHandler serves station traffic. cache may be nil.
func NewTrafficHandler(s *store.Store, c *cache.TrafficCache, m QueryMetrics, logger *slog.Logger) *TrafficHandler {
	return &TrafficHandler{
		store:   s,
		cache:   c,
		metrics: m,
		logger:  logger.With("component", "traffic_handler"),
	}
}

type StationsResponse struct {
	Time     int                 `json:"time"`
	Label    string              `json:"label"`
	AnyTime  bool                `json:"anyTime"`
	Version  string              `json:"version"`
	Scale    traffic.RadiusScale `json:"scale"`
	Count    int                 `json:"count"`
	Stations []*domain.Station   `json:"stations"`
}

type StationResponse struct {
	Time    int             `json:"time"`
	Label   string          `json:"label"`
	AnyTime bool            `json:"anyTime"`
	Version string          `json:"version"`
	Station *domain.Station `json:"station"`
	Title   string          `json:"title"`
}

type MarkersResponse struct {
	Time    int                 `json:"time"`
	Label   string              `json:"label"`
	AnyTime bool                `json:"anyTime"`
	Version string              `json:"version"`
	Bounds  domain.BoundingBox  `json:"bounds"`
	Scale   traffic.RadiusScale `json:"scale"`
	TileIDs []string            `json:"tileIds"`
	Count   int                 `json:"count"`
	Markers []domain.Marker     `json:"markers"`
}

func (h *TrafficHandler) ListStations(w http.ResponseWriter, r *http.Request) {
	timeFilter, err := parseTimeFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	var snap *store.Snapshot
	if h.cache != nil {
		snap, err = h.cache.Traffic(r.Context(), h.store, timeFilter)
	} else {
		snap, err = h.store.Traffic(timeFilter)
	}
	if err != nil {
		h.logger.Error("traffic query failed", "time", timeFilter, "error", err)
		respondError(w, http.StatusInternalServerError, "traffic query failed")
		return
	}
	h.observe(timeFilter, start)

	respondJSON(w, http.StatusOK, StationsResponse{
		Time:     timeFilter,
		Label:    traffic.Label(timeFilter),
		AnyTime:  timeFilter == traffic.NoFilter,
		Version:  snap.Version,
		Scale:    snap.Scale,
		Count:    len(snap.Stations),
		Stations: snap.Stations,
	})
}

func (h *TrafficHandler) GetStation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing station id")
		return
	}
	timeFilter, err := parseTimeFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	st, ok, err := h.store.Station(id, timeFilter)
	if err != nil {
		h.logger.Error("station query failed", "id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "traffic query failed")
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "station not found")
		return
	}
	h.observe(timeFilter, start)

	respondJSON(w, http.StatusOK, StationResponse{
		Time:    timeFilter,
		Label:   traffic.Label(timeFilter),
		AnyTime: timeFilter == traffic.NoFilter,
		Version: h.store.Version(),
		Station: st,
		Title:   st.Summary(),
	})
}

// ListMarkers places the stations visible in a viewport, sized by traffic.
func (h *TrafficHandler) ListMarkers(w http.ResponseWriter, r *http.Request) {
	timeFilter, err := parseTimeFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	vp, err := parseViewport(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	bounds := vp.Bounds()
	snap, err := h.store.StationsInBounds(bounds, timeFilter)
	if err != nil {
		h.logger.Error("marker query failed", "error", err)
		respondError(w, http.StatusInternalServerError, "traffic query failed")
		return
	}
	h.observe(timeFilter, start)

	respondJSON(w, http.StatusOK, MarkersResponse{
		Time:    timeFilter,
		Label:   traffic.Label(timeFilter),
		AnyTime: timeFilter == traffic.NoFilter,
		Version: snap.Version,
		Bounds:  bounds,
		Scale:   snap.Scale,
		TileIDs: h.viewportTiles(bounds),
		Count:   len(snap.Stations),
		Markers: PlaceMarkers(snap.Stations, vp, snap.Scale),
	})
}

// viewportTiles lists the tiles a WebSocket client should subscribe to for
// the viewport. It is empty when the viewport spans more tiles than one
// subscribe message accepts.
func (h *TrafficHandler) viewportTiles(bounds domain.BoundingBox) []string {
	zoom := h.store.ZoomLevel()
	if geo.CountTilesInBBox(bounds, zoom) > maxTilesPerMsg {
		return []string{}
	}
	return geo.TilesInBBox(bounds, zoom)
}

// PlaceMarkers projects each station and sizes it with scale.
func PlaceMarkers(stations []*domain.Station, p geo.Projector, scale traffic.RadiusScale) []domain.Marker {
	markers := make([]domain.Marker, 0, len(stations))
	for _, st := range stations {
		x, y := p.Project(st.Lon, st.Lat)
		markers = append(markers, domain.Marker{
			Station: st,
			CX:      x,
			CY:      y,
			Radius:  scale.Radius(st.TotalTraffic),
			Title:   st.Summary(),
		})
	}
	return markers
}

func (h *TrafficHandler) observe(timeFilter int, start time.Time) {
	if h.metrics != nil {
		h.metrics.ObserveQuery(timeFilter, time.Since(start))
	}
}

// parseTimeFilter reads ?time=; absent or empty means any time.
func parseTimeFilter(r *http.Request) (int, error) {
	v := r.URL.Query().Get("time")
	if v == "" {
		return traffic.NoFilter, nil
	}
	minute, err := strconv.Atoi(v)
	if err != nil || !traffic.ValidTimeFilter(minute) {
		return 0, fmt.Errorf("invalid time parameter: must be -1 or a minute in [0, %d)", traffic.MinutesPerDay)
	}
	return minute, nil
}

func parseViewport(r *http.Request) (geo.Viewport, error) {
	q := r.URL.Query()

	zoom, err := strconv.ParseFloat(q.Get("zoom"), 64)
	if err != nil {
		return geo.Viewport{}, errors.New("invalid zoom parameter")
	}

	parts := strings.Split(q.Get("center"), ",")
	if len(parts) != 2 {
		return geo.Viewport{}, errors.New("invalid center format: expected lon,lat")
	}
	lon, errLon := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errLon != nil || errLat != nil {
		return geo.Viewport{}, errors.New("invalid center values")
	}

	width, errW := strconv.ParseFloat(q.Get("width"), 64)
	height, errH := strconv.ParseFloat(q.Get("height"), 64)
	if errW != nil || errH != nil {
		return geo.Viewport{}, errors.New("invalid width or height parameter")
	}

	vp := geo.Viewport{CenterLon: lon, CenterLat: lat, Zoom: zoom, Width: width, Height: height}
	if err := vp.Validate(); err != nil {
		return geo.Viewport{}, err
	}
	return vp, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
