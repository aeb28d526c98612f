package handler

import (
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"bikeflow/internal/middleware"
	"bikeflow/internal/store"
)

// Stats tracks server-wide counters
type Stats struct {
	startTime    time.Time
	requestCount atomic.Int64
}

// Global stats instance
var ServerStats = &Stats{
	startTime: time.Now(),
}

func (s *Stats) IncRequests() { s.requestCount.Add(1) }

type HubStats interface {
	ClientCount() int
	WatchedTiles() int
}

type CacheStats interface {
	Len() int
}

type StatsHandler struct {
	store   *store.Store
	hub     HubStats
	cache   CacheStats
	limiter *middleware.RateLimiter
}

// NewStatsHandler reports on the server. cache and limiter may be nil.
func NewStatsHandler(s *store.Store, h HubStats, c CacheStats, rl *middleware.RateLimiter) *StatsHandler {
	return &StatsHandler{store: s, hub: h, cache: c, limiter: rl}
}

type StatsResponse struct {
	Server    ServerStatsResponse    `json:"server"`
	Dataset   store.Stats            `json:"dataset"`
	WebSocket WebSocketStatsResponse `json:"websocket"`
	Cache     CacheStatsResponse     `json:"cache"`
	RateLimit *middleware.Stats      `json:"rate_limit,omitempty"`
	Go        GoStatsResponse        `json:"go"`
}

type ServerStatsResponse struct {
	Uptime        string    `json:"uptime"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	StartTime     time.Time `json:"start_time"`
	RequestCount  int64     `json:"request_count"`
	Version       string    `json:"version"`
}

type WebSocketStatsResponse struct {
	Connections  int `json:"connections"`
	WatchedTiles int `json:"watched_tiles"`
}

type CacheStatsResponse struct {
	Enabled bool `json:"enabled"`
	Entries int  `json:"entries"`
}

type GoStatsResponse struct {
	Goroutines  int     `json:"goroutines"`
	HeapAlloc   uint64  `json:"heap_alloc_bytes"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	NumGC       uint32  `json:"num_gc"`
	GoVersion   string  `json:"go_version"`
}

func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(ServerStats.startTime)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	response := StatsResponse{
		Server: ServerStatsResponse{
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			StartTime:     ServerStats.startTime,
			RequestCount:  ServerStats.requestCount.Load(),
			Version:       "1.0.0",
		},
		Dataset: h.store.Stats(),
		WebSocket: WebSocketStatsResponse{
			Connections:  h.hub.ClientCount(),
			WatchedTiles: h.hub.WatchedTiles(),
		},
		Go: GoStatsResponse{
			Goroutines:  runtime.NumGoroutine(),
			HeapAlloc:   mem.HeapAlloc,
			HeapAllocMB: float64(mem.HeapAlloc) / 1024 / 1024,
			NumGC:       mem.NumGC,
			GoVersion:   runtime.Version(),
		},
	}
	if h.cache != nil {
		response.Cache = CacheStatsResponse{Enabled: true, Entries: h.cache.Len()}
	}
	if h.limiter != nil {
		rl := h.limiter.Stats()
		response.RateLimit = &rl
	}

	w.Header().Set("Cache-Control", "no-cache")
	respondJSON(w, http.StatusOK, response)
}
