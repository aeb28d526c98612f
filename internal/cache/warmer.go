package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"bikeflow/internal/traffic"
)

// WarmFilters are the filters precomputed after each load: any time, then
// every whole hour.
func WarmFilters() []int {
	filters := []int{traffic.NoFilter}
	for m := 0; m < traffic.MinutesPerDay; m += 60 {
		filters = append(filters, m)
	}
	return filters
}

type CacheWarmer struct {
	cache  *TrafficCache
	src    Source
	logger *slog.Logger

	mu          sync.Mutex
	lastVersion string
}

func NewCacheWarmer(cache *TrafficCache, src Source, logger *slog.Logger) *CacheWarmer {
	return &CacheWarmer{
		cache:  cache,
		src:    src,
		logger: logger.With("component", "cache_warmer"),
	}
}

// WarmAll drops entries of the previous dataset and precomputes WarmFilters
// for the current one.
func (w *CacheWarmer) WarmAll(ctx context.Context) error {
	start := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	version := w.src.Version()
	if version == "" {
		return nil
	}
	if w.lastVersion != "" && w.lastVersion != version {
		w.cache.Invalidate(ctx, w.lastVersion)
	}
	w.lastVersion = version

	warmed := 0
	for _, f := range WarmFilters() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := w.cache.Traffic(ctx, w.src, f); err != nil {
			w.logger.Error("failed to warm filter", "filter", f, "error", err)
			continue
		}
		warmed++
	}

	w.logger.Info("cache warming completed",
		"version", version,
		"filters_warmed", warmed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
