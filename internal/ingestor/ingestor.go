package ingestor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"bikeflow/internal/domain"
	"bikeflow/internal/traffic"
	"bikeflow/pkg/bluebikes"
)

type Fetcher interface {
	FetchStations(ctx context.Context) ([]*domain.Station, error)
	FetchTrips(ctx context.Context) (*bluebikes.TripsResult, error)
}

type DatasetStore interface {
	Update(stations []*domain.Station, agg *traffic.Aggregator) (string, error)
}

type Metrics interface {
	LoadSucceeded(stations, trips, skipped int, d time.Duration)
	LoadFailed()
}

// LoadResult describes one successful load cycle.
type LoadResult struct {
	Version  string
	Stations int
	Trips    int
	Skipped  int
	Duration time.Duration
}

type Ingestor struct {
	fetcher         Fetcher
	store           DatasetStore
	metrics         Metrics
	refreshInterval time.Duration
	logger          *slog.Logger
	onUpdate        func(context.Context, LoadResult)

	ready   bool
	readyMu sync.RWMutex
}

func New(fetcher Fetcher, store DatasetStore, metrics Metrics, refreshInterval time.Duration, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		fetcher:         fetcher,
		store:           store,
		metrics:         metrics,
		refreshInterval: refreshInterval,
		logger:          logger.With("component", "ingestor"),
	}
}

// SetOnUpdate registers fn to run after every successful load.
func (i *Ingestor) SetOnUpdate(fn func(context.Context, LoadResult)) {
	i.onUpdate = fn
}

// Start loads the dataset immediately and then once per refresh interval
// until ctx is done.
func (i *Ingestor) Start(ctx context.Context) {
	i.update(ctx)

	ticker := time.NewTicker(i.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			i.update(ctx)
		}
	}
}

func (i *Ingestor) update(ctx context.Context) {
	result, err := i.Load(ctx)
	if err != nil {
		if i.metrics != nil {
			i.metrics.LoadFailed()
		}
		i.logger.Error("dataset load failed, keeping previous dataset", "error", err)
		return
	}

	if i.metrics != nil {
		i.metrics.LoadSucceeded(result.Stations, result.Trips, result.Skipped, result.Duration)
	}

	if !i.IsReady() {
		i.setReady(true)
		i.logger.Info("ingestor ready", "stations", result.Stations, "trips", result.Trips)
	}

	if i.onUpdate != nil {
		i.onUpdate(ctx, result)
	}
}

// Load runs one fetch cycle: stations, then trips, then bucketing. Any
// failure abandons the cycle and leaves the store untouched.
func (i *Ingestor) Load(ctx context.Context) (LoadResult, error) {
	i.logger.Info("starting dataset load")
	start := time.Now()

	stations, err := i.fetcher.FetchStations(ctx)
	if err != nil {
		return LoadResult{}, fmt.Errorf("fetch stations: %w", err)
	}
	i.logger.Info("stations fetched", "count", len(stations), "duration", time.Since(start))

	tripsStart := time.Now()
	trips, err := i.fetcher.FetchTrips(ctx)
	if err != nil {
		return LoadResult{}, fmt.Errorf("fetch trips: %w", err)
	}
	if trips.Skipped > 0 {
		i.logger.Warn("skipped trips with unparseable timestamps", "count", trips.Skipped)
	}
	i.logger.Info("trips fetched", "count", len(trips.Trips), "duration", time.Since(tripsStart))

	aggStart := time.Now()
	agg, err := traffic.NewAggregator(trips.Trips)
	if err != nil {
		return LoadResult{}, fmt.Errorf("bucket trips: %w", err)
	}

	version, err := i.store.Update(stations, agg)
	if err != nil {
		return LoadResult{}, fmt.Errorf("install dataset: %w", err)
	}

	result := LoadResult{
		Version:  version,
		Stations: len(stations),
		Trips:    agg.TripCount(),
		Skipped:  trips.Skipped,
		Duration: time.Since(start),
	}
	i.logger.Info("dataset load complete",
		"version", version,
		"stations", result.Stations,
		"trips", result.Trips,
		"aggregate_duration", time.Since(aggStart),
		"total_duration", result.Duration,
	)
	return result, nil
}

func (i *Ingestor) IsReady() bool {
	i.readyMu.RLock()
	defer i.readyMu.RUnlock()
	return i.ready
}

func (i *Ingestor) setReady(ready bool) {
	i.readyMu.Lock()
	defer i.readyMu.Unlock()
	i.ready = ready
}
