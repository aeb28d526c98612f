package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	DatasetLoads     *prometheus.CounterVec // result label: success|failure
	DatasetStations  prometheus.Gauge
	DatasetTrips     prometheus.Gauge
	TripsSkipped     prometheus.Counter
	LoadDuration     prometheus.Histogram
	TrafficQueries   *prometheus.CounterVec // filter label: any|window
	QueryDuration    prometheus.Histogram
	CacheHits        *prometheus.CounterVec // layer label: local|remote
	CacheMisses      prometheus.Counter
	WSClients        prometheus.Gauge
	WSSnapshots      prometheus.Counter
	RateLimited      prometheus.Counter
	NATSPublished    prometheus.Counter
	NATSPublishErrs  prometheus.Counter
	NATSConnected    prometheus.Gauge
	RefreshIntervalS prometheus.Gauge
}

func NewCollector(refreshInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		DatasetLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bikeflow_dataset_loads_total",
			Help: "Dataset load cycles by result.",
		}, []string{"result"}),
		DatasetStations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bikeflow_dataset_stations",
			Help: "Stations in the dataset currently served.",
		}),
		DatasetTrips: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bikeflow_dataset_trips",
			Help: "Trips bucketed in the dataset currently served.",
		}),
		TripsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bikeflow_trips_skipped_total",
			Help: "Trip rows dropped for unparseable timestamps.",
		}),
		LoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bikeflow_dataset_load_duration_seconds",
			Help:    "Duration of a full fetch-and-bucket cycle.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		TrafficQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bikeflow_traffic_queries_total",
			Help: "Traffic computations by filter kind.",
		}, []string{"filter"}),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bikeflow_traffic_query_duration_seconds",
			Help:    "Duration of a traffic lookup including cache.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bikeflow_cache_hits_total",
			Help: "Traffic cache hits by layer.",
		}, []string{"layer"}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bikeflow_cache_misses_total",
			Help: "Traffic cache misses.",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bikeflow_ws_clients",
			Help: "Connected WebSocket clients.",
		}),
		WSSnapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bikeflow_ws_snapshots_total",
			Help: "Snapshots queued to WebSocket clients.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bikeflow_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bikeflow_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bikeflow_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bikeflow_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		RefreshIntervalS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bikeflow_refresh_interval_seconds",
			Help: "Dataset refresh interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.DatasetLoads, c.DatasetStations, c.DatasetTrips, c.TripsSkipped, c.LoadDuration,
		c.TrafficQueries, c.QueryDuration, c.CacheHits, c.CacheMisses,
		c.WSClients, c.WSSnapshots, c.RateLimited,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.RefreshIntervalS,
	)

	c.RefreshIntervalS.Set(refreshInterval.Seconds())

	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	logger.Info("metrics listening", "addr", addr)
	return srv
}

// The methods below adapt the collector to the narrow interfaces other
// packages accept. All are nil-safe.

func (c *Collector) CacheHit(layer string) {
	if c != nil {
		c.CacheHits.WithLabelValues(layer).Inc()
	}
}

func (c *Collector) CacheMiss() {
	if c != nil {
		c.CacheMisses.Inc()
	}
}

func (c *Collector) LoadSucceeded(stations, trips, skipped int, d time.Duration) {
	if c == nil {
		return
	}
	c.DatasetLoads.WithLabelValues("success").Inc()
	c.DatasetStations.Set(float64(stations))
	c.DatasetTrips.Set(float64(trips))
	c.TripsSkipped.Add(float64(skipped))
	c.LoadDuration.Observe(d.Seconds())
}

func (c *Collector) LoadFailed() {
	if c != nil {
		c.DatasetLoads.WithLabelValues("failure").Inc()
	}
}

func (c *Collector) ObserveQuery(timeFilter int, d time.Duration) {
	if c == nil {
		return
	}
	kind := "window"
	if timeFilter < 0 {
		kind = "any"
	}
	c.TrafficQueries.WithLabelValues(kind).Inc()
	c.QueryDuration.Observe(d.Seconds())
}

func (c *Collector) ClientConnected()    { c.addClients(1) }
func (c *Collector) ClientDisconnected() { c.addClients(-1) }

func (c *Collector) addClients(n float64) {
	if c != nil {
		c.WSClients.Add(n)
	}
}

func (c *Collector) SnapshotSent() {
	if c != nil {
		c.WSSnapshots.Inc()
	}
}

func (c *Collector) RateLimitBlocked() {
	if c != nil {
		c.RateLimited.Inc()
	}
}

func (c *Collector) NATSPublishedInc() {
	if c != nil {
		c.NATSPublished.Inc()
	}
}

func (c *Collector) NATSPublishErrInc() {
	if c != nil {
		c.NATSPublishErrs.Inc()
	}
}

func (c *Collector) NATSSetConnected(connected bool) {
	if c == nil {
		return
	}
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}
