package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/bluele/gcache"

	"bikeflow/internal/store"
)

// Remote is a shared second-level cache.
type Remote interface {
	PutJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	Evict(ctx context.Context, pattern string) (int, error)
}

// Metrics receives cache lookup outcomes.
type Metrics interface {
	CacheHit(layer string)
	CacheMiss()
}

// Source computes traffic snapshots; *store.Store satisfies it.
type Source interface {
	Version() string
	Traffic(timeFilter int) (*store.Snapshot, error)
}

// TrafficCache keeps computed snapshots per dataset version and filter in a
// local LRU, backed by an optional remote cache.
type TrafficCache struct {
	local   gcache.Cache
	remote  Remote
	ttl     time.Duration
	metrics Metrics
	logger  *slog.Logger
}

// NewTrafficCache builds the cache. remote and metrics may be nil.
func NewTrafficCache(size int, ttl time.Duration, remote Remote, metrics Metrics, logger *slog.Logger) *TrafficCache {
	return &TrafficCache{
		local: gcache.New(size).
			LRU().
			Expiration(ttl).
			Build(),
		remote:  remote,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger.With("component", "traffic_cache"),
	}
}

// Traffic returns the snapshot for the filter, computing and storing it on a
// miss. Cache failures fall back to computing.
func (c *TrafficCache) Traffic(ctx context.Context, src Source, timeFilter int) (*store.Snapshot, error) {
	if version := src.Version(); version != "" {
		if snap, ok := c.get(ctx, version, timeFilter); ok {
			return snap, nil
		}
	}
	if c.metrics != nil {
		c.metrics.CacheMiss()
	}

	snap, err := src.Traffic(timeFilter)
	if err != nil {
		return nil, err
	}
	if snap.Version != "" {
		c.put(ctx, snap)
	}
	return snap, nil
}

func (c *TrafficCache) get(ctx context.Context, version string, timeFilter int) (*store.Snapshot, bool) {
	key := KeyTraffic(version, timeFilter)

	if v, err := c.local.Get(key); err == nil {
		if snap, ok := v.(*store.Snapshot); ok {
			c.hit("local")
			return snap.Clone(), true
		}
	}

	if c.remote == nil {
		return nil, false
	}
	var snap store.Snapshot
	found, err := c.remote.GetJSON(ctx, key, &snap)
	if err != nil {
		c.logger.Warn("remote cache get failed", "key", key, "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	c.hit("remote")
	_ = c.local.Set(key, snap.Clone())
	return &snap, true
}

func (c *TrafficCache) put(ctx context.Context, snap *store.Snapshot) {
	key := KeyTraffic(snap.Version, snap.Filter)
	if err := c.local.Set(key, snap.Clone()); err != nil {
		c.logger.Debug("local cache set failed", "key", key, "error", err)
	}
	if c.remote == nil {
		return
	}
	if err := c.remote.PutJSON(ctx, key, snap, c.ttl); err != nil {
		c.logger.Warn("remote cache set failed", "key", key, "error", err)
	}
}

func (c *TrafficCache) hit(layer string) {
	if c.metrics != nil {
		c.metrics.CacheHit(layer)
	}
}

// Invalidate drops local entries and remote entries of a replaced version.
func (c *TrafficCache) Invalidate(ctx context.Context, oldVersion string) {
	c.local.Purge()
	if c.remote == nil || oldVersion == "" {
		return
	}
	removed, err := c.remote.Evict(ctx, KeyTrafficVersion(oldVersion))
	if err != nil {
		c.logger.Warn("remote cache eviction failed", "version", oldVersion, "error", err)
		return
	}
	c.logger.Info("evicted stale traffic entries", "version", oldVersion, "removed", removed)
}

// Len is the number of local entries.
func (c *TrafficCache) Len() int {
	return c.local.Len(false)
}
