package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bikeflow/internal/domain"
	"bikeflow/internal/store"
	"bikeflow/internal/traffic"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSource struct {
	mu      sync.Mutex
	version string
	calls   map[int]int
}

func newFakeSource(version string) *fakeSource {
	return &fakeSource{version: version, calls: make(map[int]int)}
}

func (s *fakeSource) Version() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *fakeSource) Traffic(timeFilter int) (*store.Snapshot, error) {
	if !traffic.ValidTimeFilter(timeFilter) {
		return nil, traffic.ErrInvalidTimeFilter
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[timeFilter]++
	return &store.Snapshot{
		Version:  s.version,
		Filter:   timeFilter,
		Stations: []*domain.Station{{ShortName: "A", TotalTraffic: timeFilter + 2}},
	}, nil
}

func (s *fakeSource) callCount(f int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[f]
}

type fakeRemote struct {
	mu      sync.Mutex
	data    map[string]*store.Snapshot
	evicted []string
	failGet bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{data: make(map[string]*store.Snapshot)}
}

func (r *fakeRemote) PutJSON(_ context.Context, key string, value any, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[key] = value.(*store.Snapshot).Clone()
	return nil
}

func (r *fakeRemote) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failGet {
		return false, errors.New("connection refused")
	}
	snap, ok := r.data[key]
	if !ok {
		return false, nil
	}
	*dest.(*store.Snapshot) = *snap.Clone()
	return true, nil
}

func (r *fakeRemote) Evict(_ context.Context, pattern string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evicted = append(r.evicted, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	n := 0
	for k := range r.data {
		if strings.HasPrefix(k, prefix) {
			delete(r.data, k)
			n++
		}
	}
	return n, nil
}

type countingMetrics struct {
	hits   map[string]int
	misses int
}

func (m *countingMetrics) CacheHit(layer string) { m.hits[layer]++ }
func (m *countingMetrics) CacheMiss()            { m.misses++ }

func TestTrafficCacheLocalHit(t *testing.T) {
	src := newFakeSource("v1")
	m := &countingMetrics{hits: map[string]int{}}
	c := NewTrafficCache(8, time.Minute, nil, m, testLogger())
	ctx := context.Background()

	first, err := c.Traffic(ctx, src, 720)
	require.NoError(t, err)
	second, err := c.Traffic(ctx, src, 720)
	require.NoError(t, err)

	assert.Equal(t, 1, src.callCount(720))
	assert.Equal(t, first.Stations[0].TotalTraffic, second.Stations[0].TotalTraffic)
	assert.Equal(t, 1, m.misses)
	assert.Equal(t, 1, m.hits["local"])
	assert.Equal(t, 1, c.Len())
}

func TestTrafficCacheReturnsCopies(t *testing.T) {
	src := newFakeSource("v1")
	c := NewTrafficCache(8, time.Minute, nil, nil, testLogger())
	ctx := context.Background()

	first, err := c.Traffic(ctx, src, 60)
	require.NoError(t, err)
	first.Stations[0].TotalTraffic = -1

	second, err := c.Traffic(ctx, src, 60)
	require.NoError(t, err)
	assert.Equal(t, 62, second.Stations[0].TotalTraffic)
}

func TestTrafficCacheRemoteHitFillsLocal(t *testing.T) {
	src := newFakeSource("v1")
	remote := newFakeRemote()
	m := &countingMetrics{hits: map[string]int{}}
	ctx := context.Background()

	warm := NewTrafficCache(8, time.Minute, remote, nil, testLogger())
	_, err := warm.Traffic(ctx, src, 0)
	require.NoError(t, err)
	require.Contains(t, remote.data, KeyTraffic("v1", 0))

	cold := NewTrafficCache(8, time.Minute, remote, m, testLogger())
	_, err = cold.Traffic(ctx, src, 0)
	require.NoError(t, err)
	_, err = cold.Traffic(ctx, src, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, src.callCount(0))
	assert.Equal(t, 1, m.hits["remote"])
	assert.Equal(t, 1, m.hits["local"])
}

func TestTrafficCacheRemoteFailureFallsBack(t *testing.T) {
	src := newFakeSource("v1")
	remote := newFakeRemote()
	remote.failGet = true
	c := NewTrafficCache(8, time.Minute, remote, nil, testLogger())

	snap, err := c.Traffic(context.Background(), src, 120)
	require.NoError(t, err)
	assert.Equal(t, 122, snap.Stations[0].TotalTraffic)
}

func TestTrafficCachePropagatesSourceErrors(t *testing.T) {
	c := NewTrafficCache(8, time.Minute, nil, nil, testLogger())

	_, err := c.Traffic(context.Background(), newFakeSource("v1"), 5000)
	assert.ErrorIs(t, err, traffic.ErrInvalidTimeFilter)
}

func TestTrafficCacheSkipsUnloadedDataset(t *testing.T) {
	src := newFakeSource("")
	c := NewTrafficCache(8, time.Minute, nil, nil, testLogger())

	_, err := c.Traffic(context.Background(), src, traffic.NoFilter)
	require.NoError(t, err)
	assert.Zero(t, c.Len())
}

func TestWarmFilters(t *testing.T) {
	filters := WarmFilters()
	require.Len(t, filters, 25)
	assert.Equal(t, traffic.NoFilter, filters[0])
	assert.Equal(t, 0, filters[1])
	assert.Equal(t, 1380, filters[24])
}

func TestCacheWarmerWarmsAndInvalidates(t *testing.T) {
	src := newFakeSource("v1")
	remote := newFakeRemote()
	c := NewTrafficCache(64, time.Minute, remote, nil, testLogger())
	w := NewCacheWarmer(c, src, testLogger())
	ctx := context.Background()

	require.NoError(t, w.WarmAll(ctx))
	assert.Equal(t, 25, c.Len())
	for _, f := range WarmFilters() {
		assert.Equal(t, 1, src.callCount(f))
	}

	src.mu.Lock()
	src.version = "v2"
	src.mu.Unlock()

	require.NoError(t, w.WarmAll(ctx))
	assert.Equal(t, []string{KeyTrafficVersion("v1")}, remote.evicted)
	for k := range remote.data {
		assert.True(t, strings.HasPrefix(k, "traffic:v2:"), k)
	}
	assert.Equal(t, 25, c.Len())
}
