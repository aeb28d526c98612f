package store

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bikeflow/internal/domain"
	"bikeflow/internal/geo"
	"bikeflow/internal/traffic"
)

func loadedStore(t *testing.T) *Store {
	t.Helper()
	stations := []*domain.Station{
		{ShortName: "A", Lat: 42.3601, Lon: -71.0942},
		{ShortName: "B", Lat: 42.3505, Lon: -71.0775},
		{ShortName: "C", Lat: 40.7128, Lon: -74.0060},
	}
	trips := []*domain.Trip{
		{StartStationID: "A", EndStationID: "B", StartMinute: 700, EndMinute: 715},
		{StartStationID: "A", EndStationID: "B", StartMinute: 100, EndMinute: 110},
		{StartStationID: "B", EndStationID: "A", StartMinute: 730, EndMinute: 745},
		{StartStationID: "A", EndStationID: "A", StartMinute: 1430, EndMinute: 5},
	}
	agg, err := traffic.NewAggregator(trips)
	require.NoError(t, err)

	s := New(14)
	version, err := s.Update(stations, agg)
	require.NoError(t, err)
	require.NotEmpty(t, version)
	return s
}

func totals(stations []*domain.Station) map[string]int {
	out := make(map[string]int, len(stations))
	for _, st := range stations {
		out[st.ShortName] = st.TotalTraffic
	}
	return out
}

func TestStoreEmptyBeforeUpdate(t *testing.T) {
	s := New(14)

	snap, err := s.Traffic(traffic.NoFilter)
	require.NoError(t, err)
	assert.Empty(t, snap.Stations)
	assert.False(t, s.Stats().IsLoaded)
	assert.Empty(t, s.Version())
}

func TestStoreTraffic(t *testing.T) {
	s := loadedStore(t)

	all, err := s.Traffic(traffic.NoFilter)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 5, "B": 3, "C": 0}, totals(all.Stations))
	assert.Equal(t, []string{"A", "B", "C"}, []string{all.Stations[0].ShortName, all.Stations[1].ShortName, all.Stations[2].ShortName})
	assert.Equal(t, s.Version(), all.Version)

	noon, err := s.Traffic(720)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 2, "B": 2, "C": 0}, totals(noon.Stations))

	midnight, err := s.Traffic(0)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"A": 2, "B": 0, "C": 0}, totals(midnight.Stations))
}

func TestStoreRadiusDomainFixedFromUnfilteredTotals(t *testing.T) {
	s := loadedStore(t)

	snap, err := s.Traffic(720)
	require.NoError(t, err)
	assert.Equal(t, 5.0, snap.Scale.DomainMax)
	assert.Equal(t, traffic.FilteredRange[1], snap.Scale.RangeMax)
	assert.Equal(t, 5, s.Stats().MaxTraffic)
}

func TestStoreQueriesDoNotShareState(t *testing.T) {
	s := loadedStore(t)

	first, err := s.Traffic(720)
	require.NoError(t, err)
	first.Stations[0].TotalTraffic = 999

	second, err := s.Traffic(720)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Stations[0].TotalTraffic)
}

func TestStoreStation(t *testing.T) {
	s := loadedStore(t)

	st, ok, err := s.Station("B", traffic.NoFilter)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, st.Departures)
	assert.Equal(t, 2, st.Arrivals)
	assert.Equal(t, geo.TileID(42.3505, -71.0775, 14), st.TileID)

	_, ok, err = s.Station("nope", traffic.NoFilter)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreStationDuplicateIDResolvesToFirst(t *testing.T) {
	stations := []*domain.Station{
		{ShortName: "A", Name: "first", Lat: 42.36, Lon: -71.09},
		{ShortName: "A", Name: "second", Lat: 42.30, Lon: -71.00},
	}
	agg, err := traffic.NewAggregator(nil)
	require.NoError(t, err)
	s := New(14)
	_, err = s.Update(stations, agg)
	require.NoError(t, err)

	st, ok, err := s.Station("A", traffic.NoFilter)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first", st.Name)
}

func TestStoreRejectsInvalidFilter(t *testing.T) {
	s := loadedStore(t)

	_, err := s.Traffic(-5)
	assert.ErrorIs(t, err, traffic.ErrInvalidTimeFilter)

	_, _, err = s.Station("A", 1440)
	assert.ErrorIs(t, err, traffic.ErrInvalidTimeFilter)
}

func TestStoreStationsInBounds(t *testing.T) {
	s := loadedStore(t)

	snap, err := s.StationsInBounds(domain.BoundingBox{MinLat: 42.3, MaxLat: 42.4, MinLon: -71.2, MaxLon: -71.0}, traffic.NoFilter)
	require.NoError(t, err)
	require.Len(t, snap.Stations, 2)
	assert.Equal(t, "A", snap.Stations[0].ShortName)
	assert.Equal(t, "B", snap.Stations[1].ShortName)
	assert.Equal(t, 5, snap.Stations[0].TotalTraffic)

	empty, err := s.StationsInBounds(domain.BoundingBox{MinLat: 0, MaxLat: 1, MinLon: 0, MaxLon: 1}, traffic.NoFilter)
	require.NoError(t, err)
	assert.Empty(t, empty.Stations)
}

func TestStoreStationsInTiles(t *testing.T) {
	s := loadedStore(t)
	tileA := geo.TileID(42.3601, -71.0942, 14)
	tileC := geo.TileID(40.7128, -74.0060, 14)

	snap, err := s.StationsInTiles([]string{tileC, tileA, tileA}, 720)
	require.NoError(t, err)
	require.Len(t, snap.Stations, 2)
	assert.Equal(t, "A", snap.Stations[0].ShortName)
	assert.Equal(t, "C", snap.Stations[1].ShortName)
}

func TestStoreUpdateReplacesDataset(t *testing.T) {
	s := loadedStore(t)
	before := s.Version()

	agg, err := traffic.NewAggregator(nil)
	require.NoError(t, err)
	after, err := s.Update([]*domain.Station{{ShortName: "Z", Lat: 1, Lon: 1}}, agg)
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
	stats := s.Stats()
	assert.Equal(t, 1, stats.Stations)
	assert.Equal(t, 0, stats.Trips)
	_, ok, _ := s.Station("A", traffic.NoFilter)
	assert.False(t, ok)
}

func TestStoreConcurrentQueries(t *testing.T) {
	s := loadedStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(filter int) {
			defer wg.Done()
			snap, err := s.Traffic(filter)
			assert.NoError(t, err)
			assert.Len(t, snap.Stations, 3)
		}(i * 90)
	}
	wg.Wait()
}
