package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"bikeflow/internal/domain"
	"bikeflow/internal/geo"
	"bikeflow/internal/traffic"
)

// Store holds the dataset currently in service. A dataset is replaced as a
// whole by Update; queries work on copies of its stations.
type Store struct {
	mu         sync.RWMutex
	stations   []*domain.Station
	byID       map[string]int
	byTile     map[string][]int
	index      *geo.StationIndex
	aggregator *traffic.Aggregator
	domainMax  int
	version    string
	lastUpdate time.Time

	zoomLevel int
}

func New(zoomLevel int) *Store {
	return &Store{
		byID:      make(map[string]int),
		byTile:    make(map[string][]int),
		index:     geo.NewStationIndex(nil),
		zoomLevel: zoomLevel,
	}
}

// Update installs a new dataset and returns its version. The radius domain is
// fixed here from the unfiltered totals. When two stations share a ShortName,
// lookups by ID resolve to the first.
func (s *Store) Update(stations []*domain.Station, agg *traffic.Aggregator) (string, error) {
	installed := make([]*domain.Station, len(stations))
	byID := make(map[string]int, len(stations))
	byTile := make(map[string][]int)
	for i, st := range stations {
		cp := *st
		cp.TileID = geo.TileID(cp.Lat, cp.Lon, s.zoomLevel)
		installed[i] = &cp
		if _, dup := byID[cp.ShortName]; !dup {
			byID[cp.ShortName] = i
		}
		byTile[cp.TileID] = append(byTile[cp.TileID], i)
	}

	if _, err := agg.ComputeStationTraffic(installed, traffic.NoFilter); err != nil {
		return "", fmt.Errorf("compute unfiltered traffic: %w", err)
	}
	domainMax := traffic.MaxTotalTraffic(installed)
	index := geo.NewStationIndex(installed)
	version := uuid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stations = installed
	s.byID = byID
	s.byTile = byTile
	s.index = index
	s.aggregator = agg
	s.domainMax = domainMax
	s.version = version
	s.lastUpdate = time.Now()

	return version, nil
}

// Snapshot is the result of one traffic query.
type Snapshot struct {
	Version  string              `json:"version"`
	Filter   int                 `json:"filter"`
	Scale    traffic.RadiusScale `json:"scale"`
	Stations []*domain.Station   `json:"stations"`
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() *Snapshot {
	cp := *s
	cp.Stations = copyStations(s.Stations, nil)
	return &cp
}

// Traffic returns every station with traffic for the filter, in load order.
func (s *Store) Traffic(timeFilter int) (*Snapshot, error) {
	return s.query(timeFilter, nil)
}

// Station returns one station with traffic for the filter.
func (s *Store) Station(id string, timeFilter int) (*domain.Station, bool, error) {
	snap, err := s.query(timeFilter, func() []int {
		if i, ok := s.byID[id]; ok {
			return []int{i}
		}
		return []int{}
	})
	if err != nil || len(snap.Stations) == 0 {
		return nil, false, err
	}
	return snap.Stations[0], true, nil
}

// StationsInBounds returns the stations inside bbox, in load order.
func (s *Store) StationsInBounds(bbox domain.BoundingBox, timeFilter int) (*Snapshot, error) {
	return s.query(timeFilter, func() []int {
		return sortedUnique(s.index.Search(bbox))
	})
}

// StationsInTiles returns the stations located in any of the tiles.
func (s *Store) StationsInTiles(tileIDs []string, timeFilter int) (*Snapshot, error) {
	return s.query(timeFilter, func() []int {
		var positions []int
		for _, id := range tileIDs {
			positions = append(positions, s.byTile[id]...)
		}
		return sortedUnique(positions)
	})
}

// query copies the stations chosen by pick under the read lock and tallies
// them outside it. A nil pick selects every station.
func (s *Store) query(timeFilter int, pick func() []int) (*Snapshot, error) {
	if !traffic.ValidTimeFilter(timeFilter) {
		return nil, fmt.Errorf("query traffic for %d: %w", timeFilter, traffic.ErrInvalidTimeFilter)
	}

	s.mu.RLock()
	var positions []int
	if pick != nil {
		positions = pick()
	}
	selected := copyStations(s.stations, positions)
	agg := s.aggregator
	snap := &Snapshot{
		Version: s.version,
		Filter:  timeFilter,
		Scale:   traffic.NewRadiusScale(s.domainMax, timeFilter),
	}
	s.mu.RUnlock()

	if agg != nil {
		if _, err := agg.ComputeStationTraffic(selected, timeFilter); err != nil {
			return nil, err
		}
	}
	snap.Stations = selected
	return snap, nil
}

func copyStations(src []*domain.Station, positions []int) []*domain.Station {
	if positions == nil {
		out := make([]*domain.Station, len(src))
		for i, st := range src {
			cp := *st
			out[i] = &cp
		}
		return out
	}
	out := make([]*domain.Station, 0, len(positions))
	for _, i := range positions {
		cp := *src[i]
		out = append(out, &cp)
	}
	return out
}

func sortedUnique(positions []int) []int {
	if len(positions) == 0 {
		return []int{}
	}
	seen := make(map[int]struct{}, len(positions))
	out := make([]int, 0, len(positions))
	for _, p := range positions {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// RadiusScale returns the marker scale for the filter over the current
// dataset's domain.
func (s *Store) RadiusScale(timeFilter int) traffic.RadiusScale {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return traffic.NewRadiusScale(s.domainMax, timeFilter)
}

// ZoomLevel is the tile zoom station tile IDs are computed at.
func (s *Store) ZoomLevel() int {
	return s.zoomLevel
}

func (s *Store) Version() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stations)
}

type Stats struct {
	Stations   int       `json:"stations"`
	Trips      int       `json:"trips"`
	Tiles      int       `json:"tiles"`
	MaxTraffic int       `json:"max_traffic"`
	Version    string    `json:"version"`
	LastUpdate time.Time `json:"last_update"`
	IsLoaded   bool      `json:"is_loaded"`
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trips := 0
	if s.aggregator != nil {
		trips = s.aggregator.TripCount()
	}
	return Stats{
		Stations:   len(s.stations),
		Trips:      trips,
		Tiles:      len(s.byTile),
		MaxTraffic: s.domainMax,
		Version:    s.version,
		LastUpdate: s.lastUpdate,
		IsLoaded:   !s.lastUpdate.IsZero(),
	}
}
