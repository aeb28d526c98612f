// Package traffic tallies per-station arrivals and departures from trips
// bucketed by minute of day.
package traffic

import (
	"errors"
	"fmt"

	"bikeflow/internal/domain"
)

const (
	// MinutesPerDay is the number of buckets in each bucket array.
	MinutesPerDay = 1440

	// NoFilter selects every bucket.
	NoFilter = -1

	// WindowMinutes is the half-width of a filtered window.
	WindowMinutes = 60
)

var (
	ErrInvalidTimeFilter = errors.New("time filter must be -1 or a minute in [0, 1440)")
	ErrMinuteOutOfRange  = errors.New("trip minute outside [0, 1440)")
)

// Buckets holds one slot per minute of the day.
type Buckets [MinutesPerDay][]*domain.Trip

// Size returns the number of trips across all slots.
func (b *Buckets) Size() int {
	n := 0
	for i := range b {
		n += len(b[i])
	}
	return n
}

// ValidTimeFilter reports whether minute is NoFilter or a minute of the day.
func ValidTimeFilter(minute int) bool {
	return minute == NoFilter || (minute >= 0 && minute < MinutesPerDay)
}

// BuildBuckets places every trip in the departure slot of its start minute and
// the arrival slot of its end minute.
func BuildBuckets(trips []*domain.Trip) (departures, arrivals *Buckets, err error) {
	departures, arrivals = &Buckets{}, &Buckets{}
	for _, t := range trips {
		if t.StartMinute < 0 || t.StartMinute >= MinutesPerDay {
			return nil, nil, fmt.Errorf("trip %q start minute %d: %w", t.RideID, t.StartMinute, ErrMinuteOutOfRange)
		}
		if t.EndMinute < 0 || t.EndMinute >= MinutesPerDay {
			return nil, nil, fmt.Errorf("trip %q end minute %d: %w", t.RideID, t.EndMinute, ErrMinuteOutOfRange)
		}
		departures[t.StartMinute] = append(departures[t.StartMinute], t)
		arrivals[t.EndMinute] = append(arrivals[t.EndMinute], t)
	}
	return departures, arrivals, nil
}

// FilterByMinute flattens the buckets selected by minute. NoFilter selects all
// of them. Otherwise the window is the half-open index range
// [minute-60, minute+60) taken modulo a day, so the upper boundary minute is
// excluded and a window crossing midnight yields the late buckets first.
// An invalid minute selects nothing.
func FilterByMinute(buckets *Buckets, minute int) []*domain.Trip {
	if !ValidTimeFilter(minute) {
		return nil
	}
	if minute == NoFilter {
		return flatten(buckets[:], buckets.Size())
	}

	minMinute := (minute - WindowMinutes + MinutesPerDay) % MinutesPerDay
	maxMinute := (minute + WindowMinutes) % MinutesPerDay

	if minMinute > maxMinute {
		late, early := buckets[minMinute:], buckets[:maxMinute]
		out := flatten(late, count(late)+count(early))
		for _, b := range early {
			out = append(out, b...)
		}
		return out
	}
	window := buckets[minMinute:maxMinute]
	return flatten(window, count(window))
}

func count(slots [][]*domain.Trip) int {
	n := 0
	for _, s := range slots {
		n += len(s)
	}
	return n
}

func flatten(slots [][]*domain.Trip, size int) []*domain.Trip {
	out := make([]*domain.Trip, 0, size)
	for _, s := range slots {
		out = append(out, s...)
	}
	return out
}

// Aggregator owns the bucket arrays of one dataset load. It is immutable after
// construction and safe for concurrent use.
type Aggregator struct {
	departures *Buckets
	arrivals   *Buckets
	trips      int
}

func NewAggregator(trips []*domain.Trip) (*Aggregator, error) {
	departures, arrivals, err := BuildBuckets(trips)
	if err != nil {
		return nil, err
	}
	return &Aggregator{
		departures: departures,
		arrivals:   arrivals,
		trips:      len(trips),
	}, nil
}

// TripCount returns the number of trips bucketed.
func (a *Aggregator) TripCount() int {
	return a.trips
}

// Departures returns the trips that started inside the window.
func (a *Aggregator) Departures(timeFilter int) []*domain.Trip {
	return FilterByMinute(a.departures, timeFilter)
}

// Arrivals returns the trips that ended inside the window.
func (a *Aggregator) Arrivals(timeFilter int) []*domain.Trip {
	return FilterByMinute(a.arrivals, timeFilter)
}

// ComputeStationTraffic overwrites Arrivals, Departures and TotalTraffic on
// each station for the given filter and returns the same slice. Stations with
// no trips in the window get zeros.
func (a *Aggregator) ComputeStationTraffic(stations []*domain.Station, timeFilter int) ([]*domain.Station, error) {
	if !ValidTimeFilter(timeFilter) {
		return nil, fmt.Errorf("compute traffic for %d: %w", timeFilter, ErrInvalidTimeFilter)
	}

	departures := rollup(a.Departures(timeFilter), func(t *domain.Trip) string { return t.StartStationID })
	arrivals := rollup(a.Arrivals(timeFilter), func(t *domain.Trip) string { return t.EndStationID })

	for _, s := range stations {
		s.Arrivals = arrivals[s.ShortName]
		s.Departures = departures[s.ShortName]
		s.TotalTraffic = s.Arrivals + s.Departures
	}
	return stations, nil
}

func rollup(trips []*domain.Trip, key func(*domain.Trip) string) map[string]int {
	counts := make(map[string]int)
	for _, t := range trips {
		counts[key(t)]++
	}
	return counts
}

// MaxTotalTraffic returns the largest TotalTraffic among stations.
func MaxTotalTraffic(stations []*domain.Station) int {
	max := 0
	for _, s := range stations {
		if s.TotalTraffic > max {
			max = s.TotalTraffic
		}
	}
	return max
}
