package domain

import "fmt"

// Station is a bike-share dock. ShortName is the identifier trips refer to.
// Arrivals, Departures and TotalTraffic are derived and overwritten on every
// traffic query.
type Station struct {
	ShortName string  `json:"short_name"`
	StationID string  `json:"station_id,omitempty"`
	Name      string  `json:"name,omitempty"`
	Capacity  int     `json:"capacity,omitempty"`
	Lon       float64 `json:"lon"`
	Lat       float64 `json:"lat"`
	TileID    string  `json:"tileId,omitempty"`

	Arrivals     int `json:"arrivals"`
	Departures   int `json:"departures"`
	TotalTraffic int `json:"totalTraffic"`
}

// Summary is the marker tooltip text.
func (s *Station) Summary() string {
	return fmt.Sprintf("%d trips (%d departures, %d arrivals)", s.TotalTraffic, s.Departures, s.Arrivals)
}

// Marker is a station placed on a viewport.
type Marker struct {
	*Station
	CX     float64 `json:"cx"`
	CY     float64 `json:"cy"`
	Radius float64 `json:"r"`
	Title  string  `json:"title"`
}

// BoundingBox represents a geographic rectangle
type BoundingBox struct {
	MinLat float64 `json:"minLat"`
	MaxLat float64 `json:"maxLat"`
	MinLon float64 `json:"minLon"`
	MaxLon float64 `json:"maxLon"`
}

// Contains checks if a point is within the bounding box
func (bb *BoundingBox) Contains(lat, lon float64) bool {
	return lat >= bb.MinLat && lat <= bb.MaxLat &&
		lon >= bb.MinLon && lon <= bb.MaxLon
}
