package domain

import "time"

// Trip is a single rental. StartMinute and EndMinute are minutes since
// midnight in [0, 1440), derived from the timestamps when the trip is loaded.
type Trip struct {
	RideID         string    `json:"ride_id,omitempty"`
	RideableType   string    `json:"rideable_type,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
	StartStationID string    `json:"start_station_id"`
	EndStationID   string    `json:"end_station_id"`
	StartMinute    int       `json:"start_minute"`
	EndMinute      int       `json:"end_minute"`
}

// Overlay is a static GeoJSON line layer drawn under the station markers.
type Overlay struct {
	ID          string  `json:"id" yaml:"id"`
	Source      string  `json:"source" yaml:"source"`
	LineColor   string  `json:"lineColor" yaml:"line_color"`
	LineWidth   float64 `json:"lineWidth" yaml:"line_width"`
	LineOpacity float64 `json:"lineOpacity" yaml:"line_opacity"`
}
