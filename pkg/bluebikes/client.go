// Package bluebikes fetches bike-share station metadata and trip history.
package bluebikes

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"bikeflow/internal/domain"
	"bikeflow/internal/traffic"
)

const userAgent = "bikeflow/1.0"

var requiredTripColumns = []string{"started_at", "ended_at", "start_station_id", "end_station_id"}

// Timestamp layouts accepted in the trip CSV.
var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

type Client struct {
	stationsURL string
	tripsURL    string
	location    *time.Location
	httpClient  *http.Client
	logger      *slog.Logger
}

func New(stationsURL, tripsURL string, location *time.Location, timeout time.Duration, logger *slog.Logger) *Client {
	if location == nil {
		location = time.Local
	}
	return &Client{
		stationsURL: stationsURL,
		tripsURL:    tripsURL,
		location:    location,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger.With("component", "bluebikes_client"),
	}
}

type stationsDocument struct {
	Data struct {
		Stations []apiStation `json:"stations"`
	} `json:"data"`
}

type apiStation struct {
	ShortName string      `json:"short_name"`
	StationID string      `json:"station_id"`
	Name      string      `json:"name"`
	Capacity  json.Number `json:"capacity"`
	Lon       json.Number `json:"lon"`
	Lat       json.Number `json:"lat"`
}

// FetchStations downloads the station document. Records without a short_name
// or with unusable coordinates are dropped, as are repeats of a short_name
// already seen; the first record wins.
func (c *Client) FetchStations(ctx context.Context) ([]*domain.Station, error) {
	start := time.Now()

	body, err := c.get(ctx, c.stationsURL, "application/json")
	if err != nil {
		return nil, fmt.Errorf("fetch stations: %w", err)
	}
	defer body.Close()

	var doc stationsDocument
	if err := json.NewDecoder(body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding stations: %w", err)
	}

	stations := make([]*domain.Station, 0, len(doc.Data.Stations))
	seen := make(map[string]struct{}, len(doc.Data.Stations))
	dropped, duplicates := 0, 0
	for _, s := range doc.Data.Stations {
		st, ok := s.toDomain()
		if !ok {
			dropped++
			continue
		}
		if _, dup := seen[st.ShortName]; dup {
			duplicates++
			c.logger.Warn("duplicate station short_name", "short_name", st.ShortName, "name", st.Name)
			continue
		}
		seen[st.ShortName] = struct{}{}
		stations = append(stations, st)
	}

	c.logger.Info("fetched stations",
		"count", len(stations),
		"dropped", dropped,
		"duplicates", duplicates,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return stations, nil
}

func (s apiStation) toDomain() (*domain.Station, bool) {
	if s.ShortName == "" {
		return nil, false
	}
	lon, err := s.Lon.Float64()
	if err != nil {
		return nil, false
	}
	lat, err := s.Lat.Float64()
	if err != nil {
		return nil, false
	}
	capacity, _ := s.Capacity.Int64()
	return &domain.Station{
		ShortName: s.ShortName,
		StationID: s.StationID,
		Name:      s.Name,
		Capacity:  int(capacity),
		Lon:       lon,
		Lat:       lat,
	}, true
}

// TripsResult is the decoded trip CSV.
type TripsResult struct {
	Trips   []*domain.Trip
	Skipped int
}

// FetchTrips downloads and decodes the trip CSV. Rows whose timestamps cannot
// be parsed are skipped and counted.
func (c *Client) FetchTrips(ctx context.Context) (*TripsResult, error) {
	start := time.Now()

	body, err := c.get(ctx, c.tripsURL, "text/csv")
	if err != nil {
		return nil, fmt.Errorf("fetch trips: %w", err)
	}
	defer body.Close()

	result, err := ParseTrips(body, c.location)
	if err != nil {
		return nil, fmt.Errorf("decoding trips: %w", err)
	}

	c.logger.Info("fetched trips",
		"count", len(result.Trips),
		"skipped", result.Skipped,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// ParseTrips reads a trip CSV with a header row. Timestamps without an offset
// are interpreted in loc; minutes of day are computed in loc.
func ParseTrips(r io.Reader, loc *time.Location) (*TripsResult, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty trip file")
		}
		return nil, err
	}
	idx := makeIndex(header)
	for _, col := range requiredTripColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	result := &TripsResult{}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		startedAt, err := parseTimestamp(getField(record, idx, "started_at"), loc)
		if err != nil {
			result.Skipped++
			continue
		}
		endedAt, err := parseTimestamp(getField(record, idx, "ended_at"), loc)
		if err != nil {
			result.Skipped++
			continue
		}

		result.Trips = append(result.Trips, &domain.Trip{
			RideID:         getField(record, idx, "ride_id"),
			RideableType:   getField(record, idx, "rideable_type"),
			StartedAt:      startedAt,
			EndedAt:        endedAt,
			StartStationID: getField(record, idx, "start_station_id"),
			EndStationID:   getField(record, idx, "end_station_id"),
			StartMinute:    traffic.MinutesSinceMidnight(startedAt),
			EndMinute:      traffic.MinutesSinceMidnight(endedAt),
		})
	}
	return result, nil
}

func parseTimestamp(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t.In(loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", v)
}

func (c *Client) get(ctx context.Context, url, accept string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)

	c.logger.Debug("sending HTTP request", "method", req.Method, "url", url)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func makeIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	return idx
}

func getField(record []string, idx map[string]int, field string) string {
	if i, ok := idx[field]; ok && i < len(record) {
		return record[i]
	}
	return ""
}
