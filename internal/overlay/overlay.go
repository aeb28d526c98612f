// Package overlay defines the bike-lane line layers drawn beneath the
// station markers.
package overlay

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"bikeflow/internal/domain"
)

const (
	BostonLanesURL    = "https://bostonopendata-boston.opendata.arcgis.com/datasets/boston::existing-bike-network-2022.geojson"
	CambridgeLanesURL = "https://raw.githubusercontent.com/cambridgegis/cambridgegis_data/main/Recreation/Bike_Facilities/RECREATION_BikeFacilities.geojson"
)

// Defaults returns the Boston and Cambridge bike-lane layers.
func Defaults() []domain.Overlay {
	return []domain.Overlay{
		{ID: "bike-lanes-boston", Source: BostonLanesURL, LineColor: "green", LineWidth: 3, LineOpacity: 0.4},
		{ID: "bike-lanes-cambridge", Source: CambridgeLanesURL, LineColor: "green", LineWidth: 3, LineOpacity: 0.4},
	}
}

type file struct {
	Overlays []domain.Overlay `yaml:"overlays"`
}

// Load returns the layers in path, or Defaults when path is empty.
func Load(path string) ([]domain.Overlay, error) {
	if path == "" {
		return Defaults(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open overlays: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads an overlays document. Missing styling falls back to the
// default line style.
func Decode(r io.Reader) ([]domain.Overlay, error) {
	var doc file
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode overlays: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.Overlays))
	for i := range doc.Overlays {
		o := &doc.Overlays[i]
		if o.ID == "" || o.Source == "" {
			return nil, fmt.Errorf("overlay %d: id and source are required", i)
		}
		if _, dup := seen[o.ID]; dup {
			return nil, fmt.Errorf("overlay %q defined twice", o.ID)
		}
		seen[o.ID] = struct{}{}

		if o.LineColor == "" {
			o.LineColor = "green"
		}
		if o.LineWidth <= 0 {
			o.LineWidth = 3
		}
		if o.LineOpacity <= 0 || o.LineOpacity > 1 {
			o.LineOpacity = 0.4
		}
	}
	return doc.Overlays, nil
}
