package geo

import (
	"github.com/tidwall/rtree"

	"bikeflow/internal/domain"
)

// StationIndex answers bounding-box queries over station positions.
type StationIndex struct {
	tree rtree.RTree
}

// NewStationIndex indexes stations by [lat, lon]; the stored value is the
// station's position in the given slice.
func NewStationIndex(stations []*domain.Station) *StationIndex {
	idx := &StationIndex{}
	for i, s := range stations {
		pt := [2]float64{s.Lat, s.Lon}
		idx.tree.Insert(pt, pt, i)
	}
	return idx
}

// Search returns the positions of stations inside bbox in no particular order.
func (idx *StationIndex) Search(bbox domain.BoundingBox) []int {
	minLat := min(bbox.MinLat, bbox.MaxLat)
	maxLat := max(bbox.MinLat, bbox.MaxLat)
	minLon := min(bbox.MinLon, bbox.MaxLon)
	maxLon := max(bbox.MinLon, bbox.MaxLon)

	var out []int
	idx.tree.Search(
		[2]float64{minLat, minLon},
		[2]float64{maxLat, maxLon},
		func(_, _ [2]float64, data interface{}) bool {
			if i, ok := data.(int); ok {
				out = append(out, i)
			}
			return true
		},
	)
	return out
}

func (idx *StationIndex) Len() int {
	return idx.tree.Len()
}
