package traffic

import "math"

// Radius ranges in pixels.
var (
	AnyTimeRange  = [2]float64{0, 25}
	FilteredRange = [2]float64{3, 50}
)

// RadiusScale maps a station's total traffic to a circle radius. The input is
// square-rooted, so circle area grows linearly with traffic.
type RadiusScale struct {
	DomainMax float64 `json:"domainMax"`
	RangeMin  float64 `json:"rangeMin"`
	RangeMax  float64 `json:"rangeMax"`
}

// NewRadiusScale uses the wider range when a filter is active; the domain is
// fixed per dataset from the unfiltered totals.
func NewRadiusScale(domainMax int, timeFilter int) RadiusScale {
	r := AnyTimeRange
	if timeFilter != NoFilter {
		r = FilteredRange
	}
	return RadiusScale{
		DomainMax: float64(domainMax),
		RangeMin:  r[0],
		RangeMax:  r[1],
	}
}

// Radius is not clamped; a degenerate domain yields the range midpoint.
func (s RadiusScale) Radius(totalTraffic int) float64 {
	if s.DomainMax <= 0 {
		return (s.RangeMin + s.RangeMax) / 2
	}
	t := math.Sqrt(float64(totalTraffic)) / math.Sqrt(s.DomainMax)
	return s.RangeMin + t*(s.RangeMax-s.RangeMin)
}
