package traffic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRadiusScale(t *testing.T) {
	tests := []struct {
		name       string
		domainMax  int
		timeFilter int
		traffic    int
		want       float64
	}{
		{"any time zero", 100, NoFilter, 0, 0},
		{"any time max", 100, NoFilter, 100, 25},
		{"any time quarter is half radius", 100, NoFilter, 25, 12.5},
		{"filtered zero keeps minimum", 100, 720, 0, 3},
		{"filtered max", 100, 720, 100, 50},
		{"filtered quarter", 100, 720, 25, 26.5},
		{"unclamped above domain", 100, NoFilter, 400, 50},
		{"degenerate domain any time", 0, NoFilter, 0, 12.5},
		{"degenerate domain filtered", 0, 720, 7, 26.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewRadiusScale(tt.domainMax, tt.timeFilter)
			assert.InDelta(t, tt.want, s.Radius(tt.traffic), 1e-9)
		})
	}
}
