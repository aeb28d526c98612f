package overlay

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	layers, err := Load("")
	require.NoError(t, err)
	require.Len(t, layers, 2)

	assert.Equal(t, "bike-lanes-boston", layers[0].ID)
	assert.Equal(t, BostonLanesURL, layers[0].Source)
	assert.Equal(t, "bike-lanes-cambridge", layers[1].ID)
	for _, l := range layers {
		assert.Equal(t, "green", l.LineColor)
		assert.Equal(t, 3.0, l.LineWidth)
		assert.Equal(t, 0.4, l.LineOpacity)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlays.yaml")
	doc := `overlays:
  - id: somerville
    source: https://example.com/somerville.geojson
    line_color: "#0a0"
    line_width: 2
  - id: brookline
    source: https://example.com/brookline.geojson
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	layers, err := Load(path)
	require.NoError(t, err)
	require.Len(t, layers, 2)

	assert.Equal(t, "#0a0", layers[0].LineColor)
	assert.Equal(t, 2.0, layers[0].LineWidth)
	assert.Equal(t, 0.4, layers[0].LineOpacity)
	assert.Equal(t, "green", layers[1].LineColor)
	assert.Equal(t, 3.0, layers[1].LineWidth)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing source", "overlays:\n  - id: x\n"},
		{"duplicate id", "overlays:\n  - {id: x, source: a}\n  - {id: x, source: b}\n"},
		{"not yaml", "overlays: [unclosed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
