package cache

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bikeflow/internal/domain"
	"bikeflow/internal/store"
	"bikeflow/internal/traffic"
)

func TestGzipRoundTrip(t *testing.T) {
	snap := &store.Snapshot{
		Version: "v1",
		Filter:  720,
		Scale:   traffic.NewRadiusScale(40, 720),
		Stations: []*domain.Station{
			{ShortName: "A32000", Lat: 42.36, Lon: -71.09, Arrivals: 3, Departures: 4, TotalTraffic: 7},
			{ShortName: "B32001", Lat: 42.35, Lon: -71.07},
		},
	}
	raw, err := json.Marshal(snap)
	require.NoError(t, err)

	compressed, err := gzipCompress(raw)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1f, 0x8b}, compressed[:2], "gzip magic")

	out, err := gzipDecompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, raw, out)

	var got store.Snapshot
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, 7, got.Stations[0].TotalTraffic)
}

func TestGzipCompressesRepetitivePayloads(t *testing.T) {
	raw := bytes.Repeat([]byte(`{"short_name":"A32000","arrivals":0,"departures":0}`), 200)

	compressed, err := gzipCompress(raw)
	require.NoError(t, err)
	assert.Less(t, len(compressed), len(raw)/4)
}

func TestGzipDecompressRejectsGarbage(t *testing.T) {
	_, err := gzipDecompress([]byte("not gzip at all"))
	assert.Error(t, err)
}
