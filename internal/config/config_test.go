package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TZ", "UTC")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, DefaultStationsURL, cfg.StationsURL)
	assert.Equal(t, DefaultTripsURL, cfg.TripsURL)
	assert.Equal(t, 24*time.Hour, cfg.RefreshInterval)
	assert.Equal(t, 14, cfg.TileZoomLevel)
	assert.Equal(t, 256, cfg.CacheSize)
	assert.False(t, cfg.RedisEnabled)
	assert.Empty(t, cfg.NATSURL)
	assert.Equal(t, "UTC", cfg.Location.String())
	assert.Nil(t, cfg.RateLimitWhitelist)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TZ", "UTC")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("TRIPS_URL", "http://example.test/trips.csv")
	t.Setenv("DATASET_REFRESH_INTERVAL", "90m")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("RATE_LIMIT_WHITELIST", " 10.0.0.1, ,127.0.0.1 ")
	t.Setenv("METRICS_ADDR", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, "http://example.test/trips.csv", cfg.TripsURL)
	assert.Equal(t, 90*time.Minute, cfg.RefreshInterval)
	assert.True(t, cfg.RedisEnabled)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, []string{"10.0.0.1", "127.0.0.1"}, cfg.RateLimitWhitelist)
	assert.Empty(t, cfg.MetricsAddr, "explicitly empty disables metrics")
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("TZ", "UTC")
	t.Setenv("CACHE_TTL", "soon")
	t.Setenv("TILE_ZOOM_LEVEL", "high")
	t.Setenv("LOG_LEVEL", "chatty")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, 14, cfg.TileZoomLevel)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"time zone", "TZ", "Mars/Olympus_Mons"},
		{"zoom", "TILE_ZOOM_LEVEL", "40"},
		{"refresh", "DATASET_REFRESH_INTERVAL", "-1h"},
		{"cache size", "CACHE_SIZE", "0"},
		{"zero rate limit window", "RATE_LIMIT_WINDOW", "0s"},
		{"negative rate limit window", "RATE_LIMIT_WINDOW", "-1m"},
		{"cache ttl", "CACHE_TTL", "0s"},
		{"fetch timeout", "FETCH_TIMEOUT", "-5s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TZ", "UTC")
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
