package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultStationsURL = "https://dsc106.com/labs/lab07/data/bluebikes-stations.json"
	DefaultTripsURL    = "https://dsc106.com/labs/lab07/data/bluebikes-traffic-2024-03.csv"
)

type Config struct {
	LogLevel        slog.Level
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	StationsURL     string
	TripsURL        string
	Location        *time.Location
	RefreshInterval time.Duration
	FetchTimeout    time.Duration

	TileZoomLevel int

	CacheSize       int
	CacheTTL        time.Duration
	CacheWarmOnLoad bool

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	NATSURL     string
	NATSSubject string

	MetricsAddr string

	RateLimitPerWindow int
	RateLimitWindow    time.Duration
	RateLimitWhitelist []string

	OverlaysFile string
}

// Load reads configuration from the environment, seeded from a .env file in
// the working directory when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	tzName := getEnv("TZ", "America/New_York")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid TZ %q: %w", tzName, err)
	}

	cfg := &Config{
		LogLevel:        getLogLevelEnv("LOG_LEVEL", slog.LevelInfo),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		ReadTimeout:     getDurationEnv("READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		StationsURL:     getEnv("STATIONS_URL", DefaultStationsURL),
		TripsURL:        getEnv("TRIPS_URL", DefaultTripsURL),
		Location:        loc,
		RefreshInterval: getDurationEnv("DATASET_REFRESH_INTERVAL", 24*time.Hour),
		FetchTimeout:    getDurationEnv("FETCH_TIMEOUT", 2*time.Minute),

		TileZoomLevel: getIntEnv("TILE_ZOOM_LEVEL", 14),

		CacheSize:       getIntEnv("CACHE_SIZE", 256),
		CacheTTL:        getDurationEnv("CACHE_TTL", time.Hour),
		CacheWarmOnLoad: getBoolEnv("CACHE_WARM_ON_LOAD", true),

		RedisEnabled:  getBoolEnv("REDIS_ENABLED", false),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		NATSURL:     getEnv("NATS_URL", ""),
		NATSSubject: getEnv("NATS_SUBJECT", "bikeflow.dataset.loaded"),

		MetricsAddr: os.Getenv("METRICS_ADDR"),

		RateLimitPerWindow: getIntEnv("RATE_LIMIT_PER_WINDOW", 120),
		RateLimitWindow:    getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitWhitelist: getCSVEnv("RATE_LIMIT_WHITELIST"),

		OverlaysFile: getEnv("OVERLAYS_FILE", ""),
	}
	if _, ok := os.LookupEnv("METRICS_ADDR"); !ok {
		cfg.MetricsAddr = ":9102"
	}

	if cfg.RefreshInterval <= 0 {
		return nil, fmt.Errorf("DATASET_REFRESH_INTERVAL must be positive")
	}
	if cfg.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", cfg.RateLimitWindow)
	}
	if cfg.CacheTTL <= 0 {
		return nil, fmt.Errorf("CACHE_TTL must be positive, got %s", cfg.CacheTTL)
	}
	if cfg.FetchTimeout <= 0 {
		return nil, fmt.Errorf("FETCH_TIMEOUT must be positive, got %s", cfg.FetchTimeout)
	}
	if cfg.TileZoomLevel < 0 || cfg.TileZoomLevel > 22 {
		return nil, fmt.Errorf("TILE_ZOOM_LEVEL must be in [0, 22], got %d", cfg.TileZoomLevel)
	}
	if cfg.CacheSize <= 0 {
		return nil, fmt.Errorf("CACHE_SIZE must be positive, got %d", cfg.CacheSize)
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getLogLevelEnv(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}

	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultVal
	}
}

func getCSVEnv(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			result = append(result, t)
		}
	}
	return result
}
