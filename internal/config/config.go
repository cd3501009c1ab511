package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/i474232898/weather-ingest/internal/weather"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Geocoder backends.
const (
	GeocoderOpenWeather = "openweather"
	GeocoderGoogle      = "google"
)

type AppConfig struct {
	Port      string
	LogLevel  string
	LogFormat string

	StoreDriver string
	DatabaseDSN string

	// Empty RedisAddr keeps rate limiting in process.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Bootstrap provider, seeded when the store holds no provider config.
	ProviderName             string
	ProviderBaseURL          string
	ProviderAPIKey           string
	ProviderRateLimitMinutes int

	Geocoder              string
	GeocoderBaseURL       string
	GoogleGeocodingAPIKey string

	HTTPTimeout time.Duration

	SchedulerInterval    time.Duration
	SchedulerConcurrency int

	Retention          weather.Retention
	CleanupMinutelyAge time.Duration
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from the process environment only.
func FromEnv() (*AppConfig, error) {
	defaults := weather.DefaultRetention()
	cfg := &AppConfig{
		Port:      getenvDefault("PORT", "8080"),
		LogLevel:  getenvDefault("LOG_LEVEL", "info"),
		LogFormat: getenvDefault("LOG_FORMAT", "json"),

		StoreDriver: getenvDefault("STORE_DRIVER", StoreMemory),
		DatabaseDSN: os.Getenv("DATABASE_DSN"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		ProviderName:    getenvDefault("PROVIDER_NAME", "openweathermap"),
		ProviderBaseURL: os.Getenv("PROVIDER_BASE_URL"),
		ProviderAPIKey:  os.Getenv("PROVIDER_API_KEY"),

		Geocoder:              getenvDefault("GEOCODER", GeocoderOpenWeather),
		GeocoderBaseURL:       os.Getenv("GEOCODER_BASE_URL"),
		GoogleGeocodingAPIKey: os.Getenv("GOOGLE_GEOCODING_API_KEY"),
	}

	var err error
	if cfg.RedisDB, err = getenvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.ProviderRateLimitMinutes, err = getenvInt("PROVIDER_RATE_LIMIT_MINUTES", weather.DefaultRateLimitMinutes); err != nil {
		return nil, err
	}
	if cfg.SchedulerConcurrency, err = getenvInt("SCHEDULER_CONCURRENCY", 1); err != nil {
		return nil, err
	}

	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"HTTP_TIMEOUT", 30 * time.Second, &cfg.HTTPTimeout},
		{"SCHEDULER_INTERVAL", time.Minute, &cfg.SchedulerInterval},
		{"RETENTION_CURRENT", defaults.Current, &cfg.Retention.Current},
		{"RETENTION_HOURLY", defaults.Hourly, &cfg.Retention.Hourly},
		{"RETENTION_DAILY", defaults.Daily, &cfg.Retention.Daily},
		{"RETENTION_MINUTELY", defaults.Minutely, &cfg.Retention.Minutely},
		{"CLEANUP_MINUTELY_AGE", 6 * time.Hour, &cfg.CleanupMinutelyAge},
	}
	for _, d := range durations {
		if *d.dest, err = getenvDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	switch cfg.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if cfg.DatabaseDSN == "" {
			return nil, fmt.Errorf("DATABASE_DSN is required when STORE_DRIVER=%s", StorePostgres)
		}
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q", cfg.StoreDriver)
	}

	switch cfg.Geocoder {
	case GeocoderOpenWeather, GeocoderGoogle:
	default:
		return nil, fmt.Errorf("invalid GEOCODER %q", cfg.Geocoder)
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
