package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/i474232898/weather-ingest/internal/config"
	"github.com/i474232898/weather-ingest/internal/logger"
	"github.com/i474232898/weather-ingest/internal/metrics"
	"github.com/i474232898/weather-ingest/internal/ratelimit"
	"github.com/i474232898/weather-ingest/internal/store"
	"github.com/i474232898/weather-ingest/internal/store/postgres"
	"github.com/i474232898/weather-ingest/internal/weather"
	"github.com/i474232898/weather-ingest/internal/weather/providers"
)

// app holds the wired components shared by every command.
type app struct {
	cfg      *config.AppConfig
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Ingestion
	store    weather.Store
	service  *weather.Service
	ingestor *weather.Ingestor

	db    *gorm.DB
	redis *redis.Client
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "weather-ingest")
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	a := &app{cfg: cfg, logger: log, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.NewIngestion("weather", a.registry)

	if err := a.openStore(); err != nil {
		a.close()
		return nil, err
	}

	limiter, err := a.openLimiter(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	var geocoder weather.Geocoder
	switch cfg.Geocoder {
	case config.GeocoderGoogle:
		geocoder = providers.NewGoogleGeocoder(cfg.GoogleGeocodingAPIKey)
	default:
		geocoder = providers.NewOpenWeatherGeocoder(httpClient, cfg.GeocoderBaseURL, cfg.ProviderAPIKey, cfg.HTTPTimeout)
	}

	fetcher := providers.NewOpenWeatherProvider(httpClient, cfg.HTTPTimeout, providers.DefaultBackoff(), log)
	reconciler := weather.NewReconciler(a.store, cfg.Retention, nil, log, a.metrics)
	a.ingestor = weather.NewIngestor(a.store, fetcher, limiter, reconciler, nil, log, a.metrics)
	a.service = weather.NewService(a.store, geocoder, nil, log)

	if err := a.bootstrapProvider(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) openStore() error {
	if a.cfg.StoreDriver != config.StorePostgres {
		a.logger.Info("using in-memory store")
		a.store = store.NewMemoryStore()
		return nil
	}

	db, err := postgres.Open(postgres.Config{DSN: a.cfg.DatabaseDSN, Logger: a.logger})
	if err != nil {
		return err
	}
	a.db = db
	a.store = postgres.New(db)
	return nil
}

func (a *app) openLimiter(ctx context.Context) (weather.RateLimiter, error) {
	if a.cfg.RedisAddr == "" {
		return ratelimit.New(nil), nil
	}

	a.redis = redis.NewClient(&redis.Options{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	})
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.logger.Info("using redis rate limiter", zap.String("addr", a.cfg.RedisAddr))
	return ratelimit.NewRedis(a.redis, "", nil), nil
}

// bootstrapProvider seeds the configured provider when the store has none.
func (a *app) bootstrapProvider(ctx context.Context) error {
	if a.cfg.ProviderAPIKey == "" {
		return nil
	}
	existing, err := a.service.ListProviders(ctx, false)
	if err != nil {
		return fmt.Errorf("failed to list providers: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	baseURL := a.cfg.ProviderBaseURL
	if baseURL == "" {
		baseURL = providers.DefaultOneCallURL
	}
	p, err := a.service.CreateProvider(ctx, weather.ProviderInput{
		Name:             a.cfg.ProviderName,
		BaseURL:          baseURL,
		APIKey:           a.cfg.ProviderAPIKey,
		IsActive:         true,
		IsDefault:        true,
		RateLimitMinutes: a.cfg.ProviderRateLimitMinutes,
	})
	if err != nil {
		return fmt.Errorf("failed to seed provider: %w", err)
	}
	a.logger.Info("seeded provider config", zap.String("provider_id", p.ID), zap.String("name", p.Name))
	return nil
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if err := postgres.Close(a.db); err != nil {
		a.logger.Warn("failed to close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}
