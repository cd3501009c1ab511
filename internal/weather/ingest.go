package weather

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/weather-ingest/internal/logger"
	"github.com/i474232898/weather-ingest/internal/metrics"
)

// Ingestor runs fetch + reconcile for one location, gated by the rate limiter.
type Ingestor struct {
	store      Store
	fetcher    Fetcher
	limiter    RateLimiter
	reconciler *Reconciler
	clock      Clock
	logger     *zap.Logger
	metrics    *metrics.Ingestion
}

// NewIngestor creates an Ingestor.
func NewIngestor(store Store, fetcher Fetcher, limiter RateLimiter, reconciler *Reconciler, clock Clock, log *zap.Logger, m *metrics.Ingestion) *Ingestor {
	return &Ingestor{
		store:      store,
		fetcher:    fetcher,
		limiter:    limiter,
		reconciler: reconciler,
		clock:      clock,
		logger:     logger.OrNop(log),
		metrics:    m,
	}
}

// FetchLocation fetches and reconciles locationID on demand. Errors are surfaced: ErrNotFound, ErrValidation,
// ErrConfigurationMissing, *RateLimitError, *ProviderError.
func (i *Ingestor) FetchLocation(ctx context.Context, locationID, providerID string, exclude []Dataset) (ReconcileResult, error) {
	if err := validateExclude(exclude); err != nil {
		return ReconcileResult{}, err
	}

	loc, err := i.liveLocation(ctx, locationID)
	if err != nil {
		return ReconcileResult{}, err
	}

	provider, err := ResolveProvider(ctx, i.store, providerID)
	if err != nil {
		return ReconcileResult{}, err
	}

	return i.ingest(ctx, loc, provider, exclude)
}

// Refresh fetches and reconciles loc for a scheduled cycle.
func (i *Ingestor) Refresh(ctx context.Context, loc Location, provider ProviderConfig) (ReconcileResult, error) {
	return i.ingest(ctx, loc, provider, nil)
}

// FetchHistorical fetches the historical record(s) covering at and upserts
// them as historical data.
func (i *Ingestor) FetchHistorical(ctx context.Context, locationID, providerID string, at time.Time, kind HistoricalKind) (DatasetResult, error) {
	if kind != HistoricalHour && kind != HistoricalDay {
		return DatasetResult{}, invalid("type", "must be hour or day")
	}
	if at.IsZero() || at.After(i.clock.now()) {
		return DatasetResult{}, invalid("dt", "must be a time in the past")
	}

	loc, err := i.liveLocation(ctx, locationID)
	if err != nil {
		return DatasetResult{}, err
	}

	provider, err := ResolveProvider(ctx, i.store, providerID)
	if err != nil {
		return DatasetResult{}, err
	}

	if err := i.admit(ctx, provider); err != nil {
		return DatasetResult{}, err
	}

	start := time.Now()
	records, err := i.fetcher.FetchHistorical(ctx, loc, provider, at, kind)
	i.metrics.ObserveFetch(i.fetcher.Name(), err, time.Since(start))
	if err != nil {
		return DatasetResult{}, err
	}
	i.record(ctx, provider)

	res := i.reconciler.ApplyHistorical(ctx, loc, records)
	return res, res.Err
}

func (i *Ingestor) ingest(ctx context.Context, loc Location, provider ProviderConfig, exclude []Dataset) (ReconcileResult, error) {
	if err := i.admit(ctx, provider); err != nil {
		return ReconcileResult{}, err
	}

	start := time.Now()
	payload, err := i.fetcher.Fetch(ctx, loc, provider, exclude)
	i.metrics.ObserveFetch(i.fetcher.Name(), err, time.Since(start))
	if err != nil {
		return ReconcileResult{}, err
	}
	i.record(ctx, provider)

	return i.reconciler.Apply(ctx, loc, payload), nil
}

// admit checks the provider-wide limiter. Every call to a provider, scheduled
// or on demand, shares the provider id as its key.
func (i *Ingestor) admit(ctx context.Context, provider ProviderConfig) error {
	ok, wait, err := i.limiter.Allow(ctx, provider.ID, provider.RateLimitInterval())
	if err != nil {
		return fmt.Errorf("check rate limit: %w", err)
	}
	if !ok {
		return &RateLimitError{ProviderID: provider.ID, RetryAfter: wait}
	}
	return nil
}

func (i *Ingestor) record(ctx context.Context, provider ProviderConfig) {
	if err := i.limiter.Record(ctx, provider.ID, provider.RateLimitInterval()); err != nil {
		i.logger.Warn("failed to record provider call", zap.String("provider_id", provider.ID), zap.Error(err))
	}
}

// liveLocation loads a location that has not been soft deleted. Inactive
// locations stay fetchable on demand; only the scheduler skips them.
func (i *Ingestor) liveLocation(ctx context.Context, id string) (Location, error) {
	if id == "" {
		return Location{}, invalid("location_id", "is required")
	}
	loc, err := i.store.GetLocation(ctx, id)
	if err != nil {
		return Location{}, err
	}
	if loc.Deleted() {
		return Location{}, fmt.Errorf("location %s: %w", id, ErrNotFound)
	}
	return loc, nil
}

func validateExclude(exclude []Dataset) error {
	seen := make(map[Dataset]bool, len(exclude))
	for _, d := range exclude {
		switch d {
		case DatasetCurrent, DatasetHourly, DatasetDaily, DatasetMinutely, DatasetAlerts:
			seen[d] = true
		default:
			return invalid("exclude", fmt.Sprintf("unknown dataset %q", d))
		}
	}
	if len(seen) == len(Datasets) {
		return invalid("exclude", "excludes every dataset")
	}
	return nil
}

// IsSkippable reports whether a scheduled ingestion error means the location
// should be skipped quietly rather than counted as a failure.
func IsSkippable(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
