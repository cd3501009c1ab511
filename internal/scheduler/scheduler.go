package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/weather-ingest/internal/logger"
	"github.com/i474232898/weather-ingest/internal/metrics"
	"github.com/i474232898/weather-ingest/internal/weather"
)

// Cycle outcomes.
const (
	OutcomeCompleted   = "completed"
	OutcomeNoLocations = "no_locations"
	OutcomeNoProvider  = "no_provider"
)

// Refresher fetches and reconciles one location for a scheduled cycle.
type Refresher interface {
	Refresh(ctx context.Context, loc weather.Location, provider weather.ProviderConfig) (weather.ReconcileResult, error)
}

// CycleReport counts what one cycle did.
type CycleReport struct {
	Outcome     string `json:"outcome"`
	Locations   int    `json:"locations"`
	Processed   int    `json:"processed"`
	Fresh       int    `json:"fresh"`
	RateLimited int    `json:"rateLimited"`
	Failed      int    `json:"failed"`
}

// Options tune a Scheduler. Zero values use the defaults.
type Options struct {
	Interval    time.Duration // default 1m
	Concurrency int           // default 1
	Clock       weather.Clock
	Logger      *zap.Logger
	Metrics     *metrics.Ingestion
}

// Scheduler periodically refreshes weather data for every active location.
type Scheduler struct {
	scheduler   *gocron.Scheduler
	store       weather.Store
	refresher   Refresher
	interval    time.Duration
	concurrency int
	clock       weather.Clock
	logger      *zap.Logger
	metrics     *metrics.Ingestion
}

// New creates a new Scheduler.
func New(store weather.Store, refresher Refresher, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &Scheduler{
		store:       store,
		refresher:   refresher,
		interval:    opts.Interval,
		concurrency: opts.Concurrency,
		clock:       opts.Clock,
		logger:      logger.OrNop(opts.Logger),
		metrics:     opts.Metrics,
	}
}

// RunCycle refreshes every active location once. A missing provider aborts
// the cycle with ErrConfigurationMissing; per-location failures are logged
// and counted but never returned.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleReport, error) {
	start := time.Now()

	locations, err := s.store.ListLocations(ctx, weather.LocationFilter{ActiveOnly: true})
	if err != nil {
		return CycleReport{}, fmt.Errorf("list active locations: %w", err)
	}
	if len(locations) == 0 {
		s.logger.Info("no active locations, nothing to ingest")
		s.metrics.ObserveCycle(OutcomeNoLocations, time.Since(start))
		return CycleReport{Outcome: OutcomeNoLocations}, nil
	}

	provider, err := weather.ResolveProvider(ctx, s.store, "")
	if err != nil {
		s.logger.Error("ingestion cycle aborted", zap.Int("locations", len(locations)), zap.Error(err))
		s.metrics.ObserveCycle(OutcomeNoProvider, time.Since(start))
		return CycleReport{Outcome: OutcomeNoProvider, Locations: len(locations)}, err
	}

	s.logger.Info("ingestion cycle started",
		zap.Int("locations", len(locations)),
		zap.String("provider_id", provider.ID),
	)

	report := CycleReport{Outcome: OutcomeCompleted, Locations: len(locations)}
	var mu sync.Mutex
	count := func(outcome string) {
		mu.Lock()
		defer mu.Unlock()
		switch outcome {
		case "processed":
			report.Processed++
		case "fresh":
			report.Fresh++
		case "rate_limited":
			report.RateLimited++
		default:
			report.Failed++
		}
		s.metrics.ObserveLocation(outcome)
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, loc := range locations {
		loc := loc
		g.Go(func() error {
			count(s.runLocation(ctx, loc, provider))
			return nil
		})
	}
	_ = g.Wait()

	took := time.Since(start)
	s.metrics.ObserveCycle(OutcomeCompleted, took)
	s.logger.Info("ingestion cycle finished",
		zap.Int("processed", report.Processed),
		zap.Int("fresh", report.Fresh),
		zap.Int("rate_limited", report.RateLimited),
		zap.Int("failed", report.Failed),
		zap.Duration("took", took),
	)
	return report, nil
}

func (s *Scheduler) runLocation(ctx context.Context, loc weather.Location, provider weather.ProviderConfig) (outcome string) {
	log := s.logger.With(zap.String("location_id", loc.ID), zap.String("provider_id", provider.ID))
	defer func() {
		if r := recover(); r != nil {
			log.Error("location ingestion panicked", zap.Any("panic", r))
			outcome = "failed"
		}
	}()

	fresh, err := s.isFresh(ctx, loc, provider)
	if err != nil {
		log.Warn("staleness check failed", zap.Error(err))
		return "failed"
	}
	if fresh {
		log.Debug("current weather is fresh, skipping")
		return "fresh"
	}

	res, err := s.refresher.Refresh(ctx, loc, provider)
	switch {
	case weather.IsSkippable(err):
		log.Info("rate limited, skipping", zap.Error(err))
		return "rate_limited"
	case err != nil:
		log.Warn("location ingestion failed", zap.Error(err))
		return "failed"
	}

	if derr := res.Err(); derr != nil {
		log.Warn("some datasets failed to reconcile", zap.Error(derr))
	}
	return "processed"
}

// isFresh reports whether the newest current record of loc was written
// within the provider's rate-limit interval.
func (s *Scheduler) isFresh(ctx context.Context, loc weather.Location, provider weather.ProviderConfig) (bool, error) {
	recs, err := s.store.QueryWeatherRecords(ctx, weather.RecordQuery{
		LocationID: loc.ID,
		DataType:   weather.DataTypeCurrent,
		Descending: true,
		Limit:      1,
	})
	if err != nil {
		if errors.Is(err, weather.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if len(recs) == 0 {
		return false, nil
	}
	return s.clock().Sub(recs[0].CreatedAt) < provider.RateLimitInterval(), nil
}

// Start schedules RunCycle every interval and starts the underlying
// scheduler. Overlapping runs are skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.scheduler = gocron.NewScheduler(time.UTC)

	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(func() {
		if _, err := s.RunCycle(ctx); err != nil {
			s.logger.Error("ingestion cycle failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule ingestion: %w", err)
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval), zap.Int("concurrency", s.concurrency))
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
