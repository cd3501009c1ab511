package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-ingest/internal/ratelimit"
	"github.com/i474232898/weather-ingest/internal/store"
	"github.com/i474232898/weather-ingest/internal/weather"
)

var t0 = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// stubFetcher returns a current snapshot, or the per-location behaviour in fail.
type stubFetcher struct {
	now  func() time.Time
	mu   sync.Mutex
	fail map[string]string // location name -> "error" | "panic"
	seen []string
}

func (f *stubFetcher) Name() string { return "stub" }

func (f *stubFetcher) Fetch(_ context.Context, loc weather.Location, _ weather.ProviderConfig, _ []weather.Dataset) (*weather.Payload, error) {
	f.mu.Lock()
	f.seen = append(f.seen, loc.Name)
	mode := f.fail[loc.Name]
	f.mu.Unlock()

	switch mode {
	case "error":
		return nil, &weather.ProviderError{Provider: "stub", StatusCode: 500}
	case "panic":
		panic("boom")
	}
	temp := 10.0
	return &weather.Payload{Current: &weather.WeatherRecord{DataTimestamp: f.now(), Temperature: &temp}}, nil
}

func (f *stubFetcher) FetchHistorical(context.Context, weather.Location, weather.ProviderConfig, time.Time, weather.HistoricalKind) ([]weather.WeatherRecord, error) {
	return nil, errors.New("not supported")
}

type fixture struct {
	store    *store.MemoryStore
	clock    *clock
	fetcher  *stubFetcher
	limiter  *ratelimit.Limiter
	ingestor *weather.Ingestor
	sched    *Scheduler
}

func newFixture(t *testing.T, concurrency int) *fixture {
	t.Helper()
	s := store.NewMemoryStore()
	c := &clock{t: t0}
	f := &stubFetcher{now: c.now, fail: map[string]string{}}
	lim := ratelimit.New(c.now)
	rec := weather.NewReconciler(s, weather.DefaultRetention(), c.now, nil, nil)
	ing := weather.NewIngestor(s, f, lim, rec, c.now, nil, nil)
	return &fixture{
		store:    s,
		clock:    c,
		fetcher:  f,
		limiter:  lim,
		ingestor: ing,
		sched:    New(s, ing, Options{Concurrency: concurrency, Clock: c.now}),
	}
}

func (f *fixture) location(t *testing.T, name string, lat float64, active bool) weather.Location {
	t.Helper()
	loc := &weather.Location{Name: name, Latitude: lat, Longitude: 10, Units: weather.UnitsMetric, IsActive: active}
	require.NoError(t, f.store.CreateLocation(context.Background(), loc))
	return *loc
}

func (f *fixture) provider(t *testing.T) weather.ProviderConfig {
	t.Helper()
	p := &weather.ProviderConfig{Name: "owm", APIKey: "key", IsActive: true, RateLimitMinutes: 10}
	require.NoError(t, f.store.CreateProvider(context.Background(), p))
	return *p
}

func TestRunCycleWithoutLocations(t *testing.T) {
	f := newFixture(t, 1)
	f.provider(t)

	report, err := f.sched.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoLocations, report.Outcome)
}

func TestRunCycleWithoutProvider(t *testing.T) {
	f := newFixture(t, 1)
	f.location(t, "a", 1, true)

	report, err := f.sched.RunCycle(context.Background())
	assert.ErrorIs(t, err, weather.ErrConfigurationMissing)
	assert.Equal(t, OutcomeNoProvider, report.Outcome)
	assert.Empty(t, f.fetcher.seen)
}

func TestRunCycleProcessesActiveLocations(t *testing.T) {
	f := newFixture(t, 1)
	f.provider(t)
	f.location(t, "a", 1, true)
	f.location(t, "b", 2, true)
	f.location(t, "inactive", 3, false)
	ctx := context.Background()

	// One provider call per interval: "a" takes the slot, "b" waits.
	report, err := f.sched.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, CycleReport{Outcome: OutcomeCompleted, Locations: 2, Processed: 1, RateLimited: 1}, report)
	assert.Equal(t, []string{"a"}, f.fetcher.seen)

	report, err = f.sched.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fresh)
	assert.Equal(t, 1, report.RateLimited)
	assert.Len(t, f.fetcher.seen, 1)

	f.clock.advance(11 * time.Minute)
	report, err = f.sched.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.RateLimited)
	assert.Equal(t, []string{"a", "a"}, f.fetcher.seen)
}

func TestRunCycleFreshLocationLeavesSlotFree(t *testing.T) {
	f := newFixture(t, 1)
	f.provider(t)
	a := f.location(t, "a", 1, true)
	f.location(t, "b", 2, true)
	ctx := context.Background()
	require.NoError(t, f.store.InsertWeatherRecord(ctx, &weather.WeatherRecord{
		LocationID: a.ID, DataType: weather.DataTypeCurrent, DataTimestamp: t0, CreatedAt: t0.Add(-time.Minute),
	}))

	report, err := f.sched.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fresh)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, []string{"b"}, f.fetcher.seen)
}

func TestRunCycleBlocksOnDemandFetch(t *testing.T) {
	f := newFixture(t, 1)
	f.provider(t)
	loc := f.location(t, "a", 1, true)
	ctx := context.Background()

	_, err := f.sched.RunCycle(ctx)
	require.NoError(t, err)

	_, err = f.ingestor.FetchLocation(ctx, loc.ID, "", nil)
	assert.ErrorIs(t, err, weather.ErrRateLimited)
	assert.Len(t, f.fetcher.seen, 1)
}

func TestRunCycleIsolatesFailures(t *testing.T) {
	f := newFixture(t, 1)
	f.provider(t)
	f.location(t, "ok", 1, true)
	bad := f.location(t, "bad", 2, true)
	f.location(t, "crash", 3, true)
	f.fetcher.fail["bad"] = "error"
	f.fetcher.fail["crash"] = "panic"

	report, err := f.sched.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 2, report.Failed)

	recs, err := f.store.QueryWeatherRecords(context.Background(), weather.RecordQuery{LocationID: bad.ID})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRunCycleCountsRateLimited(t *testing.T) {
	f := newFixture(t, 1)
	p := f.provider(t)
	f.location(t, "a", 1, true)
	require.NoError(t, f.limiter.Record(context.Background(), p.ID, p.RateLimitInterval()))

	report, err := f.sched.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.RateLimited)
	assert.Empty(t, f.fetcher.seen)
}
