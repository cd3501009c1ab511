package weather_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-ingest/internal/store"
	"github.com/i474232898/weather-ingest/internal/weather"
)

func ptr[T any](v T) *T { return &v }

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *testClock { return &testClock{t: t.UTC()} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeFetcher returns a fixed payload and counts calls.
type fakeFetcher struct {
	mu         sync.Mutex
	payload    func(loc weather.Location) *weather.Payload
	historical []weather.WeatherRecord
	err        error
	calls      int
	excluded   []weather.Dataset
}

func (f *fakeFetcher) Name() string { return "fake" }

func (f *fakeFetcher) Fetch(_ context.Context, loc weather.Location, _ weather.ProviderConfig, exclude []weather.Dataset) (*weather.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.excluded = exclude
	if f.err != nil {
		return nil, f.err
	}
	if f.payload == nil {
		return &weather.Payload{}, nil
	}
	return f.payload(loc), nil
}

func (f *fakeFetcher) FetchHistorical(context.Context, weather.Location, weather.ProviderConfig, time.Time, weather.HistoricalKind) ([]weather.WeatherRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.historical, nil
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func seedLocation(t *testing.T, s *store.MemoryStore, name string, lat, lon float64) weather.Location {
	t.Helper()
	loc := &weather.Location{Name: name, Latitude: lat, Longitude: lon, Units: weather.UnitsMetric, IsActive: true}
	require.NoError(t, s.CreateLocation(context.Background(), loc))
	return *loc
}

func seedProvider(t *testing.T, s *store.MemoryStore, p weather.ProviderConfig) weather.ProviderConfig {
	t.Helper()
	if p.Name == "" {
		p.Name = "owm"
	}
	if p.APIKey == "" {
		p.APIKey = "key"
	}
	require.NoError(t, s.CreateProvider(context.Background(), &p))
	return p
}

func currentRows(t *testing.T, s weather.Store, locationID string) []weather.WeatherRecord {
	t.Helper()
	recs, err := s.QueryWeatherRecords(context.Background(), weather.RecordQuery{LocationID: locationID, DataType: weather.DataTypeCurrent})
	require.NoError(t, err)
	return recs
}
