package weather_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-ingest/internal/store"
	"github.com/i474232898/weather-ingest/internal/weather"
)

var t0 = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func newReconciler(s weather.Store, clock *testClock) *weather.Reconciler {
	return weather.NewReconciler(s, weather.DefaultRetention(), clock.Now, nil, nil)
}

func TestReconcileCurrentKeepsSingleSnapshot(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	loc := seedLocation(t, s, "NYC", 40, -74)
	clock := newClock(t0)
	r := newReconciler(s, clock)

	stale := &weather.WeatherRecord{LocationID: loc.ID, DataType: weather.DataTypeCurrent, DataTimestamp: t0.Add(-3 * time.Hour)}
	require.NoError(t, s.InsertWeatherRecord(ctx, stale))

	for i := 0; i < 3; i++ {
		ts := t0.Add(time.Duration(i) * 10 * time.Minute)
		clock.Advance(10 * time.Minute)
		res := r.Apply(ctx, loc, &weather.Payload{Current: &weather.WeatherRecord{DataTimestamp: ts, Temperature: ptr(float64(i))}})
		require.NoError(t, res.Err())
		assert.Equal(t, 1, res.Datasets[weather.DatasetCurrent].Inserted)
	}

	rows := currentRows(t, s, loc.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, t0.Add(20*time.Minute), rows[0].DataTimestamp)
	assert.InDelta(t, 2, *rows[0].Temperature, 1e-9)
}

func TestReconcileCurrentIgnoresOlderSnapshot(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	loc := seedLocation(t, s, "NYC", 40, -74)
	r := newReconciler(s, newClock(t0))

	r.Apply(ctx, loc, &weather.Payload{Current: &weather.WeatherRecord{DataTimestamp: t0}})
	res := r.Apply(ctx, loc, &weather.Payload{Current: &weather.WeatherRecord{DataTimestamp: t0.Add(-5 * time.Minute)}})

	assert.Equal(t, 1, res.Datasets[weather.DatasetCurrent].Skipped)
	rows := currentRows(t, s, loc.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, t0, rows[0].DataTimestamp)
}

func TestReconcileHourlyUpsertsInPlace(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	loc := seedLocation(t, s, "NYC", 40, -74)
	clock := newClock(t0)
	r := newReconciler(s, clock)

	first := r.Apply(ctx, loc, &weather.Payload{Hourly: []weather.WeatherRecord{
		{DataTimestamp: t0, Temperature: ptr(10.0)},
		{DataTimestamp: t0.Add(time.Hour), Temperature: ptr(11.0)},
	}})
	require.NoError(t, first.Err())

	original, found, err := s.FindWeatherRecord(ctx, loc.ID, weather.DataTypeHourly, t0.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, found)

	clock.Advance(30 * time.Minute)
	second := r.Apply(ctx, loc, &weather.Payload{Hourly: []weather.WeatherRecord{
		{DataTimestamp: t0.Add(time.Hour), Temperature: ptr(12.5)},
		{DataTimestamp: t0.Add(2 * time.Hour), Temperature: ptr(13.0)},
	}})
	require.NoError(t, second.Err())
	assert.Equal(t, weather.DatasetResult{Inserted: 1, Updated: 1}, second.Datasets[weather.DatasetHourly])

	rows, err := s.QueryWeatherRecords(ctx, weather.RecordQuery{LocationID: loc.ID, DataType: weather.DataTypeHourly})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	updated := rows[1]
	assert.Equal(t, original.ID, updated.ID)
	assert.Equal(t, original.CreatedAt, updated.CreatedAt)
	assert.Equal(t, clock.Now(), updated.UpdatedAt)
	assert.InDelta(t, 12.5, *updated.Temperature, 1e-9)
}

func TestReconcileHourlyRetention(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	loc := seedLocation(t, s, "NYC", 40, -74)
	r := newReconciler(s, newClock(t0))

	for _, age := range []time.Duration{49 * time.Hour, 47 * time.Hour} {
		require.NoError(t, s.InsertWeatherRecord(ctx, &weather.WeatherRecord{
			LocationID: loc.ID, DataType: weather.DataTypeHourly, DataTimestamp: t0.Add(-age),
		}))
	}

	res := r.Apply(ctx, loc, &weather.Payload{Hourly: []weather.WeatherRecord{
		{DataTimestamp: t0.Add(-50 * time.Hour)},
		{DataTimestamp: t0},
	}})
	require.NoError(t, res.Err())
	assert.Equal(t, weather.DatasetResult{Inserted: 1, Skipped: 1, Purged: 1}, res.Datasets[weather.DatasetHourly])

	rows, err := s.QueryWeatherRecords(ctx, weather.RecordQuery{LocationID: loc.ID, DataType: weather.DataTypeHourly})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, t0.Add(-47*time.Hour), rows[0].DataTimestamp)
	assert.Equal(t, t0, rows[1].DataTimestamp)
}

func TestReconcileDailyRetention(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	loc := seedLocation(t, s, "NYC", 40, -74)
	r := newReconciler(s, newClock(t0))

	require.NoError(t, s.InsertWeatherRecord(ctx, &weather.WeatherRecord{LocationID: loc.ID, DataType: weather.DataTypeDaily, DataTimestamp: t0.Add(-9 * 24 * time.Hour)}))
	require.NoError(t, s.InsertWeatherRecord(ctx, &weather.WeatherRecord{LocationID: loc.ID, DataType: weather.DataTypeDaily, DataTimestamp: t0.Add(-7 * 24 * time.Hour)}))

	res := r.Apply(ctx, loc, &weather.Payload{Daily: []weather.WeatherRecord{}})
	assert.Equal(t, 1, res.Datasets[weather.DatasetDaily].Purged)

	rows, err := s.QueryWeatherRecords(ctx, weather.RecordQuery{LocationID: loc.ID, DataType: weather.DataTypeDaily})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestReconcileAlertsDedup(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	loc := seedLocation(t, s, "NYC", 40, -74)
	clock := newClock(t0)
	r := newReconciler(s, clock)

	alert := weather.AlertRecord{
		SenderName: "NWS", Event: "Flood Watch", Description: "first",
		StartTime: t0.Add(-time.Hour), EndTime: t0.Add(6 * time.Hour), Severity: weather.SeverityModerate,
	}
	first := r.Apply(ctx, loc, &weather.Payload{Alerts: []weather.AlertRecord{alert}})
	require.NoError(t, first.Err())
	assert.Equal(t, 1, first.Datasets[weather.DatasetAlerts].Inserted)

	revised := alert
	revised.Description = "revised"
	revised.EndTime = t0.Add(8 * time.Hour)
	ended := weather.AlertRecord{SenderName: "NWS", Event: "Heat Advisory", StartTime: t0.Add(-5 * time.Hour), EndTime: t0.Add(-time.Minute)}

	clock.Advance(10 * time.Minute)
	second := r.Apply(ctx, loc, &weather.Payload{Alerts: []weather.AlertRecord{revised, ended}})
	require.NoError(t, second.Err())
	assert.Equal(t, weather.DatasetResult{Skipped: 2}, second.Datasets[weather.DatasetAlerts])

	stored, err := s.QueryAlerts(ctx, weather.AlertQuery{LocationID: loc.ID})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "first", stored[0].Description)
	assert.Equal(t, t0.Add(6*time.Hour), stored[0].EndTime)
	assert.True(t, stored[0].IsActive)
}

func TestReconcileAlertsPurgesEnded(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	loc := seedLocation(t, s, "NYC", 40, -74)
	r := newReconciler(s, newClock(t0))

	require.NoError(t, s.InsertAlert(ctx, &weather.AlertRecord{LocationID: loc.ID, SenderName: "NWS", Event: "Old", StartTime: t0.Add(-3 * time.Hour), EndTime: t0.Add(-time.Hour)}))

	res := r.Apply(ctx, loc, &weather.Payload{Alerts: []weather.AlertRecord{}})
	assert.Equal(t, 1, res.Datasets[weather.DatasetAlerts].Purged)
}

func TestReconcileMinutelySkipsKnownTimestamps(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	loc := seedLocation(t, s, "NYC", 40, -74)
	r := newReconciler(s, newClock(t0))

	for i := 0; i < 3; i++ {
		ts := t0.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.InsertMinutely(ctx, &weather.MinutelyRecord{LocationID: loc.ID, DataTimestamp: ts, ForecastTimestamp: t0.Add(-10 * time.Minute)}))
	}

	entries := make([]weather.MinutelyRecord, 61)
	for i := range entries {
		ts := t0.Add(time.Duration(i) * time.Minute)
		entries[i] = weather.MinutelyRecord{DataTimestamp: ts, ForecastTimestamp: t0, Precipitation: ptr(0.1), IsForecast: ts.After(t0)}
	}

	res := r.Apply(ctx, loc, &weather.Payload{Minutely: entries})
	require.NoError(t, res.Err())
	assert.Equal(t, 58, res.Datasets[weather.DatasetMinutely].Inserted)
	assert.Equal(t, 3, res.Datasets[weather.DatasetMinutely].Skipped)

	rows, err := s.QueryMinutely(ctx, weather.RecordQuery{LocationID: loc.ID})
	require.NoError(t, err)
	assert.Len(t, rows, 61)
}

func TestReconcileMinutelyRetention(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	loc := seedLocation(t, s, "NYC", 40, -74)
	r := newReconciler(s, newClock(t0))

	require.NoError(t, s.InsertMinutely(ctx, &weather.MinutelyRecord{LocationID: loc.ID, DataTimestamp: t0.Add(-3 * time.Hour), ForecastTimestamp: t0.Add(-3 * time.Hour)}))

	res := r.Apply(ctx, loc, &weather.Payload{Minutely: []weather.MinutelyRecord{
		{DataTimestamp: t0.Add(-150 * time.Minute), ForecastTimestamp: t0},
		{DataTimestamp: t0, ForecastTimestamp: t0},
	}})
	assert.Equal(t, weather.DatasetResult{Inserted: 1, Skipped: 1, Purged: 1}, res.Datasets[weather.DatasetMinutely])
}

func TestReconcileIsolatesMalformedDataset(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	loc := seedLocation(t, s, "NYC", 40, -74)
	r := newReconciler(s, newClock(t0))

	payload := &weather.Payload{
		Current:  &weather.WeatherRecord{DataTimestamp: t0},
		Hourly:   []weather.WeatherRecord{{DataTimestamp: t0}},
		Problems: map[weather.Dataset]error{weather.DatasetDaily: errors.New("entry 2: missing dt")},
	}
	res := r.Apply(ctx, loc, payload)

	assert.Error(t, res.Datasets[weather.DatasetDaily].Err)
	assert.NoError(t, res.Datasets[weather.DatasetHourly].Err)
	assert.Equal(t, 1, res.Datasets[weather.DatasetHourly].Inserted)
	assert.Equal(t, 1, res.Datasets[weather.DatasetCurrent].Inserted)
	assert.ErrorContains(t, res.Err(), "daily")
}

// failingAlerts breaks alert purging only.
type failingAlerts struct {
	*store.MemoryStore
}

func (failingAlerts) DeleteAlerts(context.Context, weather.AlertDelete) (int, error) {
	return 0, errors.New("alerts table unavailable")
}

func TestReconcileIsolatesStoreFailure(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	loc := seedLocation(t, mem, "NYC", 40, -74)
	r := newReconciler(failingAlerts{mem}, newClock(t0))

	res := r.Apply(ctx, loc, &weather.Payload{
		Alerts: []weather.AlertRecord{{SenderName: "NWS", Event: "Watch", StartTime: t0, EndTime: t0.Add(time.Hour)}},
		Daily:  []weather.WeatherRecord{{DataTimestamp: t0}},
	})

	assert.ErrorContains(t, res.Datasets[weather.DatasetAlerts].Err, "alerts table unavailable")
	assert.Equal(t, 1, res.Datasets[weather.DatasetDaily].Inserted)
}

func TestReconcileStoresTimezone(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	loc := seedLocation(t, s, "NYC", 40, -74)
	r := newReconciler(s, newClock(t0))

	r.Apply(ctx, loc, &weather.Payload{Timezone: "America/New_York"})

	got, err := s.GetLocation(ctx, loc.ID)
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", got.Timezone)
}

func TestApplyHistoricalNeverPurgesByAge(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	loc := seedLocation(t, s, "NYC", 40, -74)
	r := newReconciler(s, newClock(t0))

	old := t0.Add(-90 * 24 * time.Hour)
	res := r.ApplyHistorical(ctx, loc, []weather.WeatherRecord{{DataTimestamp: old, Temperature: ptr(1.0)}})
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Inserted)

	res = r.ApplyHistorical(ctx, loc, []weather.WeatherRecord{{DataTimestamp: old, Temperature: ptr(2.0)}})
	assert.Equal(t, 1, res.Updated)

	rec, found, err := s.FindWeatherRecord(ctx, loc.ID, weather.DataTypeHistorical, old)
	require.NoError(t, err)
	require.True(t, found)
	assert.InDelta(t, 2, *rec.Temperature, 1e-9)
}
