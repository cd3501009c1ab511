package weather_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-ingest/internal/ratelimit"
	"github.com/i474232898/weather-ingest/internal/store"
	"github.com/i474232898/weather-ingest/internal/weather"
	"github.com/i474232898/weather-ingest/internal/weather/providers"
)

type fakeGeocoder struct {
	candidates []weather.GeocodeCandidate
	lastLimit  int
}

func (g *fakeGeocoder) Search(_ context.Context, _ string, limit int) ([]weather.GeocodeCandidate, error) {
	g.lastLimit = limit
	return g.candidates, nil
}

func TestCurrentWeatherEndToEnd(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	clock := newClock(time.Unix(1700000000, 0).Add(5 * time.Minute))
	svc := weather.NewService(s, nil, clock.Now, nil)

	loc, err := svc.CreateLocation(ctx, weather.LocationInput{Name: "Jersey", Latitude: 40.0, Longitude: -74.0})
	require.NoError(t, err)
	seedProvider(t, s, weather.ProviderConfig{IsActive: true})

	body := []byte(`{"current":{"dt":1700000000,"temp":15.0,"weather":[{"id":800,"main":"Clear"}]}}`)
	fetcher := &fakeFetcher{payload: func(weather.Location) *weather.Payload {
		p, err := providers.NormalizeOneCall(body)
		require.NoError(t, err)
		return p
	}}
	reconciler := weather.NewReconciler(s, weather.DefaultRetention(), clock.Now, nil, nil)
	ingestor := weather.NewIngestor(s, fetcher, ratelimit.New(clock.Now), reconciler, clock.Now, nil, nil)

	res, err := ingestor.FetchLocation(ctx, loc.ID, "", nil)
	require.NoError(t, err)
	require.NoError(t, res.Err())

	cur, err := svc.CurrentWeather(ctx, loc.ID)
	require.NoError(t, err)
	require.NotNil(t, cur.Temperature)
	assert.InDelta(t, 15.0, *cur.Temperature, 1e-9)
	assert.Equal(t, "Clear", cur.WeatherMain)
	assert.Len(t, currentRows(t, s, loc.ID), 1)
}

func TestCurrentWeatherRequiresFreshRecord(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	loc := seedLocation(t, s, "NYC", 40, -74)
	svc := weather.NewService(s, nil, newClock(t0).Now, nil)

	require.NoError(t, s.InsertWeatherRecord(ctx, &weather.WeatherRecord{LocationID: loc.ID, DataType: weather.DataTypeCurrent, DataTimestamp: t0.Add(-2 * time.Hour)}))

	_, err := svc.CurrentWeather(ctx, loc.ID)
	assert.ErrorIs(t, err, weather.ErrNotFound)
}

func TestCreateLocationRejectsDuplicateCoordinates(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	svc := weather.NewService(s, nil, newClock(t0).Now, nil)

	first, err := svc.CreateLocation(ctx, weather.LocationInput{Name: "A", Latitude: 51.50735091, Longitude: -0.12776})
	require.NoError(t, err)
	assert.Equal(t, 51.5073509, first.Latitude)
	assert.Equal(t, weather.UnitsMetric, first.Units)
	assert.True(t, first.IsActive)

	_, err = svc.CreateLocation(ctx, weather.LocationInput{Name: "B", Latitude: 51.50735089, Longitude: -0.12776})
	assert.ErrorIs(t, err, weather.ErrDuplicateLocation)

	all, err := svc.ListLocations(ctx, weather.LocationFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCreateLocationValidation(t *testing.T) {
	svc := weather.NewService(store.NewMemoryStore(), nil, nil, nil)

	tests := map[string]weather.LocationInput{
		"missing name":  {Latitude: 1, Longitude: 1},
		"bad latitude":  {Name: "x", Latitude: 91},
		"bad longitude": {Name: "x", Longitude: -181},
		"bad units":     {Name: "x", Units: "kelvin"},
		"bad country":   {Name: "x", CountryCode: "USA"},
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateLocation(context.Background(), in)
			var verr *weather.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.ErrorIs(t, err, weather.ErrValidation)
		})
	}
}

func TestLocationLifecycle(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	svc := weather.NewService(s, nil, newClock(t0).Now, nil)

	loc, err := svc.CreateLocation(ctx, weather.LocationInput{Name: "Paris", Latitude: 48.8566, Longitude: 2.3522})
	require.NoError(t, err)

	fav, err := svc.ToggleFavorite(ctx, loc.ID)
	require.NoError(t, err)
	assert.True(t, fav.IsFavorite)

	inactive, err := svc.SetLocationActive(ctx, loc.ID, false)
	require.NoError(t, err)
	assert.False(t, inactive.IsActive)

	active, err := svc.ListLocations(ctx, weather.LocationFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, active)

	require.NoError(t, svc.DeleteLocation(ctx, loc.ID))
	_, err = svc.GetLocation(ctx, loc.ID)
	assert.ErrorIs(t, err, weather.ErrNotFound)
	assert.ErrorIs(t, svc.DeleteLocation(ctx, loc.ID), weather.ErrNotFound)

	// The coordinates are free again once the location is soft deleted.
	_, err = svc.CreateLocation(ctx, weather.LocationInput{Name: "Paris", Latitude: 48.8566, Longitude: 2.3522})
	require.NoError(t, err)

	require.NoError(t, svc.PurgeLocation(ctx, loc.ID))
	_, err = s.GetLocation(ctx, loc.ID)
	assert.ErrorIs(t, err, weather.ErrNotFound)
}

func TestCreateLocationFromGeocoding(t *testing.T) {
	ctx := context.Background()
	g := &fakeGeocoder{candidates: []weather.GeocodeCandidate{
		{Name: "Springfield", State: "Illinois", Country: "US", CountryCode: "US", Latitude: 39.7817213, Longitude: -89.6501481, Raw: []byte(`{"name":"Springfield"}`)},
	}}
	svc := weather.NewService(store.NewMemoryStore(), g, newClock(t0).Now, nil)

	found, err := svc.SearchLocations(ctx, " Springfield ", 50)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, 10, g.lastLimit)

	loc, err := svc.CreateLocationFromGeocoding(ctx, found[0], "Home", weather.UnitsImperial)
	require.NoError(t, err)
	assert.Equal(t, "Home", loc.Name)
	assert.Equal(t, "Springfield", loc.City)
	assert.Equal(t, "Illinois", loc.State)
	assert.Equal(t, weather.UnitsImperial, loc.Units)
	assert.JSONEq(t, `{"name":"Springfield"}`, string(loc.GeocodingData))

	again, err := svc.CreateLocationFromGeocoding(ctx, weather.GeocodeCandidate{Name: "Other", Latitude: 40, Longitude: -89}, "", "")
	require.NoError(t, err)
	assert.Equal(t, "Other", again.Name)

	_, err = svc.CreateLocationFromGeocoding(ctx, found[0], "", "")
	assert.ErrorIs(t, err, weather.ErrDuplicateLocation)
}

func TestSearchLocationsWithoutGeocoder(t *testing.T) {
	svc := weather.NewService(store.NewMemoryStore(), nil, nil, nil)
	_, err := svc.SearchLocations(context.Background(), "x", 1)
	assert.ErrorIs(t, err, weather.ErrConfigurationMissing)
}

func seedAlert(t *testing.T, s *store.MemoryStore, a weather.AlertRecord) weather.AlertRecord {
	t.Helper()
	if a.SenderName == "" {
		a.SenderName = "NWS"
	}
	a.IsActive = true
	require.NoError(t, s.InsertAlert(context.Background(), &a))
	return a
}

func TestAlertLifecycle(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	loc := seedLocation(t, s, "NYC", 40, -74)
	clock := newClock(t0)
	svc := weather.NewService(s, nil, clock.Now, nil)

	a := seedAlert(t, s, weather.AlertRecord{LocationID: loc.ID, Event: "Flood Watch", StartTime: t0.Add(-time.Hour), EndTime: t0.Add(time.Hour)})

	acked, err := svc.AcknowledgeAlert(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, acked.AcknowledgedAt)
	assert.True(t, acked.IsActive)

	active, err := svc.ActiveAlerts(ctx, loc.ID)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	resolved, err := svc.ResolveAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, resolved.IsActive)
	require.NotNil(t, resolved.ResolvedAt)

	clock.Advance(time.Minute)
	again, err := svc.ResolveAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, again.IsActive)
	require.NotNil(t, again.ResolvedAt)

	active, err = svc.ActiveAlerts(ctx, loc.ID)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = svc.AcknowledgeAlert(ctx, "missing")
	assert.ErrorIs(t, err, weather.ErrNotFound)
	_, err = svc.ResolveAlert(ctx, "missing")
	assert.ErrorIs(t, err, weather.ErrNotFound)
}

func TestActiveAlertsRespectsWindow(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	loc := seedLocation(t, s, "NYC", 40, -74)
	svc := weather.NewService(s, nil, newClock(t0).Now, nil)

	seedAlert(t, s, weather.AlertRecord{LocationID: loc.ID, Event: "Now", StartTime: t0.Add(-time.Hour), EndTime: t0.Add(time.Hour)})
	seedAlert(t, s, weather.AlertRecord{LocationID: loc.ID, Event: "Later", StartTime: t0.Add(time.Hour), EndTime: t0.Add(2 * time.Hour)})

	active, err := svc.ActiveAlerts(ctx, loc.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Now", active[0].Event)
}

func TestAlertStatistics(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	nyc := seedLocation(t, s, "NYC", 40, -74)
	la := seedLocation(t, s, "LA", 34, -118)
	svc := weather.NewService(s, nil, newClock(t0).Now, nil)

	a := seedAlert(t, s, weather.AlertRecord{LocationID: nyc.ID, Event: "Flood Watch", Severity: weather.SeverityModerate, StartTime: t0.Add(-time.Hour), EndTime: t0.Add(time.Hour)})
	seedAlert(t, s, weather.AlertRecord{LocationID: nyc.ID, Event: "Flood Watch", Severity: weather.SeverityModerate, StartTime: t0.Add(-3 * time.Hour), EndTime: t0.Add(-2 * time.Hour)})
	seedAlert(t, s, weather.AlertRecord{LocationID: la.ID, Event: "Heat Warning", Severity: weather.SeveritySevere, StartTime: t0, EndTime: t0.Add(time.Hour)})
	_, err := svc.AcknowledgeAlert(ctx, a.ID)
	require.NoError(t, err)

	all, err := svc.AlertStatistics(ctx, weather.AlertStatsFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, all.Total)
	assert.Equal(t, 2, all.Active)
	assert.Equal(t, 1, all.Acknowledged)
	assert.Equal(t, 2, all.BySeverity[weather.SeverityModerate])
	assert.Equal(t, 1, all.ByEvent["Heat Warning"])

	nycOnly, err := svc.AlertStatistics(ctx, weather.AlertStatsFilter{LocationID: nyc.ID, From: t0.Add(-2 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 1, nycOnly.Total)

	_, err = svc.AlertStatistics(ctx, weather.AlertStatsFilter{From: t0, To: t0.Add(-time.Hour)})
	assert.ErrorIs(t, err, weather.ErrValidation)
}

func TestCleanupReportsCounts(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	loc := seedLocation(t, s, "NYC", 40, -74)
	svc := weather.NewService(s, nil, newClock(t0).Now, nil)

	require.NoError(t, s.InsertWeatherRecord(ctx, &weather.WeatherRecord{LocationID: loc.ID, DataType: weather.DataTypeHistorical, DataTimestamp: t0.Add(-40 * 24 * time.Hour)}))
	require.NoError(t, s.InsertWeatherRecord(ctx, &weather.WeatherRecord{LocationID: loc.ID, DataType: weather.DataTypeHistorical, DataTimestamp: t0.Add(-24 * time.Hour)}))
	require.NoError(t, s.InsertMinutely(ctx, &weather.MinutelyRecord{LocationID: loc.ID, DataTimestamp: t0.Add(-7 * time.Hour), ForecastTimestamp: t0.Add(-7 * time.Hour)}))
	require.NoError(t, s.InsertMinutely(ctx, &weather.MinutelyRecord{LocationID: loc.ID, DataTimestamp: t0.Add(-5 * time.Hour), ForecastTimestamp: t0.Add(-5 * time.Hour)}))
	resolvedAt := t0.Add(-20 * time.Hour)
	require.NoError(t, s.InsertAlert(ctx, &weather.AlertRecord{LocationID: loc.ID, Event: "Old", StartTime: t0.Add(-30 * time.Hour), EndTime: t0.Add(-25 * time.Hour)}))
	require.NoError(t, s.InsertAlert(ctx, &weather.AlertRecord{LocationID: loc.ID, Event: "Resolved", StartTime: t0.Add(-30 * time.Hour), EndTime: t0.Add(-25 * time.Hour), ResolvedAt: &resolvedAt}))

	n, err := svc.CleanupWeather(ctx, weather.DataTypeHistorical, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = svc.CleanupWeather(ctx, weather.DataTypeHourly, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = svc.CleanupMinutely(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = svc.CleanupAlerts(ctx, 24*time.Hour, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = svc.CleanupAlerts(ctx, 24*time.Hour, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = svc.CleanupWeather(ctx, "weekly", time.Hour)
	assert.ErrorIs(t, err, weather.ErrValidation)
}

func TestForecastQueries(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	loc := seedLocation(t, s, "NYC", 40, -74)
	svc := weather.NewService(s, nil, newClock(t0.Add(20*time.Minute)).Now, nil)

	for i := -2; i < 5; i++ {
		require.NoError(t, s.InsertWeatherRecord(ctx, &weather.WeatherRecord{LocationID: loc.ID, DataType: weather.DataTypeHourly, DataTimestamp: t0.Add(time.Duration(i) * time.Hour)}))
	}

	hourly, err := svc.HourlyForecast(ctx, loc.ID, time.Time{}, time.Time{}, 3)
	require.NoError(t, err)
	require.Len(t, hourly, 3)
	assert.Equal(t, t0, hourly[0].DataTimestamp)

	window, err := svc.HourlyForecast(ctx, loc.ID, t0.Add(-2*time.Hour), t0.Add(time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, window, 4)
	assert.Equal(t, t0.Add(-2*time.Hour), window[0].DataTimestamp)
	assert.Equal(t, t0.Add(time.Hour), window[3].DataTimestamp)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.InsertWeatherRecord(ctx, &weather.WeatherRecord{LocationID: loc.ID, DataType: weather.DataTypeDaily, DataTimestamp: t0.Truncate(24 * time.Hour).Add(time.Duration(i-1) * 24 * time.Hour)}))
	}
	daily, err := svc.DailyForecast(ctx, loc.ID, time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, daily, 2)

	daily, err = svc.DailyForecast(ctx, loc.ID, t0.Add(-48*time.Hour), t0, 0)
	require.NoError(t, err)
	assert.Len(t, daily, 2)

	_, err = svc.Records(ctx, loc.ID, weather.DataTypeHourly, t0, t0.Add(-time.Hour), 0)
	assert.ErrorIs(t, err, weather.ErrValidation)

	_, err = svc.HourlyForecast(ctx, "missing", time.Time{}, time.Time{}, 0)
	assert.ErrorIs(t, err, weather.ErrNotFound)
}

func TestMinutelyQueries(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	loc := seedLocation(t, s, "NYC", 40, -74)
	svc := weather.NewService(s, nil, newClock(t0).Now, nil)

	for _, offset := range []time.Duration{-150 * time.Minute, -90 * time.Minute, -30 * time.Minute, 30 * time.Minute, 90 * time.Minute} {
		ts := t0.Add(offset)
		require.NoError(t, s.InsertMinutely(ctx, &weather.MinutelyRecord{LocationID: loc.ID, DataTimestamp: ts, ForecastTimestamp: t0, Precipitation: ptr(0.5)}))
	}

	next, err := svc.MinutelyNextHour(ctx, loc.ID)
	require.NoError(t, err)
	assert.Len(t, next, 1)

	recent, err := svc.RecentMinutely(ctx, loc.ID, true)
	require.NoError(t, err)
	assert.Len(t, recent.Records, 2)
	require.Len(t, recent.Hours, 2)
	assert.Equal(t, t0.Add(-2*time.Hour), recent.Hours[0].Hour)

	plain, err := svc.RecentMinutely(ctx, loc.ID, false)
	require.NoError(t, err)
	assert.Nil(t, plain.Hours)
}

func TestProviderLifecycle(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	svc := weather.NewService(s, nil, newClock(t0).Now, nil)

	p, err := svc.CreateProvider(ctx, weather.ProviderInput{Name: "owm", BaseURL: "https://api.example.com/onecall/", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, weather.DefaultRateLimitMinutes, p.RateLimitMinutes)
	assert.Equal(t, "https://api.example.com/onecall", p.BaseURL)
	assert.False(t, p.IsActive)

	_, err = svc.CreateProvider(ctx, weather.ProviderInput{Name: "owm", BaseURL: "not a url", APIKey: "k"})
	assert.ErrorIs(t, err, weather.ErrValidation)

	p, err = svc.SetProviderActive(ctx, p.ID, true)
	require.NoError(t, err)
	assert.True(t, p.IsActive)

	active, err := svc.ListProviders(ctx, true)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}
