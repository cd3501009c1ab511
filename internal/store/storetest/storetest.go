// Package storetest holds the behaviour every weather.Store implementation
// must share.
package storetest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-ingest/internal/weather"
)

var base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func newLocation(t *testing.T, s weather.Store, name string, lat, lon float64) weather.Location {
	t.Helper()
	loc := &weather.Location{
		Name:      name,
		Latitude:  lat,
		Longitude: lon,
		Units:     weather.UnitsMetric,
		IsActive:  true,
		CreatedAt: base,
		UpdatedAt: base,
	}
	require.NoError(t, s.CreateLocation(context.Background(), loc))
	require.NotEmpty(t, loc.ID)
	return *loc
}

// Run exercises s against the store contract. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) weather.Store) {
	ctx := context.Background()

	t.Run("locations", func(t *testing.T) {
		s := newStore(t)
		a := newLocation(t, s, "Berlin", 52.52, 13.405)
		newLocation(t, s, "Amsterdam", 52.3676, 4.9041)

		err := s.CreateLocation(ctx, &weather.Location{Name: "Dup", Latitude: 52.52, Longitude: 13.405, Units: weather.UnitsMetric})
		assert.ErrorIs(t, err, weather.ErrDuplicateLocation)

		got, found, err := s.FindLocationByCoordinates(ctx, 52.52, 13.405)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, a.ID, got.ID)

		list, err := s.ListLocations(ctx, weather.LocationFilter{})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "Amsterdam", list[0].Name)

		a.IsFavorite = true
		a.Timezone = "Europe/Berlin"
		a.GeocodingData = json.RawMessage(`{"source":"test"}`)
		require.NoError(t, s.UpdateLocation(ctx, a))
		favs, err := s.ListLocations(ctx, weather.LocationFilter{FavoriteOnly: true})
		require.NoError(t, err)
		require.Len(t, favs, 1)
		assert.Equal(t, "Europe/Berlin", favs[0].Timezone)
		assert.JSONEq(t, `{"source":"test"}`, string(favs[0].GeocodingData))

		require.NoError(t, s.SoftDeleteLocation(ctx, a.ID, base.Add(time.Hour)))
		deleted, err := s.GetLocation(ctx, a.ID)
		require.NoError(t, err)
		assert.True(t, deleted.Deleted())
		assert.False(t, deleted.IsActive)

		_, found, err = s.FindLocationByCoordinates(ctx, 52.52, 13.405)
		require.NoError(t, err)
		assert.False(t, found)
		require.NoError(t, s.CreateLocation(ctx, &weather.Location{Name: "Berlin again", Latitude: 52.52, Longitude: 13.405, Units: weather.UnitsMetric, IsActive: true}))

		all, err := s.ListLocations(ctx, weather.LocationFilter{IncludeDeleted: true})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		_, err = s.GetLocation(ctx, "missing")
		assert.ErrorIs(t, err, weather.ErrNotFound)
		assert.ErrorIs(t, s.DeleteLocation(ctx, "missing"), weather.ErrNotFound)
	})

	t.Run("providers", func(t *testing.T) {
		s := newStore(t)
		first := &weather.ProviderConfig{Name: "a", BaseURL: "http://a", APIKey: "k", IsActive: true, CreatedAt: base, UpdatedAt: base}
		second := &weather.ProviderConfig{Name: "b", BaseURL: "http://b", APIKey: "k", IsActive: false, CreatedAt: base.Add(time.Minute), UpdatedAt: base}
		require.NoError(t, s.CreateProvider(ctx, first))
		require.NoError(t, s.CreateProvider(ctx, second))

		active, err := s.ListProviders(ctx, true)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, first.ID, active[0].ID)

		second.IsActive = true
		require.NoError(t, s.UpdateProvider(ctx, *second))
		all, err := s.ListProviders(ctx, true)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, []string{first.ID, second.ID}, []string{all[0].ID, all[1].ID})

		_, err = s.GetProvider(ctx, "missing")
		assert.ErrorIs(t, err, weather.ErrNotFound)
	})

	t.Run("weather records", func(t *testing.T) {
		s := newStore(t)
		loc := newLocation(t, s, "Oslo", 59.9139, 10.7522)

		for i := 0; i < 3; i++ {
			rec := &weather.WeatherRecord{
				LocationID:    loc.ID,
				DataType:      weather.DataTypeHourly,
				DataTimestamp: base.Add(time.Duration(i) * time.Hour),
				Temperature:   ptr(float64(10 + i)),
				CreatedAt:     base,
				UpdatedAt:     base,
			}
			require.NoError(t, s.InsertWeatherRecord(ctx, rec))
		}

		dup := &weather.WeatherRecord{LocationID: loc.ID, DataType: weather.DataTypeHourly, DataTimestamp: base, CreatedAt: base, UpdatedAt: base}
		assert.ErrorIs(t, s.InsertWeatherRecord(ctx, dup), weather.ErrDuplicateRecord)

		orphan := &weather.WeatherRecord{LocationID: "missing", DataType: weather.DataTypeHourly, DataTimestamp: base, CreatedAt: base, UpdatedAt: base}
		assert.ErrorIs(t, s.InsertWeatherRecord(ctx, orphan), weather.ErrNotFound)

		found, ok, err := s.FindWeatherRecord(ctx, loc.ID, weather.DataTypeHourly, base.Add(time.Hour))
		require.NoError(t, err)
		require.True(t, ok)
		assert.InDelta(t, 11, *found.Temperature, 1e-9)

		found.Temperature = ptr(99.0)
		require.NoError(t, s.UpdateWeatherRecord(ctx, found))

		desc, err := s.QueryWeatherRecords(ctx, weather.RecordQuery{LocationID: loc.ID, DataType: weather.DataTypeHourly, Descending: true, Limit: 2})
		require.NoError(t, err)
		require.Len(t, desc, 2)
		assert.Equal(t, base.Add(2*time.Hour), desc[0].DataTimestamp)
		assert.InDelta(t, 99, *desc[1].Temperature, 1e-9)

		ranged, err := s.QueryWeatherRecords(ctx, weather.RecordQuery{LocationID: loc.ID, From: base.Add(time.Hour), To: base.Add(2 * time.Hour)})
		require.NoError(t, err)
		assert.Len(t, ranged, 2)

		n, err := s.DeleteWeatherRecords(ctx, weather.RecordDelete{LocationID: loc.ID, DataType: weather.DataTypeHourly, Before: base.Add(time.Hour)})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = s.DeleteWeatherRecordsUpTo(ctx, loc.ID, weather.DataTypeHourly, base.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		left, err := s.QueryWeatherRecords(ctx, weather.RecordQuery{LocationID: loc.ID})
		require.NoError(t, err)
		assert.Len(t, left, 1)
	})

	t.Run("minutely", func(t *testing.T) {
		s := newStore(t)
		loc := newLocation(t, s, "Rome", 41.9028, 12.4964)

		rec := &weather.MinutelyRecord{LocationID: loc.ID, DataTimestamp: base, ForecastTimestamp: base, Precipitation: ptr(0.1), CreatedAt: base}
		require.NoError(t, s.InsertMinutely(ctx, rec))

		again := &weather.MinutelyRecord{LocationID: loc.ID, DataTimestamp: base, ForecastTimestamp: base, CreatedAt: base}
		assert.ErrorIs(t, s.InsertMinutely(ctx, again), weather.ErrDuplicateRecord)

		exists, err := s.MinutelyExists(ctx, loc.ID, base)
		require.NoError(t, err)
		assert.True(t, exists)
		exists, err = s.MinutelyExists(ctx, loc.ID, base.Add(time.Minute))
		require.NoError(t, err)
		assert.False(t, exists)

		require.NoError(t, s.InsertMinutely(ctx, &weather.MinutelyRecord{LocationID: loc.ID, DataTimestamp: base.Add(time.Minute), ForecastTimestamp: base, IsForecast: true, CreatedAt: base}))
		got, err := s.QueryMinutely(ctx, weather.RecordQuery{LocationID: loc.ID})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.True(t, got[1].IsForecast)

		n, err := s.DeleteMinutely(ctx, weather.RecordDelete{Before: base.Add(time.Minute)})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("alerts", func(t *testing.T) {
		s := newStore(t)
		loc := newLocation(t, s, "Miami", 25.7617, -80.1918)

		a := &weather.AlertRecord{
			LocationID: loc.ID, SenderName: "NWS", Event: "Hurricane Warning",
			StartTime: base, EndTime: base.Add(6 * time.Hour),
			Tags: []string{"Wind", "Flood"}, Severity: weather.SeverityExtreme,
			Urgency: weather.UrgencyUnknown, Certainty: weather.CertaintyUnknown,
			IsActive: true, CreatedAt: base, UpdatedAt: base,
		}
		require.NoError(t, s.InsertAlert(ctx, a))
		dup := *a
		dup.ID = ""
		assert.ErrorIs(t, s.InsertAlert(ctx, &dup), weather.ErrDuplicateRecord)

		found, ok, err := s.FindAlert(ctx, loc.ID, "NWS", "Hurricane Warning", base)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []string{"Wind", "Flood"}, found.Tags)

		resolvedAt := base.Add(time.Hour)
		found.ResolvedAt = &resolvedAt
		found.IsActive = false
		require.NoError(t, s.UpdateAlert(ctx, found))

		got, err := s.GetAlert(ctx, a.ID)
		require.NoError(t, err)
		assert.False(t, got.IsActive)
		require.NotNil(t, got.ResolvedAt)

		active, err := s.QueryAlerts(ctx, weather.AlertQuery{LocationID: loc.ID, ActiveOnly: true})
		require.NoError(t, err)
		assert.Empty(t, active)

		bySeverity, err := s.QueryAlerts(ctx, weather.AlertQuery{Severity: weather.SeverityExtreme})
		require.NoError(t, err)
		assert.Len(t, bySeverity, 1)

		n, err := s.DeleteAlerts(ctx, weather.AlertDelete{EndedBefore: base.Add(7 * time.Hour), ResolvedOnly: true})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = s.GetAlert(ctx, a.ID)
		assert.ErrorIs(t, err, weather.ErrNotFound)
	})

	t.Run("hard delete removes owned data", func(t *testing.T) {
		s := newStore(t)
		loc := newLocation(t, s, "Lima", -12.0464, -77.0428)
		require.NoError(t, s.InsertWeatherRecord(ctx, &weather.WeatherRecord{LocationID: loc.ID, DataType: weather.DataTypeCurrent, DataTimestamp: base, CreatedAt: base, UpdatedAt: base}))
		require.NoError(t, s.InsertMinutely(ctx, &weather.MinutelyRecord{LocationID: loc.ID, DataTimestamp: base, ForecastTimestamp: base, CreatedAt: base}))

		require.NoError(t, s.DeleteLocation(ctx, loc.ID))

		recs, err := s.QueryWeatherRecords(ctx, weather.RecordQuery{LocationID: loc.ID})
		require.NoError(t, err)
		assert.Empty(t, recs)
		mins, err := s.QueryMinutely(ctx, weather.RecordQuery{LocationID: loc.ID})
		require.NoError(t, err)
		assert.Empty(t, mins)
	})
}
