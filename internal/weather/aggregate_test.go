package weather_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-ingest/internal/weather"
)

func TestAggregateMinutely(t *testing.T) {
	assert.Nil(t, weather.AggregateMinutely(nil))

	records := []weather.MinutelyRecord{
		{DataTimestamp: t0.Add(70 * time.Minute), Precipitation: ptr(0.0)},
		{DataTimestamp: t0.Add(5 * time.Minute), Precipitation: ptr(0.4), PrecipitationProbability: ptr(0.8)},
		{DataTimestamp: t0.Add(10 * time.Minute), Precipitation: ptr(1.1), PrecipitationProbability: ptr(0.4)},
		{DataTimestamp: t0.Add(15 * time.Minute)},
	}

	got := weather.AggregateMinutely(records)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, t0, first.Hour)
	assert.Equal(t, 3, first.Samples)
	assert.Equal(t, 2, first.WetMinutes)
	assert.InDelta(t, 1.5, first.TotalPrecipitation, 1e-9)
	assert.InDelta(t, 1.1, first.MaxPrecipitation, 1e-9)
	require.NotNil(t, first.MeanProbability)
	assert.InDelta(t, 0.6, *first.MeanProbability, 1e-9)

	second := got[1]
	assert.Equal(t, t0.Add(time.Hour), second.Hour)
	assert.Equal(t, 1, second.Samples)
	assert.Zero(t, second.WetMinutes)
	assert.Nil(t, second.MeanProbability)
}

func TestAggregateMinutelyBucketsInUTC(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	got := weather.AggregateMinutely([]weather.MinutelyRecord{
		{DataTimestamp: t0.In(est).Add(30 * time.Minute), Precipitation: ptr(0.2)},
	})
	require.Len(t, got, 1)
	assert.Equal(t, time.UTC, got[0].Hour.Location())
	assert.True(t, got[0].Hour.Equal(t0))
}
