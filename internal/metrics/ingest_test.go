package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestionRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewIngestion("weather", reg)

	m.ObserveCycle("completed", time.Second)
	m.ObserveLocation("processed")
	m.ObserveFetch("openweathermap", nil, 200*time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CyclesTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LocationsTotal.WithLabelValues("processed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchesTotal.WithLabelValues("openweathermap", "success")))
}

func TestIngestionObserveDataset(t *testing.T) {
	m := NewIngestion("weather", nil)

	m.ObserveDataset("hourly", 3, 2, 1, 4, nil)
	m.ObserveDataset("daily", 0, 0, 0, 0, errors.New("boom"))

	assert.Equal(t, 3.0, testutil.ToFloat64(m.RecordsTotal.WithLabelValues("hourly", "inserted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordsTotal.WithLabelValues("hourly", "updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsTotal.WithLabelValues("hourly", "skipped")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.RecordsTotal.WithLabelValues("hourly", "purged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DatasetErrorTotal.WithLabelValues("daily")))
}

func TestNilIngestionIsNoop(t *testing.T) {
	var m *Ingestion
	assert.NotPanics(t, func() {
		m.ObserveCycle("completed", time.Second)
		m.ObserveLocation("failed")
		m.ObserveFetch("p", errors.New("x"), time.Second)
		m.ObserveDataset("current", 1, 0, 0, 0, nil)
	})
}
