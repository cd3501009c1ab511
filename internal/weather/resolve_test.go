package weather_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-ingest/internal/store"
	"github.com/i474232898/weather-ingest/internal/weather"
)

func TestResolveProvider(t *testing.T) {
	tests := []struct {
		name      string
		providers []weather.ProviderConfig
		id        string
		wantName  string
		wantErr   error
	}{
		{name: "none configured", wantErr: weather.ErrConfigurationMissing},
		{
			name:      "only inactive",
			providers: []weather.ProviderConfig{{Name: "a"}},
			wantErr:   weather.ErrConfigurationMissing,
		},
		{
			name:      "single active",
			providers: []weather.ProviderConfig{{Name: "a", IsActive: true}, {Name: "b"}},
			wantName:  "a",
		},
		{
			name:      "default wins among several",
			providers: []weather.ProviderConfig{{Name: "a", IsActive: true}, {Name: "b", IsActive: true, IsDefault: true}},
			wantName:  "b",
		},
		{
			name:      "several active without default",
			providers: []weather.ProviderConfig{{Name: "a", IsActive: true}, {Name: "b", IsActive: true}},
			wantErr:   weather.ErrConfigurationMissing,
		},
		{
			name:      "several defaults",
			providers: []weather.ProviderConfig{{Name: "a", IsActive: true, IsDefault: true}, {Name: "b", IsActive: true, IsDefault: true}},
			wantErr:   weather.ErrConfigurationMissing,
		},
		{
			name:      "explicit id",
			providers: []weather.ProviderConfig{{ID: "p-a", Name: "a", IsActive: true, IsDefault: true}, {ID: "p-b", Name: "b"}},
			id:        "p-b",
			wantName:  "b",
		},
		{
			name:    "unknown explicit id",
			id:      "nope",
			wantErr: weather.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.NewMemoryStore()
			for _, p := range tt.providers {
				seedProvider(t, s, p)
			}

			got, err := weather.ResolveProvider(context.Background(), s, tt.id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, got.Name)
		})
	}
}
