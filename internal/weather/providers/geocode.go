package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kelvins/geocoder"
	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-ingest/internal/weather"
)

// DefaultGeocodingURL is the OpenWeatherMap geocoding API root.
const DefaultGeocodingURL = "https://api.openweathermap.org/geo/1.0"

// OpenWeatherGeocoder resolves place names through the OpenWeatherMap
// direct geocoding endpoint.
type OpenWeatherGeocoder struct {
	baseURL string
	apiKey  string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

var _ weather.Geocoder = (*OpenWeatherGeocoder)(nil)

func NewOpenWeatherGeocoder(client *http.Client, baseURL, apiKey string, timeout time.Duration) *OpenWeatherGeocoder {
	if baseURL == "" {
		baseURL = DefaultGeocodingURL
	}
	return &OpenWeatherGeocoder{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpCfg: HTTPClientConfig{Client: client, Backoff: DefaultBackoff(), Timeout: timeout},
		circuit: newBreaker("openweather-geocoding"),
	}
}

type owmPlace struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
	State   string  `json:"state"`
}

func (g *OpenWeatherGeocoder) Search(ctx context.Context, text string, limit int) ([]weather.GeocodeCandidate, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("geocoding api key: %w", weather.ErrConfigurationMissing)
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("q", text)
		values.Set("limit", strconv.Itoa(limit))
		values.Set("appid", g.apiKey)
		u := fmt.Sprintf("%s/direct?%s", g.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	body, err := doRequestWithResilience(ctx, g.httpCfg, g.circuit, buildRequest)
	if err != nil {
		return nil, toProviderError("openweather-geocoding", err)
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("decode geocoding response: %w", err)
	}

	out := make([]weather.GeocodeCandidate, 0, len(raws))
	for _, raw := range raws {
		var p owmPlace
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode geocoding entry: %w", err)
		}
		out = append(out, weather.GeocodeCandidate{
			Name:        p.Name,
			State:       p.State,
			Country:     p.Country,
			CountryCode: p.Country,
			Latitude:    p.Lat,
			Longitude:   p.Lon,
			Raw:         append(json.RawMessage(nil), raw...),
		})
	}
	return out, nil
}

// GoogleGeocoder resolves place names through the Google Geocoding API. The
// geocoder package keeps its key in a package variable, so calls are
// serialized.
type GoogleGeocoder struct {
	apiKey string
	mu     sync.Mutex
}

var _ weather.Geocoder = (*GoogleGeocoder)(nil)

func NewGoogleGeocoder(apiKey string) *GoogleGeocoder {
	return &GoogleGeocoder{apiKey: apiKey}
}

// Search returns at most one candidate: the forward match, named by the
// first reverse-geocoded address.
func (g *GoogleGeocoder) Search(ctx context.Context, text string, limit int) ([]weather.GeocodeCandidate, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("google geocoding api key: %w", weather.ErrConfigurationMissing)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []weather.GeocodeCandidate{}, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	geocoder.ApiKey = g.apiKey

	point, err := geocoder.Geocoding(geocoder.Address{City: text})
	if err != nil {
		return nil, &weather.ProviderError{Provider: "google-geocoding", Err: err}
	}

	candidate := weather.GeocodeCandidate{Name: text, Latitude: point.Latitude, Longitude: point.Longitude}
	if addresses, err := geocoder.GeocodingReverse(point); err == nil && len(addresses) > 0 {
		a := addresses[0]
		if a.City != "" {
			candidate.Name = a.City
		}
		candidate.State = a.State
		candidate.Country = a.Country
		if raw, err := json.Marshal(a); err == nil {
			candidate.Raw = raw
		}
	}
	return []weather.GeocodeCandidate{candidate}, nil
}
