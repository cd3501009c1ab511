package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/i474232898/weather-ingest/internal/logger"
	"github.com/i474232898/weather-ingest/internal/weather"
)

// DefaultOneCallURL is the One Call endpoint used when a provider config
// leaves the base URL empty.
const DefaultOneCallURL = "https://api.openweathermap.org/data/3.0/onecall"

// OpenWeatherProvider implements weather.Fetcher for the OpenWeatherMap One Call API.
type OpenWeatherProvider struct {
	name    string
	httpCfg HTTPClientConfig
	logger  *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

var _ weather.Fetcher = (*OpenWeatherProvider)(nil)

// NewOpenWeatherProvider creates the fetcher. timeout bounds every call,
// retries included.
func NewOpenWeatherProvider(client *http.Client, timeout time.Duration, backoff BackoffConfig, log *zap.Logger) *OpenWeatherProvider {
	return &OpenWeatherProvider{
		name: "openweathermap",
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: backoff,
			Timeout: timeout,
		},
		logger:   logger.OrNop(log),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

// breaker returns the circuit breaker of one provider config.
func (p *OpenWeatherProvider) breaker(providerID string) *gobreaker.CircuitBreaker {
	p.mu.Lock()
	defer p.mu.Unlock()

	cb, ok := p.breakers[providerID]
	if !ok {
		cb = newBreaker(p.name + ":" + providerID)
		p.breakers[providerID] = cb
	}
	return cb
}

// Fetch calls the One Call endpoint for loc and normalizes the response.
func (p *OpenWeatherProvider) Fetch(ctx context.Context, loc weather.Location, provider weather.ProviderConfig, exclude []weather.Dataset) (*weather.Payload, error) {
	values, err := p.baseValues(loc, provider)
	if err != nil {
		return nil, err
	}
	if len(exclude) > 0 {
		names := make([]string, 0, len(exclude))
		for _, d := range exclude {
			names = append(names, string(d))
		}
		values.Set("exclude", strings.Join(names, ","))
	}

	body, err := p.get(ctx, provider, endpoint(provider), values)
	if err != nil {
		return nil, err
	}

	payload, err := NormalizeOneCall(body)
	if err != nil {
		return nil, &weather.ProviderError{Provider: provider.Name, Err: err}
	}
	for d, problem := range payload.Problems {
		p.logger.Warn("provider dataset could not be normalized",
			zap.String("provider_id", provider.ID),
			zap.String("location_id", loc.ID),
			zap.String("dataset", string(d)),
			zap.Error(problem),
		)
	}
	return payload, nil
}

// FetchHistorical calls the timemachine variant for the target time.
func (p *OpenWeatherProvider) FetchHistorical(ctx context.Context, loc weather.Location, provider weather.ProviderConfig, at time.Time, kind weather.HistoricalKind) ([]weather.WeatherRecord, error) {
	values, err := p.baseValues(loc, provider)
	if err != nil {
		return nil, err
	}
	values.Set("dt", strconv.FormatInt(at.Unix(), 10))
	values.Set("type", string(kind))

	body, err := p.get(ctx, provider, endpoint(provider)+"/timemachine", values)
	if err != nil {
		return nil, err
	}

	var records []weather.WeatherRecord
	switch kind {
	case weather.HistoricalDay:
		var rec weather.WeatherRecord
		rec, err = NormalizeDaySummary(body, at)
		records = []weather.WeatherRecord{rec}
	default:
		records, err = NormalizeTimemachine(body)
	}
	if err != nil {
		return nil, &weather.ProviderError{Provider: provider.Name, Err: err}
	}
	return records, nil
}

func (p *OpenWeatherProvider) baseValues(loc weather.Location, provider weather.ProviderConfig) (url.Values, error) {
	if provider.APIKey == "" {
		return nil, fmt.Errorf("provider %s has no api key: %w", provider.ID, weather.ErrConfigurationMissing)
	}
	units := loc.Units
	if !units.Valid() {
		units = weather.UnitsMetric
	}

	values := url.Values{}
	values.Set("lat", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
	values.Set("lon", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	values.Set("appid", provider.APIKey)
	values.Set("units", string(units))
	return values, nil
}

func (p *OpenWeatherProvider) get(ctx context.Context, provider weather.ProviderConfig, base string, values url.Values) ([]byte, error) {
	buildRequest := func(ctx context.Context) (*http.Request, error) {
		u := fmt.Sprintf("%s?%s", base, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	body, err := doRequestWithResilience(ctx, p.httpCfg, p.breaker(provider.ID), buildRequest)
	if err != nil {
		perr := toProviderError(provider.Name, err)
		p.logger.Warn("provider request failed",
			zap.String("provider_id", provider.ID),
			zap.Int("status", perr.StatusCode),
			zap.String("body", perr.Body),
			zap.Error(err),
		)
		return nil, perr
	}
	return body, nil
}

func toProviderError(name string, err error) *weather.ProviderError {
	var se *statusError
	if errors.As(err, &se) {
		return &weather.ProviderError{Provider: name, StatusCode: se.code, Body: se.body, Err: err}
	}
	return &weather.ProviderError{Provider: name, Err: err}
}

func endpoint(provider weather.ProviderConfig) string {
	if provider.BaseURL == "" {
		return DefaultOneCallURL
	}
	return strings.TrimRight(provider.BaseURL, "/")
}
