package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/i474232898/weather-ingest/internal/logger"
)

const (
	// CurrentFreshness bounds how old a current record may be to count as current.
	CurrentFreshness = time.Hour
	// RecentMinutelyWindow is the look-back of the recent minutely query.
	RecentMinutelyWindow = 2 * time.Hour
	// DefaultMinutelyCleanupAge is the age used by explicit minutely cleanup.
	DefaultMinutelyCleanupAge = 6 * time.Hour

	defaultHourlyLimit = 48
	defaultDailyLimit  = 8
	defaultRecordLimit = 100
	maxRecordLimit     = 1000
	defaultSearchLimit = 5
	maxSearchLimit     = 10
)

// Service is the read and lifecycle side over the store. It never calls the
// provider; data is returned as reconciled.
type Service struct {
	store    Store
	geocoder Geocoder
	clock    Clock
	logger   *zap.Logger
}

// NewService creates a new Service. geocoder may be nil, in which case
// geocoding operations report missing configuration.
func NewService(store Store, geocoder Geocoder, clock Clock, log *zap.Logger) *Service {
	return &Service{
		store:    store,
		geocoder: geocoder,
		clock:    clock,
		logger:   logger.OrNop(log),
	}
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time { return s.clock.now() }

// CurrentWeather returns the newest current record no older than CurrentFreshness.
func (s *Service) CurrentWeather(ctx context.Context, locationID string) (WeatherRecord, error) {
	if _, err := s.liveLocation(ctx, locationID); err != nil {
		return WeatherRecord{}, err
	}
	recs, err := s.store.QueryWeatherRecords(ctx, RecordQuery{
		LocationID: locationID,
		DataType:   DataTypeCurrent,
		From:       s.clock.now().Add(-CurrentFreshness),
		Descending: true,
		Limit:      1,
	})
	if err != nil {
		return WeatherRecord{}, err
	}
	if len(recs) == 0 {
		return WeatherRecord{}, fmt.Errorf("current weather for %s: %w", locationID, ErrNotFound)
	}
	return recs[0], nil
}

// HourlyForecast returns hourly records within [from, to]. A zero from
// defaults to the start of the current hour; a zero to is open.
func (s *Service) HourlyForecast(ctx context.Context, locationID string, from, to time.Time, limit int) ([]WeatherRecord, error) {
	if from.IsZero() {
		from = s.clock.now().Truncate(time.Hour)
	}
	return s.Records(ctx, locationID, DataTypeHourly, from, to, capLimit(limit, defaultHourlyLimit))
}

// DailyForecast returns daily records within [from, to]. A zero from
// defaults to the start of the current UTC day; a zero to is open.
func (s *Service) DailyForecast(ctx context.Context, locationID string, from, to time.Time, limit int) ([]WeatherRecord, error) {
	if from.IsZero() {
		now := s.clock.now()
		from = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
	return s.Records(ctx, locationID, DataTypeDaily, from, to, capLimit(limit, defaultDailyLimit))
}

// Historical returns historical records within [from, to].
func (s *Service) Historical(ctx context.Context, locationID string, from, to time.Time, limit int) ([]WeatherRecord, error) {
	return s.Records(ctx, locationID, DataTypeHistorical, from, to, limit)
}

// Records returns records of one data type within [from, to] ordered by
// timestamp. Zero bounds are open.
func (s *Service) Records(ctx context.Context, locationID string, dataType DataType, from, to time.Time, limit int) ([]WeatherRecord, error) {
	if !dataType.Valid() {
		return nil, invalid("data_type", "is not a known data type")
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return nil, invalid("to", "must not be before from")
	}
	if _, err := s.liveLocation(ctx, locationID); err != nil {
		return nil, err
	}
	return s.store.QueryWeatherRecords(ctx, RecordQuery{
		LocationID: locationID,
		DataType:   dataType,
		From:       from,
		To:         to,
		Limit:      capLimit(limit, defaultRecordLimit),
	})
}

// MinutelyNextHour returns minutely records within [now, now+1h].
func (s *Service) MinutelyNextHour(ctx context.Context, locationID string) ([]MinutelyRecord, error) {
	if _, err := s.liveLocation(ctx, locationID); err != nil {
		return nil, err
	}
	now := s.clock.now()
	return s.store.QueryMinutely(ctx, RecordQuery{LocationID: locationID, From: now, To: now.Add(time.Hour)})
}

// MinutelySummary is the result of a recent minutely query.
type MinutelySummary struct {
	Records []MinutelyRecord      `json:"records"`
	Hours   []HourlyPrecipitation `json:"hours,omitempty"`
}

// RecentMinutely returns minutely records of the last two hours, optionally
// grouped into per-hour aggregates.
func (s *Service) RecentMinutely(ctx context.Context, locationID string, grouped bool) (MinutelySummary, error) {
	if _, err := s.liveLocation(ctx, locationID); err != nil {
		return MinutelySummary{}, err
	}
	now := s.clock.now()
	recs, err := s.store.QueryMinutely(ctx, RecordQuery{LocationID: locationID, From: now.Add(-RecentMinutelyWindow), To: now})
	if err != nil {
		return MinutelySummary{}, err
	}
	out := MinutelySummary{Records: recs}
	if grouped {
		out.Hours = AggregateMinutely(recs)
	}
	return out, nil
}

// ActiveAlerts returns the alerts of a location that are currently active.
func (s *Service) ActiveAlerts(ctx context.Context, locationID string) ([]AlertRecord, error) {
	if _, err := s.liveLocation(ctx, locationID); err != nil {
		return nil, err
	}
	alerts, err := s.store.QueryAlerts(ctx, AlertQuery{LocationID: locationID, ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	now := s.clock.now()
	out := alerts[:0]
	for _, a := range alerts {
		if a.CurrentlyActive(now) {
			out = append(out, a)
		}
	}
	return out, nil
}

// ListAlerts returns alerts matching q.
func (s *Service) ListAlerts(ctx context.Context, q AlertQuery) ([]AlertRecord, error) {
	q.Limit = capLimit(q.Limit, defaultRecordLimit)
	return s.store.QueryAlerts(ctx, q)
}

// AcknowledgeAlert stamps the alert as acknowledged. Active state is untouched.
func (s *Service) AcknowledgeAlert(ctx context.Context, id string) (AlertRecord, error) {
	a, err := s.store.GetAlert(ctx, id)
	if err != nil {
		return AlertRecord{}, err
	}
	now := s.clock.now()
	a.AcknowledgedAt = &now
	a.UpdatedAt = now
	if err := s.store.UpdateAlert(ctx, a); err != nil {
		return AlertRecord{}, err
	}
	return a, nil
}

// ResolveAlert stamps the alert as resolved and deactivates it. Resolving is
// terminal; repeating it refreshes the timestamp only.
func (s *Service) ResolveAlert(ctx context.Context, id string) (AlertRecord, error) {
	a, err := s.store.GetAlert(ctx, id)
	if err != nil {
		return AlertRecord{}, err
	}
	now := s.clock.now()
	a.ResolvedAt = &now
	a.IsActive = false
	a.UpdatedAt = now
	if err := s.store.UpdateAlert(ctx, a); err != nil {
		return AlertRecord{}, err
	}
	return a, nil
}

// AlertStatsFilter narrows AlertStatistics. From/To bound the alert start time.
type AlertStatsFilter struct {
	LocationID string
	From       time.Time
	To         time.Time
}

// AlertStats are counts over a set of alerts.
type AlertStats struct {
	Total        int              `json:"total"`
	Active       int              `json:"active"`
	Acknowledged int              `json:"acknowledged"`
	Resolved     int              `json:"resolved"`
	BySeverity   map[Severity]int `json:"bySeverity"`
	ByEvent      map[string]int   `json:"byEvent"`
}

// AlertStatistics counts alerts by severity, event, active and acknowledged state.
func (s *Service) AlertStatistics(ctx context.Context, f AlertStatsFilter) (AlertStats, error) {
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return AlertStats{}, invalid("to", "must not be before from")
	}
	alerts, err := s.store.QueryAlerts(ctx, AlertQuery{LocationID: f.LocationID, From: f.From, To: f.To})
	if err != nil {
		return AlertStats{}, err
	}

	now := s.clock.now()
	stats := AlertStats{BySeverity: make(map[Severity]int), ByEvent: make(map[string]int)}
	for _, a := range alerts {
		stats.Total++
		stats.BySeverity[a.Severity]++
		stats.ByEvent[a.Event]++
		if a.CurrentlyActive(now) {
			stats.Active++
		}
		if a.AcknowledgedAt != nil {
			stats.Acknowledged++
		}
		if a.ResolvedAt != nil {
			stats.Resolved++
		}
	}
	return stats, nil
}

// CleanupWeather deletes records of dataType older than olderThan and
// reports how many were removed.
func (s *Service) CleanupWeather(ctx context.Context, dataType DataType, olderThan time.Duration) (int, error) {
	if !dataType.Valid() {
		return 0, invalid("data_type", "is not a known data type")
	}
	if olderThan <= 0 {
		return 0, invalid("older_than", "must be positive")
	}
	n, err := s.store.DeleteWeatherRecords(ctx, RecordDelete{DataType: dataType, Before: s.clock.now().Add(-olderThan)})
	if err != nil {
		return 0, err
	}
	s.logger.Info("weather records cleaned up", zap.String("data_type", string(dataType)), zap.Duration("older_than", olderThan), zap.Int("removed", n))
	return n, nil
}

// CleanupMinutely deletes minutely records older than olderThan
// (DefaultMinutelyCleanupAge when zero).
func (s *Service) CleanupMinutely(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan < 0 {
		return 0, invalid("older_than", "must not be negative")
	}
	if olderThan == 0 {
		olderThan = DefaultMinutelyCleanupAge
	}
	n, err := s.store.DeleteMinutely(ctx, RecordDelete{Before: s.clock.now().Add(-olderThan)})
	if err != nil {
		return 0, err
	}
	s.logger.Info("minutely records cleaned up", zap.Duration("older_than", olderThan), zap.Int("removed", n))
	return n, nil
}

// CleanupAlerts deletes alerts that ended more than olderThan ago, only the
// resolved ones when resolvedOnly is set.
func (s *Service) CleanupAlerts(ctx context.Context, olderThan time.Duration, resolvedOnly bool) (int, error) {
	if olderThan < 0 {
		return 0, invalid("older_than", "must not be negative")
	}
	n, err := s.store.DeleteAlerts(ctx, AlertDelete{EndedBefore: s.clock.now().Add(-olderThan), ResolvedOnly: resolvedOnly})
	if err != nil {
		return 0, err
	}
	s.logger.Info("alerts cleaned up", zap.Duration("older_than", olderThan), zap.Bool("resolved_only", resolvedOnly), zap.Int("removed", n))
	return n, nil
}

// CreateLocation validates in and stores a new active location. Coordinates
// are rounded to CoordinatePrecision and must not collide with a live location.
func (s *Service) CreateLocation(ctx context.Context, in LocationInput) (Location, error) {
	if err := Validate(in); err != nil {
		return Location{}, err
	}
	if in.Units == "" {
		in.Units = UnitsMetric
	}

	lat, lon := RoundCoordinate(in.Latitude), RoundCoordinate(in.Longitude)
	if _, found, err := s.store.FindLocationByCoordinates(ctx, lat, lon); err != nil {
		return Location{}, err
	} else if found {
		return Location{}, fmt.Errorf("%w: (%.7f, %.7f)", ErrDuplicateLocation, lat, lon)
	}

	now := s.clock.now()
	loc := Location{
		ID:            uuid.NewString(),
		Name:          strings.TrimSpace(in.Name),
		City:          in.City,
		State:         in.State,
		Country:       in.Country,
		CountryCode:   strings.ToUpper(in.CountryCode),
		Latitude:      lat,
		Longitude:     lon,
		Units:         in.Units,
		Timezone:      in.Timezone,
		IsActive:      true,
		IsFavorite:    in.IsFavorite,
		GeocodingData: json.RawMessage(in.GeocodingData),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateLocation(ctx, &loc); err != nil {
		return Location{}, err
	}
	s.logger.Info("location created", zap.String("location_id", loc.ID), zap.String("name", loc.Name))
	return loc, nil
}

// SearchLocations proxies a free text geocoding search.
func (s *Service) SearchLocations(ctx context.Context, text string, limit int) ([]GeocodeCandidate, error) {
	if s.geocoder == nil {
		return nil, fmt.Errorf("geocoder: %w", ErrConfigurationMissing)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid("q", "is required")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	return s.geocoder.Search(ctx, text, limit)
}

// CreateLocationFromGeocoding stores a geocoding candidate as a location.
// displayName, when set, wins over the candidate's name.
func (s *Service) CreateLocationFromGeocoding(ctx context.Context, c GeocodeCandidate, displayName string, units Units) (Location, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = c.Name
	}
	return s.CreateLocation(ctx, LocationInput{
		Name:          name,
		City:          c.Name,
		State:         c.State,
		Country:       c.Country,
		CountryCode:   c.CountryCode,
		Latitude:      c.Latitude,
		Longitude:     c.Longitude,
		Units:         units,
		GeocodingData: c.Raw,
	})
}

// GetLocation returns a location that has not been soft deleted.
func (s *Service) GetLocation(ctx context.Context, id string) (Location, error) {
	return s.liveLocation(ctx, id)
}

// ListLocations returns locations matching filter.
func (s *Service) ListLocations(ctx context.Context, filter LocationFilter) ([]Location, error) {
	return s.store.ListLocations(ctx, filter)
}

// SetLocationActive activates or deactivates a location for ingestion.
func (s *Service) SetLocationActive(ctx context.Context, id string, active bool) (Location, error) {
	return s.mutateLocation(ctx, id, func(l *Location) { l.IsActive = active })
}

// ToggleFavorite flips the favorite flag.
func (s *Service) ToggleFavorite(ctx context.Context, id string) (Location, error) {
	return s.mutateLocation(ctx, id, func(l *Location) { l.IsFavorite = !l.IsFavorite })
}

// DeleteLocation soft deletes a location. Its data is retained.
func (s *Service) DeleteLocation(ctx context.Context, id string) error {
	if _, err := s.liveLocation(ctx, id); err != nil {
		return err
	}
	return s.store.SoftDeleteLocation(ctx, id, s.clock.now())
}

// PurgeLocation removes a location and everything it owns.
func (s *Service) PurgeLocation(ctx context.Context, id string) error {
	return s.store.DeleteLocation(ctx, id)
}

// CreateProvider stores a provider config. A zero rate limit becomes the default.
func (s *Service) CreateProvider(ctx context.Context, in ProviderInput) (ProviderConfig, error) {
	if err := Validate(in); err != nil {
		return ProviderConfig{}, err
	}
	if in.RateLimitMinutes == 0 {
		in.RateLimitMinutes = DefaultRateLimitMinutes
	}
	now := s.clock.now()
	p := ProviderConfig{
		ID:               uuid.NewString(),
		Name:             in.Name,
		BaseURL:          strings.TrimRight(in.BaseURL, "/"),
		APIKey:           in.APIKey,
		IsActive:         in.IsActive,
		IsDefault:        in.IsDefault,
		RateLimitMinutes: in.RateLimitMinutes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreateProvider(ctx, &p); err != nil {
		return ProviderConfig{}, err
	}
	return p, nil
}

// ListProviders returns provider configs.
func (s *Service) ListProviders(ctx context.Context, activeOnly bool) ([]ProviderConfig, error) {
	return s.store.ListProviders(ctx, activeOnly)
}

// SetProviderActive toggles whether the scheduler may use the provider.
func (s *Service) SetProviderActive(ctx context.Context, id string, active bool) (ProviderConfig, error) {
	p, err := s.store.GetProvider(ctx, id)
	if err != nil {
		return ProviderConfig{}, err
	}
	p.IsActive = active
	p.UpdatedAt = s.clock.now()
	if err := s.store.UpdateProvider(ctx, p); err != nil {
		return ProviderConfig{}, err
	}
	return p, nil
}

func (s *Service) mutateLocation(ctx context.Context, id string, fn func(*Location)) (Location, error) {
	loc, err := s.liveLocation(ctx, id)
	if err != nil {
		return Location{}, err
	}
	fn(&loc)
	loc.UpdatedAt = s.clock.now()
	if err := s.store.UpdateLocation(ctx, loc); err != nil {
		return Location{}, err
	}
	return loc, nil
}

func (s *Service) liveLocation(ctx context.Context, id string) (Location, error) {
	if id == "" {
		return Location{}, invalid("location_id", "is required")
	}
	loc, err := s.store.GetLocation(ctx, id)
	if err != nil {
		return Location{}, err
	}
	if loc.Deleted() {
		return Location{}, fmt.Errorf("location %s: %w", id, ErrNotFound)
	}
	return loc, nil
}

func capLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxRecordLimit {
		return maxRecordLimit
	}
	return limit
}
