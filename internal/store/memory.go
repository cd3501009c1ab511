package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/weather-ingest/internal/weather"
)

// locationData holds everything owned by one location.
type locationData struct {
	records  []weather.WeatherRecord
	minutely []weather.MinutelyRecord
	alerts   []weather.AlertRecord
}

// MemoryStore is a concurrency-safe in-memory implementation of weather.Store.
type MemoryStore struct {
	mu sync.RWMutex

	locations map[string]weather.Location
	providers map[string]weather.ProviderConfig

	// key: location id
	data map[string]*locationData
}

var _ weather.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locations: make(map[string]weather.Location),
		providers: make(map[string]weather.ProviderConfig),
		data:      make(map[string]*locationData),
	}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, weather.ErrNotFound)
}

// CreateLocation stores loc, assigning an id when empty.
func (s *MemoryStore) CreateLocation(_ context.Context, loc *weather.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.locations {
		if !existing.Deleted() && existing.Latitude == loc.Latitude && existing.Longitude == loc.Longitude {
			return weather.ErrDuplicateLocation
		}
	}
	if loc.ID == "" {
		loc.ID = uuid.NewString()
	}
	if loc.CreatedAt.IsZero() {
		loc.CreatedAt = time.Now().UTC()
		loc.UpdatedAt = loc.CreatedAt
	}
	s.locations[loc.ID] = *loc
	s.data[loc.ID] = &locationData{}
	return nil
}

// GetLocation returns a location by id, soft deleted ones included.
func (s *MemoryStore) GetLocation(_ context.Context, id string) (weather.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loc, ok := s.locations[id]
	if !ok {
		return weather.Location{}, notFound("location", id)
	}
	return loc, nil
}

// FindLocationByCoordinates looks up a live location at exactly lat/lon.
func (s *MemoryStore) FindLocationByCoordinates(_ context.Context, lat, lon float64) (weather.Location, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, loc := range s.locations {
		if !loc.Deleted() && loc.Latitude == lat && loc.Longitude == lon {
			return loc, true, nil
		}
	}
	return weather.Location{}, false, nil
}

// ListLocations returns locations matching filter ordered by name.
func (s *MemoryStore) ListLocations(_ context.Context, filter weather.LocationFilter) ([]weather.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []weather.Location
	for _, loc := range s.locations {
		if loc.Deleted() && !filter.IncludeDeleted {
			continue
		}
		if filter.ActiveOnly && !loc.IsActive {
			continue
		}
		if filter.FavoriteOnly && !loc.IsFavorite {
			continue
		}
		out = append(out, loc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// UpdateLocation replaces a stored location.
func (s *MemoryStore) UpdateLocation(_ context.Context, loc weather.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.locations[loc.ID]; !ok {
		return notFound("location", loc.ID)
	}
	s.locations[loc.ID] = loc
	return nil
}

// SoftDeleteLocation marks a location deleted and inactive.
func (s *MemoryStore) SoftDeleteLocation(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc, ok := s.locations[id]
	if !ok {
		return notFound("location", id)
	}
	loc.DeletedAt = &at
	loc.IsActive = false
	loc.UpdatedAt = at
	s.locations[id] = loc
	return nil
}

// DeleteLocation removes a location and all data it owns.
func (s *MemoryStore) DeleteLocation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.locations[id]; !ok {
		return notFound("location", id)
	}
	delete(s.locations, id)
	delete(s.data, id)
	return nil
}

// CreateProvider stores p, assigning an id when empty.
func (s *MemoryStore) CreateProvider(_ context.Context, p *weather.ProviderConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.providers[p.ID] = *p
	return nil
}

// GetProvider returns a provider config by id.
func (s *MemoryStore) GetProvider(_ context.Context, id string) (weather.ProviderConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.providers[id]
	if !ok {
		return weather.ProviderConfig{}, notFound("provider", id)
	}
	return p, nil
}

// ListProviders returns provider configs ordered by creation time.
func (s *MemoryStore) ListProviders(_ context.Context, activeOnly bool) ([]weather.ProviderConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []weather.ProviderConfig
	for _, p := range s.providers {
		if activeOnly && !p.IsActive {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateProvider replaces a stored provider config.
func (s *MemoryStore) UpdateProvider(_ context.Context, p weather.ProviderConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.providers[p.ID]; !ok {
		return notFound("provider", p.ID)
	}
	s.providers[p.ID] = p
	return nil
}

// owned returns the data of a location; the caller must hold the lock.
func (s *MemoryStore) owned(locationID string) (*locationData, error) {
	d, ok := s.data[locationID]
	if !ok {
		return nil, notFound("location", locationID)
	}
	return d, nil
}

// InsertWeatherRecord stores rec. (location, type, timestamp) must be unique.
func (s *MemoryStore) InsertWeatherRecord(_ context.Context, rec *weather.WeatherRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.owned(rec.LocationID)
	if err != nil {
		return err
	}
	for _, r := range d.records {
		if r.DataType == rec.DataType && r.DataTimestamp.Equal(rec.DataTimestamp) {
			return weather.ErrDuplicateRecord
		}
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	d.records = append(d.records, *rec)
	return nil
}

// FindWeatherRecord looks a record up by its natural key.
func (s *MemoryStore) FindWeatherRecord(_ context.Context, locationID string, dataType weather.DataType, ts time.Time) (weather.WeatherRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.data[locationID]
	if !ok {
		return weather.WeatherRecord{}, false, nil
	}
	for _, r := range d.records {
		if r.DataType == dataType && r.DataTimestamp.Equal(ts) {
			return r, true, nil
		}
	}
	return weather.WeatherRecord{}, false, nil
}

// UpdateWeatherRecord replaces the record with the same id.
func (s *MemoryStore) UpdateWeatherRecord(_ context.Context, rec weather.WeatherRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.owned(rec.LocationID)
	if err != nil {
		return err
	}
	for i := range d.records {
		if d.records[i].ID == rec.ID {
			d.records[i] = rec
			return nil
		}
	}
	return notFound("weather record", rec.ID)
}

// QueryWeatherRecords returns records matching q ordered by timestamp.
func (s *MemoryStore) QueryWeatherRecords(_ context.Context, q weather.RecordQuery) ([]weather.WeatherRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []weather.WeatherRecord
	for id, d := range s.data {
		if q.LocationID != "" && id != q.LocationID {
			continue
		}
		for _, r := range d.records {
			if q.DataType != "" && r.DataType != q.DataType {
				continue
			}
			if !inRange(r.DataTimestamp, q.From, q.To) {
				continue
			}
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if q.Descending {
			return out[i].DataTimestamp.After(out[j].DataTimestamp)
		}
		return out[i].DataTimestamp.Before(out[j].DataTimestamp)
	})
	return limit(out, q.Limit), nil
}

// DeleteWeatherRecords removes records older than d.Before.
func (s *MemoryStore) DeleteWeatherRecords(_ context.Context, del weather.RecordDelete) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, d := range s.data {
		if del.LocationID != "" && id != del.LocationID {
			continue
		}
		kept := d.records[:0]
		for _, r := range d.records {
			if (del.DataType == "" || r.DataType == del.DataType) && r.DataTimestamp.Before(del.Before) {
				removed++
				continue
			}
			kept = append(kept, r)
		}
		d.records = kept
	}
	return removed, nil
}

// DeleteWeatherRecordsUpTo removes records of the type at or before ts.
func (s *MemoryStore) DeleteWeatherRecordsUpTo(_ context.Context, locationID string, dataType weather.DataType, ts time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.data[locationID]
	if !ok {
		return 0, nil
	}
	removed := 0
	kept := d.records[:0]
	for _, r := range d.records {
		if r.DataType == dataType && !r.DataTimestamp.After(ts) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	d.records = kept
	return removed, nil
}

// InsertMinutely stores rec unless its natural key is taken.
func (s *MemoryStore) InsertMinutely(_ context.Context, rec *weather.MinutelyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.owned(rec.LocationID)
	if err != nil {
		return err
	}
	for _, m := range d.minutely {
		if m.DataTimestamp.Equal(rec.DataTimestamp) && m.ForecastTimestamp.Equal(rec.ForecastTimestamp) {
			return weather.ErrDuplicateRecord
		}
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	d.minutely = append(d.minutely, *rec)
	return nil
}

// MinutelyExists reports whether any minutely record exists at dataTimestamp.
func (s *MemoryStore) MinutelyExists(_ context.Context, locationID string, dataTimestamp time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.data[locationID]
	if !ok {
		return false, nil
	}
	for _, m := range d.minutely {
		if m.DataTimestamp.Equal(dataTimestamp) {
			return true, nil
		}
	}
	return false, nil
}

// QueryMinutely returns minutely records matching q ordered by timestamp.
func (s *MemoryStore) QueryMinutely(_ context.Context, q weather.RecordQuery) ([]weather.MinutelyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []weather.MinutelyRecord
	for id, d := range s.data {
		if q.LocationID != "" && id != q.LocationID {
			continue
		}
		for _, m := range d.minutely {
			if inRange(m.DataTimestamp, q.From, q.To) {
				out = append(out, m)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if q.Descending {
			return out[i].DataTimestamp.After(out[j].DataTimestamp)
		}
		return out[i].DataTimestamp.Before(out[j].DataTimestamp)
	})
	return limit(out, q.Limit), nil
}

// DeleteMinutely removes minutely records older than d.Before.
func (s *MemoryStore) DeleteMinutely(_ context.Context, del weather.RecordDelete) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, d := range s.data {
		if del.LocationID != "" && id != del.LocationID {
			continue
		}
		kept := d.minutely[:0]
		for _, m := range d.minutely {
			if m.DataTimestamp.Before(del.Before) {
				removed++
				continue
			}
			kept = append(kept, m)
		}
		d.minutely = kept
	}
	return removed, nil
}

// InsertAlert stores a unless its dedup key is taken.
func (s *MemoryStore) InsertAlert(_ context.Context, a *weather.AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.owned(a.LocationID)
	if err != nil {
		return err
	}
	for _, existing := range d.alerts {
		if sameAlert(existing, a.SenderName, a.Event, a.StartTime) {
			return weather.ErrDuplicateRecord
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	d.alerts = append(d.alerts, *a)
	return nil
}

// FindAlert looks an alert up by its dedup key.
func (s *MemoryStore) FindAlert(_ context.Context, locationID, sender, event string, start time.Time) (weather.AlertRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.data[locationID]
	if !ok {
		return weather.AlertRecord{}, false, nil
	}
	for _, a := range d.alerts {
		if sameAlert(a, sender, event, start) {
			return a, true, nil
		}
	}
	return weather.AlertRecord{}, false, nil
}

// GetAlert returns an alert by id.
func (s *MemoryStore) GetAlert(_ context.Context, id string) (weather.AlertRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.data {
		for _, a := range d.alerts {
			if a.ID == id {
				return a, nil
			}
		}
	}
	return weather.AlertRecord{}, notFound("alert", id)
}

// UpdateAlert replaces the alert with the same id.
func (s *MemoryStore) UpdateAlert(_ context.Context, a weather.AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.owned(a.LocationID)
	if err != nil {
		return err
	}
	for i := range d.alerts {
		if d.alerts[i].ID == a.ID {
			d.alerts[i] = a
			return nil
		}
	}
	return notFound("alert", a.ID)
}

// QueryAlerts returns alerts matching q, newest start first.
func (s *MemoryStore) QueryAlerts(_ context.Context, q weather.AlertQuery) ([]weather.AlertRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []weather.AlertRecord
	for id, d := range s.data {
		if q.LocationID != "" && id != q.LocationID {
			continue
		}
		for _, a := range d.alerts {
			if q.ActiveOnly && !a.IsActive {
				continue
			}
			if q.Severity != "" && a.Severity != q.Severity {
				continue
			}
			if !inRange(a.StartTime, q.From, q.To) {
				continue
			}
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.After(out[j].StartTime)
	})
	return limit(out, q.Limit), nil
}

// DeleteAlerts removes alerts that ended before d.EndedBefore.
func (s *MemoryStore) DeleteAlerts(_ context.Context, del weather.AlertDelete) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, d := range s.data {
		if del.LocationID != "" && id != del.LocationID {
			continue
		}
		kept := d.alerts[:0]
		for _, a := range d.alerts {
			if a.EndTime.Before(del.EndedBefore) && (!del.ResolvedOnly || a.ResolvedAt != nil) {
				removed++
				continue
			}
			kept = append(kept, a)
		}
		d.alerts = kept
	}
	return removed, nil
}

func sameAlert(a weather.AlertRecord, sender, event string, start time.Time) bool {
	return a.SenderName == sender && a.Event == event && a.StartTime.Equal(start)
}

// inRange reports whether ts is within [from, to]; zero bounds are open.
func inRange(ts, from, to time.Time) bool {
	if !from.IsZero() && ts.Before(from) {
		return false
	}
	if !to.IsZero() && ts.After(to) {
		return false
	}
	return true
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
