package weather

import (
	"context"
	"time"
)

// Fetcher abstracts a weather data source that speaks the one-call protocol.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, loc Location, provider ProviderConfig, exclude []Dataset) (*Payload, error)
	FetchHistorical(ctx context.Context, loc Location, provider ProviderConfig, at time.Time, kind HistoricalKind) ([]WeatherRecord, error)
}

// Geocoder resolves free text into candidate locations.
type Geocoder interface {
	Search(ctx context.Context, text string, limit int) ([]GeocodeCandidate, error)
}

// RateLimiter gates provider calls by key. Keys are provider ids for
// on-demand calls.
type RateLimiter interface {
	// Allow reports whether a call may be made now and, when it may not,
	// how long until it may.
	Allow(ctx context.Context, key string, interval time.Duration) (bool, time.Duration, error)
	// Record stores now as the time of the last call for key.
	Record(ctx context.Context, key string, interval time.Duration) error
}

// LocationFilter narrows location listings. Soft-deleted locations are
// excluded unless IncludeDeleted is set.
type LocationFilter struct {
	ActiveOnly     bool
	FavoriteOnly   bool
	IncludeDeleted bool
}

// RecordQuery selects weather or minutely records. Zero times are unbounded.
// From is inclusive, To is inclusive.
type RecordQuery struct {
	LocationID string
	DataType   DataType
	From       time.Time
	To         time.Time
	Descending bool
	Limit      int
}

// RecordDelete selects records for removal. Before is exclusive and
// required; LocationID and DataType are optional narrowing filters.
type RecordDelete struct {
	LocationID string
	DataType   DataType
	Before     time.Time
}

// AlertQuery selects alerts. Zero values disable a filter.
// From/To bound StartTime.
type AlertQuery struct {
	LocationID string
	ActiveOnly bool
	Severity   Severity
	From       time.Time
	To         time.Time
	Limit      int
}

// AlertDelete selects alerts whose EndTime is before EndedBefore.
type AlertDelete struct {
	LocationID   string
	EndedBefore  time.Time
	ResolvedOnly bool
}

// LocationStore persists locations.
type LocationStore interface {
	CreateLocation(ctx context.Context, loc *Location) error
	GetLocation(ctx context.Context, id string) (Location, error)
	FindLocationByCoordinates(ctx context.Context, lat, lon float64) (Location, bool, error)
	ListLocations(ctx context.Context, filter LocationFilter) ([]Location, error)
	UpdateLocation(ctx context.Context, loc Location) error
	SoftDeleteLocation(ctx context.Context, id string, at time.Time) error
	DeleteLocation(ctx context.Context, id string) error
}

// ProviderStore persists provider configs.
type ProviderStore interface {
	CreateProvider(ctx context.Context, p *ProviderConfig) error
	GetProvider(ctx context.Context, id string) (ProviderConfig, error)
	ListProviders(ctx context.Context, activeOnly bool) ([]ProviderConfig, error)
	UpdateProvider(ctx context.Context, p ProviderConfig) error
}

// WeatherRecordStore persists current/hourly/daily/historical records.
type WeatherRecordStore interface {
	InsertWeatherRecord(ctx context.Context, rec *WeatherRecord) error
	FindWeatherRecord(ctx context.Context, locationID string, dataType DataType, ts time.Time) (WeatherRecord, bool, error)
	UpdateWeatherRecord(ctx context.Context, rec WeatherRecord) error
	QueryWeatherRecords(ctx context.Context, q RecordQuery) ([]WeatherRecord, error)
	DeleteWeatherRecords(ctx context.Context, d RecordDelete) (int, error)
	// DeleteWeatherRecordsUpTo removes rows of the type whose timestamp is
	// at or before ts.
	DeleteWeatherRecordsUpTo(ctx context.Context, locationID string, dataType DataType, ts time.Time) (int, error)
}

// MinutelyStore persists minute-level precipitation.
type MinutelyStore interface {
	// InsertMinutely returns ErrDuplicateRecord when the natural key exists.
	InsertMinutely(ctx context.Context, rec *MinutelyRecord) error
	MinutelyExists(ctx context.Context, locationID string, dataTimestamp time.Time) (bool, error)
	QueryMinutely(ctx context.Context, q RecordQuery) ([]MinutelyRecord, error)
	DeleteMinutely(ctx context.Context, d RecordDelete) (int, error)
}

// AlertStore persists alerts.
type AlertStore interface {
	// InsertAlert returns ErrDuplicateRecord when the dedup key exists.
	InsertAlert(ctx context.Context, a *AlertRecord) error
	FindAlert(ctx context.Context, locationID, sender, event string, start time.Time) (AlertRecord, bool, error)
	GetAlert(ctx context.Context, id string) (AlertRecord, error)
	UpdateAlert(ctx context.Context, a AlertRecord) error
	QueryAlerts(ctx context.Context, q AlertQuery) ([]AlertRecord, error)
	DeleteAlerts(ctx context.Context, d AlertDelete) (int, error)
}

// Store is the contract the in-memory store and the postgres store satisfy.
type Store interface {
	LocationStore
	ProviderStore
	WeatherRecordStore
	MinutelyStore
	AlertStore
}
