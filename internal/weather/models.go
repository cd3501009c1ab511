package weather

import (
	"encoding/json"
	"math"
	"time"
)

// Units is the measurement system requested from the provider.
type Units string

const (
	UnitsMetric   Units = "metric"
	UnitsImperial Units = "imperial"
)

// Valid reports whether u is a supported unit system.
func (u Units) Valid() bool {
	return u == UnitsMetric || u == UnitsImperial
}

// DataType tags a WeatherRecord with the dataset it belongs to.
type DataType string

const (
	DataTypeCurrent    DataType = "current"
	DataTypeHourly     DataType = "hourly"
	DataTypeDaily      DataType = "daily"
	DataTypeHistorical DataType = "historical"
)

// Valid reports whether d is one of the weather record data types.
func (d DataType) Valid() bool {
	switch d {
	case DataTypeCurrent, DataTypeHourly, DataTypeDaily, DataTypeHistorical:
		return true
	}
	return false
}

// Dataset names one section of a provider payload. It doubles as the
// vocabulary of the provider's exclude parameter.
type Dataset string

const (
	DatasetCurrent    Dataset = "current"
	DatasetHourly     Dataset = "hourly"
	DatasetDaily      Dataset = "daily"
	DatasetMinutely   Dataset = "minutely"
	DatasetAlerts     Dataset = "alerts"
	DatasetHistorical Dataset = "historical"
)

// Datasets lists the sections of a forecast payload in reconciliation order.
var Datasets = []Dataset{DatasetCurrent, DatasetHourly, DatasetDaily, DatasetMinutely, DatasetAlerts}

// Severity of an alert.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
	SeverityExtreme  Severity = "extreme"
	SeverityUnknown  Severity = "unknown"
)

// Urgency of an alert.
type Urgency string

const (
	UrgencyImmediate Urgency = "immediate"
	UrgencyExpected  Urgency = "expected"
	UrgencyFuture    Urgency = "future"
	UrgencyPast      Urgency = "past"
	UrgencyUnknown   Urgency = "unknown"
)

// Certainty of an alert.
type Certainty string

const (
	CertaintyObserved Certainty = "observed"
	CertaintyLikely   Certainty = "likely"
	CertaintyPossible Certainty = "possible"
	CertaintyUnlikely Certainty = "unlikely"
	CertaintyUnknown  Certainty = "unknown"
)

// CoordinatePrecision is the number of decimal places kept for coordinates.
const CoordinatePrecision = 7

// RoundCoordinate rounds v to CoordinatePrecision decimal places.
func RoundCoordinate(v float64) float64 {
	p := math.Pow(10, CoordinatePrecision)
	return math.Round(v*p) / p
}

// Location is a monitored place. Latitude/Longitude are unique among
// locations that are not soft deleted.
type Location struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	City          string          `json:"city,omitempty"`
	State         string          `json:"state,omitempty"`
	Country       string          `json:"country,omitempty"`
	CountryCode   string          `json:"countryCode,omitempty"`
	Latitude      float64         `json:"latitude"`
	Longitude     float64         `json:"longitude"`
	Units         Units           `json:"units"`
	Timezone      string          `json:"timezone,omitempty"`
	IsActive      bool            `json:"isActive"`
	IsFavorite    bool            `json:"isFavorite"`
	GeocodingData json.RawMessage `json:"geocodingData,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	DeletedAt     *time.Time      `json:"deletedAt,omitempty"`
}

// Deleted reports whether the location has been soft deleted.
func (l Location) Deleted() bool {
	return l.DeletedAt != nil
}

// DefaultRateLimitMinutes applies when a provider config does not set one.
const DefaultRateLimitMinutes = 10

// ProviderConfig holds credentials and call policy for a weather provider.
type ProviderConfig struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	BaseURL          string    `json:"baseUrl"`
	APIKey           string    `json:"-"`
	IsActive         bool      `json:"isActive"`
	IsDefault        bool      `json:"isDefault"`
	RateLimitMinutes int       `json:"rateLimitMinutes"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// RateLimitInterval is the minimum time between two calls to the provider.
func (p ProviderConfig) RateLimitInterval() time.Duration {
	m := p.RateLimitMinutes
	if m <= 0 {
		m = DefaultRateLimitMinutes
	}
	return time.Duration(m) * time.Minute
}

// WeatherRecord is one observation or forecast point for a location.
// Optional fields are nil when the provider did not report them.
type WeatherRecord struct {
	ID            string    `json:"id"`
	LocationID    string    `json:"locationId"`
	DataType      DataType  `json:"dataType"`
	DataTimestamp time.Time `json:"dataTimestamp"`

	Temperature      *float64 `json:"temperature,omitempty"`
	FeelsLike        *float64 `json:"feelsLike,omitempty"`
	TempMin          *float64 `json:"tempMin,omitempty"`
	TempMax          *float64 `json:"tempMax,omitempty"`
	TempMorning      *float64 `json:"tempMorning,omitempty"`
	TempDay          *float64 `json:"tempDay,omitempty"`
	TempEvening      *float64 `json:"tempEvening,omitempty"`
	TempNight        *float64 `json:"tempNight,omitempty"`
	FeelsLikeMorning *float64 `json:"feelsLikeMorning,omitempty"`
	FeelsLikeDay     *float64 `json:"feelsLikeDay,omitempty"`
	FeelsLikeEvening *float64 `json:"feelsLikeEvening,omitempty"`
	FeelsLikeNight   *float64 `json:"feelsLikeNight,omitempty"`

	Pressure   *float64 `json:"pressure,omitempty"`
	Humidity   *float64 `json:"humidity,omitempty"`
	DewPoint   *float64 `json:"dewPoint,omitempty"`
	UVIndex    *float64 `json:"uvIndex,omitempty"`
	Clouds     *float64 `json:"clouds,omitempty"`
	Visibility *float64 `json:"visibility,omitempty"`

	WindSpeed *float64 `json:"windSpeed,omitempty"`
	WindDeg   *float64 `json:"windDeg,omitempty"`
	WindGust  *float64 `json:"windGust,omitempty"`

	PrecipitationProbability *float64 `json:"pop,omitempty"`
	Rain                     *float64 `json:"rain,omitempty"`
	Snow                     *float64 `json:"snow,omitempty"`

	Sunrise   *time.Time `json:"sunrise,omitempty"`
	Sunset    *time.Time `json:"sunset,omitempty"`
	Moonrise  *time.Time `json:"moonrise,omitempty"`
	Moonset   *time.Time `json:"moonset,omitempty"`
	MoonPhase *float64   `json:"moonPhase,omitempty"`

	WeatherID          *int   `json:"weatherId,omitempty"`
	WeatherMain        string `json:"weatherMain,omitempty"`
	WeatherDescription string `json:"weatherDescription,omitempty"`
	WeatherIcon        string `json:"weatherIcon,omitempty"`
	Summary            string `json:"summary,omitempty"`

	// RawData is the provider payload fragment this record was built from.
	RawData json.RawMessage `json:"rawData,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MinutelyRecord is one minute of precipitation nowcast.
// Natural key: (LocationID, DataTimestamp, ForecastTimestamp).
type MinutelyRecord struct {
	ID                string    `json:"id"`
	LocationID        string    `json:"locationId"`
	DataTimestamp     time.Time `json:"dataTimestamp"`
	ForecastTimestamp time.Time `json:"forecastTimestamp"`

	Precipitation            *float64 `json:"precipitation,omitempty"`
	Rain                     *float64 `json:"rain,omitempty"`
	Snow                     *float64 `json:"snow,omitempty"`
	PrecipitationProbability *float64 `json:"probability,omitempty"`
	Temperature              *float64 `json:"temperature,omitempty"`
	Humidity                 *float64 `json:"humidity,omitempty"`
	WindSpeed                *float64 `json:"windSpeed,omitempty"`
	IsForecast               bool     `json:"isForecast"`

	RawData   json.RawMessage `json:"rawData,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// AlertRecord is a severe weather alert issued for a location.
// Dedup key: (LocationID, SenderName, Event, StartTime).
type AlertRecord struct {
	ID          string    `json:"id"`
	LocationID  string    `json:"locationId"`
	SenderName  string    `json:"senderName"`
	Event       string    `json:"event"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Severity    Severity  `json:"severity"`
	Urgency     Urgency   `json:"urgency"`
	Certainty   Certainty `json:"certainty"`

	IsActive       bool       `json:"isActive"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`

	RawData   json.RawMessage `json:"rawData,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// CurrentlyActive reports whether the alert is active and now falls within
// its validity window.
func (a AlertRecord) CurrentlyActive(now time.Time) bool {
	return a.IsActive && !now.Before(a.StartTime) && !now.After(a.EndTime)
}

// Payload is a normalized provider response. Absent sections are nil.
// Problems records sections that were present but could not be parsed.
type Payload struct {
	Timezone string
	Current  *WeatherRecord
	Hourly   []WeatherRecord
	Daily    []WeatherRecord
	Minutely []MinutelyRecord
	Alerts   []AlertRecord

	Problems map[Dataset]error
}

// Has reports whether the payload carried the given dataset.
func (p *Payload) Has(d Dataset) bool {
	switch d {
	case DatasetCurrent:
		return p.Current != nil
	case DatasetHourly:
		return p.Hourly != nil
	case DatasetDaily:
		return p.Daily != nil
	case DatasetMinutely:
		return p.Minutely != nil
	case DatasetAlerts:
		return p.Alerts != nil
	}
	return false
}

// HistoricalKind selects the shape of a historical lookup.
type HistoricalKind string

const (
	HistoricalHour HistoricalKind = "hour"
	HistoricalDay  HistoricalKind = "day"
)

// GeocodeCandidate is one match returned by a geocoding search.
type GeocodeCandidate struct {
	Name        string          `json:"name"`
	State       string          `json:"state,omitempty"`
	Country     string          `json:"country"`
	CountryCode string          `json:"countryCode,omitempty"`
	Latitude    float64         `json:"lat"`
	Longitude   float64         `json:"lon"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}
