package postgres

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/i474232898/weather-ingest/internal/weather"
)

// locationRow maps to the locations table. Coordinates are unique among
// rows that are not soft deleted.
type locationRow struct {
	ID            string         `gorm:"type:varchar(64);primaryKey"`
	Name          string         `gorm:"type:varchar(255);not null"`
	City          string         `gorm:"type:varchar(255)"`
	State         string         `gorm:"type:varchar(255)"`
	Country       string         `gorm:"type:varchar(255)"`
	CountryCode   string         `gorm:"type:varchar(2)"`
	Latitude      float64        `gorm:"type:numeric(10,7);not null;uniqueIndex:idx_locations_coordinates,where:deleted_at IS NULL"`
	Longitude     float64        `gorm:"type:numeric(10,7);not null;uniqueIndex:idx_locations_coordinates,where:deleted_at IS NULL"`
	Units         string         `gorm:"type:varchar(16);not null;default:'metric'"`
	Timezone      string         `gorm:"type:varchar(64)"`
	IsActive      bool           `gorm:"not null;index"`
	IsFavorite    bool           `gorm:"not null"`
	GeocodingData datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt     time.Time      `gorm:"not null"`
	UpdatedAt     time.Time      `gorm:"not null"`
	DeletedAt     *time.Time     `gorm:"index"`
}

func (locationRow) TableName() string { return "locations" }

type providerRow struct {
	ID               string    `gorm:"type:varchar(64);primaryKey"`
	Name             string    `gorm:"type:varchar(100);not null"`
	BaseURL          string    `gorm:"type:varchar(512);not null"`
	APIKey           string    `gorm:"type:text;not null"`
	IsActive         bool      `gorm:"not null;index"`
	IsDefault        bool      `gorm:"not null"`
	RateLimitMinutes int       `gorm:"not null;default:10"`
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

func (providerRow) TableName() string { return "provider_configs" }

// weatherRecordRow maps to weather_records, unique on
// (location_id, data_type, data_timestamp).
type weatherRecordRow struct {
	ID            string       `gorm:"type:varchar(64);primaryKey"`
	LocationID    string       `gorm:"type:varchar(64);not null;uniqueIndex:idx_weather_records_key,priority:1"`
	Location      *locationRow `gorm:"foreignKey:LocationID;constraint:OnDelete:CASCADE"`
	DataType      string       `gorm:"type:varchar(16);not null;uniqueIndex:idx_weather_records_key,priority:2;index"`
	DataTimestamp time.Time    `gorm:"not null;uniqueIndex:idx_weather_records_key,priority:3;index"`

	Temperature      *float64
	FeelsLike        *float64
	TempMin          *float64
	TempMax          *float64
	TempMorning      *float64
	TempDay          *float64
	TempEvening      *float64
	TempNight        *float64
	FeelsLikeMorning *float64
	FeelsLikeDay     *float64
	FeelsLikeEvening *float64
	FeelsLikeNight   *float64

	Pressure   *float64
	Humidity   *float64
	DewPoint   *float64
	UVIndex    *float64 `gorm:"column:uv_index"`
	Clouds     *float64
	Visibility *float64

	WindSpeed *float64
	WindDeg   *float64
	WindGust  *float64

	PrecipitationProbability *float64
	Rain                     *float64
	Snow                     *float64

	Sunrise   *time.Time
	Sunset    *time.Time
	Moonrise  *time.Time
	Moonset   *time.Time
	MoonPhase *float64

	WeatherID          *int
	WeatherMain        string `gorm:"type:varchar(64)"`
	WeatherDescription string `gorm:"type:varchar(255)"`
	WeatherIcon        string `gorm:"type:varchar(16)"`
	Summary            string `gorm:"type:text"`

	RawData   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"not null"`
	UpdatedAt time.Time      `gorm:"not null"`
}

func (weatherRecordRow) TableName() string { return "weather_records" }

// minutelyRow maps to minutely_records, unique on
// (location_id, data_timestamp, forecast_timestamp).
type minutelyRow struct {
	ID                string       `gorm:"type:varchar(64);primaryKey"`
	LocationID        string       `gorm:"type:varchar(64);not null;uniqueIndex:idx_minutely_key,priority:1"`
	Location          *locationRow `gorm:"foreignKey:LocationID;constraint:OnDelete:CASCADE"`
	DataTimestamp     time.Time    `gorm:"not null;uniqueIndex:idx_minutely_key,priority:2;index"`
	ForecastTimestamp time.Time    `gorm:"not null;uniqueIndex:idx_minutely_key,priority:3"`

	Precipitation            *float64
	Rain                     *float64
	Snow                     *float64
	PrecipitationProbability *float64
	Temperature              *float64
	Humidity                 *float64
	WindSpeed                *float64
	IsForecast               bool `gorm:"not null"`

	RawData   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"not null"`
}

func (minutelyRow) TableName() string { return "minutely_records" }

// alertRow maps to weather_alerts, unique on
// (location_id, sender_name, event, start_time).
type alertRow struct {
	ID          string         `gorm:"type:varchar(64);primaryKey"`
	LocationID  string         `gorm:"type:varchar(64);not null;uniqueIndex:idx_alerts_key,priority:1"`
	Location    *locationRow   `gorm:"foreignKey:LocationID;constraint:OnDelete:CASCADE"`
	SenderName  string         `gorm:"type:varchar(255);not null;uniqueIndex:idx_alerts_key,priority:2"`
	Event       string         `gorm:"type:varchar(255);not null;uniqueIndex:idx_alerts_key,priority:3"`
	StartTime   time.Time      `gorm:"not null;uniqueIndex:idx_alerts_key,priority:4;index"`
	EndTime     time.Time      `gorm:"not null;index"`
	Description string         `gorm:"type:text"`
	Tags        datatypes.JSON `gorm:"type:jsonb"`
	Severity    string         `gorm:"type:varchar(16);not null;default:'unknown';index"`
	Urgency     string         `gorm:"type:varchar(16);not null;default:'unknown'"`
	Certainty   string         `gorm:"type:varchar(16);not null;default:'unknown'"`

	IsActive       bool `gorm:"not null;index"`
	AcknowledgedAt *time.Time
	ResolvedAt     *time.Time

	RawData   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"not null"`
	UpdatedAt time.Time      `gorm:"not null"`
}

func (alertRow) TableName() string { return "weather_alerts" }

func toLocationRow(l weather.Location) locationRow {
	return locationRow{
		ID:            l.ID,
		Name:          l.Name,
		City:          l.City,
		State:         l.State,
		Country:       l.Country,
		CountryCode:   l.CountryCode,
		Latitude:      l.Latitude,
		Longitude:     l.Longitude,
		Units:         string(l.Units),
		Timezone:      l.Timezone,
		IsActive:      l.IsActive,
		IsFavorite:    l.IsFavorite,
		GeocodingData: jsonOrNil(l.GeocodingData),
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
		DeletedAt:     l.DeletedAt,
	}
}

func (r locationRow) toDomain() weather.Location {
	return weather.Location{
		ID:            r.ID,
		Name:          r.Name,
		City:          r.City,
		State:         r.State,
		Country:       r.Country,
		CountryCode:   r.CountryCode,
		Latitude:      r.Latitude,
		Longitude:     r.Longitude,
		Units:         weather.Units(r.Units),
		Timezone:      r.Timezone,
		IsActive:      r.IsActive,
		IsFavorite:    r.IsFavorite,
		GeocodingData: rawOrNil(r.GeocodingData),
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
		DeletedAt:     utcPtr(r.DeletedAt),
	}
}

func toProviderRow(p weather.ProviderConfig) providerRow {
	return providerRow{
		ID:               p.ID,
		Name:             p.Name,
		BaseURL:          p.BaseURL,
		APIKey:           p.APIKey,
		IsActive:         p.IsActive,
		IsDefault:        p.IsDefault,
		RateLimitMinutes: p.RateLimitMinutes,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func (r providerRow) toDomain() weather.ProviderConfig {
	return weather.ProviderConfig{
		ID:               r.ID,
		Name:             r.Name,
		BaseURL:          r.BaseURL,
		APIKey:           r.APIKey,
		IsActive:         r.IsActive,
		IsDefault:        r.IsDefault,
		RateLimitMinutes: r.RateLimitMinutes,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

func toWeatherRow(w weather.WeatherRecord) weatherRecordRow {
	return weatherRecordRow{
		ID:                       w.ID,
		LocationID:               w.LocationID,
		DataType:                 string(w.DataType),
		DataTimestamp:            w.DataTimestamp,
		Temperature:              w.Temperature,
		FeelsLike:                w.FeelsLike,
		TempMin:                  w.TempMin,
		TempMax:                  w.TempMax,
		TempMorning:              w.TempMorning,
		TempDay:                  w.TempDay,
		TempEvening:              w.TempEvening,
		TempNight:                w.TempNight,
		FeelsLikeMorning:         w.FeelsLikeMorning,
		FeelsLikeDay:             w.FeelsLikeDay,
		FeelsLikeEvening:         w.FeelsLikeEvening,
		FeelsLikeNight:           w.FeelsLikeNight,
		Pressure:                 w.Pressure,
		Humidity:                 w.Humidity,
		DewPoint:                 w.DewPoint,
		UVIndex:                  w.UVIndex,
		Clouds:                   w.Clouds,
		Visibility:               w.Visibility,
		WindSpeed:                w.WindSpeed,
		WindDeg:                  w.WindDeg,
		WindGust:                 w.WindGust,
		PrecipitationProbability: w.PrecipitationProbability,
		Rain:                     w.Rain,
		Snow:                     w.Snow,
		Sunrise:                  w.Sunrise,
		Sunset:                   w.Sunset,
		Moonrise:                 w.Moonrise,
		Moonset:                  w.Moonset,
		MoonPhase:                w.MoonPhase,
		WeatherID:                w.WeatherID,
		WeatherMain:              w.WeatherMain,
		WeatherDescription:       w.WeatherDescription,
		WeatherIcon:              w.WeatherIcon,
		Summary:                  w.Summary,
		RawData:                  jsonOrNil(w.RawData),
		CreatedAt:                w.CreatedAt,
		UpdatedAt:                w.UpdatedAt,
	}
}

func (r weatherRecordRow) toDomain() weather.WeatherRecord {
	return weather.WeatherRecord{
		ID:                       r.ID,
		LocationID:               r.LocationID,
		DataType:                 weather.DataType(r.DataType),
		DataTimestamp:            r.DataTimestamp.UTC(),
		Temperature:              r.Temperature,
		FeelsLike:                r.FeelsLike,
		TempMin:                  r.TempMin,
		TempMax:                  r.TempMax,
		TempMorning:              r.TempMorning,
		TempDay:                  r.TempDay,
		TempEvening:              r.TempEvening,
		TempNight:                r.TempNight,
		FeelsLikeMorning:         r.FeelsLikeMorning,
		FeelsLikeDay:             r.FeelsLikeDay,
		FeelsLikeEvening:         r.FeelsLikeEvening,
		FeelsLikeNight:           r.FeelsLikeNight,
		Pressure:                 r.Pressure,
		Humidity:                 r.Humidity,
		DewPoint:                 r.DewPoint,
		UVIndex:                  r.UVIndex,
		Clouds:                   r.Clouds,
		Visibility:               r.Visibility,
		WindSpeed:                r.WindSpeed,
		WindDeg:                  r.WindDeg,
		WindGust:                 r.WindGust,
		PrecipitationProbability: r.PrecipitationProbability,
		Rain:                     r.Rain,
		Snow:                     r.Snow,
		Sunrise:                  utcPtr(r.Sunrise),
		Sunset:                   utcPtr(r.Sunset),
		Moonrise:                 utcPtr(r.Moonrise),
		Moonset:                  utcPtr(r.Moonset),
		MoonPhase:                r.MoonPhase,
		WeatherID:                r.WeatherID,
		WeatherMain:              r.WeatherMain,
		WeatherDescription:       r.WeatherDescription,
		WeatherIcon:              r.WeatherIcon,
		Summary:                  r.Summary,
		RawData:                  rawOrNil(r.RawData),
		CreatedAt:                r.CreatedAt.UTC(),
		UpdatedAt:                r.UpdatedAt.UTC(),
	}
}

func toMinutelyRow(m weather.MinutelyRecord) minutelyRow {
	return minutelyRow{
		ID:                       m.ID,
		LocationID:               m.LocationID,
		DataTimestamp:            m.DataTimestamp,
		ForecastTimestamp:        m.ForecastTimestamp,
		Precipitation:            m.Precipitation,
		Rain:                     m.Rain,
		Snow:                     m.Snow,
		PrecipitationProbability: m.PrecipitationProbability,
		Temperature:              m.Temperature,
		Humidity:                 m.Humidity,
		WindSpeed:                m.WindSpeed,
		IsForecast:               m.IsForecast,
		RawData:                  jsonOrNil(m.RawData),
		CreatedAt:                m.CreatedAt,
	}
}

func (r minutelyRow) toDomain() weather.MinutelyRecord {
	return weather.MinutelyRecord{
		ID:                       r.ID,
		LocationID:               r.LocationID,
		DataTimestamp:            r.DataTimestamp.UTC(),
		ForecastTimestamp:        r.ForecastTimestamp.UTC(),
		Precipitation:            r.Precipitation,
		Rain:                     r.Rain,
		Snow:                     r.Snow,
		PrecipitationProbability: r.PrecipitationProbability,
		Temperature:              r.Temperature,
		Humidity:                 r.Humidity,
		WindSpeed:                r.WindSpeed,
		IsForecast:               r.IsForecast,
		RawData:                  rawOrNil(r.RawData),
		CreatedAt:                r.CreatedAt.UTC(),
	}
}

func toAlertRow(a weather.AlertRecord) (alertRow, error) {
	var tags datatypes.JSON
	if a.Tags != nil {
		b, err := json.Marshal(a.Tags)
		if err != nil {
			return alertRow{}, err
		}
		tags = b
	}
	return alertRow{
		ID:             a.ID,
		LocationID:     a.LocationID,
		SenderName:     a.SenderName,
		Event:          a.Event,
		StartTime:      a.StartTime,
		EndTime:        a.EndTime,
		Description:    a.Description,
		Tags:           tags,
		Severity:       string(a.Severity),
		Urgency:        string(a.Urgency),
		Certainty:      string(a.Certainty),
		IsActive:       a.IsActive,
		AcknowledgedAt: a.AcknowledgedAt,
		ResolvedAt:     a.ResolvedAt,
		RawData:        jsonOrNil(a.RawData),
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}, nil
}

func (r alertRow) toDomain() (weather.AlertRecord, error) {
	var tags []string
	if len(r.Tags) > 0 {
		if err := json.Unmarshal(r.Tags, &tags); err != nil {
			return weather.AlertRecord{}, err
		}
	}
	return weather.AlertRecord{
		ID:             r.ID,
		LocationID:     r.LocationID,
		SenderName:     r.SenderName,
		Event:          r.Event,
		StartTime:      r.StartTime.UTC(),
		EndTime:        r.EndTime.UTC(),
		Description:    r.Description,
		Tags:           tags,
		Severity:       weather.Severity(r.Severity),
		Urgency:        weather.Urgency(r.Urgency),
		Certainty:      weather.Certainty(r.Certainty),
		IsActive:       r.IsActive,
		AcknowledgedAt: utcPtr(r.AcknowledgedAt),
		ResolvedAt:     utcPtr(r.ResolvedAt),
		RawData:        rawOrNil(r.RawData),
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}, nil
}

func jsonOrNil(raw json.RawMessage) datatypes.JSON {
	if len(raw) == 0 {
		return nil
	}
	return datatypes.JSON(raw)
}

func rawOrNil(j datatypes.JSON) json.RawMessage {
	if len(j) == 0 {
		return nil
	}
	return json.RawMessage(j)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
