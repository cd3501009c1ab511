package weather

import "time"

// UnitLabels describes how values of a unit system are displayed.
type UnitLabels struct {
	Temperature string `json:"temperature"`
	WindSpeed   string `json:"windSpeed"`
	Pressure    string `json:"pressure"`
	Precip      string `json:"precipitation"`
}

// LabelsFor returns display labels for u. Unknown systems fall back to metric.
func LabelsFor(u Units) UnitLabels {
	if u == UnitsImperial {
		return UnitLabels{Temperature: "°F", WindSpeed: "mph", Pressure: "hPa", Precip: "mm"}
	}
	return UnitLabels{Temperature: "°C", WindSpeed: "m/s", Pressure: "hPa", Precip: "mm"}
}

// ConditionView is the weather condition block of a WeatherView.
type ConditionView struct {
	ID          *int   `json:"id,omitempty"`
	Main        string `json:"main,omitempty"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
}

// TemperatureView groups the temperature variants of a record.
type TemperatureView struct {
	Value     *float64 `json:"value,omitempty"`
	FeelsLike *float64 `json:"feelsLike,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Morning   *float64 `json:"morning,omitempty"`
	Day       *float64 `json:"day,omitempty"`
	Evening   *float64 `json:"evening,omitempty"`
	Night     *float64 `json:"night,omitempty"`
}

// WindView groups wind measurements.
type WindView struct {
	Speed     *float64 `json:"speed,omitempty"`
	Direction *float64 `json:"direction,omitempty"`
	Gust      *float64 `json:"gust,omitempty"`
}

// AstronomyView groups sun and moon times.
type AstronomyView struct {
	Sunrise   *time.Time `json:"sunrise,omitempty"`
	Sunset    *time.Time `json:"sunset,omitempty"`
	Moonrise  *time.Time `json:"moonrise,omitempty"`
	Moonset   *time.Time `json:"moonset,omitempty"`
	MoonPhase *float64   `json:"moonPhase,omitempty"`
}

// WeatherView is the outward shape of a WeatherRecord.
type WeatherView struct {
	ID            string           `json:"id"`
	LocationID    string           `json:"locationId"`
	DataType      DataType         `json:"dataType"`
	Timestamp     time.Time        `json:"timestamp"`
	Units         UnitLabels       `json:"units"`
	Temperature   *TemperatureView `json:"temperature,omitempty"`
	Condition     *ConditionView   `json:"condition,omitempty"`
	Wind          *WindView        `json:"wind,omitempty"`
	Astronomy     *AstronomyView   `json:"astronomy,omitempty"`
	Pressure      *float64         `json:"pressure,omitempty"`
	Humidity      *float64         `json:"humidity,omitempty"`
	DewPoint      *float64         `json:"dewPoint,omitempty"`
	UVIndex       *float64         `json:"uvIndex,omitempty"`
	Clouds        *float64         `json:"clouds,omitempty"`
	Visibility    *float64         `json:"visibility,omitempty"`
	Probability   *float64         `json:"precipitationProbability,omitempty"`
	Rain          *float64         `json:"rain,omitempty"`
	Snow          *float64         `json:"snow,omitempty"`
	Summary       string           `json:"summary,omitempty"`
	LastUpdatedAt time.Time        `json:"lastUpdatedAt"`
}

// ProjectWeather maps a record into its outward view. Groups whose fields are
// all unset are omitted.
func ProjectWeather(r WeatherRecord, units Units) WeatherView {
	v := WeatherView{
		ID:            r.ID,
		LocationID:    r.LocationID,
		DataType:      r.DataType,
		Timestamp:     r.DataTimestamp,
		Units:         LabelsFor(units),
		Pressure:      r.Pressure,
		Humidity:      r.Humidity,
		DewPoint:      r.DewPoint,
		UVIndex:       r.UVIndex,
		Clouds:        r.Clouds,
		Visibility:    r.Visibility,
		Probability:   r.PrecipitationProbability,
		Rain:          r.Rain,
		Snow:          r.Snow,
		Summary:       r.Summary,
		LastUpdatedAt: r.UpdatedAt,
	}

	t := TemperatureView{
		Value: r.Temperature, FeelsLike: r.FeelsLike, Min: r.TempMin, Max: r.TempMax,
		Morning: r.TempMorning, Day: r.TempDay, Evening: r.TempEvening, Night: r.TempNight,
	}
	if t != (TemperatureView{}) {
		v.Temperature = &t
	}

	c := ConditionView{ID: r.WeatherID, Main: r.WeatherMain, Description: r.WeatherDescription, Icon: r.WeatherIcon}
	if c != (ConditionView{}) {
		v.Condition = &c
	}

	w := WindView{Speed: r.WindSpeed, Direction: r.WindDeg, Gust: r.WindGust}
	if w != (WindView{}) {
		v.Wind = &w
	}

	a := AstronomyView{Sunrise: r.Sunrise, Sunset: r.Sunset, Moonrise: r.Moonrise, Moonset: r.Moonset, MoonPhase: r.MoonPhase}
	if a != (AstronomyView{}) {
		v.Astronomy = &a
	}
	return v
}

// AlertView is the outward shape of an AlertRecord.
type AlertView struct {
	ID              string     `json:"id"`
	LocationID      string     `json:"locationId"`
	Sender          string     `json:"sender"`
	Event           string     `json:"event"`
	Description     string     `json:"description,omitempty"`
	Tags            []string   `json:"tags,omitempty"`
	Severity        Severity   `json:"severity"`
	Urgency         Urgency    `json:"urgency"`
	Certainty       Certainty  `json:"certainty"`
	Start           time.Time  `json:"start"`
	End             time.Time  `json:"end"`
	IsActive        bool       `json:"isActive"`
	CurrentlyActive bool       `json:"currentlyActive"`
	AcknowledgedAt  *time.Time `json:"acknowledgedAt,omitempty"`
	ResolvedAt      *time.Time `json:"resolvedAt,omitempty"`
}

// ProjectAlert maps an alert into its outward view as seen at now.
func ProjectAlert(a AlertRecord, now time.Time) AlertView {
	return AlertView{
		ID:              a.ID,
		LocationID:      a.LocationID,
		Sender:          a.SenderName,
		Event:           a.Event,
		Description:     a.Description,
		Tags:            a.Tags,
		Severity:        a.Severity,
		Urgency:         a.Urgency,
		Certainty:       a.Certainty,
		Start:           a.StartTime,
		End:             a.EndTime,
		IsActive:        a.IsActive,
		CurrentlyActive: a.CurrentlyActive(now),
		AcknowledgedAt:  a.AcknowledgedAt,
		ResolvedAt:      a.ResolvedAt,
	}
}

// MinutelyView is the outward shape of a MinutelyRecord.
type MinutelyView struct {
	Timestamp     time.Time `json:"timestamp"`
	Precipitation *float64  `json:"precipitation,omitempty"`
	Rain          *float64  `json:"rain,omitempty"`
	Snow          *float64  `json:"snow,omitempty"`
	Probability   *float64  `json:"probability,omitempty"`
	Temperature   *float64  `json:"temperature,omitempty"`
	Humidity      *float64  `json:"humidity,omitempty"`
	WindSpeed     *float64  `json:"windSpeed,omitempty"`
	IsForecast    bool      `json:"isForecast"`
}

// ProjectMinutely maps a minutely record into its outward view.
func ProjectMinutely(m MinutelyRecord) MinutelyView {
	return MinutelyView{
		Timestamp:     m.DataTimestamp,
		Precipitation: m.Precipitation,
		Rain:          m.Rain,
		Snow:          m.Snow,
		Probability:   m.PrecipitationProbability,
		Temperature:   m.Temperature,
		Humidity:      m.Humidity,
		WindSpeed:     m.WindSpeed,
		IsForecast:    m.IsForecast,
	}
}
