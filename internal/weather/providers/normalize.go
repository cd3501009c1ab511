package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/i474232898/weather-ingest/internal/common"
	"github.com/i474232898/weather-ingest/internal/weather"
)

// Provider-native shapes. Every optional measurement is a pointer so that an
// absent field stays unset instead of becoming zero.

type owmCondition struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type owmVolume struct {
	OneHour *float64 `json:"1h"`
}

type owmPoint struct {
	Dt         int64          `json:"dt"`
	Sunrise    *int64         `json:"sunrise"`
	Sunset     *int64         `json:"sunset"`
	Temp       *float64       `json:"temp"`
	FeelsLike  *float64       `json:"feels_like"`
	Pressure   *float64       `json:"pressure"`
	Humidity   *float64       `json:"humidity"`
	DewPoint   *float64       `json:"dew_point"`
	UVI        *float64       `json:"uvi"`
	Clouds     *float64       `json:"clouds"`
	Visibility *float64       `json:"visibility"`
	WindSpeed  *float64       `json:"wind_speed"`
	WindDeg    *float64       `json:"wind_deg"`
	WindGust   *float64       `json:"wind_gust"`
	Pop        *float64       `json:"pop"`
	Rain       *owmVolume     `json:"rain"`
	Snow       *owmVolume     `json:"snow"`
	Weather    []owmCondition `json:"weather"`
}

type owmDailyTemp struct {
	Day   *float64 `json:"day"`
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
	Night *float64 `json:"night"`
	Eve   *float64 `json:"eve"`
	Morn  *float64 `json:"morn"`
}

type owmDaily struct {
	Dt        int64          `json:"dt"`
	Sunrise   *int64         `json:"sunrise"`
	Sunset    *int64         `json:"sunset"`
	Moonrise  *int64         `json:"moonrise"`
	Moonset   *int64         `json:"moonset"`
	MoonPhase *float64       `json:"moon_phase"`
	Summary   string         `json:"summary"`
	Temp      *owmDailyTemp  `json:"temp"`
	FeelsLike *owmDailyTemp  `json:"feels_like"`
	Pressure  *float64       `json:"pressure"`
	Humidity  *float64       `json:"humidity"`
	DewPoint  *float64       `json:"dew_point"`
	WindSpeed *float64       `json:"wind_speed"`
	WindDeg   *float64       `json:"wind_deg"`
	WindGust  *float64       `json:"wind_gust"`
	Clouds    *float64       `json:"clouds"`
	Pop       *float64       `json:"pop"`
	Rain      *float64       `json:"rain"`
	Snow      *float64       `json:"snow"`
	UVI       *float64       `json:"uvi"`
	Weather   []owmCondition `json:"weather"`
}

type owmMinute struct {
	Dt            int64    `json:"dt"`
	Precipitation *float64 `json:"precipitation"`
}

type owmAlert struct {
	SenderName  string   `json:"sender_name"`
	Event       string   `json:"event"`
	Start       int64    `json:"start"`
	End         int64    `json:"end"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

type oneCallEnvelope struct {
	Timezone string            `json:"timezone"`
	Current  json.RawMessage   `json:"current"`
	Hourly   []json.RawMessage `json:"hourly"`
	Daily    []json.RawMessage `json:"daily"`
	Minutely []json.RawMessage `json:"minutely"`
	Alerts   []json.RawMessage `json:"alerts"`
}

var errMissingTimestamp = errors.New("missing dt")

// NormalizeOneCall turns a One Call response body into a Payload. Sections
// that are absent stay nil; a section with a malformed entry is dropped and
// reported in Payload.Problems without affecting the others.
func NormalizeOneCall(body []byte) (*weather.Payload, error) {
	var env oneCallEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode one call response: %w", err)
	}

	payload := &weather.Payload{Timezone: env.Timezone, Problems: make(map[weather.Dataset]error)}

	var issued time.Time
	if len(env.Current) > 0 && string(env.Current) != "null" {
		rec, err := normalizePoint(env.Current)
		if err != nil {
			payload.Problems[weather.DatasetCurrent] = err
		} else {
			payload.Current = &rec
			issued = rec.DataTimestamp
		}
	}

	if env.Hourly != nil {
		recs, err := normalizeEach(env.Hourly, normalizePoint)
		if err != nil {
			payload.Problems[weather.DatasetHourly] = err
		} else {
			payload.Hourly = recs
		}
	}

	if env.Daily != nil {
		recs, err := normalizeEach(env.Daily, normalizeDaily)
		if err != nil {
			payload.Problems[weather.DatasetDaily] = err
		} else {
			payload.Daily = recs
		}
	}

	if env.Minutely != nil {
		recs, err := normalizeEach(env.Minutely, func(raw json.RawMessage) (weather.MinutelyRecord, error) {
			return normalizeMinute(raw, issued)
		})
		if err != nil {
			payload.Problems[weather.DatasetMinutely] = err
		} else {
			payload.Minutely = recs
		}
	}

	if env.Alerts != nil {
		recs, err := normalizeEach(env.Alerts, normalizeAlert)
		if err != nil {
			payload.Problems[weather.DatasetAlerts] = err
		} else {
			payload.Alerts = recs
		}
	}

	return payload, nil
}

// NormalizeTimemachine turns an hourly historical response ({"data": [...]})
// into historical records.
func NormalizeTimemachine(body []byte) ([]weather.WeatherRecord, error) {
	var env struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode timemachine response: %w", err)
	}
	recs, err := normalizeEach(env.Data, normalizePoint)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		recs[i].DataType = weather.DataTypeHistorical
	}
	return recs, nil
}

type owmPeriods struct {
	Min       *float64 `json:"min"`
	Max       *float64 `json:"max"`
	Morning   *float64 `json:"morning"`
	Afternoon *float64 `json:"afternoon"`
	Evening   *float64 `json:"evening"`
	Night     *float64 `json:"night"`
}

type owmDaySummary struct {
	Date          string      `json:"date"`
	CloudCover    *owmPeriods `json:"cloud_cover"`
	Humidity      *owmPeriods `json:"humidity"`
	Pressure      *owmPeriods `json:"pressure"`
	Temperature   *owmPeriods `json:"temperature"`
	Precipitation *struct {
		Total *float64 `json:"total"`
	} `json:"precipitation"`
	Wind *struct {
		Max *struct {
			Speed     *float64 `json:"speed"`
			Direction *float64 `json:"direction"`
		} `json:"max"`
	} `json:"wind"`
}

// NormalizeDaySummary turns a day summary response into one historical
// record stamped at the start of its UTC day.
func NormalizeDaySummary(body []byte, at time.Time) (weather.WeatherRecord, error) {
	var s owmDaySummary
	if err := json.Unmarshal(body, &s); err != nil {
		return weather.WeatherRecord{}, fmt.Errorf("decode day summary: %w", err)
	}

	day := at.UTC().Truncate(24 * time.Hour)
	if s.Date != "" {
		parsed, err := time.Parse("2006-01-02", s.Date)
		if err != nil {
			return weather.WeatherRecord{}, fmt.Errorf("day summary date %q: %w", s.Date, err)
		}
		day = parsed.UTC()
	}

	rec := weather.WeatherRecord{
		DataType:      weather.DataTypeHistorical,
		DataTimestamp: day,
		RawData:       json.RawMessage(body),
	}
	if t := s.Temperature; t != nil {
		rec.TempMin, rec.TempMax = t.Min, t.Max
		rec.TempMorning, rec.TempDay, rec.TempEvening, rec.TempNight = t.Morning, t.Afternoon, t.Evening, t.Night
		rec.Temperature = t.Afternoon
	}
	if s.Humidity != nil {
		rec.Humidity = s.Humidity.Afternoon
	}
	if s.Pressure != nil {
		rec.Pressure = s.Pressure.Afternoon
	}
	if s.CloudCover != nil {
		rec.Clouds = s.CloudCover.Afternoon
	}
	if s.Precipitation != nil {
		rec.Rain = s.Precipitation.Total
	}
	if s.Wind != nil && s.Wind.Max != nil {
		rec.WindSpeed, rec.WindDeg = s.Wind.Max.Speed, s.Wind.Max.Direction
	}
	return rec, nil
}

func normalizeEach[T any](raws []json.RawMessage, fn func(json.RawMessage) (T, error)) ([]T, error) {
	out := make([]T, 0, len(raws))
	for i, raw := range raws {
		v, err := fn(raw)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func normalizePoint(raw json.RawMessage) (weather.WeatherRecord, error) {
	var pt owmPoint
	if err := json.Unmarshal(raw, &pt); err != nil {
		return weather.WeatherRecord{}, err
	}
	if pt.Dt == 0 {
		return weather.WeatherRecord{}, errMissingTimestamp
	}

	rec := weather.WeatherRecord{
		DataTimestamp:            unix(pt.Dt),
		Temperature:              pt.Temp,
		FeelsLike:                pt.FeelsLike,
		Pressure:                 pt.Pressure,
		Humidity:                 pt.Humidity,
		DewPoint:                 pt.DewPoint,
		UVIndex:                  pt.UVI,
		Clouds:                   pt.Clouds,
		Visibility:               pt.Visibility,
		WindSpeed:                pt.WindSpeed,
		WindDeg:                  pt.WindDeg,
		WindGust:                 pt.WindGust,
		PrecipitationProbability: pt.Pop,
		Sunrise:                  unixPtr(pt.Sunrise),
		Sunset:                   unixPtr(pt.Sunset),
		RawData:                  append(json.RawMessage(nil), raw...),
	}
	if pt.Rain != nil {
		rec.Rain = pt.Rain.OneHour
	}
	if pt.Snow != nil {
		rec.Snow = pt.Snow.OneHour
	}
	applyCondition(&rec, pt.Weather)
	return rec, nil
}

func normalizeDaily(raw json.RawMessage) (weather.WeatherRecord, error) {
	var d owmDaily
	if err := json.Unmarshal(raw, &d); err != nil {
		return weather.WeatherRecord{}, err
	}
	if d.Dt == 0 {
		return weather.WeatherRecord{}, errMissingTimestamp
	}

	rec := weather.WeatherRecord{
		DataTimestamp:            unix(d.Dt),
		Pressure:                 d.Pressure,
		Humidity:                 d.Humidity,
		DewPoint:                 d.DewPoint,
		UVIndex:                  d.UVI,
		Clouds:                   d.Clouds,
		WindSpeed:                d.WindSpeed,
		WindDeg:                  d.WindDeg,
		WindGust:                 d.WindGust,
		PrecipitationProbability: d.Pop,
		Rain:                     d.Rain,
		Snow:                     d.Snow,
		Sunrise:                  unixPtr(d.Sunrise),
		Sunset:                   unixPtr(d.Sunset),
		Moonrise:                 unixPtr(d.Moonrise),
		Moonset:                  unixPtr(d.Moonset),
		MoonPhase:                d.MoonPhase,
		Summary:                  d.Summary,
		RawData:                  append(json.RawMessage(nil), raw...),
	}
	if t := d.Temp; t != nil {
		rec.Temperature = t.Day
		rec.TempDay, rec.TempMin, rec.TempMax = t.Day, t.Min, t.Max
		rec.TempMorning, rec.TempEvening, rec.TempNight = t.Morn, t.Eve, t.Night
	}
	if f := d.FeelsLike; f != nil {
		rec.FeelsLike = f.Day
		rec.FeelsLikeDay, rec.FeelsLikeMorning = f.Day, f.Morn
		rec.FeelsLikeEvening, rec.FeelsLikeNight = f.Eve, f.Night
	}
	applyCondition(&rec, d.Weather)
	return rec, nil
}

// normalizeMinute stamps a minute with the payload issue time as its
// forecast timestamp, falling back to the minute itself.
func normalizeMinute(raw json.RawMessage, issued time.Time) (weather.MinutelyRecord, error) {
	var m owmMinute
	if err := json.Unmarshal(raw, &m); err != nil {
		return weather.MinutelyRecord{}, err
	}
	if m.Dt == 0 {
		return weather.MinutelyRecord{}, errMissingTimestamp
	}

	ts := unix(m.Dt)
	forecastTS := issued
	if forecastTS.IsZero() {
		forecastTS = ts
	}
	return weather.MinutelyRecord{
		DataTimestamp:     ts,
		ForecastTimestamp: forecastTS,
		Precipitation:     m.Precipitation,
		IsForecast:        ts.After(forecastTS),
		RawData:           append(json.RawMessage(nil), raw...),
	}, nil
}

func normalizeAlert(raw json.RawMessage) (weather.AlertRecord, error) {
	var a owmAlert
	if err := json.Unmarshal(raw, &a); err != nil {
		return weather.AlertRecord{}, err
	}
	if a.Event == "" {
		return weather.AlertRecord{}, errors.New("missing event")
	}
	if a.Start == 0 || a.End == 0 {
		return weather.AlertRecord{}, errors.New("missing start or end")
	}

	return weather.AlertRecord{
		SenderName:  a.SenderName,
		Event:       a.Event,
		StartTime:   unix(a.Start),
		EndTime:     unix(a.End),
		Description: a.Description,
		Tags:        a.Tags,
		Severity:    ClassifySeverity(a.Event, a.Tags),
		Urgency:     weather.UrgencyUnknown,
		Certainty:   weather.CertaintyUnknown,
		RawData:     append(json.RawMessage(nil), raw...),
	}, nil
}

// ClassifySeverity derives a severity from the alert event name and tags,
// which is all the provider reports.
func ClassifySeverity(event string, tags []string) weather.Severity {
	text := event + " " + strings.Join(tags, " ")
	switch {
	case common.HasAny(text, "extreme", "tornado warning", "hurricane warning", "tsunami warning"):
		return weather.SeverityExtreme
	case common.HasAny(text, "warning", "severe"):
		return weather.SeveritySevere
	case common.HasAny(text, "watch"):
		return weather.SeverityModerate
	case common.HasAny(text, "advisory", "statement", "outlook"):
		return weather.SeverityMinor
	default:
		return weather.SeverityUnknown
	}
}

func applyCondition(rec *weather.WeatherRecord, conds []owmCondition) {
	if len(conds) == 0 {
		return
	}
	c := conds[0]
	id := c.ID
	rec.WeatherID = &id
	rec.WeatherMain = c.Main
	rec.WeatherDescription = c.Description
	rec.WeatherIcon = c.Icon
}

func unix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func unixPtr(sec *int64) *time.Time {
	if sec == nil {
		return nil
	}
	t := unix(*sec)
	return &t
}
