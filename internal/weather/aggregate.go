package weather

import (
	"sort"
	"time"
)

// HourlyPrecipitation summarises the minutely records falling in one hour.
type HourlyPrecipitation struct {
	Hour               time.Time `json:"hour"` // always UTC, truncated to the hour
	TotalPrecipitation float64   `json:"totalPrecipitation"`
	MaxPrecipitation   float64   `json:"maxPrecipitation"`
	MeanProbability    *float64  `json:"meanProbability,omitempty"`
	WetMinutes         int       `json:"wetMinutes"`
	Samples            int       `json:"samples"`
}

// AggregateMinutely groups minutely records into per-hour buckets ordered by hour.
// Precipitation is summed and maxed; the probability is averaged over the
// minutes that report one; a minute is wet when it reports precipitation > 0.
func AggregateMinutely(records []MinutelyRecord) []HourlyPrecipitation {
	if len(records) == 0 {
		return nil
	}

	type bucket struct {
		agg      HourlyPrecipitation
		sumProb  float64
		probSeen int
	}

	buckets := make(map[time.Time]*bucket)
	for _, r := range records {
		hour := r.DataTimestamp.UTC().Truncate(time.Hour)
		b, ok := buckets[hour]
		if !ok {
			b = &bucket{agg: HourlyPrecipitation{Hour: hour}}
			buckets[hour] = b
		}

		b.agg.Samples++
		if r.Precipitation != nil {
			p := *r.Precipitation
			b.agg.TotalPrecipitation += p
			if p > b.agg.MaxPrecipitation {
				b.agg.MaxPrecipitation = p
			}
			if p > 0 {
				b.agg.WetMinutes++
			}
		}
		if r.PrecipitationProbability != nil {
			b.sumProb += *r.PrecipitationProbability
			b.probSeen++
		}
	}

	hours := make([]time.Time, 0, len(buckets))
	for h := range buckets {
		hours = append(hours, h)
	}
	sort.Slice(hours, func(i, j int) bool { return hours[i].Before(hours[j]) })

	out := make([]HourlyPrecipitation, 0, len(hours))
	for _, h := range hours {
		b := buckets[h]
		if b.probSeen > 0 {
			mean := b.sumProb / float64(b.probSeen)
			b.agg.MeanProbability = &mean
		}
		out = append(out, b.agg)
	}
	return out
}
