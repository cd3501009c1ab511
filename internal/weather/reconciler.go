package weather

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/i474232898/weather-ingest/internal/logger"
	"github.com/i474232898/weather-ingest/internal/metrics"
)

// Clock returns the current time. A nil Clock means time.Now in UTC.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

// Retention holds the inline retention windows applied before each dataset
// is reconciled.
type Retention struct {
	Current  time.Duration
	Hourly   time.Duration
	Daily    time.Duration
	Minutely time.Duration
}

// DefaultRetention returns the standard windows: 1h current, 48h hourly,
// 8 days daily and 2h minutely.
func DefaultRetention() Retention {
	return Retention{
		Current:  time.Hour,
		Hourly:   48 * time.Hour,
		Daily:    8 * 24 * time.Hour,
		Minutely: 2 * time.Hour,
	}
}

// DatasetResult counts what reconciliation did to one dataset.
type DatasetResult struct {
	Inserted int   `json:"inserted"`
	Updated  int   `json:"updated"`
	Skipped  int   `json:"skipped"`
	Purged   int   `json:"purged"`
	Err      error `json:"-"`
}

// ReconcileResult is the per-dataset outcome of applying one payload.
type ReconcileResult struct {
	LocationID string                    `json:"locationId"`
	Datasets   map[Dataset]DatasetResult `json:"datasets"`
}

// Err joins the errors of every failed dataset.
func (r ReconcileResult) Err() error {
	var errs []error
	for _, d := range Datasets {
		if res, ok := r.Datasets[d]; ok && res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d, res.Err))
		}
	}
	return errors.Join(errs...)
}

// Reconciler merges normalized payloads into the store under per-dataset
// policies:
//
//	current   purge stale, replace snapshot, never update in place
//	hourly    purge >48h, upsert by timestamp
//	daily     purge >8d, upsert by timestamp
//	alerts    purge ended, insert unseen (sender, event, start)
//	minutely  purge >2h, insert unseen timestamps
//
// Datasets are reconciled independently; a failing dataset does not stop
// the others.
type Reconciler struct {
	store     Store
	retention Retention
	clock     Clock
	logger    *zap.Logger
	metrics   *metrics.Ingestion
}

// NewReconciler creates a Reconciler. nil logger and metrics are allowed.
func NewReconciler(store Store, retention Retention, clock Clock, log *zap.Logger, m *metrics.Ingestion) *Reconciler {
	return &Reconciler{
		store:     store,
		retention: retention,
		clock:     clock,
		logger:    logger.OrNop(log),
		metrics:   m,
	}
}

// Apply reconciles every dataset present in payload for loc.
func (r *Reconciler) Apply(ctx context.Context, loc Location, payload *Payload) ReconcileResult {
	result := ReconcileResult{LocationID: loc.ID, Datasets: make(map[Dataset]DatasetResult)}
	if payload == nil {
		return result
	}

	for _, d := range Datasets {
		if problem := payload.Problems[d]; problem != nil {
			result.Datasets[d] = r.observe(loc, d, DatasetResult{Err: fmt.Errorf("normalize: %w", problem)})
			continue
		}
		if !payload.Has(d) {
			continue
		}

		var res DatasetResult
		switch d {
		case DatasetCurrent:
			res = r.reconcileCurrent(ctx, loc, *payload.Current)
		case DatasetHourly:
			res = r.upsertSeries(ctx, loc, DataTypeHourly, payload.Hourly, r.retention.Hourly)
		case DatasetDaily:
			res = r.upsertSeries(ctx, loc, DataTypeDaily, payload.Daily, r.retention.Daily)
		case DatasetMinutely:
			res = r.reconcileMinutely(ctx, loc, payload.Minutely)
		case DatasetAlerts:
			res = r.reconcileAlerts(ctx, loc, payload.Alerts)
		}
		result.Datasets[d] = r.observe(loc, d, res)
	}

	if payload.Timezone != "" && loc.Timezone != payload.Timezone {
		r.storeTimezone(ctx, loc.ID, payload.Timezone)
	}
	return result
}

func (r *Reconciler) storeTimezone(ctx context.Context, locationID, tz string) {
	loc, err := r.store.GetLocation(ctx, locationID)
	if err == nil {
		loc.Timezone = tz
		loc.UpdatedAt = r.clock.now()
		err = r.store.UpdateLocation(ctx, loc)
	}
	if err != nil {
		r.logger.Warn("failed to store location timezone", zap.String("location_id", locationID), zap.Error(err))
	}
}

// ApplyHistorical upserts historical records by timestamp. Historical rows
// are never purged by age.
func (r *Reconciler) ApplyHistorical(ctx context.Context, loc Location, records []WeatherRecord) DatasetResult {
	return r.observe(loc, DatasetHistorical, r.upsertSeries(ctx, loc, DataTypeHistorical, records, 0))
}

func (r *Reconciler) observe(loc Location, d Dataset, res DatasetResult) DatasetResult {
	r.metrics.ObserveDataset(string(d), res.Inserted, res.Updated, res.Skipped, res.Purged, res.Err)

	fields := []zap.Field{
		zap.String("location_id", loc.ID),
		zap.String("dataset", string(d)),
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
		zap.Int("purged", res.Purged),
	}
	if res.Err != nil {
		r.logger.Error("dataset reconciliation failed", append(fields, zap.Error(res.Err))...)
		return res
	}
	r.logger.Debug("dataset reconciled", fields...)
	return res
}

func (r *Reconciler) reconcileCurrent(ctx context.Context, loc Location, rec WeatherRecord) DatasetResult {
	var res DatasetResult
	now := r.clock.now()

	purged, err := r.store.DeleteWeatherRecords(ctx, RecordDelete{
		LocationID: loc.ID,
		DataType:   DataTypeCurrent,
		Before:     now.Add(-r.retention.Current),
	})
	res.Purged += purged
	if err != nil {
		res.Err = fmt.Errorf("purge stale current: %w", err)
		return res
	}

	latest, err := r.store.QueryWeatherRecords(ctx, RecordQuery{
		LocationID: loc.ID,
		DataType:   DataTypeCurrent,
		Descending: true,
		Limit:      1,
	})
	if err != nil {
		res.Err = fmt.Errorf("load latest current: %w", err)
		return res
	}
	if len(latest) > 0 && latest[0].DataTimestamp.After(rec.DataTimestamp) {
		// A newer snapshot is already stored.
		res.Skipped++
		return res
	}

	superseded, err := r.store.DeleteWeatherRecordsUpTo(ctx, loc.ID, DataTypeCurrent, rec.DataTimestamp)
	res.Purged += superseded
	if err != nil {
		res.Err = fmt.Errorf("replace current: %w", err)
		return res
	}

	stamp(&rec, loc, DataTypeCurrent, now)
	if err := r.store.InsertWeatherRecord(ctx, &rec); err != nil {
		res.Err = fmt.Errorf("insert current: %w", err)
		return res
	}
	res.Inserted++
	return res
}

// upsertSeries applies the refine-in-place policy used by hourly, daily and
// historical data. keep <= 0 disables age purging.
func (r *Reconciler) upsertSeries(ctx context.Context, loc Location, dataType DataType, records []WeatherRecord, keep time.Duration) DatasetResult {
	var res DatasetResult
	now := r.clock.now()

	var cutoff time.Time
	if keep > 0 {
		cutoff = now.Add(-keep)
		purged, err := r.store.DeleteWeatherRecords(ctx, RecordDelete{
			LocationID: loc.ID,
			DataType:   dataType,
			Before:     cutoff,
		})
		res.Purged += purged
		if err != nil {
			res.Err = fmt.Errorf("purge %s: %w", dataType, err)
			return res
		}
	}

	var errs []error
	for _, rec := range records {
		if !cutoff.IsZero() && rec.DataTimestamp.Before(cutoff) {
			res.Skipped++
			continue
		}

		existing, found, err := r.store.FindWeatherRecord(ctx, loc.ID, dataType, rec.DataTimestamp)
		if err != nil {
			errs = append(errs, fmt.Errorf("find %s at %s: %w", dataType, rec.DataTimestamp.Format(time.RFC3339), err))
			continue
		}

		if found {
			stamp(&rec, loc, dataType, now)
			rec.ID = existing.ID
			rec.CreatedAt = existing.CreatedAt
			if err := r.store.UpdateWeatherRecord(ctx, rec); err != nil {
				errs = append(errs, fmt.Errorf("update %s %s: %w", dataType, existing.ID, err))
				continue
			}
			res.Updated++
			continue
		}

		stamp(&rec, loc, dataType, now)
		if err := r.store.InsertWeatherRecord(ctx, &rec); err != nil {
			errs = append(errs, fmt.Errorf("insert %s at %s: %w", dataType, rec.DataTimestamp.Format(time.RFC3339), err))
			continue
		}
		res.Inserted++
	}
	res.Err = errors.Join(errs...)
	return res
}

func (r *Reconciler) reconcileMinutely(ctx context.Context, loc Location, records []MinutelyRecord) DatasetResult {
	var res DatasetResult
	now := r.clock.now()
	cutoff := now.Add(-r.retention.Minutely)

	purged, err := r.store.DeleteMinutely(ctx, RecordDelete{LocationID: loc.ID, Before: cutoff})
	res.Purged += purged
	if err != nil {
		res.Err = fmt.Errorf("purge minutely: %w", err)
		return res
	}

	var errs []error
	for _, rec := range records {
		if rec.DataTimestamp.Before(cutoff) {
			res.Skipped++
			continue
		}

		exists, err := r.store.MinutelyExists(ctx, loc.ID, rec.DataTimestamp)
		if err != nil {
			errs = append(errs, fmt.Errorf("find minutely: %w", err))
			continue
		}
		if exists {
			res.Skipped++
			continue
		}

		rec.ID = uuid.NewString()
		rec.LocationID = loc.ID
		rec.CreatedAt = now
		if err := r.store.InsertMinutely(ctx, &rec); err != nil {
			if errors.Is(err, ErrDuplicateRecord) {
				res.Skipped++
				continue
			}
			errs = append(errs, fmt.Errorf("insert minutely: %w", err))
			continue
		}
		res.Inserted++
	}
	res.Err = errors.Join(errs...)
	return res
}

func (r *Reconciler) reconcileAlerts(ctx context.Context, loc Location, alerts []AlertRecord) DatasetResult {
	var res DatasetResult
	now := r.clock.now()

	purged, err := r.store.DeleteAlerts(ctx, AlertDelete{LocationID: loc.ID, EndedBefore: now})
	res.Purged += purged
	if err != nil {
		res.Err = fmt.Errorf("purge ended alerts: %w", err)
		return res
	}

	var errs []error
	for _, a := range alerts {
		if a.EndTime.Before(now) {
			res.Skipped++
			continue
		}

		_, found, err := r.store.FindAlert(ctx, loc.ID, a.SenderName, a.Event, a.StartTime)
		if err != nil {
			errs = append(errs, fmt.Errorf("find alert %q: %w", a.Event, err))
			continue
		}
		if found {
			res.Skipped++
			continue
		}

		a.ID = uuid.NewString()
		a.LocationID = loc.ID
		a.IsActive = true
		a.CreatedAt = now
		a.UpdatedAt = now
		if err := r.store.InsertAlert(ctx, &a); err != nil {
			if errors.Is(err, ErrDuplicateRecord) {
				res.Skipped++
				continue
			}
			errs = append(errs, fmt.Errorf("insert alert %q: %w", a.Event, err))
			continue
		}
		res.Inserted++
	}
	res.Err = errors.Join(errs...)
	return res
}

func stamp(rec *WeatherRecord, loc Location, dataType DataType, now time.Time) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.LocationID = loc.ID
	rec.DataType = dataType
	rec.CreatedAt = now
	rec.UpdatedAt = now
}
