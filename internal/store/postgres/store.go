package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/i474232898/weather-ingest/internal/weather"
)

// Store implements weather.Store on PostgreSQL.
type Store struct {
	db *gorm.DB
}

var _ weather.Store = (*Store)(nil)

// New wraps an open connection. The schema must already be migrated.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, weather.ErrNotFound)
}

// translate maps driver errors onto the domain sentinels.
func translate(err error, duplicate error, locationID string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return duplicate
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return notFound("location", locationID)
	}
	return err
}

func (s *Store) CreateLocation(ctx context.Context, loc *weather.Location) error {
	if loc.ID == "" {
		loc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if loc.CreatedAt.IsZero() {
		loc.CreatedAt = now
		loc.UpdatedAt = now
	}
	row := toLocationRow(*loc)
	return translate(s.db.WithContext(ctx).Create(&row).Error, weather.ErrDuplicateLocation, loc.ID)
}

func (s *Store) GetLocation(ctx context.Context, id string) (weather.Location, error) {
	var row locationRow
	err := s.db.WithContext(ctx).Take(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return weather.Location{}, notFound("location", id)
	}
	if err != nil {
		return weather.Location{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) FindLocationByCoordinates(ctx context.Context, lat, lon float64) (weather.Location, bool, error) {
	var row locationRow
	err := s.db.WithContext(ctx).
		Where("latitude = ? AND longitude = ? AND deleted_at IS NULL", lat, lon).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return weather.Location{}, false, nil
	}
	if err != nil {
		return weather.Location{}, false, err
	}
	return row.toDomain(), true, nil
}

func (s *Store) ListLocations(ctx context.Context, filter weather.LocationFilter) ([]weather.Location, error) {
	q := s.db.WithContext(ctx).Model(&locationRow{})
	if !filter.IncludeDeleted {
		q = q.Where("deleted_at IS NULL")
	}
	if filter.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}
	if filter.FavoriteOnly {
		q = q.Where("is_favorite = ?", true)
	}

	var rows []locationRow
	if err := q.Order("name ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]weather.Location, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) UpdateLocation(ctx context.Context, loc weather.Location) error {
	row := toLocationRow(loc)
	res := s.db.WithContext(ctx).Model(&locationRow{}).Where("id = ?", loc.ID).
		Select("*").Omit("id", "created_at").Updates(&row)
	if err := translate(res.Error, weather.ErrDuplicateLocation, loc.ID); err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return notFound("location", loc.ID)
	}
	return nil
}

func (s *Store) SoftDeleteLocation(ctx context.Context, id string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&locationRow{}).Where("id = ?", id).
		Updates(map[string]any{"deleted_at": at, "is_active": false, "updated_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound("location", id)
	}
	return nil
}

// DeleteLocation removes the location; owned rows go with it through the
// cascading foreign keys.
func (s *Store) DeleteLocation(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&locationRow{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound("location", id)
	}
	return nil
}

func (s *Store) CreateProvider(ctx context.Context, p *weather.ProviderConfig) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
		p.UpdatedAt = now
	}
	row := toProviderRow(*p)
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) GetProvider(ctx context.Context, id string) (weather.ProviderConfig, error) {
	var row providerRow
	err := s.db.WithContext(ctx).Take(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return weather.ProviderConfig{}, notFound("provider", id)
	}
	if err != nil {
		return weather.ProviderConfig{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ListProviders(ctx context.Context, activeOnly bool) ([]weather.ProviderConfig, error) {
	q := s.db.WithContext(ctx).Model(&providerRow{})
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var rows []providerRow
	if err := q.Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]weather.ProviderConfig, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) UpdateProvider(ctx context.Context, p weather.ProviderConfig) error {
	row := toProviderRow(p)
	res := s.db.WithContext(ctx).Model(&providerRow{}).Where("id = ?", p.ID).
		Select("*").Omit("id", "created_at").Updates(&row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound("provider", p.ID)
	}
	return nil
}

func (s *Store) InsertWeatherRecord(ctx context.Context, rec *weather.WeatherRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	row := toWeatherRow(*rec)
	return translate(s.db.WithContext(ctx).Omit(clause.Associations).Create(&row).Error, weather.ErrDuplicateRecord, rec.LocationID)
}

func (s *Store) FindWeatherRecord(ctx context.Context, locationID string, dataType weather.DataType, ts time.Time) (weather.WeatherRecord, bool, error) {
	var row weatherRecordRow
	err := s.db.WithContext(ctx).
		Where("location_id = ? AND data_type = ? AND data_timestamp = ?", locationID, string(dataType), ts).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return weather.WeatherRecord{}, false, nil
	}
	if err != nil {
		return weather.WeatherRecord{}, false, err
	}
	return row.toDomain(), true, nil
}

func (s *Store) UpdateWeatherRecord(ctx context.Context, rec weather.WeatherRecord) error {
	row := toWeatherRow(rec)
	res := s.db.WithContext(ctx).Model(&weatherRecordRow{}).Where("id = ?", rec.ID).
		Select("*").Omit("id", "created_at", "Location").Updates(&row)
	if err := translate(res.Error, weather.ErrDuplicateRecord, rec.LocationID); err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return notFound("weather record", rec.ID)
	}
	return nil
}

func (s *Store) QueryWeatherRecords(ctx context.Context, q weather.RecordQuery) ([]weather.WeatherRecord, error) {
	tx := s.db.WithContext(ctx).Model(&weatherRecordRow{})
	if q.LocationID != "" {
		tx = tx.Where("location_id = ?", q.LocationID)
	}
	if q.DataType != "" {
		tx = tx.Where("data_type = ?", string(q.DataType))
	}
	tx = timeRange(tx, "data_timestamp", q.From, q.To)
	tx = orderLimit(tx, "data_timestamp", q.Descending, q.Limit)

	var rows []weatherRecordRow
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]weather.WeatherRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) DeleteWeatherRecords(ctx context.Context, del weather.RecordDelete) (int, error) {
	tx := s.db.WithContext(ctx).Where("data_timestamp < ?", del.Before)
	if del.LocationID != "" {
		tx = tx.Where("location_id = ?", del.LocationID)
	}
	if del.DataType != "" {
		tx = tx.Where("data_type = ?", string(del.DataType))
	}
	res := tx.Delete(&weatherRecordRow{})
	return int(res.RowsAffected), res.Error
}

func (s *Store) DeleteWeatherRecordsUpTo(ctx context.Context, locationID string, dataType weather.DataType, ts time.Time) (int, error) {
	res := s.db.WithContext(ctx).
		Where("location_id = ? AND data_type = ? AND data_timestamp <= ?", locationID, string(dataType), ts).
		Delete(&weatherRecordRow{})
	return int(res.RowsAffected), res.Error
}

func (s *Store) InsertMinutely(ctx context.Context, rec *weather.MinutelyRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	row := toMinutelyRow(*rec)
	return translate(s.db.WithContext(ctx).Omit(clause.Associations).Create(&row).Error, weather.ErrDuplicateRecord, rec.LocationID)
}

func (s *Store) MinutelyExists(ctx context.Context, locationID string, dataTimestamp time.Time) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&minutelyRow{}).
		Where("location_id = ? AND data_timestamp = ?", locationID, dataTimestamp).
		Limit(1).Count(&n).Error
	return n > 0, err
}

func (s *Store) QueryMinutely(ctx context.Context, q weather.RecordQuery) ([]weather.MinutelyRecord, error) {
	tx := s.db.WithContext(ctx).Model(&minutelyRow{})
	if q.LocationID != "" {
		tx = tx.Where("location_id = ?", q.LocationID)
	}
	tx = timeRange(tx, "data_timestamp", q.From, q.To)
	tx = orderLimit(tx, "data_timestamp", q.Descending, q.Limit)

	var rows []minutelyRow
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]weather.MinutelyRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) DeleteMinutely(ctx context.Context, del weather.RecordDelete) (int, error) {
	tx := s.db.WithContext(ctx).Where("data_timestamp < ?", del.Before)
	if del.LocationID != "" {
		tx = tx.Where("location_id = ?", del.LocationID)
	}
	res := tx.Delete(&minutelyRow{})
	return int(res.RowsAffected), res.Error
}

func (s *Store) InsertAlert(ctx context.Context, a *weather.AlertRecord) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	row, err := toAlertRow(*a)
	if err != nil {
		return err
	}
	return translate(s.db.WithContext(ctx).Omit(clause.Associations).Create(&row).Error, weather.ErrDuplicateRecord, a.LocationID)
}

func (s *Store) FindAlert(ctx context.Context, locationID, sender, event string, start time.Time) (weather.AlertRecord, bool, error) {
	var row alertRow
	err := s.db.WithContext(ctx).
		Where("location_id = ? AND sender_name = ? AND event = ? AND start_time = ?", locationID, sender, event, start).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return weather.AlertRecord{}, false, nil
	}
	if err != nil {
		return weather.AlertRecord{}, false, err
	}
	a, err := row.toDomain()
	return a, err == nil, err
}

func (s *Store) GetAlert(ctx context.Context, id string) (weather.AlertRecord, error) {
	var row alertRow
	err := s.db.WithContext(ctx).Take(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return weather.AlertRecord{}, notFound("alert", id)
	}
	if err != nil {
		return weather.AlertRecord{}, err
	}
	return row.toDomain()
}

func (s *Store) UpdateAlert(ctx context.Context, a weather.AlertRecord) error {
	row, err := toAlertRow(a)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&alertRow{}).Where("id = ?", a.ID).
		Select("*").Omit("id", "created_at", "Location").Updates(&row)
	if err := translate(res.Error, weather.ErrDuplicateRecord, a.LocationID); err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return notFound("alert", a.ID)
	}
	return nil
}

func (s *Store) QueryAlerts(ctx context.Context, q weather.AlertQuery) ([]weather.AlertRecord, error) {
	tx := s.db.WithContext(ctx).Model(&alertRow{})
	if q.LocationID != "" {
		tx = tx.Where("location_id = ?", q.LocationID)
	}
	if q.ActiveOnly {
		tx = tx.Where("is_active = ?", true)
	}
	if q.Severity != "" {
		tx = tx.Where("severity = ?", string(q.Severity))
	}
	tx = timeRange(tx, "start_time", q.From, q.To)
	tx = tx.Order("start_time DESC, id ASC")
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var rows []alertRow
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]weather.AlertRecord, 0, len(rows))
	for _, r := range rows {
		a, err := r.toDomain()
		if err != nil {
			return nil, fmt.Errorf("alert %s: %w", r.ID, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) DeleteAlerts(ctx context.Context, del weather.AlertDelete) (int, error) {
	tx := s.db.WithContext(ctx).Where("end_time < ?", del.EndedBefore)
	if del.LocationID != "" {
		tx = tx.Where("location_id = ?", del.LocationID)
	}
	if del.ResolvedOnly {
		tx = tx.Where("resolved_at IS NOT NULL")
	}
	res := tx.Delete(&alertRow{})
	return int(res.RowsAffected), res.Error
}

func timeRange(tx *gorm.DB, column string, from, to time.Time) *gorm.DB {
	if !from.IsZero() {
		tx = tx.Where(column+" >= ?", from)
	}
	if !to.IsZero() {
		tx = tx.Where(column+" <= ?", to)
	}
	return tx
}

func orderLimit(tx *gorm.DB, column string, desc bool, limit int) *gorm.DB {
	tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: desc})
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	return tx
}
