package httpapi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-ingest/internal/common"
	"github.com/i474232898/weather-ingest/internal/weather"
)

var validate = validator.New()

// rangeQuery holds the optional time window and result cap of record queries.
type rangeQuery struct {
	From  time.Time
	To    time.Time
	Limit int `validate:"gte=0,lte=1000"`
}

func parseRange(c *fiber.Ctx) (rangeQuery, error) {
	var q rangeQuery
	var err error
	if q.From, err = optionalTime(c, "from"); err != nil {
		return q, err
	}
	if q.To, err = optionalTime(c, "to"); err != nil {
		return q, err
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return q, errors.New("to must not be before from")
	}
	q.Limit = c.QueryInt("limit", 0)
	if err := validate.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}

func optionalTime(c *fiber.Ctx, key string) (time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return time.Time{}, nil
	}
	ts, err := parseTime(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", key, err)
	}
	return ts, nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}

// parseExclude reads the comma separated exclude list.
func parseExclude(c *fiber.Ctx) []weather.Dataset {
	var out []weather.Dataset
	for _, d := range common.SplitList(c.Query("exclude")) {
		out = append(out, weather.Dataset(strings.ToLower(d)))
	}
	return out
}

type activeRequest struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

type geocodeRequest struct {
	Candidate   weather.GeocodeCandidate `json:"candidate"`
	DisplayName string                   `json:"displayName" validate:"max=255"`
	Units       weather.Units            `json:"units" validate:"omitempty,oneof=metric imperial"`
}

type fetchRequest struct {
	ProviderID string `json:"providerId"`
}

type historicalFetchRequest struct {
	ProviderID string                 `json:"providerId"`
	DT         int64                  `json:"dt" validate:"required,gt=0"`
	Type       weather.HistoricalKind `json:"type" validate:"omitempty,oneof=hour day"`
}

// cleanupRequest carries a Go duration string such as "720h".
type cleanupRequest struct {
	DataType     weather.DataType `json:"dataType"`
	OlderThan    string           `json:"olderThan"`
	ResolvedOnly bool             `json:"resolvedOnly"`
}

func (r cleanupRequest) age() (time.Duration, error) {
	if r.OlderThan == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(r.OlderThan)
	if err != nil {
		return 0, fmt.Errorf("olderThan: %w", err)
	}
	return d, nil
}

// bind parses an optional JSON body into v and validates it.
func bind(c *fiber.Ctx, v any) error {
	if len(c.Body()) > 0 {
		if err := c.BodyParser(v); err != nil {
			return badRequest(err)
		}
	}
	if err := weather.Validate(v); err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}
	return nil
}
