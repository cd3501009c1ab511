package weather

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConfigurationMissing is returned when no provider can be resolved.
	ErrConfigurationMissing = errors.New("no active weather provider configured")
	// ErrRateLimited is returned when a provider call is denied by the rate limiter.
	ErrRateLimited = errors.New("provider rate limit exceeded")
	// ErrProviderUnavailable is returned for non-2xx responses, timeouts and transport failures.
	ErrProviderUnavailable = errors.New("weather provider unavailable")
	// ErrValidation is returned for malformed caller input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned for unknown locations, providers or records.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateLocation is returned when a location already exists at the same coordinates.
	ErrDuplicateLocation = errors.New("location already exists at these coordinates")
	// ErrDuplicateRecord is returned by stores when a natural key is already taken.
	ErrDuplicateRecord = errors.New("record already exists")
)

// RateLimitError carries how long the caller should wait before retrying.
type RateLimitError struct {
	ProviderID string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("provider %s rate limited, retry after %s", e.ProviderID, e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// ProviderError describes a failed provider call. StatusCode is zero when the
// request never produced a response.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s returned status %d", e.Provider, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("provider %s request failed: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("provider %s unavailable", e.Provider)
}

func (e *ProviderError) Is(target error) bool { return target == ErrProviderUnavailable }

func (e *ProviderError) Unwrap() error { return e.Err }

// ValidationError names the offending input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
