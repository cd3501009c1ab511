package weather

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks v against its struct tags and reports the first failing
// field as a *ValidationError.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		reason := "failed " + fe.Tag()
		if fe.Param() != "" {
			reason = fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
		}
		return &ValidationError{Field: fe.Field(), Reason: reason}
	}
	return &ValidationError{Reason: err.Error()}
}

// LocationInput is the caller supplied data for a new location.
type LocationInput struct {
	Name          string  `json:"name" validate:"required,max=255"`
	City          string  `json:"city" validate:"max=255"`
	State         string  `json:"state" validate:"max=255"`
	Country       string  `json:"country" validate:"max=255"`
	CountryCode   string  `json:"countryCode" validate:"omitempty,len=2"`
	Latitude      float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude     float64 `json:"longitude" validate:"gte=-180,lte=180"`
	Units         Units   `json:"units" validate:"omitempty,oneof=metric imperial"`
	Timezone      string  `json:"timezone" validate:"max=64"`
	IsFavorite    bool    `json:"isFavorite"`
	GeocodingData []byte  `json:"-"`
}

// ProviderInput is the operator supplied data for a provider config.
type ProviderInput struct {
	Name             string `json:"name" validate:"required,max=100"`
	BaseURL          string `json:"baseUrl" validate:"required,url"`
	APIKey           string `json:"apiKey" validate:"required"`
	IsActive         bool   `json:"isActive"`
	IsDefault        bool   `json:"isDefault"`
	RateLimitMinutes int    `json:"rateLimitMinutes" validate:"gte=0,lte=1440"`
}
