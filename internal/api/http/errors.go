package httpapi

import (
	"errors"
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/i474232898/weather-ingest/internal/weather"
)

// fail maps a domain error onto a fiber error. Unknown errors are logged and
// reported as 500 without detail.
func (h *handlers) fail(c *fiber.Ctx, err error) error {
	var rl *weather.RateLimitError
	if errors.As(err, &rl) {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(rl.RetryAfter.Seconds()))))
		return fiber.NewError(fiber.StatusTooManyRequests, err.Error())
	}

	switch {
	case errors.Is(err, weather.ErrValidation):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, weather.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, weather.ErrDuplicateLocation), errors.Is(err, weather.ErrDuplicateRecord):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, weather.ErrProviderUnavailable):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	case errors.Is(err, weather.ErrConfigurationMissing):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}

	h.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	return fiber.NewError(fiber.StatusInternalServerError, "internal error")
}

func badRequest(err error) error {
	return fiber.NewError(fiber.StatusBadRequest, err.Error())
}
