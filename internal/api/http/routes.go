package httpapi

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/i474232898/weather-ingest/internal/logger"
	"github.com/i474232898/weather-ingest/internal/weather"
)

// Deps are the collaborators the routes are served from. Gatherer may be
// nil, in which case /metrics is not mounted.
type Deps struct {
	Service  *weather.Service
	Ingestor *weather.Ingestor
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

type handlers struct {
	svc    *weather.Service
	ing    *weather.Ingestor
	logger *zap.Logger
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	h := &handlers{svc: deps.Service, ing: deps.Ingestor, logger: logger.OrNop(deps.Logger)}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "time": h.svc.Now()})
	})
	if deps.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := app.Group("/api/v1")

	locations := v1.Group("/locations")
	locations.Get("/", h.listLocations)
	locations.Post("/", h.createLocation)
	locations.Get("/search", h.searchLocations)
	locations.Post("/geocode", h.createFromGeocoding)
	locations.Get("/:id", h.getLocation)
	locations.Patch("/:id/active", h.setLocationActive)
	locations.Post("/:id/favorite", h.toggleFavorite)
	locations.Delete("/:id", h.deleteLocation)

	locations.Get("/:id/weather/current", h.currentWeather)
	locations.Get("/:id/weather/hourly", h.hourlyForecast)
	locations.Get("/:id/weather/daily", h.dailyForecast)
	locations.Get("/:id/weather/historical", h.historical)
	locations.Get("/:id/weather/minutely/next-hour", h.minutelyNextHour)
	locations.Get("/:id/weather/minutely/recent", h.recentMinutely)
	locations.Post("/:id/weather/fetch", h.fetch)
	locations.Post("/:id/weather/historical/fetch", h.fetchHistorical)
	locations.Get("/:id/alerts/active", h.activeAlerts)

	alerts := v1.Group("/alerts")
	alerts.Get("/", h.listAlerts)
	alerts.Get("/stats", h.alertStats)
	alerts.Post("/:id/acknowledge", h.acknowledgeAlert)
	alerts.Post("/:id/resolve", h.resolveAlert)

	cleanup := v1.Group("/cleanup")
	cleanup.Post("/weather", h.cleanupWeather)
	cleanup.Post("/minutely", h.cleanupMinutely)
	cleanup.Post("/alerts", h.cleanupAlerts)

	providers := v1.Group("/providers")
	providers.Get("/", h.listProviders)
	providers.Post("/", h.createProvider)
	providers.Patch("/:id/active", h.setProviderActive)
}
