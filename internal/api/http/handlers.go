package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-ingest/internal/weather"
)

func (h *handlers) listLocations(c *fiber.Ctx) error {
	locs, err := h.svc.ListLocations(c.UserContext(), weather.LocationFilter{
		ActiveOnly:   c.QueryBool("active", false),
		FavoriteOnly: c.QueryBool("favorite", false),
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"locations": locs, "count": len(locs)})
}

func (h *handlers) createLocation(c *fiber.Ctx) error {
	var in weather.LocationInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(err)
	}
	loc, err := h.svc.CreateLocation(c.UserContext(), in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(loc)
}

func (h *handlers) searchLocations(c *fiber.Ctx) error {
	candidates, err := h.svc.SearchLocations(c.UserContext(), c.Query("q"), c.QueryInt("limit", 0))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"results": candidates})
}

func (h *handlers) createFromGeocoding(c *fiber.Ctx) error {
	var req geocodeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	loc, err := h.svc.CreateLocationFromGeocoding(c.UserContext(), req.Candidate, req.DisplayName, req.Units)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(loc)
}

func (h *handlers) getLocation(c *fiber.Ctx) error {
	loc, err := h.svc.GetLocation(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(loc)
}

func (h *handlers) setLocationActive(c *fiber.Ctx) error {
	var req activeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	loc, err := h.svc.SetLocationActive(c.UserContext(), c.Params("id"), *req.IsActive)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(loc)
}

func (h *handlers) toggleFavorite(c *fiber.Ctx) error {
	loc, err := h.svc.ToggleFavorite(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(loc)
}

// deleteLocation soft deletes, or removes everything with ?purge=true.
func (h *handlers) deleteLocation(c *fiber.Ctx) error {
	id := c.Params("id")
	var err error
	if c.QueryBool("purge", false) {
		err = h.svc.PurgeLocation(c.UserContext(), id)
	} else {
		err = h.svc.DeleteLocation(c.UserContext(), id)
	}
	if err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handlers) currentWeather(c *fiber.Ctx) error {
	loc, err := h.svc.GetLocation(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	rec, err := h.svc.CurrentWeather(c.UserContext(), loc.ID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(weather.ProjectWeather(rec, loc.Units))
}

func (h *handlers) hourlyForecast(c *fiber.Ctx) error {
	return h.series(c, func(loc weather.Location, q rangeQuery) ([]weather.WeatherRecord, error) {
		return h.svc.HourlyForecast(c.UserContext(), loc.ID, q.From, q.To, q.Limit)
	})
}

func (h *handlers) dailyForecast(c *fiber.Ctx) error {
	return h.series(c, func(loc weather.Location, q rangeQuery) ([]weather.WeatherRecord, error) {
		return h.svc.DailyForecast(c.UserContext(), loc.ID, q.From, q.To, q.Limit)
	})
}

func (h *handlers) historical(c *fiber.Ctx) error {
	return h.series(c, func(loc weather.Location, q rangeQuery) ([]weather.WeatherRecord, error) {
		return h.svc.Historical(c.UserContext(), loc.ID, q.From, q.To, q.Limit)
	})
}

// series resolves the location and range, runs query and projects the result.
func (h *handlers) series(c *fiber.Ctx, query func(weather.Location, rangeQuery) ([]weather.WeatherRecord, error)) error {
	q, err := parseRange(c)
	if err != nil {
		return badRequest(err)
	}
	loc, err := h.svc.GetLocation(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	recs, err := query(loc, q)
	if err != nil {
		return h.fail(c, err)
	}

	views := make([]weather.WeatherView, 0, len(recs))
	for _, r := range recs {
		views = append(views, weather.ProjectWeather(r, loc.Units))
	}
	return c.JSON(fiber.Map{"locationId": loc.ID, "records": views, "count": len(views)})
}

func (h *handlers) minutelyNextHour(c *fiber.Ctx) error {
	recs, err := h.svc.MinutelyNextHour(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"minutes": projectMinutely(recs)})
}

func (h *handlers) recentMinutely(c *fiber.Ctx) error {
	grouped := c.QueryBool("grouped", false)
	sum, err := h.svc.RecentMinutely(c.UserContext(), c.Params("id"), grouped)
	if err != nil {
		return h.fail(c, err)
	}
	out := fiber.Map{"minutes": projectMinutely(sum.Records)}
	if grouped {
		out["hours"] = sum.Hours
	}
	return c.JSON(out)
}

func projectMinutely(recs []weather.MinutelyRecord) []weather.MinutelyView {
	views := make([]weather.MinutelyView, 0, len(recs))
	for _, m := range recs {
		views = append(views, weather.ProjectMinutely(m))
	}
	return views
}

func (h *handlers) fetch(c *fiber.Ctx) error {
	var req fetchRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.ing.FetchLocation(c.UserContext(), c.Params("id"), req.ProviderID, parseExclude(c))
	if err != nil {
		return h.fail(c, err)
	}

	out := fiber.Map{"result": res}
	if derr := res.Err(); derr != nil {
		out["errors"] = derr.Error()
	}
	return c.JSON(out)
}

func (h *handlers) fetchHistorical(c *fiber.Ctx) error {
	var req historicalFetchRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	kind := req.Type
	if kind == "" {
		kind = weather.HistoricalHour
	}
	res, err := h.ing.FetchHistorical(c.UserContext(), c.Params("id"), req.ProviderID, time.Unix(req.DT, 0).UTC(), kind)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"result": res})
}

func (h *handlers) activeAlerts(c *fiber.Ctx) error {
	alerts, err := h.svc.ActiveAlerts(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"alerts": h.projectAlerts(alerts)})
}

func (h *handlers) listAlerts(c *fiber.Ctx) error {
	q, err := parseRange(c)
	if err != nil {
		return badRequest(err)
	}
	alerts, err := h.svc.ListAlerts(c.UserContext(), weather.AlertQuery{
		LocationID: c.Query("locationId"),
		ActiveOnly: c.QueryBool("active", false),
		Severity:   weather.Severity(c.Query("severity")),
		From:       q.From,
		To:         q.To,
		Limit:      q.Limit,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"alerts": h.projectAlerts(alerts), "count": len(alerts)})
}

func (h *handlers) projectAlerts(alerts []weather.AlertRecord) []weather.AlertView {
	now := h.svc.Now()
	views := make([]weather.AlertView, 0, len(alerts))
	for _, a := range alerts {
		views = append(views, weather.ProjectAlert(a, now))
	}
	return views
}

func (h *handlers) alertStats(c *fiber.Ctx) error {
	q, err := parseRange(c)
	if err != nil {
		return badRequest(err)
	}
	stats, err := h.svc.AlertStatistics(c.UserContext(), weather.AlertStatsFilter{
		LocationID: c.Query("locationId"),
		From:       q.From,
		To:         q.To,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(stats)
}

func (h *handlers) acknowledgeAlert(c *fiber.Ctx) error {
	a, err := h.svc.AcknowledgeAlert(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(weather.ProjectAlert(a, h.svc.Now()))
}

func (h *handlers) resolveAlert(c *fiber.Ctx) error {
	a, err := h.svc.ResolveAlert(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(weather.ProjectAlert(a, h.svc.Now()))
}

func (h *handlers) cleanupWeather(c *fiber.Ctx) error {
	return h.cleanup(c, func(req cleanupRequest, age time.Duration) (int, error) {
		return h.svc.CleanupWeather(c.UserContext(), req.DataType, age)
	})
}

func (h *handlers) cleanupMinutely(c *fiber.Ctx) error {
	return h.cleanup(c, func(_ cleanupRequest, age time.Duration) (int, error) {
		return h.svc.CleanupMinutely(c.UserContext(), age)
	})
}

func (h *handlers) cleanupAlerts(c *fiber.Ctx) error {
	return h.cleanup(c, func(req cleanupRequest, age time.Duration) (int, error) {
		return h.svc.CleanupAlerts(c.UserContext(), age, req.ResolvedOnly)
	})
}

func (h *handlers) cleanup(c *fiber.Ctx, run func(cleanupRequest, time.Duration) (int, error)) error {
	var req cleanupRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	age, err := req.age()
	if err != nil {
		return badRequest(err)
	}
	n, err := run(req, age)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"removed": n})
}

func (h *handlers) listProviders(c *fiber.Ctx) error {
	providers, err := h.svc.ListProviders(c.UserContext(), c.QueryBool("active", false))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"providers": providers})
}

func (h *handlers) createProvider(c *fiber.Ctx) error {
	var in weather.ProviderInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(err)
	}
	p, err := h.svc.CreateProvider(c.UserContext(), in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

func (h *handlers) setProviderActive(c *fiber.Ctx) error {
	var req activeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	p, err := h.svc.SetProviderActive(c.UserContext(), c.Params("id"), *req.IsActive)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(p)
}
