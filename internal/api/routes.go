package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"

	"github.com/arvancloud/codearena/internal/admin"
	"github.com/arvancloud/codearena/internal/metrics"
)

// SetupRoutes registers the Intake API's full HTTP surface: the
// submission pipeline, read endpoints, health/readiness, Prometheus
// scraping, and (if adminHandlers is non-nil) the DLQ inspection
// route.
func SetupRoutes(
	app *fiber.App,
	logger *zap.Logger,
	m *metrics.Metrics,
	handlers *Handlers,
	adminHandlers *admin.Handlers,
	healthFn func(c *fiber.Ctx) error,
	readyFn func(c *fiber.Ctx) error,
) {
	SetupMiddleware(app, logger, m)

	app.Get("/health", healthFn)
	app.Get("/ready", readyFn)

	if m != nil {
		app.Get("/metrics", metricsHandler(m))
	}

	// @Summary Submit code for judging
	// @Router /api/submit [post]
	app.Post("/api/submit", handlers.Submit)

	// @Summary Fetch a submission's current state
	// @Router /api/submissions/{id} [get]
	app.Get("/api/submissions/:id", handlers.GetSubmission)

	// @Summary List a user's submissions
	// @Router /api/users/{id}/submissions [get]
	app.Get("/api/users/:id/submissions", handlers.ListUserSubmissions)

	if adminHandlers != nil {
		admins := app.Group("/admin", adminHandlers.RequireToken)
		admins.Get("/dlq", adminHandlers.ListDLQ)
	}
}

// metricsHandler gathers m's registry and writes it in the standard
// Prometheus text exposition format.
func metricsHandler(m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		families, err := m.Registry.Gather()
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString("failed to gather metrics")
		}

		c.Set(fiber.HeaderContentType, string(expfmt.NewFormat(expfmt.TypeTextPlain)))
		enc := expfmt.NewEncoder(c, expfmt.NewFormat(expfmt.TypeTextPlain))
		for _, mf := range families {
			if err := enc.Encode(mf); err != nil {
				return c.Status(fiber.StatusInternalServerError).SendString("failed to encode metrics")
			}
		}
		return nil
	}
}
