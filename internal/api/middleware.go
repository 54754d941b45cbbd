package api

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/arvancloud/codearena/internal/metrics"
)

// SetupMiddleware wires the Intake API's ambient HTTP middleware:
// panic recovery, request IDs, CORS, and a logging middleware that
// records both a structured log line and the HTTP Prometheus series.
// Per-submission rate limiting is handled inline in Submit, since it
// needs the parsed userId from the body rather than a route prefix.
func SetupMiddleware(app *fiber.App, logger *zap.Logger, m *metrics.Metrics) {
	// Recovery middleware
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// Request ID middleware
	app.Use(requestid.New())

	// CORS middleware
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Logging middleware
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start)
		status := c.Response().StatusCode()

		logger.Info("http_request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("duration", duration),
			zap.String("request_id", c.Get("X-Request-ID")),
			zap.String("user_agent", c.Get("User-Agent")),
		)

		if m != nil {
			statusStr := fmt.Sprintf("%d", status)
			m.HTTPRequestsTotal.WithLabelValues(c.Method(), c.Path(), statusStr).Inc()
			m.HTTPRequestDuration.WithLabelValues(c.Method(), c.Path()).Observe(duration.Seconds())
		}

		return err
	})
}
