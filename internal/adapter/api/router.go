package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterInfo struct {
	Version string
	Env     string
}

func SetupRouter(app *fiber.App, handler *QueryHandler, gatherer prometheus.Gatherer, info RouterInfo) {
	// Middleware
	app.Use(logger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":  "healthy",
			"version": info.Version,
			"env":     info.Env,
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// API Versioning
	v1 := app.Group("/v1")
	v1.Post("/query", handler.HandleQuery)
	v1.Post("/findings/index", handler.HandleReindex)
}
