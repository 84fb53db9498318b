package routes

import (
	"github.com/gofiber/fiber/v2"

	"exchange-core/src/config"
	"exchange-core/src/handlers"
	"exchange-core/src/middleware"
)

func SetupRoutes(app *fiber.App, admin *handlers.AdminHandler, rateCfg config.RateLimit) {
	availability := middleware.NewAvailability()
	app.Use(availability.Middleware())
	app.Use(middleware.RequestLogger())

	api := app.Group("/api/v1")

	if !rateCfg.Disabled {
		rateLimiter := middleware.NewRateLimiter(rateCfg.MaxRequests, rateCfg.Window)
		api.Use(rateLimiter.Middleware())
	}

	api.Get("/orderbook/:symbol", admin.GetOrderBook)
	api.Get("/orders/:id", admin.GetOrderStatus)
	api.Get("/accounts/:id", admin.GetAccount)

	app.Get("/health", admin.HealthCheck)
	app.Get("/metrics", admin.Metrics)
}
