package middleware

import (
	"os"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"exchange-core/src/models"
)

// Availability rejects admin requests while the process is in maintenance
// mode. The health endpoint stays reachable so probes keep working.
type Availability struct {
	maintenanceMode atomic.Bool
}

func NewAvailability() *Availability {
	a := &Availability{}
	if os.Getenv("MAINTENANCE_MODE") == "1" {
		a.maintenanceMode.Store(true)
		log.Warn().Msg("Admin API in maintenance mode - requests will return 503")
	}
	return a
}

func (a *Availability) SetMaintenanceMode(enabled bool) {
	a.maintenanceMode.Store(enabled)
}

func (a *Availability) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// edge case: health check always available
		if c.Path() == "/health" {
			return c.Next()
		}

		if a.maintenanceMode.Load() {
			return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
				Error: "Service unavailable: maintenance mode",
			})
		}

		return c.Next()
	}
}
