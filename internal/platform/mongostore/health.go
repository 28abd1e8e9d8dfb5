package mongostore

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is satisfied by *Store.
type Pinger interface {
	Health(ctx context.Context) error
}

// HealthHandler returns a handler for the document store health check
// endpoint.
func HealthHandler(p Pinger, timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
		defer cancel()

		start := time.Now()
		err := p.Health(ctx)
		latency := time.Since(start).String()

		if err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status":  "unhealthy",
				"error":   err.Error(),
				"latency": latency,
			})
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":  "healthy",
			"latency": latency,
		})
	}
}
