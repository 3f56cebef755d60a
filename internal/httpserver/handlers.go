package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthHandler reports whether the watcher is healthy.
func HealthHandler(check func() error) echo.HandlerFunc {
	return func(c echo.Context) error {
		if check != nil {
			if err := check(); err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			}
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}
