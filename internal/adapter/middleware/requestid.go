package middleware

import (
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const HeaderTraceID = "Ax-Trace-Id"

// RequestLog tags every request with a trace id (client supplied or a fresh
// uuid), echoes it back and logs the outcome.
func RequestLog(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := strings.TrimSpace(req.Header.Get(HeaderTraceID))
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}
			c.Set("trace_id", id)
			c.Response().Header().Set(HeaderTraceID, id)

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			logger.InfoContext(req.Context(), "http request",
				"trace_id", id,
				"method", req.Method,
				"route", c.Path(),
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return nil
		}
	}
}
