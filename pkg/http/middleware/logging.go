package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/logger"
)

// RequestLogging logs HTTP requests at debug level. Failures and slow
// requests are reported by Metrics.
func RequestLogging(l *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()

			err := next(c)
			if err != nil {
				// Resolve the status before logging.
				c.Error(err)
			}

			l.Debug("http request",
				logger.String("request_id", GetRequestID(c)),
				logger.String("method", req.Method),
				logger.String("uri", req.RequestURI),
				logger.String("remote", c.RealIP()),
				logger.Int("status", res.Status),
				logger.Duration("latency_ms", time.Since(start)),
			)
			return nil
		}
	}
}
