package middleware

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/sudo-init-do/chefbid/internal/auth"
	"github.com/sudo-init-do/chefbid/internal/logging"
)

// RequestLogger logs one line per request through zerolog.
func RequestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	logger = logging.Component(logger, "http")
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			err := v.Error
			if ie, ok := c.Get(internalErrorKey).(error); ok && err == nil {
				err = ie
			}
			ev := logger.Info()
			if err != nil {
				ev = logger.Error().Err(err)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("user_id", auth.FromContext(c).UserID).
				Msg("request")
			return nil
		},
	})
}
