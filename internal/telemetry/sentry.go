// Package telemetry wires error reporting and metrics
package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"

	"peerpulse-backend/internal/config"
)

// SetupSentry initialises the Sentry client and installs its echo middleware.
// Without a DSN errors are only logged.
func SetupSentry(e *echo.Echo, cfg *config.Config) {
	if cfg.Sentry.DSN == "" {
		e.Logger.Warn("SENTRY_DSN not configured, errors will not be reported")
		return
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.Sentry.DSN,
		EnableTracing:    true,
		TracesSampleRate: 0.2,
		Debug:            cfg.Server.Debug,
	})
	if err != nil {
		e.Logger.Errorf("sentry.Init: %s", err)
		return
	}

	e.Use(sentryecho.New(sentryecho.Options{
		Repanic: true,
		Timeout: 2 * time.Second,
	}))
}

// CaptureError reports err to Sentry. It is a no-op when Sentry is not set up.
func CaptureError(err error) {
	if err == nil {
		return
	}
	sentry.CaptureException(err)
}

// SentryLogger forwards every Error call to Sentry before logging it
type SentryLogger struct {
	echo.Logger
}

func (l *SentryLogger) Error(i ...interface{}) {
	if len(i) > 0 {
		if err, ok := i[0].(error); ok {
			CaptureError(err)
		} else {
			CaptureError(fmt.Errorf("%v", fmt.Sprint(i...)))
		}
	}
	l.Logger.Error(i...)
}

func (l *SentryLogger) Errorf(format string, args ...interface{}) {
	CaptureError(fmt.Errorf(format, args...))
	l.Logger.Errorf(format, args...)
}
