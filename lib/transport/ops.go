package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/oratio/bchhub.go/lib/responses"
	"github.com/oratio/bchhub.go/lib/service"
	"github.com/rs/zerolog"
	"github.com/ziflex/lecho/v3"
)

const healthTimeout = 5 * time.Second

// Pinger is anything the health check can ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

func InitEcho(c *service.Config, logger *lecho.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = responses.HTTPErrorHandler

	e.Use(middleware.Recover())
	e.Logger = logger
	e.Use(middleware.RequestID())

	// sentry init needs to happen before the echo middlewares are added
	if c.SentryDSN != "" {
		e.Use(sentryecho.New(sentryecho.Options{}))
	}
	return e
}

func CreateLoggingMiddleware(logger *lecho.Logger) echo.MiddlewareFunc {
	return lecho.Middleware(lecho.Config{
		Logger: logger,
		Enricher: func(c echo.Context, logger zerolog.Context) zerolog.Context {
			return logger.Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID))
		},
	})
}

// RegisterOpsEndpoints mounts the health check and the Prometheus scrape
// endpoint. Scrapes are not logged.
func RegisterOpsEndpoints(e *echo.Echo, pinger Pinger, logger *lecho.Logger) {
	prom := prometheus.NewPrometheus("bchhub", nil)
	e.Use(prom.HandlerFunc)
	prom.SetMetricsPath(e)
	e.GET("/health", HealthHandler(pinger), CreateLoggingMiddleware(logger))
}

// HealthHandler answers 200 when the database and the wallet respond.
func HealthHandler(pinger Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()
		if err := pinger.Ping(ctx); err != nil {
			c.Logger().Warnf("Health check failed: %v", err)
			return c.JSON(responses.ServiceUnavailableError.HttpStatusCode, responses.ServiceUnavailableError)
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	}
}

// StartOpsEcho serves e on the Prometheus port until ctx is done.
func StartOpsEcho(ctx context.Context, e *echo.Echo, port int, logger *lecho.Logger) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error(err)
		}
	}()
	logger.Infof("Starting ops server on port %d", port)
	if err := e.Start(fmt.Sprintf(":%d", port)); err != nil && err != http.ErrServerClosed {
		logger.Errorf("Ops server stopped: %v", err)
	}
}
