package router

import (
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inspecto-app/inspecto/internal/pkg/constants"
)

// MetricsConfig holds the basic auth credentials for the Prometheus endpoint.
type MetricsConfig struct {
	User     string
	Password string
	Dev      bool
}

// InstallMetrics mounts the Prometheus handler behind basic auth. Without a
// password the route is only mounted, unauthenticated, in development; anywhere
// else it is left out and reported.
func InstallMetrics(app *fiber.App, cfg MetricsConfig) bool {
	handler := adaptor.HTTPHandler(promhttp.Handler())
	if cfg.Password == "" {
		if !cfg.Dev {
			fiberlog.Errorf("[Metrics] METRICS_PASSWORD is not set, %s is disabled", constants.MetricsRoute)
			return false
		}
		fiberlog.Warnf("[Metrics] METRICS_PASSWORD is not set, serving %s without auth in dev", constants.MetricsRoute)
		app.Get(constants.MetricsRoute, handler)
		return true
	}

	user := cfg.User
	if user == "" {
		user = "metrics"
	}
	app.Get(constants.MetricsRoute, basicauth.New(basicauth.Config{
		Users: map[string]string{user: cfg.Password},
	}), handler)
	return true
}
