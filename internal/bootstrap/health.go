package bootstrap

import (
	"github.com/eleven-am/camera-sentinel/internal/events"
	"github.com/eleven-am/camera-sentinel/internal/health"
	"github.com/eleven-am/camera-sentinel/internal/monitor"
	"github.com/eleven-am/camera-sentinel/internal/protect"
	"github.com/eleven-am/camera-sentinel/internal/shared"
	"github.com/eleven-am/camera-sentinel/internal/vision"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

const version = "1.0.0"

type HealthParams struct {
	fx.In

	Protect    *protect.Client
	Vision     *vision.Client
	Frames     *vision.Store
	Events     *events.Publisher
	Supervisor *monitor.Supervisor
}

func ProvideHealthHandler(p HealthParams) *health.Handler {
	checks := []health.Check{
		{Name: "camera", Critical: true, Probe: p.Protect.Ping},
		{Name: "vision", Probe: p.Vision.Ping},
	}
	if p.Frames != nil {
		checks = append(checks, health.Check{Name: "redis", Probe: p.Frames.Ping})
	}
	if p.Events != nil {
		checks = append(checks, health.Check{Name: "nats", Probe: p.Events.Ping})
	}

	return health.NewHandler(checks, func() health.CameraStats {
		return cameraStats(p.Supervisor.Status())
	}, version)
}

func cameraStats(statuses []monitor.SessionStatus) health.CameraStats {
	stats := health.CameraStats{Monitored: len(statuses)}
	for _, st := range statuses {
		if st.Phase == shared.MotionActive {
			stats.Active++
		}
		stats.Captures += st.Captures
		stats.Failures += st.Failures
	}
	return stats
}

func metricsMiddleware(h *health.Handler) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h.IncrementRequests()
			return next(c)
		}
	}
}

func RegisterHealthRoutes(e *echo.Echo, h *health.Handler) {
	e.Use(metricsMiddleware(h))
	h.RegisterRoutes(e)
}

var HealthModule = fx.Options(
	fx.Provide(ProvideHealthHandler),
	fx.Invoke(RegisterHealthRoutes),
)
