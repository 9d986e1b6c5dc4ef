package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/eleven-am/camera-sentinel/internal/monitor"
	"github.com/eleven-am/camera-sentinel/internal/vision"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
)

var defaultCORSConfig = middleware.CORSConfig{
	AllowOrigins: []string{"*"},
	AllowMethods: []string{
		http.MethodGet,
		http.MethodHead,
		http.MethodPost,
		http.MethodOptions,
	},
	AllowHeaders: []string{
		"Accept",
		"Content-Type",
		"X-Requested-With",
	},
	MaxAge: 86400,
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				logger.Warn("request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			logger.Debug("request", attrs...)
			return nil
		},
	})
}

func NewEchoServer(logger *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(requestLogger(logger.With("component", "http")))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(defaultCORSConfig))
	return e
}

// StartServer listens on SERVER_ADDR. An empty address disables the HTTP
// surface.
func StartServer(lc fx.Lifecycle, e *echo.Echo, cfg *Config, shutdowner fx.Shutdowner, logger *slog.Logger) {
	if cfg.ServerAddr == "" {
		return
	}
	logger = logger.With("component", "http")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Info("http server listening", "addr", cfg.ServerAddr)
				if err := e.Start(cfg.ServerAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server failed", "error", err)
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return e.Shutdown(ctx)
		},
	})
}

func ProvideMonitorHandler(sup *monitor.Supervisor, frames *vision.Store) *monitor.Handler {
	return monitor.NewHandler(sup, frames)
}

func RegisterRoutes(lc fx.Lifecycle, e *echo.Echo, cfg *Config, h *monitor.Handler) {
	stop := make(chan struct{})
	lc.Append(fx.StopHook(func() { close(stop) }))

	api := e.Group("/api/v1")
	api.Use(RateLimiter(RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
	}, stop))
	h.RegisterRoutes(api)
}

var ServerModule = fx.Options(
	fx.Provide(
		NewEchoServer,
		ProvideMonitorHandler,
	),
	fx.Invoke(StartServer, RegisterRoutes),
)

// Run wires and runs the sentinel until it is signalled, the scheduled exit
// fires or a fatal error occurs. It returns the process exit status.
func Run(opts Options) int {
	cfg, err := LoadConfig()
	if err == nil {
		if opts.InstructionsFile != "" {
			cfg.InstructionsFile = opts.InstructionsFile
		}
		err = cfg.Validate(opts)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	app := fx.New(
		fx.Supply(cfg, opts),
		LoggingModule,
		InfrastructureModule,
		MonitorModule,
		ServerModule,
		HealthModule,
	)
	if err := app.Err(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		slog.Error("startup failed", "error", err)
		return 1
	}

	sig := <-app.Wait()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		slog.Error("shutdown failed", "error", err)
	}
	return sig.ExitCode
}
