package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/eleven-am/camera-sentinel/internal/classifier"
	"github.com/eleven-am/camera-sentinel/internal/events"
	"github.com/eleven-am/camera-sentinel/internal/gate"
	"github.com/eleven-am/camera-sentinel/internal/monitor"
	"github.com/eleven-am/camera-sentinel/internal/protect"
	"github.com/eleven-am/camera-sentinel/internal/vision"
	"go.uber.org/fx"
)

// loadInstructions reads the operator instructions file. A missing file
// yields empty instructions.
func loadInstructions(path string, logger *slog.Logger) string {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("instructions file not found, classifying without instructions", "path", path)
		} else {
			logger.Warn("failed to read instructions file", "path", path, "error", err)
		}
		return ""
	}
	instructions := classifier.FormatInstructions(string(data))
	logger.Info("loaded instructions", "path", path, "bytes", len(instructions))
	return instructions
}

type SupervisorParams struct {
	fx.In

	Config   *Config
	Options  Options
	Location *time.Location
	Logger   *slog.Logger

	Protect  *protect.Client
	Vision   *vision.Client
	Notifier monitor.Notifier
	Gate     *gate.Gate
	Events   *events.Publisher
	Frames   *vision.Store
}

func ProvideSupervisor(p SupervisorParams) *monitor.Supervisor {
	cfg := monitor.Config{
		Source:        p.Protect,
		Classifier:    p.Vision,
		Notifier:      p.Notifier,
		Gate:          p.Gate,
		CameraFilter:  p.Config.CameraFilter,
		Instructions:  loadInstructions(p.Config.InstructionsFile, p.Logger.With("component", "config")),
		Interval:      p.Config.SampleInterval,
		Location:      p.Location,
		TestMode:      p.Options.Test,
		NotifyEnabled: p.Options.Notify,
		Logger:        p.Logger,
	}
	// Leave the interfaces nil rather than holding typed nil pointers.
	if p.Events != nil {
		cfg.Events = p.Events
	}
	if p.Frames != nil {
		cfg.Frames = p.Frames
	}
	return monitor.NewSupervisor(cfg)
}

func ProvideStatusReporter(notifier monitor.Notifier, loc *time.Location, logger *slog.Logger) *monitor.StatusReporter {
	return monitor.NewStatusReporter(notifier, loc, logger)
}

type RunParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Config     *Config
	Options    Options
	Logger     *slog.Logger

	Supervisor *monitor.Supervisor
	Protect    *protect.Client
	Reporter   *monitor.StatusReporter
}

// StartMonitoring runs the supervisor for the life of the app. The protect
// update stream giving up shuts the app down with status 1.
func StartMonitoring(p RunParams) {
	logger := p.Logger.With("component", "sentinel")

	if p.Options.TestAlarm {
		p.Lifecycle.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				go sendTestAlarm(p.Supervisor, p.Shutdowner, logger)
				return nil
			},
		})
		return
	}

	var cancel context.CancelFunc
	var exitTimer *time.Timer

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := p.Supervisor.Start(ctx); err != nil {
				return err
			}

			var runCtx context.Context
			runCtx, cancel = context.WithCancel(context.Background())

			go func() {
				err := p.Protect.Run(runCtx)
				if err == nil || runCtx.Err() != nil {
					return
				}
				logger.Error("camera update stream failed, exiting", "error", err)
				_ = p.Shutdowner.Shutdown(fx.ExitCode(1))
			}()

			if p.Options.Notify && p.Config.StatusNotify {
				go p.Reporter.Run(runCtx)
			}

			if p.Options.ExitAfter > 0 {
				logger.Info("scheduled exit", "after", p.Options.ExitAfter)
				exitTimer = time.AfterFunc(p.Options.ExitAfter, func() {
					logger.Info("scheduled exit reached")
					_ = p.Shutdowner.Shutdown(fx.ExitCode(0))
				})
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if exitTimer != nil {
				exitTimer.Stop()
			}
			if cancel != nil {
				cancel()
			}
			return p.Supervisor.Stop(ctx)
		},
	})
}

func sendTestAlarm(sup *monitor.Supervisor, shutdowner fx.Shutdowner, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	code := 0
	if err := sup.SendTestAlarm(ctx); err != nil {
		logger.Error("test alarm failed", "error", err)
		code = 1
	} else {
		logger.Info("test alarm sent")
	}
	_ = shutdowner.Shutdown(fx.ExitCode(code))
}

var MonitorModule = fx.Options(
	fx.Provide(
		ProvideSupervisor,
		ProvideStatusReporter,
	),
	fx.Invoke(StartMonitoring),
)
