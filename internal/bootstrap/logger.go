package bootstrap

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"gopkg.in/natefinch/lumberjack.v2"
)

const logFileName = "sentinel.log"

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// parseLocation resolves TIMEZONE. Empty means the host zone.
func parseLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

// newLogger writes text records to the rotated log file and, unless quiet,
// to stderr. Record times are rendered in loc.
func newLogger(cfg *Config, quiet bool, loc *time.Location) (*slog.Logger, io.Closer) {
	file := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, logFileName),
		MaxSize:    10,
		MaxBackups: 5,
		MaxAge:     30,
	}

	var out io.Writer = file
	if !quiet {
		out = io.MultiWriter(os.Stderr, file)
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				a.Value = slog.TimeValue(a.Value.Time().In(loc))
			}
			return a
		},
	})
	return slog.New(handler), file
}

func ProvideLogger(lc fx.Lifecycle, cfg *Config, opts Options) *slog.Logger {
	loc, err := parseLocation(cfg.Timezone)
	if err != nil {
		loc = time.Local
	}
	logger, closer := newLogger(cfg, opts.Quiet, loc)
	lc.Append(fx.StopHook(closer.Close))
	slog.SetDefault(logger)
	return logger
}

// ProvideLocation returns the zone used for prompts and the status schedule.
func ProvideLocation(cfg *Config, logger *slog.Logger) *time.Location {
	logger = logger.With("component", "config")

	switch {
	case cfg.Timezone == "":
		logger.Warn("TIMEZONE is not set, using the host time zone", "zone", time.Local.String())
	case strings.EqualFold(cfg.Timezone, "UTC"):
		logger.Warn("TIMEZONE is UTC, the vision prompt will carry UTC times")
	}

	loc, err := parseLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid TIMEZONE, using the host time zone", "timezone", cfg.Timezone, "error", err)
		return time.Local
	}
	return loc
}

func fxLogger(logger *slog.Logger) fxevent.Logger {
	l := &fxevent.SlogLogger{Logger: logger.With("component", "fx")}
	l.UseLogLevel(slog.LevelDebug)
	return l
}

var LoggingModule = fx.Options(
	fx.Provide(
		ProvideLogger,
		ProvideLocation,
	),
	fx.WithLogger(fxLogger),
)
