package notify

import (
	"context"
	"log/slog"
)

// LogSender records notifications instead of delivering them.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger.With("component", "notify")}
}

func (l *LogSender) Send(_ context.Context, n Notification) error {
	l.logger.Info("notification suppressed",
		"camera", n.Camera,
		"title", n.Title,
		"body", n.Body,
		"priority", n.Priority.String(),
		"image_bytes", len(n.Image))
	return nil
}
