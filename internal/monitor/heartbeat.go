package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/eleven-am/camera-sentinel/internal/notify"
)

var DefaultStatusHours = []int{8, 20}

// StatusReporter sends a low priority "System online" notification at
// fixed local hours.
type StatusReporter struct {
	notifier Notifier
	location *time.Location
	hours    []int
	logger   *slog.Logger
	now      func() time.Time
}

func NewStatusReporter(notifier Notifier, location *time.Location, logger *slog.Logger) *StatusReporter {
	if location == nil {
		location = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusReporter{
		notifier: notifier,
		location: location,
		hours:    DefaultStatusHours,
		logger:   logger.With("component", "status"),
		now:      time.Now,
	}
}

// NextRun returns the first time strictly after now at one of hours.
func NextRun(now time.Time, hours []int) time.Time {
	var next time.Time
	for day := 0; day < 2 && next.IsZero(); day++ {
		for _, h := range hours {
			candidate := time.Date(now.Year(), now.Month(), now.Day()+day, h, 0, 0, 0, now.Location())
			if candidate.After(now) && (next.IsZero() || candidate.Before(next)) {
				next = candidate
			}
		}
	}
	return next
}

func (r *StatusReporter) Run(ctx context.Context) {
	for {
		now := r.now().In(r.location)
		next := NextRun(now, r.hours)
		if next.IsZero() {
			return
		}
		r.logger.Info("next status check scheduled", "at", next.Format(time.DateTime))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		err := r.notifier.Send(ctx, notify.Notification{
			Camera:   "system",
			Title:    "System online",
			Body:     "System online",
			Priority: notify.PriorityLow,
		})
		if err != nil {
			r.logger.Error("failed to send status notification", "error", err)
			continue
		}
		r.logger.Info("sent status notification")
	}
}
