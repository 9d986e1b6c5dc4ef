package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/eleven-am/camera-sentinel/internal/notify"
)

func TestNextRun(t *testing.T) {
	day := func(d, h, m int) time.Time { return time.Date(2026, 1, d, h, m, 0, 0, time.UTC) }

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"early morning", day(10, 6, 30), day(10, 8, 0)},
		{"exactly eight", day(10, 8, 0), day(10, 20, 0)},
		{"midday", day(10, 12, 0), day(10, 20, 0)},
		{"exactly twenty", day(10, 20, 0), day(11, 8, 0)},
		{"late night", day(10, 23, 59), day(11, 8, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextRun(tt.now, DefaultStatusHours); !got.Equal(tt.want) {
				t.Errorf("NextRun(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestNextRun_MonthRollover(t *testing.T) {
	now := time.Date(2026, 1, 31, 21, 0, 0, 0, time.UTC)
	want := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	if got := NextRun(now, DefaultStatusHours); !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestStatusReporter_SendsSystemOnline(t *testing.T) {
	notifier := &fakeNotifier{}
	r := NewStatusReporter(notifier, time.UTC, discardLogger())
	r.now = func() time.Time { return time.Date(2026, 1, 10, 7, 59, 59, 980_000_000, time.UTC) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	eventually(t, 2*time.Second, func() bool { return len(notifier.all()) >= 1 }, "expected status notification")
	cancel()
	<-done

	n := notifier.all()[0]
	if n.Title != "System online" || n.Priority != notify.PriorityLow {
		t.Errorf("unexpected status notification %+v", n)
	}
}

func TestStatusReporter_StopsOnCancel(t *testing.T) {
	notifier := &fakeNotifier{}
	r := NewStatusReporter(notifier, time.UTC, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if len(notifier.all()) != 0 {
		t.Error("no notification expected after cancel")
	}
}
