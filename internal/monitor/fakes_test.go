package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eleven-am/camera-sentinel/internal/events"
	"github.com/eleven-am/camera-sentinel/internal/notify"
	"github.com/eleven-am/camera-sentinel/internal/shared"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSource struct {
	cameras []shared.Camera

	mu       sync.Mutex
	motion   map[string]chan shared.MotionPhase
	failNext int

	snapshots atomic.Int32
}

func newFakeSource(cameras ...shared.Camera) *fakeSource {
	f := &fakeSource{cameras: cameras, motion: make(map[string]chan shared.MotionPhase)}
	for _, cam := range cameras {
		f.motion[cam.ID] = make(chan shared.MotionPhase, 8)
	}
	return f
}

func (f *fakeSource) ListCameras(context.Context) ([]shared.Camera, error) {
	return f.cameras, nil
}

func (f *fakeSource) SubscribeMotion(_ context.Context, id string) (<-chan shared.MotionPhase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.motion[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return ch, nil
}

func (f *fakeSource) CaptureSnapshot(_ context.Context, id string) ([]byte, error) {
	f.snapshots.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return nil, shared.Unavailable("snapshot", errors.New("camera offline"))
	}
	return []byte("jpeg-" + id), nil
}

func (f *fakeSource) send(id string, phase shared.MotionPhase) {
	f.motion[id] <- phase
}

type fakeClassifier struct {
	response string
	err      error
	block    chan struct{}

	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32

	mu     sync.Mutex
	lastAt time.Time
}

func (f *fakeClassifier) Classify(ctx context.Context, image []byte, instructions string, at time.Time) (string, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	f.mu.Lock()
	f.lastAt = at
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.response, f.err
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, n notify.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return f.err
}

func (f *fakeNotifier) all() []notify.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notify.Notification(nil), f.sent...)
}

type fakeSink struct {
	mu      sync.Mutex
	records []events.Record
}

func (f *fakeSink) Publish(_ context.Context, rec events.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeSink) all() []events.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]events.Record(nil), f.records...)
}

type fakeFrames struct {
	mu     sync.Mutex
	frames map[string][]byte
}

func (f *fakeFrames) Put(_ context.Context, id string, _ time.Time, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frames == nil {
		f.frames = make(map[string][]byte)
	}
	f.frames[id] = data
	return nil
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
