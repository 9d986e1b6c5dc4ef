package monitor

import (
	"context"
	"time"

	"github.com/eleven-am/camera-sentinel/internal/events"
	"github.com/eleven-am/camera-sentinel/internal/notify"
	"github.com/eleven-am/camera-sentinel/internal/shared"
)

type CameraSource interface {
	ListCameras(ctx context.Context) ([]shared.Camera, error)
	SubscribeMotion(ctx context.Context, cameraID string) (<-chan shared.MotionPhase, error)
	CaptureSnapshot(ctx context.Context, cameraID string) ([]byte, error)
}

type Classifier interface {
	Classify(ctx context.Context, image []byte, instructions string, at time.Time) (string, error)
}

type Notifier interface {
	Send(ctx context.Context, n notify.Notification) error
}

type EventSink interface {
	Publish(ctx context.Context, rec events.Record) error
}

type FrameSink interface {
	Put(ctx context.Context, cameraID string, at time.Time, data []byte) error
}
