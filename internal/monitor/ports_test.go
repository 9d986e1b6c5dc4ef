package monitor

import (
	"github.com/eleven-am/camera-sentinel/internal/events"
	"github.com/eleven-am/camera-sentinel/internal/notify"
	"github.com/eleven-am/camera-sentinel/internal/protect"
	"github.com/eleven-am/camera-sentinel/internal/vision"
)

var (
	_ CameraSource = (*protect.Client)(nil)
	_ Classifier   = (*vision.Client)(nil)
	_ Notifier     = (*notify.Pushover)(nil)
	_ Notifier     = (*notify.LogSender)(nil)
	_ EventSink    = (*events.Publisher)(nil)
	_ FrameSink    = (*vision.Store)(nil)
)
