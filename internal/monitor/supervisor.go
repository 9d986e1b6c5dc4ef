package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/camera-sentinel/internal/classifier"
	"github.com/eleven-am/camera-sentinel/internal/events"
	"github.com/eleven-am/camera-sentinel/internal/gate"
	"github.com/eleven-am/camera-sentinel/internal/notify"
	"github.com/eleven-am/camera-sentinel/internal/shared"
)

const TestAlarmDescription = "Manual test of the alarm function"

type Config struct {
	Source     CameraSource
	Classifier Classifier
	Notifier   Notifier
	Events     EventSink
	Frames     FrameSink
	Gate       *gate.Gate

	CameraFilter  string
	Instructions  string
	Interval      time.Duration
	Location      *time.Location
	TestMode      bool
	NotifyEnabled bool

	Logger *slog.Logger
	Now    func() time.Time
}

// Supervisor runs one Session per selected camera and routes their captures
// through the shared gate.
type Supervisor struct {
	cfg    Config
	gate   *gate.Gate
	logger *slog.Logger

	mu       sync.RWMutex
	sessions []*Session
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewSupervisor(cfg Config) *Supervisor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	g := cfg.Gate
	if g == nil {
		g = gate.New()
	}
	return &Supervisor{
		cfg:    cfg,
		gate:   g,
		logger: cfg.Logger.With("component", "supervisor"),
	}
}

// Start selects cameras and launches their sessions. Sessions outlive ctx
// and run until Stop.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("supervisor already started")
	}

	cameras, err := s.cfg.Source.ListCameras(ctx)
	if err != nil {
		return err
	}
	selected, err := SelectCameras(cameras, s.cfg.CameraFilter)
	if err != nil {
		return err
	}

	names := make([]string, len(selected))
	for i, cam := range selected {
		names[i] = cam.Name
	}
	s.logger.Info("monitoring cameras", "cameras", names, "test_mode", s.cfg.TestMode, "notify", s.cfg.NotifyEnabled)
	if s.cfg.TestMode {
		s.logger.Warn("test mode classifies every tick regardless of motion and may incur vision costs")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	for _, cam := range selected {
		session := NewSession(SessionConfig{
			Camera:       cam,
			Source:       s.cfg.Source,
			Classifier:   s.cfg.Classifier,
			Frames:       s.cfg.Frames,
			Instructions: s.cfg.Instructions,
			Interval:     s.cfg.Interval,
			Location:     s.cfg.Location,
			ForceActive:  s.cfg.TestMode,
			OnCapture:    s.handle,
			Logger:       s.cfg.Logger,
			Now:          s.cfg.Now,
		})
		s.sessions = append(s.sessions, session)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := session.Run(runCtx); err != nil {
				s.logger.Error("session stopped", "camera", cam.Name, "error", err)
			}
		}()
	}
	return nil
}

// Stop cancels every session and waits for in-flight captures.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("sessions stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SelectCameras returns all cameras, or only the one named filter.
func SelectCameras(cameras []shared.Camera, filter string) ([]shared.Camera, error) {
	if filter == "" {
		if len(cameras) == 0 {
			return nil, shared.NewConfigurationError("cameras", "no cameras found")
		}
		return cameras, nil
	}
	for _, cam := range cameras {
		if cam.Name == filter {
			return []shared.Camera{cam}, nil
		}
	}
	return nil, shared.NewConfigurationError("CAMERA_FILTER", fmt.Sprintf("no camera named %q", filter))
}

func (s *Supervisor) handle(ctx context.Context, c Capture) {
	logger := s.logger.With("camera", c.Camera.Name, "capture_id", c.ID)

	if _, nothing := c.Event.(classifier.Nothing); nothing {
		level := slog.LevelDebug
		if s.cfg.TestMode {
			level = slog.LevelInfo
		}
		logger.Log(ctx, level, "nothing to report", "details", c.Event.Details())
	} else {
		logger.Info("event classified",
			"type", classifier.TypeName(c.Event),
			"headline", c.Event.Headline(),
			"details", c.Event.Details())
	}

	n, admitted := s.gate.Admit(c.Event, s.cfg.Now())

	if s.cfg.Events != nil {
		rec := events.NewRecord(c.ID, c.Camera, c.Event, c.At)
		rec.Notified = admitted && s.cfg.NotifyEnabled
		if admitted {
			rec.Priority = n.Priority.String()
		}
		if err := s.cfg.Events.Publish(ctx, rec); err != nil {
			logger.Warn("failed to publish event", "error", err)
		}
	}

	if !admitted {
		return
	}
	n.Camera = c.Camera.Name
	n.Image = c.Image

	if !s.cfg.NotifyEnabled {
		logger.Info("notification not sent, notifications disabled",
			"title", n.Title,
			"priority", n.Priority.String())
		return
	}
	s.deliver(ctx, logger, n)
}

func (s *Supervisor) deliver(ctx context.Context, logger *slog.Logger, n notify.Notification) {
	if err := s.cfg.Notifier.Send(ctx, n); err != nil {
		logger.Error("notification failed", "title", n.Title, "error", err)
		return
	}
	logger.Info("notification sent", "title", n.Title, "priority", n.Priority.String())
}

// SendTestAlarm pushes a synthetic alarm through the gate and notifier
// whether or not notifications are enabled.
func (s *Supervisor) SendTestAlarm(ctx context.Context) error {
	ev := classifier.Alarm{Kind: "TEST", Description: TestAlarmDescription}
	n, ok := s.gate.Admit(ev, s.cfg.Now())
	if !ok {
		return fmt.Errorf("test alarm was not admitted")
	}
	n.Camera = "test"

	if err := s.cfg.Notifier.Send(ctx, n); err != nil {
		s.logger.Error("test alarm failed", "error", err)
		return err
	}
	s.logger.Info("test alarm sent", "priority", n.Priority.String())
	return nil
}

func (s *Supervisor) Status() []SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SessionStatus, len(s.sessions))
	for i, session := range s.sessions {
		out[i] = session.Status()
	}
	return out
}

func (s *Supervisor) Session(cameraID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.sessions {
		if session.Camera().ID == cameraID {
			return session, true
		}
	}
	return nil, false
}

// GateState is the shared gate state as of now.
func (s *Supervisor) GateState() gate.State {
	return s.gate.Snapshot(s.cfg.Now())
}
