package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/camera-sentinel/internal/classifier"
	"github.com/eleven-am/camera-sentinel/internal/shared"
	"github.com/google/uuid"
)

const (
	DefaultSampleInterval = 10 * time.Second
	frameStoreTimeout     = 500 * time.Millisecond
)

// Capture is one classified snapshot.
type Capture struct {
	ID     string
	Camera shared.Camera
	Image  []byte
	Event  classifier.Event
	At     time.Time
}

type SessionConfig struct {
	Camera       shared.Camera
	Source       CameraSource
	Classifier   Classifier
	Frames       FrameSink
	Instructions string
	Interval     time.Duration
	Location     *time.Location
	// ForceActive starts the session ACTIVE and ignores IDLE reports.
	ForceActive bool
	OnCapture   func(ctx context.Context, c Capture)
	Logger      *slog.Logger
	Now         func() time.Time
}

type SessionStatus struct {
	CameraID     string             `json:"camera_id"`
	Camera       string             `json:"camera"`
	Phase        shared.MotionPhase `json:"phase"`
	LastSampleAt time.Time          `json:"last_sample_at,omitzero"`
	Captures     int64              `json:"captures"`
	Failures     int64              `json:"failures"`
	InFlight     bool               `json:"in_flight"`
	LastEvent    string             `json:"last_event,omitempty"`
}

// Session samples one camera while it reports motion. Captures never
// overlap. A capture that comes due while another is running starts as soon
// as the running one finishes.
type Session struct {
	cfg    SessionConfig
	logger *slog.Logger

	mu     sync.Mutex
	status SessionStatus
}

func NewSession(cfg SessionConfig) *Session {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSampleInterval
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.OnCapture == nil {
		cfg.OnCapture = func(context.Context, Capture) {}
	}

	return &Session{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "session", "camera", cfg.Camera.Name),
		status: SessionStatus{
			CameraID: cfg.Camera.ID,
			Camera:   cfg.Camera.Name,
			Phase:    shared.MotionIdle,
		},
	}
}

// Run blocks until ctx ends, then waits for the in-flight capture.
func (s *Session) Run(ctx context.Context) error {
	motion, err := s.cfg.Source.SubscribeMotion(ctx, s.cfg.Camera.ID)
	if err != nil {
		return err
	}

	timer := time.NewTimer(s.cfg.Interval)
	timer.Stop()
	defer timer.Stop()

	done := make(chan struct{}, 1)
	var wg sync.WaitGroup
	defer wg.Wait()

	active, inFlight, due := false, false, false

	start := func() {
		inFlight = true
		due = false
		timer.Reset(s.cfg.Interval)

		at := s.cfg.Now()
		s.mu.Lock()
		s.status.LastSampleAt = at
		s.status.InFlight = true
		s.mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.capture(ctx)
			done <- struct{}{}
		}()
	}

	if s.cfg.ForceActive {
		active = true
		s.setPhase(shared.MotionActive)
		start()
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case phase, ok := <-motion:
			if !ok {
				motion = nil
				continue
			}
			switch phase {
			case shared.MotionActive:
				if active {
					continue
				}
				active = true
				s.setPhase(shared.MotionActive)
				s.logger.Info("motion started")
				if !inFlight {
					start()
				} else {
					due = true
				}
			case shared.MotionIdle:
				if !active || s.cfg.ForceActive {
					continue
				}
				active = false
				due = false
				timer.Stop()
				s.setPhase(shared.MotionIdle)
				s.logger.Info("motion ended")
			}

		case <-timer.C:
			if !active {
				continue
			}
			if inFlight {
				due = true
				continue
			}
			start()

		case <-done:
			inFlight = false
			s.mu.Lock()
			s.status.InFlight = false
			s.mu.Unlock()
			if active && due {
				start()
			}
		}
	}
}

func (s *Session) capture(ctx context.Context) {
	id := uuid.NewString()
	logger := s.logger.With("capture_id", id)
	started := time.Now()

	image, err := s.cfg.Source.CaptureSnapshot(ctx, s.cfg.Camera.ID)
	if err != nil {
		s.fail(ctx, logger, "snapshot failed", err)
		return
	}
	at := s.cfg.Now()

	if s.cfg.Frames != nil {
		storeCtx, cancel := context.WithTimeout(ctx, frameStoreTimeout)
		if err := s.cfg.Frames.Put(storeCtx, s.cfg.Camera.ID, at, image); err != nil {
			logger.Debug("failed to cache frame", "error", err)
		}
		cancel()
	}

	raw, err := s.cfg.Classifier.Classify(ctx, image, s.cfg.Instructions, at.In(s.cfg.Location))
	if err != nil {
		s.fail(ctx, logger, "classification failed", err)
		return
	}

	ev, err := classifier.ParseResponse(raw)
	if err != nil {
		var malformed *classifier.MalformedResponseError
		if errors.As(err, &malformed) {
			logger.Warn("malformed vision response", "raw", malformed.Raw)
		}
		s.fail(ctx, logger, "unusable vision response", err)
		return
	}

	s.mu.Lock()
	s.status.Captures++
	s.status.LastEvent = ev.Headline()
	s.mu.Unlock()

	logger.Debug("capture complete", "latency_ms", time.Since(started).Milliseconds())

	s.cfg.OnCapture(ctx, Capture{
		ID:     id,
		Camera: s.cfg.Camera,
		Image:  image,
		Event:  ev,
		At:     at,
	})
}

func (s *Session) fail(ctx context.Context, logger *slog.Logger, msg string, err error) {
	s.mu.Lock()
	s.status.Failures++
	s.mu.Unlock()
	if ctx.Err() != nil {
		logger.Debug(msg, "error", err)
		return
	}
	logger.Warn(msg, "error", err)
}

func (s *Session) setPhase(p shared.MotionPhase) {
	s.mu.Lock()
	s.status.Phase = p
	if p == shared.MotionIdle {
		s.status.LastSampleAt = time.Time{}
	}
	s.mu.Unlock()
}

func (s *Session) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) Camera() shared.Camera {
	return s.cfg.Camera
}
