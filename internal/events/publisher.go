// Package events publishes every classified camera event to NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/eleven-am/camera-sentinel/internal/classifier"
	"github.com/eleven-am/camera-sentinel/internal/shared"
	"github.com/nats-io/nats.go"
)

const DefaultSubjectPrefix = "sentinel.events"

type Config struct {
	URL           string
	SubjectPrefix string
}

// Record is the JSON body of a published event.
type Record struct {
	CaptureID   string    `json:"capture_id,omitempty"`
	CameraID    string    `json:"camera_id"`
	Camera      string    `json:"camera"`
	Type        string    `json:"type"`
	Headline    string    `json:"headline"`
	Description string    `json:"description,omitempty"`
	Notified    bool      `json:"notified"`
	Priority    string    `json:"priority,omitempty"`
	At          time.Time `json:"at"`
}

func NewRecord(captureID string, cam shared.Camera, ev classifier.Event, at time.Time) Record {
	return Record{
		CaptureID:   captureID,
		CameraID:    cam.ID,
		Camera:      cam.Name,
		Type:        classifier.TypeName(ev),
		Headline:    ev.Headline(),
		Description: ev.Details(),
		At:          at,
	}
}

type Publisher struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

func Connect(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "events")

	conn, err := nats.Connect(cfg.URL,
		nats.Name("camera-sentinel"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, shared.Unavailable("nats connect", err)
	}

	return NewPublisher(conn, cfg.SubjectPrefix, logger), nil
}

func NewPublisher(conn *nats.Conn, prefix string, logger *slog.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, prefix: strings.TrimRight(prefix, "."), logger: logger}
}

func (p *Publisher) Subject(camera string) string {
	return p.prefix + "." + SubjectToken(camera)
}

func (p *Publisher) Publish(_ context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(rec.Camera), data); err != nil {
		return shared.Unavailable("nats publish", err)
	}
	return nil
}

func (p *Publisher) Ping(context.Context) error {
	if !p.conn.IsConnected() {
		return fmt.Errorf("nats status %s", p.conn.Status())
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.conn.Drain()
}

// SubjectToken lowercases name and replaces anything outside [a-z0-9_-]
// so it is a single NATS subject token.
func SubjectToken(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
