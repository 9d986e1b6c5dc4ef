package notify

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/eleven-am/camera-sentinel/internal/shared"
	"github.com/go-resty/resty/v2"
)

const (
	defaultPushoverURL = "https://api.pushover.net"
	maxTitleLen        = 250
	maxMessageLen      = 1024
)

type Pushover struct {
	http  *resty.Client
	token string
	user  string
}

type pushoverResponse struct {
	Status  int      `json:"status"`
	Request string   `json:"request"`
	Errors  []string `json:"errors,omitempty"`
}

func NewPushover(cfg Config) *Pushover {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultPushoverURL
	}

	r := resty.New()
	r.SetBaseURL(baseURL)
	r.SetTimeout(15 * time.Second)
	r.SetHeader("Accept", "application/json")

	return &Pushover{
		http:  r,
		token: cfg.APIToken,
		user:  cfg.UserKey,
	}
}

// Send posts one message. The image, when present, goes up as the
// multipart attachment.
func (p *Pushover) Send(ctx context.Context, n Notification) error {
	if p.token == "" || p.user == "" {
		return shared.Unavailable("pushover", fmt.Errorf("missing credentials"))
	}

	message := n.Body
	if message == "" {
		message = n.Title
	}

	req := p.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"token":    p.token,
			"user":     p.user,
			"title":    truncate(pushTitle(n), maxTitleLen),
			"message":  truncate(message, maxMessageLen),
			"priority": strconv.Itoa(int(n.Priority)),
		}).
		SetResult(&pushoverResponse{}).
		SetError(&pushoverResponse{})

	if len(n.Image) > 0 {
		req.SetFileReader("attachment", "snapshot.jpg", bytes.NewReader(n.Image))
	}

	resp, err := req.Post("/1/messages.json")
	if err != nil {
		return shared.Unavailable("pushover", err)
	}

	if resp.IsError() {
		if body, ok := resp.Error().(*pushoverResponse); ok && len(body.Errors) > 0 {
			return shared.Unavailable("pushover", fmt.Errorf("status %d: %s", resp.StatusCode(), strings.Join(body.Errors, "; ")))
		}
		return shared.Unavailable("pushover", fmt.Errorf("status %d", resp.StatusCode()))
	}

	if body, ok := resp.Result().(*pushoverResponse); ok && body.Status != 1 {
		return shared.Unavailable("pushover", fmt.Errorf("rejected: %s", strings.Join(body.Errors, "; ")))
	}

	return nil
}

// pushTitle names the camera after the headline so the push shows where
// the event happened. The synthetic "test" camera is left out.
func pushTitle(n Notification) string {
	if n.Camera == "" || strings.EqualFold(n.Camera, "test") {
		return n.Title
	}
	return n.Title + " (" + n.Camera + ")"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
