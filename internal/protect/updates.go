package protect

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/eleven-am/camera-sentinel/internal/shared"
	"github.com/gorilla/websocket"
)

// SubscribeMotion streams motion phase changes for one camera. The current
// phase is delivered first. Slow readers only see the latest phase. The
// channel closes when ctx ends.
func (c *Client) SubscribeMotion(ctx context.Context, cameraID string) (<-chan shared.MotionPhase, error) {
	if err := c.ensureBootstrapped(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	state, ok := c.cameras[cameraID]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("camera %s: %w", cameraID, shared.ErrNotFound)
	}
	ch := make(chan shared.MotionPhase, 1)
	ch <- state.phase()
	c.subs[cameraID] = append(c.subs[cameraID], ch)
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		defer c.mu.Unlock()
		subs := c.subs[cameraID]
		for i, s := range subs {
			if s == ch {
				c.subs[cameraID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch, nil
}

// publishLocked must be called with c.mu held.
func (c *Client) publishLocked(cameraID string, phase shared.MotionPhase) {
	for _, ch := range c.subs[cameraID] {
		select {
		case ch <- phase:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- phase
		}
	}
}

func (c *Client) applyUpdate(pkt *Packet) {
	if pkt.Action.Action != "update" || pkt.Action.ModelKey != "camera" || pkt.Format != formatJSON {
		return
	}

	var update cameraUpdate
	if err := json.Unmarshal(pkt.Payload, &update); err != nil {
		c.logger.Debug("ignoring undecodable camera update", "camera_id", pkt.Action.ID, "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if pkt.Action.NewUpdateID != "" {
		c.lastUpdateID = pkt.Action.NewUpdateID
	}

	state, ok := c.cameras[pkt.Action.ID]
	if !ok {
		return
	}
	before := state.phase()
	if update.Name != nil {
		state.camera.Name = *update.Name
	}
	if update.IsMotionDetected != nil {
		state.motion = *update.IsMotionDetected
	}
	if update.IsSmartDetected != nil {
		state.smart = *update.IsSmartDetected
	}
	if after := state.phase(); after != before {
		c.logger.Debug("motion changed", "camera", state.camera.Name, "phase", after)
		c.publishLocked(pkt.Action.ID, after)
	}
}

var errStale = errors.New("update stream stale")

// Run keeps the update stream connected until ctx ends. Only failed
// login, bootstrap or dial attempts count toward the backoff limit; a
// subscription that later goes stale is simply re-established.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.cfg.Backoff
	delay := backoff.Initial
	failures := 0
	first := true

	for {
		subscribed, err := c.reconnect(ctx, first)
		first = false
		if ctx.Err() != nil {
			return nil
		}

		if subscribed {
			failures = 0
			delay = backoff.Initial
			c.logger.Warn("update stream ended, reconnecting", "error", err)
		} else {
			failures++
			c.logger.Error("update stream connect failed",
				"attempt", failures,
				"max_attempts", backoff.MaxAttempts,
				"error", err)
			if failures >= backoff.MaxAttempts {
				return shared.Unavailable("protect updates", fmt.Errorf("%d consecutive reconnect failures: %w", failures, err))
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		if !subscribed {
			delay = backoff.Next(delay)
		}
	}
}

func (c *Client) reconnect(ctx context.Context, first bool) (bool, error) {
	if first {
		if err := c.ensureBootstrapped(ctx); err != nil {
			return false, err
		}
	} else {
		if err := c.Login(ctx); err != nil {
			return false, err
		}
		if err := c.Bootstrap(ctx); err != nil {
			return false, err
		}
	}
	return c.stream(ctx)
}

// stream dials the websocket and reads until an error or a stale
// deadline. subscribed reports whether the dial succeeded.
func (c *Client) stream(ctx context.Context) (subscribed bool, err error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	c.connected.Store(true)
	defer c.connected.Store(false)
	c.logger.Info("update stream subscribed")

	deadline := c.cfg.InitialTimeout
	for {
		conn.SetReadDeadline(time.Now().Add(deadline))
		_, data, err := conn.ReadMessage()
		if err != nil {
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				return true, fmt.Errorf("%w: no message for %s", errStale, deadline)
			}
			return true, err
		}
		deadline = c.cfg.StaleTimeout

		pkt, err := DecodePacket(data)
		if err != nil {
			c.logger.Debug("skipping packet", "error", err)
			continue
		}
		c.applyUpdate(pkt)
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.baseURL + updatesPath)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}

	c.mu.Lock()
	q := u.Query()
	if c.lastUpdateID != "" {
		q.Set("lastUpdateId", c.lastUpdateID)
	}
	u.RawQuery = q.Encode()
	header := http.Header{}
	if c.csrf != "" {
		header.Set(csrfHeader, c.csrf)
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{
		Jar:              c.http.GetClient().Jar,
		HandshakeTimeout: 10 * time.Second,
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: !c.cfg.VerifyTLS},
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", strings.SplitN(u.String(), "?", 2)[0], resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial: %w", err)
	}
	return conn, nil
}
