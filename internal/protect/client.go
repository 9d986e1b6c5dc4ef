// Package protect talks to a UniFi Protect NVR: REST for login, camera
// listing and snapshots, and the binary websocket stream for motion.
package protect

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eleven-am/camera-sentinel/internal/shared"
	"github.com/go-resty/resty/v2"
)

const (
	loginPath     = "/api/auth/login"
	bootstrapPath = "/proxy/protect/api/bootstrap"
	snapshotPath  = "/proxy/protect/api/cameras/{id}/snapshot"
	updatesPath   = "/proxy/protect/ws/updates"

	csrfHeader        = "X-CSRF-Token"
	updatedCSRFHeader = "X-Updated-CSRF-Token"
)

type Config struct {
	Host      string
	Port      int
	Username  string
	Password  string
	VerifyTLS bool

	// BaseURL overrides the https://host:port address derived from Host and Port.
	BaseURL string

	StaleTimeout   time.Duration
	InitialTimeout time.Duration
	Backoff        shared.BackoffConfig
}

type Client struct {
	http    *resty.Client
	cfg     Config
	baseURL string
	logger  *slog.Logger

	mu           sync.Mutex
	csrf         string
	lastUpdateID string
	cameras      map[string]*cameraState
	subs         map[string][]chan shared.MotionPhase
	bootstrapped bool

	connected atomic.Bool
}

type cameraState struct {
	camera shared.Camera
	motion bool
	smart  bool
}

func (s *cameraState) phase() shared.MotionPhase {
	if s.motion || s.smart {
		return shared.MotionActive
	}
	return shared.MotionIdle
}

type loginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type bootstrapResponse struct {
	LastUpdateID string            `json:"lastUpdateId"`
	Cameras      []bootstrapCamera `json:"cameras"`
}

type bootstrapCamera struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	IsMotionDetected bool   `json:"isMotionDetected"`
	IsSmartDetected  bool   `json:"isSmartDetected"`
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StaleTimeout <= 0 {
		cfg.StaleTimeout = 300 * time.Second
	}
	if cfg.InitialTimeout <= 0 {
		cfg.InitialTimeout = 60 * time.Second
	}
	cfg.Backoff = shared.NormalizeBackoff(cfg.Backoff)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		port := cfg.Port
		if port == 0 {
			port = 443
		}
		baseURL = fmt.Sprintf("https://%s:%d", cfg.Host, port)
	}

	r := resty.New()
	r.SetBaseURL(baseURL)
	r.SetTimeout(30 * time.Second)
	r.SetHeader("Accept", "application/json")
	// NVRs ship with self-signed certificates.
	r.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: !cfg.VerifyTLS})

	return &Client{
		http:    r,
		cfg:     cfg,
		baseURL: baseURL,
		logger:  logger.With("component", "protect"),
		cameras: make(map[string]*cameraState),
		subs:    make(map[string][]chan shared.MotionPhase),
	}
}

// Login authenticates and keeps the session cookie in the client jar.
func (c *Client) Login(ctx context.Context) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(loginRequest{Username: c.cfg.Username, Password: c.cfg.Password, RememberMe: true}).
		Post(loginPath)
	if err != nil {
		return shared.Unavailable("protect login", err)
	}
	if resp.IsError() {
		return shared.Unavailable("protect login", fmt.Errorf("status %d", resp.StatusCode()))
	}

	c.mu.Lock()
	if token := resp.Header().Get(csrfHeader); token != "" {
		c.csrf = token
	}
	c.mu.Unlock()

	c.logger.Debug("logged in", "base_url", c.baseURL)
	return nil
}

// Bootstrap refreshes the camera list and the update cursor, then pushes
// any motion changes it reveals to subscribers.
func (c *Client) Bootstrap(ctx context.Context) error {
	var body bootstrapResponse
	resp, err := c.do(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.SetResult(&body).Get(bootstrapPath)
	})
	if err != nil {
		return shared.Unavailable("protect bootstrap", err)
	}
	if resp.IsError() {
		return shared.Unavailable("protect bootstrap", fmt.Errorf("status %d", resp.StatusCode()))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastUpdateID = body.LastUpdateID
	seen := make(map[string]bool, len(body.Cameras))
	for _, cam := range body.Cameras {
		seen[cam.ID] = true
		state, ok := c.cameras[cam.ID]
		if !ok {
			state = &cameraState{}
			c.cameras[cam.ID] = state
		}
		before := state.phase()
		state.camera = shared.Camera{ID: cam.ID, Name: cam.Name}
		state.motion = cam.IsMotionDetected
		state.smart = cam.IsSmartDetected
		if ok && state.phase() != before {
			c.publishLocked(cam.ID, state.phase())
		}
	}
	for id := range c.cameras {
		if !seen[id] {
			delete(c.cameras, id)
		}
	}
	c.bootstrapped = true
	return nil
}

func (c *Client) ensureBootstrapped(ctx context.Context) error {
	c.mu.Lock()
	done := c.bootstrapped
	c.mu.Unlock()
	if done {
		return nil
	}
	if err := c.Login(ctx); err != nil {
		return err
	}
	return c.Bootstrap(ctx)
}

func (c *Client) ListCameras(ctx context.Context) ([]shared.Camera, error) {
	if err := c.ensureBootstrapped(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cameras := make([]shared.Camera, 0, len(c.cameras))
	for _, state := range c.cameras {
		cameras = append(cameras, state.camera)
	}
	sort.Slice(cameras, func(i, j int) bool { return cameras[i].Name < cameras[j].Name })
	return cameras, nil
}

// CaptureSnapshot forces a fresh high quality JPEG from the camera.
func (c *Client) CaptureSnapshot(ctx context.Context, cameraID string) ([]byte, error) {
	resp, err := c.do(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.
			SetHeader("Accept", "image/jpeg").
			SetPathParam("id", cameraID).
			SetQueryParams(map[string]string{
				"ts":          strconv.FormatInt(time.Now().UnixMilli(), 10),
				"force":       "true",
				"highQuality": "true",
			}).
			Get(snapshotPath)
	})
	if err != nil {
		return nil, shared.Unavailable("protect snapshot", err)
	}
	if resp.IsError() {
		return nil, shared.Unavailable("protect snapshot", fmt.Errorf("camera %s: status %d", cameraID, resp.StatusCode()))
	}
	if len(resp.Body()) == 0 {
		return nil, shared.Unavailable("protect snapshot", fmt.Errorf("camera %s: empty image", cameraID))
	}
	return resp.Body(), nil
}

// do runs one request and retries it once after a fresh login on 401.
func (c *Client) do(ctx context.Context, send func(*resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	resp, err := send(c.request(ctx))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusUnauthorized {
		c.captureCSRF(resp)
		return resp, nil
	}

	c.logger.Info("session expired, logging in again")
	if err := c.Login(ctx); err != nil {
		return nil, err
	}
	resp, err = send(c.request(ctx))
	if err != nil {
		return nil, err
	}
	c.captureCSRF(resp)
	return resp, nil
}

func (c *Client) request(ctx context.Context) *resty.Request {
	req := c.http.R().SetContext(ctx)
	c.mu.Lock()
	if c.csrf != "" {
		req.SetHeader(csrfHeader, c.csrf)
	}
	c.mu.Unlock()
	return req
}

func (c *Client) captureCSRF(resp *resty.Response) {
	token := resp.Header().Get(updatedCSRFHeader)
	if token == "" {
		return
	}
	c.mu.Lock()
	c.csrf = token
	c.mu.Unlock()
}

// Ping reports whether the update stream is currently connected.
func (c *Client) Ping(context.Context) error {
	if !c.connected.Load() {
		return fmt.Errorf("update stream disconnected")
	}
	return nil
}
