package health

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

type ComponentStatus struct {
	Status    Status `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type RuntimeStats struct {
	Goroutines int    `json:"goroutines"`
	HeapMB     uint64 `json:"heap_mb"`
}

type CameraStats struct {
	Monitored int   `json:"monitored"`
	Active    int   `json:"active"`
	Captures  int64 `json:"captures"`
	Failures  int64 `json:"failures"`
}

type RequestStats struct {
	TotalRequests uint64 `json:"total_requests"`
}

type Stats struct {
	Cameras  CameraStats  `json:"cameras"`
	Requests RequestStats `json:"requests"`
	Runtime  RuntimeStats `json:"runtime"`
}

type HealthResponse struct {
	Status        Status                     `json:"status"`
	Timestamp     time.Time                  `json:"timestamp"`
	Version       string                     `json:"version"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Stats         Stats                      `json:"stats"`
	Components    map[string]ComponentStatus `json:"components"`
}

// Check probes one dependency. A failing critical check makes the whole
// service unhealthy; any other failure only degrades it.
type Check struct {
	Name     string
	Critical bool
	Probe    func(ctx context.Context) error
}

type Handler struct {
	checks      []Check
	cameraStats func() CameraStats
	version     string
	startTime   time.Time

	totalRequests uint64
}

func NewHandler(checks []Check, cameraStats func() CameraStats, version string) *Handler {
	if cameraStats == nil {
		cameraStats = func() CameraStats { return CameraStats{} }
	}
	return &Handler{
		checks:      checks,
		cameraStats: cameraStats,
		version:     version,
		startTime:   time.Now(),
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Liveness)
	e.GET("/health/ready", h.Readiness)
}

func (h *Handler) IncrementRequests() {
	atomic.AddUint64(&h.totalRequests, 1)
}

func (h *Handler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *Handler) Readiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	components := h.runChecks(ctx)
	overallStatus := h.computeOverallStatus(components)

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	resp := HealthResponse{
		Status:        overallStatus,
		Timestamp:     time.Now().UTC(),
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Stats: Stats{
			Cameras: h.cameraStats(),
			Requests: RequestStats{
				TotalRequests: atomic.LoadUint64(&h.totalRequests),
			},
			Runtime: RuntimeStats{
				Goroutines: runtime.NumGoroutine(),
				HeapMB:     memStats.HeapAlloc / 1024 / 1024,
			},
		},
		Components: components,
	}

	statusCode := http.StatusOK
	if overallStatus == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	return c.JSON(statusCode, resp)
}

func (h *Handler) runChecks(ctx context.Context) map[string]ComponentStatus {
	components := make(map[string]ComponentStatus, len(h.checks))
	var mu sync.Mutex
	var wg sync.WaitGroup

	wg.Add(len(h.checks))
	for _, check := range h.checks {
		go func(check Check) {
			defer wg.Done()
			status := probe(ctx, check)
			mu.Lock()
			components[check.Name] = status
			mu.Unlock()
		}(check)
	}
	wg.Wait()
	return components
}

func probe(ctx context.Context, check Check) ComponentStatus {
	start := time.Now()
	if check.Probe == nil {
		return ComponentStatus{
			Status:    StatusUnhealthy,
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     check.Name + " not configured",
		}
	}

	if err := check.Probe(ctx); err != nil {
		return ComponentStatus{
			Status:    StatusUnhealthy,
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     err.Error(),
		}
	}

	return ComponentStatus{
		Status:    StatusHealthy,
		LatencyMs: time.Since(start).Milliseconds(),
	}
}

// computeOverallStatus is unhealthy when a critical check fails and
// degraded when any other check does.
func (h *Handler) computeOverallStatus(components map[string]ComponentStatus) Status {
	overall := StatusHealthy
	for _, check := range h.checks {
		status, ok := components[check.Name]
		if !ok || status.Status == StatusHealthy {
			continue
		}
		if check.Critical {
			return StatusUnhealthy
		}
		overall = StatusDegraded
	}
	return overall
}
