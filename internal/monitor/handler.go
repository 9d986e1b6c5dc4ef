package monitor

import (
	"net/http"
	"strconv"
	"time"

	"github.com/eleven-am/camera-sentinel/internal/gate"
	"github.com/eleven-am/camera-sentinel/internal/shared"
	"github.com/eleven-am/camera-sentinel/internal/vision"
	"github.com/labstack/echo/v4"
)

type CamerasResponse struct {
	Total   int             `json:"total"`
	Cameras []SessionStatus `json:"cameras"`
	Gate    gate.State      `json:"gate"`
}

type Handler struct {
	supervisor *Supervisor
	frames     *vision.Store
}

// NewHandler serves the operator API. frames may be nil when no frame
// cache is configured.
func NewHandler(supervisor *Supervisor, frames *vision.Store) *Handler {
	return &Handler{supervisor: supervisor, frames: frames}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/cameras", h.ListCameras)
	g.GET("/cameras/:id/frame", h.LatestFrame)
	g.POST("/test-alarm", h.TestAlarm)
}

func (h *Handler) ListCameras(c echo.Context) error {
	statuses := h.supervisor.Status()
	return c.JSON(http.StatusOK, CamerasResponse{
		Total:   len(statuses),
		Cameras: statuses,
		Gate:    h.supervisor.GateState(),
	})
}

func (h *Handler) LatestFrame(c echo.Context) error {
	id := c.Param("id")
	if _, ok := h.supervisor.Session(id); !ok {
		return shared.NotFound("camera_not_found", "camera is not monitored")
	}
	if h.frames == nil {
		return shared.NotFound("frames_disabled", "frame cache is not configured")
	}

	frame, err := h.frames.GetLatestFrame(c.Request().Context(), id)
	if err != nil {
		return shared.InternalError("frame_lookup_failed", "failed to read frame cache")
	}
	if frame == nil {
		return shared.NotFound("frame_not_found", "no recent frame for camera")
	}

	c.Response().Header().Set("X-Frame-Timestamp", strconv.FormatInt(frame.Timestamp, 10))
	c.Response().Header().Set("Last-Modified", time.UnixMilli(frame.Timestamp).UTC().Format(http.TimeFormat))
	return c.Blob(http.StatusOK, "image/jpeg", frame.Data)
}

func (h *Handler) TestAlarm(c echo.Context) error {
	if err := h.supervisor.SendTestAlarm(c.Request().Context()); err != nil {
		return shared.BadGateway("test_alarm_failed", "failed to deliver test alarm")
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "sent"})
}
