package web

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-flightdeck/pkg/backend"
	"github.com/teslashibe/go-flightdeck/pkg/hub"
	"github.com/teslashibe/go-flightdeck/pkg/mode"
	"github.com/teslashibe/go-flightdeck/pkg/sampler"
)

// inputFrame is one message on /ws/input.
//
//	{"type":"key","key":"ArrowUp","down":true,"text_focus":false}
//	{"type":"blur"}
//	{"type":"axes","throttle":0.5,"pitch":0,"roll":0,"yaw":0}
type inputFrame struct {
	Type      string `json:"type"`
	Key       string `json:"key"`
	Down      bool   `json:"down"`
	TextFocus bool   `json:"text_focus"`

	sampler.Axes
}

// handleInputFrame applies one UI input frame. Malformed frames are dropped.
func (s *Server) handleInputFrame(c *hub.Client, data []byte) {
	var in inputFrame
	if err := json.Unmarshal(data, &in); err != nil {
		s.log.WithError(err).WithField("client", c.ID).Warn("dropping malformed input frame")
		return
	}

	switch in.Type {
	case "key":
		kind := sampler.KeyUpEvent
		if in.Down {
			kind = sampler.KeyDownEvent
		}
		s.console.HandleInput(sampler.InputEvent{
			Kind:      kind,
			Key:       sampler.ParseKey(in.Key),
			TextFocus: in.TextFocus,
		})
	case "blur":
		s.console.HandleInput(sampler.InputEvent{Kind: sampler.FocusLost})
	case "axes":
		s.console.SetAxes(in.Axes)
	default:
		s.log.WithField("type", in.Type).Debug("ignoring input frame")
	}
}

// apiError maps a backend failure onto a response.
func apiError(c *fiber.Ctx, err error) error {
	status := fiber.StatusBadGateway
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		status = apiErr.Status
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func ok(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"ok": true})
}

// handleStatus returns the console snapshot
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.console.Status())
}

func (s *Server) handleGetMode(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"mode": s.console.Mode()})
}

func (s *Server) handleSetMode(c *fiber.Ctx) error {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	m, err := mode.ParseMode(req.Mode)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := s.console.SetMode(c.UserContext(), m); err != nil {
		return apiError(c, err)
	}
	return c.JSON(fiber.Map{"mode": m})
}

func (s *Server) handleRunScript(c *fiber.Ctx) error {
	var req struct {
		Source string `json:"source"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if req.Source == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "source required"})
	}
	if err := s.console.RunScript(c.UserContext(), req.Source); err != nil {
		return apiError(c, err)
	}
	return ok(c)
}

func (s *Server) handleStopScript(c *fiber.Ctx) error {
	if err := s.console.StopScript(c.UserContext()); err != nil {
		return apiError(c, err)
	}
	return ok(c)
}

func (s *Server) handleStartTraining(c *fiber.Ctx) error {
	if err := s.console.StartTraining(c.UserContext()); err != nil {
		return apiError(c, err)
	}
	return ok(c)
}

func (s *Server) handleStopTraining(c *fiber.Ctx) error {
	if err := s.console.StopTraining(c.UserContext()); err != nil {
		return apiError(c, err)
	}
	return ok(c)
}

func (s *Server) handleTrainingStatus(c *fiber.Ctx) error {
	return c.JSON(s.console.Status().Training)
}

func (s *Server) handleMetrics(c *fiber.Ctx) error {
	return c.JSON(s.console.Metrics())
}

func (s *Server) handleActivateModel(c *fiber.Ctx) error {
	if err := s.console.ActivateModel(c.UserContext(), c.Params("name")); err != nil {
		return apiError(c, err)
	}
	return c.JSON(fiber.Map{"mode": mode.RL, "model": c.Params("name")})
}
