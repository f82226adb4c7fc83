package simbackend

import (
	"slices"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-flightdeck/pkg/backend"
	"github.com/teslashibe/go-flightdeck/pkg/mode"
	"github.com/teslashibe/go-flightdeck/pkg/protocol"
)

// maxRecordedFrames caps the in-memory recorder.
const maxRecordedFrames = 30000

// apiState is everything the REST surface reads and writes.
type apiState struct {
	mu sync.Mutex

	mode         mode.Mode
	script       string
	scriptActive bool

	tests    backend.TestStatus
	training backend.TrainingStatus
	models   []string
	active   string
	metrics  backend.Metrics

	scene      backend.Scene
	savedScene *backend.Scene

	recording bool
	playback  bool
	frames    []protocol.Telemetry
	playIdx   int

	started time.Time
}

func newAPIState() *apiState {
	return &apiState{
		mode: mode.Manual,
		scene: backend.Scene{
			Bounds: backend.Bounds{
				MinXYZ: []float64{-50, -50, 0},
				MaxXYZ: []float64{50, 50, 30},
			},
		},
		started: time.Now(),
	}
}

// Mode returns the backend's current control mode.
func (s *Server) Mode() mode.Mode {
	s.api.mu.Lock()
	defer s.api.mu.Unlock()
	return s.api.mode
}

// SetMode changes the control mode, as if the backend decided it.
func (s *Server) SetMode(m mode.Mode) {
	s.api.mu.Lock()
	s.api.mode = m
	s.api.mu.Unlock()
}

// Script returns the last uploaded script source.
func (s *Server) Script() string {
	s.api.mu.Lock()
	defer s.api.mu.Unlock()
	return s.api.script
}

func (a *apiState) record(t protocol.Telemetry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.recording || len(a.frames) >= maxRecordedFrames {
		return
	}
	a.frames = append(a.frames, t)
}

func (a *apiState) nextPlayback() (protocol.Telemetry, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.playback || len(a.frames) == 0 {
		return protocol.Telemetry{}, false
	}
	frame := a.frames[a.playIdx]
	a.playIdx = (a.playIdx + 1) % len(a.frames)
	return frame, true
}

func status(c *fiber.Ctx, s string) error {
	return c.JSON(fiber.Map{"status": s})
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
}

// registerAPIRoutes registers the backend REST surface.
func (s *Server) registerAPIRoutes(r fiber.Router) {
	a := s.api

	// Scripts
	r.Post("/scripts/run", func(c *fiber.Ctx) error {
		var req struct {
			Source string `json:"source"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, err)
		}
		a.mu.Lock()
		a.script = req.Source
		a.scriptActive = true
		a.mode = mode.Script
		a.mu.Unlock()
		return status(c, "started")
	})
	r.Post("/scripts/stop", func(c *fiber.Ctx) error {
		a.mu.Lock()
		a.scriptActive = false
		if a.mode == mode.Script {
			a.mode = mode.Manual
		}
		a.mu.Unlock()
		return status(c, "stopped")
	})
	r.Get("/scripts/status", func(c *fiber.Ctx) error {
		a.mu.Lock()
		running := a.scriptActive
		a.mu.Unlock()
		if running {
			return status(c, "running")
		}
		return status(c, "stopped")
	})

	// Test harness
	r.Post("/tests/start", func(c *fiber.Ctx) error {
		a.mu.Lock()
		a.tests = backend.TestStatus{Running: true, Message: "running"}
		a.mu.Unlock()
		return status(c, "started")
	})
	r.Post("/tests/stop", func(c *fiber.Ctx) error {
		a.mu.Lock()
		a.tests.Running = false
		a.tests.Message = "stopped"
		a.mu.Unlock()
		return status(c, "stopped")
	})
	r.Get("/tests/status", func(c *fiber.Ctx) error {
		a.mu.Lock()
		defer a.mu.Unlock()
		return c.JSON(a.tests)
	})

	// Control mode
	r.Get("/control/mode", func(c *fiber.Ctx) error {
		a.mu.Lock()
		defer a.mu.Unlock()
		return c.JSON(fiber.Map{"mode": a.mode})
	})
	r.Post("/control/mode", func(c *fiber.Ctx) error {
		var req struct {
			Mode string `json:"mode"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, err)
		}
		m, err := mode.ParseMode(req.Mode)
		if err != nil {
			return badRequest(c, err)
		}
		a.mu.Lock()
		a.mode = m
		a.mu.Unlock()
		return c.JSON(fiber.Map{"mode": m})
	})

	// Reinforcement learning
	rl := r.Group("/rl")
	rl.Post("/start", func(c *fiber.Ctx) error {
		a.mu.Lock()
		a.training.Running = true
		a.mu.Unlock()
		return status(c, "started")
	})
	rl.Post("/stop", func(c *fiber.Ctx) error {
		a.mu.Lock()
		a.training.Running = false
		a.mu.Unlock()
		return status(c, "stopped")
	})
	rl.Get("/status", func(c *fiber.Ctx) error {
		a.mu.Lock()
		defer a.mu.Unlock()
		return c.JSON(a.training)
	})
	rl.Get("/metrics", func(c *fiber.Ctx) error {
		a.mu.Lock()
		defer a.mu.Unlock()
		return c.JSON(a.metrics)
	})
	rl.Get("/models", func(c *fiber.Ctx) error {
		a.mu.Lock()
		defer a.mu.Unlock()
		list := backend.ModelList{Models: make([]backend.Model, 0, len(a.models)), Active: a.active}
		for _, name := range a.models {
			list.Models = append(list.Models, backend.Model{Name: name})
		}
		return c.JSON(list)
	})
	rl.Post("/models/:action", func(c *fiber.Ctx) error {
		var req struct {
			Name string `json:"name"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, err)
		}
		if req.Name == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name required"})
		}

		a.mu.Lock()
		defer a.mu.Unlock()
		known := slices.Contains(a.models, req.Name)

		switch c.Params("action") {
		case "save":
			if !known {
				a.models = append(a.models, req.Name)
			}
			a.training.LastSaveTimeS = time.Since(a.started).Seconds()
			return status(c, "saved")
		case "load":
			if !known {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown model"})
			}
			return status(c, "loaded")
		case "activate":
			if !known {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown model"})
			}
			a.active = req.Name
			a.mode = mode.RL
			return status(c, "active")
		default:
			return fiber.ErrNotFound
		}
	})

	// Scene
	r.Get("/scene", func(c *fiber.Ctx) error {
		a.mu.Lock()
		defer a.mu.Unlock()
		return c.JSON(a.scene)
	})
	r.Post("/scene", func(c *fiber.Ctx) error {
		var scene backend.Scene
		if err := c.BodyParser(&scene); err != nil {
			return badRequest(c, err)
		}
		a.mu.Lock()
		a.scene = scene
		a.mu.Unlock()
		return status(c, "updated")
	})
	r.Post("/scene/save", func(c *fiber.Ctx) error {
		a.mu.Lock()
		saved := a.scene
		a.savedScene = &saved
		a.mu.Unlock()
		return c.JSON(fiber.Map{"status": "saved", "path": "memory://scene.json"})
	})
	r.Post("/scene/load", func(c *fiber.Ctx) error {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.savedScene == nil {
			return status(c, "missing")
		}
		a.scene = *a.savedScene
		return status(c, "loaded")
	})

	// Recordings
	rec := r.Group("/recordings")
	rec.Post("/start", func(c *fiber.Ctx) error {
		a.mu.Lock()
		a.frames = nil
		a.recording, a.playback, a.playIdx = true, false, 0
		a.mu.Unlock()
		return status(c, "recording")
	})
	rec.Post("/stop", func(c *fiber.Ctx) error {
		a.mu.Lock()
		a.recording = false
		a.mu.Unlock()
		return status(c, "stopped")
	})
	rec.Post("/play", func(c *fiber.Ctx) error {
		a.mu.Lock()
		if len(a.frames) > 0 {
			a.playback, a.recording, a.playIdx = true, false, 0
		}
		a.mu.Unlock()
		return status(c, "playback")
	})
	rec.Post("/clear", func(c *fiber.Ctx) error {
		a.mu.Lock()
		a.frames = nil
		a.playback, a.playIdx = false, 0
		a.mu.Unlock()
		return status(c, "cleared")
	})
	rec.Get("/status", func(c *fiber.Ctx) error {
		a.mu.Lock()
		defer a.mu.Unlock()
		return c.JSON(backend.RecordingStatus{
			Recording: a.recording,
			Playback:  a.playback,
			Frames:    len(a.frames),
		})
	})

	// Stub diagnostics
	r.Get("/sim/stats", func(c *fiber.Ctx) error {
		return c.JSON(s.GetStats())
	})
}

// rollingWindow is the episode count averaged into Metrics.Rolling.
const rollingWindow = 20

// AddEpisode records one finished training episode.
func (s *Server) AddEpisode(reward float64) {
	a := s.api
	a.mu.Lock()
	defer a.mu.Unlock()

	a.training.Episodes++
	a.training.Iterations++
	a.training.LastReward = reward
	if a.training.Episodes == 1 || reward > a.training.BestReward {
		a.training.BestReward = reward
	}

	a.metrics.Rewards = append(a.metrics.Rewards, reward)
	window := a.metrics.Rewards[max(0, len(a.metrics.Rewards)-rollingWindow):]
	var sum float64
	for _, r := range window {
		sum += r
	}
	a.metrics.Rolling = append(a.metrics.Rolling, sum/float64(len(window)))
}

func (a *apiState) trainingRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.training.Running
}
