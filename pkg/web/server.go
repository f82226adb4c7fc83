// Package web serves the operator bridge: websocket streams of mapped
// telemetry and camera frames for an external UI, an input socket for the
// UI's keys and sliders, and a small REST surface for operator actions.
package web

import (
	"context"
	"net"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"github.com/teslashibe/go-flightdeck/internal/log"
	"github.com/teslashibe/go-flightdeck/pkg/backend"
	"github.com/teslashibe/go-flightdeck/pkg/console"
	"github.com/teslashibe/go-flightdeck/pkg/hub"
	"github.com/teslashibe/go-flightdeck/pkg/mode"
	"github.com/teslashibe/go-flightdeck/pkg/sampler"
)

// Console is what the bridge needs from the operator console.
type Console interface {
	OnPose(fn func(console.PoseUpdate)) (unsubscribe func())
	OnCamera(fn func([]byte)) (unsubscribe func())
	HandleInput(sampler.InputEvent)
	SetAxes(sampler.Axes)

	Status() console.Status
	Metrics() backend.Metrics
	Mode() mode.Mode
	SetMode(ctx context.Context, m mode.Mode) error

	RunScript(ctx context.Context, source string) error
	StopScript(ctx context.Context) error
	StartTraining(ctx context.Context) error
	StopTraining(ctx context.Context) error
	ActivateModel(ctx context.Context, name string) error
}

// Server is the operator bridge server
type Server struct {
	app     *fiber.App
	addr    string
	console Console
	log     *logrus.Entry

	// Hubs for websocket broadcast
	telemetryHub *hub.Hub
	cameraHub    *hub.Hub
	inputHub     *hub.Hub

	mu           sync.Mutex
	cancel       context.CancelFunc
	unsubscribes []func()
	once         sync.Once
}

// NewServer creates the bridge for c, listening on addr when started.
func NewServer(addr string, c Console) *Server {
	s := &Server{
		addr:         addr,
		console:      c,
		log:          log.Component("web"),
		telemetryHub: hub.New("telemetry"),
		cameraHub:    hub.New("camera"),
		inputHub:     hub.New("input"),
	}
	s.inputHub.OnMessage(s.handleInputFrame)

	app := fiber.New(fiber.Config{
		AppName:               "Flightdeck Bridge",
		DisableStartupMessage: true,
	})

	// CORS for a UI served from elsewhere
	app.Use(cors.New())

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/mode", s.handleGetMode)
	api.Post("/mode", s.handleSetMode)
	api.Post("/scripts/run", s.handleRunScript)
	api.Post("/scripts/stop", s.handleStopScript)
	api.Post("/rl/start", s.handleStartTraining)
	api.Post("/rl/stop", s.handleStopTraining)
	api.Get("/rl/status", s.handleTrainingStatus)
	api.Get("/rl/metrics", s.handleMetrics)
	api.Post("/rl/models/:name/activate", s.handleActivateModel)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/telemetry", websocket.New(s.serveHub(s.telemetryHub)))
	app.Get("/ws/camera", websocket.New(s.serveHub(s.cameraHub)))
	app.Get("/ws/input", websocket.New(s.serveHub(s.inputHub)))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for app.Test in tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve runs the hubs, subscribes to the console and serves on ln until
// Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.cancel = cancel
	s.unsubscribes = append(s.unsubscribes,
		s.console.OnPose(func(u console.PoseUpdate) {
			if err := s.telemetryHub.BroadcastJSON(u); err != nil {
				s.log.WithError(err).Debug("unencodable telemetry")
			}
		}),
		s.console.OnCamera(s.cameraHub.BroadcastBinary),
	)
	s.mu.Unlock()

	go s.telemetryHub.Run(ctx)
	go s.cameraHub.Run(ctx)
	go s.inputHub.Run(ctx)

	s.log.WithField("addr", ln.Addr().String()).Info("operator bridge listening")
	return s.app.Listener(ln)
}

// StartAsync starts the server in a goroutine
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.log.WithError(err).Error("operator bridge stopped")
		}
	}()
}

// Shutdown stops the server, the hubs and the console subscriptions.
func (s *Server) Shutdown() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		for _, unsubscribe := range s.unsubscribes {
			unsubscribe()
		}
		cancel := s.cancel
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		err = s.app.Shutdown()
	})
	return err
}

// serveHub attaches a websocket to h until it closes.
func (s *Server) serveHub(h *hub.Hub) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		client := hub.NewClient(h, conn)
		if client == nil {
			conn.Close()
			return
		}
		client.Run()
	}
}
