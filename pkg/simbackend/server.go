// Package simbackend is an in-process stand-in for the simulation backend.
//
// It serves the realtime link on /ws and the REST surface the console
// uses, keeps everything in memory, and can drop every socket on demand to
// simulate an outage. cmd/simbackend runs it with a flight model for local
// development; tests drive it directly.
package simbackend

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/teslashibe/go-flightdeck/internal/log"
	"github.com/teslashibe/go-flightdeck/pkg/protocol"
)

// SimTick is the flight model step used by Simulate.
const SimTick = 20 * time.Millisecond

const episodeTicks = int(time.Second / SimTick)

// peer is one connected console.
type peer struct {
	id        string
	conn      *websocket.Conn
	connected time.Time

	mu sync.Mutex
}

func (p *peer) send(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

// Server is the stub backend.
type Server struct {
	app *fiber.App
	log *logrus.Entry

	mu        sync.RWMutex
	peers     map[string]*peer
	last      protocol.Command
	onCommand func(protocol.Command)

	api *apiState

	// Stats
	framesReceived atomic.Uint64
	framesSent     atomic.Uint64
	badFrames      atomic.Uint64
}

// New creates a stub backend with its routes registered.
func New() *Server {
	s := &Server{
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
		}),
		log:   log.Component("simbackend"),
		peers: make(map[string]*peer),
		api:   newAPIState(),
	}
	s.registerRoutes()
	return s
}

// App exposes the fiber app, mainly for app.Test in tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr. It blocks until Shutdown.
func (s *Server) Listen(addr string) error {
	s.log.WithField("addr", addr).Info("stub backend listening")
	return s.app.Listen(addr)
}

// Serve serves on an existing listener. It blocks until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.log.WithField("addr", ln.Addr().String()).Info("stub backend listening")
	return s.app.Listener(ln)
}

// Start binds addr and serves in the background. It returns the bound
// address, which is useful with port 0.
func (s *Server) Start(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	go s.Serve(ln)
	return ln.Addr(), nil
}

// Shutdown stops the server and closes every socket.
func (s *Server) Shutdown() error {
	s.DropAll()
	return s.app.Shutdown()
}

// OnCommand sets a callback for every command frame received.
func (s *Server) OnCommand(fn func(protocol.Command)) {
	s.mu.Lock()
	s.onCommand = fn
	s.mu.Unlock()
}

func (s *Server) registerRoutes() {
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws", websocket.New(s.handleLink))

	s.registerAPIRoutes(s.app)
}

// handleLink serves one console socket.
func (s *Server) handleLink(c *websocket.Conn) {
	p := &peer{id: uuid.NewString(), conn: c, connected: time.Now()}

	s.mu.Lock()
	s.peers[p.id] = p
	count := len(s.peers)
	s.mu.Unlock()

	logger := s.log.WithField("peer", p.id)
	logger.WithField("peers", count).Info("console connected")

	defer func() {
		s.mu.Lock()
		delete(s.peers, p.id)
		count := len(s.peers)
		s.mu.Unlock()
		c.Close()
		logger.WithField("peers", count).Info("console disconnected")
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			logger.WithError(err).Debug("read ended")
			return
		}
		s.handleFrame(data)
	}
}

// handleFrame accepts command frames and ignores everything else.
func (s *Server) handleFrame(data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		s.badFrames.Add(1)
		return
	}
	if msg.Type != protocol.TypeCommand {
		return
	}
	cmd, err := msg.Command()
	if err != nil {
		s.badFrames.Add(1)
		return
	}

	s.framesReceived.Add(1)
	s.mu.Lock()
	s.last = cmd
	cb := s.onCommand
	s.mu.Unlock()

	if cb != nil {
		cb(cmd)
	}
}

// LastCommand returns the most recent command received.
func (s *Server) LastCommand() protocol.Command {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// CommandCount returns how many command frames have been received.
func (s *Server) CommandCount() uint64 {
	return s.framesReceived.Load()
}

// PeerCount returns the number of connected consoles.
func (s *Server) PeerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

// Broadcast sends a raw frame to every connected console. Peers that fail
// the write are dropped.
func (s *Server) Broadcast(data []byte) {
	s.mu.RLock()
	peers := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.RUnlock()

	for _, p := range peers {
		if err := p.send(data); err != nil {
			s.log.WithError(err).WithField("peer", p.id).Debug("broadcast failed")
			p.conn.Close()
			continue
		}
		s.framesSent.Add(1)
	}
}

// BroadcastTelemetry sends a telemetry frame to every console.
func (s *Server) BroadcastTelemetry(t protocol.Telemetry) error {
	data, err := t.Bytes()
	if err != nil {
		return err
	}
	s.Broadcast(data)
	return nil
}

// BroadcastCamera sends a camera frame to every console.
func (s *Server) BroadcastCamera(jpeg []byte) error {
	data, err := protocol.NewCamera(jpeg).Bytes()
	if err != nil {
		return err
	}
	s.Broadcast(data)
	return nil
}

// DropAll closes every console socket, as if the backend restarted.
func (s *Server) DropAll() {
	s.mu.RLock()
	peers := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.RUnlock()

	for _, p := range peers {
		p.conn.Close()
	}
	if len(peers) > 0 {
		s.log.WithField("peers", len(peers)).Info("dropped all sockets")
	}
}

// Simulate steps the flight model every SimTick and broadcasts telemetry
// until ctx is done. Commands from the link fly the vehicle; while a
// recording plays back, recorded frames are sent instead.
func (s *Server) Simulate(ctx context.Context, physics Physics) {
	ticker := time.NewTicker(SimTick)
	defer ticker.Stop()

	v := NewVehicle()
	dt := SimTick.Seconds()
	var simTime float64
	var ticks int

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if frame, ok := s.api.nextPlayback(); ok {
			s.BroadcastTelemetry(frame)
			continue
		}

		physics.Step(&v, s.LastCommand(), dt)
		simTime += dt
		ticks++

		// One pseudo episode per second while training
		if ticks%episodeTicks == 0 && s.api.trainingRunning() {
			s.AddEpisode(episodeReward(v))
		}

		frame := v.Telemetry(simTime)
		s.api.record(frame)
		s.BroadcastTelemetry(frame)
	}
}

// Stats contains stub backend statistics
type Stats struct {
	Peers          int    `json:"peers"`
	FramesReceived uint64 `json:"frames_received"`
	FramesSent     uint64 `json:"frames_sent"`
	BadFrames      uint64 `json:"bad_frames"`
}

// GetStats returns server statistics.
func (s *Server) GetStats() Stats {
	return Stats{
		Peers:          s.PeerCount(),
		FramesReceived: s.framesReceived.Load(),
		FramesSent:     s.framesSent.Load(),
		BadFrames:      s.badFrames.Load(),
	}
}
