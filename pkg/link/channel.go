// Package link maintains the console's realtime control/telemetry channel.
//
// A Channel owns one logical connection to a fixed websocket endpoint. It
// reconnects on its own after a fixed delay, routes inbound frames to typed
// subscribers by their "type" field, and sends operator commands on a
// best-effort basis: a command sent while the channel is not open is lost.
package link

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/teslashibe/go-flightdeck/internal/log"
	"github.com/teslashibe/go-flightdeck/pkg/protocol"
)

// DefaultReconnectDelay is the fixed pause between a disconnect and the next attempt.
const DefaultReconnectDelay = 1000 * time.Millisecond

var errSuperseded = errors.New("socket superseded by a newer connect")

// State is the channel's connection state.
type State int32

const (
	Disconnected State = iota
	Connecting
	Open
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	default:
		return "unknown"
	}
}

// Config configures a Channel. Zero fields take defaults.
type Config struct {
	URL            string
	ReconnectDelay time.Duration
	Dialer         Dialer
	Clock          clockwork.Clock
	Logger         *logrus.Entry
}

// Channel is a reconnecting, type-demultiplexing websocket channel.
type Channel struct {
	url            string
	reconnectDelay time.Duration
	dial           Dialer
	clock          clockwork.Clock
	log            *logrus.Entry

	mu         sync.Mutex
	state      State
	conn       Conn
	gen        uint64 // bumped by every Connect; stale sockets compare against it
	session    string
	cancelDial context.CancelFunc
	reconnect  clockwork.Timer
	closed     bool

	// Only one goroutine writes to the socket at a time
	writeMu sync.Mutex

	telemetry emitter[protocol.Telemetry]
	camera    emitter[protocol.Camera]
	states    emitter[State]

	stats counters
}

// New creates a disconnected channel. Call Connect to start it.
func New(cfg Config) *Channel {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.Dialer == nil {
		cfg.Dialer = WebsocketDialer(nil)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Component("link")
	}

	return &Channel{
		url:            cfg.URL,
		reconnectDelay: cfg.ReconnectDelay,
		dial:           cfg.Dialer,
		clock:          cfg.Clock,
		log:            cfg.Logger.WithField("url", cfg.URL),
	}
}

// OnTelemetry subscribes to telemetry frames.
func (c *Channel) OnTelemetry(fn func(protocol.Telemetry)) (unsubscribe func()) {
	return c.telemetry.subscribe(fn)
}

// OnCamera subscribes to camera frames. Camera frames are only decoded
// while at least one subscriber exists.
func (c *Channel) OnCamera(fn func(protocol.Camera)) (unsubscribe func()) {
	return c.camera.subscribe(fn)
}

// OnState subscribes to connection state transitions.
func (c *Channel) OnState(fn func(State)) (unsubscribe func()) {
	return c.states.subscribe(fn)
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect establishes a fresh socket. It is safe to call in any state: an
// existing socket or in-flight dial is abandoned, and a pending reconnect
// is superseded. Connect does nothing after Close.
func (c *Channel) Connect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	c.stopReconnectLocked()
	if c.cancelDial != nil {
		c.cancelDial()
	}
	old := c.conn
	c.conn = nil

	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelDial = cancel
	c.session = uuid.NewString()
	session := c.session
	changed := c.setStateLocked(Connecting)
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	c.stats.connects.Add(1)
	if changed {
		c.states.emit(Connecting)
	}

	go c.run(ctx, cancel, gen, session)
}

// Close stops the channel for good: the pending reconnect is cancelled and
// the socket is closed. Subscribers receive a final Disconnected.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopReconnectLocked()
	if c.cancelDial != nil {
		c.cancelDial()
	}
	conn := c.conn
	c.conn = nil
	changed := c.setStateLocked(Disconnected)
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if changed {
		c.states.emit(Disconnected)
	}
}

// SendCommand sends one command frame. It never blocks on reconnects and
// never reports failure: when the channel is not open the command is dropped.
func (c *Channel) SendCommand(cmd protocol.Command) {
	c.mu.Lock()
	conn := c.conn
	open := c.state == Open
	c.mu.Unlock()

	if !open || conn == nil {
		c.stats.commandsDropped.Add(1)
		return
	}

	data, err := cmd.Bytes()
	if err != nil {
		c.stats.commandsDropped.Add(1)
		c.log.WithError(err).Debug("unencodable command dropped")
		return
	}

	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()

	if err != nil {
		c.stats.commandsDropped.Add(1)
		c.log.WithError(err).Debug("command write failed, closing socket")
		// The reader sees the close and drives the reconnect.
		conn.Close()
		return
	}
	c.stats.framesOut.Add(1)
}

// run dials and then reads until the socket fails.
func (c *Channel) run(ctx context.Context, cancel context.CancelFunc, gen uint64, session string) {
	logger := c.log.WithField("session", session)

	conn, err := c.dial(ctx, c.url)
	cancel()

	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.mu.Unlock()
		logger.WithError(err).Debug("connect failed")
		c.disconnected(gen)
		return
	}
	c.conn = conn
	c.cancelDial = nil
	changed := c.setStateLocked(Open)
	c.mu.Unlock()

	logger.Info("link open")
	if changed {
		c.states.emit(Open)
	}

	err = c.readLoop(gen, conn)
	logger.WithError(err).Info("link closed")
	c.disconnected(gen)
}

// readLoop delivers frames in arrival order until the socket fails.
func (c *Channel) readLoop(gen uint64, conn Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if !c.current(gen) {
			return errSuperseded
		}
		c.stats.bytesIn.Add(uint64(len(data)))
		c.handleFrame(data)
	}
}

// handleFrame routes one inbound frame by its type discriminator.
func (c *Channel) handleFrame(data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		c.stats.parseErrors.Add(1)
		c.log.WithError(err).Warn("dropping malformed frame")
		return
	}

	switch msg.Type {
	case protocol.TypeTelemetry:
		tel, err := msg.Telemetry()
		if err != nil {
			c.stats.parseErrors.Add(1)
			c.log.WithError(err).Warn("dropping malformed telemetry")
			return
		}
		c.stats.framesIn.Add(1)
		c.telemetry.emit(tel)

	case protocol.TypeCamera:
		if c.camera.count() == 0 {
			c.stats.dropped.Add(1)
			return
		}
		cam, err := msg.Camera()
		if err != nil {
			c.stats.parseErrors.Add(1)
			c.log.WithError(err).Warn("dropping malformed camera frame")
			return
		}
		c.stats.framesIn.Add(1)
		c.camera.emit(cam)

	default:
		// Unknown types are not an error
		c.stats.dropped.Add(1)
	}
}

// disconnected moves a live generation to Disconnected and schedules
// exactly one reconnect.
func (c *Channel) disconnected(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.conn = nil
	c.cancelDial = nil
	changed := c.setStateLocked(Disconnected)
	c.stopReconnectLocked()
	c.reconnect = c.clock.AfterFunc(c.reconnectDelay, c.Connect)
	c.stats.reconnects.Add(1)
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.log.WithField("delay", c.reconnectDelay).Debug("reconnect scheduled")
	if changed {
		c.states.emit(Disconnected)
	}
}

func (c *Channel) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen && !c.closed
}

func (c *Channel) setStateLocked(s State) bool {
	if c.state == s {
		return false
	}
	c.state = s
	return true
}

func (c *Channel) stopReconnectLocked() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
}
