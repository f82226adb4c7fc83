// Package console wires the operator console together: the realtime link,
// the command sampler, the control mode coordinator, the backend REST
// client and the status pollers.
//
// Typical use:
//
//	c, err := console.New(cfg)
//	if err := c.Init(ctx); err != nil { ... }
//	defer c.Close()
//	c.Run(ctx)
package console

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/teslashibe/go-flightdeck/internal/config"
	"github.com/teslashibe/go-flightdeck/internal/httpc"
	"github.com/teslashibe/go-flightdeck/internal/log"
	"github.com/teslashibe/go-flightdeck/pkg/backend"
	"github.com/teslashibe/go-flightdeck/pkg/coords"
	"github.com/teslashibe/go-flightdeck/pkg/flightlog"
	"github.com/teslashibe/go-flightdeck/pkg/link"
	"github.com/teslashibe/go-flightdeck/pkg/mode"
	"github.com/teslashibe/go-flightdeck/pkg/poll"
	"github.com/teslashibe/go-flightdeck/pkg/protocol"
	"github.com/teslashibe/go-flightdeck/pkg/sampler"
)

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("console closed")

// PoseUpdate is one telemetry frame as the display layer sees it.
type PoseUpdate struct {
	Pose      coords.Pose        `json:"pose"`
	Telemetry protocol.Telemetry `json:"telemetry"`
}

// Option configures a Console.
type Option func(*Console)

// WithClock replaces the clock used by every timer.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Console) { c.clock = clock }
}

// WithDialer replaces the link dialer.
func WithDialer(d link.Dialer) Option {
	return func(c *Console) { c.dialer = d }
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Entry) Option {
	return func(c *Console) { c.log = l }
}

// Console is the running operator console.
type Console struct {
	cfg    config.Config
	clock  clockwork.Clock
	dialer link.Dialer
	log    *logrus.Entry

	link    *link.Channel
	sliders *sampler.Sliders
	sampler *sampler.Sampler
	mode    *mode.Coordinator
	api     *backend.Client

	flightLog *flightlog.Store
	recorder  *flightlog.Recorder

	mu     sync.RWMutex
	latest PoseUpdate
	camera []byte
	status pollStatus
	closed bool
	cancel context.CancelFunc

	listenersMu  sync.RWMutex
	nextID       int
	poseSubs     map[int]func(PoseUpdate)
	cameraSubs   map[int]func([]byte)
	unsubscribes []func()

	tasks []*poll.Task
	wg    sync.WaitGroup
}

// New builds a console from cfg. Nothing connects until Init and Run.
func New(cfg config.Config, opts ...Option) (*Console, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Console{
		cfg:        cfg,
		poseSubs:   make(map[int]func(PoseUpdate)),
		cameraSubs: make(map[int]func([]byte)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	if c.log == nil {
		c.log = log.Component("console")
	}

	c.api = backend.NewClient(cfg.API.BaseURL,
		backend.WithHTTPClient(httpc.NewClient(cfg.API.Timeout.D())))

	c.link = link.New(link.Config{
		URL:            cfg.Link.URL,
		ReconnectDelay: cfg.Link.ReconnectDelay.D(),
		Dialer:         c.dialer,
		Clock:          c.clock,
	})

	c.sliders = &sampler.Sliders{}
	c.sampler = sampler.New(sampler.Config{
		Interval:  cfg.Sampler.Interval.D(),
		Magnitude: cfg.Sampler.OverrideMagnitude,
		Manual:    c.sliders,
		Sender:    c.link,
		Clock:     c.clock,
	})

	c.mode = mode.NewCoordinator(c.api,
		mode.WithInterval(cfg.Polling.Mode.D()),
		mode.WithClock(c.clock))

	return c, nil
}

// Init opens the flight log, if configured, and subscribes to the link.
func (c *Console) Init(ctx context.Context) error {
	c.log.WithFields(logrus.Fields{
		"link": c.cfg.Link.URL,
		"api":  c.cfg.API.BaseURL,
	}).Info("initializing console")

	if path := c.cfg.FlightLog.Path; path != "" {
		store, err := flightlog.Open(path)
		if err != nil {
			return fmt.Errorf("flight log: %w", err)
		}
		rec, err := flightlog.NewRecorder(ctx, store, c.cfg.Link.URL)
		if err != nil {
			store.Close()
			return fmt.Errorf("flight log: %w", err)
		}
		c.flightLog, c.recorder = store, rec
		c.unsubscribes = append(c.unsubscribes, c.link.OnTelemetry(rec.Handle))
	}

	c.unsubscribes = append(c.unsubscribes,
		c.link.OnTelemetry(c.handleTelemetry),
		c.link.OnCamera(c.handleCamera),
		c.link.OnState(func(s link.State) {
			c.log.WithField("state", s).Debug("link state")
		}),
	)
	return nil
}

// Run connects the link, starts the sampler, the mode coordinator and the
// status pollers, and blocks until ctx is done.
func (c *Console) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.cancel = cancel
	c.mu.Unlock()

	c.link.Connect()

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.sampler.Run(ctx)
	}()
	go func() {
		defer c.wg.Done()
		c.mode.Run(ctx)
	}()

	c.startPollers()
	c.log.Info("console running")

	<-ctx.Done()
	return nil
}

// Close stops every timer and poller, closes the link and flushes the
// flight log. It is safe to call more than once.
func (c *Console) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.mu.Lock()
	tasks := c.tasks
	c.tasks = nil
	c.mu.Unlock()
	for _, t := range tasks {
		t.Stop()
	}
	c.link.Close()
	c.wg.Wait()

	for _, unsubscribe := range c.unsubscribes {
		unsubscribe()
	}
	if c.recorder != nil {
		c.recorder.Close()
	}
	if c.flightLog != nil {
		if err := c.flightLog.Close(); err != nil {
			c.log.WithError(err).Warn("closing flight log")
		}
	}
	c.log.WithField("link", c.link.Stats().String()).Info("console closed")
}

func (c *Console) handleTelemetry(t protocol.Telemetry) {
	update := PoseUpdate{Pose: coords.Map(t), Telemetry: t}

	c.mu.Lock()
	c.latest = update
	c.mu.Unlock()

	c.listenersMu.RLock()
	subs := make([]func(PoseUpdate), 0, len(c.poseSubs))
	for _, fn := range c.poseSubs {
		subs = append(subs, fn)
	}
	c.listenersMu.RUnlock()

	for _, fn := range subs {
		fn(update)
	}
}

func (c *Console) handleCamera(cam protocol.Camera) {
	jpeg, err := cam.Decode()
	if err != nil {
		c.log.WithError(err).Warn("dropping undecodable camera frame")
		return
	}

	c.mu.Lock()
	c.camera = jpeg
	c.mu.Unlock()

	c.listenersMu.RLock()
	subs := make([]func([]byte), 0, len(c.cameraSubs))
	for _, fn := range c.cameraSubs {
		subs = append(subs, fn)
	}
	c.listenersMu.RUnlock()

	for _, fn := range subs {
		fn(jpeg)
	}
}

// OnPose subscribes to mapped telemetry.
func (c *Console) OnPose(fn func(PoseUpdate)) (unsubscribe func()) {
	c.listenersMu.Lock()
	c.nextID++
	id := c.nextID
	c.poseSubs[id] = fn
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		delete(c.poseSubs, id)
		c.listenersMu.Unlock()
	}
}

// OnCamera subscribes to decoded camera JPEGs.
func (c *Console) OnCamera(fn func([]byte)) (unsubscribe func()) {
	c.listenersMu.Lock()
	c.nextID++
	id := c.nextID
	c.cameraSubs[id] = fn
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		delete(c.cameraSubs, id)
		c.listenersMu.Unlock()
	}
}

// Latest returns the most recent mapped telemetry.
func (c *Console) Latest() PoseUpdate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest
}

// Camera returns the most recent camera JPEG, or nil.
func (c *Console) Camera() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.camera
}

// Link exposes the realtime channel.
func (c *Console) Link() *link.Channel { return c.link }

// HandleInput feeds one keyboard or focus event to the sampler.
func (c *Console) HandleInput(ev sampler.InputEvent) {
	c.sampler.HandleInput(ev)
}

// SetAxes sets the manual slider axes.
func (c *Console) SetAxes(a sampler.Axes) {
	c.sliders.Set(a)
}
