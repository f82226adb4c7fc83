// Package mode keeps the console's control mode in step with the backend.
//
// The backend owns the mode. The console updates its local copy
// optimistically when the operator acts, then lets a periodic poll
// overwrite it with whatever the backend reports.
package mode

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/teslashibe/go-flightdeck/internal/log"
	"github.com/teslashibe/go-flightdeck/pkg/poll"
)

// DefaultInterval is the reconciliation poll period.
const DefaultInterval = 1000 * time.Millisecond

// Mode names who drives the vehicle.
type Mode string

const (
	Manual Mode = "manual" // operator sliders and keys
	Script Mode = "script" // uploaded autopilot script
	RL     Mode = "rl"     // learned policy
)

// ErrUnknownMode is returned by ParseMode for unrecognised names.
var ErrUnknownMode = errors.New("unknown control mode")

// ParseMode validates an operator-supplied mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case Manual, Script, RL:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Source is the authoritative mode holder, normally the backend REST API.
type Source interface {
	GetMode(ctx context.Context) (Mode, error)
	SetMode(ctx context.Context, m Mode) error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithInterval sets the poll period.
func WithInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithClock sets the clock driving the poll.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Coordinator) { c.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Entry) Option {
	return func(c *Coordinator) { c.log = l }
}

// WithInitial sets the mode shown before the first poll.
func WithInitial(m Mode) Option {
	return func(c *Coordinator) { c.current = m }
}

// Coordinator holds the locally displayed mode.
type Coordinator struct {
	source   Source
	interval time.Duration
	clock    clockwork.Clock
	log      *logrus.Entry

	mu        sync.Mutex
	current   Mode
	nextID    int
	listeners map[int]func(Mode)
}

// NewCoordinator creates a coordinator showing Manual until told otherwise.
func NewCoordinator(source Source, opts ...Option) *Coordinator {
	c := &Coordinator{
		source:    source,
		interval:  DefaultInterval,
		current:   Manual,
		listeners: make(map[int]func(Mode)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	if c.log == nil {
		c.log = log.Component("mode")
	}
	return c
}

// Current returns the locally displayed mode.
func (c *Coordinator) Current() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// OnChange registers fn for every local mode change.
func (c *Coordinator) OnChange(fn func(Mode)) (unsubscribe func()) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// SetLocal updates the displayed mode immediately without asking the backend.
func (c *Coordinator) SetLocal(m Mode) {
	c.set(m)
}

// Request shows m at once and then asks the backend to switch. A failed
// request is logged; the next poll restores whatever the backend reports.
func (c *Coordinator) Request(ctx context.Context, m Mode) error {
	c.set(m)
	if err := c.source.SetMode(ctx, m); err != nil {
		c.log.WithError(err).WithField("mode", m).Warn("mode change request failed")
		return fmt.Errorf("set mode %s: %w", m, err)
	}
	return nil
}

// Reconcile polls the backend once and adopts its mode if it differs.
func (c *Coordinator) Reconcile(ctx context.Context) error {
	m, err := c.source.GetMode(ctx)
	if err != nil {
		return fmt.Errorf("get mode: %w", err)
	}
	if m == "" {
		return nil
	}
	if prev := c.Current(); prev != m {
		c.log.WithFields(logrus.Fields{"local": prev, "backend": m}).Debug("adopting backend mode")
	}
	c.set(m)
	return nil
}

// Run reconciles every interval until ctx is done. Poll failures are
// logged at debug level and otherwise ignored.
func (c *Coordinator) Run(ctx context.Context) {
	task := poll.Every(c.clock, c.interval, c.Reconcile,
		poll.WithErrorHandler(func(err error) {
			c.log.WithError(err).Debug("mode poll failed")
		}))
	<-ctx.Done()
	task.Stop()
}

func (c *Coordinator) set(m Mode) {
	c.mu.Lock()
	if c.current == m {
		c.mu.Unlock()
		return
	}
	c.current = m
	fns := make([]func(Mode), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(m)
	}
}
