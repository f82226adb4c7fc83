// Package sampler turns operator input into a fixed-rate command stream.
//
// Every tick the Sampler reads the manual axes, applies the keyboard
// override and hands exactly one Command to its Sender, whether or not
// anything changed since the previous tick.
package sampler

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/teslashibe/go-flightdeck/internal/log"
	"github.com/teslashibe/go-flightdeck/pkg/protocol"
)

const (
	// DefaultInterval is the command tick period (20 Hz).
	DefaultInterval = 50 * time.Millisecond

	// DefaultMagnitude is the pitch/roll value a held key produces.
	DefaultMagnitude = 0.35
)

// Axes are the four manual scalar inputs.
type Axes struct {
	Throttle float64 `json:"throttle"`
	Pitch    float64 `json:"pitch"`
	Roll     float64 `json:"roll"`
	Yaw      float64 `json:"yaw"`
}

// ManualInputs supplies the current manual axes.
type ManualInputs interface {
	Axes() Axes
}

// Sender accepts one command per tick. link.Channel satisfies it.
type Sender interface {
	SendCommand(protocol.Command)
}

// Sliders holds manual axes written by the operator UI.
type Sliders struct {
	mu   sync.RWMutex
	axes Axes
}

// Set replaces all four axes.
func (s *Sliders) Set(a Axes) {
	s.mu.Lock()
	s.axes = a
	s.mu.Unlock()
}

// Axes returns the current axes.
func (s *Sliders) Axes() Axes {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.axes
}

// clamp restricts v to the range [min, max].
func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Merge combines manual axes with the keyboard override.
// A non-zero override axis replaces the manual pitch or roll for that tick.
// Pitch and roll end up within ±magnitude; throttle and yaw pass through
// untouched.
func Merge(manual Axes, kb Keyboard, magnitude float64) protocol.Command {
	pitch, roll := manual.Pitch, manual.Roll

	kbPitch, kbRoll := kb.Override(magnitude)
	if kbPitch != 0 {
		pitch = kbPitch
	}
	if kbRoll != 0 {
		roll = kbRoll
	}

	return protocol.Command{
		Throttle: manual.Throttle,
		Pitch:    clamp(pitch, -magnitude, magnitude),
		Roll:     clamp(roll, -magnitude, magnitude),
		Yaw:      manual.Yaw,
	}
}

// Config configures a Sampler. Zero fields take defaults.
type Config struct {
	Interval  time.Duration
	Magnitude float64
	Manual    ManualInputs
	Sender    Sender
	Clock     clockwork.Clock
	Logger    *logrus.Entry
}

// Sampler emits one merged Command per tick.
type Sampler struct {
	interval  time.Duration
	magnitude float64
	manual    ManualInputs
	sender    Sender
	clock     clockwork.Clock
	log       *logrus.Entry

	mu       sync.Mutex
	keyboard Keyboard
	last     protocol.Command

	ticks uint64
}

// New creates a sampler. Run starts it.
func New(cfg Config) *Sampler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Magnitude <= 0 {
		cfg.Magnitude = DefaultMagnitude
	}
	if cfg.Manual == nil {
		cfg.Manual = &Sliders{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Component("sampler")
	}
	return &Sampler{
		interval:  cfg.Interval,
		magnitude: cfg.Magnitude,
		manual:    cfg.Manual,
		sender:    cfg.Sender,
		clock:     cfg.Clock,
		log:       cfg.Logger,
	}
}

// HandleInput is the only way keyboard state changes.
func (s *Sampler) HandleInput(ev InputEvent) {
	s.mu.Lock()
	before := s.keyboard
	s.keyboard = s.keyboard.Apply(ev)
	after := s.keyboard
	s.mu.Unlock()

	if before != after {
		s.log.WithFields(logrus.Fields{"key": ev.Key, "held": after.Held()}).Debug("keyboard state")
	}
}

// Keyboard returns the current keyboard state.
func (s *Sampler) Keyboard() Keyboard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyboard
}

// Last returns the most recently emitted command.
func (s *Sampler) Last() protocol.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Run emits commands until ctx is done.
func (s *Sampler) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.WithField("interval", s.interval).Info("command sampler started")
	for {
		select {
		case <-ctx.Done():
			s.log.WithField("ticks", s.ticks).Info("command sampler stopped")
			return
		case <-ticker.Chan():
			s.tick()
		}
	}
}

// tick merges the current inputs and sends one command.
func (s *Sampler) tick() {
	manual := s.manual.Axes()

	s.mu.Lock()
	cmd := Merge(manual, s.keyboard, s.magnitude)
	s.last = cmd
	s.ticks++
	s.mu.Unlock()

	if s.sender != nil {
		s.sender.SendCommand(cmd)
	}
}
