package console

import (
	"context"
	"time"

	"github.com/teslashibe/go-flightdeck/pkg/backend"
	"github.com/teslashibe/go-flightdeck/pkg/link"
	"github.com/teslashibe/go-flightdeck/pkg/mode"
	"github.com/teslashibe/go-flightdeck/pkg/poll"
	"github.com/teslashibe/go-flightdeck/pkg/protocol"
)

// pollStatus is the latest result of each status poller.
type pollStatus struct {
	script   backend.ScriptStatus
	training backend.TrainingStatus
	tests    backend.TestStatus
	metrics  backend.Metrics
	polled   time.Time
}

// Status is a snapshot of everything the operator display shows besides
// the 3D view.
type Status struct {
	Link     link.Stats             `json:"link"`
	Mode     mode.Mode              `json:"mode"`
	Command  protocol.Command       `json:"command"`
	Pose     PoseUpdate             `json:"latest"`
	Script   backend.ScriptStatus   `json:"script"`
	Training backend.TrainingStatus `json:"training"`
	Tests    backend.TestStatus     `json:"tests"`
	PolledAt time.Time              `json:"polled_at,omitempty"`
}

// Status returns the current snapshot.
func (c *Console) Status() Status {
	c.mu.RLock()
	st := Status{
		Pose:     c.latest,
		Script:   c.status.script,
		Training: c.status.training,
		Tests:    c.status.tests,
		PolledAt: c.status.polled,
	}
	c.mu.RUnlock()

	st.Link = c.link.Stats()
	st.Mode = c.mode.Current()
	st.Command = c.sampler.Last()
	return st
}

// Metrics returns the latest reward history.
func (c *Console) Metrics() backend.Metrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status.metrics
}

// Mode returns the locally displayed control mode.
func (c *Console) Mode() mode.Mode {
	return c.mode.Current()
}

// OnModeChange subscribes to local mode changes.
func (c *Console) OnModeChange(fn func(mode.Mode)) (unsubscribe func()) {
	return c.mode.OnChange(fn)
}

// startPollers starts the status pollers. Failures only reach the debug log.
func (c *Console) startPollers() {
	p := c.cfg.Polling

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.tasks = append(c.tasks,
		c.every("scripts", p.Scripts.D(), c.pollScripts),
		c.every("training", p.Training.D(), c.pollTraining),
		c.every("tests", p.Tests.D(), c.pollTests),
		c.every("metrics", p.Metrics.D(), c.pollMetrics),
		c.every("stats", p.Stats.D(), c.logStats),
	)
}

func (c *Console) every(name string, interval time.Duration, fn poll.Func) *poll.Task {
	logger := c.log.WithField("poller", name)
	return poll.Every(c.clock, interval, fn, poll.WithErrorHandler(func(err error) {
		logger.WithError(err).Debug("status poll failed")
	}))
}

func (c *Console) pollScripts(ctx context.Context) error {
	st, err := c.api.ScriptStatus(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.status.script = st
	c.status.polled = c.clock.Now()
	c.mu.Unlock()
	return nil
}

func (c *Console) pollTraining(ctx context.Context) error {
	st, err := c.api.TrainingStatus(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.status.training = st
	c.status.polled = c.clock.Now()
	c.mu.Unlock()
	return nil
}

func (c *Console) pollTests(ctx context.Context) error {
	st, err := c.api.TestStatus(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.status.tests = st
	c.status.polled = c.clock.Now()
	c.mu.Unlock()
	return nil
}

func (c *Console) pollMetrics(ctx context.Context) error {
	m, err := c.api.Metrics(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.status.metrics = m
	c.mu.Unlock()
	return nil
}

func (c *Console) logStats(context.Context) error {
	c.log.WithField("mode", c.mode.Current()).Info("link " + c.link.Stats().String())
	return nil
}
