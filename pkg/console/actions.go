package console

import (
	"context"

	"github.com/teslashibe/go-flightdeck/pkg/backend"
	"github.com/teslashibe/go-flightdeck/pkg/mode"
)

// Operator actions. Each one calls the backend once; failures are logged
// and returned, and the status pollers converge the display either way.
// Actions that imply a mode switch update the displayed mode first.

// RunScript uploads and starts an autopilot script.
func (c *Console) RunScript(ctx context.Context, source string) error {
	c.mode.SetLocal(mode.Script)
	return c.logged("run script", c.api.RunScript(ctx, source))
}

// StopScript stops the autopilot script and hands control back.
func (c *Console) StopScript(ctx context.Context) error {
	c.mode.SetLocal(mode.Manual)
	return c.logged("stop script", c.api.StopScript(ctx))
}

// SetMode requests a control mode.
func (c *Console) SetMode(ctx context.Context, m mode.Mode) error {
	// Request logs its own failures.
	return c.mode.Request(ctx, m)
}

// StartTraining starts RL training.
func (c *Console) StartTraining(ctx context.Context) error {
	return c.logged("start training", c.api.StartTraining(ctx))
}

// StopTraining stops RL training.
func (c *Console) StopTraining(ctx context.Context) error {
	return c.logged("stop training", c.api.StopTraining(ctx))
}

// SaveModel saves the current policy.
func (c *Console) SaveModel(ctx context.Context, name string) error {
	return c.logged("save model", c.api.SaveModel(ctx, name))
}

// LoadModel loads a saved policy.
func (c *Console) LoadModel(ctx context.Context, name string) error {
	return c.logged("load model", c.api.LoadModel(ctx, name))
}

// ActivateModel hands control to a saved policy.
func (c *Console) ActivateModel(ctx context.Context, name string) error {
	c.mode.SetLocal(mode.RL)
	return c.logged("activate model", c.api.ActivateModel(ctx, name))
}

// Models lists saved policies.
func (c *Console) Models(ctx context.Context) (backend.ModelList, error) {
	list, err := c.api.Models(ctx)
	return list, c.logged("list models", err)
}

// StartTests starts the flight test harness.
func (c *Console) StartTests(ctx context.Context) error {
	return c.logged("start tests", c.api.StartTests(ctx))
}

// StopTests aborts the flight test harness.
func (c *Console) StopTests(ctx context.Context) error {
	return c.logged("stop tests", c.api.StopTests(ctx))
}

// Record issues a recorder action (backend.RecordStart etc.).
func (c *Console) Record(ctx context.Context, action string) error {
	return c.logged("recording "+action, c.api.Record(ctx, action))
}

// Scene returns the backend's world layout.
func (c *Console) Scene(ctx context.Context) (backend.Scene, error) {
	scene, err := c.api.Scene(ctx)
	return scene, c.logged("get scene", err)
}

// SetScene replaces the world layout.
func (c *Console) SetScene(ctx context.Context, s backend.Scene) error {
	return c.logged("set scene", c.api.SetScene(ctx, s))
}

// SaveScene persists the world layout on the backend.
func (c *Console) SaveScene(ctx context.Context) error {
	_, err := c.api.SaveScene(ctx)
	return c.logged("save scene", err)
}

// LoadScene restores the saved world layout.
func (c *Console) LoadScene(ctx context.Context) error {
	return c.logged("load scene", c.api.LoadScene(ctx))
}

func (c *Console) logged(action string, err error) error {
	if err != nil {
		c.log.WithError(err).WithField("action", action).Warn("operator action failed")
	}
	return err
}
