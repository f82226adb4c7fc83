package backend

import (
	"context"
	"fmt"
	"net/url"
)

// =============================================================================
// Scripts
// =============================================================================

// RunScript uploads source and starts it as the autopilot.
func (c *Client) RunScript(ctx context.Context, source string) error {
	return c.post(ctx, "/scripts/run", sourceBody{Source: source}, nil)
}

// StopScript stops the running script.
func (c *Client) StopScript(ctx context.Context) error {
	return c.post(ctx, "/scripts/stop", nil, nil)
}

// ScriptStatus reports whether a script is running.
func (c *Client) ScriptStatus(ctx context.Context) (ScriptStatus, error) {
	var out ScriptStatus
	err := c.get(ctx, "/scripts/status", &out)
	return out, err
}

// =============================================================================
// Test harness
// =============================================================================

// StartTests starts the backend's flight test harness.
func (c *Client) StartTests(ctx context.Context) error {
	return c.post(ctx, "/tests/start", nil, nil)
}

// StopTests aborts the test harness.
func (c *Client) StopTests(ctx context.Context) error {
	return c.post(ctx, "/tests/stop", nil, nil)
}

// TestStatus returns the harness progress.
func (c *Client) TestStatus(ctx context.Context) (TestStatus, error) {
	var out TestStatus
	err := c.get(ctx, "/tests/status", &out)
	return out, err
}

// =============================================================================
// Reinforcement learning
// =============================================================================

// StartTraining starts an RL training session.
func (c *Client) StartTraining(ctx context.Context) error {
	return c.post(ctx, "/rl/start", nil, nil)
}

// StopTraining stops the current training session.
func (c *Client) StopTraining(ctx context.Context) error {
	return c.post(ctx, "/rl/stop", nil, nil)
}

// TrainingStatus returns the trainer's progress.
func (c *Client) TrainingStatus(ctx context.Context) (TrainingStatus, error) {
	var out TrainingStatus
	err := c.get(ctx, "/rl/status", &out)
	return out, err
}

// Models lists saved policies.
func (c *Client) Models(ctx context.Context) (ModelList, error) {
	var out ModelList
	err := c.get(ctx, "/rl/models", &out)
	return out, err
}

// SaveModel saves the current policy under name.
func (c *Client) SaveModel(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("save model: empty name")
	}
	return c.post(ctx, "/rl/models/save", nameBody{Name: name}, nil)
}

// LoadModel loads a saved policy into the trainer.
func (c *Client) LoadModel(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("load model: empty name")
	}
	return c.post(ctx, "/rl/models/load", nameBody{Name: name}, nil)
}

// ActivateModel makes a saved policy fly the vehicle.
func (c *Client) ActivateModel(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("activate model: empty name")
	}
	return c.post(ctx, "/rl/models/activate", nameBody{Name: name}, nil)
}

// Metrics returns reward history.
func (c *Client) Metrics(ctx context.Context) (Metrics, error) {
	var out Metrics
	err := c.get(ctx, "/rl/metrics", &out)
	return out, err
}

// =============================================================================
// Scene
// =============================================================================

// Scene returns the current world layout.
func (c *Client) Scene(ctx context.Context) (Scene, error) {
	var out Scene
	err := c.get(ctx, "/scene", &out)
	return out, err
}

// SetScene replaces the world layout.
func (c *Client) SetScene(ctx context.Context, s Scene) error {
	return c.post(ctx, "/scene", s, nil)
}

// SaveScene persists the layout on the backend and returns where it went.
func (c *Client) SaveScene(ctx context.Context) (string, error) {
	var out statusBody
	if err := c.post(ctx, "/scene/save", nil, &out); err != nil {
		return "", err
	}
	return out.Path, nil
}

// LoadScene restores the saved layout. It returns ErrNotFound when the
// backend has nothing saved.
func (c *Client) LoadScene(ctx context.Context) error {
	var out statusBody
	if err := c.post(ctx, "/scene/load", nil, &out); err != nil {
		return err
	}
	if out.Status == "missing" {
		return ErrNotFound
	}
	return nil
}

// =============================================================================
// Recordings
// =============================================================================

// Recording actions accepted by Record.
const (
	RecordStart = "start"
	RecordStop  = "stop"
	RecordPlay  = "play"
	RecordClear = "clear"
)

// Record issues one recorder action.
func (c *Client) Record(ctx context.Context, action string) error {
	switch action {
	case RecordStart, RecordStop, RecordPlay, RecordClear:
	default:
		return fmt.Errorf("unknown recording action %q", action)
	}
	return c.post(ctx, "/recordings/"+url.PathEscape(action), nil, nil)
}

// RecordingStatus returns the recorder state.
func (c *Client) RecordingStatus(ctx context.Context) (RecordingStatus, error) {
	var out RecordingStatus
	err := c.get(ctx, "/recordings/status", &out)
	return out, err
}
