package console

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-flightdeck/internal/config"
	"github.com/teslashibe/go-flightdeck/pkg/coords"
	"github.com/teslashibe/go-flightdeck/pkg/flightlog"
	"github.com/teslashibe/go-flightdeck/pkg/link"
	"github.com/teslashibe/go-flightdeck/pkg/mode"
	"github.com/teslashibe/go-flightdeck/pkg/protocol"
	"github.com/teslashibe/go-flightdeck/pkg/sampler"
	"github.com/teslashibe/go-flightdeck/pkg/simbackend"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

// testConfig points a fast-polling console at addr.
func testConfig(addr string) config.Config {
	cfg := config.Default()
	cfg.Link.URL = "ws://" + addr + "/ws"
	cfg.Link.ReconnectDelay = config.Duration(50 * time.Millisecond)
	cfg.API.BaseURL = "http://" + addr
	cfg.Sampler.Interval = config.Duration(10 * time.Millisecond)
	fast := config.Duration(20 * time.Millisecond)
	cfg.Polling = config.PollingConfig{
		Mode:     fast,
		Scripts:  fast,
		Training: fast,
		Tests:    fast,
		Metrics:  fast,
		Stats:    config.Duration(time.Second),
	}
	cfg.Bridge.Enabled = false
	return cfg
}

type harness struct {
	srv     *simbackend.Server
	console *Console
	cancel  context.CancelFunc
	done    chan error
	once    sync.Once
}

func start(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()

	srv := simbackend.New()
	addr, err := srv.Start("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { srv.Shutdown() })

	cfg := testConfig(addr.String())
	if mutate != nil {
		mutate(&cfg)
	}

	c, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, c.Init(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{srv: srv, console: c, cancel: cancel, done: make(chan error, 1)}
	go func() { h.done <- c.Run(ctx) }()
	t.Cleanup(h.stop)

	require.Eventually(t, func() bool {
		return c.Link().State() == link.Open && srv.PeerCount() == 1
	}, waitFor, tick)
	return h
}

func (h *harness) stop() {
	h.once.Do(func() {
		h.cancel()
		<-h.done
		h.console.Close()
	})
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Sampler.Interval = 0

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestTelemetryIsMapped(t *testing.T) {
	h := start(t, nil)

	var updates atomic.Int32
	h.console.OnPose(func(PoseUpdate) { updates.Add(1) })

	tel := protocol.Telemetry{Pos: []float64{1, 2, 3}, Rot: []float64{4, 5, 6}}
	tel.Set("battery", 0.75)
	require.NoError(t, h.srv.BroadcastTelemetry(tel))

	require.Eventually(t, func() bool { return updates.Load() >= 1 }, waitFor, tick)

	latest := h.console.Latest()
	assert.Equal(t, coords.Vec3{X: 1, Y: 3, Z: 2}, latest.Pose.Position)
	assert.Equal(t, coords.Vec3{X: 5, Y: 6, Z: 4}, latest.Pose.Rotation)
	battery, ok := latest.Telemetry.Battery()
	assert.True(t, ok)
	assert.Equal(t, 0.75, battery)
}

func TestCameraLastOneWins(t *testing.T) {
	h := start(t, nil)

	frames := make(chan []byte, 4)
	h.console.OnCamera(func(jpeg []byte) { frames <- jpeg })

	require.NoError(t, h.srv.BroadcastCamera([]byte{0xFF, 0xD8, 0x01}))
	require.NoError(t, h.srv.BroadcastCamera([]byte{0xFF, 0xD8, 0x02}))

	for i := 0; i < 2; i++ {
		select {
		case <-frames:
		case <-time.After(waitFor):
			t.Fatal("camera frame never arrived")
		}
	}
	assert.Equal(t, []byte{0xFF, 0xD8, 0x02}, h.console.Camera())
}

func TestSamplerDrivesBackend(t *testing.T) {
	h := start(t, nil)

	h.console.SetAxes(sampler.Axes{Throttle: 0.6, Pitch: 0.1, Roll: 0.2, Yaw: -0.3})
	require.Eventually(t, func() bool {
		return h.srv.LastCommand() == protocol.Command{Throttle: 0.6, Pitch: 0.1, Roll: 0.2, Yaw: -0.3}
	}, waitFor, tick)

	h.console.HandleInput(sampler.InputEvent{Kind: sampler.KeyDownEvent, Key: sampler.KeyUp})
	require.Eventually(t, func() bool {
		cmd := h.srv.LastCommand()
		return cmd.Pitch == -sampler.DefaultMagnitude && cmd.Roll == 0.2 && cmd.Throttle == 0.6
	}, waitFor, tick)

	h.console.HandleInput(sampler.InputEvent{Kind: sampler.FocusLost})
	require.Eventually(t, func() bool { return h.srv.LastCommand().Pitch == 0.1 }, waitFor, tick)

	// Idle ticks keep resending.
	n := h.srv.CommandCount()
	require.Eventually(t, func() bool { return h.srv.CommandCount() > n+3 }, waitFor, tick)
}

func TestModeFollowsBackend(t *testing.T) {
	h := start(t, nil)
	ctx := context.Background()

	require.NoError(t, h.console.RunScript(ctx, "hover()"))
	assert.Equal(t, mode.Script, h.console.Mode())
	assert.Equal(t, "hover()", h.srv.Script())

	require.Eventually(t, func() bool { return h.console.Status().Script.Running() }, waitFor, tick)

	// The backend changes its mind; the next poll wins.
	h.srv.SetMode(mode.Manual)
	require.Eventually(t, func() bool { return h.console.Mode() == mode.Manual }, waitFor, tick)

	require.NoError(t, h.console.SetMode(ctx, mode.RL))
	assert.Equal(t, mode.RL, h.srv.Mode())
}

func TestActivateModel(t *testing.T) {
	h := start(t, nil)
	ctx := context.Background()

	assert.Error(t, h.console.ActivateModel(ctx, "unknown"))

	require.NoError(t, h.console.SaveModel(ctx, "hover"))
	require.NoError(t, h.console.ActivateModel(ctx, "hover"))
	assert.Equal(t, mode.RL, h.console.Mode())

	models, err := h.console.Models(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hover", models.Active)
}

func TestStatusPollers(t *testing.T) {
	h := start(t, nil)
	ctx := context.Background()

	require.NoError(t, h.console.StartTraining(ctx))
	require.NoError(t, h.console.StartTests(ctx))
	h.srv.AddEpisode(2.5)

	require.Eventually(t, func() bool {
		st := h.console.Status()
		return st.Training.Running && st.Training.Episodes == 1 && st.Tests.Running
	}, waitFor, tick)
	require.Eventually(t, func() bool { return len(h.console.Metrics().Rewards) == 1 }, waitFor, tick)

	st := h.console.Status()
	assert.Equal(t, link.Open, st.Link.State)
	assert.False(t, st.PolledAt.IsZero())
}

func TestReconnectAfterOutage(t *testing.T) {
	h := start(t, nil)

	h.srv.DropAll()
	require.Eventually(t, func() bool { return h.console.Link().Stats().Reconnects >= 1 }, waitFor, tick)
	require.Eventually(t, func() bool {
		return h.console.Link().State() == link.Open && h.srv.PeerCount() == 1
	}, waitFor, tick)
}

func TestFlightLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flight.db")
	h := start(t, func(cfg *config.Config) { cfg.FlightLog.Path = path })

	for i := 0; i < 3; i++ {
		require.NoError(t, h.srv.BroadcastTelemetry(protocol.Telemetry{Pos: []float64{float64(i), 0, 0}}))
	}
	require.Eventually(t, func() bool {
		return h.console.Latest().Pose.Position.X == 2
	}, waitFor, tick)

	h.stop()

	store, err := flightlog.Open(path)
	require.NoError(t, err)
	defer store.Close()

	sessions, err := store.Sessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	frames, err := store.Frames(context.Background(), sessions[0].ID, 0)
	require.NoError(t, err)
	assert.Len(t, frames, 3)
}

func TestActionsFailQuietlyWhenBackendDown(t *testing.T) {
	cfg := testConfig("127.0.0.1:1")
	c, err := New(cfg)
	require.NoError(t, err)
	defer c.Close()

	err = c.RunScript(context.Background(), "x")
	assert.Error(t, err)
	assert.Equal(t, mode.Script, c.Mode(), "optimistic mode stays until the next poll")
}

func TestRunAfterClose(t *testing.T) {
	c, err := New(testConfig("127.0.0.1:1"))
	require.NoError(t, err)

	c.Close()
	c.Close()
	assert.ErrorIs(t, c.Run(context.Background()), ErrClosed)
}
