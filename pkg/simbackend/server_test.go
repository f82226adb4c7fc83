package simbackend

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-flightdeck/pkg/backend"
	"github.com/teslashibe/go-flightdeck/pkg/mode"
	"github.com/teslashibe/go-flightdeck/pkg/protocol"
)

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	srv := New()
	addr, err := srv.Start("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { srv.Shutdown() })
	return srv, "ws://" + addr.String() + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestNew(t *testing.T) {
	srv := New()

	if srv.PeerCount() != 0 {
		t.Error("PeerCount should be 0 initially")
	}
	if srv.Mode() != mode.Manual {
		t.Errorf("Mode() = %s, want manual", srv.Mode())
	}
	stats := srv.GetStats()
	if stats.FramesReceived != 0 || stats.FramesSent != 0 {
		t.Errorf("GetStats() = %+v, want zeros", stats)
	}
}

func TestWebSocketUpgradeRequired(t *testing.T) {
	srv := New()

	req := httptest.NewRequest("GET", "/ws", nil)
	resp, err := srv.App().Test(req)
	require.NoError(t, err)

	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Errorf("Expected 426, got %d", resp.StatusCode)
	}
}

func TestCommandRecorded(t *testing.T) {
	srv, url := startServer(t)
	got := make(chan protocol.Command, 1)
	srv.OnCommand(func(c protocol.Command) { got <- c })

	conn := dial(t, url)
	data, err := protocol.Command{Throttle: 0.7, Yaw: -0.1}.Bytes()
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))

	select {
	case cmd := <-got:
		assert.Equal(t, protocol.Command{Throttle: 0.7, Yaw: -0.1}, cmd)
	case <-time.After(2 * time.Second):
		t.Fatal("command never arrived")
	}
	assert.Equal(t, protocol.Command{Throttle: 0.7, Yaw: -0.1}, srv.LastCommand())
	assert.Equal(t, uint64(1), srv.CommandCount())
}

func TestNonCommandFramesIgnored(t *testing.T) {
	srv, url := startServer(t)
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`garbage`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"telemetry"}`)))
	data, _ := protocol.Command{Pitch: 0.1}.Bytes()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))

	require.Eventually(t, func() bool { return srv.CommandCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(1), srv.GetStats().BadFrames)
}

func TestBroadcastTelemetry(t *testing.T) {
	srv, url := startServer(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return srv.PeerCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	tel := NewVehicle().Telemetry(1.5)
	require.NoError(t, srv.BroadcastTelemetry(tel))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	msg, err := protocol.ParseMessage(data)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeTelemetry, msg.Type)

	got, err := msg.Telemetry()
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0}, got.Pos)
	simTime, ok := got.SimTime()
	assert.True(t, ok)
	assert.Equal(t, 1.5, simTime)
}

func TestDropAll(t *testing.T) {
	srv, url := startServer(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return srv.PeerCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	srv.DropAll()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	require.Eventually(t, func() bool { return srv.PeerCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	data, _ := io.ReadAll(resp.Body)
	if len(data) > 0 {
		json.Unmarshal(data, &out)
	}
	return resp.StatusCode, out
}

func TestControlModeAPI(t *testing.T) {
	srv := New()
	app := srv.App()

	code, body := doJSON(t, app, "GET", "/control/mode", "")
	assert.Equal(t, 200, code)
	assert.Equal(t, "manual", body["mode"])

	code, _ = doJSON(t, app, "POST", "/control/mode", `{"mode":"rl"}`)
	assert.Equal(t, 200, code)
	assert.Equal(t, mode.RL, srv.Mode())

	code, _ = doJSON(t, app, "POST", "/control/mode", `{"mode":"warp"}`)
	assert.Equal(t, 400, code)
	assert.Equal(t, mode.RL, srv.Mode())
}

func TestScriptAPI(t *testing.T) {
	srv := New()
	app := srv.App()

	code, _ := doJSON(t, app, "POST", "/scripts/run", `{"source":"def step(t): pass"}`)
	assert.Equal(t, 200, code)
	assert.Equal(t, "def step(t): pass", srv.Script())
	assert.Equal(t, mode.Script, srv.Mode())

	_, body := doJSON(t, app, "GET", "/scripts/status", "")
	assert.Equal(t, "running", body["status"])

	doJSON(t, app, "POST", "/scripts/stop", "")
	_, body = doJSON(t, app, "GET", "/scripts/status", "")
	assert.Equal(t, "stopped", body["status"])
	assert.Equal(t, mode.Manual, srv.Mode())
}

func TestModelsAPI(t *testing.T) {
	srv := New()
	app := srv.App()

	code, _ := doJSON(t, app, "POST", "/rl/models/activate", `{"name":"hover"}`)
	assert.Equal(t, 404, code)

	code, _ = doJSON(t, app, "POST", "/rl/models/save", `{"name":"hover"}`)
	assert.Equal(t, 200, code)

	code, _ = doJSON(t, app, "POST", "/rl/models/activate", `{"name":"hover"}`)
	assert.Equal(t, 200, code)
	assert.Equal(t, mode.RL, srv.Mode())

	_, body := doJSON(t, app, "GET", "/rl/models", "")
	assert.Equal(t, "hover", body["active"])

	code, _ = doJSON(t, app, "POST", "/rl/models/save", `{}`)
	assert.Equal(t, 400, code)
}

func TestAddEpisodeMetrics(t *testing.T) {
	srv := New()

	srv.AddEpisode(1)
	srv.AddEpisode(3)

	req := httptest.NewRequest("GET", "/rl/metrics", nil)
	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var m backend.Metrics
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	assert.Equal(t, []float64{1, 3}, m.Rewards)
	assert.Equal(t, []float64{1, 2}, m.Rolling)

	_, body := doJSON(t, srv.App(), "GET", "/rl/status", "")
	assert.Equal(t, float64(2), body["episodes"])
	assert.Equal(t, float64(3), body["best_reward"])
}

func TestRecordingPlayback(t *testing.T) {
	srv := New()
	app := srv.App()

	doJSON(t, app, "POST", "/recordings/start", "")
	srv.api.record(NewVehicle().Telemetry(0.1))
	srv.api.record(NewVehicle().Telemetry(0.2))
	doJSON(t, app, "POST", "/recordings/stop", "")

	_, body := doJSON(t, app, "GET", "/recordings/status", "")
	assert.Equal(t, float64(2), body["frames"])

	_, ok := srv.api.nextPlayback()
	assert.False(t, ok, "no playback before play")

	doJSON(t, app, "POST", "/recordings/play", "")
	for _, want := range []float64{0.1, 0.2, 0.1} {
		frame, ok := srv.api.nextPlayback()
		require.True(t, ok)
		got, _ := frame.SimTime()
		assert.Equal(t, want, got)
	}

	doJSON(t, app, "POST", "/recordings/clear", "")
	_, body = doJSON(t, app, "GET", "/recordings/status", "")
	assert.Equal(t, float64(0), body["frames"])
	assert.Equal(t, false, body["playback"])
}

func TestSceneSaveLoad(t *testing.T) {
	srv := New()
	app := srv.App()

	_, body := doJSON(t, app, "POST", "/scene/load", "")
	assert.Equal(t, "missing", body["status"])

	code, _ := doJSON(t, app, "POST", "/scene",
		`{"bounds":{"min_xyz":[0,0,0],"max_xyz":[1,1,1]},"obstacles":[{"center":[0.5,0.5,0.5],"radius":0.1}]}`)
	assert.Equal(t, 200, code)

	_, body = doJSON(t, app, "POST", "/scene/save", "")
	assert.Equal(t, "saved", body["status"])

	doJSON(t, app, "POST", "/scene", `{"bounds":{"min_xyz":[0,0,0],"max_xyz":[9,9,9]},"obstacles":[]}`)
	_, body = doJSON(t, app, "POST", "/scene/load", "")
	assert.Equal(t, "loaded", body["status"])

	_, body = doJSON(t, app, "GET", "/scene", "")
	obstacles := body["obstacles"].([]any)
	assert.Len(t, obstacles, 1)
}
