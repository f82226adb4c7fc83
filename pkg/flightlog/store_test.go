package flightlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-flightdeck/pkg/coords"
	"github.com/teslashibe/go-flightdeck/pkg/protocol"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "flight.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func telemetry(pos, rot []float64, battery float64) protocol.Telemetry {
	tel := protocol.Telemetry{Pos: pos, Rot: rot}
	tel.Set("battery", battery)
	return tel
}

func TestSessions(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	a, err := store.StartSession(ctx, "ws://sim-a/ws")
	require.NoError(t, err)
	b, err := store.StartSession(ctx, "ws://sim-b/ws")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	sessions, err := store.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "ws://sim-a/ws", sessions[0].Endpoint)
	assert.Equal(t, b, sessions[1].ID)
	assert.WithinDuration(t, time.Now(), sessions[0].StartedAt, time.Minute)
}

func TestRecordAndFrames(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	session, err := store.StartSession(ctx, "ws://sim/ws")
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.RecordAt(ctx, session, at, telemetry([]float64{1, 2, 3}, []float64{4, 5, 6}, 0.9)))
	require.NoError(t, store.RecordAt(ctx, session, at.Add(time.Second), telemetry(nil, nil, 0.8)))

	frames, err := store.Frames(ctx, session, 0)
	require.NoError(t, err)
	require.Len(t, frames, 2)

	assert.Equal(t, coords.Vec3{X: 1, Y: 2, Z: 3}, frames[0].Position)
	assert.Equal(t, coords.Vec3{X: 4, Y: 5, Z: 6}, frames[0].Rotation)
	assert.True(t, at.Equal(frames[0].ReceivedAt), "ReceivedAt = %v", frames[0].ReceivedAt)
	battery, ok := frames[0].Telemetry.Battery()
	assert.True(t, ok)
	assert.Equal(t, 0.9, battery)

	assert.Equal(t, coords.Vec3{}, frames[1].Position, "absent vectors are stored as zeros")
	assert.Nil(t, frames[1].Telemetry.Pos)

	limited, err := store.Frames(ctx, session, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	n, err := store.Count(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFramesAreScopedToSession(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	a, _ := store.StartSession(ctx, "a")
	b, _ := store.StartSession(ctx, "b")
	require.NoError(t, store.Record(ctx, a, telemetry([]float64{1, 1, 1}, nil, 1)))

	frames, err := store.Frames(ctx, b, 0)
	require.NoError(t, err)
	assert.Empty(t, frames)
}

func TestCloseIdempotent(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "flight.db"))
	require.NoError(t, err)

	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

func TestRecorder(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	rec, err := NewRecorder(ctx, store, "ws://sim/ws")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		rec.Handle(telemetry([]float64{float64(i), 0, 0}, nil, 1))
	}
	rec.Close()
	rec.Handle(telemetry(nil, nil, 1)) // after Close: ignored

	assert.Equal(t, uint64(10), rec.Written())
	assert.Equal(t, uint64(0), rec.Dropped())

	frames, err := store.Frames(ctx, rec.Session(), 0)
	require.NoError(t, err)
	require.Len(t, frames, 10)
	for i, f := range frames {
		assert.Equal(t, float64(i), f.Position.X)
	}
}
