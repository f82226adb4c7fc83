// Package flightlog records link telemetry to a sqlite database.
package flightlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/teslashibe/go-flightdeck/pkg/coords"
	"github.com/teslashibe/go-flightdeck/pkg/protocol"
)

// Session is one console run against one endpoint.
type Session struct {
	ID        int64     `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Endpoint  string    `json:"endpoint"`
}

// Frame is one recorded telemetry frame. Position and Rotation are in the
// backend's frame, as received.
type Frame struct {
	ReceivedAt time.Time          `json:"received_at"`
	Position   coords.Vec3        `json:"position"`
	Rotation   coords.Vec3        `json:"rotation"`
	Telemetry  protocol.Telemetry `json:"telemetry"`
}

// Store is a sqlite-backed flight log.
type Store struct {
	db *sql.DB

	closeOnce sync.Once
	closeErr  error
}

// Open opens (creating if needed) the flight log at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", path, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"))
	if err != nil {
		return nil, fmt.Errorf("opening flight log: %w", err)
	}
	// A single writer keeps sqlite happy.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(initSchemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return &Store{db: db}, nil
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

// StartSession creates a new session row.
func (s *Store) StartSession(ctx context.Context, endpoint string) (sessionID int64, err error) {
	result, err := s.db.ExecContext(ctx, insertSessionSQL, time.Now().UTC(), endpoint)
	if err != nil {
		return 0, fmt.Errorf("inserting session: %w", err)
	}
	sessionID, err = result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting session ID: %w", err)
	}
	return sessionID, nil
}

// Sessions lists every recorded session, oldest first.
func (s *Store) Sessions(ctx context.Context) (sessions []Session, err error) {
	rows, err := s.db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sess Session
		if err = rows.Scan(&sess.ID, &sess.StartedAt, &sess.Endpoint); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Record stores one telemetry frame under sessionID.
func (s *Store) Record(ctx context.Context, sessionID int64, t protocol.Telemetry) error {
	return s.RecordAt(ctx, sessionID, time.Now(), t)
}

// RecordAt stores one telemetry frame with an explicit receive time.
func (s *Store) RecordAt(ctx context.Context, sessionID int64, at time.Time, t protocol.Telemetry) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshaling telemetry: %w", err)
	}
	pos, rot := coords.FromSlice(t.Pos), coords.FromSlice(t.Rot)

	if _, err := s.db.ExecContext(ctx, insertFrameSQL,
		sessionID, at.UTC(),
		pos.X, pos.Y, pos.Z,
		rot.X, rot.Y, rot.Z,
		string(raw),
	); err != nil {
		return fmt.Errorf("inserting frame: %w", err)
	}
	return nil
}

// Frames returns up to limit frames of a session in arrival order.
// A non-positive limit returns every frame.
func (s *Store) Frames(ctx context.Context, sessionID int64, limit int) (frames []Frame, err error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, selectFramesSQL, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying frames: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var f Frame
		var raw string
		if err = rows.Scan(&f.ReceivedAt,
			&f.Position.X, &f.Position.Y, &f.Position.Z,
			&f.Rotation.X, &f.Rotation.Y, &f.Rotation.Z,
			&raw,
		); err != nil {
			return nil, fmt.Errorf("scanning frame: %w", err)
		}
		if err = json.Unmarshal([]byte(raw), &f.Telemetry); err != nil {
			return nil, fmt.Errorf("decoding frame: %w", err)
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// Count returns the number of frames recorded for a session.
func (s *Store) Count(ctx context.Context, sessionID int64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, countFramesSQL, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting frames: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}
