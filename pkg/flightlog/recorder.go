package flightlog

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/teslashibe/go-flightdeck/internal/log"
	"github.com/teslashibe/go-flightdeck/pkg/protocol"
)

// queueSize bounds frames waiting for the writer. When it is full new
// frames are dropped so the link reader never blocks on disk.
const queueSize = 256

// Recorder writes telemetry to a Store on its own goroutine.
type Recorder struct {
	store   *Store
	session int64
	log     *logrus.Entry

	mu     sync.RWMutex
	closed bool
	queue  chan protocol.Telemetry
	done   chan struct{}

	written atomic.Uint64
	dropped atomic.Uint64
}

// NewRecorder starts a session on store and a writer for it.
func NewRecorder(ctx context.Context, store *Store, endpoint string) (*Recorder, error) {
	session, err := store.StartSession(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	r := &Recorder{
		store:   store,
		session: session,
		log:     log.Component("flightlog").WithField("session", session),
		queue:   make(chan protocol.Telemetry, queueSize),
		done:    make(chan struct{}),
	}
	go r.loop()
	r.log.WithField("endpoint", endpoint).Info("flight log session started")
	return r, nil
}

// Session returns the session this recorder writes to.
func (r *Recorder) Session() int64 {
	return r.session
}

// Handle queues one frame. It never blocks; it is meant to be passed to
// link.Channel.OnTelemetry.
func (r *Recorder) Handle(t protocol.Telemetry) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}

	select {
	case r.queue <- t:
	default:
		r.dropped.Add(1)
	}
}

func (r *Recorder) loop() {
	for t := range r.queue {
		if err := r.store.Record(context.Background(), r.session, t); err != nil {
			r.dropped.Add(1)
			r.log.WithError(err).Warn("failed to record frame")
			continue
		}
		r.written.Add(1)
	}
	close(r.done)
}

// Close flushes queued frames and stops the writer. The store stays open.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	<-r.done
	r.log.WithFields(logrus.Fields{
		"written": r.written.Load(),
		"dropped": r.dropped.Load(),
	}).Info("flight log session closed")
}

// Written returns how many frames reached the database.
func (r *Recorder) Written() uint64 { return r.written.Load() }

// Dropped returns how many frames were lost to a full queue or a write error.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }
