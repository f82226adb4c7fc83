package link

import (
	"fmt"
	"sync/atomic"

	"github.com/dustin/go-humanize"
)

type counters struct {
	connects        atomic.Uint64
	reconnects      atomic.Uint64
	framesIn        atomic.Uint64
	framesOut       atomic.Uint64
	bytesIn         atomic.Uint64
	parseErrors     atomic.Uint64
	dropped         atomic.Uint64
	commandsDropped atomic.Uint64
}

// Stats is a snapshot of channel counters.
type Stats struct {
	State           State  `json:"state"`
	Session         string `json:"session"`
	Connects        uint64 `json:"connects"`
	Reconnects      uint64 `json:"reconnects"`
	FramesIn        uint64 `json:"frames_in"`
	FramesOut       uint64 `json:"frames_out"`
	BytesIn         uint64 `json:"bytes_in"`
	ParseErrors     uint64 `json:"parse_errors"`
	Dropped         uint64 `json:"dropped"`
	CommandsDropped uint64 `json:"commands_dropped"`
}

// Stats returns the channel's counters.
func (c *Channel) Stats() Stats {
	c.mu.Lock()
	state, session := c.state, c.session
	c.mu.Unlock()

	return Stats{
		State:           state,
		Session:         session,
		Connects:        c.stats.connects.Load(),
		Reconnects:      c.stats.reconnects.Load(),
		FramesIn:        c.stats.framesIn.Load(),
		FramesOut:       c.stats.framesOut.Load(),
		BytesIn:         c.stats.bytesIn.Load(),
		ParseErrors:     c.stats.parseErrors.Load(),
		Dropped:         c.stats.dropped.Load(),
		CommandsDropped: c.stats.commandsDropped.Load(),
	}
}

// String renders the snapshot for a status log line.
func (s Stats) String() string {
	return fmt.Sprintf("%s in=%s (%s) out=%s dropped=%s parse_errors=%d reconnects=%d",
		s.State,
		humanize.Comma(int64(s.FramesIn)),
		humanize.Bytes(s.BytesIn),
		humanize.Comma(int64(s.FramesOut)),
		humanize.Comma(int64(s.Dropped)),
		s.ParseErrors,
		s.Reconnects,
	)
}

// MarshalText lets State render as its name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
