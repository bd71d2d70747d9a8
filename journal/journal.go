// Package journal is the diagnostic trail of a settle session: an
// append-only record of state transitions and the reasons behind them.
// It exists for debugging races, not for correctness — a session without a
// journal behaves identically.
//
// Each session gets its own Journal. Events are kept in memory (returned
// with the settle result), mirrored to slog, and optionally persisted
// asynchronously to SQLite through a shared Store.
package journal

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Event is a single trail entry.
type Event struct {
	SessionID string `json:"session_id"`
	Seq       int    `json:"seq"`
	Message   string `json:"message"`
	Attrs     string `json:"attrs,omitempty"`
	AtMicros  int64  `json:"at_us"`
}

// Journal records the trail for one settle session. Safe for concurrent use;
// the settle loop, the frame source, and the capture step all log into it.
type Journal struct {
	sessionID string
	logger    *slog.Logger
	store     *Store // nil: slog-only

	mu     sync.Mutex
	events []Event
}

// New creates a Journal for the given session. logger may be nil; store may
// be nil for slog-only operation.
func New(sessionID string, logger *slog.Logger, store *Store) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{
		sessionID: sessionID,
		logger:    logger.With("session", sessionID),
		store:     store,
	}
}

// Log appends an event. attrs are slog-style alternating key/value pairs.
func (j *Journal) Log(event string, attrs ...any) {
	var b []byte
	for i := 0; i+1 < len(attrs); i += 2 {
		if len(b) > 0 {
			b = append(b, ' ')
		}
		b = fmt.Appendf(b, "%v=%v", attrs[i], attrs[i+1])
	}

	j.mu.Lock()
	e := Event{
		SessionID: j.sessionID,
		Seq:       len(j.events) + 1,
		Message:   event,
		Attrs:     string(b),
		AtMicros:  time.Now().UnixMicro(),
	}
	j.events = append(j.events, e)
	j.mu.Unlock()

	j.logger.Debug(event, attrs...)
	if j.store != nil {
		j.store.RecordAsync(&e)
	}
}

// Events returns a copy of the trail so far.
func (j *Journal) Events() []Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Event, len(j.events))
	copy(out, j.events)
	return out
}

// SessionID returns the session this journal belongs to.
func (j *Journal) SessionID() string { return j.sessionID }
