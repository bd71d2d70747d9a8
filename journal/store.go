package journal

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"
)

// Schema for the settle_journal table. Call Store.Init() or apply manually.
const Schema = `
CREATE TABLE IF NOT EXISTS settle_journal (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	message TEXT NOT NULL,
	attrs TEXT,
	at_us INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_settle_journal_session ON settle_journal(session_id, seq);
CREATE INDEX IF NOT EXISTS idx_settle_journal_ts ON settle_journal(at_us);
`

// Store persists journal events to SQLite asynchronously. Shared across
// sessions; persistence failures are logged, never propagated — a failing
// journal store must not affect settle behaviour.
type Store struct {
	db   *sql.DB
	ch   chan *Event
	done chan struct{}
	once sync.Once
}

// NewStore creates a store backed by the given database connection.
func NewStore(db *sql.DB) *Store {
	s := &Store{
		db:   db,
		ch:   make(chan *Event, 1024),
		done: make(chan struct{}),
	}
	go s.flushLoop()
	return s
}

// Init creates the settle_journal table if it doesn't exist.
func (s *Store) Init() error {
	_, err := s.db.Exec(Schema)
	return err
}

// RecordAsync queues an event for persistence. Non-blocking; drops when the
// buffer is full to avoid backpressure on the settle loop.
func (s *Store) RecordAsync(e *Event) {
	select {
	case s.ch <- e:
	default:
	}
}

// Close drains the buffer and stops the flush goroutine.
func (s *Store) Close() error {
	s.once.Do(func() {
		close(s.ch)
		<-s.done
	})
	return nil
}

// Trail reads back the persisted events of one session, in order.
func (s *Store) Trail(ctx context.Context, sessionID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, seq, message, attrs, at_us
		FROM settle_journal WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.SessionID, &e.Seq, &e.Message, &e.Attrs, &e.AtMicros); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) flushLoop() {
	defer close(s.done)

	batch := make([]*Event, 0, 64)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-s.ch:
			if !ok {
				s.flushBatch(batch)
				return
			}
			batch = append(batch, e)
			if len(batch) >= 64 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *Store) flushBatch(batch []*Event) {
	if len(batch) == 0 {
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("journal store: begin tx", "error", err)
		return
	}

	stmt, err := tx.Prepare(`INSERT INTO settle_journal (session_id, seq, message, attrs, at_us)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		slog.Error("journal store: prepare", "error", err)
		return
	}
	defer stmt.Close()

	for _, e := range batch {
		if _, err := stmt.Exec(e.SessionID, e.Seq, e.Message, e.Attrs, e.AtMicros); err != nil {
			slog.Error("journal store: insert", "error", err)
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("journal store: commit", "error", err)
	}
}
