package journal

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func TestJournal_EventsOrderedWithAttrs(t *testing.T) {
	j := New("sess_1", nil, nil)

	j.Log("settle: state", "from", "Initial", "to", "MonitorStartDelay")
	j.Log("settle: network requests", "count", 3)

	evs := j.Events()
	if len(evs) != 2 {
		t.Fatalf("got %d events, want 2", len(evs))
	}
	if evs[0].Seq != 1 || evs[1].Seq != 2 {
		t.Errorf("sequence numbers: %d, %d", evs[0].Seq, evs[1].Seq)
	}
	if evs[0].Attrs != "from=Initial to=MonitorStartDelay" {
		t.Errorf("attrs: %q", evs[0].Attrs)
	}
	if evs[1].Message != "settle: network requests" {
		t.Errorf("message: %q", evs[1].Message)
	}
}

func TestJournal_EventsReturnsCopy(t *testing.T) {
	j := New("sess_2", nil, nil)
	j.Log("a")

	evs := j.Events()
	evs[0].Message = "mutated"

	if j.Events()[0].Message != "a" {
		t.Error("Events exposed internal storage")
	}
}

func TestStore_PersistsAndReadsTrail(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	store := NewStore(db)
	if err := store.Init(); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	j := New("sess_3", nil, store)
	j.Log("settle: state", "to", "Done")
	j.Log("settle: finished")

	// Close drains the async buffer.
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	trail, err := store.Trail(ctx, "sess_3")
	if err != nil {
		t.Fatalf("read trail: %v", err)
	}
	if len(trail) != 2 {
		t.Fatalf("got %d rows, want 2", len(trail))
	}
	if trail[0].Message != "settle: state" || trail[0].Attrs != "to=Done" {
		t.Errorf("row 0: %+v", trail[0])
	}
	if trail[1].Seq != 2 {
		t.Errorf("row 1 seq: %d", trail[1].Seq)
	}
}
