package sched

import (
	"context"
	"sync"
	"testing"
	"time"
)

func testLoop() (*Loop, *ManualClock) {
	clock := NewManualClock(time.Unix(1700000000, 0))
	return New(WithClock(clock)), clock
}

func TestPost_RunsInOrder(t *testing.T) {
	l, _ := testLoop()

	var got []int
	l.Post(func() { got = append(got, 1) })
	l.Post(func() { got = append(got, 2) })
	l.Post(func() { got = append(got, 3) })
	l.RunUntilIdle()

	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("posted tasks ran out of order: %v", got)
	}
}

func TestPost_Reentrant(t *testing.T) {
	l, _ := testLoop()

	ran := false
	l.Post(func() {
		l.Post(func() { ran = true })
	})
	l.RunUntilIdle()

	if !ran {
		t.Fatal("task posted from inside a task did not run")
	}
}

func TestPostDelayed_FiresAtDeadline(t *testing.T) {
	l, clock := testLoop()

	var firedAt time.Time
	l.PostDelayed(func() { firedAt = clock.Now() }, 250*time.Millisecond)

	l.AdvanceBy(100 * time.Millisecond)
	if !firedAt.IsZero() {
		t.Fatal("delayed task fired before its deadline")
	}

	start := clock.Now()
	l.AdvanceBy(200 * time.Millisecond)
	if firedAt.IsZero() {
		t.Fatal("delayed task did not fire")
	}
	if got := firedAt.Sub(start); got != 150*time.Millisecond {
		t.Errorf("task observed wrong deadline: fired %v after, want 150ms", got)
	}
}

func TestPostDelayed_OrderAcrossDeadlines(t *testing.T) {
	l, _ := testLoop()

	var got []string
	l.PostDelayed(func() { got = append(got, "late") }, 100*time.Millisecond)
	l.PostDelayed(func() { got = append(got, "early") }, 10*time.Millisecond)
	l.PostDelayed(func() { got = append(got, "early2") }, 10*time.Millisecond)
	l.AdvanceBy(time.Second)

	want := []string{"early", "early2", "late"}
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("delayed order: got %v, want %v", got, want)
		}
	}
}

func TestHandleCancel_TaskNeverRuns(t *testing.T) {
	l, _ := testLoop()

	ran := false
	h := l.PostDelayed(func() { ran = true }, 50*time.Millisecond)
	h.Cancel()
	h.Cancel() // idempotent
	l.AdvanceBy(time.Second)

	if ran {
		t.Fatal("canceled task ran")
	}
}

func TestHandleCancel_NilSafe(t *testing.T) {
	var h *Handle
	h.Cancel()
}

func TestRun_ExecutesPostsFromOtherGoroutines(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go l.Run(ctx)

	var inLoop bool
	l.Post(func() {
		inLoop = l.InLoop()
		wg.Done()
	})
	wg.Wait()

	if !inLoop {
		t.Error("InLoop was false inside a running task")
	}
	if l.InLoop() {
		t.Error("InLoop was true on the test goroutine")
	}
}

func TestRun_DelayedTaskRealClock(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	done := make(chan struct{})
	l.PostDelayed(func() { close(done) }, 10*time.Millisecond)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("delayed task did not fire under Run")
	}
}

func TestAssertInLoop_PanicsOffLoop(t *testing.T) {
	l, _ := testLoop()
	l.Post(func() {}) // never pumped; loop has no owner

	defer func() {
		if recover() == nil {
			t.Fatal("AssertInLoop did not panic off-loop")
		}
	}()
	l.AssertInLoop()
}
