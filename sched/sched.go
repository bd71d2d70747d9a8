// Package sched provides the single-sequence cooperative task loop that the
// settle state machine runs on. All state mutation in a settle session happens
// on one loop; "concurrency" is racing asynchronous completions posted onto
// it, never parallel execution.
//
// The loop accepts immediate and delayed tasks from any goroutine. Delayed
// tasks return a Handle with an idempotent Cancel. Time is read through an
// injectable Clock so tests can drive the loop with virtual time.
package sched

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Task is a unit of work executed on the loop.
type Task func()

// Loop executes tasks on a single logical sequence.
//
// In production a Loop is driven by Run in a dedicated goroutine. Tests drive
// it synchronously with RunUntilIdle and AdvanceBy instead, which makes
// delayed-task arithmetic exact.
type Loop struct {
	clock Clock

	mu     sync.Mutex
	posted []Task
	timers timerHeap
	seq    uint64

	wake chan struct{}
	gid  atomic.Uint64
}

// Option configures a Loop.
type Option func(*Loop)

// WithClock sets the time source. Default: the system clock.
func WithClock(c Clock) Option {
	return func(l *Loop) { l.clock = c }
}

// New creates a Loop. It does nothing until driven by Run or the test pump
// methods.
func New(opts ...Option) *Loop {
	l := &Loop{
		clock: SystemClock{},
		wake:  make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Now returns the loop's current time.
func (l *Loop) Now() time.Time {
	return l.clock.Now()
}

// Post schedules fn to run on the loop as soon as possible. Safe from any
// goroutine, including from inside a running task.
func (l *Loop) Post(fn Task) {
	l.mu.Lock()
	l.posted = append(l.posted, fn)
	l.mu.Unlock()
	l.notify()
}

// PostDelayed schedules fn to run on the loop after delay. The returned
// Handle cancels the task; cancellation after the task has run is a no-op.
func (l *Loop) PostDelayed(fn Task, delay time.Duration) *Handle {
	if delay < 0 {
		delay = 0
	}
	h := &Handle{fn: fn, at: l.clock.Now().Add(delay)}
	l.mu.Lock()
	l.seq++
	h.seq = l.seq
	heap.Push(&l.timers, h)
	l.mu.Unlock()
	l.notify()
	return h
}

func (l *Loop) notify() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run drives the loop until ctx is done. It must be called at most once,
// from the goroutine that will own the sequence.
func (l *Loop) Run(ctx context.Context) {
	l.gid.Store(curGID())
	defer l.gid.Store(0)

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		fn, wait, ok := l.next()
		if fn != nil {
			fn()
			continue
		}

		if ok {
			timer.Reset(wait)
			select {
			case <-l.wake:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
			case <-timer.C:
			case <-ctx.Done():
				return
			}
		} else {
			select {
			case <-l.wake:
			case <-ctx.Done():
				return
			}
		}
	}
}

// next pops the next runnable task. When nothing is runnable it returns the
// wait until the earliest pending timer (ok=true) or ok=false when no timers
// are pending.
func (l *Loop) next() (fn Task, wait time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.posted) > 0 {
		fn = l.posted[0]
		l.posted = l.posted[1:]
		return fn, 0, false
	}

	now := l.clock.Now()
	for l.timers.Len() > 0 {
		top := l.timers[0]
		if top.canceled.Load() {
			heap.Pop(&l.timers)
			continue
		}
		if top.at.After(now) {
			return nil, top.at.Sub(now), true
		}
		heap.Pop(&l.timers)
		return top.fn, 0, false
	}
	return nil, 0, false
}

// InLoop reports whether the caller is running on the loop's sequence.
func (l *Loop) InLoop() bool {
	g := l.gid.Load()
	return g != 0 && g == curGID()
}

// AssertInLoop panics when called off the loop's sequence. The settle state
// machine calls this at every entry point; sequence confinement is the whole
// correctness argument, so violations are programming bugs.
func (l *Loop) AssertInLoop() {
	if !l.InLoop() {
		panic("sched: task executed off the owning loop")
	}
}

// RunUntilIdle synchronously runs every posted task and every timer due at
// the current clock reading, including tasks they post in turn. Test pump;
// must not be mixed with a concurrent Run.
func (l *Loop) RunUntilIdle() {
	prev := l.gid.Load()
	l.gid.Store(curGID())
	defer l.gid.Store(prev)

	for {
		fn, _, _ := l.next()
		if fn == nil {
			return
		}
		fn()
	}
}

// AdvanceBy moves a ManualClock forward by d, running tasks as their
// deadlines are crossed (each turn observes its own deadline as "now", so
// elapsed-time arithmetic inside tasks is exact). Panics when the loop was
// not built with a ManualClock.
func (l *Loop) AdvanceBy(d time.Duration) {
	mc, okc := l.clock.(*ManualClock)
	if !okc {
		panic("sched: AdvanceBy requires a ManualClock")
	}

	target := mc.Now().Add(d)
	for {
		l.RunUntilIdle()

		l.mu.Lock()
		var next time.Time
		found := false
		for l.timers.Len() > 0 && l.timers[0].canceled.Load() {
			heap.Pop(&l.timers)
		}
		if l.timers.Len() > 0 {
			next = l.timers[0].at
			found = true
		}
		l.mu.Unlock()

		if !found || next.After(target) {
			break
		}
		mc.Set(next)
	}
	mc.Set(target)
	l.RunUntilIdle()
}

// Handle identifies a delayed task. Cancel is idempotent and safe from any
// goroutine; a canceled task never runs.
type Handle struct {
	fn       Task
	at       time.Time
	seq      uint64
	idx      int
	canceled atomic.Bool
}

// Cancel prevents the task from running if it has not run yet.
func (h *Handle) Cancel() {
	if h != nil {
		h.canceled.Store(true)
	}
}

// timerHeap orders handles by deadline, then by posting order.
type timerHeap []*Handle

func (t timerHeap) Len() int { return len(t) }
func (t timerHeap) Less(i, j int) bool {
	if t[i].at.Equal(t[j].at) {
		return t[i].seq < t[j].seq
	}
	return t[i].at.Before(t[j].at)
}
func (t timerHeap) Swap(i, j int) {
	t[i], t[j] = t[j], t[i]
	t[i].idx = i
	t[j].idx = j
}
func (t *timerHeap) Push(x any) {
	h := x.(*Handle)
	h.idx = len(*t)
	*t = append(*t, h)
}
func (t *timerHeap) Pop() any {
	old := *t
	n := len(old)
	h := old[n-1]
	old[n-1] = nil
	*t = old[:n-1]
	return h
}
