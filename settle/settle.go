// Package settle decides when a live document has settled enough to be
// safely observed — screenshotted, serialised, extracted — after an action
// was performed against it, and then invokes a completion callback exactly
// once.
//
// The decision coordinates several independent, racing readiness signals
// (pending navigation, in-flight network activity, main-thread idleness,
// optional paint stability) under a strict timeout budget, while tolerating
// the document being navigated away from, frozen, or torn down at any point.
// Every termination path — genuine stability, either timeout, or teardown —
// is a normal one and converges on the single callback invocation; the
// caller only learns *when* it is safe to proceed, never *why*.
//
// A Monitor is single-use and sequence-confined to a sched.Loop: all state
// lives on the loop, completions race as posted tasks rather than threads,
// and a completion that arrives after the machine has finished is a no-op.
package settle

import (
	"fmt"
	"time"

	"github.com/hazyhaar/domsettle/sched"
)

// Monitor is the stability state machine. Create one per observation with
// NewMonitor; NotifyWhenStable may be called at most once.
type Monitor struct {
	loop    *sched.Loop
	frame   Frame
	paint   PaintMonitor // nil when unsupported; discarded under MinWait
	journal Journal
	cfg     Timeouts

	state            State
	isStableCallback func()

	// Baseline in-flight request count, snapshotted at construction so that
	// requests started by the observed action itself are what we wait on.
	startingRequestCount int

	monitoringStartDelay time.Duration
	startMonitoringTime  time.Time

	// Sticky: set the moment the document announces it is going away.
	frameGone bool

	// At most one live handle per wait kind. All are canceled on Done.
	networkIdle       *cancelable
	mainThreadIdle    *cancelableIdle
	startDelayHandle  *sched.Handle
	globalTimeout     *sched.Handle
	mainThreadTimeout *sched.Handle
	paintHandle       *sched.Handle
	invokeDelayHandle *sched.Handle
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithPaintMonitor attaches a visual-stability source that races the
// network/main-thread path.
func WithPaintMonitor(pm PaintMonitor) Option {
	return func(m *Monitor) { m.paint = pm }
}

// WithJournal attaches a diagnostic trail.
func WithJournal(j Journal) Option {
	return func(m *Monitor) { m.journal = j }
}

// WithTimeouts overrides the default feature values.
func WithTimeouts(t Timeouts) Option {
	return func(m *Monitor) { m.cfg = t }
}

// NewMonitor creates a monitor bound to loop and snapshots the baseline
// request count from frame.
func NewMonitor(loop *sched.Loop, frame Frame, opts ...Option) *Monitor {
	m := &Monitor{
		loop:    loop,
		frame:   frame,
		journal: nopJournal{},
		state:   StateInitial,
	}
	for _, o := range opts {
		o(m)
	}
	m.cfg.defaults()

	m.startingRequestCount = frame.ActiveRequestCount()
	m.journal.Log("settle: monitor created",
		"requests_before", m.startingRequestCount)
	return m
}

// NotifyWhenStable requests that callback be invoked once the document is
// deemed stable enough for an observation, or is no longer active. It may be
// called exactly once; a second call panics.
//
// initialDelay is waited out before monitoring begins, letting a
// just-performed action take effect before the machine starts watching it.
//
// The callback fires synchronously within the loop turn that finishes the
// machine, never deferred to a later turn.
func (m *Monitor) NotifyWhenStable(initialDelay time.Duration, callback func()) {
	m.loop.Post(func() {
		if m.state != StateInitial {
			panic(fmt.Sprintf("settle: NotifyWhenStable in state %v", m.state))
		}
		if m.isStableCallback != nil {
			panic("settle: callback already registered")
		}
		m.isStableCallback = callback

		if m.frameGone {
			m.moveToState(StateFrameGoingAway)
			return
		}

		m.monitoringStartDelay = initialDelay

		if m.paint != nil {
			m.paint.Start()
		}

		m.globalTimeout = m.loop.PostDelayed(
			m.moveClosure(StateTimeoutGlobal), m.cfg.Global)
		m.moveToState(StateMonitorStartDelay)
	})
}

// NavigationCommitted reports that a navigation committed in the observed
// frame. A commit means a new document replaced the one being observed, so
// the wait finishes via the going-away path.
func (m *Monitor) NavigationCommitted() {
	m.loop.Post(func() { m.onGoingAway("navigation committed") })
}

// NavigationFailed reports that a provisional load failed. Unlike a commit
// this keeps the original document alive, so it only advances a pending
// WaitForNavigation into monitoring.
func (m *Monitor) NavigationFailed() {
	m.loop.Post(func() {
		if m.state != StateWaitForNavigation {
			return
		}
		m.journal.Log("settle: provisional load failed")
		m.moveToState(StateStartMonitoring)
	})
}

// DocumentFrozen reports that the document was frozen or stored into a
// background cache. Treated the same as a committed navigation.
func (m *Monitor) DocumentFrozen() {
	m.loop.Post(func() { m.onGoingAway("document frozen") })
}

// OwnerGoingAway reports that the owning frame is being destroyed.
func (m *Monitor) OwnerGoingAway() {
	m.loop.Post(func() { m.onGoingAway("owner destroyed") })
}

// Close tears the monitor down. If a callback is still pending it fires via
// the going-away path before resources are released. Safe to call at any
// time, from any goroutine, and more than once.
func (m *Monitor) Close() {
	m.loop.Post(func() {
		if m.state == StateDone {
			return
		}
		m.onGoingAway("monitor closed")
		m.cleanup()
	})
}

// onGoingAway records the sticky flag and, once a callback exists, drives
// the machine to its end. Before NotifyWhenStable there is nothing to
// satisfy, so only the flag is recorded.
func (m *Monitor) onGoingAway(reason string) {
	if m.state == StateDone {
		return
	}
	m.frameGone = true
	if m.state == StateInitial {
		m.journal.Log("settle: going away before NotifyWhenStable", "reason", reason)
		return
	}
	m.journal.Log("settle: going away", "reason", reason, "state", m.state.String())
	m.moveToState(StateFrameGoingAway)
}

// onPaintStable is handed to the paint monitor. Re-posted through the loop
// because WaitForStable may complete synchronously during registration.
func (m *Monitor) onPaintStable() {
	if m.state == StateDone {
		return
	}
	m.paintHandle = m.loop.PostDelayed(
		m.moveClosure(StatePaintStabilityReached), 0)
}

// moveClosure returns a closure that synchronously moves to the given state
// when run. The Done check inside moveToState is what makes a stale closure
// — a timeout firing after the real completion path already finished — a
// guaranteed no-op.
func (m *Monitor) moveClosure(next State) func() {
	return func() { m.moveToState(next) }
}

func (m *Monitor) moveToState(next State) {
	m.loop.AssertInLoop()

	if m.state == StateDone {
		return
	}
	if !validTransition(m.state, next) {
		panic(fmt.Sprintf("settle: illegal transition %v -> %v", m.state, next))
	}

	m.journal.Log("settle: state", "from", m.state.String(), "to", next.String())
	m.state = next

	switch m.state {
	case StateMonitorStartDelay:
		m.startDelayHandle = m.loop.PostDelayed(
			m.moveClosure(StateWaitForNavigation), m.monitoringStartDelay)

	case StateWaitForNavigation:
		if !m.frame.NavigationInFlight() {
			m.moveToState(StateStartMonitoring)
			break
		}
		// Parked: NavigationFailed resumes into StartMonitoring, while a
		// commit replaces the document and ends the wait via going-away.

	case StateStartMonitoring:
		m.startMonitoringTime = m.loop.Now()
		afterCount := m.frame.ActiveRequestCount()
		m.journal.Log("settle: network requests", "count", afterCount,
			"baseline", m.startingRequestCount)

		// The paint sampler races the network/main-thread path from here;
		// whichever completion runs first wins and the loser observes a
		// state its transition no longer applies to.
		if m.paint != nil {
			m.paint.WaitForStable(m.onPaintStable)
		}

		if afterCount > m.startingRequestCount {
			m.moveToState(StateWaitForNetworkIdle)
		} else {
			m.moveToState(StateWaitForMainThreadIdle)
		}

	case StateWaitForNetworkIdle:
		m.networkIdle = newCancelable(m.moveClosure(StateWaitForMainThreadIdle))
		m.frame.RequestNetworkIdle(m.networkIdle.Invoke)

	case StateWaitForMainThreadIdle:
		// MinWait replaces the local timeout strategy entirely.
		if m.cfg.MinWait == 0 {
			m.mainThreadTimeout = m.loop.PostDelayed(
				m.moveClosure(StateTimeoutMainThread), m.cfg.MainThread)
		}
		m.mainThreadIdle = newCancelableIdle(func(time.Time) {
			m.moveToState(StateMaybeDelayCallback)
		})
		m.frame.PostIdleTask(m.mainThreadIdle.Invoke)

	case StateTimeoutGlobal:
		m.moveToState(StateInvokeCallback)

	case StateTimeoutMainThread:
		m.moveToState(StateInvokeCallback)

	case StateMaybeDelayCallback:
		// Release the one-per-kind idle registration slots.
		m.networkIdle.Cancel()
		m.mainThreadIdle.Cancel()

		var delay time.Duration
		if m.cfg.MinWait == 0 {
			delay = m.cfg.InvokeCallbackDelay
		} else {
			// Idleness arrived; paint stability can no longer shortcut
			// anything, so drop the sampler and its pending completion.
			if m.paint != nil {
				m.paint.Close()
				m.paint = nil
			}
			m.paintHandle.Cancel()

			elapsed := m.loop.Now().Sub(m.startMonitoringTime)
			delay = m.cfg.MinWait - elapsed
		}

		if delay > 0 {
			m.invokeDelayHandle = m.loop.PostDelayed(
				m.moveClosure(StateInvokeCallback), delay)
		} else {
			m.moveToState(StateInvokeCallback)
		}

	case StatePaintStabilityReached:
		if m.cfg.MinWait == 0 {
			m.moveToState(StateInvokeCallback)
		} else {
			m.moveToState(StateMaybeDelayCallback)
		}

	case StateFrameGoingAway:
		if !m.frameGone {
			panic("settle: FrameGoingAway without the going-away flag")
		}
		m.moveToState(StateInvokeCallback)

	case StateInvokeCallback:
		if m.isStableCallback == nil {
			panic("settle: InvokeCallback with no callback")
		}
		// Run synchronously within this turn so a reply paired with the
		// callback is observed before any subsequent disconnect.
		cb := m.isStableCallback
		m.isStableCallback = nil
		cb()

		m.moveToState(StateDone)

	case StateDone:
		if m.isStableCallback != nil {
			panic("settle: Done with an unconsumed callback")
		}
		m.cleanup()

	default:
		panic(fmt.Sprintf("settle: unhandled state %v", m.state))
	}
}

// cleanup cancels every outstanding handle. Entered from Done and,
// defensively, from Close; must stay idempotent.
func (m *Monitor) cleanup() {
	m.networkIdle.Cancel()
	m.mainThreadIdle.Cancel()
	m.startDelayHandle.Cancel()
	m.globalTimeout.Cancel()
	m.mainThreadTimeout.Cancel()
	m.paintHandle.Cancel()
	m.invokeDelayHandle.Cancel()
	if m.paint != nil {
		m.paint.Close()
		m.paint = nil
	}
}
