package settle

import "time"

// Frame is the readiness-source surface the monitor consumes. The concrete
// implementation (package frame) backs it with CDP events; tests use fakes.
//
// The registration methods are one-shot and the monitor guarantees at most
// one of each is outstanding at a time. A source may retain a callback after
// the monitor has moved on; the monitor wraps every registration in a
// cancelable so a late invocation is a no-op.
type Frame interface {
	// ActiveRequestCount returns the point-in-time number of in-flight
	// network requests. Read once at monitor construction (the baseline)
	// and once on entering StartMonitoring.
	ActiveRequestCount() int

	// NavigationInFlight reports whether a navigation is currently pending
	// for the observed document. Read once on entering WaitForNavigation.
	NavigationInFlight() bool

	// RequestNetworkIdle registers a one-shot network-idle callback. The
	// callback must be delivered on the monitor's loop.
	RequestNetworkIdle(fn func())

	// PostIdleTask registers a one-shot main-thread-idle callback, invoked
	// with the idle deadline. Delivered on the monitor's loop.
	PostIdleTask(fn func(deadline time.Time))
}

// PaintMonitor is the optional visual-stability source. WaitForStable may
// complete synchronously during registration; the monitor tolerates either.
type PaintMonitor interface {
	Start()
	WaitForStable(fn func())
	Close()
}

// Journal receives the monitor's diagnostic trail: state transitions and the
// reasons behind them. Purely diagnostic; a monitor without a journal is
// still correct.
type Journal interface {
	Log(event string, attrs ...any)
}

type nopJournal struct{}

func (nopJournal) Log(string, ...any) {}
