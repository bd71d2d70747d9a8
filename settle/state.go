package settle

// State is the monitor's position in the stability wait. It only ever
// advances along the transition table below; StateDone is terminal.
type State int

const (
	StateInitial State = iota

	// Waiting out the caller-supplied delay before monitoring begins.
	StateMonitorStartDelay

	// A navigation was in flight when monitoring was due to begin; waiting
	// for it to commit or fail.
	StateWaitForNavigation

	// Entry point proper: snapshots timing and decides which wait to enter.
	StateStartMonitoring

	// Waiting for in-flight network requests started since the baseline.
	StateWaitForNetworkIdle

	// Waiting for the page's main thread to go idle.
	StateWaitForMainThreadIdle

	// Timeout transit states. They only exist so the journal records which
	// budget expired; both move straight to StateInvokeCallback.
	StateTimeoutGlobal
	StateTimeoutMainThread

	// Applies the minimum-wait or fixed invoke-delay policy before finishing.
	StateMaybeDelayCallback

	// The paint sampler reported visual stability.
	StatePaintStabilityReached

	// The observed document is gone: navigated away, frozen, or torn down.
	StateFrameGoingAway

	// Consumes the callback and moves to StateDone.
	StateInvokeCallback

	StateDone
)

var stateNames = map[State]string{
	StateInitial:               "Initial",
	StateMonitorStartDelay:     "MonitorStartDelay",
	StateWaitForNavigation:     "WaitForNavigation",
	StateStartMonitoring:       "StartMonitoring",
	StateWaitForNetworkIdle:    "WaitForNetworkIdle",
	StateWaitForMainThreadIdle: "WaitForMainThreadIdle",
	StateTimeoutGlobal:         "TimeoutGlobal",
	StateTimeoutMainThread:     "TimeoutMainThread",
	StateMaybeDelayCallback:    "MaybeDelayCallback",
	StatePaintStabilityReached: "PaintStabilityReached",
	StateFrameGoingAway:        "FrameGoingAway",
	StateInvokeCallback:        "InvokeCallback",
	StateDone:                  "Done",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "Unknown"
}

// transitions is the exhaustive table of allowed state moves. Anything not
// listed is a programming bug and panics in moveToState.
//
// StateDone is absent as a source on purpose: moves can be attempted from it
// by tasks that were already queued when the machine finished (a late
// timeout, a stale idle completion), so moveToState treats them as silent
// no-ops rather than violations.
var transitions = map[State][]State{
	StateInitial: {
		StateMonitorStartDelay,
		StateFrameGoingAway,
	},
	StateMonitorStartDelay: {
		StateWaitForNavigation,
		StateTimeoutGlobal,
		StateFrameGoingAway,
	},
	StateWaitForNavigation: {
		StateStartMonitoring,
		StateTimeoutGlobal,
		StateFrameGoingAway,
	},
	StateStartMonitoring: {
		StateWaitForNetworkIdle,
		StateWaitForMainThreadIdle,
	},
	StateWaitForNetworkIdle: {
		StateWaitForMainThreadIdle,
		StatePaintStabilityReached,
		StateTimeoutGlobal,
		StateFrameGoingAway,
	},
	StateWaitForMainThreadIdle: {
		StateMaybeDelayCallback,
		StatePaintStabilityReached,
		StateTimeoutMainThread,
		StateTimeoutGlobal,
		StateFrameGoingAway,
	},
	StateTimeoutGlobal: {
		StateInvokeCallback,
	},
	StateTimeoutMainThread: {
		StateInvokeCallback,
	},
	StateMaybeDelayCallback: {
		StatePaintStabilityReached,
		StateInvokeCallback,
		StateTimeoutMainThread,
		StateTimeoutGlobal,
		StateFrameGoingAway,
	},
	StatePaintStabilityReached: {
		StateMaybeDelayCallback,
		StateInvokeCallback,
	},
	StateFrameGoingAway: {
		StateInvokeCallback,
	},
	StateInvokeCallback: {
		StateDone,
	},
}

func validTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
