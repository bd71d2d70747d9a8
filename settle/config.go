package settle

import "time"

// Timeouts are the monitor's feature values. The zero value of each field
// means "use the default", except MinWait and InvokeCallbackDelay where zero
// is meaningful (policy disabled).
type Timeouts struct {
	// Global bounds the whole observation, armed when NotifyWhenStable is
	// called. Relatively long because it often covers network waits.
	// Default: 10s.
	Global time.Duration

	// MainThread bounds only the main-thread-idle wait. Shorter than Global
	// because it starts after network work has completed. Skipped entirely
	// when MinWait is nonzero. Default: 2s.
	MainThread time.Duration

	// MinWait, when nonzero, guarantees the callback never fires before this
	// much time has elapsed since monitoring began, replacing the MainThread
	// timeout strategy. It also discards the paint sampler once the idle
	// path reaches MaybeDelayCallback.
	MinWait time.Duration

	// InvokeCallbackDelay is a fixed delay applied after idleness before the
	// callback fires. Only used when MinWait is zero.
	InvokeCallbackDelay time.Duration
}

func (t *Timeouts) defaults() {
	if t.Global <= 0 {
		t.Global = 10 * time.Second
	}
	if t.MainThread <= 0 {
		t.MainThread = 2 * time.Second
	}
}
