package settle

import "time"

// cancelable is a one-shot closure slot. Invoke after Cancel, or a second
// Invoke, is a no-op. Loop-confined: the monitor only touches these from its
// own sequence, so no synchronisation is needed.
type cancelable struct {
	fn func()
}

func newCancelable(fn func()) *cancelable {
	return &cancelable{fn: fn}
}

func (c *cancelable) Invoke() {
	if c == nil || c.fn == nil {
		return
	}
	fn := c.fn
	c.fn = nil
	fn()
}

func (c *cancelable) Cancel() {
	if c != nil {
		c.fn = nil
	}
}

// cancelableIdle is the deadline-carrying variant used for main-thread idle
// callbacks.
type cancelableIdle struct {
	fn func(deadline time.Time)
}

func newCancelableIdle(fn func(deadline time.Time)) *cancelableIdle {
	return &cancelableIdle{fn: fn}
}

func (c *cancelableIdle) Invoke(deadline time.Time) {
	if c == nil || c.fn == nil {
		return
	}
	fn := c.fn
	c.fn = nil
	fn(deadline)
}

func (c *cancelableIdle) Cancel() {
	if c != nil {
		c.fn = nil
	}
}
