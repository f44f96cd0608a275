// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts the subset of the time package used by this module.
// Code with timeouts or poll intervals takes a Clock so tests can
// substitute a FakeClock and control time explicitly.
//
// Method semantics follow the time package. Timers and tickers created
// through a Clock must be stopped by the caller, exactly as with
// time.AfterFunc and time.NewTicker.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives once d has elapsed. A
	// non-positive d fires immediately.
	After(d time.Duration) <-chan time.Time

	// AfterFunc calls f once d has elapsed. The returned Timer can
	// cancel the call.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker delivers ticks every d on the returned Ticker's C.
	// Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Ticker delivers periodic ticks on C. The channel has capacity 1: a
// tick that arrives while the previous one is unread is dropped, the
// same as time.Ticker.
type Ticker struct {
	C <-chan time.Time

	// stop is supplied by the Clock implementation. Ticker is a struct
	// rather than an interface so callers read C as a field, the same
	// as with time.Ticker.
	stop func()
}

// Stop turns the ticker off. C is not closed.
func (t *Ticker) Stop() { t.stop() }

// Timer is a pending AfterFunc call. Only Stop is exposed: nothing in
// this module resets a timer, it arms a new one instead.
type Timer struct {
	stop func() bool
}

// Stop cancels the call. It reports false if the call already ran or
// was already stopped.
func (t *Timer) Stop() bool { return t.stop() }
