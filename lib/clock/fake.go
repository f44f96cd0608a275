// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a Clock whose time moves only when Advance is called.
// It is safe for concurrent use.
//
// AfterFunc callbacks run synchronously inside Advance, in deadline
// order. A callback must not call Advance.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*waiter
	changed *sync.Cond
}

// waiter is one armed After, AfterFunc, or ticker. Exactly one of
// channel and callback is set. Stopped and fired waiters are dropped
// from the list on the next Advance.
type waiter struct {
	deadline time.Time
	channel  chan time.Time // After and tickers
	callback func()         // AfterFunc
	interval time.Duration  // tickers only
	stopped  bool
	fired    bool
}

// Fake returns a FakeClock reading initial.
func Fake(initial time.Time) *FakeClock {
	fake := &FakeClock{now: initial}
	fake.changed = sync.NewCond(&fake.mu)
	return fake
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After returns a channel that receives the fake time once Advance
// reaches now+d.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Buffered so Advance never blocks on a reader that went away.
	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.addLocked(&waiter{deadline: c.now.Add(d), channel: channel})
	return channel
}

// AfterFunc arms f to run inside the Advance call that reaches now+d.
// A non-positive d runs f before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stop: func() bool { return false }}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &waiter{deadline: c.now.Add(d), callback: f}
	c.addLocked(entry)
	return &Timer{stop: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if entry.stopped || entry.fired {
			return false
		}
		entry.stopped = true
		return true
	}}
}

// NewTicker returns a Ticker that fires once per elapsed interval of
// fake time.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	entry := &waiter{deadline: c.now.Add(d), channel: channel, interval: d}
	c.addLocked(entry)
	return &Ticker{C: channel, stop: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		entry.stopped = true
	}}
}

// addLocked registers entry and wakes WaitForTimers callers.
func (c *FakeClock) addLocked(entry *waiter) {
	c.waiters = append(c.waiters, entry)
	c.changed.Broadcast()
}

// Advance moves time forward by d and fires every timer whose deadline
// is reached, earliest first. Channel sends never block; a ticker that
// spans several intervals fires once per interval, dropping overflow.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()

	// Callbacks run without the lock held, so one may arm a new timer.
	// Loop until nothing more is due at the target time.
	for {
		due := c.takeDue(target)
		if len(due) == 0 {
			return
		}
		for _, entry := range due {
			if entry.callback != nil {
				entry.callback()
				continue
			}
			select {
			case entry.channel <- target:
			default:
			}
		}
	}
}

// takeDue removes expired one-shot waiters, reschedules tickers, and
// returns everything that should fire, sorted by deadline.
func (c *FakeClock) takeDue(target time.Time) []*waiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due, remaining []*waiter
	for _, entry := range c.waiters {
		switch {
		case entry.stopped:
		case entry.deadline.After(target):
			remaining = append(remaining, entry)
		default:
			due = append(due, entry)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})
	for _, entry := range due {
		if entry.interval > 0 {
			entry.deadline = entry.deadline.Add(entry.interval)
			remaining = append(remaining, entry)
		} else {
			entry.fired = true
		}
	}
	c.waiters = remaining
	return due
}

// WaitForTimers blocks until at least n timers or tickers are pending.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.changed.Wait()
	}
}

// Pending returns the number of armed timers and tickers.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

func (c *FakeClock) pendingLocked() int {
	count := 0
	for _, entry := range c.waiters {
		if !entry.stopped {
			count++
		}
	}
	return count
}
