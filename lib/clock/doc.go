// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// The session manager's connect timeout and the WebRTC transport's
// signaling poll loops take a [Clock] instead of calling the time
// package directly. Production wiring passes [Real]; tests pass a
// [FakeClock] from [Fake] and drive time with Advance.
//
// A goroutine that arms a timer on a FakeClock races with the test
// that advances it. [FakeClock.WaitForTimers] closes that race: it
// blocks until the expected number of timers are registered.
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	manager, _ := session.New(session.Config{Clock: fake, ConnectTimeout: 10 * time.Second, ...})
//	pending, _ := manager.ConnectTo(ctx, "cozy-pine-otter")
//	fake.WaitForTimers(1)
//	fake.Advance(manager.ConnectTimeout())
package clock
