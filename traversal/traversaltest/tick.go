// Copyright 2015 Aaron Jacobs. All Rights Reserved.
// Author: aaronjjacobs@gmail.com (Aaron Jacobs)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package traversaltest provides a deterministic virtual clock and an
// event log for writing tick-by-tick assertions against a traversal call,
// mirroring the test utilities the bounded_traversal crate this package's
// sibling was distilled from uses internally.
package traversaltest

import "sync"

// Tick is a virtual clock. Every unfold/fold closure under test calls
// Sleep to suspend until a given number of further Tick calls have
// occurred; the test driver calls Tick once per expected scheduling round
// and asserts on a StateLog in between. Tick doubles as a traversal.Observer
// so it always knows exactly how many user futures are currently live; it
// only ever advances past a round once every live future is parked in
// Sleep (or finished), which is what makes the rounds deterministic despite
// unfold/fold running on real goroutines rather than a single-threaded
// executor.
type Tick struct {
	mu      sync.Mutex
	cond    *sync.Cond
	now     int
	live    int
	parked  int
	waiters []*tickWaiter
}

type tickWaiter struct {
	wake int
	ch   chan int
}

// NewTick constructs a Tick starting at virtual time 0.
func NewTick() *Tick {
	t := &Tick{}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// UnfoldStarting implements traversal.Observer.
func (t *Tick) UnfoldStarting() { t.enter() }

// UnfoldFinished implements traversal.Observer.
func (t *Tick) UnfoldFinished() { t.leave() }

// FoldStarting implements traversal.Observer.
func (t *Tick) FoldStarting() { t.enter() }

// FoldFinished implements traversal.Observer.
func (t *Tick) FoldFinished() { t.leave() }

func (t *Tick) enter() {
	t.mu.Lock()
	t.live++
	t.cond.Broadcast()
	t.mu.Unlock()
}

func (t *Tick) leave() {
	t.mu.Lock()
	t.live--
	t.cond.Broadcast()
	t.mu.Unlock()
}

// Sleep parks the calling goroutine until n further ticks have elapsed,
// returning the virtual time it woke at.
func (t *Tick) Sleep(n int) int {
	t.mu.Lock()
	w := &tickWaiter{wake: t.now + n, ch: make(chan int, 1)}
	t.waiters = append(t.waiters, w)
	t.parked++
	t.cond.Broadcast()
	t.mu.Unlock()

	return <-w.ch
}

// AwaitStart blocks until at least one future has started (called
// UnfoldStarting or FoldStarting and not yet finished). Call this once
// right after spawning the traversal under test and before the first Tick
// call, the way the original test suite calls yield_now() once to let its
// spawned task reach its first suspension point before the first tick.
func (t *Tick) AwaitStart() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.live == 0 {
		t.cond.Wait()
	}
}

// Tick advances virtual time by one, releasing every waiter whose Sleep
// deadline has now elapsed, then blocks until the system is quiescent
// again: every currently-live future is parked in a later Sleep call, or
// has finished. Only then does it return, so a StateLog asserted against
// immediately after Tick reflects exactly this round's work and no more.
func (t *Tick) Tick() int {
	t.mu.Lock()
	t.waitQuiescentLocked()

	t.now++
	now := t.now

	var stillWaiting, toWake []*tickWaiter
	for _, w := range t.waiters {
		if w.wake <= now {
			toWake = append(toWake, w)
		} else {
			stillWaiting = append(stillWaiting, w)
		}
	}
	t.waiters = stillWaiting
	t.parked -= len(toWake)
	t.mu.Unlock()

	for _, w := range toWake {
		w.ch <- now
	}

	t.mu.Lock()
	t.waitQuiescentLocked()
	t.mu.Unlock()

	return now
}

// Now returns the current virtual time.
func (t *Tick) Now() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now
}

func (t *Tick) waitQuiescentLocked() {
	for t.parked < t.live {
		t.cond.Wait()
	}
}
