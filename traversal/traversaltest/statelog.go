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

package traversaltest

import (
	"fmt"
	"sort"
	"sync"
)

type eventKind int

const (
	eventUnfold eventKind = iota
	eventFold
)

func (k eventKind) String() string {
	if k == eventUnfold {
		return "unfold"
	}
	return "fold"
}

type logEntry[Id comparable, V any] struct {
	kind  eventKind
	id    Id
	tick  int
	value V
}

func (e logEntry[Id, V]) key() string {
	return fmt.Sprintf("%s(%v)@%d=%v", e.kind, e.id, e.tick, e.value)
}

// StateLog records unfold and fold events, each stamped with the virtual
// tick they occurred on, from concurrent goroutines. Two logs compare equal
// when they contain the same bag of events regardless of recording order,
// since goroutines racing within the same tick may append in either order
// even though the tick each event is stamped with is deterministic.
type StateLog[Id comparable, V any] struct {
	mu      sync.Mutex
	entries []logEntry[Id, V]
}

// NewStateLog constructs an empty log.
func NewStateLog[Id comparable, V any]() *StateLog[Id, V] {
	return &StateLog[Id, V]{}
}

// Unfold records that id was unfolded at the given virtual tick.
func (l *StateLog[Id, V]) Unfold(id Id, tick int) {
	var zero V
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry[Id, V]{kind: eventUnfold, id: id, tick: tick, value: zero})
}

// Fold records that id was folded at the given virtual tick, producing
// value.
func (l *StateLog[Id, V]) Fold(id Id, tick int, value V) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry[Id, V]{kind: eventFold, id: id, tick: tick, value: value})
}

func (l *StateLog[Id, V]) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	keys := make([]string, len(l.entries))
	for i, e := range l.entries {
		keys[i] = e.key()
	}
	sort.Strings(keys)
	return keys
}

// Equal reports whether l and other recorded the same bag of events.
func (l *StateLog[Id, V]) Equal(other *StateLog[Id, V]) bool {
	a, b := l.snapshot(), other.snapshot()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Diff returns a human-readable description of how l and other differ,
// empty if they are Equal. Intended for test failure messages.
func (l *StateLog[Id, V]) Diff(other *StateLog[Id, V]) string {
	a, b := l.snapshot(), other.snapshot()
	counts := map[string]int{}
	for _, k := range a {
		counts[k]++
	}
	for _, k := range b {
		counts[k]--
	}
	var extraInL, extraInOther []string
	for k, c := range counts {
		switch {
		case c > 0:
			for ; c > 0; c-- {
				extraInL = append(extraInL, k)
			}
		case c < 0:
			for ; c < 0; c++ {
				extraInOther = append(extraInOther, k)
			}
		}
	}
	sort.Strings(extraInL)
	sort.Strings(extraInOther)
	if len(extraInL) == 0 && len(extraInOther) == 0 {
		return ""
	}
	return fmt.Sprintf("only in actual: %v; only in expected: %v", extraInL, extraInOther)
}
