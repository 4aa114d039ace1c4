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

package traversal

import (
	"context"

	"golang.org/x/sync/semaphore"
)

type dagStatus int

const (
	dagUnfolding dagStatus = iota
	dagUnfolded
	dagFolded
)

// dagNode is the node table entry described in spec §4.2: FrameState ∈
// {Unfolding, Unfolded(Frame), Folded(V)}.
type dagNode[N, V any] struct {
	status    dagStatus
	remaining int
	values    []V
	value     V
}

type dagParentRef[N any] struct {
	parent N
	index  int
}

type dagStep[N, V any] struct {
	node     N
	isFold   bool
	children []N
	value    V
	err      error
}

// BoundedTraversalDAG walks a DAG rooted at seed. Unlike BoundedTraversal it
// unfolds any given node at most once regardless of in-degree, memoizing
// and sharing its fold value with every parent that references it (fan-in).
// If a cycle is reachable from seed it returns the zero value, false, nil:
// no fold is ever invoked for a node on the cycle, and this is a
// successful, not an error, outcome. N must be comparable because the
// engine uses it as a node-table key.
func BoundedTraversalDAG[N comparable, V any](
	ctx context.Context,
	parallelism int,
	seed N,
	unfold UnfoldFunc[N],
	fold FoldFunc[N, V],
	opts ...Option) (V, bool, error) {
	var zero V
	if parallelism < 1 {
		parallelism = 1
	}
	cfg := buildConfig(opts)

	sem := semaphore.NewWeighted(int64(parallelism))
	results := make(chan dagStep[N, V], parallelism)

	nodes := map[N]*dagNode[N, V]{}
	active := map[N]bool{}
	waiters := map[N][]dagParentRef[N]{}
	ready := []N{}

	type readyFoldItem struct {
		node   N
		values []V
	}
	readyFolds := []readyFoldItem{}

	enqueue := func(n N) {
		nodes[n] = &dagNode[N, V]{status: dagUnfolding}
		active[n] = true
		ready = append(ready, n)
	}
	enqueue(seed)

	inFlight := 0
	var failure error
	cycleDetected := false

	// isAncestor reports whether c is n or an unfinished ancestor of n,
	// following the parents registered as waiters on each node.
	var isAncestor func(c, n N, seen map[N]bool) bool
	isAncestor = func(c, n N, seen map[N]bool) bool {
		if c == n {
			return true
		}
		seen[n] = true
		for _, w := range waiters[n] {
			if !seen[w.parent] && isAncestor(c, w.parent, seen) {
				return true
			}
		}
		return false
	}

	dispatchUnfold := func(n N) {
		inFlight++
		cfg.observer.UnfoldStarting()
		go func() {
			children, err := unfold(ctx, n)
			cfg.observer.UnfoldFinished()
			results <- dagStep[N, V]{node: n, children: children, err: err}
		}()
	}

	dispatchFold := func(item readyFoldItem) {
		inFlight++
		cfg.observer.FoldStarting()
		go func() {
			v, err := fold(ctx, item.node, item.values)
			cfg.observer.FoldFinished()
			results <- dagStep[N, V]{node: item.node, isFold: true, value: v, err: err}
		}()
	}

	for {
		if failure == nil && !cycleDetected {
			// Folds are given priority over fresh unfolds when both are ready
			// for a permit, draining already-resolved work ahead of work that
			// would only grow the frontier.
			for (len(readyFolds) > 0 || len(ready) > 0) && sem.TryAcquire(1) {
				if len(readyFolds) > 0 {
					item := readyFolds[0]
					readyFolds = readyFolds[1:]
					dispatchFold(item)
					continue
				}
				n := ready[len(ready)-1]
				ready = ready[:len(ready)-1]
				dispatchUnfold(n)
			}
			if err := ctx.Err(); err != nil && failure == nil {
				failure = err
			}
		}

		if inFlight == 0 {
			break
		}

		res := <-results
		inFlight--
		// The permit is returned here rather than in the worker goroutine, so
		// that whenever inFlight is zero every permit is free again.
		sem.Release(1)

		if failure != nil || cycleDetected {
			continue
		}
		if res.err != nil {
			if res.isFold {
				failure = &FoldError{Node: res.node, Cause: res.err}
			} else {
				failure = &UnfoldError{Node: res.node, Cause: res.err}
			}
			continue
		}

		if res.isFold {
			fn := nodes[res.node]
			fn.status = dagFolded
			fn.value = res.value
			fn.values = nil
			delete(active, res.node)

			if res.node == seed {
				return res.value, true, nil
			}

			for _, w := range waiters[res.node] {
				pf := nodes[w.parent]
				pf.values[w.index] = res.value
				pf.remaining--
				if pf.remaining == 0 {
					readyFolds = append(readyFolds, readyFoldItem{w.parent, pf.values})
				}
			}
			delete(waiters, res.node)
			continue
		}

		fn := nodes[res.node]
		fn.status = dagUnfolded
		fn.remaining = len(res.children)
		fn.values = make([]V, len(res.children))

		if len(res.children) == 0 {
			readyFolds = append(readyFolds, readyFoldItem{res.node, fn.values})
			continue
		}

		for i, c := range res.children {
			if active[c] && isAncestor(c, res.node, map[N]bool{}) {
				cycleDetected = true
				break
			}
			if existing, seen := nodes[c]; seen {
				if existing.status == dagFolded {
					fn.values[i] = existing.value
					fn.remaining--
				} else {
					waiters[c] = append(waiters[c], dagParentRef[N]{parent: res.node, index: i})
				}
			} else {
				waiters[c] = append(waiters[c], dagParentRef[N]{parent: res.node, index: i})
				enqueue(c)
			}
		}
		if !cycleDetected && fn.remaining == 0 {
			readyFolds = append(readyFolds, readyFoldItem{res.node, fn.values})
		}
	}

	if cycleDetected {
		return zero, false, nil
	}
	if failure == nil {
		failure = ctx.Err()
	}
	return zero, false, failure
}
