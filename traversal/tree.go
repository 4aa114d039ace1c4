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

// UnfoldFunc expands a node into its direct children. It may be called many
// times over the lifetime of a traversal and may block or do I/O; the
// engine never calls it concurrently with itself more than the configured
// parallelism allows.
type UnfoldFunc[N any] func(ctx context.Context, n N) (children []N, err error)

// FoldFunc combines a node with its already-folded children's values, in
// the order unfold returned them, into the node's own value.
type FoldFunc[N, V any] func(ctx context.Context, n N, children []V) (V, error)

// treeFrame tracks the bookkeeping for one unfolded-but-not-yet-folded node:
// how many of its children are still outstanding, and the ordered slots
// their fold values land in.
type treeFrame[N, V any] struct {
	node      N
	remaining int
	values    []V
}

type treeParentRef struct {
	frameID int
	index   int
}

type treeStep[N, V any] struct {
	frameID  int
	isFold   bool
	node     N
	children []N
	value    V
	err      error
}

// BoundedTraversal walks a tree rooted at seed, expanding nodes with unfold
// and combining each node's children's values with fold, with at most
// parallelism unfold-or-fold futures in flight at any instant. It resolves
// to the fold value of seed, or the first error observed from either
// function.
//
// The caller's graph is assumed acyclic; if it is not, behavior is
// undefined (non-termination is an acceptable outcome, matching the
// underlying scheduler's refusal to track a cycle detector it was not
// asked to pay for).
func BoundedTraversal[N, V any](
	ctx context.Context,
	parallelism int,
	seed N,
	unfold UnfoldFunc[N],
	fold FoldFunc[N, V],
	opts ...Option) (V, error) {
	var zero V
	if parallelism < 1 {
		parallelism = 1
	}
	cfg := buildConfig(opts)

	sem := semaphore.NewWeighted(int64(parallelism))
	results := make(chan treeStep[N, V], parallelism)

	frames := map[int]*treeFrame[N, V]{}
	parents := map[int]treeParentRef{}

	nextID := 0
	allocFrameID := func() int {
		id := nextID
		nextID++
		return id
	}

	type readyItem struct {
		frameID int
		node    N
	}
	type readyFoldItem struct {
		frameID int
		node    N
		values  []V
	}
	seedID := allocFrameID()
	ready := []readyItem{{seedID, seed}}
	readyFolds := []readyFoldItem{}

	inFlight := 0
	var failure error

	dispatchUnfold := func(item readyItem) {
		inFlight++
		cfg.observer.UnfoldStarting()
		go func() {
			defer sem.Release(1)
			children, err := unfold(ctx, item.node)
			cfg.observer.UnfoldFinished()
			results <- treeStep[N, V]{frameID: item.frameID, node: item.node, children: children, err: err}
		}()
	}

	dispatchFold := func(item readyFoldItem) {
		inFlight++
		cfg.observer.FoldStarting()
		go func() {
			defer sem.Release(1)
			v, err := fold(ctx, item.node, item.values)
			cfg.observer.FoldFinished()
			results <- treeStep[N, V]{frameID: item.frameID, isFold: true, node: item.node, value: v, err: err}
		}()
	}

	for {
		if failure == nil {
			// Folds are given priority over fresh unfolds when both are ready
			// for a permit, so work that is already close to the root drains
			// ahead of work that would only grow the frontier.
			for (len(readyFolds) > 0 || len(ready) > 0) && sem.TryAcquire(1) {
				if len(readyFolds) > 0 {
					item := readyFolds[0]
					readyFolds = readyFolds[1:]
					dispatchFold(item)
					continue
				}
				item := ready[len(ready)-1]
				ready = ready[:len(ready)-1]
				dispatchUnfold(item)
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

		if failure != nil {
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
			if res.frameID == seedID {
				return res.value, nil
			}
			ref := parents[res.frameID]
			delete(parents, res.frameID)
			parent := frames[ref.frameID]
			parent.values[ref.index] = res.value
			parent.remaining--
			if parent.remaining == 0 {
				delete(frames, ref.frameID)
				readyFolds = append(readyFolds, readyFoldItem{ref.frameID, parent.node, parent.values})
			}
			continue
		}

		frame := &treeFrame[N, V]{
			node:      res.node,
			remaining: len(res.children),
			values:    make([]V, len(res.children)),
		}
		if len(res.children) == 0 {
			readyFolds = append(readyFolds, readyFoldItem{res.frameID, frame.node, frame.values})
			continue
		}
		frames[res.frameID] = frame
		for i, c := range res.children {
			childID := allocFrameID()
			parents[childID] = treeParentRef{frameID: res.frameID, index: i}
			ready = append(ready, readyItem{childID, c})
		}
	}

	if failure == nil {
		failure = ctx.Err()
	}
	return zero, failure
}
