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

// Unfold2Func is like UnfoldFunc except that its children are themselves a
// lazy sequence rather than an eagerly materialized slice. Pulling the next
// child is itself treated as an operation that can be in flight, which is
// what makes the observable unfold schedule differ from the eager
// UnfoldFunc case (spec §4.4): only the children pulled before the
// parallelism bound is hit are enqueued in the same scheduling round.
type Unfold2Func[N any] func(ctx context.Context, n N) (children *Stream[N], err error)

type stream2Step[N any] struct {
	kind     stream2Kind
	node     N
	children *Stream[N]
	child    N
	sawChild bool
	err      error
}

type stream2Kind int

const (
	stream2KindUnfold stream2Kind = iota
	stream2KindPull
)

// BoundedTraversalStream2 is BoundedTraversalStream with a lazily pulled
// child sequence. It emits the same set of nodes as BoundedTraversalStream
// would given an equivalent eager unfold, but the visible per-round unfold
// schedule can differ because pulling a child is its own suspension point.
func BoundedTraversalStream2[N any](
	ctx context.Context,
	parallelism int,
	seed *N,
	unfold2 Unfold2Func[N],
	opts ...Option) *Stream[N] {
	if seed == nil {
		return emptyStream[N]()
	}
	if parallelism < 1 {
		parallelism = 1
	}
	cfg := buildConfig(opts)

	out := make(chan streamItem[N])
	stream := &Stream[N]{out: out}

	go func() {
		defer close(out)

		sem := semaphore.NewWeighted(int64(parallelism))
		results := make(chan stream2Step[N], parallelism)

		type readyNode struct {
			node N
		}
		type readyPull struct {
			stream *Stream[N]
		}
		var readyNodes []readyNode
		var readyPulls []readyPull
		readyNodes = append(readyNodes, readyNode{*seed})

		inFlight := 0
		var failure error

		dispatchUnfold := func(n N) {
			inFlight++
			cfg.observer.UnfoldStarting()
			go func() {
				children, err := unfold2(ctx, n)
				cfg.observer.UnfoldFinished()
				results <- stream2Step[N]{kind: stream2KindUnfold, node: n, children: children, err: err}
			}()
		}

		dispatchPull := func(s *Stream[N]) {
			inFlight++
			go func() {
				child, ok, err := s.Next(ctx)
				results <- stream2Step[N]{kind: stream2KindPull, children: s, child: child, sawChild: ok, err: err}
			}()
		}

		for {
			if failure == nil {
				for (len(readyNodes) > 0 || len(readyPulls) > 0) && sem.TryAcquire(1) {
					if len(readyPulls) > 0 {
						p := readyPulls[len(readyPulls)-1]
						readyPulls = readyPulls[:len(readyPulls)-1]
						dispatchPull(p.stream)
						continue
					}
					n := readyNodes[len(readyNodes)-1]
					readyNodes = readyNodes[:len(readyNodes)-1]
					dispatchUnfold(n.node)
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
			// The permit is returned here rather than in the worker goroutine,
			// so that whenever inFlight is zero every permit is free again.
			sem.Release(1)

			if failure != nil {
				continue
			}

			switch res.kind {
			case stream2KindUnfold:
				if res.err != nil {
					failure = &UnfoldError{Node: res.node, Cause: res.err}
					select {
					case out <- streamItem[N]{err: failure}:
					case <-ctx.Done():
					}
					continue
				}
				select {
				case out <- streamItem[N]{val: res.node}:
				case <-ctx.Done():
					failure = ctx.Err()
					continue
				}
				readyPulls = append(readyPulls, readyPull{res.children})

			case stream2KindPull:
				if res.err != nil {
					failure = &ChildStreamError{Cause: res.err}
					select {
					case out <- streamItem[N]{err: failure}:
					case <-ctx.Done():
					}
					continue
				}
				if res.sawChild {
					readyNodes = append(readyNodes, readyNode{res.child})
					readyPulls = append(readyPulls, readyPull{res.children})
				}
				// Exhausted child streams simply produce no further work.
			}
		}
	}()

	return stream
}
