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

// Stream is a lazy, pull-based sequence of N values produced by a running
// traversal. Next blocks until a value is ready, the sequence is
// exhausted, or ctx is done. Callers must keep calling Next (or abandon
// the stream, letting the engine's background goroutine leak until the
// traversal's own ctx is cancelled) until it reports exhaustion or an
// error.
type Stream[N any] struct {
	out chan streamItem[N]
}

type streamItem[N any] struct {
	val N
	err error
}

// Next returns the next value in the sequence. A false ok with a nil error
// means the sequence is exhausted; a non-nil error means the traversal
// aborted and this was the first error observed.
func (s *Stream[N]) Next(ctx context.Context) (n N, ok bool, err error) {
	select {
	case item, open := <-s.out:
		if !open {
			return n, false, nil
		}
		if item.err != nil {
			return n, false, item.err
		}
		return item.val, true, nil
	case <-ctx.Done():
		return n, false, ctx.Err()
	}
}

func emptyStream[N any]() *Stream[N] {
	s := &Stream[N]{out: make(chan streamItem[N])}
	close(s.out)
	return s
}

// FromFunc adapts an arbitrary pull function into a Stream, for clients
// that need to compose or transform another Stream (for example, to skip
// or remap elements) without reaching into this package's internals.
func FromFunc[N any](ctx context.Context, pull func(ctx context.Context) (N, bool, error)) *Stream[N] {
	out := make(chan streamItem[N])
	go func() {
		defer close(out)
		for {
			v, ok, err := pull(ctx)
			if err != nil {
				select {
				case out <- streamItem[N]{err: err}:
				case <-ctx.Done():
				}
				return
			}
			if !ok {
				return
			}
			select {
			case out <- streamItem[N]{val: v}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return &Stream[N]{out: out}
}

// BoundedTraversalStream lazily expands seed (and its descendants) with
// unfold, emitting every successfully unfolded node as a sequence element
// in an order constrained only by parallelism. It performs no fold. A nil
// seed yields an empty sequence.
func BoundedTraversalStream[N any](
	ctx context.Context,
	parallelism int,
	seed *N,
	unfold UnfoldFunc[N],
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
		results := make(chan treeStep[N, struct{}], parallelism)
		ready := []N{*seed}
		inFlight := 0
		var failure error

		dispatch := func(n N) {
			inFlight++
			cfg.observer.UnfoldStarting()
			go func() {
				children, err := unfold(ctx, n)
				cfg.observer.UnfoldFinished()
				results <- treeStep[N, struct{}]{node: n, children: children, err: err}
			}()
		}

		for {
			if failure == nil {
				for len(ready) > 0 && sem.TryAcquire(1) {
					n := ready[len(ready)-1]
					ready = ready[:len(ready)-1]
					dispatch(n)
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
				if failure == nil {
					failure = ctx.Err()
				}
				continue
			}
			ready = append(ready, res.children...)
		}
	}()

	return stream
}
