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

// Package revwalk lazily walks the ancestors of a set of changesets,
// mirroring the access pattern a source-control server uses to answer
// "what does this commit depend on" without materializing the whole
// history graph up front.
package revwalk

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jacobsa/boundedtraversal/traversal"
)

// ChangesetID identifies a single changeset (a commit, in the terms most
// version control users know).
type ChangesetID string

// Store knows how to look up a changeset's parents. A real implementation
// backs this with a local or remote changeset database; it is the only
// seam revwalk needs.
type Store interface {
	Parents(ctx context.Context, id ChangesetID) ([]ChangesetID, error)
}

// PagedStore looks up a changeset's parents like Store does, except that the
// lookup is itself paginated: it
// hands back a lazy sequence instead of a materialized slice, matching the
// shape bounded_traversal_stream2 was built for.
type PagedStore interface {
	ParentPages(ctx context.Context, id ChangesetID) (*traversal.Stream[ChangesetID], error)
}

// Ancestors lazily enumerates every ancestor reachable from heads
// (inclusive), each changeset appearing exactly once even if it is
// reachable through more than one merge path. Each call is stamped with a
// fresh correlation ID for the logger, matching how request-scoped work is
// traced elsewhere in this module.
func Ancestors(ctx context.Context, store Store, heads []ChangesetID, parallelism int, logger zerolog.Logger, opts ...traversal.Option) *traversal.Stream[ChangesetID] {
	runID := uuid.NewString()
	log := logger.With().Str("run_id", runID).Logger()

	// seen holds every changeset already handed to the engine, so that one
	// reachable along several merge paths is unfolded and emitted once.
	var mu sync.Mutex
	seen := map[ChangesetID]bool{}
	for _, h := range heads {
		seen[h] = true
	}

	unfold := func(ctx context.Context, id ChangesetID) ([]ChangesetID, error) {
		parents, err := store.Parents(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("revwalk: parents of %s: %w", id, err)
		}
		log.Debug().Str("changeset", string(id)).Int("parents", len(parents)).Msg("revwalk: visited")
		var fresh []ChangesetID
		mu.Lock()
		for _, p := range parents {
			if !seen[p] {
				seen[p] = true
				fresh = append(fresh, p)
			}
		}
		mu.Unlock()
		return fresh, nil
	}

	if len(heads) == 0 {
		return traversal.BoundedTraversalStream[ChangesetID](ctx, parallelism, nil, unfold, opts...)
	}
	if len(heads) == 1 {
		return traversal.BoundedTraversalStream(ctx, parallelism, &heads[0], unfold, opts...)
	}
	return multiHeadStream(ctx, parallelism, heads, unfold, opts...)
}

// AncestorsPaged is Ancestors for a PagedStore: each node's parent lookup is
// itself a lazily pulled sequence, which changes the observable per-round
// unfold schedule without changing the final set of ancestors visited.
func AncestorsPaged(ctx context.Context, store PagedStore, head ChangesetID, parallelism int, opts ...traversal.Option) *traversal.Stream[ChangesetID] {
	var mu sync.Mutex
	seen := map[ChangesetID]bool{head: true}
	unfold2 := func(ctx context.Context, id ChangesetID) (*traversal.Stream[ChangesetID], error) {
		s, err := store.ParentPages(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("revwalk: parent pages of %s: %w", id, err)
		}
		return traversal.FromFunc(ctx, func(ctx context.Context) (ChangesetID, bool, error) {
			for {
				p, ok, err := s.Next(ctx)
				if err != nil || !ok {
					return p, ok, err
				}
				mu.Lock()
				dup := seen[p]
				seen[p] = true
				mu.Unlock()
				if !dup {
					return p, true, nil
				}
			}
		}), nil
	}
	return traversal.BoundedTraversalStream2(ctx, parallelism, &head, unfold2, opts...)
}

// multiHeadStream fans a set of heads into one stream by unioning them
// under a single synthetic root, since BoundedTraversalStream only accepts
// one seed.
func multiHeadStream(ctx context.Context, parallelism int, heads []ChangesetID, unfold traversal.UnfoldFunc[ChangesetID], opts ...traversal.Option) *traversal.Stream[ChangesetID] {
	const syntheticRoot = ChangesetID("")
	wrapped := func(ctx context.Context, id ChangesetID) ([]ChangesetID, error) {
		if id == syntheticRoot {
			return heads, nil
		}
		return unfold(ctx, id)
	}
	root := syntheticRoot
	full := traversal.BoundedTraversalStream(ctx, parallelism, &root, wrapped, opts...)
	return skipOne(ctx, full, syntheticRoot)
}

// skipOne drops the first occurrence of skip from the emitted sequence --
// used to hide the synthetic root multiHeadStream introduces.
func skipOne(ctx context.Context, s *traversal.Stream[ChangesetID], skip ChangesetID) *traversal.Stream[ChangesetID] {
	skipped := false
	return traversal.FromFunc(ctx, func(ctx context.Context) (ChangesetID, bool, error) {
		for {
			v, ok, err := s.Next(ctx)
			if err != nil || !ok {
				return v, ok, err
			}
			if !skipped && v == skip {
				skipped = true
				continue
			}
			return v, true, nil
		}
	})
}
