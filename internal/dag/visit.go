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

package dag

import (
	"context"
	"fmt"

	"github.com/jacobsa/boundedtraversal/traversal"
)

// A sentinel node, distinct from anything a caller could supply, used to fan
// multiple start nodes into the single-seed DAG traversal below.
var root = new(struct{})

// Call the visitor once for each unique node in the union of startNodes and
// all of its transitive dependencies, with bounded parallelism.
//
// Guarantees:
//
//  *  If the graph contains a cycle, this function will not succeed.
//
//  *  If a node N depends on a node M, v.Visit(N) will be called only after
//     v.Visit(M) returns successfully.
//
//  *  For each unique node N, dr.FindDependencies(N) and v.Visit(N) will each
//     be called at most once. Moreover, v.Visit(N) will be called only after
//     dr.FindDependencies(N) returns successfully.
//
// This delegates to the bounded DAG traversal engine: a node's dependencies
// are its unfold result, a node's visit is its fold (folding to no value),
// and fan-in sharing/cycle detection come for free from the engine rather
// than from a hand-rolled reference-counted node table.
func Visit(
	ctx context.Context,
	startNodes []Node,
	dr DependencyResolver,
	v Visitor,
	resolverParallelism int,
	visitorParallelism int) (err error) {
	// Cancel derived ctx as soon as any unfold or fold fails, matching
	// errgroup.WithContext's behavior: a worker blocked on ctx.Done() must
	// wake up rather than leak once a sibling has already doomed the call.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unfold := func(ctx context.Context, n Node) (deps []Node, err error) {
		if n == Node(root) {
			deps = startNodes
			return
		}

		deps, err = dr.FindDependencies(ctx, n)
		if err != nil {
			cancel()
		}
		return
	}

	fold := func(ctx context.Context, n Node, _ []struct{}) (_ struct{}, err error) {
		if n == Node(root) {
			return
		}

		err = v.Visit(ctx, n)
		if err != nil {
			cancel()
		}
		return
	}

	parallelism := resolverParallelism
	if visitorParallelism > parallelism {
		parallelism = visitorParallelism
	}

	_, ok, err := traversal.BoundedTraversalDAG[Node, struct{}](
		ctx,
		parallelism,
		Node(root),
		unfold,
		fold)
	if err != nil {
		return
	}

	if !ok {
		err = fmt.Errorf("Graph contains a cycle")
		return
	}

	return
}
