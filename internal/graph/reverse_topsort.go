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

package graph

import (
	"golang.org/x/net/context"

	"github.com/jacobsa/boundedtraversal/traversal"
)

// Write all of the nodes for the tree rooted at the given node to the supplied
// channel. The order is guaranteed to be a reverse topological sort (i.e. a
// node appears only after all of its successors have appeared).
//
// This delegates to the bounded tree traversal engine: a fold only runs after
// every one of its node's children has folded, which is exactly the
// ordering guarantee this function promises, so the fold step here is simply
// "write the node to the channel".
func ReverseTopsortTree(
	ctx context.Context,
	sf SuccessorFinder,
	root Node,
	nodes chan<- Node) (err error) {
	unfold := func(ctx context.Context, n Node) ([]Node, error) {
		return sf.FindDirectSuccessors(ctx, n)
	}

	fold := func(ctx context.Context, n Node, _ []struct{}) (struct{}, error) {
		select {
		case nodes <- n:
		case <-ctx.Done():
			return struct{}{}, ctx.Err()
		}
		return struct{}{}, nil
	}

	_, err = traversal.BoundedTraversal(ctx, 8, root, unfold, fold)
	return
}
