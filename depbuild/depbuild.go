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

// Package depbuild runs a set of named tasks in dependency order, running
// each only once every task it declares a dependency on has produced a
// result, using the bounded DAG traversal engine for the scheduling that
// internal/dag.Visit used to do by hand with an errgroup.
package depbuild

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jacobsa/boundedtraversal/traversal"
)

// Task is one node in the dependency graph. Deps names other tasks in the
// same Tasks map that must finish before Action runs; Action receives their
// results in the same order Deps lists them.
type Task struct {
	Deps   []string
	Action func(ctx context.Context, deps []Result) (Result, error)
}

// Result is whatever a Task's Action produces. It is caller-defined data;
// depbuild treats it as an opaque value threaded through the graph.
type Result interface{}

// CycleError reports that the task graph has a cycle reachable from one of
// the requested targets.
type CycleError struct {
	Target string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle reachable from task %q", e.Target)
}

// Run executes every task reachable from target (inclusive) and returns its
// result. Dependencies shared by more than one task run exactly once; their
// result is reused for every dependent.
func Run(ctx context.Context, tasks map[string]Task, target string, parallelism int, logger zerolog.Logger, opts ...traversal.Option) (Result, error) {
	if _, ok := tasks[target]; !ok {
		return nil, fmt.Errorf("depbuild: unknown task %q", target)
	}
	if parallelism < 1 {
		parallelism = 1
	}

	unfold := func(ctx context.Context, name string) ([]string, error) {
		task, ok := tasks[name]
		if !ok {
			return nil, fmt.Errorf("depbuild: task %q depends on unknown task", name)
		}
		for _, d := range task.Deps {
			if _, ok := tasks[d]; !ok {
				return nil, fmt.Errorf("depbuild: task %q depends on unknown task %q", name, d)
			}
		}
		return task.Deps, nil
	}

	fold := func(ctx context.Context, name string, depResults []Result) (Result, error) {
		logger.Info().Str("task", name).Int("deps", len(depResults)).Msg("depbuild: running task")
		v, err := tasks[name].Action(ctx, depResults)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", name, err)
		}
		return v, nil
	}

	value, ok, err := traversal.BoundedTraversalDAG[string, Result](ctx, parallelism, target, unfold, fold, opts...)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &CycleError{Target: target}
	}
	return value, nil
}
