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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jacobsa/boundedtraversal/depbuild"
	"github.com/jacobsa/boundedtraversal/traversal"
)

// taskFile is the on-disk shape of a depbuild graph: each task names the
// other tasks it depends on and a shell command to run once they've all
// finished.
type taskFile struct {
	Target string `json:"target"`
	Tasks  map[string]struct {
		Deps []string `json:"deps"`
		Cmd  string   `json:"cmd"`
	} `json:"tasks"`
}

var depbuildMetricsAddr string

var depbuildCmd = &cobra.Command{
	Use:   "depbuild <tasks.json>",
	Short: "Run a JSON-described task graph in dependency order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := newLogger().With().Str("run_id", uuid.NewString()).Logger()

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return errors.Wrap(err, "reading task file")
		}

		var tf taskFile
		if err := json.Unmarshal(raw, &tf); err != nil {
			return errors.Wrap(err, "parsing task file")
		}

		tasks := make(map[string]depbuild.Task, len(tf.Tasks))
		for name, spec := range tf.Tasks {
			spec := spec
			tasks[name] = depbuild.Task{
				Deps: spec.Deps,
				Action: func(ctx context.Context, deps []depbuild.Result) (depbuild.Result, error) {
					return runShellTask(ctx, spec.Cmd)
				},
			}
		}

		var opts []traversal.Option
		if depbuildMetricsAddr != "" {
			observer, stop := observerForCommand(ctx, log, depbuildMetricsAddr)
			defer stop()
			opts = append(opts, traversal.WithObserver(observer))
		}

		result, err := depbuild.Run(ctx, tasks, tf.Target, parallelism(), log, opts...)
		if err != nil {
			return errors.Wrap(err, "depbuild")
		}

		fmt.Println(result)
		return nil
	},
}

func init() {
	depbuildCmd.Flags().StringVar(&depbuildMetricsAddr, "metrics-addr", "", "If set, serve the in-flight-futures gauge on this address while running")
}

func runShellTask(ctx context.Context, cmdline string) (string, error) {
	if cmdline == "" {
		return "", nil
	}

	c := exec.CommandContext(ctx, "sh", "-c", cmdline)
	var out bytes.Buffer
	c.Stdout = &out
	c.Stderr = &out

	if err := c.Run(); err != nil {
		return "", fmt.Errorf("running %q: %w: %s", cmdline, err, out.String())
	}

	return out.String(), nil
}
