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
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jacobsa/boundedtraversal/revwalk"
	"github.com/jacobsa/boundedtraversal/traversal"
)

// jsonStore is a revwalk.Store backed by a changeset-id -> parent-ids map
// loaded from a JSON file, for ad-hoc graphs passed on the command line.
type jsonStore map[string][]string

func (s jsonStore) Parents(ctx context.Context, id revwalk.ChangesetID) ([]revwalk.ChangesetID, error) {
	var out []revwalk.ChangesetID
	for _, p := range s[string(id)] {
		out = append(out, revwalk.ChangesetID(p))
	}
	return out, nil
}

var revwalkMetricsAddr string

var revwalkCmd = &cobra.Command{
	Use:   "revwalk <graph.json> <heads...>",
	Short: "Print every ancestor reachable from one or more changesets",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := newLogger()

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return errors.Wrap(err, "reading graph file")
		}

		var store jsonStore
		if err := json.Unmarshal(raw, &store); err != nil {
			return errors.Wrap(err, "parsing graph file")
		}

		var heads []revwalk.ChangesetID
		for _, h := range args[1:] {
			heads = append(heads, revwalk.ChangesetID(h))
		}

		var opts []traversal.Option
		if revwalkMetricsAddr != "" {
			observer, stop := observerForCommand(ctx, log, revwalkMetricsAddr)
			defer stop()
			opts = append(opts, traversal.WithObserver(observer))
		}

		s := revwalk.Ancestors(ctx, store, heads, parallelism(), log, opts...)
		for {
			id, ok, err := s.Next(ctx)
			if err != nil {
				return errors.Wrap(err, "revwalk")
			}
			if !ok {
				break
			}
			fmt.Println(id)
		}

		return nil
	},
}

func init() {
	revwalkCmd.Flags().StringVar(&revwalkMetricsAddr, "metrics-addr", "", "If set, serve the in-flight-futures gauge on this address while running")
}
