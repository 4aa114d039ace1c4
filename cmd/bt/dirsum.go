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
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jacobsa/boundedtraversal/dirsum"
	"github.com/jacobsa/boundedtraversal/traversal"
)

var dirsumExclude []string
var dirsumMetricsAddr string

var dirsumCmd = &cobra.Command{
	Use:   "dirsum <path>",
	Short: "Print a content hash for a directory tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := newLogger().With().Str("run_id", uuid.NewString()).Logger()

		var exclusions []*regexp.Regexp
		for _, pat := range dirsumExclude {
			re, err := regexp.Compile(pat)
			if err != nil {
				return errors.Wrapf(err, "compiling exclusion pattern %q", pat)
			}
			exclusions = append(exclusions, re)
		}

		var observer traversal.Observer
		if dirsumMetricsAddr != "" {
			var stop func()
			observer, stop = observerForCommand(ctx, log, dirsumMetricsAddr)
			defer stop()
		}

		digest, err := dirsum.Sum(ctx, args[0], dirsum.Options{
			Parallelism: parallelism(),
			Exclusions:  exclusions,
			Logger:      log,
			Observer:    observer,
		})
		if err != nil {
			return errors.Wrap(err, "dirsum")
		}

		fmt.Println(digest)
		return nil
	},
}

func init() {
	dirsumCmd.Flags().StringArrayVar(&dirsumExclude, "exclude", nil, "Relative-path regexp to exclude, repeatable")
	dirsumCmd.Flags().StringVar(&dirsumMetricsAddr, "metrics-addr", "", "If set, serve the in-flight-futures gauge on this address while running")
}
