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

// Command bt exposes the bounded-traversal client packages (dirsum,
// depbuild, revwalk) as a CLI, plus a metrics server that exports the
// engine's live in-flight-futures gauge while a command runs.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgParallelism int
	cfgLogLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "bt",
	Short: "Run bounded-traversal demo workloads",
}

func init() {
	rootCmd.PersistentFlags().IntVar(&cfgParallelism, "parallelism", 8, "Maximum in-flight unfold/fold operations")
	rootCmd.PersistentFlags().StringVar(&cfgLogLevel, "log-level", "info", "One of: debug, info, warn, error")

	viper.BindPFlag("parallelism", rootCmd.PersistentFlags().Lookup("parallelism"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.SetEnvPrefix("bt")
	viper.AutomaticEnv()

	rootCmd.AddCommand(dirsumCmd)
	rootCmd.AddCommand(depbuildCmd)
	rootCmd.AddCommand(revwalkCmd)
	rootCmd.AddCommand(serveMetricsCmd)
}

// parallelism returns the effective parallelism bound, viper's value taking
// precedence over the flag default so BT_PARALLELISM can override it.
func parallelism() int {
	if viper.IsSet("parallelism") {
		return viper.GetInt("parallelism")
	}
	return cfgParallelism
}

// newLogger builds a zerolog logger at the configured level, writing to
// stderr so command output stays clean on stdout.
func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
