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
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jacobsa/boundedtraversal/traversal"
)

// gaugeObserver implements traversal.Observer by tracking the number of
// unfold/fold futures currently in flight in a Prometheus gauge, so an
// operator watching /metrics while a command runs sees live admission
// pressure against the configured parallelism bound.
type gaugeObserver struct {
	live prometheus.Gauge
}

var _ traversal.Observer = (*gaugeObserver)(nil)

func newGaugeObserver(registry *prometheus.Registry) *gaugeObserver {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "bt",
		Subsystem: "traversal",
		Name:      "live_futures",
		Help:      "Number of unfold/fold futures currently in flight.",
	})
	registry.MustRegister(g)
	return &gaugeObserver{live: g}
}

func (o *gaugeObserver) UnfoldStarting() { o.live.Inc() }
func (o *gaugeObserver) UnfoldFinished() { o.live.Dec() }
func (o *gaugeObserver) FoldStarting()   { o.live.Inc() }
func (o *gaugeObserver) FoldFinished()   { o.live.Dec() }

var metricsAddr string

// serveMetricsCmd serves a freshly registered in-flight-futures gauge. No
// traversal runs in this process, so nothing updates the gauge and it reads
// 0; the gauge a command's own traversal updates is served by that
// command's --metrics-addr flag.
var serveMetricsCmd = &cobra.Command{
	Use:   "serve-metrics",
	Short: "Serve an in-flight-futures gauge over HTTP that no traversal in this process updates",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()

		registry := prometheus.NewRegistry()
		newGaugeObserver(registry)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		log.Info().Str("addr", metricsAddr).Msg("bt: serving metrics")
		return srv.ListenAndServe()
	},
}

func init() {
	serveMetricsCmd.Flags().StringVar(&metricsAddr, "addr", ":9090", "Address to serve /metrics on")
}

// observerForCommand returns an Observer wired to a freshly registered
// Prometheus gauge, which it starts serving on addr in the background, and a
// function that shuts that server down. It is used by the data-moving
// subcommands so `bt dirsum --metrics-addr ...` can
// be watched the same way `bt serve-metrics` can.
func observerForCommand(ctx context.Context, logger zerolog.Logger, addr string) (traversal.Observer, func()) {
	if addr == "" {
		return nil, func() {}
	}

	registry := prometheus.NewRegistry()
	obs := newGaugeObserver(registry)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn().Err(err).Msg("bt: metrics server stopped")
		}
	}()

	return obs, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}
}
