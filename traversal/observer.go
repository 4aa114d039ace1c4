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

// An Observer is notified as the scheduler starts and finishes the two
// kinds of user futures it drives. It is the engine's only seam for making
// "wait for the next completion" observable from outside: production code
// can pass nil, a metrics exporter can track live futures with a gauge, and
// tests can pair it with a virtual clock to log the exact schedule.
//
// The scheduler calls Starting on its own goroutine just before spawning
// the goroutine that runs the user function, and Finished from within that
// spawned goroutine immediately after the user function returns. With
// parallelism above one, Finished calls for different futures can run
// concurrently with each other and with Starting calls, so an Observer
// shared by such a traversal must be safe for concurrent use.
type Observer interface {
	UnfoldStarting()
	UnfoldFinished()
	FoldStarting()
	FoldFinished()
}

type noopObserver struct{}

func (noopObserver) UnfoldStarting() {}
func (noopObserver) UnfoldFinished() {}
func (noopObserver) FoldStarting()   {}
func (noopObserver) FoldFinished()   {}

// Option configures an optional aspect of a traversal call.
type Option func(*config)

type config struct {
	observer Observer
}

// WithObserver attaches an Observer to a single traversal call. A nil
// Observer (the default) disables instrumentation entirely.
func WithObserver(o Observer) Option {
	return func(c *config) {
		if o != nil {
			c.observer = o
		}
	}
}

func buildConfig(opts []Option) *config {
	c := &config{observer: noopObserver{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
