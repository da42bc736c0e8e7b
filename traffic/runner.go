// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package traffic

import (
	"context"
	"time"

	"github.com/intel-go/nffbench/common"
	"github.com/intel-go/nffbench/stats"
)

// Runner runs generator traffic for a fixed duration and samples
// counters every interval. It is idle until Run, running until the
// duration elapses or Stop, and can be run again for the next probe.
type Runner struct {
	gen      Generator
	clock    Clock
	duration time.Duration
	interval time.Duration
	start    time.Time
	running  bool
}

// NewRunner returns runner of gen. Zero interval means no intermediate
// samples: a run sleeps the whole duration at once.
func NewRunner(gen Generator, clock Clock, duration, interval time.Duration) *Runner {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Runner{
		gen:      gen,
		clock:    clock,
		duration: duration,
		interval: interval,
	}
}

// Generator returns the driven generator.
func (r *Runner) Generator() Generator {
	return r.gen
}

// Clock returns the time source of runs.
func (r *Runner) Clock() Clock {
	return r.clock
}

// Run clears generator counters, starts traffic and returns the first
// sample.
func (r *Runner) Run(ctx context.Context) (*stats.Snapshot, error) {
	if err := r.gen.ClearStats(ctx); err != nil {
		return nil, err
	}
	if err := r.gen.StartTraffic(ctx); err != nil {
		return nil, err
	}
	r.start = r.clock.Now()
	r.running = true
	common.LogDebug("Traffic started for", r.duration, "sampling every", r.interval)
	return r.Poll(ctx)
}

// Poll waits for the next sample and returns it. Nil snapshot means
// the run is over: either it was not running or the duration has
// already elapsed, in which case traffic is stopped.
func (r *Runner) Poll(ctx context.Context) (*stats.Snapshot, error) {
	if !r.running {
		return nil, nil
	}
	elapsed := r.Elapsed()
	if elapsed > r.duration {
		return nil, r.Stop(ctx)
	}
	left := r.duration - elapsed
	if r.interval > 0 {
		if left <= r.interval {
			r.clock.Sleep(left)
			if err := r.Stop(ctx); err != nil {
				return nil, err
			}
		} else {
			r.clock.Sleep(r.interval)
		}
	} else {
		r.clock.Sleep(r.duration)
		if err := r.Stop(ctx); err != nil {
			return nil, err
		}
	}
	return r.gen.GetStats(ctx)
}

// RunAll runs traffic to completion passing every sample to sink.
func (r *Runner) RunAll(ctx context.Context, sink func(*stats.Snapshot)) error {
	s, err := r.Run(ctx)
	for ; s != nil && err == nil; s, err = r.Poll(ctx) {
		sink(s)
	}
	if err != nil {
		common.LogErrorsIfNotNil(r.Stop(ctx), "Cannot stop traffic after failure")
	}
	return err
}

// Stop stops traffic. Stopping a stopped runner does nothing.
func (r *Runner) Stop(ctx context.Context) error {
	if !r.running {
		return nil
	}
	r.running = false
	return r.gen.StopTraffic(ctx)
}

// IsRunning reports whether traffic runs.
func (r *Runner) IsRunning() bool {
	return r.running
}

// Elapsed returns time since traffic start, zero when not running.
func (r *Runner) Elapsed() time.Duration {
	if !r.running {
		return 0
	}
	return r.clock.Now().Sub(r.start)
}
