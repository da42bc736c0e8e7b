// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package traffic drives a traffic generator through one benchmark
// probe. Generator is the client contract of a generator, Runner runs
// traffic for a fixed duration and samples its counters.
package traffic

import (
	"context"

	"github.com/intel-go/nffbench/rate"
	"github.com/intel-go/nffbench/stats"
)

// Generator is a traffic generator client. Port 0 sends forward
// traffic, port 1 sends reverse traffic when traffic is bidirectional.
// Faults of the generator itself must be returned as TrafficGenErr.
type Generator interface {
	// CreateTraffic sets up streams of given L2 frame size with one
	// rate per direction.
	CreateTraffic(ctx context.Context, frameSize string, rates []rate.Rate, bidirectional, latency bool) error
	// ClearStats resets all counters.
	ClearStats(ctx context.Context) error
	StartTraffic(ctx context.Context) error
	StopTraffic(ctx context.Context) error
	// GetStats returns counters since the last ClearStats.
	GetStats(ctx context.Context) (*stats.Snapshot, error)
	// ModifyRate changes rate of forward or reverse direction.
	ModifyRate(ctx context.Context, r rate.Rate, reverse bool) error
}
