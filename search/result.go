// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package search

import (
	"encoding/json"

	"github.com/intel-go/nffbench/rate"
	"github.com/intel-go/nffbench/stats"
)

// Target is a drop rate ceiling to search the highest load for.
// DropRate is in percent, 0 means no drop.
type Target struct {
	Tag      string
	DropRate float64
}

// TargetResult is the rate found for a target. Rates are totals over
// all directions, LoadPercentPerDirection is the probed load. Stats are
// generator counters of the probe that found the rate, zero when no
// probed rate met the target. PacketPath is hop by hop stats of the
// same probe when the engine has an observer.
type TargetResult struct {
	rate.Rates
	LoadPercentPerDirection float64                           `json:"load_percent_per_direction"`
	Stats                   *stats.Snapshot                   `json:"stats"`
	PacketPath              map[string]*stats.DirectionDigest `json:"packet_path_stats,omitempty"`
	Warning                 string                            `json:"warning,omitempty"`
	TimestampSec            float64                           `json:"timestamp_sec"`
	TimeTakenSec            float64                           `json:"time_taken_sec"`

	record stats.RecordHandle
	found  bool
}

// Found reports whether search of the target is over.
func (r *TargetResult) Found() bool {
	return r.found
}

// IterationStats are records of every probe of a search.
type IterationStats struct {
	NdrPdr []stats.IterationRecord `json:"ndr_pdr"`
}

// Result is outcome of a search. Probes is number of completed probes
// and MaxDepth the deepest level of the search tree reached.
type Result struct {
	Targets        map[string]*TargetResult
	IterationStats IterationStats
	Probes         int
	MaxDepth       int
}

// MarshalJSON writes targets keyed by tag next to "iteration_stats".
func (r *Result) MarshalJSON() ([]byte, error) {
	fields := make(map[string]interface{}, len(r.Targets)+1)
	for tag, t := range r.Targets {
		fields[tag] = t
	}
	fields["iteration_stats"] = r.IterationStats
	return json.Marshal(fields)
}
