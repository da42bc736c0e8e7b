// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stats

import (
	"encoding/json"
	"math"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/intel-go/nffbench/common"
)

// Latency is the latency of one traffic direction in microseconds.
// Hdrh is an optional base64 compressed HDR histogram.
type Latency struct {
	MinUsec float64
	MaxUsec float64
	AvgUsec float64
	Hdrh    string
}

// NewLatency returns latency with nothing measured yet.
func NewLatency() Latency {
	return Latency{MinUsec: math.Inf(1)}
}

// Available reports whether latency was measured.
func (l Latency) Available() bool {
	return !math.IsInf(l.MinUsec, 1)
}

// MergeLatencies aggregates latencies of several streams: minimum of
// minimums, maximum of maximums, average of averages and union of
// histograms. Unavailable latencies are skipped.
func MergeLatencies(list ...Latency) Latency {
	merged := NewLatency()
	var sum float64
	var n int
	var hist *hdrhistogram.Histogram
	for _, l := range list {
		if !l.Available() {
			continue
		}
		merged.MinUsec = math.Min(merged.MinUsec, l.MinUsec)
		merged.MaxUsec = math.Max(merged.MaxUsec, l.MaxUsec)
		sum += l.AvgUsec
		n++
		if l.Hdrh == "" {
			continue
		}
		h, err := hdrhistogram.Decode([]byte(l.Hdrh))
		if err != nil {
			common.LogWarning("Skipping undecodable latency histogram:", err)
			continue
		}
		if hist == nil {
			hist = h
		} else {
			hist.Merge(h)
		}
	}
	if n > 0 {
		merged.AvgUsec = sum / float64(n)
	}
	if hist != nil {
		encoded, err := hist.Encode(hdrhistogram.V2CompressedEncodingCookieBase)
		common.LogErrorsIfNotNil(err, "Cannot encode merged latency histogram")
		if err == nil {
			merged.Hdrh = string(encoded)
		}
	}
	return merged
}

// Percentiles returns latency values at requested percentiles (0..100)
// from the histogram, or nil when there is no histogram.
func (l Latency) Percentiles(percentiles ...float64) map[float64]float64 {
	if l.Hdrh == "" {
		return nil
	}
	h, err := hdrhistogram.Decode([]byte(l.Hdrh))
	if err != nil {
		return nil
	}
	result := make(map[float64]float64, len(percentiles))
	for _, p := range percentiles {
		result[p] = float64(h.ValueAtQuantile(p))
	}
	return result
}

type latencyJSON struct {
	MinUsec float64 `json:"min_usec"`
	MaxUsec float64 `json:"max_usec"`
	AvgUsec float64 `json:"avg_usec"`
	Hdrh    string  `json:"hdrh,omitempty"`
}

// MarshalJSON writes unavailable latency as null.
func (l Latency) MarshalJSON() ([]byte, error) {
	if !l.Available() {
		return []byte("null"), nil
	}
	return json.Marshal(latencyJSON(l))
}

// UnmarshalJSON reads latency, null is unavailable latency.
func (l *Latency) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = NewLatency()
		return nil
	}
	var lj latencyJSON
	if err := json.Unmarshal(data, &lj); err != nil {
		return err
	}
	*l = Latency(lj)
	return nil
}
