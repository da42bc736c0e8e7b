// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stats holds the statistics model of a benchmark: generator
// snapshots, latency aggregation, per hop packet counters of service
// chains and the collectors of interval and iteration records.
package stats

import (
	"encoding/json"
	"math"
	"strconv"
)

// Counter is a packet counter which may be not measured. A counter
// that was never measured is different from a counter that measured
// zero packets and it contributes nothing to sums.
type Counter struct {
	Value int64
	Valid bool
}

// Count returns a measured counter.
func Count(v int64) Counter {
	return Counter{Value: v, Valid: true}
}

// NoCount is a counter without a value.
var NoCount = Counter{}

// Add sums two counters: a missing counter is no contribution and two
// missing counters stay missing.
func (c Counter) Add(o Counter) Counter {
	switch {
	case !o.Valid:
		return c
	case !c.Valid:
		return o
	}
	return Count(c.Value + o.Value)
}

// Sub returns c - o. A missing c stays missing and a missing o is
// treated as no baseline.
func (c Counter) Sub(o Counter) Counter {
	if !c.Valid || !o.Valid {
		return c
	}
	return Count(c.Value - o.Value)
}

func (c Counter) String() string {
	if !c.Valid {
		return ""
	}
	return strconv.FormatInt(c.Value, 10)
}

// MarshalJSON writes a missing counter as null.
func (c Counter) MarshalJSON() ([]byte, error) {
	if !c.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(c.Value, 10)), nil
}

// UnmarshalJSON reads a number or null.
func (c *Counter) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = NoCount
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*c = Count(v)
	return nil
}

// Percent is a percentage which may be undefined (NaN) or infinite.
// Non finite values are written to JSON as null.
type Percent float64

// MarshalJSON implements json.Marshaler.
func (p Percent) MarshalJSON() ([]byte, error) {
	f := float64(p)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

// UnmarshalJSON reads a number, null reads as NaN.
func (p *Percent) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = Percent(math.NaN())
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*p = Percent(f)
	return nil
}

// DropPercentage returns dropped*100/total. A zero total means the
// generator sent nothing, which is the worst case and reads as +Inf.
func DropPercentage(dropped, total int64) float64 {
	if total == 0 {
		return math.Inf(1)
	}
	return float64(dropped) * 100 / float64(total)
}
