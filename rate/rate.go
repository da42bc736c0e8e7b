// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rate converts traffic load between percentage of line rate,
// packets per second and bits per second.
package rate

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/intel-go/nffbench/common"
)

// Kind tells which unit of a Rate is authoritative.
type Kind int

// Rate kinds.
const (
	Unknown Kind = iota
	PPS
	BPS
	Percent
)

func (k Kind) String() string {
	switch k {
	case PPS:
		return "rate_pps"
	case BPS:
		return "rate_bps"
	case Percent:
		return "rate_percent"
	}
	return "unknown"
}

// MarshalJSON writes kind as its rate key name.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON reads a rate key name.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("rate type should be a string, got %s", data)
	}
	got, ok := map[string]Kind{
		"rate_pps":     PPS,
		"rate_bps":     BPS,
		"rate_percent": Percent,
	}[s]
	if !ok {
		return fmt.Errorf("invalid rate type %q", s)
	}
	*k = got
	return nil
}

// Rate is a load expressed in exactly one unit. Packets and bits per
// second are integral, percentage of line rate is fractional.
type Rate struct {
	kind    Kind
	count   uint64
	percent float64
}

// NewPPS returns a rate in packets per second.
func NewPPS(pps uint64) Rate {
	return Rate{kind: PPS, count: pps}
}

// NewBPS returns a rate in bits per second.
func NewBPS(bps uint64) Rate {
	return Rate{kind: BPS, count: bps}
}

// NewPercent returns a rate in percent of line rate.
func NewPercent(load float64) Rate {
	return Rate{kind: Percent, percent: load}
}

// Kind returns authoritative unit of r.
func (r Rate) Kind() Kind {
	return r.kind
}

// Value returns the numeric value of r in its own unit.
func (r Rate) Value() float64 {
	if r.kind == Percent {
		return r.percent
	}
	return float64(r.count)
}

// IsZero reports whether r was never set.
func (r Rate) IsZero() bool {
	return r.kind == Unknown
}

// Divide splits r between n streams. Packets and bits per second are
// divided and never go below 1. Percent rates are returned untouched
// because a percentage already applies to every direction.
func (r Rate) Divide(n int) Rate {
	if r.kind == Percent || n <= 1 {
		return r
	}
	value := r.count / uint64(n)
	if value == 0 {
		value = 1
	}
	return Rate{kind: r.kind, count: value}
}

func (r Rate) String() string {
	switch r.kind {
	case PPS:
		return strconv.FormatUint(r.count, 10) + "pps"
	case BPS:
		return strconv.FormatUint(r.count, 10) + "bps"
	case Percent:
		return strconv.FormatFloat(r.percent, 'f', -1, 64) + "%"
	}
	return "unknown"
}

var multipliers = map[byte]float64{
	'k': 1e3,
	'K': 1e3,
	'm': 1e6,
	'M': 1e6,
	'g': 1e9,
	'G': 1e9,
}

// parseScaled parses a number optionally followed by K, M or G.
func parseScaled(s, full string) (float64, error) {
	if s == "" {
		return 0, common.NewBenchErrorf(common.ParseRateErr, "%s is missing a number", full)
	}
	multiplier := 1.0
	if m, ok := multipliers[s[len(s)-1]]; ok {
		multiplier = m
		s = s[:len(s)-1]
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, common.WrapWithBenchError(err, "cannot parse rate "+full, common.ParseRateErr)
	}
	if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, common.NewBenchErrorf(common.ParseRateErr, "%s must be a positive number", full)
	}
	return value * multiplier, nil
}

// Parse reads rate strings such as "1000pps", "1.5Mpps", "10Gbps",
// "2500000bps" or "50%".
func Parse(s string) (Rate, error) {
	str := strings.TrimSpace(s)
	switch {
	case strings.HasSuffix(str, "pps"):
		value, err := parseScaled(strings.TrimSpace(strings.TrimSuffix(str, "pps")), s)
		if err != nil {
			return Rate{}, err
		}
		return NewPPS(uint64(value)), nil
	case strings.HasSuffix(str, "bps"):
		value, err := parseScaled(strings.TrimSpace(strings.TrimSuffix(str, "bps")), s)
		if err != nil {
			return Rate{}, err
		}
		return NewBPS(uint64(value)), nil
	case strings.HasSuffix(str, "%"):
		num := strings.TrimSpace(strings.TrimSuffix(str, "%"))
		if num == "" {
			return Rate{}, common.NewBenchErrorf(common.ParseRateErr, "%s is missing a number", s)
		}
		load, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return Rate{}, common.WrapWithBenchError(err, "cannot parse rate "+s, common.ParseRateErr)
		}
		if load <= 0 || load > 100 {
			return Rate{}, common.NewBenchErrorf(common.ParseRateErr,
				"%s is out of valid range (must be 0-100%%)", s)
		}
		return NewPercent(load), nil
	}
	return Rate{}, common.NewBenchErrorf(common.ParseRateErr, "unknown rate string format %q", s)
}

// ParseSpeed reads an interface speed such as "10Gbps", "25G" or a
// plain number of bits per second.
func ParseSpeed(s string) (uint64, error) {
	str := strings.TrimSuffix(strings.TrimSpace(s), "bps")
	value, err := parseScaled(str, s)
	if err != nil {
		return 0, err
	}
	if value < 1 {
		return 0, common.NewBenchErrorf(common.ParseRateErr, "interface speed %q must not be zero", s)
	}
	return uint64(value), nil
}
