// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rate

import (
	"strconv"
	"strings"

	"github.com/intel-go/nffbench/common"
)

// Rates is one load in all three units. Initial is the unit it was
// derived from.
type Rates struct {
	Initial Kind    `json:"initial_rate_type"`
	PPS     uint64  `json:"rate_pps"`
	BPS     uint64  `json:"rate_bps"`
	Percent float64 `json:"rate_percent"`
}

// Add sums two directions into a total.
func (r Rates) Add(o Rates) Rates {
	return Rates{
		Initial: r.Initial,
		PPS:     r.PPS + o.PPS,
		BPS:     r.BPS + o.BPS,
		Percent: r.Percent + o.Percent,
	}
}

// AvgPacketSize returns the average L2 size for a frame size setting,
// which is either a number of bytes or IMIX.
func AvgPacketSize(l2frameSize string) (float64, error) {
	s := strings.TrimSpace(l2frameSize)
	if strings.EqualFold(s, "IMIX") {
		return common.IMIXAvgSize(), nil
	}
	size, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, common.WrapWithBenchError(err, "invalid frame size "+l2frameSize, common.ParseRateErr)
	}
	if size <= 0 {
		return 0, common.NewBenchErrorf(common.ParseRateErr, "invalid frame size %s", l2frameSize)
	}
	return size, nil
}

// PPSToBPS converts packets to bits per second counting L1 overhead.
func PPSToBPS(pps, avgPacketSize float64) float64 {
	return pps * (avgPacketSize + common.L1Overhead) * 8
}

// BPSToPPS is the inverse of PPSToBPS.
func BPSToPPS(bps, avgPacketSize float64) float64 {
	return bps / ((avgPacketSize + common.L1Overhead) * 8)
}

// BPSToLoad returns bps as percentage of intfSpeed.
func BPSToLoad(bps, intfSpeed float64) float64 {
	return bps / intfSpeed * 100
}

// LoadToBPS returns bits per second for a percentage of intfSpeed.
func LoadToBPS(load, intfSpeed float64) float64 {
	return load / 100 * intfSpeed
}

// Convert derives all units of r for given frame size and interface
// speed in bits per second.
func Convert(l2frameSize string, r Rate, intfSpeed uint64) (Rates, error) {
	avg, err := AvgPacketSize(l2frameSize)
	if err != nil {
		return Rates{}, err
	}
	if intfSpeed == 0 {
		return Rates{}, common.NewBenchErrorf(common.BadArgument, "interface speed is zero")
	}
	speed := float64(intfSpeed)

	var pps, bps, load float64
	switch r.Kind() {
	case PPS:
		pps = r.Value()
		bps = PPSToBPS(pps, avg)
		load = BPSToLoad(bps, speed)
	case BPS:
		bps = r.Value()
		load = BPSToLoad(bps, speed)
		pps = BPSToPPS(bps, avg)
	case Percent:
		load = r.Value()
		bps = LoadToBPS(load, speed)
		pps = BPSToPPS(bps, avg)
	default:
		return Rates{}, common.NewBenchErrorf(common.UnknownRateTypeErr,
			"traffic config needs to have a rate type, got %v", r.Kind())
	}
	return Rates{
		Initial: r.Kind(),
		PPS:     uint64(pps),
		BPS:     uint64(bps),
		Percent: load,
	}, nil
}
