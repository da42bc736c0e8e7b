// Copyright 2017 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package common is used for combining common functions and constants
// shared by the rate, stats, traffic and search packages.
package common

// These constants keep length of headers in bytes used to build
// frame templates of a requested L2 size.
const (
	EtherLen   = 14
	IPv4MinLen = 20
	UDPLen     = 8
	// FCS is counted in L2 frame size but not serialized.
	FCSLen = 4
	// L1Overhead is preamble (7), start of frame delimiter (1) and
	// minimal inter frame gap (12) sent on the wire with every frame.
	L1Overhead = 20
)

// Frame size limits accepted for traffic generation.
const (
	MinFrameSize = 64
	MaxFrameSize = 9600
)

// IMIX profile: 7 frames of 64 bytes, 4 of 594 and 1 of 1518.
var (
	IMIXSizes  = [3]int{64, 594, 1518}
	IMIXRatios = [3]int{7, 4, 1}
)

// IMIXAvgSize returns average L2 size of IMIX profile.
func IMIXAvgSize() float64 {
	var sum, count int
	for i := range IMIXSizes {
		sum += IMIXSizes[i] * IMIXRatios[i]
		count += IMIXRatios[i]
	}
	return float64(sum) / float64(count)
}

// Direction names used by packet path digests.
const (
	Forward = "Forward"
	Reverse = "Reverse"
)
