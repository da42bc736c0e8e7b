// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stats

import (
	"strconv"

	"github.com/intel-go/nffbench/common"
)

// TotalKey is the chain key of the aggregated row.
const TotalKey = "total"

// DirectionDigest is the digest of one traffic direction over all
// chains.
type DirectionDigest struct {
	Interfaces []string                `json:"interfaces"`
	Chains     map[string]*ChainDigest `json:"chains"`
}

// PacketPathStatsManager owns path stats of all chains. All chains
// have the same shape.
type PacketPathStatsManager struct {
	paths []*PacketPathStats
}

// NewPacketPathStatsManager returns manager of given chains.
func NewPacketPathStatsManager(paths []*PacketPathStats) *PacketPathStatsManager {
	return &PacketPathStatsManager{paths: paths}
}

// Paths returns path stats of every chain in chain order.
func (m *PacketPathStatsManager) Paths() []*PacketPathStats {
	return m.paths
}

// InsertHops inserts interfaces observed by a worker right after the
// first hop of chain. The inserted list must keep TX/RX alternation.
func (m *PacketPathStatsManager) InsertHops(chain int, hops []*InterfaceStats) error {
	if chain < 0 || chain >= len(m.paths) {
		return common.NewBenchErrorf(common.BadArgument, "no chain %d, %d chains configured", chain, len(m.paths))
	}
	if len(hops)%2 != 0 {
		return common.NewBenchErrorf(common.BadHopsErr, "cannot insert %d hops into chain %d: odd count breaks TX/RX alternation", len(hops), chain)
	}
	m.paths[chain].insertHops(hops)
	return nil
}

// Results returns "Forward" and "Reverse" digests. Every direction has
// one row per chain keyed by chain index and a "total" row when there
// is more than one chain.
func (m *PacketPathStatsManager) Results() map[string]*DirectionDigest {
	results := map[string]*DirectionDigest{}
	if len(m.paths) == 0 {
		return results
	}
	var agg *PacketPathStats
	if len(m.paths) > 1 {
		agg = AggregatePacketPathStats(m.paths)
	}
	for _, reverse := range []bool{false, true} {
		digest := &DirectionDigest{
			Interfaces: m.paths[0].HeaderLabels(reverse),
			Chains:     make(map[string]*ChainDigest, len(m.paths)+1),
		}
		for i, p := range m.paths {
			digest.Chains[strconv.Itoa(i)] = p.Stats(reverse)
		}
		if agg != nil {
			digest.Chains[TotalKey] = agg.Stats(reverse)
		}
		name := common.Forward
		if reverse {
			name = common.Reverse
		}
		results[name] = digest
	}
	return results
}
