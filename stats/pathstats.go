// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stats

import (
	"math"
	"strconv"
)

// Latency percentiles reported when a histogram is available.
var ReportedPercentiles = []float64{50, 90, 99}

// PacketPathStats are hop by hop counters of one chain. Hops alternate
// TX and RX roles starting with TX. Latencies[0] is latency of packets
// sent from port 0 (forward), Latencies[1] from port 1 (reverse).
type PacketPathStats struct {
	hops      []*InterfaceStats
	Latencies [2]Latency
	aggregate bool
}

// NewPacketPathStats returns path stats over given hops.
func NewPacketPathStats(hops []*InterfaceStats) *PacketPathStats {
	return &PacketPathStats{
		hops:      hops,
		Latencies: [2]Latency{NewLatency(), NewLatency()},
	}
}

// Hops returns hops in forward order or reversed for the reverse
// direction.
func (p *PacketPathStats) Hops(reverse bool) []*InterfaceStats {
	if !reverse {
		return p.hops
	}
	reversed := make([]*InterfaceStats, len(p.hops))
	for i, h := range p.hops {
		reversed[len(p.hops)-1-i] = h
	}
	return reversed
}

// Len returns number of hops.
func (p *PacketPathStats) Len() int {
	return len(p.hops)
}

// insertHops inserts hops right after the first hop.
func (p *PacketPathStats) insertHops(hops []*InterfaceStats) {
	if len(p.hops) == 0 {
		p.hops = append(p.hops, hops...)
		return
	}
	merged := make([]*InterfaceStats, 0, len(p.hops)+len(hops))
	merged = append(merged, p.hops[0])
	merged = append(merged, hops...)
	merged = append(merged, p.hops[1:]...)
	p.hops = merged
}

func (p *PacketPathStats) clonedHops() []*InterfaceStats {
	hops := make([]*InterfaceStats, len(p.hops))
	for i, h := range p.hops {
		hops[i] = h.Clone()
	}
	return hops
}

// AddPacketPathStats adds counters of o hop by hop. Shared hops are
// skipped since they already count traffic of every chain.
func (p *PacketPathStats) AddPacketPathStats(o *PacketPathStats) {
	for i, h := range p.hops {
		if i >= len(o.hops) {
			break
		}
		if !h.Shared {
			h.AddIfStats(o.hops[i])
		}
	}
}

// AggregatePacketPathStats builds the total of several chains: a clone
// of the first chain with every other chain added, and latencies of
// each port merged over all chains.
func AggregatePacketPathStats(list []*PacketPathStats) *PacketPathStats {
	if len(list) == 0 {
		return nil
	}
	agg := NewPacketPathStats(list[0].clonedHops())
	agg.aggregate = true
	for _, p := range list[1:] {
		agg.AddPacketPathStats(p)
	}
	for port := range agg.Latencies {
		latencies := make([]Latency, len(list))
		for i, p := range list {
			latencies[i] = p.Latencies[port]
		}
		agg.Latencies[port] = MergeLatencies(latencies...)
	}
	return agg
}

// HeaderLabels returns display names of hops in traversal order.
func (p *PacketPathStats) HeaderLabels(reverse bool) []string {
	labels := make([]string, 0, len(p.hops))
	role := TX
	for _, h := range p.Hops(reverse) {
		labels = append(labels, h.DisplayName(role, false))
		role = role.Reverse()
	}
	return labels
}

// HopStats is one hop of a chain digest. Drop count is relative to the
// previous hop shown and drop percentage relative to packets of hop 0.
// Placeholder marks shared hops in per chain rows which carry no value.
type HopStats struct {
	Packets        Counter `json:"packets"`
	DropCount      Counter `json:"packet_drop_count"`
	DropPercentage Percent `json:"packet_drop_percentage"`
	Placeholder    bool    `json:"-"`
}

// LatencyStats is latency of a chain digest row.
type LatencyStats struct {
	MinUsec     float64            `json:"lat_min_usec"`
	MaxUsec     float64            `json:"lat_max_usec"`
	AvgUsec     float64            `json:"lat_avg_usec"`
	Percentiles map[string]float64 `json:"lat_percentile,omitempty"`
	Hdrh        string             `json:"hdrh,omitempty"`
}

// ChainDigest is one row of a direction digest.
type ChainDigest struct {
	Hops    []HopStats    `json:"hops"`
	Latency *LatencyStats `json:"latency,omitempty"`
}

// Packets returns packet counts of the row, placeholders are missing
// counters.
func (d *ChainDigest) Packets() []Counter {
	counters := make([]Counter, len(d.Hops))
	for i := range d.Hops {
		counters[i] = d.Hops[i].Packets
	}
	return counters
}

// Stats returns the digest of one direction. For the reverse direction
// hops are walked backwards and port 1 latency is used.
func (p *PacketPathStats) Stats(reverse bool) *ChainDigest {
	hops := p.Hops(reverse)
	digest := &ChainDigest{Hops: make([]HopStats, len(hops))}
	role := TX
	var first, prev Counter
	for i, h := range hops {
		count := h.PacketCount(role)
		role = role.Reverse()
		hs := &digest.Hops[i]
		hs.DropPercentage = Percent(math.NaN())
		if i > 0 && h.Shared && !p.aggregate {
			hs.Placeholder = true
			continue
		}
		hs.Packets = count
		if i == 0 {
			first = count
			prev = count
			continue
		}
		if count.Valid && prev.Valid {
			hs.DropCount = Count(prev.Value - count.Value)
			if first.Valid && first.Value != 0 {
				hs.DropPercentage = Percent(float64(hs.DropCount.Value) * 100 / float64(first.Value))
			}
		}
		if count.Valid {
			prev = count
		}
	}

	lat := p.Latencies[0]
	if reverse {
		lat = p.Latencies[1]
	}
	if lat.Available() {
		digest.Latency = &LatencyStats{
			MinUsec:     lat.MinUsec,
			MaxUsec:     lat.MaxUsec,
			AvgUsec:     lat.AvgUsec,
			Percentiles: percentileKeys(lat.Percentiles(ReportedPercentiles...)),
			Hdrh:        lat.Hdrh,
		}
	}
	return digest
}

func percentileKeys(values map[float64]float64) map[string]float64 {
	if values == nil {
		return nil
	}
	keyed := make(map[string]float64, len(values))
	for p, v := range values {
		keyed[strconv.FormatFloat(p, 'f', -1, 64)] = v
	}
	return keyed
}
