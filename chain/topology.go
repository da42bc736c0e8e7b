// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package chain describes service chains under test: hops a packet
// passes through on every chain and where their counters come from.
package chain

import (
	"context"
	"fmt"

	"github.com/intel-go/nffbench/common"
	"github.com/intel-go/nffbench/stats"
)

// Device names of generator port hops, software switch hops and hops
// of a forwarding worker.
const (
	GeneratorDevice = "gen"
	SwitchDevice    = "vswitch"
	WorkerDevice    = "worker"
)

// Hop is one interface of a chain. Hop without a counter source is
// not measured.
type Hop struct {
	Name   string
	Device string
	Shared bool
	Source CounterSource
}

// Topology provides hops of every chain. All chains have the same
// number of hops, the first hop is the generator port sending forward
// traffic and the last is the port sending reverse traffic.
type Topology interface {
	Chains() int
	Hops(chain int) []Hop
	// Port returns generator port sending traffic of a direction.
	Port(reverse bool) int
}

// StaticTopology is a topology given by its hop lists.
type StaticTopology struct {
	chains [][]Hop
}

// NewStaticTopology returns topology of given chains.
func NewStaticTopology(chains [][]Hop) (*StaticTopology, error) {
	for i, hops := range chains {
		if len(hops)%2 != 0 {
			return nil, common.NewBenchErrorf(common.BadHopsErr, "chain %d has odd number of hops %d", i, len(hops))
		}
		if len(hops) != len(chains[0]) {
			return nil, common.NewBenchErrorf(common.BadHopsErr, "chain %d has %d hops, chain 0 has %d",
				i, len(hops), len(chains[0]))
		}
	}
	return &StaticTopology{chains: chains}, nil
}

// MiddleHops returns hops of device named names for chain c of n
// chains. Hop names get chain index appended unless the hop is shared
// or there is one chain. Hops are measured with netlink when measure is
// true.
func MiddleHops(c, n int, names []string, device string, shared map[string]bool, measure bool) []Hop {
	hops := make([]Hop, 0, len(names))
	for _, name := range names {
		h := Hop{Name: name, Device: device, Shared: shared[name]}
		if !h.Shared && n > 1 {
			h.Name = fmt.Sprintf("%s.%d", name, c)
		}
		if measure {
			h.Source = NetlinkLink{Name: h.Name}
		}
		hops = append(hops, h)
	}
	return hops
}

// NewGeneratorTopology returns topology of n chains between generator
// ports 0 and 1. Every chain goes through middle switch hops, see
// MiddleHops.
func NewGeneratorTopology(n int, middle []string, shared map[string]bool, measure bool) (*StaticTopology, error) {
	chains := make([][]Hop, n)
	for c := range chains {
		hops := []Hop{{Name: "port0", Device: GeneratorDevice, Source: GeneratorPort{Chain: c, Port: 0}}}
		hops = append(hops, MiddleHops(c, n, middle, SwitchDevice, shared, measure)...)
		hops = append(hops, Hop{Name: "port1", Device: GeneratorDevice, Source: GeneratorPort{Chain: c, Port: 1}})
		chains[c] = hops
	}
	return NewStaticTopology(chains)
}

// Chains implements Topology.
func (t *StaticTopology) Chains() int {
	return len(t.chains)
}

// Hops implements Topology.
func (t *StaticTopology) Hops(chain int) []Hop {
	return t.chains[chain]
}

// Port implements Topology.
func (t *StaticTopology) Port(reverse bool) int {
	if reverse {
		return 1
	}
	return 0
}

// PathStats keeps packet path stats of all chains of a topology.
type PathStats struct {
	topo    Topology
	sources [][]CounterSource
	manager *stats.PacketPathStatsManager
}

// NewPathStats builds packet path stats of every chain of topo.
func NewPathStats(topo Topology) *PathStats {
	paths := make([]*stats.PacketPathStats, topo.Chains())
	sources := make([][]CounterSource, topo.Chains())
	for c := range paths {
		hops := topo.Hops(c)
		ifs := make([]*stats.InterfaceStats, len(hops))
		sources[c] = make([]CounterSource, len(hops))
		for i, h := range hops {
			ifs[i] = stats.NewInterfaceStats(h.Name, h.Device, h.Shared)
			sources[c][i] = h.Source
		}
		paths[c] = stats.NewPacketPathStats(ifs)
	}
	return &PathStats{
		topo:    topo,
		sources: sources,
		manager: stats.NewPacketPathStatsManager(paths),
	}
}

// Manager returns the packet path stats manager.
func (p *PathStats) Manager() *stats.PacketPathStatsManager {
	return p.manager
}

// InsertHops adds hops observed by a forwarding worker after the first
// hop of a chain.
func (p *PathStats) InsertHops(chain int, hops []Hop) error {
	ifs := make([]*stats.InterfaceStats, len(hops))
	srcs := make([]CounterSource, len(hops))
	for i, h := range hops {
		ifs[i] = stats.NewInterfaceStats(h.Name, h.Device, h.Shared)
		srcs[i] = h.Source
	}
	if err := p.manager.InsertHops(chain, ifs); err != nil {
		return err
	}
	merged := make([]CounterSource, 0, len(p.sources[chain])+len(srcs))
	merged = append(merged, p.sources[chain][0])
	merged = append(merged, srcs...)
	merged = append(merged, p.sources[chain][1:]...)
	p.sources[chain] = merged
	return nil
}

// Update reads counters of every hop. With diff false counters become
// the baseline, with diff true they become the delta since baseline.
// Latencies are taken from chain streams of snap. A hop whose source
// fails is marked not measured.
func (p *PathStats) Update(ctx context.Context, snap *stats.Snapshot, diff bool) {
	for c, path := range p.manager.Paths() {
		for i, ifs := range path.Hops(false) {
			src := p.sources[c][i]
			if src == nil {
				continue
			}
			tx, rx, err := src.Counters(ctx, snap)
			if err != nil {
				common.LogWarning("No counters for", ifs.Name, "of chain", c, ":", err)
				tx, rx = stats.NoCount, stats.NoCount
			}
			ifs.UpdateStats(tx, rx, diff)
		}
		if snap == nil {
			continue
		}
		for dir, reverse := range []bool{false, true} {
			if st := snap.Stream(c, p.topo.Port(reverse)); st != nil {
				path.Latencies[dir] = st.Latency
			}
		}
	}
}
