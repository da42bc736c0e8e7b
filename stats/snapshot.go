// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stats

import "sort"

// DirCounters are counters of one direction of a generator port.
// DroppedPkts is filled for the receive side only.
type DirCounters struct {
	TotalPkts     int64   `json:"total_pkts"`
	TotalPktBytes int64   `json:"total_pkt_bytes"`
	PktRate       float64 `json:"pkt_rate"`
	PktBitRate    float64 `json:"pkt_bit_rate"`
	DroppedPkts   int64   `json:"dropped_pkts,omitempty"`
}

func (d DirCounters) add(o DirCounters) DirCounters {
	return DirCounters{
		TotalPkts:     d.TotalPkts + o.TotalPkts,
		TotalPktBytes: d.TotalPktBytes + o.TotalPktBytes,
		PktRate:       d.PktRate + o.PktRate,
		PktBitRate:    d.PktBitRate + o.PktBitRate,
		DroppedPkts:   d.DroppedPkts + o.DroppedPkts,
	}
}

// PortStats has counters of one generator port. Latency is measured on
// packets transmitted by this port.
type PortStats struct {
	TX      DirCounters `json:"tx"`
	RX      DirCounters `json:"rx"`
	Latency Latency     `json:"latency"`
}

// OverallStats sums all ports of a snapshot.
type OverallStats struct {
	PortStats
	DropRatePercent Percent `json:"drop_rate_percent"`
}

// StreamStats are counters of the stream of one chain on one port:
// packets the port sent for the chain, packets of the chain it
// received and latency of the packets it sent.
type StreamStats struct {
	TxPkts  int64   `json:"tx_pkts"`
	RxPkts  int64   `json:"rx_pkts"`
	Latency Latency `json:"latency"`
}

// Snapshot is one reading of generator counters. Counters are
// cumulative since the last clear of generator statistics.
type Snapshot struct {
	Ports       map[int]*PortStats           `json:"ports"`
	TotalTxRate float64                      `json:"total_tx_rate"`
	Overall     OverallStats                 `json:"overall"`
	Chains      map[int]map[int]*StreamStats `json:"chains,omitempty"`
	Warning     string                       `json:"warning,omitempty"`
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Ports:  map[int]*PortStats{},
		Chains: map[int]map[int]*StreamStats{},
	}
}

// PortIDs returns port numbers in increasing order.
func (s *Snapshot) PortIDs() []int {
	ids := make([]int, 0, len(s.Ports))
	for id := range s.Ports {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Stream returns stream counters of chain on port or nil.
func (s *Snapshot) Stream(chain, port int) *StreamStats {
	if s == nil || s.Chains == nil {
		return nil
	}
	return s.Chains[chain][port]
}

// ComputeOverall fills Overall and TotalTxRate from per port
// counters. Dropped packets are packets sent by all ports minus
// packets received by all ports.
func (s *Snapshot) ComputeOverall() {
	var overall OverallStats
	latencies := make([]Latency, 0, len(s.Ports))
	for _, id := range s.PortIDs() {
		p := s.Ports[id]
		overall.TX = overall.TX.add(p.TX)
		overall.RX = overall.RX.add(p.RX)
		latencies = append(latencies, p.Latency)
	}
	overall.RX.DroppedPkts = overall.TX.TotalPkts - overall.RX.TotalPkts
	overall.Latency = MergeLatencies(latencies...)
	overall.DropRatePercent = Percent(DropPercentage(overall.RX.DroppedPkts, overall.TX.TotalPkts))
	s.Overall = overall
	s.TotalTxRate = overall.TX.PktRate
}

// Clone returns a deep copy of s.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.Ports = make(map[int]*PortStats, len(s.Ports))
	for id, p := range s.Ports {
		pc := *p
		c.Ports[id] = &pc
	}
	c.Chains = make(map[int]map[int]*StreamStats, len(s.Chains))
	for chain, ports := range s.Chains {
		c.Chains[chain] = make(map[int]*StreamStats, len(ports))
		for port, st := range ports {
			stc := *st
			c.Chains[chain][port] = &stc
		}
	}
	return &c
}
