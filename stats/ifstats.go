// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stats

import "fmt"

// Role is the role of an interface in a packet path.
type Role int

// Interfaces of a path alternate TX, RX, TX, RX...
const (
	TX Role = iota
	RX
)

func (r Role) String() string {
	if r == TX {
		return "TX"
	}
	return "RX"
}

// Reverse returns the other role.
func (r Role) Reverse() Role {
	if r == TX {
		return RX
	}
	return TX
}

// InterfaceStats are packet counters of one forwarding hop. A shared
// interface carries traffic of all chains and must be counted once
// when chains are aggregated.
type InterfaceStats struct {
	Name   string
	Device string
	Shared bool
	TX     Counter
	RX     Counter
}

// NewInterfaceStats returns interface stats with nothing measured.
func NewInterfaceStats(name, device string, shared bool) *InterfaceStats {
	return &InterfaceStats{
		Name:   name,
		Device: device,
		Shared: shared,
	}
}

func (s *InterfaceStats) String() string {
	return fmt.Sprintf("%s %s %v", s.Name, s.Device, s.Shared)
}

// UpdateStats either stores tx and rx as a baseline (diff false) or
// replaces counters with the delta against the stored baseline (diff
// true). Callers take a baseline before traffic starts and diff after
// it stops; diffing twice without a new baseline subtracts twice.
func (s *InterfaceStats) UpdateStats(tx, rx Counter, diff bool) {
	if diff {
		s.TX = tx.Sub(s.TX)
		s.RX = rx.Sub(s.RX)
	} else {
		s.TX = tx
		s.RX = rx
	}
}

// AddIfStats adds counters of o. Counters o did not measure are
// no contribution.
func (s *InterfaceStats) AddIfStats(o *InterfaceStats) {
	s.TX = s.TX.Add(o.TX)
	s.RX = s.RX.Add(o.RX)
}

// PacketCount returns the counter of given role.
func (s *InterfaceStats) PacketCount(role Role) Counter {
	if role == TX {
		return s.TX
	}
	return s.RX
}

// DisplayName labels the interface as device.ROLE.name, aggregated
// rows use the bare name.
func (s *InterfaceStats) DisplayName(role Role, aggregate bool) string {
	if aggregate {
		return s.Name
	}
	return fmt.Sprintf("%s.%s.%s", s.Device, role, s.Name)
}

// Clone returns a copy of s.
func (s *InterfaceStats) Clone() *InterfaceStats {
	c := *s
	return &c
}
