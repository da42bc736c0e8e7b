// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chain

import (
	"context"

	"github.com/vishvananda/netlink"

	"github.com/intel-go/nffbench/common"
	"github.com/intel-go/nffbench/stats"
)

// CounterSource reads cumulative TX and RX packet counters of a hop.
// Snapshot is the generator reading the counters belong to, nil when
// counters are read before traffic starts.
type CounterSource interface {
	Counters(ctx context.Context, snap *stats.Snapshot) (tx, rx stats.Counter, err error)
}

// GeneratorPort reads counters of one chain stream on a generator
// port. Generator counters are cleared when traffic starts, so the
// reading before traffic is zero.
type GeneratorPort struct {
	Chain int
	Port  int
}

// Counters implements CounterSource.
func (g GeneratorPort) Counters(ctx context.Context, snap *stats.Snapshot) (stats.Counter, stats.Counter, error) {
	if snap == nil {
		return stats.Count(0), stats.Count(0), nil
	}
	st := snap.Stream(g.Chain, g.Port)
	if st == nil {
		return stats.NoCount, stats.NoCount, nil
	}
	return stats.Count(st.TxPkts), stats.Count(st.RxPkts), nil
}

var linkByName = netlink.LinkByName

// NetlinkLink reads counters of a host network interface, for example
// a vhost or tap interface of a software switch.
type NetlinkLink struct {
	Name string
}

// Counters implements CounterSource.
func (l NetlinkLink) Counters(ctx context.Context, snap *stats.Snapshot) (stats.Counter, stats.Counter, error) {
	link, err := linkByName(l.Name)
	if err != nil {
		return stats.NoCount, stats.NoCount, common.WrapWithBenchError(err, "cannot find link "+l.Name, common.CounterSourceErr)
	}
	attrs := link.Attrs()
	if attrs == nil || attrs.Statistics == nil {
		return stats.NoCount, stats.NoCount, common.NewBenchErrorf(common.CounterSourceErr, "link %s has no statistics", l.Name)
	}
	return stats.Count(int64(attrs.Statistics.TxPackets)), stats.Count(int64(attrs.Statistics.RxPackets)), nil
}
