// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package traffic

import (
	"context"
	"math"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/intel-go/nffbench/common"
	"github.com/intel-go/nffbench/rate"
	"github.com/intel-go/nffbench/stats"
)

// DummyGenerator simulates a generator in front of a device under test
// with a configurable response curve. Counters follow time of the
// given clock, so with a ManualClock a probe is instant and
// reproducible. It is not safe for concurrent use.
type DummyGenerator struct {
	clock     Clock
	intfSpeed uint64
	chains    int

	frameSize     string
	avgSize       float64
	frames        [2][][]byte
	bidirectional bool
	latency       bool
	rates         [2]rate.Rate

	running bool
	started time.Time
	ranFor  time.Duration
	starts  int

	// Response curve in percent of line rate, see SetResponseCurve.
	lrDr        float64
	ndr         float64
	maxActualTx float64
	max11Tx     float64
	drSlope     float64
	txSlope     float64

	statsCalls int
	failAfter  int
}

// NewDummyGenerator returns dummy generator with interfaces of
// intfSpeed bits per second carrying traffic of given number of
// chains. It forwards every packet up to line rate.
func NewDummyGenerator(clock Clock, intfSpeed uint64, chains int) *DummyGenerator {
	if chains < 1 {
		chains = 1
	}
	g := &DummyGenerator{
		clock:     clock,
		intfSpeed: intfSpeed,
		chains:    chains,
		failAfter: -1,
	}
	g.SetResponseCurve(0, 100, 100, 100)
	return g
}

// SetResponseCurve shapes the simulated device. Loads requested up to
// max11Tx are sent as requested, above it the actual load grows
// linearly to reach maxActualTx at 100%. No packet is dropped up to ndr
// actual load, above it drop rate grows linearly to reach lrDr at line
// rate.
func (g *DummyGenerator) SetResponseCurve(lrDr, ndr, maxActualTx, max11Tx float64) {
	g.lrDr = lrDr
	g.ndr = ndr
	g.maxActualTx = maxActualTx
	g.max11Tx = max11Tx
	g.drSlope = 0
	if ndr < 100 {
		g.drSlope = lrDr / (100 - ndr)
	}
	g.txSlope = 0
	if max11Tx < 100 {
		g.txSlope = (maxActualTx - max11Tx) / (100 - max11Tx)
	}
}

// FailStatsAfter makes every GetStats after n successful calls fail
// with TrafficGenErr. Negative n disables the fault.
func (g *DummyGenerator) FailStatsAfter(n int) {
	g.failAfter = n
	g.statsCalls = 0
}

// Starts returns number of traffic starts.
func (g *DummyGenerator) Starts() int {
	return g.starts
}

// Frames returns frame templates of a direction.
func (g *DummyGenerator) Frames(reverse bool) [][]byte {
	if reverse {
		return g.frames[1]
	}
	return g.frames[0]
}

// Rate returns current rate of a direction.
func (g *DummyGenerator) Rate(reverse bool) rate.Rate {
	if reverse {
		return g.rates[1]
	}
	return g.rates[0]
}

// CreateTraffic builds frame templates of both directions and sets
// their rates. A single rate is used for both directions.
func (g *DummyGenerator) CreateTraffic(ctx context.Context, frameSize string, rates []rate.Rate, bidirectional, latency bool) error {
	if len(rates) == 0 {
		return common.NewBenchErrorf(common.BadArgument, "no rate given for traffic")
	}
	avg, err := rate.AvgPacketSize(frameSize)
	if err != nil {
		return err
	}
	for i, reverse := range []bool{false, true} {
		if g.frames[i], err = BuildFrames(frameSize, reverse); err != nil {
			return err
		}
	}
	g.frameSize = frameSize
	g.avgSize = avg
	g.bidirectional = bidirectional
	g.latency = latency
	g.rates[0] = rates[0]
	g.rates[1] = rates[0]
	if len(rates) > 1 {
		g.rates[1] = rates[1]
	}
	common.LogDebug("Dummy traffic created:", frameSize, "bytes, rates", g.rates[0], g.rates[1],
		"bidirectional", bidirectional)
	return nil
}

// ClearStats resets counters.
func (g *DummyGenerator) ClearStats(ctx context.Context) error {
	g.ranFor = 0
	g.started = g.clock.Now()
	return nil
}

// StartTraffic starts sending.
func (g *DummyGenerator) StartTraffic(ctx context.Context) error {
	if g.frameSize == "" {
		return common.NewBenchErrorf(common.TrafficGenErr, "traffic is not created")
	}
	if !g.running {
		g.running = true
		g.started = g.clock.Now()
		g.starts++
	}
	return nil
}

// StopTraffic stops sending. Counters stay until ClearStats.
func (g *DummyGenerator) StopTraffic(ctx context.Context) error {
	if g.running {
		g.ranFor += g.clock.Now().Sub(g.started)
		g.running = false
	}
	return nil
}

// ModifyRate changes rate of one direction.
func (g *DummyGenerator) ModifyRate(ctx context.Context, r rate.Rate, reverse bool) error {
	if r.IsZero() {
		return common.NewBenchErrorf(common.UnknownRateTypeErr, "rate has no type")
	}
	if reverse {
		g.rates[1] = r
	} else {
		g.rates[0] = r
	}
	return nil
}

// actualLoad returns sent load for requested load, in percent.
func (g *DummyGenerator) actualLoad(requested float64) float64 {
	if requested <= g.max11Tx {
		return requested
	}
	return g.max11Tx + (requested-g.max11Tx)*g.txSlope
}

// dropRate returns percentage of dropped packets at actual load.
func (g *DummyGenerator) dropRate(actual float64) float64 {
	if actual <= g.ndr {
		return 0
	}
	return (actual - g.ndr) * g.drSlope
}

type dirCounters struct {
	pps     float64
	tx      int64
	rx      int64
	dropped int64
	load    float64
}

func (g *DummyGenerator) direction(r rate.Rate, secs float64) (dirCounters, error) {
	requested, err := rate.Convert(g.frameSize, r, g.intfSpeed)
	if err != nil {
		return dirCounters{}, err
	}
	load := g.actualLoad(requested.Percent)
	actual := requested
	if load != requested.Percent {
		if actual, err = rate.Convert(g.frameSize, rate.NewPercent(load), g.intfSpeed); err != nil {
			return dirCounters{}, err
		}
	}
	d := dirCounters{
		pps:  float64(actual.PPS),
		tx:   int64(float64(actual.PPS) * secs),
		load: load,
	}
	d.dropped = int64(math.Ceil(float64(d.tx) * g.dropRate(load) / 100))
	if d.dropped > d.tx {
		d.dropped = d.tx
	}
	d.rx = d.tx - d.dropped
	return d, nil
}

func (g *DummyGenerator) portLatency(load float64, packets int64) stats.Latency {
	if !g.latency || packets == 0 {
		return stats.NewLatency()
	}
	l := stats.Latency{
		MinUsec: 10,
		AvgUsec: 10 + math.Round(load/10),
		MaxUsec: 20 + math.Round(load/5),
	}
	h := hdrhistogram.New(1, 1000000, 3)
	common.LogErrorsIfNotNil(h.RecordValue(int64(l.MinUsec)), "Cannot record latency")
	common.LogErrorsIfNotNil(h.RecordValues(int64(l.AvgUsec), 98), "Cannot record latency")
	common.LogErrorsIfNotNil(h.RecordValue(int64(l.MaxUsec)), "Cannot record latency")
	if encoded, err := h.Encode(hdrhistogram.V2CompressedEncodingCookieBase); err == nil {
		l.Hdrh = string(encoded)
	}
	return l
}

// GetStats returns counters since ClearStats. Port 0 sends forward
// traffic received by port 1 and port 1 sends reverse traffic.
func (g *DummyGenerator) GetStats(ctx context.Context) (*stats.Snapshot, error) {
	if g.failAfter >= 0 && g.statsCalls >= g.failAfter {
		return nil, common.NewBenchErrorf(common.TrafficGenErr, "dummy generator fault after %d reads", g.statsCalls)
	}
	g.statsCalls++
	if g.frameSize == "" {
		return nil, common.NewBenchErrorf(common.TrafficGenErr, "traffic is not created")
	}

	ranFor := g.ranFor
	if g.running {
		ranFor += g.clock.Now().Sub(g.started)
	}
	secs := ranFor.Seconds()

	s := stats.NewSnapshot()
	for port := 0; port < 2; port++ {
		s.Ports[port] = &stats.PortStats{Latency: stats.NewLatency()}
	}
	for c := 0; c < g.chains; c++ {
		s.Chains[c] = map[int]*stats.StreamStats{
			0: {Latency: stats.NewLatency()},
			1: {Latency: stats.NewLatency()},
		}
	}
	dirs := 1
	if g.bidirectional {
		dirs = 2
	}
	for port := 0; port < dirs; port++ {
		d, err := g.direction(g.rates[port], secs)
		if err != nil {
			return nil, err
		}
		peer := 1 - port
		tx := &s.Ports[port].TX
		tx.TotalPkts = d.tx
		tx.TotalPktBytes = int64(float64(d.tx) * g.avgSize)
		tx.PktRate = d.pps
		tx.PktBitRate = rate.PPSToBPS(d.pps, g.avgSize)
		rx := &s.Ports[peer].RX
		rx.TotalPkts = d.rx
		rx.TotalPktBytes = int64(float64(d.rx) * g.avgSize)
		rx.PktRate = d.pps * float64(d.rx) / math.Max(float64(d.tx), 1)
		rx.PktBitRate = rate.PPSToBPS(rx.PktRate, g.avgSize)
		rx.DroppedPkts = d.dropped
		s.Ports[port].Latency = g.portLatency(d.load, d.rx)

		for c := 0; c < g.chains; c++ {
			st := s.Chains[c][port]
			st.TxPkts = share(d.tx, g.chains, c)
			st.Latency = s.Ports[port].Latency
			s.Chains[c][peer].RxPkts = share(d.rx, g.chains, c)
		}
	}
	s.ComputeOverall()
	return s, nil
}

// share splits n between parts, part 0 takes the remainder.
func share(n int64, parts, part int) int64 {
	v := n / int64(parts)
	if part == 0 {
		v += n % int64(parts)
	}
	return v
}
