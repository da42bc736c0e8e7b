// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package benchmark runs benchmarks of service chains: traffic at a
// fixed rate or NDR/PDR search, with packet path accounting of every
// chain.
package benchmark

import (
	"context"
	"encoding/json"

	"github.com/intel-go/nffbench/chain"
	"github.com/intel-go/nffbench/common"
	"github.com/intel-go/nffbench/config"
	"github.com/intel-go/nffbench/rate"
	"github.com/intel-go/nffbench/search"
	"github.com/intel-go/nffbench/stats"
	"github.com/intel-go/nffbench/traffic"
)

// Tags of search targets.
const (
	TagNDR = "ndr"
	TagPDR = "pdr"
)

// FixedRateResult is outcome of traffic at a fixed rate. Rates are
// totals over all directions.
type FixedRateResult struct {
	Rates         rate.Rates                        `json:"rates"`
	Stats         *stats.Snapshot                   `json:"stats"`
	IntervalStats []stats.IntervalSample            `json:"interval_stats"`
	PacketPath    map[string]*stats.DirectionDigest `json:"packet_path_stats"`
	Warning       string                            `json:"warning,omitempty"`
}

// SearchResult is outcome of NDR/PDR search with packet path stats of
// the last probe.
type SearchResult struct {
	*search.Result
	PacketPath map[string]*stats.DirectionDigest
}

// MarshalJSON writes search result fields next to "packet_path_stats".
func (r *SearchResult) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(r.Result)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	if fields["packet_path_stats"], err = json.Marshal(r.PacketPath); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// StatsManager runs traffic of one frame size through all chains of a
// topology and accounts packets on every hop.
type StatsManager struct {
	cfg        *config.Config
	frameSize  string
	runner     *traffic.Runner
	paths      *chain.PathStats
	intervals  *stats.IntervalCollector
	iterations *stats.IterationCollector
}

// NewStatsManager returns stats manager sending frames of frameSize
// with gen. Time of collected samples follows clock. Configured worker
// hops are added to every chain of topo.
func NewStatsManager(cfg *config.Config, frameSize string, gen traffic.Generator, clock traffic.Clock,
	topo chain.Topology) (*StatsManager, error) {
	if _, err := rate.AvgPacketSize(frameSize); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = traffic.SystemClock{}
	}
	paths := chain.NewPathStats(topo)
	if names := cfg.Generator.WorkerHops; len(names) > 0 {
		shared := cfg.Generator.Shared()
		for c := 0; c < topo.Chains(); c++ {
			hops := chain.MiddleHops(c, topo.Chains(), names, chain.WorkerDevice, shared, true)
			if err := paths.InsertHops(c, hops); err != nil {
				return nil, err
			}
		}
	}
	return &StatsManager{
		cfg:        cfg,
		frameSize:  frameSize,
		runner:     traffic.NewRunner(gen, clock, cfg.Traffic.Duration, cfg.Traffic.Interval),
		paths:      paths,
		intervals:  stats.NewIntervalCollector(clock.Now),
		iterations: stats.NewIterationCollector(clock.Now),
	}, nil
}

// Paths returns packet path stats of all chains.
func (m *StatsManager) Paths() *chain.PathStats {
	return m.paths
}

// AttachNotifier sends progress events of traffic to n until Close.
func (m *StatsManager) AttachNotifier(n stats.Notifier) {
	m.intervals.AttachNotifier(n)
}

// Close delivers pending progress events.
func (m *StatsManager) Close() {
	m.intervals.Close()
}

// directionRates splits total rate r between directions.
func (m *StatsManager) directionRates(r rate.Rate) []rate.Rate {
	if !m.cfg.Traffic.Bidirectional {
		return []rate.Rate{r}
	}
	perDirection := r.Divide(2)
	return []rate.Rate{perDirection, perDirection}
}

func (m *StatsManager) totalRates(rates []rate.Rate) (rate.Rates, error) {
	var total rate.Rates
	for i, r := range rates {
		converted, err := rate.Convert(m.frameSize, r, m.cfg.Generator.IntfSpeed)
		if err != nil {
			return rate.Rates{}, err
		}
		if i == 0 {
			total = converted
		} else {
			total = total.Add(converted)
		}
	}
	return total, nil
}

// RunFixedRate sends traffic at total rate r for the configured
// duration. Hop counters read before traffic are the baseline of
// counters read after it.
func (m *StatsManager) RunFixedRate(ctx context.Context, r rate.Rate) (*FixedRateResult, error) {
	rates := m.directionRates(r)
	total, err := m.totalRates(rates)
	if err != nil {
		return nil, err
	}
	gen := m.runner.Generator()
	if err := gen.CreateTraffic(ctx, m.frameSize, rates, m.cfg.Traffic.Bidirectional, m.cfg.Traffic.Latency); err != nil {
		return nil, err
	}
	common.LogInfo("Running", m.frameSize, "byte frames at", r, "for", m.cfg.Traffic.Duration)

	m.paths.Update(ctx, nil, false)
	m.intervals.Reset()
	if err := m.runner.RunAll(ctx, m.intervals.Add); err != nil {
		return nil, err
	}
	snap, err := gen.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	m.paths.Update(ctx, snap, true)

	res := &FixedRateResult{
		Rates:         total,
		Stats:         snap,
		IntervalStats: m.intervals.Get(),
		PacketPath:    m.paths.Manager().Results(),
	}
	if res.Warning = search.CompareTxRates(total.PPS, snap.TotalTxRate); res.Warning != "" {
		common.LogWarning(res.Warning)
		snap.Warning = res.Warning
	}
	return res, nil
}

// Targets returns search targets configured by cfg.
func Targets(cfg *config.Config) ([]search.Target, error) {
	ndr := search.Target{Tag: TagNDR, DropRate: cfg.Measurement.NDR}
	pdr := search.Target{Tag: TagPDR, DropRate: cfg.Measurement.PDR}
	switch cfg.Traffic.Rate {
	case config.RateNdrPdr:
		return []search.Target{ndr, pdr}, nil
	case config.RateNdr:
		return []search.Target{ndr}, nil
	case config.RatePdr:
		return []search.Target{pdr}, nil
	}
	return nil, common.NewBenchErrorf(common.NoTargetsErr, "rate %q searches no target", cfg.Traffic.Rate)
}

// pathObserver accounts packet path stats of every probe: hop
// counters are a baseline before traffic and a delta after it.
type pathObserver struct {
	paths *chain.PathStats
	last  map[string]*stats.DirectionDigest
}

func (o *pathObserver) BeforeProbe(ctx context.Context) {
	o.paths.Update(ctx, nil, false)
}

func (o *pathObserver) AfterProbe(ctx context.Context, snap *stats.Snapshot) map[string]*stats.DirectionDigest {
	o.paths.Update(ctx, snap, true)
	o.last = o.paths.Manager().Results()
	return o.last
}

// NdrPdr searches for configured targets. Every target carries packet
// path stats of the probe that found it, the result carries those of
// the last probe. A search stopped by a generator failure returns
// resolved targets along with the error.
func (m *StatsManager) NdrPdr(ctx context.Context) (*SearchResult, error) {
	targets, err := Targets(m.cfg)
	if err != nil {
		return nil, err
	}
	engine, err := search.NewEngine(search.Config{
		FrameSize:     m.frameSize,
		IntfSpeed:     m.cfg.Generator.IntfSpeed,
		Bidirectional: m.cfg.Traffic.Bidirectional,
		LoadEpsilon:   m.cfg.Measurement.LoadEpsilon,
	}, m.runner, m.intervals, m.iterations)
	if err != nil {
		return nil, err
	}
	observer := &pathObserver{paths: m.paths}
	engine.SetObserver(observer)

	rates := []rate.Rate{rate.NewPercent(search.LineLoad)}
	if m.cfg.Traffic.Bidirectional {
		rates = append(rates, rates[0])
	}
	gen := m.runner.Generator()
	if err := gen.CreateTraffic(ctx, m.frameSize, rates, m.cfg.Traffic.Bidirectional, m.cfg.Traffic.Latency); err != nil {
		return nil, err
	}

	res, err := engine.NdrPdr(ctx, targets)
	if res == nil {
		return nil, err
	}
	return &SearchResult{Result: res, PacketPath: observer.last}, err
}
