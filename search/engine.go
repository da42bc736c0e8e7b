// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package search finds NDR and PDR: the highest loads at which drop
// rate stays within given ceilings. All targets are searched in one
// binary search tree so a probe serves every target that goes through
// it.
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/intel-go/nffbench/common"
	"github.com/intel-go/nffbench/rate"
	"github.com/intel-go/nffbench/stats"
	"github.com/intel-go/nffbench/traffic"
)

// Load range searched, in percent of line rate per direction.
const (
	MinLoad = 0
	MaxLoad = 200
	// LineLoad is the highest load a direction can carry.
	LineLoad = 100
)

// TxRateThreshold is the lowest actual to requested TX rate ratio not
// reported as a warning.
const TxRateThreshold = 0.9

// Config are parameters of a search.
type Config struct {
	FrameSize     string
	IntfSpeed     uint64
	Bidirectional bool
	LoadEpsilon   float64
}

// ProbeObserver follows every probe of a search. BeforeProbe is called
// once the load is set and before traffic starts, AfterProbe with the
// final generator reading of the probe. Packet path stats returned by
// AfterProbe go to targets found by the probe.
type ProbeObserver interface {
	BeforeProbe(ctx context.Context)
	AfterProbe(ctx context.Context, snap *stats.Snapshot) map[string]*stats.DirectionDigest
}

// Engine runs searches. An engine and its collectors serve one search
// at a time.
type Engine struct {
	cfg        Config
	runner     *traffic.Runner
	intervals  *stats.IntervalCollector
	iterations *stats.IterationCollector
	observer   ProbeObserver
}

// NewEngine returns engine probing with runner and recording into
// given collectors.
func NewEngine(cfg Config, runner *traffic.Runner, intervals *stats.IntervalCollector,
	iterations *stats.IterationCollector) (*Engine, error) {
	if cfg.LoadEpsilon <= 0 {
		return nil, common.NewBenchErrorf(common.BadArgument, "load epsilon must be positive, got %v", cfg.LoadEpsilon)
	}
	if cfg.IntfSpeed == 0 {
		return nil, common.NewBenchErrorf(common.BadArgument, "interface speed is zero")
	}
	if _, err := rate.AvgPacketSize(cfg.FrameSize); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:        cfg,
		runner:     runner,
		intervals:  intervals,
		iterations: iterations,
	}, nil
}

// SetObserver makes o follow probes of following searches.
func (e *Engine) SetObserver(o ProbeObserver) {
	e.observer = o
}

// frame is a pending step of the search: a range to search for
// targets, or targets to resolve at left when resolve is set.
type frame struct {
	left, right float64
	targets     []Target
	depth       int
	resolve     bool
}

type probe struct {
	load   float64
	rates  rate.Rates
	snap   *stats.Snapshot
	record stats.RecordHandle
	paths  map[string]*stats.DirectionDigest
}

type search struct {
	*Engine
	start   time.Time
	results map[string]*TargetResult
	order   []string
	result  *Result
}

// NdrPdr searches [MinLoad, MaxLoad] for every target. Lower half of a
// range is always searched before its upper half. A probe that fails
// with TrafficGenErr stops the search: every unresolved target is
// resolved at the lower bound of its range, and the partial result is
// returned with the error.
func (e *Engine) NdrPdr(ctx context.Context, targets []Target) (*Result, error) {
	s := &search{
		Engine:  e,
		start:   e.runner.Clock().Now(),
		results: make(map[string]*TargetResult, len(targets)),
		result:  &Result{},
	}
	for _, t := range targets {
		s.order = append(s.order, t.Tag)
	}
	common.LogInfo("Searching", s.order, "for frame size", e.cfg.FrameSize, "with load epsilon", e.cfg.LoadEpsilon)

	stack := []frame{{left: MinLoad, right: MaxLoad, targets: targets}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if len(f.targets) == 0 {
			continue
		}
		if f.resolve {
			s.targetsFound(f.left, f.targets)
			continue
		}
		if f.depth > s.result.MaxDepth {
			s.result.MaxDepth = f.depth
		}
		if f.right-f.left < e.cfg.LoadEpsilon {
			s.targetsFound(f.left, f.targets)
			continue
		}

		middle := (f.left + f.right) / 2
		p, err := s.probe(ctx, middle)
		if err != nil {
			if !common.IsTrafficGenError(err) {
				return nil, err
			}
			common.LogError("Traffic generator failed at load", middle, "stopping search:", err)
			s.targetsFound(f.left, f.targets)
			for i := len(stack) - 1; i >= 0; i-- {
				s.targetsFound(stack[i].left, stack[i].targets)
			}
			return s.finish(), err
		}

		drop := float64(p.snap.Overall.DropRatePercent)
		var leftTargets, rightTargets []Target
		for _, t := range f.targets {
			if drop <= t.DropRate {
				rightTargets = append(rightTargets, t)
				s.results[t.Tag] = s.fromProbe(p)
			} else {
				leftTargets = append(leftTargets, t)
				if s.results[t.Tag] == nil {
					s.results[t.Tag] = zeroResult(p.snap)
				}
			}
		}
		common.LogDebug(fmt.Sprintf("Load %.4f%% [%.4f, %.4f] drop %.6f%%: lower %v upper %v",
			middle, f.left, f.right, drop, tags(leftTargets), tags(rightTargets)))

		if middle >= LineLoad {
			stack = append(stack, frame{left: LineLoad, targets: rightTargets, resolve: true})
		} else {
			stack = append(stack, frame{left: middle, right: f.right, targets: rightTargets, depth: f.depth + 1})
		}
		stack = append(stack, frame{left: f.left, right: middle, targets: leftTargets, depth: f.depth + 1})
	}
	return s.finish(), nil
}

func tags(targets []Target) []string {
	t := make([]string, len(targets))
	for i := range targets {
		t[i] = targets[i].Tag
	}
	return t
}

// probe runs traffic at load for the full duration and records the
// outcome.
func (s *search) probe(ctx context.Context, load float64) (*probe, error) {
	rates, err := s.modifyLoad(ctx, load)
	if err != nil {
		return nil, err
	}
	if s.observer != nil {
		s.observer.BeforeProbe(ctx)
	}
	s.intervals.Reset()
	if err := s.runner.RunAll(ctx, s.intervals.Add); err != nil {
		return nil, err
	}
	snap, err := s.runner.Generator().GetStats(ctx)
	if err != nil {
		return nil, err
	}
	var paths map[string]*stats.DirectionDigest
	if s.observer != nil {
		paths = s.observer.AfterProbe(ctx, snap)
	}
	if warning := CompareTxRates(rates.PPS, snap.TotalTxRate); warning != "" {
		common.LogWarning(warning)
		snap.Warning = warning
	}
	s.result.Probes++
	return &probe{
		load:   load,
		rates:  rates,
		snap:   snap,
		record: s.iterations.Add(snap, rates.PPS),
		paths:  paths,
	}, nil
}

// modifyLoad sets load percent of every direction and returns total
// rates. A percent load applies to each direction as is.
func (s *search) modifyLoad(ctx context.Context, load float64) (rate.Rates, error) {
	r := rate.NewPercent(load)
	perDirection, err := rate.Convert(s.cfg.FrameSize, r, s.cfg.IntfSpeed)
	if err != nil {
		return rate.Rates{}, err
	}
	gen := s.runner.Generator()
	if err := gen.ModifyRate(ctx, r, false); err != nil {
		return rate.Rates{}, err
	}
	if !s.cfg.Bidirectional {
		return perDirection, nil
	}
	if err := gen.ModifyRate(ctx, r, true); err != nil {
		return rate.Rates{}, err
	}
	return perDirection.Add(perDirection), nil
}

func (s *search) fromProbe(p *probe) *TargetResult {
	return &TargetResult{
		Rates:                   p.rates,
		LoadPercentPerDirection: p.load,
		Stats:                   p.snap.Clone(),
		Warning:                 p.snap.Warning,
		PacketPath:              p.paths,
		record:                  p.record,
	}
}

// zeroResult is the result of a target no probed load has met yet.
// Its stats have the shape of like with every counter zero.
func zeroResult(like *stats.Snapshot) *TargetResult {
	zero := stats.NewSnapshot()
	if like != nil {
		for _, id := range like.PortIDs() {
			zero.Ports[id] = &stats.PortStats{Latency: stats.NewLatency()}
		}
	}
	zero.ComputeOverall()
	zero.Overall.DropRatePercent = 0
	return &TargetResult{
		Rates:  rate.Rates{Initial: rate.Percent},
		Stats:  zero,
		record: stats.NoRecord,
	}
}

// targetsFound ends search of targets at load.
func (s *search) targetsFound(load float64, targets []Target) {
	now := s.runner.Clock().Now()
	for _, t := range targets {
		res := s.results[t.Tag]
		if res == nil {
			res = zeroResult(nil)
			s.results[t.Tag] = res
		}
		if res.found {
			continue
		}
		res.found = true
		res.TimestampSec = float64(now.UnixNano()) / float64(time.Second)
		common.LogInfo(fmt.Sprintf("Found %s (%.6f%% drop ceiling) at load %.4f%% per direction, %d pps total",
			t.Tag, t.DropRate, load, res.PPS))
		if res.record != stats.NoRecord {
			common.LogErrorsIfNotNil(s.iterations.AddNdrPdr(res.record, t.Tag, res.PPS),
				"Cannot tag iteration record of", t.Tag)
		}
		s.intervals.AddNdrPdr(t.Tag, res.LoadPercentPerDirection, res.Stats)
	}
}

// finish computes time taken by every target: the first target from
// search start, every next target from the previous one.
func (s *search) finish() *Result {
	s.result.Targets = s.results
	s.result.IterationStats.NdrPdr = s.iterations.Get()
	since := float64(s.start.UnixNano()) / float64(time.Second)
	for _, tag := range s.order {
		res := s.results[tag]
		if res == nil || !res.found {
			continue
		}
		res.TimeTakenSec = res.TimestampSec - since
		if res.TimeTakenSec < 0 {
			res.TimeTakenSec = 0
		}
		since = res.TimestampSec
	}
	return s.result
}

// CompareTxRates returns a warning when actual TX rate is
// significantly below required rate, both in packets per second.
func CompareTxRates(required uint64, actual float64) string {
	if required != 0 && actual/float64(required) >= TxRateThreshold {
		return ""
	}
	return fmt.Sprintf("WARNING: There is a significant difference between requested TX rate (%d) "+
		"and actual TX rate (%d). The traffic generator may not have sufficient CPU to achieve the "+
		"requested TX rate.", required, int64(actual))
}
