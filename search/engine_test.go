// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package search

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intel-go/nffbench/common"
	"github.com/intel-go/nffbench/rate"
	"github.com/intel-go/nffbench/stats"
	"github.com/intel-go/nffbench/traffic"
)

const tenGig = 10000000000

var ndrPdr = []Target{{Tag: "ndr", DropRate: 0}, {Tag: "pdr", DropRate: 1}}

type bench struct {
	clock      *traffic.ManualClock
	gen        *traffic.DummyGenerator
	intervals  *stats.IntervalCollector
	iterations *stats.IterationCollector
	engine     *Engine
}

func newBench(t *testing.T, epsilon float64, interval time.Duration, bidirectional bool) *bench {
	b := &bench{clock: traffic.NewManualClock(time.Unix(1000, 0))}
	b.gen = traffic.NewDummyGenerator(b.clock, tenGig, 1)
	require.NoError(t, b.gen.CreateTraffic(context.Background(), "64",
		[]rate.Rate{rate.NewPercent(10)}, bidirectional, false))
	runner := traffic.NewRunner(b.gen, b.clock, 60*time.Second, interval)
	b.intervals = stats.NewIntervalCollector(b.clock.Now)
	b.iterations = stats.NewIterationCollector(b.clock.Now)
	var err error
	b.engine, err = NewEngine(Config{
		FrameSize:     "64",
		IntfSpeed:     tenGig,
		Bidirectional: bidirectional,
		LoadEpsilon:   epsilon,
	}, runner, b.intervals, b.iterations)
	require.NoError(t, err)
	return b
}

func TestLineRateScenario(t *testing.T) {
	b := newBench(t, 1.0, 10*time.Second, true)
	res, err := b.engine.NdrPdr(context.Background(), ndrPdr)
	require.NoError(t, err)

	require.Len(t, res.Targets, 2)
	for _, tag := range []string{"ndr", "pdr"} {
		tr := res.Targets[tag]
		require.NotNil(t, tr, tag)
		assert.True(t, tr.Found(), tag)
		assert.InDelta(t, 100.0, tr.LoadPercentPerDirection, 1.0, tag)
		assert.InDelta(t, 200.0, tr.Percent, 2.0, tag)
		assert.Equal(t, uint64(2*14880952), tr.PPS, tag)
		assert.Empty(t, tr.Warning, tag)
	}
	assert.Equal(t, 1, res.Probes)
	assert.Equal(t, b.gen.Starts(), res.Probes)
	require.Len(t, res.IterationStats.NdrPdr, res.Probes)
	rec := res.IterationStats.NdrPdr[0]
	assert.Equal(t, uint64(2*14880952), rec.Found["ndr"])
	assert.Equal(t, uint64(2*14880952), rec.Found["pdr"])

	// Six interval samples and two found targets.
	assert.Len(t, b.intervals.Get(), 8)
}

func TestMonotonicCurve(t *testing.T) {
	for _, epsilon := range []float64{0.1, 0.5, 1} {
		b := newBench(t, epsilon, 0, false)
		b.gen.SetResponseCurve(10, 50, 100, 100)

		res, err := b.engine.NdrPdr(context.Background(), ndrPdr)
		require.NoError(t, err)
		ndr := res.Targets["ndr"].LoadPercentPerDirection
		pdr := res.Targets["pdr"].LoadPercentPerDirection
		assert.LessOrEqual(t, ndr, pdr, "epsilon %v", epsilon)
		assert.InDelta(t, 50.0, ndr, epsilon, "epsilon %v", epsilon)
		assert.LessOrEqual(t, ndr, 50.0, "epsilon %v", epsilon)
		assert.InDelta(t, 55.0, pdr, epsilon, "epsilon %v", epsilon)
		assert.LessOrEqual(t, pdr, 55.0, "epsilon %v", epsilon)
		assert.Equal(t, res.Probes, len(res.IterationStats.NdrPdr), "epsilon %v", epsilon)
		assert.Equal(t, 0.0, float64(res.Targets["ndr"].Stats.Overall.DropRatePercent))
		assert.LessOrEqual(t, float64(res.Targets["pdr"].Stats.Overall.DropRatePercent), 1.0)
	}
}

func TestSearchDepth(t *testing.T) {
	curves := [][4]float64{
		{0, 100, 100, 100},
		{10, 50, 100, 100},
		{90, 1, 100, 100},
		{5, 99.95, 100, 100},
		{100, 0, 100, 100},
	}
	for _, c := range curves {
		b := newBench(t, 0.1, 0, false)
		b.gen.SetResponseCurve(c[0], c[1], c[2], c[3])
		res, err := b.engine.NdrPdr(context.Background(), ndrPdr)
		require.NoError(t, err)
		assert.LessOrEqual(t, res.MaxDepth, 11, "curve %v", c)
		assert.True(t, res.Targets["ndr"].Found())
		assert.True(t, res.Targets["pdr"].Found())
	}
}

func TestOverloadedAtEveryRate(t *testing.T) {
	b := newBench(t, 1, 0, false)
	b.gen.SetResponseCurve(100, 0, 100, 100)
	res, err := b.engine.NdrPdr(context.Background(), []Target{{Tag: "ndr"}})
	require.NoError(t, err)
	ndr := res.Targets["ndr"]
	assert.True(t, ndr.Found())
	assert.Equal(t, 0.0, ndr.LoadPercentPerDirection)
	assert.Equal(t, uint64(0), ndr.PPS)
	require.NotNil(t, ndr.Stats)
	assert.Len(t, ndr.Stats.Ports, 2)
	assert.Equal(t, int64(0), ndr.Stats.Overall.TX.TotalPkts)
	for _, rec := range res.IterationStats.NdrPdr {
		assert.Empty(t, rec.Found)
	}
}

func TestNoTargets(t *testing.T) {
	b := newBench(t, 1, 0, false)
	res, err := b.engine.NdrPdr(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Targets)
	assert.Equal(t, 0, res.Probes)
	assert.Equal(t, 0, b.gen.Starts())
}

func TestGeneratorFaultStopsSearch(t *testing.T) {
	b := newBench(t, 0.1, 0, false)
	b.gen.SetResponseCurve(10, 50, 100, 100)
	// Two reads per probe: the only sample and the final stats.
	b.gen.FailStatsAfter(2 * 3)

	res, err := b.engine.NdrPdr(context.Background(), ndrPdr)
	require.Error(t, err)
	assert.True(t, common.IsTrafficGenError(err))
	require.NotNil(t, res)
	assert.Equal(t, 3, res.Probes)
	for _, tag := range []string{"ndr", "pdr"} {
		assert.True(t, res.Targets[tag].Found(), tag)
		assert.Equal(t, 50.0, res.Targets[tag].LoadPercentPerDirection, tag)
	}
	assert.Contains(t, res.IterationStats.NdrPdr[1].Found, "ndr")
}

func TestGeneratorFaultAtFirstProbe(t *testing.T) {
	b := newBench(t, 0.1, 0, false)
	b.gen.FailStatsAfter(0)
	res, err := b.engine.NdrPdr(context.Background(), ndrPdr)
	assert.True(t, common.IsTrafficGenError(err))
	require.NotNil(t, res)
	assert.Equal(t, 0, res.Probes)
	for _, tag := range []string{"ndr", "pdr"} {
		assert.True(t, res.Targets[tag].Found(), tag)
		assert.Equal(t, 0.0, res.Targets[tag].LoadPercentPerDirection, tag)
	}
}

func TestLowTxWarning(t *testing.T) {
	b := newBench(t, 1, 0, false)
	b.gen.SetResponseCurve(0, 100, 50, 40)
	res, err := b.engine.NdrPdr(context.Background(), []Target{{Tag: "ndr"}})
	require.NoError(t, err)
	require.NotEmpty(t, res.IterationStats.NdrPdr)
	assert.Contains(t, res.IterationStats.NdrPdr[0].Warning, "significant difference")
	assert.Contains(t, res.Targets["ndr"].Warning, "significant difference")
}

func TestCompareTxRates(t *testing.T) {
	assert.Empty(t, CompareTxRates(1000, 1000))
	assert.Empty(t, CompareTxRates(1000, 900))
	assert.NotEmpty(t, CompareTxRates(1000, 899))
	assert.NotEmpty(t, CompareTxRates(0, 0))
	assert.True(t, strings.HasPrefix(CompareTxRates(1000, 10), "WARNING: There is a significant difference between requested TX rate (1000) and actual TX rate (10)."))
}

func TestTimeTaken(t *testing.T) {
	b := newBench(t, 1, 0, false)
	b.gen.SetResponseCurve(10, 50, 100, 100)
	res, err := b.engine.NdrPdr(context.Background(), ndrPdr)
	require.NoError(t, err)
	ndr, pdr := res.Targets["ndr"], res.Targets["pdr"]
	assert.InDelta(t, ndr.TimestampSec-1000, ndr.TimeTakenSec, 1e-6)
	assert.InDelta(t, pdr.TimestampSec-ndr.TimestampSec, pdr.TimeTakenSec, 1e-6)
	// Every probe sleeps the full duration on the virtual clock.
	assert.InDelta(t, float64(60*res.Probes), pdr.TimestampSec-1000, 1e-6)
}

func TestPdrOnlyTimeTaken(t *testing.T) {
	b := newBench(t, 1, 0, false)
	res, err := b.engine.NdrPdr(context.Background(), []Target{{Tag: "pdr", DropRate: 1}})
	require.NoError(t, err)
	pdr := res.Targets["pdr"]
	assert.InDelta(t, pdr.TimestampSec-1000, pdr.TimeTakenSec, 1e-6)
	assert.InDelta(t, 60.0, pdr.TimeTakenSec, 1e-6)
}

type progress struct {
	sync.Mutex
	found []string
}

func (p *progress) Notify(e stats.Event) error {
	p.Lock()
	defer p.Unlock()
	if e.Kind == stats.TargetFoundEvent {
		p.found = append(p.found, e.Tag)
	}
	return nil
}

func TestTargetFoundEvents(t *testing.T) {
	b := newBench(t, 1, 0, false)
	b.gen.SetResponseCurve(10, 50, 100, 100)
	p := &progress{}
	b.intervals.AttachNotifier(p)
	_, err := b.engine.NdrPdr(context.Background(), ndrPdr)
	require.NoError(t, err)
	b.intervals.Close()
	assert.ElementsMatch(t, []string{"ndr", "pdr"}, p.found)
}

// observer tags packet path stats with TX packets of the probe they
// belong to.
type observer struct {
	gen    *traffic.DummyGenerator
	before []int
	after  []int
}

func (o *observer) BeforeProbe(ctx context.Context) {
	o.before = append(o.before, o.gen.Starts())
}

func (o *observer) AfterProbe(ctx context.Context, snap *stats.Snapshot) map[string]*stats.DirectionDigest {
	o.after = append(o.after, o.gen.Starts())
	tx := strconv.FormatInt(snap.Overall.TX.TotalPkts, 10)
	return map[string]*stats.DirectionDigest{common.Forward: {Interfaces: []string{tx}}}
}

func TestProbeObserver(t *testing.T) {
	b := newBench(t, 1, 10*time.Second, false)
	b.gen.SetResponseCurve(10, 50, 100, 100)
	o := &observer{gen: b.gen}
	b.engine.SetObserver(o)
	res, err := b.engine.NdrPdr(context.Background(), ndrPdr)
	require.NoError(t, err)

	require.Greater(t, res.Probes, 1)
	require.Len(t, o.before, res.Probes)
	require.Len(t, o.after, res.Probes)
	for i := range o.before {
		assert.Equal(t, i, o.before[i], "traffic of probe %d started before observer", i)
		assert.Equal(t, i+1, o.after[i], "traffic of probe %d not run before observer", i)
	}
	for _, tag := range []string{"ndr", "pdr"} {
		tr := res.Targets[tag]
		require.Contains(t, tr.PacketPath, common.Forward, tag)
		assert.Equal(t, []string{strconv.FormatInt(tr.Stats.Overall.TX.TotalPkts, 10)},
			tr.PacketPath[common.Forward].Interfaces, tag)
	}
}

func TestResultJSON(t *testing.T) {
	b := newBench(t, 1, 0, true)
	res, err := b.engine.NdrPdr(context.Background(), ndrPdr)
	require.NoError(t, err)
	data, err := json.Marshal(res)
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Contains(t, fields, "ndr")
	assert.Contains(t, fields, "pdr")
	assert.Contains(t, fields, "iteration_stats")

	var ndr map[string]interface{}
	require.NoError(t, json.Unmarshal(fields["ndr"], &ndr))
	assert.Equal(t, "rate_percent", ndr["initial_rate_type"])
	assert.Equal(t, 100.0, ndr["load_percent_per_direction"])
}

func TestNewEngineValidation(t *testing.T) {
	runner := traffic.NewRunner(nil, nil, time.Second, 0)
	_, err := NewEngine(Config{FrameSize: "64", IntfSpeed: tenGig}, runner, nil, nil)
	assert.Equal(t, common.BadArgument, common.GetBenchErrorCode(err))
	_, err = NewEngine(Config{FrameSize: "64", LoadEpsilon: 1}, runner, nil, nil)
	assert.Equal(t, common.BadArgument, common.GetBenchErrorCode(err))
	_, err = NewEngine(Config{FrameSize: "jumbo", IntfSpeed: tenGig, LoadEpsilon: 1}, runner, nil, nil)
	assert.Equal(t, common.ParseRateErr, common.GetBenchErrorCode(err))
}
