// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package benchmark

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intel-go/nffbench/chain"
	"github.com/intel-go/nffbench/common"
	"github.com/intel-go/nffbench/config"
	"github.com/intel-go/nffbench/rate"
	"github.com/intel-go/nffbench/search"
	"github.com/intel-go/nffbench/stats"
	"github.com/intel-go/nffbench/traffic"
)

type setup struct {
	cfg   *config.Config
	clock *traffic.ManualClock
	gen   *traffic.DummyGenerator
	topo  *chain.StaticTopology
}

func newSetup(t *testing.T, chains int, rateSetting string) *setup {
	cfg := config.Default()
	cfg.Traffic.Duration = 10 * time.Second
	cfg.Traffic.Interval = 2 * time.Second
	cfg.Traffic.Rate = rateSetting
	cfg.Measurement = config.MeasurementConfig{NDR: 0, PDR: 1, LoadEpsilon: 1}
	cfg.Generator.Chains = chains
	require.NoError(t, cfg.Validate())

	s := &setup{cfg: cfg, clock: traffic.NewManualClock(time.Unix(2000, 0))}
	s.gen = traffic.NewDummyGenerator(s.clock, cfg.Generator.IntfSpeed, chains)
	var err error
	s.topo, err = chain.NewGeneratorTopology(chains, nil, nil, false)
	require.NoError(t, err)
	return s
}

func (s *setup) manager(t *testing.T, frameSize string) *StatsManager {
	m, err := NewStatsManager(s.cfg, frameSize, s.gen, s.clock, s.topo)
	require.NoError(t, err)
	return m
}

type recorder struct {
	mu     sync.Mutex
	events []stats.Event
}

func (r *recorder) Notify(e stats.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) found() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var tags []string
	for _, e := range r.events {
		if e.Kind == stats.TargetFoundEvent {
			tags = append(tags, e.Tag)
		}
	}
	return tags
}

func TestRunFixedRate(t *testing.T) {
	s := newSetup(t, 1, "1000pps")
	res, err := s.manager(t, "64").RunFixedRate(context.Background(), rate.NewPPS(1000))
	require.NoError(t, err)

	assert.Equal(t, rate.PPS, res.Rates.Initial)
	assert.Equal(t, uint64(1000), res.Rates.PPS)
	assert.Equal(t, int64(10000), res.Stats.Overall.TX.TotalPkts)
	assert.Len(t, res.IntervalStats, 5)
	assert.Empty(t, res.Warning)
	assert.Equal(t, 10*time.Second, s.clock.Slept())

	for _, dir := range []string{common.Forward, common.Reverse} {
		digest := res.PacketPath[dir]
		require.NotNil(t, digest, dir)
		assert.Len(t, digest.Interfaces, 2, dir)
		assert.NotContains(t, digest.Chains, stats.TotalKey, dir)
		assert.Equal(t, []stats.Counter{stats.Count(5000), stats.Count(5000)}, digest.Chains["0"].Packets(), dir)
		assert.Equal(t, stats.Count(0), digest.Chains["0"].Hops[1].DropCount, dir)
	}
}

func TestRunFixedRateChains(t *testing.T) {
	s := newSetup(t, 2, "1000pps")
	res, err := s.manager(t, "64").RunFixedRate(context.Background(), rate.NewPPS(1000))
	require.NoError(t, err)

	forward := res.PacketPath[common.Forward]
	require.Contains(t, forward.Chains, stats.TotalKey)
	assert.Equal(t, []stats.Counter{stats.Count(2500), stats.Count(2500)}, forward.Chains["0"].Packets())
	assert.Equal(t, []stats.Counter{stats.Count(2500), stats.Count(2500)}, forward.Chains["1"].Packets())
	assert.Equal(t, []stats.Counter{stats.Count(5000), stats.Count(5000)}, forward.Chains[stats.TotalKey].Packets())
}

func TestRunFixedRateWorkerHops(t *testing.T) {
	s := newSetup(t, 1, "1000pps")
	s.cfg.Generator.WorkerHops = []string{"nffbench-no-vf0", "nffbench-no-vf1"}
	res, err := s.manager(t, "64").RunFixedRate(context.Background(), rate.NewPPS(1000))
	require.NoError(t, err)

	forward := res.PacketPath[common.Forward]
	assert.Equal(t, []string{"gen.TX.port0", "worker.RX.nffbench-no-vf0", "worker.TX.nffbench-no-vf1", "gen.RX.port1"},
		forward.Interfaces)
	// Missing links are reported as not measured.
	assert.Equal(t, []stats.Counter{stats.Count(5000), stats.NoCount, stats.NoCount, stats.Count(5000)},
		forward.Chains["0"].Packets())
	assert.Equal(t, stats.Count(0), forward.Chains["0"].Hops[3].DropCount)
}

func TestStatsManagerOddWorkerHops(t *testing.T) {
	s := newSetup(t, 1, "1000pps")
	s.cfg.Generator.WorkerHops = []string{"vf0"}
	_, err := NewStatsManager(s.cfg, "64", s.gen, s.clock, s.topo)
	assert.Equal(t, common.BadHopsErr, common.GetBenchErrorCode(err))
}

func TestRunFixedRateGeneratorFailure(t *testing.T) {
	s := newSetup(t, 1, "1000pps")
	s.gen.FailStatsAfter(0)
	_, err := s.manager(t, "64").RunFixedRate(context.Background(), rate.NewPPS(1000))
	assert.True(t, common.IsTrafficGenError(err))
}

func TestTargets(t *testing.T) {
	tests := []struct {
		rate    string
		targets []search.Target
	}{
		{config.RateNdrPdr, []search.Target{{Tag: TagNDR, DropRate: 0.001}, {Tag: TagPDR, DropRate: 0.1}}},
		{config.RateNdr, []search.Target{{Tag: TagNDR, DropRate: 0.001}}},
		{config.RatePdr, []search.Target{{Tag: TagPDR, DropRate: 0.1}}},
	}
	cfg := config.Default()
	for _, test := range tests {
		cfg.Traffic.Rate = test.rate
		targets, err := Targets(cfg)
		require.NoError(t, err, test.rate)
		assert.Equal(t, test.targets, targets, test.rate)
	}

	cfg.Traffic.Rate = "50%"
	_, err := Targets(cfg)
	assert.Equal(t, common.NoTargetsErr, common.GetBenchErrorCode(err))
}

func TestStatsManagerNdrPdr(t *testing.T) {
	s := newSetup(t, 1, config.RateNdrPdr)
	res, err := s.manager(t, "64").NdrPdr(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Probes)
	for _, tag := range []string{TagNDR, TagPDR} {
		require.Contains(t, res.Targets, tag)
		assert.True(t, res.Targets[tag].Found(), tag)
		assert.Equal(t, uint64(2*14880952), res.Targets[tag].PPS, tag)
	}
	forward := res.PacketPath[common.Forward].Chains["0"]
	packets := forward.Packets()
	require.Len(t, packets, 2)
	assert.True(t, packets[0].Valid)
	assert.Equal(t, packets[0], packets[1])

	data, err := json.Marshal(res)
	require.NoError(t, err)
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, key := range []string{TagNDR, TagPDR, "iteration_stats", "packet_path_stats"} {
		assert.Contains(t, fields, key)
	}
}

// switchPort counts like a software switch interface facing a generator
// port: counters keep growing over every run and are never cleared.
type switchPort struct {
	port   int
	tx, rx int64
}

func (p *switchPort) Counters(ctx context.Context, snap *stats.Snapshot) (stats.Counter, stats.Counter, error) {
	if st := snap.Stream(0, p.port); st != nil {
		p.tx += st.RxPkts
		p.rx += st.TxPkts
	}
	return stats.Count(p.tx), stats.Count(p.rx), nil
}

func TestNdrPdrCumulativeHops(t *testing.T) {
	s := newSetup(t, 1, config.RateNdrPdr)
	s.gen.SetResponseCurve(10, 50, 100, 100)
	var err error
	s.topo, err = chain.NewStaticTopology([][]chain.Hop{{
		{Name: "port0", Device: chain.GeneratorDevice, Source: chain.GeneratorPort{Port: 0}},
		{Name: "vhost0", Device: "vswitch", Source: &switchPort{port: 0}},
		{Name: "vhost1", Device: "vswitch", Source: &switchPort{port: 1}},
		{Name: "port1", Device: chain.GeneratorDevice, Source: chain.GeneratorPort{Port: 1}},
	}})
	require.NoError(t, err)

	res, err := s.manager(t, "64").NdrPdr(context.Background())
	require.NoError(t, err)
	require.Greater(t, res.Probes, 1)

	digests := map[string]map[string]*stats.DirectionDigest{"last": res.PacketPath}
	for _, tag := range []string{TagNDR, TagPDR} {
		digests[tag] = res.Targets[tag].PacketPath
	}
	for name, digest := range digests {
		for _, dir := range []string{common.Forward, common.Reverse} {
			require.Contains(t, digest, dir, name)
			row := digest[dir].Chains["0"]
			packets := row.Packets()
			require.Len(t, packets, 4, name)
			// Switch receives what generator sends and sends what
			// generator receives.
			assert.Equal(t, packets[0], packets[1], "%s %s", name, dir)
			assert.Equal(t, packets[2], packets[3], "%s %s", name, dir)
			for i, hop := range row.Hops[1:] {
				require.True(t, hop.DropCount.Valid, "%s %s hop %d", name, dir, i+1)
				assert.GreaterOrEqual(t, hop.DropCount.Value, int64(0), "%s %s hop %d", name, dir, i+1)
			}
		}
	}

	ndr := res.Targets[TagNDR]
	sent := stats.Count(ndr.Stats.Stream(0, 0).TxPkts)
	assert.True(t, sent.Value > 0)
	assert.Equal(t, []stats.Counter{sent, sent, sent, sent}, ndr.PacketPath[common.Forward].Chains["0"].Packets())
}

func TestChainRunnerFrameSizes(t *testing.T) {
	s := newSetup(t, 1, config.RateNdrPdr)
	s.cfg.Traffic.FrameSizes = []string{"64", "IMIX"}
	s.cfg.Traffic.Pause = 5 * time.Second
	r := NewChainRunner(s.cfg, s.gen, s.clock, s.topo)
	rec := &recorder{}
	r.SetNotifier(rec)

	res := r.Run(context.Background(), "")
	assert.Equal(t, RunOK, res.Status)
	assert.Empty(t, res.Message)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 1, res.Chains)
	require.Len(t, res.Benchmarks, 2)
	for _, size := range []string{"64", "IMIX"} {
		require.NotNil(t, res.Benchmarks[size].NdrPdr, size)
		assert.Nil(t, res.Benchmarks[size].FixedRate, size)
	}
	assert.Equal(t, 25*time.Second, s.clock.Slept())
	assert.Equal(t, []string{TagNDR, TagPDR, TagNDR, TagPDR}, rec.found())
}

func TestChainRunnerSingleFrameSize(t *testing.T) {
	s := newSetup(t, 1, "50%")
	s.cfg.Traffic.FrameSizes = []string{"64", "IMIX"}
	res := NewChainRunner(s.cfg, s.gen, s.clock, s.topo).Run(context.Background(), "1518")
	assert.Equal(t, RunOK, res.Status)
	require.Len(t, res.Benchmarks, 1)
	fixed := res.Benchmarks["1518"].FixedRate
	require.NotNil(t, fixed)
	assert.Equal(t, rate.Percent, fixed.Rates.Initial)
	assert.InDelta(t, 100.0, fixed.Rates.Percent, 1e-9)
}

func TestChainRunnerSearchFailure(t *testing.T) {
	s := newSetup(t, 1, config.RateNdrPdr)
	s.cfg.Traffic.FrameSizes = []string{"64", "IMIX"}
	s.gen.FailStatsAfter(0)

	res := NewChainRunner(s.cfg, s.gen, s.clock, s.topo).Run(context.Background(), "")
	assert.Equal(t, RunError, res.Status)
	assert.Contains(t, res.Message, "frame size 64")
	require.Len(t, res.Benchmarks, 1)
	fr := res.Benchmarks["64"]
	assert.NotEmpty(t, fr.Error)
	require.NotNil(t, fr.NdrPdr)
	for _, tag := range []string{TagNDR, TagPDR} {
		assert.True(t, fr.NdrPdr.Targets[tag].Found(), tag)
		assert.Equal(t, 0.0, fr.NdrPdr.Targets[tag].LoadPercentPerDirection, tag)
	}
}

func TestChainRunnerBusy(t *testing.T) {
	s := newSetup(t, 1, config.RateNdrPdr)
	runLock.Lock()
	res := NewChainRunner(s.cfg, s.gen, s.clock, s.topo).Run(context.Background(), "")
	runLock.Unlock()

	assert.Equal(t, RunError, res.Status)
	assert.NotEmpty(t, res.Message)
	assert.Empty(t, res.Benchmarks)
	assert.Equal(t, 0, s.gen.Starts())
}

func TestChainRunnerLogFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "nffbench")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	s := newSetup(t, 1, config.RateNdr)
	r := NewChainRunner(s.cfg, s.gen, s.clock, s.topo)
	r.SetLogDir(dir)
	out := common.LogOutput()
	res := r.Run(context.Background(), "")
	require.Equal(t, RunOK, res.Status)
	assert.True(t, out == common.LogOutput(), "package logging is not restored after run")

	data, err := ioutil.ReadFile(filepath.Join(dir, res.RunID+".log"))
	require.NoError(t, err)
	log := string(data)
	assert.Contains(t, log, res.RunID)
	assert.Contains(t, log, "Searching [ndr] for frame size 64")
	assert.Contains(t, log, "Found ndr")

	common.LogInfo("after the run")
	data, err = ioutil.ReadFile(filepath.Join(dir, res.RunID+".log"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "after the run")
}

func TestRunStatusJSON(t *testing.T) {
	data, err := json.Marshal(&Result{RunID: "r1", Status: RunError, Message: "boom"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"ERROR"`)

	var res Result
	require.NoError(t, json.Unmarshal(data, &res))
	assert.Equal(t, RunError, res.Status)

	var status RunStatus
	assert.Error(t, json.Unmarshal([]byte(`"DONE"`), &status))
	assert.Error(t, json.Unmarshal([]byte(`1`), &status))
}
