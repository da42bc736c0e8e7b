// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package benchmark

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/xid"

	"github.com/intel-go/nffbench/chain"
	"github.com/intel-go/nffbench/common"
	"github.com/intel-go/nffbench/config"
	"github.com/intel-go/nffbench/rate"
	"github.com/intel-go/nffbench/stats"
	"github.com/intel-go/nffbench/traffic"
)

// runLock allows one benchmark per process.
var runLock sync.Mutex

// RunStatus is a status of a benchmark run.
type RunStatus int

// Constants for run statuses.
const (
	RunOK RunStatus = iota
	RunError
)

func (s RunStatus) String() string {
	if s == RunOK {
		return "OK"
	}
	return "ERROR"
}

// MarshalJSON writes status as a string.
func (s RunStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON unmarshals data and checks status validity.
func (s *RunStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("RunStatus should be a string, got %s", data)
	}

	got, ok := map[string]RunStatus{
		"OK":    RunOK,
		"ERROR": RunError,
	}[str]
	if !ok {
		return fmt.Errorf("invalid RunStatus %q", str)
	}
	*s = got
	return nil
}

// FrameSizeResult is outcome of one frame size: a search or a fixed
// rate run.
type FrameSizeResult struct {
	NdrPdr    *SearchResult    `json:"ndr_pdr,omitempty"`
	FixedRate *FixedRateResult `json:"fixed_rate,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Result is outcome of a benchmark run. Benchmarks are keyed by frame
// size.
type Result struct {
	RunID      string                      `json:"run_id"`
	Status     RunStatus                   `json:"status"`
	Message    string                      `json:"error_message,omitempty"`
	Chains     int                         `json:"chain_count"`
	Benchmarks map[string]*FrameSizeResult `json:"benchmarks"`
}

// ChainRunner runs benchmarks of all frame sizes on a topology.
type ChainRunner struct {
	cfg      *config.Config
	gen      traffic.Generator
	clock    traffic.Clock
	topo     chain.Topology
	notifier stats.Notifier
	logDir   string
}

// NewChainRunner returns runner of benchmarks configured by cfg.
func NewChainRunner(cfg *config.Config, gen traffic.Generator, clock traffic.Clock, topo chain.Topology) *ChainRunner {
	if clock == nil {
		clock = traffic.SystemClock{}
	}
	return &ChainRunner{
		cfg:   cfg,
		gen:   gen,
		clock: clock,
		topo:  topo,
	}
}

// SetNotifier sets receiver of progress events of following runs.
func (r *ChainRunner) SetNotifier(n stats.Notifier) {
	r.notifier = n
}

// SetLogDir makes every run write its log, including package level
// logging while the run lasts, to <dir>/<run id>.log.
func (r *ChainRunner) SetLogDir(dir string) {
	r.logDir = dir
}

func (r *ChainRunner) newLogger(runID string) (*common.Logger, *os.File) {
	if r.logDir == "" {
		return common.NewLogger(nil, runID), nil
	}
	file, err := os.Create(filepath.Join(r.logDir, runID+".log"))
	if err != nil {
		common.LogWarning("Cannot create log file of run", runID, ":", err)
		return common.NewLogger(nil, runID), nil
	}
	return common.NewLogger(file, runID), file
}

// Run benchmarks frameSize, or every configured frame size when it is
// empty, pausing between frame sizes. Only one run executes at a time,
// a run requested while another runs fails. Errors are reported in
// status of the result, a failed search keeps its resolved targets.
func (r *ChainRunner) Run(ctx context.Context, frameSize string) *Result {
	res := &Result{
		RunID:      xid.New().String(),
		Chains:     r.topo.Chains(),
		Benchmarks: map[string]*FrameSizeResult{},
	}
	if !runLock.TryLock() {
		res.Status = RunError
		res.Message = "another benchmark is already running"
		common.LogError("Run", res.RunID, "rejected:", res.Message)
		return res
	}
	defer runLock.Unlock()

	logger, file := r.newLogger(res.RunID)
	if file != nil {
		defer file.Close()
		// Search and traffic logging of the run goes to its file too.
		out := common.LogOutput()
		common.SetLogOutput(io.MultiWriter(out, file))
		defer common.SetLogOutput(out)
	}
	frameSizes := r.cfg.Traffic.FrameSizes
	if frameSize != "" {
		frameSizes = []string{frameSize}
	}
	logger.LogInfo("Starting run with frame sizes", frameSizes, "rate", r.cfg.Traffic.Rate,
		"on", res.Chains, "chains")

	for i, size := range frameSizes {
		if i > 0 && r.cfg.Traffic.Pause > 0 {
			logger.LogDebug("Pausing for", r.cfg.Traffic.Pause)
			r.clock.Sleep(r.cfg.Traffic.Pause)
		}
		fr, err := r.runFrameSize(ctx, size)
		if fr != nil {
			res.Benchmarks[size] = fr
		}
		if err != nil {
			logger.LogErrorsIfNotNil(err, "Benchmark of frame size", size, "failed")
			if fr != nil {
				fr.Error = err.Error()
			}
			res.Status = RunError
			res.Message = fmt.Sprintf("frame size %s: %v", size, err)
			break
		}
	}
	if res.Status == RunOK {
		logger.LogInfo("Run finished")
	}
	return res
}

func (r *ChainRunner) runFrameSize(ctx context.Context, frameSize string) (*FrameSizeResult, error) {
	m, err := NewStatsManager(r.cfg, frameSize, r.gen, r.clock, r.topo)
	if err != nil {
		return nil, err
	}
	if r.notifier != nil {
		m.AttachNotifier(r.notifier)
	}
	defer m.Close()

	if r.cfg.Traffic.Search() {
		res, err := m.NdrPdr(ctx)
		if res == nil {
			return nil, err
		}
		return &FrameSizeResult{NdrPdr: res}, err
	}
	fixed, err := rate.Parse(r.cfg.Traffic.Rate)
	if err != nil {
		return nil, common.WrapWithBenchError(err, "bad rate "+r.cfg.Traffic.Rate, common.ConfigErr)
	}
	res, err := m.RunFixedRate(ctx, fixed)
	if err != nil {
		return nil, err
	}
	return &FrameSizeResult{FixedRate: res}, nil
}
