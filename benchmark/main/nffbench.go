// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/intel-go/nffbench/benchmark"
	"github.com/intel-go/nffbench/chain"
	"github.com/intel-go/nffbench/common"
	"github.com/intel-go/nffbench/config"
	"github.com/intel-go/nffbench/launcher"
	"github.com/intel-go/nffbench/stats"
	"github.com/intel-go/nffbench/traffic"
)

func progress(e stats.Event) error {
	switch e.Kind {
	case stats.TargetFoundEvent:
		common.LogInfo(fmt.Sprintf("%s found at %.4f%% load: tx %.0f pps, rx %.0f pps, drop %.6f%%",
			e.Tag, e.LoadPercent, e.TxPPS, e.RxPPS, e.DropPct))
	default:
		common.LogInfo(fmt.Sprintf("%d ms: tx %.0f pps, rx %.0f pps, drop %.6f%%",
			e.TimeMs, e.TxPPS, e.RxPPS, e.DropPct))
	}
	return nil
}

// toolDummy is the generator simulated in process.
const toolDummy = "dummy"

func newGenerator(cfg *config.Config) (traffic.Generator, error) {
	switch cfg.Generator.Tool {
	case toolDummy:
		return traffic.NewDummyGenerator(traffic.SystemClock{}, cfg.Generator.IntfSpeed, cfg.Generator.Chains), nil
	}
	return nil, common.NewBenchErrorf(common.ConfigErr, "unsupported traffic generator %q", cfg.Generator.Tool)
}

// checkLaunch refuses to launch a container for a generator that runs
// in process.
func checkLaunch(cfg *config.Config, launch bool) error {
	if launch && cfg.Generator.Tool == toolDummy {
		return common.NewBenchErrorf(common.ConfigErr,
			"generator tool %q runs in process, there is no container to launch", toolDummy)
	}
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	var configFile, frameSize, rateSetting, output, logDir string
	var launch, verbose bool

	flag.StringVar(&configFile, "config", "", "Name of config file to use, defaults are used when empty")
	flag.StringVar(&frameSize, "frame-size", "", "Benchmark only this frame size instead of frame sizes in config file")
	flag.StringVar(&rateSetting, "rate", "", "Override rate: ndr_pdr, ndr, pdr or a fixed rate like 10Mpps, 5Gbps or 50%")
	flag.StringVar(&output, "output", "", "Write JSON result to `file` instead of standard output")
	flag.StringVar(&logDir, "logdir", "", "Write log of every run to `directory`")
	flag.BoolVar(&launch, "launch", false, "Launch container of an external traffic generator configured in [launcher] section, not used by dummy tool")
	flag.BoolVar(&verbose, "v", false, "Verbose output")
	flag.Parse()

	if verbose {
		common.SetLogLevel(common.LogDebugLvl)
	}

	cfg := config.Default()
	if configFile != "" {
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			common.LogPanic(err)
		}
	}
	if rateSetting != "" {
		cfg.Traffic.Rate = rateSetting
	}
	if err := cfg.Validate(); err != nil {
		common.LogPanic(err)
	}
	if err := checkLaunch(cfg, launch); err != nil {
		common.LogPanic(err)
	}
	common.LogDebug(fmt.Sprintf("%+v", *cfg))

	ctx := context.Background()
	if launch {
		l, err := launcher.New(cfg.Launcher)
		if err != nil {
			common.LogPanic(err)
		}
		if err := l.Start(ctx); err != nil {
			common.LogErrorsIfNotNil(l.Stop(ctx), "Cannot clean up generator container")
			common.LogPanic(err)
		}
		defer func() {
			common.LogErrorsIfNotNil(l.Stop(ctx), "Cannot stop generator container")
		}()
		if err := l.WaitReady(ctx, cfg.Generic.RetryCount, cfg.Generic.Poll); err != nil {
			common.LogPanic(err)
		}
	}

	gen, err := newGenerator(cfg)
	if err != nil {
		common.LogPanic(err)
	}
	topo, err := chain.NewGeneratorTopology(cfg.Generator.Chains, cfg.Generator.Hops, cfg.Generator.Shared(),
		cfg.Generator.MeasureHops)
	if err != nil {
		common.LogPanic(err)
	}

	runner := benchmark.NewChainRunner(cfg, gen, traffic.SystemClock{}, topo)
	runner.SetNotifier(stats.NotifierFunc(progress))
	if logDir != "" {
		runner.SetLogDir(logDir)
	}
	res := runner.Run(ctx, frameSize)

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		common.LogPanic(err)
	}
	if output == "" {
		fmt.Println(string(data))
	} else if err := ioutil.WriteFile(output, data, 0644); err != nil {
		common.LogPanic(err)
	}

	if res.Status != benchmark.RunOK {
		common.LogError("Run", res.RunID, "failed:", res.Message)
		return 1
	}
	return 0
}
