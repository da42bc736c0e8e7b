// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads benchmark settings from an ini file.
package config

import (
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/intel-go/nffbench/common"
	"github.com/intel-go/nffbench/rate"
)

// Section and key labels of the config file.
const (
	LblTraffic       = "traffic"
	LblDuration      = "duration_sec"
	LblInterval      = "interval_sec"
	LblPause         = "pause_sec"
	LblFrameSizes    = "frame_sizes"
	LblBidirectional = "bidirectional"
	LblRate          = "rate"
	LblLatency       = "latency"

	LblMeasurement = "measurement"
	LblNDR         = "NDR"
	LblPDR         = "PDR"
	LblLoadEpsilon = "load_epsilon"

	LblGenerator  = "generator"
	LblTool       = "tool"
	LblIntfSpeed  = "intf_speed"
	LblChains     = "chains"
	LblHops       = "hops"
	LblSharedHops = "shared_hops"
	LblMeasure    = "measure_hops"
	LblWorkerHops = "worker_hops"

	LblGeneric    = "generic"
	LblRetryCount = "generic_retry_count"
	LblPoll       = "generic_poll_sec"

	LblLauncher   = "launcher"
	LblHost       = "host"
	LblVersion    = "version"
	LblImage      = "image"
	LblCommand    = "command"
	LblPrivileged = "privileged"
	LblVolumes    = "volumes"
	LblPort       = "port"
	LblTimeout    = "request_timeout_sec"
)

// Rate settings searching for NDR and PDR instead of a fixed rate.
const (
	RateNdrPdr = "ndr_pdr"
	RateNdr    = "ndr"
	RatePdr    = "pdr"
)

// TrafficConfig controls traffic of every run.
type TrafficConfig struct {
	Duration      time.Duration
	Interval      time.Duration
	Pause         time.Duration
	FrameSizes    []string
	Bidirectional bool
	// Rate is ndr_pdr, ndr, pdr or a fixed rate like 10Mpps or 50%.
	Rate    string
	Latency bool
}

// Search reports whether Rate asks for NDR/PDR search.
func (t *TrafficConfig) Search() bool {
	switch t.Rate {
	case RateNdrPdr, RateNdr, RatePdr:
		return true
	}
	return false
}

// MeasurementConfig has drop rate ceilings in percent and search
// resolution in percent of line rate.
type MeasurementConfig struct {
	NDR         float64
	PDR         float64
	LoadEpsilon float64
}

// GeneratorConfig describes the traffic generator and chains between
// its ports. Hops are middle interfaces of every chain. WorkerHops are
// interfaces of a forwarding worker read with netlink and accounted
// right after generator port 0 of every chain.
type GeneratorConfig struct {
	Tool        string
	IntfSpeed   uint64
	Chains      int
	Hops        []string
	SharedHops  []string
	MeasureHops bool
	WorkerHops  []string
}

// Shared returns set of hop names shared by all chains.
func (g *GeneratorConfig) Shared() map[string]bool {
	shared := make(map[string]bool, len(g.SharedHops))
	for _, name := range g.SharedHops {
		shared[name] = true
	}
	return shared
}

// GenericConfig is retry policy of generator control.
type GenericConfig struct {
	RetryCount int
	Poll       time.Duration
}

// LauncherConfig describes the container running the generator. Empty
// Image means the generator is not launched.
type LauncherConfig struct {
	Host           string
	Version        string
	Image          string
	Command        []string
	Privileged     bool
	Volumes        []string
	Port           int
	RequestTimeout time.Duration
}

// Config is the whole benchmark configuration.
type Config struct {
	Traffic     TrafficConfig
	Measurement MeasurementConfig
	Generator   GeneratorConfig
	Generic     GenericConfig
	Launcher    LauncherConfig
}

// Default returns configuration used for settings missing in a file.
func Default() *Config {
	return &Config{
		Traffic: TrafficConfig{
			Duration:      60 * time.Second,
			Interval:      10 * time.Second,
			FrameSizes:    []string{"64"},
			Bidirectional: true,
			Rate:          RateNdrPdr,
		},
		Measurement: MeasurementConfig{
			NDR:         0.001,
			PDR:         0.1,
			LoadEpsilon: 0.1,
		},
		Generator: GeneratorConfig{
			Tool:      "dummy",
			IntfSpeed: 10000000000,
			Chains:    1,
		},
		Generic: GenericConfig{
			RetryCount: 100,
			Poll:       2 * time.Second,
		},
		Launcher: LauncherConfig{
			Host:           "tcp://localhost:2375",
			Version:        "1.24",
			Port:           4501,
			RequestTimeout: 10 * time.Second,
		},
	}
}

// Load reads config file at path on top of defaults.
func Load(path string) (*Config, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, common.WrapWithBenchError(err, "cannot load config "+path, common.ConfigErr)
	}
	return parse(cfg)
}

// LoadData reads config from ini text on top of defaults.
func LoadData(data []byte) (*Config, error) {
	cfg, err := ini.Load(data)
	if err != nil {
		return nil, common.WrapWithBenchError(err, "cannot parse config", common.ConfigErr)
	}
	return parse(cfg)
}

type reader struct {
	cfg *ini.File
	err error
}

func (r *reader) fail(section, key string, err error) {
	if r.err == nil {
		r.err = common.WrapWithBenchError(err, "bad value of "+section+"."+key, common.ConfigErr)
	}
}

func (r *reader) seconds(section, key string, v *time.Duration) {
	s := r.cfg.Section(section)
	if !s.HasKey(key) {
		return
	}
	f, err := s.Key(key).Float64()
	if err != nil {
		r.fail(section, key, err)
		return
	}
	*v = time.Duration(f * float64(time.Second))
}

func (r *reader) float(section, key string, v *float64) {
	s := r.cfg.Section(section)
	if !s.HasKey(key) {
		return
	}
	f, err := s.Key(key).Float64()
	if err != nil {
		r.fail(section, key, err)
		return
	}
	*v = f
}

func (r *reader) int(section, key string, v *int) {
	s := r.cfg.Section(section)
	if !s.HasKey(key) {
		return
	}
	i, err := s.Key(key).Int()
	if err != nil {
		r.fail(section, key, err)
		return
	}
	*v = i
}

func (r *reader) bool(section, key string, v *bool) {
	s := r.cfg.Section(section)
	if !s.HasKey(key) {
		return
	}
	b, err := s.Key(key).Bool()
	if err != nil {
		r.fail(section, key, err)
		return
	}
	*v = b
}

func (r *reader) string(section, key string, v *string) {
	s := r.cfg.Section(section)
	if s.HasKey(key) {
		*v = strings.TrimSpace(s.Key(key).String())
	}
}

func (r *reader) list(section, key, delim string, v *[]string) {
	s := r.cfg.Section(section)
	if !s.HasKey(key) {
		return
	}
	var items []string
	for _, item := range s.Key(key).Strings(delim) {
		if item != "" {
			items = append(items, item)
		}
	}
	*v = items
}

func parse(cfg *ini.File) (*Config, error) {
	c := Default()
	r := &reader{cfg: cfg}

	r.seconds(LblTraffic, LblDuration, &c.Traffic.Duration)
	r.seconds(LblTraffic, LblInterval, &c.Traffic.Interval)
	r.seconds(LblTraffic, LblPause, &c.Traffic.Pause)
	r.list(LblTraffic, LblFrameSizes, ",", &c.Traffic.FrameSizes)
	r.bool(LblTraffic, LblBidirectional, &c.Traffic.Bidirectional)
	r.string(LblTraffic, LblRate, &c.Traffic.Rate)
	r.bool(LblTraffic, LblLatency, &c.Traffic.Latency)

	r.float(LblMeasurement, LblNDR, &c.Measurement.NDR)
	r.float(LblMeasurement, LblPDR, &c.Measurement.PDR)
	r.float(LblMeasurement, LblLoadEpsilon, &c.Measurement.LoadEpsilon)

	r.string(LblGenerator, LblTool, &c.Generator.Tool)
	speed := ""
	r.string(LblGenerator, LblIntfSpeed, &speed)
	r.int(LblGenerator, LblChains, &c.Generator.Chains)
	r.list(LblGenerator, LblHops, ",", &c.Generator.Hops)
	r.list(LblGenerator, LblSharedHops, ",", &c.Generator.SharedHops)
	r.bool(LblGenerator, LblMeasure, &c.Generator.MeasureHops)
	r.list(LblGenerator, LblWorkerHops, ",", &c.Generator.WorkerHops)

	r.int(LblGeneric, LblRetryCount, &c.Generic.RetryCount)
	r.seconds(LblGeneric, LblPoll, &c.Generic.Poll)

	r.string(LblLauncher, LblHost, &c.Launcher.Host)
	r.string(LblLauncher, LblVersion, &c.Launcher.Version)
	r.string(LblLauncher, LblImage, &c.Launcher.Image)
	r.list(LblLauncher, LblCommand, " ", &c.Launcher.Command)
	r.bool(LblLauncher, LblPrivileged, &c.Launcher.Privileged)
	r.list(LblLauncher, LblVolumes, ",", &c.Launcher.Volumes)
	r.int(LblLauncher, LblPort, &c.Launcher.Port)
	r.seconds(LblLauncher, LblTimeout, &c.Launcher.RequestTimeout)
	if r.err != nil {
		return nil, r.err
	}

	if speed != "" {
		s, err := rate.ParseSpeed(speed)
		if err != nil {
			return nil, common.WrapWithBenchError(err, "bad value of generator.intf_speed", common.ConfigErr)
		}
		c.Generator.IntfSpeed = s
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks consistency of settings.
func (c *Config) Validate() error {
	t := &c.Traffic
	switch {
	case t.Duration <= 0:
		return common.NewBenchErrorf(common.ConfigErr, "%s must be positive", LblDuration)
	case t.Interval < 0:
		return common.NewBenchErrorf(common.ConfigErr, "%s must not be negative", LblInterval)
	case len(t.FrameSizes) == 0:
		return common.NewBenchErrorf(common.ConfigErr, "no %s configured", LblFrameSizes)
	case c.Measurement.LoadEpsilon <= 0:
		return common.NewBenchErrorf(common.ConfigErr, "%s must be positive", LblLoadEpsilon)
	case c.Measurement.NDR < 0 || c.Measurement.PDR < c.Measurement.NDR:
		return common.NewBenchErrorf(common.ConfigErr, "need 0 <= NDR <= PDR, got NDR %v PDR %v",
			c.Measurement.NDR, c.Measurement.PDR)
	case c.Generator.Chains < 1:
		return common.NewBenchErrorf(common.ConfigErr, "%s must be at least 1", LblChains)
	case c.Generator.IntfSpeed == 0:
		return common.NewBenchErrorf(common.ConfigErr, "%s must be positive", LblIntfSpeed)
	case len(c.Generator.Hops)%2 != 0:
		return common.NewBenchErrorf(common.ConfigErr, "%s must keep TX/RX pairs, got %d hops",
			LblHops, len(c.Generator.Hops))
	case len(c.Generator.WorkerHops)%2 != 0:
		return common.NewBenchErrorf(common.ConfigErr, "%s must keep TX/RX pairs, got %d hops",
			LblWorkerHops, len(c.Generator.WorkerHops))
	}
	for _, size := range t.FrameSizes {
		if _, err := rate.AvgPacketSize(size); err != nil {
			return common.WrapWithBenchError(err, "bad frame size "+size, common.ConfigErr)
		}
	}
	if !t.Search() {
		if _, err := rate.Parse(t.Rate); err != nil {
			return common.WrapWithBenchError(err, "bad rate "+t.Rate, common.ConfigErr)
		}
	}
	return nil
}
