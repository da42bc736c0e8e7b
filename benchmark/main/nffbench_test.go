// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intel-go/nffbench/common"
	"github.com/intel-go/nffbench/config"
)

func TestCheckLaunch(t *testing.T) {
	cfg := config.Default()
	cfg.Generator.Tool = toolDummy
	assert.NoError(t, checkLaunch(cfg, false))
	err := checkLaunch(cfg, true)
	assert.Equal(t, common.ConfigErr, common.GetBenchErrorCode(err))

	cfg.Generator.Tool = "trex"
	assert.NoError(t, checkLaunch(cfg, true))
}

func TestNewGenerator(t *testing.T) {
	cfg := config.Default()
	cfg.Generator.Tool = toolDummy
	gen, err := newGenerator(cfg)
	require.NoError(t, err)
	assert.NotNil(t, gen)

	cfg.Generator.Tool = "trex"
	_, err = newGenerator(cfg)
	assert.Equal(t, common.ConfigErr, common.GetBenchErrorCode(err))
}
