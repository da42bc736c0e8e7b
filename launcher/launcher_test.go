// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package launcher

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intel-go/nffbench/common"
	"github.com/intel-go/nffbench/config"
)

func trexConfig() config.LauncherConfig {
	cfg := config.Default().Launcher
	cfg.Image = "trex:latest"
	cfg.Command = []string{"./t-rex-64", "-i"}
	cfg.Volumes = []string{"/dev:/dev"}
	cfg.Privileged = true
	return cfg
}

func TestContainerConfig(t *testing.T) {
	c := ContainerConfig(trexConfig())
	assert.Equal(t, "trex:latest", c.Image)
	assert.Equal(t, []string{"./t-rex-64", "-i"}, []string(c.Cmd))
	assert.Contains(t, c.ExposedPorts, nat.Port("4501/tcp"))
	assert.True(t, c.OpenStdin)
	assert.True(t, c.AttachStdin)
}

func TestHostConfig(t *testing.T) {
	h := HostConfig(trexConfig())
	assert.Equal(t, []string{"/dev:/dev"}, h.Binds)
	assert.True(t, h.Privileged)
	assert.True(t, h.PublishAllPorts)
	bindings := h.PortBindings[nat.Port("4501/tcp")]
	require.Len(t, bindings, 1)
	assert.Equal(t, nat.PortBinding{HostIP: "0.0.0.0", HostPort: "4501"}, bindings[0])
}

func TestNew(t *testing.T) {
	_, err := New(config.Default().Launcher)
	assert.Equal(t, common.LaunchErr, common.GetBenchErrorCode(err))

	l, err := New(trexConfig())
	require.NoError(t, err)
	assert.Equal(t, ContainerNone, l.Status())
	assert.Empty(t, l.ContainerID())
	assert.NoError(t, l.Stop(context.Background()))
}

func TestControlAddr(t *testing.T) {
	tests := []struct {
		host string
		addr string
	}{
		{"tcp://gen-host:2376", "gen-host:4501"},
		{"tcp://10.0.0.1:2375", "10.0.0.1:4501"},
		{"unix:///var/run/docker.sock", "localhost:4501"},
	}
	cfg := trexConfig()
	for _, test := range tests {
		cfg.Host = test.host
		addr, err := ControlAddr(cfg)
		require.NoError(t, err, test.host)
		assert.Equal(t, test.addr, addr, test.host)
	}
}

func TestWaitReady(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port

	cfg := trexConfig()
	cfg.Host = "tcp://127.0.0.1:2375"
	cfg.Port = port
	cfg.RequestTimeout = time.Second
	l, err := New(cfg)
	require.NoError(t, err)
	assert.NoError(t, l.WaitReady(context.Background(), 3, time.Millisecond))

	require.NoError(t, ln.Close())
	err = l.WaitReady(context.Background(), 2, time.Millisecond)
	assert.Equal(t, common.LaunchErr, common.GetBenchErrorCode(err))
	assert.Contains(t, err.Error(), "127.0.0.1:"+strconv.Itoa(port))
}
