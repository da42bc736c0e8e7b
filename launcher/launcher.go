// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package launcher runs a containerised traffic generator on a docker
// host.
package launcher

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/intel-go/nffbench/common"
	"github.com/intel-go/nffbench/config"
)

// ContainerStatus is a status of the generator container.
type ContainerStatus int

// Constants for container statuses.
const (
	ContainerNone ContainerStatus = iota
	ContainerCreated
	ContainerRunning
)

// Launcher starts and stops the generator container.
type Launcher struct {
	cfg         config.LauncherConfig
	cl          *client.Client
	containerID string
	status      ContainerStatus
}

// New returns launcher talking to docker host of cfg. No request is
// sent until Start.
func New(cfg config.LauncherConfig) (*Launcher, error) {
	if cfg.Image == "" {
		return nil, common.NewBenchErrorf(common.LaunchErr, "no generator image configured")
	}
	defaultHeaders := map[string]string{"User-Agent": "engine-api-cli-1.0"}
	cl, err := client.NewClient(cfg.Host, cfg.Version, nil, defaultHeaders)
	if err != nil {
		return nil, common.WrapWithBenchError(err, "cannot create docker client for "+cfg.Host, common.LaunchErr)
	}
	return &Launcher{cfg: cfg, cl: cl}, nil
}

func controlPort(cfg config.LauncherConfig) nat.Port {
	return nat.Port(strconv.Itoa(cfg.Port) + "/tcp")
}

// ContainerConfig returns configuration of the generator container.
// Generator control port is exposed, stdin is kept open.
func ContainerConfig(cfg config.LauncherConfig) *container.Config {
	return &container.Config{
		AttachStdin: true,
		ExposedPorts: map[nat.Port]struct{}{
			controlPort(cfg): {},
		},
		Tty:       true,
		OpenStdin: true,
		Cmd:       cfg.Command,
		Image:     cfg.Image,
	}
}

// HostConfig returns host side configuration of the generator
// container: volumes, control port binding on all addresses and
// privileges needed to drive NICs.
func HostConfig(cfg config.LauncherConfig) *container.HostConfig {
	return &container.HostConfig{
		Binds: cfg.Volumes,
		PortBindings: nat.PortMap{
			controlPort(cfg): []nat.PortBinding{
				{
					HostIP:   "0.0.0.0",
					HostPort: strconv.Itoa(cfg.Port),
				},
			},
		},
		Privileged:      cfg.Privileged,
		PublishAllPorts: true,
	}
}

// Start creates and starts the generator container.
func (l *Launcher) Start(ctx context.Context) error {
	if l.status != ContainerNone {
		return common.NewBenchErrorf(common.LaunchErr, "generator container %s is already launched", l.containerID)
	}
	reqCtx, cancel := context.WithTimeout(ctx, l.cfg.RequestTimeout)
	response, err := l.cl.ContainerCreate(reqCtx, ContainerConfig(l.cfg), HostConfig(l.cfg), nil, "")
	cancel()
	if err != nil {
		return common.WrapWithBenchError(err, "cannot create generator container from "+l.cfg.Image, common.LaunchErr)
	}
	l.containerID = response.ID
	l.status = ContainerCreated
	common.LogDebug("Created generator container", l.containerID, "exposing", controlPort(l.cfg))
	for _, w := range response.Warnings {
		common.LogWarning("Warning for generator container", l.containerID, ":", w)
	}

	reqCtx, cancel = context.WithTimeout(ctx, l.cfg.RequestTimeout)
	err = l.cl.ContainerStart(reqCtx, l.containerID, types.ContainerStartOptions{})
	cancel()
	if err != nil {
		return common.WrapWithBenchError(err, "cannot start generator container "+l.containerID, common.LaunchErr)
	}
	l.status = ContainerRunning
	common.LogInfo("Started generator container", l.containerID, "on", l.cfg.Host)
	return nil
}

// Stop interrupts the generator and removes its container. Stopping a
// launcher without container does nothing.
func (l *Launcher) Stop(ctx context.Context) error {
	var killErr error
	if l.status == ContainerRunning {
		reqCtx, cancel := context.WithTimeout(ctx, l.cfg.RequestTimeout)
		killErr = l.cl.ContainerKill(reqCtx, l.containerID, "INT")
		cancel()
		common.LogErrorsIfNotNil(killErr, "Error while killing generator container", l.containerID)
	}
	if l.status == ContainerNone {
		return nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, l.cfg.RequestTimeout)
	err := l.cl.ContainerRemove(reqCtx, l.containerID, types.ContainerRemoveOptions{Force: true})
	cancel()
	if err != nil {
		return common.WrapWithBenchError(err, "cannot remove generator container "+l.containerID, common.LaunchErr)
	}
	l.status = ContainerNone
	l.containerID = ""
	if killErr != nil {
		return common.WrapWithBenchError(killErr, "cannot interrupt generator", common.LaunchErr)
	}
	return nil
}

// ControlAddr returns address of generator control port published on
// the docker host. Hosts reached through a unix socket are local.
func ControlAddr(cfg config.LauncherConfig) (string, error) {
	u, err := url.Parse(cfg.Host)
	if err != nil {
		return "", common.WrapWithBenchError(err, "bad docker host "+cfg.Host, common.LaunchErr)
	}
	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	return net.JoinHostPort(host, strconv.Itoa(cfg.Port)), nil
}

// WaitReady polls control port of the generator until it accepts
// connections, at most retries times poll apart.
func (l *Launcher) WaitReady(ctx context.Context, retries int, poll time.Duration) error {
	addr, err := ControlAddr(l.cfg)
	if err != nil {
		return err
	}
	var dialer net.Dialer
	for i := 0; i < retries; i++ {
		dialCtx, cancel := context.WithTimeout(ctx, l.cfg.RequestTimeout)
		conn, err := dialer.DialContext(dialCtx, "tcp", addr)
		cancel()
		if err == nil {
			conn.Close()
			common.LogDebug("Generator control port", addr, "is ready after", i+1, "attempts")
			return nil
		}
		common.LogDebug("Generator control port", addr, "is not ready:", err)
		select {
		case <-ctx.Done():
			return common.WrapWithBenchError(ctx.Err(), "stopped waiting for generator at "+addr, common.LaunchErr)
		case <-time.After(poll):
		}
	}
	return common.NewBenchErrorf(common.LaunchErr, "generator at %s is not ready after %d attempts", addr, retries)
}

// ContainerID returns id of the launched container or empty string.
func (l *Launcher) ContainerID() string {
	return l.containerID
}

// Status returns status of the generator container.
func (l *Launcher) Status() ContainerStatus {
	return l.status
}
