// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package traffic

import (
	"net"
	"strconv"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/intel-go/nffbench/common"
)

// Endpoints of generated UDP streams.
var (
	srcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	dstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	srcIP  = net.IPv4(10, 0, 0, 1)
	dstIP  = net.IPv4(20, 0, 0, 1)
)

const (
	srcPort = 1234
	dstPort = 5678
)

// FrameSizes returns L2 sizes of frames used for frameSize setting:
// the three IMIX sizes or the single requested size.
func FrameSizes(frameSize string) ([]int, error) {
	s := strings.TrimSpace(frameSize)
	if strings.EqualFold(s, "IMIX") {
		return common.IMIXSizes[:], nil
	}
	size, err := strconv.Atoi(s)
	if err != nil {
		return nil, common.WrapWithBenchError(err, "invalid frame size "+frameSize, common.BadArgument)
	}
	if size < common.MinFrameSize || size > common.MaxFrameSize {
		return nil, common.NewBenchErrorf(common.BadArgument, "frame size %d is out of [%d, %d]",
			size, common.MinFrameSize, common.MaxFrameSize)
	}
	return []int{size}, nil
}

// BuildFrame serializes an Ethernet/IPv4/UDP frame whose L2 size with
// FCS is size bytes. The frame does not include FCS.
func BuildFrame(size int, reverse bool) ([]byte, error) {
	payloadLen := size - common.FCSLen - common.EtherLen - common.IPv4MinLen - common.UDPLen
	if payloadLen < 0 {
		return nil, common.NewBenchErrorf(common.BadArgument, "frame size %d is too small for UDP", size)
	}
	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    srcIP,
		DstIP:    dstIP,
	}
	if reverse {
		eth.SrcMAC, eth.DstMAC = dstMAC, srcMAC
		ip.SrcIP, ip.DstIP = dstIP, srcIP
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(srcPort),
		DstPort: layers.UDPPort(dstPort),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, common.WrapWithBenchError(err, "cannot build UDP checksum", common.Fail)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(make([]byte, payloadLen)))
	if err != nil {
		return nil, common.WrapWithBenchError(err, "cannot serialize frame", common.Fail)
	}
	return buf.Bytes(), nil
}

// BuildFrames returns frame templates of frameSize for one direction.
func BuildFrames(frameSize string, reverse bool) ([][]byte, error) {
	sizes, err := FrameSizes(frameSize)
	if err != nil {
		return nil, err
	}
	frames := make([][]byte, len(sizes))
	for i, size := range sizes {
		if frames[i], err = BuildFrame(size, reverse); err != nil {
			return nil, err
		}
	}
	return frames, nil
}
