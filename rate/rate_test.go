// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intel-go/nffbench/common"
)

var parseTests = []struct {
	line     string
	expected Rate
}{
	{"1000pps", NewPPS(1000)},
	{"1.5Mpps", NewPPS(1500000)},
	{"2Kpps", NewPPS(2000)},
	{"10Gbps", NewBPS(10000000000)},
	{"100kbps", NewBPS(100000)},
	{"2500000bps", NewBPS(2500000)},
	{"50%", NewPercent(50)},
	{" 0.5 %", NewPercent(0.5)},
	{"100%", NewPercent(100)},
}

func TestParse(t *testing.T) {
	for _, tt := range parseTests {
		actual, err := Parse(tt.line)
		require.NoError(t, err, tt.line)
		assert.Equal(t, tt.expected, actual, tt.line)
	}
}

func TestParseErrors(t *testing.T) {
	for _, line := range []string{"", "pps", "Mpps", "abcpps", "-5pps", "0%", "101%", "x%", "%", "10", "10Mbits"} {
		_, err := Parse(line)
		if assert.Error(t, err, line) {
			assert.Equal(t, common.ParseRateErr, common.GetBenchErrorCode(err), line)
			assert.Contains(t, err.Error(), line)
		}
	}
}

func TestParseSpeed(t *testing.T) {
	speed, err := ParseSpeed("10Gbps")
	require.NoError(t, err)
	assert.Equal(t, uint64(10000000000), speed)

	speed, err = ParseSpeed("25G")
	require.NoError(t, err)
	assert.Equal(t, uint64(25000000000), speed)

	_, err = ParseSpeed("0")
	assert.Error(t, err)
}

func TestString(t *testing.T) {
	assert.Equal(t, "1000pps", NewPPS(1000).String())
	assert.Equal(t, "64000bps", NewBPS(64000).String())
	assert.Equal(t, "12.5%", NewPercent(12.5).String())
	assert.Equal(t, "unknown", Rate{}.String())
}

func TestDivide(t *testing.T) {
	assert.Equal(t, NewPPS(500), NewPPS(1000).Divide(2))
	assert.Equal(t, NewBPS(333), NewBPS(1000).Divide(3))
	// Never a zero rate stream.
	assert.Equal(t, NewPPS(1), NewPPS(1).Divide(2))
	assert.Equal(t, NewBPS(1), NewBPS(0).Divide(4))
	// Percent applies to each direction and is never split.
	assert.Equal(t, NewPercent(80), NewPercent(80).Divide(2))
	assert.Equal(t, NewPPS(1000), NewPPS(1000).Divide(0))
}

func TestAvgPacketSize(t *testing.T) {
	size, err := AvgPacketSize("64")
	require.NoError(t, err)
	assert.Equal(t, 64.0, size)

	for _, imix := range []string{"IMIX", "imix", "Imix"} {
		size, err = AvgPacketSize(imix)
		require.NoError(t, err)
		assert.Equal(t, common.IMIXAvgSize(), size)
	}

	_, err = AvgPacketSize("jumbo")
	assert.Equal(t, common.ParseRateErr, common.GetBenchErrorCode(err))
}

const tenGig = 10000000000

func TestConvertLineRate64(t *testing.T) {
	rates, err := Convert("64", NewPercent(100), tenGig)
	require.NoError(t, err)
	assert.Equal(t, Percent, rates.Initial)
	assert.Equal(t, uint64(14880952), rates.PPS)
	assert.Equal(t, uint64(tenGig), rates.BPS)
	assert.Equal(t, 100.0, rates.Percent)
}

func TestConvertRoundTrip(t *testing.T) {
	for _, frameSize := range []string{"64", "128", "IMIX", "1518"} {
		avg, err := AvgPacketSize(frameSize)
		require.NoError(t, err)
		for _, pps := range []float64{1, 1000, 1488095.2, 14880952} {
			assert.InDelta(t, pps, BPSToPPS(PPSToBPS(pps, avg), avg), 1e-6*pps, frameSize)
		}
		for _, load := range []float64{0.1, 12.5, 50, 100} {
			bps := LoadToBPS(load, tenGig)
			assert.InDelta(t, load, BPSToLoad(bps, tenGig), 1e-9, frameSize)
		}
	}
}

func TestConvertConsistent(t *testing.T) {
	for _, frameSize := range []string{"64", "128", "IMIX", "1518"} {
		avg, _ := AvgPacketSize(frameSize)
		for _, r := range []Rate{NewPPS(1000000), NewBPS(5000000000), NewPercent(37.5)} {
			rates, err := Convert(frameSize, r, tenGig)
			require.NoError(t, err)
			assert.Equal(t, r.Kind(), rates.Initial)
			// Each unit derives the other two.
			assert.InDelta(t, float64(rates.BPS), PPSToBPS(float64(rates.PPS), avg), PPSToBPS(1, avg)+1)
			assert.InDelta(t, rates.Percent, BPSToLoad(float64(rates.BPS), tenGig), 1e-6)
		}
	}
}

func TestConvertErrors(t *testing.T) {
	_, err := Convert("64", Rate{}, tenGig)
	assert.Equal(t, common.UnknownRateTypeErr, common.GetBenchErrorCode(err))

	_, err = Convert("64", NewPPS(1), 0)
	assert.Equal(t, common.BadArgument, common.GetBenchErrorCode(err))
}

func TestRatesJSON(t *testing.T) {
	rates, err := Convert("64", NewPPS(1000), tenGig)
	require.NoError(t, err)
	data, err := json.Marshal(rates)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"initial_rate_type":"rate_pps"`)

	var back Rates
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, rates, back)

	total := rates.Add(rates)
	assert.Equal(t, uint64(2000), total.PPS)
}
