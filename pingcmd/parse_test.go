package pingcmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseOutputLinuxReply(t *testing.T) {
	assert := assert.New(t)

	output := `PING 8.8.8.8 (8.8.8.8) 56(84) bytes of data.
64 bytes from 8.8.8.8: icmp_seq=1 ttl=118 time=12.4 ms

--- 8.8.8.8 ping statistics ---
1 packets transmitted, 1 received, 0% packet loss, time 0ms
rtt min/avg/max/mdev = 12.427/12.427/12.427/0.000 ms`

	reply, ok := parseOutput(output)
	assert.True(ok)
	assert.False(reply.Exceeded)
	assert.Equal("8.8.8.8", reply.From)
	assert.InDelta(float64(12400*time.Microsecond), float64(reply.RTT), float64(time.Microsecond))
}

func TestParseOutputLinuxTimeExceeded(t *testing.T) {
	assert := assert.New(t)

	output := `PING 8.8.8.8 (8.8.8.8) 56(84) bytes of data.
From 192.168.1.1 icmp_seq=1 Time to live exceeded

--- 8.8.8.8 ping statistics ---
1 packets transmitted, 0 received, +1 errors, 100% packet loss, time 0ms`

	reply, ok := parseOutput(output)
	assert.True(ok)
	assert.True(reply.Exceeded)
	assert.Equal("192.168.1.1", reply.From)
	assert.Zero(reply.RTT)
}

func TestParseOutputWindowsReply(t *testing.T) {
	assert := assert.New(t)

	output := `Pinging 8.8.8.8 with 32 bytes of data:
Reply from 8.8.8.8: bytes=32 time=11ms TTL=118

Ping statistics for 8.8.8.8:
    Packets: Sent = 1, Received = 1, Lost = 0 (0% loss),`

	reply, ok := parseOutput(output)
	assert.True(ok)
	assert.Equal("8.8.8.8", reply.From)
	assert.Equal(11*time.Millisecond, reply.RTT)
}

func TestParseOutputWindowsTTLExpired(t *testing.T) {
	assert := assert.New(t)

	output := `Pinging 8.8.8.8 with 32 bytes of data:
Reply from 10.0.0.1: TTL expired in transit.`

	reply, ok := parseOutput(output)
	assert.True(ok)
	assert.True(reply.Exceeded)
	assert.Equal("10.0.0.1", reply.From)
}

func TestParseOutputNoReply(t *testing.T) {
	output := `PING 203.0.113.1 (203.0.113.1) 56(84) bytes of data.

--- 203.0.113.1 ping statistics ---
3 packets transmitted, 0 received, 100% packet loss, time 2047ms`

	_, ok := parseOutput(output)
	assert.False(t, ok)
}

func TestParseOutputIPv6Reply(t *testing.T) {
	assert := assert.New(t)

	reply, ok := parseOutput("64 bytes from 2001:4860:4860::8888: icmp_seq=1 ttl=118 time=13.6 ms")
	assert.True(ok)
	assert.Equal("2001:4860:4860::8888", reply.From)
	assert.Equal(13600*time.Microsecond, reply.RTT)
}

func TestParseOutputSubMillisecond(t *testing.T) {
	assert := assert.New(t)

	reply, ok := parseOutput("64 bytes from 127.0.0.1: icmp_seq=1 ttl=64 time=0.045 ms")
	assert.True(ok)
	assert.Equal(45*time.Microsecond, reply.RTT)
}
