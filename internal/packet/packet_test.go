package packet

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/pingpath/pingpath"
)

var (
	hopAddr    = net.IPAddr{IP: net.ParseIP("192.0.2.1")}
	targetAddr = net.IPAddr{IP: net.ParseIP("203.0.113.7")}
)

func mustMarshal(t *testing.T, msg icmp.Message) []byte {
	t.Helper()

	buf, err := msg.Marshal(nil)
	require.NoError(t, err)

	return buf
}

// embeddedPayload fakes what a router puts into a time-exceeded
// message: the original IPv4 header followed by the leading bytes of
// the offending packet.
func embeddedPayload(t *testing.T, request []byte) []byte {
	t.Helper()

	hdr := ipv4.Header{
		Version:  ipv4.Version,
		Len:      ipv4.HeaderLen,
		TotalLen: ipv4.HeaderLen + len(request),
		TTL:      1,
		Protocol: pingpath.ProtocolICMP,
		Src:      net.ParseIP("198.51.100.2"),
		Dst:      targetAddr.IP,
	}

	hdrBytes, err := hdr.Marshal()
	require.NoError(t, err)

	return append(hdrBytes, request...)
}

func TestEchoRequest(t *testing.T) {
	assert := assert.New(t)

	payload := []byte("pingpath-test-payload")
	buf, err := EchoRequest(pingpath.IPv4, 42, 7, payload)
	assert.NoError(err)
	assert.NotEmpty(buf)

	msg, err := icmp.ParseMessage(pingpath.ProtocolICMP, buf)
	assert.NoError(err)
	assert.Equal(ipv4.ICMPTypeEcho, msg.Type)

	echo := msg.Body.(*icmp.Echo)
	assert.EqualValues(42, echo.ID)
	assert.EqualValues(7, echo.Seq)
	assert.Equal(payload, echo.Data)
}

func TestDecodeEchoReply(t *testing.T) {
	assert := assert.New(t)

	buf := mustMarshal(t, icmp.Message{
		Type: ipv4.ICMPTypeEchoReply,
		Body: &icmp.Echo{ID: 42, Seq: 7, Data: []byte("x")},
	})

	reply, err := Decode(pingpath.IPv4, buf, targetAddr)
	assert.NoError(err)
	assert.Equal(EchoReply, reply.Kind)
	assert.EqualValues(42, reply.ID)
	assert.EqualValues(7, reply.Seq)
	assert.True(reply.From.IP.Equal(targetAddr.IP))
}

func TestDecodeEchoReplyV6(t *testing.T) {
	assert := assert.New(t)

	v6From := net.IPAddr{IP: net.ParseIP("2001:db8::1")}

	buf := mustMarshal(t, icmp.Message{
		Type: ipv6.ICMPTypeEchoReply,
		Body: &icmp.Echo{ID: 9, Seq: 300},
	})

	reply, err := Decode(pingpath.IPv6, buf, v6From)
	assert.NoError(err)
	assert.Equal(EchoReply, reply.Kind)
	assert.EqualValues(9, reply.ID)
	assert.EqualValues(300, reply.Seq)
}

func TestDecodeTimeExceeded(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	request, err := EchoRequest(pingpath.IPv4, 42, 65535, []byte("data"))
	require.NoError(err)

	buf := mustMarshal(t, icmp.Message{
		Type: ipv4.ICMPTypeTimeExceeded,
		Body: &icmp.TimeExceeded{Data: embeddedPayload(t, request)},
	})

	// The hop answers, but the correlation fields must come from the
	// original embedded request.
	reply, err := Decode(pingpath.IPv4, buf, hopAddr)
	assert.NoError(err)
	assert.Equal(TimeExceeded, reply.Kind)
	assert.EqualValues(42, reply.ID)
	assert.EqualValues(65535, reply.Seq)
	assert.True(reply.From.IP.Equal(hopAddr.IP))
}

func TestDecodeUnreachable(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	request, err := EchoRequest(pingpath.IPv4, 3, 4, nil)
	require.NoError(err)

	buf := mustMarshal(t, icmp.Message{
		Type: ipv4.ICMPTypeDestinationUnreachable,
		Body: &icmp.DstUnreach{Data: embeddedPayload(t, request)},
	})

	reply, err := Decode(pingpath.IPv4, buf, hopAddr)
	assert.NoError(err)
	assert.Equal(Unreachable, reply.Kind)
	assert.EqualValues(3, reply.ID)
	assert.EqualValues(4, reply.Seq)
}

func TestDecodeUnknown(t *testing.T) {
	assert := assert.New(t)

	// An echo *request* seen on the wire is valid ICMP, just nothing we
	// asked for.
	buf := mustMarshal(t, icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Body: &icmp.Echo{ID: 1, Seq: 1},
	})

	reply, err := Decode(pingpath.IPv4, buf, targetAddr)
	assert.NoError(err)
	assert.Equal(Unknown, reply.Kind)
}

func TestDecodeMalformed(t *testing.T) {
	assert := assert.New(t)

	cases := map[string][]byte{
		"empty":          {},
		"short header":   {8, 0, 0},
		"truncated body": {11, 0, 0, 0, 0, 0, 0, 0},
	}

	for name, buf := range cases {
		_, err := Decode(pingpath.IPv4, buf, targetAddr)
		assert.Error(err, name)
		assert.True(IsMalformed(err), name)
	}
}

func TestStripIPv4Header(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	inner := mustMarshal(t, icmp.Message{
		Type: ipv4.ICMPTypeEchoReply,
		Body: &icmp.Echo{ID: 1, Seq: 2},
	})

	wrapped := embeddedPayload(t, inner)
	stripped := StripIPv4Header(wrapped)
	require.Equal(inner, stripped)

	// Bare ICMP stays untouched.
	assert.Equal(inner, StripIPv4Header(inner))
}
