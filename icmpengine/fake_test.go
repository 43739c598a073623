package icmpengine

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/pingpath/pingpath"
)

// timeoutError implements the net.Error interface. Originally taken from
// https://github.com/golang/go/blob/release-branch.go1.8/src/net/net.go#L505-L509
type timeoutError struct{}

func (e *timeoutError) Error() string   { return "i/o timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }

type sentPacket struct {
	id   uint16
	seq  uint16
	data []byte
	dst  *net.IPAddr
	ttl  int
	buf  []byte
}

type inboundPacket struct {
	buf  []byte
	from net.IPAddr
}

// fakeConn is an in-memory stand-in for the ICMP transport. Sent
// requests are recorded; the onSend hook lets a test synthesize the
// network's answer.
type fakeConn struct {
	mtx    sync.Mutex
	sent   []sentPacket
	onSend func(c *fakeConn, pkt sentPacket)

	incoming  chan inboundPacket
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan inboundPacket, 64),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) WriteTo(buf []byte, dst *net.IPAddr, ttl int) (int, error) {
	msg, err := icmp.ParseMessage(pingpath.ProtocolICMP, buf)
	if err != nil {
		return 0, err
	}
	echo, ok := msg.Body.(*icmp.Echo)
	if !ok {
		return 0, errors.New("not an echo request")
	}

	pkt := sentPacket{
		id:   uint16(echo.ID),
		seq:  uint16(echo.Seq),
		data: echo.Data,
		dst:  dst,
		ttl:  ttl,
		buf:  append([]byte(nil), buf...),
	}

	c.mtx.Lock()
	c.sent = append(c.sent, pkt)
	onSend := c.onSend
	c.mtx.Unlock()

	if onSend != nil {
		onSend(c, pkt)
	}

	return len(buf), nil
}

func (c *fakeConn) inject(buf []byte, from net.IPAddr) {
	select {
	case c.incoming <- inboundPacket{buf: buf, from: from}:
	case <-c.closed:
	}
}

func (c *fakeConn) ReadFrom(buf []byte, deadline time.Time) (int, net.IPAddr, error) {
	wait := time.Until(deadline)
	if wait < 0 {
		wait = 0
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case in := <-c.incoming:
		n := copy(buf, in.buf)
		return n, in.from, nil
	case <-timer.C:
		return 0, net.IPAddr{}, &timeoutError{}
	case <-c.closed:
		return 0, net.IPAddr{}, errors.New("use of closed connection")
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) sentPackets() []sentPacket {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return append([]sentPacket(nil), c.sent...)
}

func echoReplyFor(t *testing.T, pkt sentPacket) []byte {
	t.Helper()

	buf, err := (&icmp.Message{
		Type: ipv4.ICMPTypeEchoReply,
		Body: &icmp.Echo{
			ID:   int(pkt.id),
			Seq:  int(pkt.seq),
			Data: pkt.data,
		},
	}).Marshal(nil)
	require.NoError(t, err)

	return buf
}

// timeExceededFor wraps the original request the way a router does:
// IPv4 header plus the offending packet, inside a time-exceeded body.
func timeExceededFor(t *testing.T, pkt sentPacket) []byte {
	t.Helper()

	hdr := ipv4.Header{
		Version:  ipv4.Version,
		Len:      ipv4.HeaderLen,
		TotalLen: ipv4.HeaderLen + len(pkt.buf),
		TTL:      1,
		Protocol: pingpath.ProtocolICMP,
		Src:      net.ParseIP("198.51.100.2"),
		Dst:      pkt.dst.IP,
	}
	hdrBytes, err := hdr.Marshal()
	require.NoError(t, err)

	buf, err := (&icmp.Message{
		Type: ipv4.ICMPTypeTimeExceeded,
		Body: &icmp.TimeExceeded{Data: append(hdrBytes, pkt.buf...)},
	}).Marshal(nil)
	require.NoError(t, err)

	return buf
}
