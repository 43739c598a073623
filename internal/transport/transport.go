// Package transport wraps the platform ICMP socket behind a small
// send/receive surface scoped to one IP version. It carries no probing
// state beyond the open socket handle.
package transport

import (
	"errors"
	"net"
	"sync"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/pingpath/pingpath"
	"github.com/pingpath/pingpath/internal/packet"
)

var errClosed = errors.New("transport closed")

// maxPacketSize is the receive buffer size, one ethernet MTU.
const maxPacketSize = 1500

// Conn is an open ICMP transport for one IP version. All methods are
// safe for concurrent use; per-send TTL changes are serialized so a
// single-shot probe cannot race the periodic transmitter.
type Conn struct {
	version    pingpath.IPVersion
	privileged bool

	conn net.PacketConn
	p4   *ipv4.PacketConn
	p6   *ipv6.PacketConn

	// defaultTTL is the socket's time-to-live as opened. A ttl=0 send
	// restores it, so a hop probe's low TTL never leaks into later
	// sends on the shared socket.
	defaultTTL int

	mtx    sync.Mutex // guards TTL manipulation around sends
	closed bool
}

// Open opens an ICMP transport. With privileged set it uses a raw
// socket (ip4:icmp / ip6:ipv6-icmp); otherwise it falls back to the
// unprivileged datagram flavour (udp4 / udp6), which works on Linux
// when net.ipv4.ping_group_range admits the process.
func Open(version pingpath.IPVersion, bind string, privileged bool) (*Conn, error) {
	var network string

	switch {
	case version == pingpath.IPv6 && privileged:
		network = "ip6:ipv6-icmp"
	case version == pingpath.IPv6:
		network = "udp6"
	case privileged:
		network = "ip4:icmp"
	default:
		network = "udp4"
	}

	if bind == "" {
		if version == pingpath.IPv6 {
			bind = "::"
		} else {
			bind = "0.0.0.0"
		}
	}

	conn, err := icmp.ListenPacket(network, bind)
	if err != nil {
		return nil, err
	}

	c := &Conn{
		version:    version,
		privileged: privileged,
		conn:       conn,
	}

	if version == pingpath.IPv6 {
		c.p6 = conn.IPv6PacketConn()
		c.defaultTTL, _ = c.p6.HopLimit()
	} else {
		c.p4 = conn.IPv4PacketConn()
		c.defaultTTL, _ = c.p4.TTL()
	}
	if c.defaultTTL <= 0 {
		c.defaultTTL = 64
	}

	return c, nil
}

// Version returns the IP version this transport is bound to.
func (c *Conn) Version() pingpath.IPVersion { return c.version }

// Privileged reports whether the underlying socket is raw.
func (c *Conn) Privileged() bool { return c.privileged }

// SetTTL sets the socket time-to-live (hop limit for IPv6) for
// subsequent sends. A value of 0 restores the default captured when the
// socket was opened.
func (c *Conn) SetTTL(ttl int) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if c.p6 != nil {
		return c.p6.SetHopLimit(ttl)
	}
	return c.p4.SetTTL(ttl)
}

// TTL returns the current socket time-to-live.
func (c *Conn) TTL() (int, error) {
	if c.p6 != nil {
		return c.p6.HopLimit()
	}
	return c.p4.TTL()
}

// WriteTo sends buf to dst with the given ttl (0 keeps the socket
// default). Send errors are returned to the caller; the engine logs
// them and carries on with the round.
func (c *Conn) WriteTo(buf []byte, dst *net.IPAddr, ttl int) (int, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.closed {
		return 0, errClosed
	}

	if err := c.SetTTL(ttl); err != nil {
		return 0, err
	}

	// Unprivileged datagram sockets want a UDP address.
	var addr net.Addr = dst
	if !c.privileged {
		addr = &net.UDPAddr{IP: dst.IP, Zone: dst.Zone}
	}

	return c.conn.WriteTo(buf, addr)
}

// ReadFrom blocks until a packet arrives or deadline passes. A timeout
// is surfaced as a net.Error with Timeout() == true, so receive loops
// stay interruptible and Stop never waits on a stuck read.
func (c *Conn) ReadFrom(buf []byte, deadline time.Time) (int, net.IPAddr, error) {
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return 0, net.IPAddr{}, err
	}

	n, source, err := c.conn.ReadFrom(buf)
	if err != nil {
		return 0, net.IPAddr{}, err
	}

	var from net.IPAddr
	switch addr := source.(type) {
	case *net.UDPAddr:
		from.IP = addr.IP
		from.Zone = addr.Zone
	case *net.IPAddr:
		from = *addr
	}

	// Some platforms deliver the IP header on datagram ICMP sockets.
	if c.version == pingpath.IPv4 && !c.privileged {
		stripped := packet.StripIPv4Header(buf[:n])
		if len(stripped) != n {
			copy(buf, stripped)
			n = len(stripped)
		}
	}

	return n, from, nil
}

// Close shuts the socket down. Pending reads return with an error.
func (c *Conn) Close() error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	return c.conn.Close()
}

// Probe reports whether an ICMP socket of the given flavour can be
// opened at all. Factories use this for their availability check.
func Probe(version pingpath.IPVersion, privileged bool) bool {
	c, err := Open(version, "", privileged)
	if err != nil {
		return false
	}
	c.Close()

	return true
}
