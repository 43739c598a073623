// Package packet builds outgoing ICMP echo requests and classifies
// inbound ICMP buffers for both IP versions. It has no state; all
// correlation happens in the engines.
package packet

import (
	"errors"
	"net"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/pingpath/pingpath"
)

// Kind classifies an inbound ICMP message.
type Kind int

const (
	// Unknown marks traffic that is well-formed ICMP but not a reply to
	// an echo request (router advertisements etc.). Callers drop these.
	Unknown Kind = iota

	// EchoReply is a direct answer from the probed host.
	EchoReply

	// TimeExceeded is sent by an intermediate router whose hop limit
	// dropped the packet; it embeds the original echo request.
	TimeExceeded

	// Unreachable is a destination-unreachable answer; it also embeds
	// the original echo request.
	Unreachable
)

var errMalformed = errors.New("malformed ICMP packet")

// IsMalformed reports whether err marks a buffer too short or too
// damaged to parse. Such packets are dropped without further processing.
func IsMalformed(err error) bool {
	return errors.Is(err, errMalformed)
}

// Reply is a decoded inbound message. ID and Seq are the correlation
// fields of the echo request that caused it; for TimeExceeded and
// Unreachable they are extracted from the embedded original request,
// while From is the host that actually answered.
type Reply struct {
	Kind Kind
	ID   uint16
	Seq  uint16
	From net.IPAddr
	Data []byte
}

// EchoRequest builds a marshalled ICMP echo request. The checksum is
// filled in during marshalling for ICMPv4; for ICMPv6 raw sockets the
// kernel computes it using the pseudo header.
func EchoRequest(version pingpath.IPVersion, id, seq uint16, payload []byte) ([]byte, error) {
	msg := icmp.Message{
		Code: 0,
		Body: &icmp.Echo{
			ID:   int(id),
			Seq:  int(seq),
			Data: payload,
		},
	}

	if version == pingpath.IPv6 {
		msg.Type = ipv6.ICMPTypeEchoRequest
	} else {
		msg.Type = ipv4.ICMPTypeEcho
	}

	return msg.Marshal(nil)
}

// Decode classifies an inbound buffer. A buffer shorter than a minimal
// ICMP header is reported as malformed; the caller drops it.
func Decode(version pingpath.IPVersion, buf []byte, from net.IPAddr) (Reply, error) {
	if len(buf) < icmpHeaderLen {
		return Reply{}, errMalformed
	}

	msg, err := icmp.ParseMessage(version.Protocol(), buf)
	if err != nil {
		return Reply{}, errMalformed
	}

	switch msg.Type {
	case ipv4.ICMPTypeEchoReply, ipv6.ICMPTypeEchoReply:
		echo, ok := msg.Body.(*icmp.Echo)
		if !ok || echo == nil {
			return Reply{}, errMalformed
		}

		return Reply{
			Kind: EchoReply,
			ID:   uint16(echo.ID),
			Seq:  uint16(echo.Seq),
			From: from,
			Data: echo.Data,
		}, nil

	case ipv4.ICMPTypeTimeExceeded, ipv6.ICMPTypeTimeExceeded:
		body, ok := msg.Body.(*icmp.TimeExceeded)
		if !ok || body == nil {
			return Reply{}, errMalformed
		}

		return decodeEmbedded(version, TimeExceeded, body.Data, from)

	case ipv4.ICMPTypeDestinationUnreachable, ipv6.ICMPTypeDestinationUnreachable:
		body, ok := msg.Body.(*icmp.DstUnreach)
		if !ok || body == nil {
			return Reply{}, errMalformed
		}

		return decodeEmbedded(version, Unreachable, body.Data, from)
	}

	return Reply{Kind: Unknown, From: from}, nil
}

const icmpHeaderLen = 8

// decodeEmbedded digs the original echo request out of a time-exceeded
// or unreachable payload: an IP header followed by the leading bytes of
// the offending packet.
func decodeEmbedded(version pingpath.IPVersion, kind Kind, data []byte, from net.IPAddr) (Reply, error) {
	var inner []byte

	switch version {
	case pingpath.IPv6:
		// The embedded IPv6 header is fixed size; parse it anyway to
		// reject garbage early.
		if _, err := ipv6.ParseHeader(data); err != nil {
			return Reply{}, errMalformed
		}
		if len(data) < ipv6.HeaderLen {
			return Reply{}, errMalformed
		}
		inner = data[ipv6.HeaderLen:]
	default:
		hdr, err := ipv4.ParseHeader(data)
		if err != nil {
			return Reply{}, errMalformed
		}
		if len(data) < hdr.Len {
			return Reply{}, errMalformed
		}
		inner = data[hdr.Len:]
	}

	msg, err := icmp.ParseMessage(version.Protocol(), inner)
	if err != nil {
		return Reply{}, errMalformed
	}

	echo, ok := msg.Body.(*icmp.Echo)
	if !ok || echo == nil {
		return Reply{}, errMalformed
	}

	return Reply{
		Kind: kind,
		ID:   uint16(echo.ID),
		Seq:  uint16(echo.Seq),
		From: from,
		Data: echo.Data,
	}, nil
}

// StripIPv4Header removes a leading IPv4 header if one is present.
// Reads on a raw IPv4 socket hand us the full IP packet on some
// platforms, while udp4 sockets deliver the bare ICMP message.
func StripIPv4Header(buf []byte) []byte {
	if len(buf) < ipv4.HeaderLen {
		return buf
	}
	if buf[0]>>4 != 4 {
		return buf
	}

	hlen := int(buf[0]&0x0f) << 2
	if hlen < ipv4.HeaderLen || len(buf) < hlen {
		return buf
	}

	// Sanity check: total length field should match what we received.
	if hdr, err := ipv4.ParseHeader(buf); err != nil || hdr.Protocol != pingpath.ProtocolICMP {
		return buf
	}

	return buf[hlen:]
}
