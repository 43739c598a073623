// Package pingpath defines the contracts for active network measurement
// engines: periodic ICMP echo probing with reply correlation, plus the
// factory registry used to pick a concrete engine at runtime.
//
// The concrete engines live in the icmpengine (raw sockets) and pingcmd
// (system ping binary) packages; the route package builds traceroute-style
// hop discovery on top of any Engine.
package pingpath

import "fmt"

const (
	// ProtocolICMP is the number of the Internet Control Message Protocol
	ProtocolICMP = 1

	// ProtocolICMPv6 is the IPv6 Next Header value for ICMPv6
	ProtocolICMPv6 = 58
)

// IPVersion selects the IP protocol family an engine instance operates on.
type IPVersion int

const (
	IPv4 IPVersion = 4
	IPv6 IPVersion = 6
)

func (v IPVersion) String() string {
	switch v {
	case IPv4:
		return "IPv4"
	case IPv6:
		return "IPv6"
	default:
		return fmt.Sprintf("IPVersion(%d)", int(v))
	}
}

// Protocol returns the ICMP protocol number for this IP version, as
// expected by icmp.ParseMessage.
func (v IPVersion) Protocol() int {
	if v == IPv6 {
		return ProtocolICMPv6
	}
	return ProtocolICMP
}
