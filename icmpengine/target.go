package icmpengine

import (
	"net"
	"os"
)

// target is a monitored endpoint. The identifier goes into the ID field
// of outgoing echo requests; replies carry it back, which is how a
// reply is attributed to its target even though all targets share one
// socket.
type target struct {
	addr *net.IPAddr
	ttl  int
	id   uint16
}

func (t *target) HostAddress() *net.IPAddr { return t.addr }
func (t *target) TTL() int                 { return t.ttl }
func (t *target) ID() uint16               { return t.id }

// identifierBase seeds per-target identifier allocation with the
// process id, the conventional starting point for echo identifiers.
func identifierBase() uint16 {
	id := uint16(os.Getpid() & 0xffff)
	if id == 0 {
		id = 1
	}

	return id
}
