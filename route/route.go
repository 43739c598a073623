// Package route discovers the ordered chain of intermediate hosts
// toward a destination by issuing single-shot probes at increasing
// time-to-live values through any pingpath.Engine. Hops may be probed
// concurrently; the discovered route is always reassembled in
// time-to-live order before it is exposed.
package route

import (
	"fmt"
	"net"
	"time"

	"github.com/digineo/go-logwrap"
)

var (
	log = &logwrap.Instance{}

	// SetLogger allows updating the Logger. For details, see
	// "github.com/digineo/go-logwrap".Instance.SetLogger.
	SetLogger = log.SetLogger
)

// Hop is one entry of a discovered route: the host that answered a
// probe at this time-to-live, or a marker that nothing did.
type Hop struct {
	TTL     int
	Addr    *net.IPAddr // nil when no reply arrived
	RTT     time.Duration
	Replied bool
	Final   bool // the destination itself answered
}

func (h Hop) String() string {
	if !h.Replied {
		return fmt.Sprintf("%2d  *", h.TTL)
	}
	return fmt.Sprintf("%2d  %-40v %v", h.TTL, h.Addr, h.RTT)
}

// Route is the ordered result of a discovery run, one entry per probed
// time-to-live, lowest first.
type Route struct {
	Target *net.IPAddr
	Hops   []Hop
}

// Complete reports whether the destination itself was reached.
func (r Route) Complete() bool {
	n := len(r.Hops)
	return n > 0 && r.Hops[n-1].Final
}
