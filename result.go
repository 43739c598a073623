package pingpath

import (
	"fmt"
	"net"
	"time"
)

// Result is a single resolved measurement. It is emitted exactly once
// per transmitted request: either a reply arrived (RTT and ReplyFrom are
// set) or the request aged out (TimedOut is set, ReplyFrom is nil).
//
// ReplyFrom is not necessarily the target address: a hop answering with
// time-exceeded attributes its own address to the originating target,
// which is how intermediate routers show up during route discovery.
type Result struct {
	Target    Target
	ReplyFrom *net.IPAddr
	RTT       time.Duration
	TimedOut  bool
	Sample    uint64
	Received  time.Time
}

// FromTarget reports whether the reply came from the probed host itself
// rather than an intermediate hop.
func (r Result) FromTarget() bool {
	if r.TimedOut || r.ReplyFrom == nil || r.Target == nil {
		return false
	}
	return r.ReplyFrom.IP.Equal(r.Target.HostAddress().IP)
}

func (r Result) String() string {
	if r.TimedOut {
		return fmt.Sprintf("sample %d: timeout", r.Sample)
	}
	return fmt.Sprintf("sample %d: %v from %s", r.Sample, r.RTT, r.ReplyFrom)
}
