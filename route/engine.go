package route

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/pingpath/pingpath"
)

const (
	// DefaultMaxHops bounds discovery; no route is probed past this
	// time-to-live.
	DefaultMaxHops = 30

	// DefaultTimeout is the per-probe reply timeout.
	DefaultTimeout = 3 * time.Second

	// DefaultMaxTimeouts is how many consecutive silent hops discovery
	// tolerates before giving up. A run of silence usually means a
	// filtering firewall; probing on forever would never terminate.
	DefaultMaxTimeouts = 3

	// DefaultWindow is how many hop probes may be in flight at once.
	DefaultWindow = 4
)

// Engine drives hop discovery for single destinations through a probing
// engine's SingleShot operation.
type Engine struct {
	// MaxHops is the highest time-to-live probed.
	MaxHops int

	// Timeout bounds each individual hop probe.
	Timeout time.Duration

	// MaxTimeouts ends discovery after this many consecutive hops
	// without a reply.
	MaxTimeouts int

	// Window is the number of concurrent hop probes. Replies may come
	// back in any order; the route is reassembled in time-to-live order
	// regardless.
	Window int

	// Callback, if set, is invoked for every discovered hop, in
	// time-to-live order.
	Callback func(Hop)

	pinger pingpath.Engine
}

// NewEngine returns a route engine probing through pinger.
func NewEngine(pinger pingpath.Engine) *Engine {
	return &Engine{
		MaxHops:     DefaultMaxHops,
		Timeout:     DefaultTimeout,
		MaxTimeouts: DefaultMaxTimeouts,
		Window:      DefaultWindow,
		pinger:      pinger,
	}
}

// Discover resolves host and probes it at time-to-live 1, 2, 3, …
// collecting one hop entry per value until the destination answers,
// MaxHops is reached, or MaxTimeouts consecutive hops stay silent.
func (e *Engine) Discover(ctx context.Context, host string) (Route, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return Route{}, err
	}
	if len(addrs) == 0 {
		return Route{}, errors.New("no address for " + host)
	}
	addr := &addrs[0]

	return e.DiscoverAddr(ctx, addr)
}

// DiscoverAddr is Discover for an already resolved destination.
func (e *Engine) DiscoverAddr(ctx context.Context, addr *net.IPAddr) (Route, error) {
	if e.pinger == nil {
		return Route{}, errors.New("no probing engine")
	}

	maxHops := e.MaxHops
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	window := e.Window
	if window <= 0 {
		window = 1
	}

	discovered := Route{Target: addr}
	timeouts := 0

	for base := 1; base <= maxHops; base += window {
		if err := ctx.Err(); err != nil {
			return discovered, err
		}

		n := window
		if base+n-1 > maxHops {
			n = maxHops - base + 1
		}

		// Probe the window concurrently. Results land in the slice slot
		// for their time-to-live, which restores ordering no matter how
		// the replies interleave.
		hops := make([]Hop, n)
		var wg sync.WaitGroup
		wg.Add(n)

		for i := 0; i < n; i++ {
			go func(i int) {
				defer wg.Done()
				hops[i] = e.probe(addr, base+i)
			}(i)
		}
		wg.Wait()

		for _, hop := range hops {
			discovered.Hops = append(discovered.Hops, hop)
			if e.Callback != nil {
				e.Callback(hop)
			}

			if hop.Final {
				return discovered, nil
			}

			if hop.Replied {
				timeouts = 0
				continue
			}
			timeouts++
			if timeouts >= e.maxTimeouts() {
				return discovered, nil
			}
		}
	}

	return discovered, nil
}

// probe sends one hop probe and maps its result.
func (e *Engine) probe(addr *net.IPAddr, ttl int) Hop {
	hop := Hop{TTL: ttl}

	res, err := e.pinger.SingleShot(addr, ttl, e.Timeout)
	if err != nil {
		log.Errorf("hop %d probe for %v: %v", ttl, addr, err)
		return hop
	}

	if res.TimedOut || res.ReplyFrom == nil {
		return hop
	}

	hop.Replied = true
	hop.Addr = res.ReplyFrom
	hop.RTT = res.RTT
	hop.Final = res.ReplyFrom.IP.Equal(addr.IP)

	return hop
}

func (e *Engine) maxTimeouts() int {
	if e.MaxTimeouts <= 0 {
		return DefaultMaxTimeouts
	}
	return e.MaxTimeouts
}
