package pingpath

import (
	"net"
	"time"
)

// Target is a monitored endpoint registered on an engine. The identifier
// is unique within the engine instance and is embedded in outgoing echo
// requests so replies can be attributed even when multiple targets share
// one socket.
type Target interface {
	// HostAddress returns the probed host address.
	HostAddress() *net.IPAddr

	// TTL returns the time-to-live set on packets for this target.
	TTL() int

	// ID returns the correlation identifier for this target.
	ID() uint16
}

// Engine is the common probing contract. An engine transmits echo
// requests to its registered targets on a fixed cadence, correlates the
// asynchronous replies and emits exactly one Result per request, either
// completed or timed out.
//
// Implementations must tolerate Stop being called more than once and
// from any goroutine.
type Engine interface {
	// SetInterval sets the cadence between probe rounds.
	SetInterval(interval time.Duration) error

	// Interval returns the cadence between probe rounds.
	Interval() time.Duration

	// SetTimeout sets how long a request may stay unanswered before it
	// is resolved as timed out.
	SetTimeout(timeout time.Duration) error

	// Timeout returns the request timeout.
	Timeout() time.Duration

	// Start begins periodic probing. The engine epoch is set here.
	Start() error

	// Stop halts probing. It is idempotent.
	Stop() error

	// AddTarget registers a host for periodic probing. A ttl of 0 leaves
	// the socket default in place.
	AddTarget(addr *net.IPAddr, ttl int) (Target, error)

	// RemoveTarget unregisters a target. It reports whether the target
	// was known to this engine.
	RemoveTarget(target Target) bool

	// SingleShot synchronously probes addr once with the given ttl,
	// blocking until a reply arrives or timeout elapses. Used by route
	// discovery for one-off hop probes outside the periodic loop.
	SingleShot(addr *net.IPAddr, ttl int, timeout time.Duration) (Result, error)

	// Targets returns a snapshot of the registered targets.
	Targets() []Target

	// Epoch returns the time measurement started.
	Epoch() time.Time

	// Results returns the engine's result stream. The channel is closed
	// when the engine stops.
	Results() <-chan Result
}
