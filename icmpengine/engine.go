// Package icmpengine implements the raw-socket probing engine: a
// periodic transmitter and an asynchronous receiver sharing a
// lock-protected pending-request table, correlated via the identifier
// and sequence fields of ICMP echo packets.
package icmpengine

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pingpath/pingpath"
	"github.com/pingpath/pingpath/internal/transport"
)

const (
	// DefaultInterval is the cadence between probe rounds. The default
	// is deliberately slow; the engine is meant for long-running
	// monitoring, not flood pinging.
	DefaultInterval = 10 * time.Second

	// DefaultTimeout is how long a request may stay unanswered before
	// it is resolved as lost.
	DefaultTimeout = 3 * time.Second

	// resultBacklog is the result channel capacity. A consumer that
	// stalls longer than this many results gets the overflow dropped
	// (and logged) rather than blocking the receive loop.
	resultBacklog = 256
)

var (
	errAlreadyRunning = errors.New("engine already running")
	errStopped        = errors.New("engine stopped")
)

// conn is the transport surface the engine needs. Satisfied by
// *transport.Conn; tests substitute an in-memory fake.
type conn interface {
	WriteTo(buf []byte, dst *net.IPAddr, ttl int) (int, error)
	ReadFrom(buf []byte, deadline time.Time) (int, net.IPAddr, error)
	Close() error
}

// Engine is the raw-socket implementation of pingpath.Engine.
type Engine struct {
	version pingpath.IPVersion
	conn    conn

	// matchID includes the echo identifier in correlation keys. Raw
	// sockets deliver it unchanged; on datagram ICMP sockets the kernel
	// rewrites it to the socket ident, so there a reply can only be
	// matched by sequence and the kernel's per-socket demux takes the
	// identifier's place.
	matchID bool

	cfgMtx   sync.RWMutex
	interval time.Duration
	timeout  time.Duration

	payloadMtx sync.RWMutex
	payload    Payload

	seq *sequence

	targetMtx sync.Mutex
	targets   []*target
	nextID    uint16

	pendingMtx sync.Mutex
	pending    map[pendingKey]*pingItem

	results chan pingpath.Result
	sample  atomic.Uint64

	stateMtx     sync.Mutex
	transmitting bool
	receiving    bool
	stopped      bool
	stop         chan struct{}
	wg           sync.WaitGroup

	epoch time.Time
}

// New opens an ICMP transport for the given IP version and returns an
// idle engine. With privileged set it uses a raw socket, otherwise the
// unprivileged datagram flavour. Call Stop to release the socket.
func New(version pingpath.IPVersion, bind string, privileged bool) (*Engine, error) {
	c, err := transport.Open(version, bind, privileged)
	if err != nil {
		return nil, err
	}

	e := newEngine(version, c)
	e.matchID = privileged

	return e, nil
}

// newEngine wires an engine to an already open transport.
func newEngine(version pingpath.IPVersion, c conn) *Engine {
	e := &Engine{
		version:  version,
		conn:     c,
		matchID:  true,
		interval: DefaultInterval,
		timeout:  DefaultTimeout,
		seq:      newSequence(1),
		nextID:   identifierBase(),
		pending:  make(map[pendingKey]*pingItem),
		results:  make(chan pingpath.Result, resultBacklog),
		stop:     make(chan struct{}),
	}
	e.payload.Resize(defaultPayloadSize)

	return e
}

// SetInterval sets the cadence between probe rounds.
func (e *Engine) SetInterval(interval time.Duration) error {
	if interval <= 0 {
		return errors.New("interval must be positive")
	}

	e.cfgMtx.Lock()
	e.interval = interval
	e.cfgMtx.Unlock()

	return nil
}

// Interval returns the cadence between probe rounds.
func (e *Engine) Interval() time.Duration {
	e.cfgMtx.RLock()
	defer e.cfgMtx.RUnlock()

	return e.interval
}

// SetTimeout sets the request timeout.
func (e *Engine) SetTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return errors.New("timeout must be positive")
	}

	e.cfgMtx.Lock()
	e.timeout = timeout
	e.cfgMtx.Unlock()

	return nil
}

// Timeout returns the request timeout.
func (e *Engine) Timeout() time.Duration {
	e.cfgMtx.RLock()
	defer e.cfgMtx.RUnlock()

	return e.timeout
}

// SetPayloadSize assigns a fresh random payload of the given size to
// subsequent echo requests.
func (e *Engine) SetPayloadSize(size uint16) {
	e.payloadMtx.Lock()
	e.payload.Resize(size)
	e.payloadMtx.Unlock()
}

// Start launches the transmitter and receiver loops. The engine epoch
// is set here.
func (e *Engine) Start() error {
	e.stateMtx.Lock()
	defer e.stateMtx.Unlock()

	if e.stopped {
		return errStopped
	}
	if e.transmitting {
		return errAlreadyRunning
	}

	e.transmitting = true
	e.epoch = time.Now()

	e.wg.Add(1)
	go e.transmitter()
	e.startReceiverLocked()

	return nil
}

// Stop halts both loops, closes the socket and closes the result
// stream. It is idempotent and safe to call from any goroutine.
func (e *Engine) Stop() error {
	e.stateMtx.Lock()
	if e.stopped {
		e.stateMtx.Unlock()
		return nil
	}
	e.stopped = true
	close(e.stop)
	e.stateMtx.Unlock()

	// Closing the socket kicks a receiver blocked in ReadFrom.
	e.conn.Close()
	e.wg.Wait()

	// Anything still pending will never resolve; flush it as lost.
	e.flushPending()

	close(e.results)

	return nil
}

// AddTarget registers a host for periodic probing.
func (e *Engine) AddTarget(addr *net.IPAddr, ttl int) (pingpath.Target, error) {
	if addr == nil || addr.IP == nil {
		return nil, errors.New("invalid target address")
	}

	e.targetMtx.Lock()
	defer e.targetMtx.Unlock()

	t := &target{
		addr: addr,
		ttl:  ttl,
		id:   e.allocIDLocked(),
	}
	e.targets = append(e.targets, t)

	return t, nil
}

// RemoveTarget unregisters a target. Requests already in flight for it
// still resolve normally.
func (e *Engine) RemoveTarget(tgt pingpath.Target) bool {
	e.targetMtx.Lock()
	defer e.targetMtx.Unlock()

	for i, t := range e.targets {
		if pingpath.Target(t) == tgt {
			e.targets = append(e.targets[:i], e.targets[i+1:]...)
			return true
		}
	}

	return false
}

// Targets returns a snapshot of the registered targets.
func (e *Engine) Targets() []pingpath.Target {
	e.targetMtx.Lock()
	defer e.targetMtx.Unlock()

	list := make([]pingpath.Target, len(e.targets))
	for i, t := range e.targets {
		list[i] = t
	}

	return list
}

// Epoch returns the time Start was called.
func (e *Engine) Epoch() time.Time {
	e.stateMtx.Lock()
	defer e.stateMtx.Unlock()

	return e.epoch
}

// Results returns the engine's result stream.
func (e *Engine) Results() <-chan pingpath.Result {
	return e.results
}

// snapshotTargets copies the registry under its lock, so a target
// removed mid-round is never probed against a stale slice.
func (e *Engine) snapshotTargets() []*target {
	e.targetMtx.Lock()
	defer e.targetMtx.Unlock()

	list := make([]*target, len(e.targets))
	copy(list, e.targets)

	return list
}

// allocIDLocked hands out per-target correlation identifiers. Caller
// holds targetMtx.
func (e *Engine) allocIDLocked() uint16 {
	id := e.nextID
	e.nextID++
	if e.nextID == 0 {
		e.nextID = 1
	}

	return id
}

// currentPayload returns the shared request payload.
func (e *Engine) currentPayload() []byte {
	e.payloadMtx.RLock()
	defer e.payloadMtx.RUnlock()

	return e.payload
}

// emit delivers a result to the stream. The channel is buffered; if a
// consumer stalls for longer than the backlog allows, overflow results
// are dropped so the receive loop never blocks.
func (e *Engine) emit(res pingpath.Result) {
	select {
	case e.results <- res:
	default:
		log.Errorf("result backlog full, dropping sample %d for %v",
			res.Sample, res.Target.HostAddress())
	}
}
