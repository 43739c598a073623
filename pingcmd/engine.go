// Package pingcmd implements the probing contract by shelling out to
// the system ping utility, one invocation per target per round, and
// parsing its textual output into the same result shape as the
// raw-socket engine. It exists so the application keeps working where
// ICMP sockets are unavailable to the process.
package pingcmd

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/digineo/go-logwrap"

	"github.com/pingpath/pingpath"
)

var (
	log = &logwrap.Instance{}

	// SetLogger allows updating the Logger. For details, see
	// "github.com/digineo/go-logwrap".Instance.SetLogger.
	SetLogger = log.SetLogger
)

const (
	// DefaultInterval matches the raw-socket engine's cadence.
	DefaultInterval = 10 * time.Second

	// DefaultTimeout is passed to the ping binary as its reply timeout.
	DefaultTimeout = 3 * time.Second

	resultBacklog = 256
)

var (
	errAlreadyRunning = errors.New("engine already running")
	errStopped        = errors.New("engine stopped")
)

// Engine drives the system ping binary. It satisfies pingpath.Engine.
type Engine struct {
	version pingpath.IPVersion

	cfgMtx   sync.RWMutex
	interval time.Duration
	timeout  time.Duration

	targetMtx sync.Mutex
	targets   []*target
	nextID    uint16

	results chan pingpath.Result
	sample  atomic.Uint64

	stateMtx sync.Mutex
	running  bool
	stopped  bool
	cancel   context.CancelFunc
	ctx      context.Context
	wg       sync.WaitGroup

	epoch time.Time
}

type target struct {
	addr *net.IPAddr
	ttl  int
	id   uint16
}

func (t *target) HostAddress() *net.IPAddr { return t.addr }
func (t *target) TTL() int                 { return t.ttl }
func (t *target) ID() uint16               { return t.id }

// New returns an idle command engine for the given IP version.
func New(version pingpath.IPVersion) *Engine {
	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		version:  version,
		interval: DefaultInterval,
		timeout:  DefaultTimeout,
		nextID:   1,
		results:  make(chan pingpath.Result, resultBacklog),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (e *Engine) SetInterval(interval time.Duration) error {
	if interval <= 0 {
		return errors.New("interval must be positive")
	}

	e.cfgMtx.Lock()
	e.interval = interval
	e.cfgMtx.Unlock()

	return nil
}

func (e *Engine) Interval() time.Duration {
	e.cfgMtx.RLock()
	defer e.cfgMtx.RUnlock()

	return e.interval
}

func (e *Engine) SetTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return errors.New("timeout must be positive")
	}

	e.cfgMtx.Lock()
	e.timeout = timeout
	e.cfgMtx.Unlock()

	return nil
}

func (e *Engine) Timeout() time.Duration {
	e.cfgMtx.RLock()
	defer e.cfgMtx.RUnlock()

	return e.timeout
}

// Start launches the round loop.
func (e *Engine) Start() error {
	e.stateMtx.Lock()
	defer e.stateMtx.Unlock()

	if e.stopped {
		return errStopped
	}
	if e.running {
		return errAlreadyRunning
	}

	e.running = true
	e.epoch = time.Now()

	e.wg.Add(1)
	go e.loop()

	return nil
}

// Stop cancels all running ping commands and closes the result stream.
// Idempotent.
func (e *Engine) Stop() error {
	e.stateMtx.Lock()
	if e.stopped {
		e.stateMtx.Unlock()
		return nil
	}
	e.stopped = true
	e.cancel()
	e.stateMtx.Unlock()

	e.wg.Wait()
	close(e.results)

	return nil
}

func (e *Engine) AddTarget(addr *net.IPAddr, ttl int) (pingpath.Target, error) {
	if addr == nil || addr.IP == nil {
		return nil, errors.New("invalid target address")
	}

	e.targetMtx.Lock()
	defer e.targetMtx.Unlock()

	t := &target{addr: addr, ttl: ttl, id: e.nextID}
	e.nextID++
	e.targets = append(e.targets, t)

	return t, nil
}

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

func (e *Engine) Targets() []pingpath.Target {
	e.targetMtx.Lock()
	defer e.targetMtx.Unlock()

	list := make([]pingpath.Target, len(e.targets))
	for i, t := range e.targets {
		list[i] = t
	}

	return list
}

func (e *Engine) Epoch() time.Time {
	e.stateMtx.Lock()
	defer e.stateMtx.Unlock()

	return e.epoch
}

func (e *Engine) Results() <-chan pingpath.Result {
	return e.results
}

// loop runs probe rounds on the configured cadence. All targets of a
// round are probed concurrently since each one blocks on its own child
// process; the round waits for stragglers before the interval sleep is
// measured, keeping sample numbers aligned across targets.
func (e *Engine) loop() {
	defer e.wg.Done()

	for {
		started := time.Now()
		e.probeRound()

		wait := e.Interval() - time.Since(started)
		if wait < 0 {
			wait = 0
		}

		select {
		case <-e.ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (e *Engine) probeRound() {
	e.targetMtx.Lock()
	targets := make([]*target, len(e.targets))
	copy(targets, e.targets)
	e.targetMtx.Unlock()

	sample := e.sample.Load()
	timeout := e.Timeout()

	var round sync.WaitGroup
	round.Add(len(targets))

	for _, t := range targets {
		go func(t *target) {
			defer round.Done()

			res, err := e.probe(t, sample, timeout)
			if err != nil {
				log.Errorf("ping command for %v: %v", t.addr, err)
				res = pingpath.Result{
					Target:   t,
					TimedOut: true,
					Sample:   sample,
					Received: time.Now(),
				}
			}
			e.emit(res)
		}(t)
	}

	round.Wait()
	e.sample.Add(1)
}

// SingleShot probes addr once, synchronously, with the given ttl.
func (e *Engine) SingleShot(addr *net.IPAddr, ttl int, timeout time.Duration) (pingpath.Result, error) {
	if addr == nil || addr.IP == nil {
		return pingpath.Result{}, errors.New("invalid target address")
	}
	if timeout <= 0 {
		timeout = e.Timeout()
	}

	e.stateMtx.Lock()
	if e.stopped {
		e.stateMtx.Unlock()
		return pingpath.Result{}, errStopped
	}
	e.stateMtx.Unlock()

	t := &target{addr: addr, ttl: ttl}

	return e.probe(t, e.sample.Load(), timeout)
}

// probe runs one ping invocation for one target and maps its output to
// a Result.
func (e *Engine) probe(t *target, sample uint64, timeout time.Duration) (pingpath.Result, error) {
	ctx, cancel := context.WithTimeout(e.ctx, timeout+time.Second)
	defer cancel()

	output, err := runPing(ctx, e.version, t.addr, t.ttl, timeout)
	now := time.Now()

	reply, ok := parseOutput(output)
	if !ok {
		// No reply line in the output. A non-zero exit with no reply is
		// the normal shape of a lost packet, not an engine failure.
		if err != nil && ctx.Err() == context.Canceled {
			return pingpath.Result{}, errStopped
		}

		return pingpath.Result{
			Target:   t,
			TimedOut: true,
			Sample:   sample,
			Received: now,
		}, nil
	}

	from := t.addr
	if ip := net.ParseIP(reply.From); ip != nil {
		from = &net.IPAddr{IP: ip}
	} else if reply.Exceeded {
		// A hop reported the TTL expired but its address did not parse.
		// Without a source the reply cannot be attributed; claiming the
		// target answered would invent a hop that is not there.
		return pingpath.Result{
			Target:   t,
			TimedOut: true,
			Sample:   sample,
			Received: now,
		}, nil
	}

	return pingpath.Result{
		Target:    t,
		ReplyFrom: from,
		RTT:       reply.RTT,
		Sample:    sample,
		Received:  now,
	}, nil
}

func (e *Engine) emit(res pingpath.Result) {
	select {
	case e.results <- res:
	default:
		log.Errorf("result backlog full, dropping sample %d for %v",
			res.Sample, res.Target.HostAddress())
	}
}
