package icmpengine

import (
	"errors"
	"net"
	"time"

	"github.com/pingpath/pingpath"
	"github.com/pingpath/pingpath/internal/packet"
)

// SingleShot synchronously probes addr once with the given ttl. It
// shares the engine's socket and pending table with the periodic loop
// but bypasses the result stream, delivering straight to the caller.
// Route discovery uses this for one-off hop probes.
//
// The call blocks for at most timeout; a missing reply is a timed-out
// Result, not an error.
func (e *Engine) SingleShot(addr *net.IPAddr, ttl int, timeout time.Duration) (pingpath.Result, error) {
	if addr == nil || addr.IP == nil {
		return pingpath.Result{}, errors.New("invalid target address")
	}
	if timeout <= 0 {
		timeout = e.Timeout()
	}

	// The receive loop must be running to correlate the reply, even if
	// the engine was never started for periodic probing.
	e.stateMtx.Lock()
	if e.stopped {
		e.stateMtx.Unlock()
		return pingpath.Result{}, errStopped
	}
	e.startReceiverLocked()
	e.stateMtx.Unlock()

	e.targetMtx.Lock()
	id := e.allocIDLocked()
	e.targetMtx.Unlock()

	t := &target{addr: addr, ttl: ttl, id: id}
	seq := e.seq.Next()

	buf, err := packet.EchoRequest(e.version, t.id, seq, e.currentPayload())
	if err != nil {
		return pingpath.Result{}, err
	}

	item := &pingItem{
		target: t,
		seq:    seq,
		sample: e.sample.Load(),
		sentAt: time.Now(),
		wait:   make(chan pingpath.Result, 1),
	}
	e.addPending(item)

	if _, err := e.conn.WriteTo(buf, addr, ttl); err != nil {
		e.takePending(e.pendingKeyFor(t.id, seq))
		return pingpath.Result{}, err
	}

	select {
	case res := <-item.wait:
		return res, nil

	case <-time.After(timeout):
		if e.takePending(e.pendingKeyFor(t.id, seq)) != nil {
			item.state = stateTimedOut
			return pingpath.Result{
				Target:   t,
				TimedOut: true,
				Sample:   item.sample,
				Received: time.Now(),
			}, nil
		}

		// The resolver won the race and already removed the item; its
		// result is in flight on the buffered channel.
		return <-item.wait, nil
	}
}
