package icmpengine

import (
	"net"
	"time"

	"github.com/pingpath/pingpath"
	"github.com/pingpath/pingpath/internal/packet"
)

const (
	// maxPacketSize is the receive buffer size, one ethernet MTU.
	maxPacketSize = 1500

	// readSlice bounds a single blocking read. Between reads the loop
	// checks for shutdown and sweeps the pending table, so a silent
	// network can never wedge Stop or starve timeout detection.
	readSlice = 500 * time.Millisecond
)

// startReceiverLocked launches the receive loop if it is not running.
// Caller holds stateMtx.
func (e *Engine) startReceiverLocked() {
	if e.receiving || e.stopped {
		return
	}
	e.receiving = true

	e.wg.Add(1)
	go e.receiver()
}

// receiver blocks on the transport in bounded slices, correlates
// inbound packets against the pending table and sweeps it for expired
// requests.
func (e *Engine) receiver() {
	defer e.wg.Done()

	buf := make([]byte, maxPacketSize)

	for {
		select {
		case <-e.stop:
			return
		default:
		}

		n, from, err := e.conn.ReadFrom(buf, time.Now().Add(readSlice))
		now := time.Now()

		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				e.sweep(now)
				continue
			}

			// The socket is gone. During Stop that is expected; any
			// other permanent error leaves the engine without reply
			// correlation and must not pass silently.
			select {
			case <-e.stop:
			default:
				log.Errorf("receiver exiting, replies will no longer correlate: %v", err)
			}

			e.stateMtx.Lock()
			e.receiving = false
			e.stateMtx.Unlock()
			return
		}

		e.handlePacket(buf[:n], from, now)
		e.sweep(now)
	}
}

// handlePacket classifies one inbound buffer and resolves the matching
// request, if any. Malformed packets and unmatched replies are dropped;
// neither is allowed to disturb the loop.
func (e *Engine) handlePacket(buf []byte, from net.IPAddr, now time.Time) {
	reply, err := packet.Decode(e.version, buf, from)
	if err != nil {
		if packet.IsMalformed(err) {
			log.Infof("dropping malformed packet from %v (%d bytes)", from, len(buf))
		}
		return
	}

	switch reply.Kind {
	case packet.EchoReply, packet.TimeExceeded, packet.Unreachable:
		e.resolveReply(reply, now)
	default:
		// unrelated ICMP traffic
	}
}

// resolveReply completes the pending item matching the reply's
// identifier and sequence. For time-exceeded and unreachable answers
// the item belongs to the original request dug out of the payload, and
// the result carries the responding hop's address rather than the
// target's. An unmatched reply is a correlation miss: stale, duplicated
// or simply not ours.
func (e *Engine) resolveReply(reply packet.Reply, now time.Time) {
	item := e.takePending(e.pendingKeyFor(reply.ID, reply.Seq))
	if item == nil {
		log.Infof("uncorrelated reply from %v (id=%d seq=%d)",
			reply.From, reply.ID, reply.Seq)
		return
	}

	item.state = stateCompleted
	from := reply.From

	res := pingpath.Result{
		Target:    item.target,
		ReplyFrom: &from,
		RTT:       now.Sub(item.sentAt),
		Sample:    item.sample,
		Received:  now,
	}

	if item.wait != nil {
		item.wait <- res
		return
	}
	e.emit(res)
}

// sweep resolves every pending item older than the configured timeout
// as lost. Together with map removal in takePending this guarantees
// each item resolves exactly once: a reply arriving after the sweep
// finds no entry and counts as a correlation miss.
func (e *Engine) sweep(now time.Time) {
	timeout := e.Timeout()

	var expired []*pingItem

	e.pendingMtx.Lock()
	for key, item := range e.pending {
		if !item.sentAt.IsZero() && now.Sub(item.sentAt) >= timeout {
			delete(e.pending, key)
			expired = append(expired, item)
		}
	}
	e.pendingMtx.Unlock()

	for _, item := range expired {
		e.resolveTimeout(item)
	}
}

// flushPending resolves everything still outstanding as lost. Called
// during Stop, after both loops have exited.
func (e *Engine) flushPending() {
	var orphaned []*pingItem

	e.pendingMtx.Lock()
	for key, item := range e.pending {
		delete(e.pending, key)
		orphaned = append(orphaned, item)
	}
	e.pendingMtx.Unlock()

	for _, item := range orphaned {
		e.resolveTimeout(item)
	}
}
