package icmpengine

import (
	"time"

	"github.com/pingpath/pingpath"
)

type itemState int

const (
	statePending itemState = iota
	stateCompleted
	stateTimedOut
)

// pendingKey identifies an outstanding request. Correlation is by
// identifier and sequence together; sequence alone is ambiguous once
// the 16-bit counter has wrapped.
type pendingKey struct {
	id  uint16
	seq uint16
}

// pingItem is the correlation record for one outstanding echo request.
// It lives in the engine's pending table from send until resolution and
// resolves exactly once, to a reply or a timeout.
type pingItem struct {
	target *target
	seq    uint16
	sample uint64
	sentAt time.Time
	state  itemState

	// wait is non-nil for single-shot probes; the resolver delivers the
	// result here instead of the engine stream. Buffered, so resolution
	// never blocks on an abandoned waiter.
	wait chan pingpath.Result
}

// pendingKeyFor normalizes a correlation key. With matchID unset the
// identifier is zeroed out of every key, so requests and replies meet
// on the sequence alone.
func (e *Engine) pendingKeyFor(id, seq uint16) pendingKey {
	if !e.matchID {
		id = 0
	}
	return pendingKey{id: id, seq: seq}
}

// addPending registers an item in the pending table. If the sequence
// counter has wrapped all the way around onto a request that is somehow
// still outstanding, the old item is resolved as lost first, keeping
// every in-flight (identifier, sequence) pair unique.
func (e *Engine) addPending(item *pingItem) {
	key := e.pendingKeyFor(item.target.id, item.seq)

	e.pendingMtx.Lock()
	stale := e.pending[key]
	if stale != nil {
		stale.state = stateTimedOut
	}
	e.pending[key] = item
	e.pendingMtx.Unlock()

	if stale != nil {
		log.Errorf("sequence %d reused while still pending for %v",
			key.seq, stale.target.addr)
		e.resolveTimeout(stale)
	}
}

// takePending removes and returns the item for key, or nil. Removal
// under the table lock is what guarantees single resolution even when
// a reply races the timeout sweep.
func (e *Engine) takePending(key pendingKey) *pingItem {
	e.pendingMtx.Lock()
	defer e.pendingMtx.Unlock()

	item := e.pending[key]
	if item != nil {
		delete(e.pending, key)
	}

	return item
}

// resolveTimeout emits the timed-out result for an item already removed
// from the pending table.
func (e *Engine) resolveTimeout(item *pingItem) {
	item.state = stateTimedOut

	res := pingpath.Result{
		Target:   item.target,
		TimedOut: true,
		Sample:   item.sample,
		Received: time.Now(),
	}

	if item.wait != nil {
		item.wait <- res
		return
	}
	e.emit(res)
}
