package icmpengine

import (
	"time"

	"github.com/pingpath/pingpath/internal/packet"
)

// transmitter runs the periodic probe loop. Each round snapshots the
// target registry, sends one echo request per target and then sleeps
// for whatever remains of the interval, so the cadence stays fixed as
// target count and send latency vary instead of accumulating drift.
func (e *Engine) transmitter() {
	defer e.wg.Done()

	for {
		started := time.Now()
		e.transmitRound()

		wait := e.Interval() - time.Since(started)
		if wait < 0 {
			wait = 0
		}

		select {
		case <-e.stop:
			return
		case <-time.After(wait):
		}
	}
}

// transmitRound probes every registered target once. A failure for one
// target is logged and never aborts the round; the remaining targets
// are still probed.
func (e *Engine) transmitRound() {
	targets := e.snapshotTargets()
	sample := e.sample.Load()
	payload := e.currentPayload()

	for _, t := range targets {
		select {
		case <-e.stop:
			return
		default:
		}

		seq := e.seq.Next()

		buf, err := packet.EchoRequest(e.version, t.id, seq, payload)
		if err != nil {
			log.Errorf("unable to build request for %v: %v", t.addr, err)
			continue
		}

		// Timestamp before the item becomes visible to the receiver, so
		// an immediate reply still measures a sane RTT.
		item := &pingItem{
			target: t,
			seq:    seq,
			sample: sample,
			sentAt: time.Now(),
		}
		e.addPending(item)

		if n, err := e.conn.WriteTo(buf, t.addr, t.ttl); err != nil {
			// The item stays pending and ages into a timeout, so the
			// target still gets its result for this sample.
			log.Errorf("unable to send to %v: %v", t.addr, err)
		} else if n != len(buf) {
			log.Errorf("short send to %v: %d of %d bytes", t.addr, n, len(buf))
		}
	}

	e.sample.Add(1)
}
