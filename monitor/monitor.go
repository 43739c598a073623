// Package monitor aggregates an engine's result stream into per-target
// round-trip statistics. It never touches transmitter or receiver
// internals; it is a pure consumer of the probing contract.
package monitor

import (
	"sync"

	"github.com/pingpath/pingpath"
)

const defaultHistorySize = 50

// Monitor collects RTT history for every target an engine reports on.
type Monitor struct {
	HistorySize int // number of results kept per target

	engine pingpath.Engine

	mtx     sync.RWMutex
	entries map[uint16]*entry // keyed by target identifier

	done chan struct{}
}

type entry struct {
	target  pingpath.Target
	history *History
}

// New attaches a monitor to an engine's result stream and starts
// consuming it. The monitor drains until the engine closes the stream;
// Wait blocks until then.
func New(engine pingpath.Engine) *Monitor {
	m := &Monitor{
		HistorySize: defaultHistorySize,
		engine:      engine,
		entries:     make(map[uint16]*entry),
		done:        make(chan struct{}),
	}

	go m.run()

	return m
}

func (m *Monitor) run() {
	defer close(m.done)

	for res := range m.engine.Results() {
		m.record(res)
	}
}

// Wait blocks until the engine has closed its result stream.
func (m *Monitor) Wait() {
	<-m.done
}

func (m *Monitor) record(res pingpath.Result) {
	if res.Target == nil {
		return
	}

	m.mtx.Lock()
	ent := m.entries[res.Target.ID()]
	if ent == nil {
		ent = &entry{
			target:  res.Target,
			history: NewHistory(m.HistorySize),
		}
		m.entries[res.Target.ID()] = ent
	}
	m.mtx.Unlock()

	ent.history.AddResult(res.RTT, res.TimedOut)
}

// Forget drops the history collected for a target, e.g. after it has
// been removed from the engine.
func (m *Monitor) Forget(target pingpath.Target) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	delete(m.entries, target.ID())
}

// Export calculates the metrics for each observed target and returns
// them keyed by host address.
func (m *Monitor) Export() map[string]*Metrics {
	result := make(map[string]*Metrics)

	m.mtx.RLock()
	defer m.mtx.RUnlock()

	for _, ent := range m.entries {
		if metrics := ent.history.Compute(); metrics != nil {
			result[ent.target.HostAddress().String()] = metrics
		}
	}

	return result
}
