package icmpengine

import (
	"math"
	"sync"
)

// sequence is the engine's 16-bit monotonic sequence counter. Each
// engine owns its own counter, so concurrently transmitting engines
// never contend or collide; within an engine, allocation is serialized
// by the mutex.
type sequence struct {
	mtx   sync.Mutex
	next  uint16
	start uint16
}

// newSequence returns a counter that starts at start and wraps back to
// it after 65535. A start of 0 is bumped to 1; 0 is never allocated.
func newSequence(start uint16) *sequence {
	if start == 0 {
		start = 1
	}

	return &sequence{next: start, start: start}
}

// Next allocates the next sequence number.
func (s *sequence) Next() uint16 {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	v := s.next
	if s.next == math.MaxUint16 {
		s.next = s.start
	} else {
		s.next++
	}

	return v
}
