package route

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pingpath/pingpath"
)

var destination = &net.IPAddr{IP: net.ParseIP("203.0.113.7")}

func hopIP(n byte) *net.IPAddr {
	return &net.IPAddr{IP: net.IPv4(10, 0, 0, n)}
}

type fakeTarget struct {
	addr *net.IPAddr
	ttl  int
}

func (t *fakeTarget) HostAddress() *net.IPAddr { return t.addr }
func (t *fakeTarget) TTL() int                 { return t.ttl }
func (t *fakeTarget) ID() uint16               { return uint16(t.ttl) }

type hopReply struct {
	from  *net.IPAddr
	rtt   time.Duration
	delay time.Duration // completion delay, to force out-of-order replies
}

// fakeEngine scripts SingleShot responses per time-to-live. Everything
// else of the probing contract is inert.
type fakeEngine struct {
	mtx    sync.Mutex
	hops   map[int]hopReply
	probed []int
}

func newFakeEngine(hops map[int]hopReply) *fakeEngine {
	return &fakeEngine{hops: hops}
}

func (e *fakeEngine) SingleShot(addr *net.IPAddr, ttl int, timeout time.Duration) (pingpath.Result, error) {
	e.mtx.Lock()
	e.probed = append(e.probed, ttl)
	reply, ok := e.hops[ttl]
	e.mtx.Unlock()

	if !ok {
		return pingpath.Result{
			Target:   &fakeTarget{addr: addr, ttl: ttl},
			TimedOut: true,
			Received: time.Now(),
		}, nil
	}

	time.Sleep(reply.delay)

	return pingpath.Result{
		Target:    &fakeTarget{addr: addr, ttl: ttl},
		ReplyFrom: reply.from,
		RTT:       reply.rtt,
		Received:  time.Now(),
	}, nil
}

func (e *fakeEngine) SetInterval(time.Duration) error { return nil }
func (e *fakeEngine) Interval() time.Duration         { return 0 }
func (e *fakeEngine) SetTimeout(time.Duration) error  { return nil }
func (e *fakeEngine) Timeout() time.Duration          { return 0 }
func (e *fakeEngine) Start() error                    { return nil }
func (e *fakeEngine) Stop() error                     { return nil }
func (e *fakeEngine) Epoch() time.Time                { return time.Time{} }
func (e *fakeEngine) Results() <-chan pingpath.Result { return nil }
func (e *fakeEngine) Targets() []pingpath.Target      { return nil }

func (e *fakeEngine) AddTarget(addr *net.IPAddr, ttl int) (pingpath.Target, error) {
	return &fakeTarget{addr: addr, ttl: ttl}, nil
}

func (e *fakeEngine) RemoveTarget(pingpath.Target) bool { return false }

func TestDiscoverFourHops(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	// Hop 3 answers markedly later than hop 4; the route still comes
	// out in time-to-live order.
	fake := newFakeEngine(map[int]hopReply{
		1: {from: hopIP(1), rtt: 1 * time.Millisecond},
		2: {from: hopIP(2), rtt: 2 * time.Millisecond},
		3: {from: hopIP(3), rtt: 3 * time.Millisecond, delay: 50 * time.Millisecond},
		4: {from: destination, rtt: 4 * time.Millisecond},
	})

	engine := NewEngine(fake)
	discovered, err := engine.DiscoverAddr(context.Background(), destination)
	require.NoError(err)

	require.Len(discovered.Hops, 4)
	assert.True(discovered.Complete())

	for i, hop := range discovered.Hops {
		assert.Equal(i+1, hop.TTL)
		assert.True(hop.Replied)
	}

	assert.True(discovered.Hops[2].Addr.IP.Equal(hopIP(3).IP))
	assert.True(discovered.Hops[3].Final)
	assert.True(discovered.Hops[3].Addr.IP.Equal(destination.IP))
	assert.False(discovered.Hops[2].Final)
}

func TestDiscoverStopsAfterConsecutiveTimeouts(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	fake := newFakeEngine(nil) // nothing ever answers

	engine := NewEngine(fake)
	discovered, err := engine.DiscoverAddr(context.Background(), destination)
	require.NoError(err)

	assert.Len(discovered.Hops, DefaultMaxTimeouts)
	assert.False(discovered.Complete())
	for _, hop := range discovered.Hops {
		assert.False(hop.Replied)
	}
}

func TestDiscoverSilentHopResetsCounter(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	// Hop 2 is silent, the rest answer; a single gap must not end the
	// trace.
	fake := newFakeEngine(map[int]hopReply{
		1: {from: hopIP(1), rtt: time.Millisecond},
		3: {from: hopIP(3), rtt: time.Millisecond},
		4: {from: destination, rtt: time.Millisecond},
	})

	engine := NewEngine(fake)
	discovered, err := engine.DiscoverAddr(context.Background(), destination)
	require.NoError(err)

	require.Len(discovered.Hops, 4)
	assert.False(discovered.Hops[1].Replied)
	assert.True(discovered.Complete())
}

func TestDiscoverRespectsMaxHops(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	// Every hop answers but none is the destination.
	hops := make(map[int]hopReply)
	for ttl := 1; ttl <= 64; ttl++ {
		hops[ttl] = hopReply{from: hopIP(byte(ttl)), rtt: time.Millisecond}
	}
	fake := newFakeEngine(hops)

	engine := NewEngine(fake)
	engine.MaxHops = 5

	discovered, err := engine.DiscoverAddr(context.Background(), destination)
	require.NoError(err)

	assert.Len(discovered.Hops, 5)
	assert.False(discovered.Complete())
}

func TestDiscoverCallbackOrder(t *testing.T) {
	require := require.New(t)

	fake := newFakeEngine(map[int]hopReply{
		1: {from: hopIP(1), rtt: time.Millisecond, delay: 30 * time.Millisecond},
		2: {from: destination, rtt: time.Millisecond},
	})

	var seen []int
	engine := NewEngine(fake)
	engine.Callback = func(hop Hop) { seen = append(seen, hop.TTL) }

	_, err := engine.DiscoverAddr(context.Background(), destination)
	require.NoError(err)
	require.Equal([]int{1, 2}, seen)
}

func TestDiscoverCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := NewEngine(newFakeEngine(nil))
	_, err := engine.DiscoverAddr(ctx, destination)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFactoryConfiguration(t *testing.T) {
	assert := assert.New(t)

	f := NewFactory()

	blob := f.SaveConfiguration()
	assert.JSONEq(`{"maxHops":30,"timeout":3000,"maxTimeouts":3,"window":4}`, string(blob))

	assert.True(f.LoadConfiguration(json.RawMessage(`{"maxHops":16,"timeout":1000,"maxTimeouts":5,"window":2}`)))

	engine := f.CreateEngine(newFakeEngine(nil))
	assert.Equal(16, engine.MaxHops)
	assert.Equal(time.Second, engine.Timeout)
	assert.Equal(5, engine.MaxTimeouts)
	assert.Equal(2, engine.Window)

	assert.False(f.LoadConfiguration(json.RawMessage(`[]`)))
}
