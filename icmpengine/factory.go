package icmpengine

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pingpath/pingpath"
	"github.com/pingpath/pingpath/internal/transport"
)

// Priority ranks the raw-socket engine above the ping-command
// fallback wherever it is available.
const Priority = 1.0

// Factory builds raw-socket engines. Its configuration blob carries the
// defaults applied to newly created engines; persisting the blob is the
// caller's business.
type Factory struct {
	mtx     sync.Mutex
	cfg     factoryConfig
	engines []*Engine
}

type factoryConfig struct {
	IntervalMs int64 `json:"interval"`
	TimeoutMs  int64 `json:"timeout"`
}

// NewFactory returns a factory with default configuration.
func NewFactory() *Factory {
	return &Factory{
		cfg: factoryConfig{
			IntervalMs: DefaultInterval.Milliseconds(),
			TimeoutMs:  DefaultTimeout.Milliseconds(),
		},
	}
}

func init() {
	pingpath.RegisterFactory(NewFactory())
}

// CreateEngine opens an engine for the given IP version, preferring a
// raw socket and falling back to the unprivileged datagram flavour.
func (f *Factory) CreateEngine(version pingpath.IPVersion) (pingpath.Engine, error) {
	privileged := transport.Probe(version, true)

	engine, err := New(version, "", privileged)
	if err != nil {
		return nil, err
	}

	f.mtx.Lock()
	engine.SetInterval(time.Duration(f.cfg.IntervalMs) * time.Millisecond)
	engine.SetTimeout(time.Duration(f.cfg.TimeoutMs) * time.Millisecond)
	f.engines = append(f.engines, engine)
	f.mtx.Unlock()

	return engine, nil
}

// DeleteEngine stops an engine created by this factory and forgets it.
func (f *Factory) DeleteEngine(engine pingpath.Engine) bool {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	for i, e := range f.engines {
		if pingpath.Engine(e) == engine {
			f.engines = append(f.engines[:i], f.engines[i+1:]...)
			e.Stop()
			return true
		}
	}

	return false
}

func (f *Factory) Description() string {
	return "ICMP socket ping engine"
}

func (f *Factory) Priority() float64 {
	return Priority
}

// Available reports whether any ICMP socket flavour can be opened,
// which requires either raw-socket privilege or a permissive
// net.ipv4.ping_group_range.
func (f *Factory) Available() bool {
	return transport.Probe(pingpath.IPv4, true) ||
		transport.Probe(pingpath.IPv4, false) ||
		transport.Probe(pingpath.IPv6, true) ||
		transport.Probe(pingpath.IPv6, false)
}

// SaveConfiguration returns the factory defaults as a JSON blob.
func (f *Factory) SaveConfiguration() json.RawMessage {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	blob, err := json.Marshal(&f.cfg)
	if err != nil {
		return nil
	}

	return blob
}

// LoadConfiguration applies a previously saved blob. Unknown fields are
// ignored; non-positive durations keep their current values.
func (f *Factory) LoadConfiguration(configuration json.RawMessage) bool {
	var cfg factoryConfig
	if err := json.Unmarshal(configuration, &cfg); err != nil {
		return false
	}

	f.mtx.Lock()
	defer f.mtx.Unlock()

	if cfg.IntervalMs > 0 {
		f.cfg.IntervalMs = cfg.IntervalMs
	}
	if cfg.TimeoutMs > 0 {
		f.cfg.TimeoutMs = cfg.TimeoutMs
	}

	return true
}
