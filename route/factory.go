package route

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pingpath/pingpath"
)

// Factory builds route engines, applying its configured defaults to
// each. The configuration blob is opaque JSON; persisting it is the
// caller's business.
type Factory struct {
	mtx sync.Mutex
	cfg factoryConfig
}

type factoryConfig struct {
	MaxHops     int   `json:"maxHops"`
	TimeoutMs   int64 `json:"timeout"`
	MaxTimeouts int   `json:"maxTimeouts"`
	Window      int   `json:"window"`
}

// NewFactory returns a factory with default configuration.
func NewFactory() *Factory {
	return &Factory{
		cfg: factoryConfig{
			MaxHops:     DefaultMaxHops,
			TimeoutMs:   DefaultTimeout.Milliseconds(),
			MaxTimeouts: DefaultMaxTimeouts,
			Window:      DefaultWindow,
		},
	}
}

// CreateEngine returns a route engine probing through pinger, with the
// factory's defaults applied.
func (f *Factory) CreateEngine(pinger pingpath.Engine) *Engine {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	engine := NewEngine(pinger)
	engine.MaxHops = f.cfg.MaxHops
	engine.Timeout = time.Duration(f.cfg.TimeoutMs) * time.Millisecond
	engine.MaxTimeouts = f.cfg.MaxTimeouts
	engine.Window = f.cfg.Window

	return engine
}

func (f *Factory) Description() string {
	return "hop discovery route engine"
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

// LoadConfiguration applies a previously saved blob. It reports whether
// the blob was understood; non-positive values keep their defaults.
func (f *Factory) LoadConfiguration(configuration json.RawMessage) bool {
	var cfg factoryConfig
	if err := json.Unmarshal(configuration, &cfg); err != nil {
		return false
	}

	f.mtx.Lock()
	defer f.mtx.Unlock()

	if cfg.MaxHops > 0 {
		f.cfg.MaxHops = cfg.MaxHops
	}
	if cfg.TimeoutMs > 0 {
		f.cfg.TimeoutMs = cfg.TimeoutMs
	}
	if cfg.MaxTimeouts > 0 {
		f.cfg.MaxTimeouts = cfg.MaxTimeouts
	}
	if cfg.Window > 0 {
		f.cfg.Window = cfg.Window
	}

	return true
}
