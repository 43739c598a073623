package pingcmd

import (
	"encoding/json"
	"os/exec"
	"sync"
	"time"

	"github.com/pingpath/pingpath"
)

// Priority ranks the command engine below the raw-socket engine; it is
// the fallback, not the preferred default.
const Priority = 0.5

// Factory builds ping-command engines.
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

func (f *Factory) CreateEngine(version pingpath.IPVersion) (pingpath.Engine, error) {
	engine := New(version)

	f.mtx.Lock()
	engine.SetInterval(time.Duration(f.cfg.IntervalMs) * time.Millisecond)
	engine.SetTimeout(time.Duration(f.cfg.TimeoutMs) * time.Millisecond)
	f.engines = append(f.engines, engine)
	f.mtx.Unlock()

	return engine, nil
}

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
	return "system ping command engine"
}

func (f *Factory) Priority() float64 {
	return Priority
}

// Available reports whether a ping binary is on PATH. The binary
// usually carries setuid or equivalent capabilities, so this works even
// where raw sockets do not.
func (f *Factory) Available() bool {
	_, err := exec.LookPath(pingBinary)
	return err == nil
}

func (f *Factory) SaveConfiguration() json.RawMessage {
	f.mtx.Lock()
	defer f.mtx.Unlock()

	blob, err := json.Marshal(&f.cfg)
	if err != nil {
		return nil
	}

	return blob
}

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
