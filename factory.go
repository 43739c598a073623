package pingpath

import (
	"encoding/json"
	"sort"
	"sync"
)

// Factory constructs and destroys engine instances of one concrete kind.
// Factories report whether their engine can work on this system at all
// (Available) and a ranking (Priority) used to pick a platform default.
type Factory interface {
	// CreateEngine returns a new engine for the given IP version.
	CreateEngine(version IPVersion) (Engine, error)

	// DeleteEngine stops and releases an engine created by this factory.
	// It reports whether the engine belonged to this factory.
	DeleteEngine(engine Engine) bool

	// Description returns a human readable name for this engine kind.
	Description() string

	// Priority ranks this factory against others; higher wins.
	Priority() float64

	// Available reports whether this engine kind can run here, e.g.
	// whether the process may open raw sockets.
	Available() bool

	// SaveConfiguration returns the factory settings as a JSON blob.
	// Persisting the blob is the caller's business.
	SaveConfiguration() json.RawMessage

	// LoadConfiguration applies a previously saved JSON blob. It reports
	// whether the blob was understood.
	LoadConfiguration(configuration json.RawMessage) bool
}

var (
	factoryMtx sync.RWMutex
	factoryfns []Factory
)

// RegisterFactory adds a factory to the process-wide registry. Engine
// packages call this from init, so importing a package is what makes its
// engine selectable.
func RegisterFactory(factory Factory) {
	factoryMtx.Lock()
	defer factoryMtx.Unlock()

	factoryfns = append(factoryfns, factory)
}

// Factories returns the registered factories, highest priority first.
func Factories() []Factory {
	factoryMtx.RLock()
	defer factoryMtx.RUnlock()

	list := make([]Factory, len(factoryfns))
	copy(list, factoryfns)

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Priority() > list[j].Priority()
	})

	return list
}

// DefaultFactory returns the highest priority factory that is available
// on this system, or nil if none is.
func DefaultFactory() Factory {
	for _, factory := range Factories() {
		if factory.Available() {
			return factory
		}
	}
	return nil
}
