// Package evolution implements the self-modification engine: analysis of a
// module's source for known inefficiency patterns, candidate rewriting,
// validation, benchmarking, and a committed-or-rolled-back verdict appended
// to a generational performance ledger.
package evolution

import (
	"fmt"
	"sort"
	"sync"

	"taskforge/internal/logging"
	"taskforge/internal/types"
)

// Version is one loaded implementation of a module: its source plus the
// interpreted entry points.
type Version struct {
	Generation int
	Source     string
	process    func(string) string
	selfTest   func() error
}

// Invoke runs the version's Process entry.
func (v *Version) Invoke(input string) string { return v.process(input) }

// Registry holds the active implementation of every registered module
// behind one indirection point. The active version is only ever replaced by
// an atomic swap after validation and benchmarking pass; the current
// implementation is never mutated in place.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	loader  *Loader
}

// entry guards one module. cycle is held exclusively for a whole
// modification attempt; invocations take it shared, so a pending rewrite
// blocks dependent executions instead of exposing a half-written module.
type entry struct {
	cycle   sync.RWMutex
	active  *Version
	battery []string
}

// NewRegistry creates an empty registry using loader for source loading.
func NewRegistry(loader *Loader) *Registry {
	return &Registry{entries: make(map[string]*entry), loader: loader}
}

// Register loads source and installs it as the module's active version at
// the given generation. battery is the module's fixed benchmark input set.
func (r *Registry) Register(moduleID, source string, generation int, battery []string) error {
	v, err := r.loader.Load(source)
	if err != nil {
		return fmt.Errorf("registering %s: %w", moduleID, err)
	}
	v.Generation = generation

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[moduleID]; exists {
		return fmt.Errorf("module %s already registered", moduleID)
	}
	r.entries[moduleID] = &entry{active: v, battery: battery}
	logging.Evolution("module registered: %s (generation %d)", moduleID, generation)
	return nil
}

// Invoke executes the module's active Process entry. It blocks while a
// modification cycle holds the module, and always runs against a fully
// validated version.
func (r *Registry) Invoke(moduleID, input string) (string, error) {
	e, err := r.entry(moduleID)
	if err != nil {
		return "", err
	}
	e.cycle.RLock()
	defer e.cycle.RUnlock()
	return e.active.Invoke(input), nil
}

// Source returns the module's active source.
func (r *Registry) Source(moduleID string) (string, error) {
	e, err := r.entry(moduleID)
	if err != nil {
		return "", err
	}
	e.cycle.RLock()
	defer e.cycle.RUnlock()
	return e.active.Source, nil
}

// Generation returns the module's active generation.
func (r *Registry) Generation(moduleID string) (int, error) {
	e, err := r.entry(moduleID)
	if err != nil {
		return 0, err
	}
	e.cycle.RLock()
	defer e.cycle.RUnlock()
	return e.active.Generation, nil
}

// Battery returns the module's benchmark input set.
func (r *Registry) Battery(moduleID string) ([]string, error) {
	e, err := r.entry(moduleID)
	if err != nil {
		return nil, err
	}
	return e.battery, nil
}

// Modules lists registered module ids, sorted.
func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for id := range r.entries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Has reports whether a module id is registered.
func (r *Registry) Has(moduleID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[moduleID]
	return ok
}

func (r *Registry) entry(moduleID string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[moduleID]
	if !ok {
		return nil, fmt.Errorf("unknown module %q", moduleID)
	}
	return e, nil
}

// ModificationGuard is the exclusive hold an engine cycle keeps on a module
// from snapshotting through commit or rollback.
type ModificationGuard struct {
	moduleID string
	e        *entry
	released bool
}

// BeginModification takes the module's exclusive lock. Dependent
// invocations block until Release.
func (r *Registry) BeginModification(moduleID string) (*ModificationGuard, error) {
	e, err := r.entry(moduleID)
	if err != nil {
		return nil, err
	}
	e.cycle.Lock()
	return &ModificationGuard{moduleID: moduleID, e: e}, nil
}

// TryBeginModification is BeginModification without queueing: a module
// already held by another cycle fails with ErrModuleLocked. Two rewrites
// of the same module never interleave and never stack up.
func (r *Registry) TryBeginModification(moduleID string) (*ModificationGuard, error) {
	e, err := r.entry(moduleID)
	if err != nil {
		return nil, err
	}
	if !e.cycle.TryLock() {
		return nil, fmt.Errorf("%w: %s", types.ErrModuleLocked, moduleID)
	}
	return &ModificationGuard{moduleID: moduleID, e: e}, nil
}

// Current returns the source and generation of the guarded module.
func (g *ModificationGuard) Current() (string, int) {
	return g.e.active.Source, g.e.active.Generation
}

// Swap atomically installs a validated candidate as the active version.
func (g *ModificationGuard) Swap(v *Version) {
	g.e.active = v
	logging.Evolution("module %s swapped to generation %d", g.moduleID, v.Generation)
}

// Release drops the exclusive lock. Safe to call more than once.
func (g *ModificationGuard) Release() {
	if g.released {
		return
	}
	g.released = true
	g.e.cycle.Unlock()
}
