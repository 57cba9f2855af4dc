package core

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/JonMunkholm/sinan/internal/dictionary"
)

// BackendConfig carries everything a backend constructor may need.
type BackendConfig struct {
	SourceDir string
	Registry  *dictionary.Registry
	Logger    *slog.Logger

	// Reference backend guards.
	MaxRows     int
	MemoryLimit int64

	// Analytical engine settings.
	EngineMemoryLimit string
	EngineThreads     int
}

// BackendDefinition describes one load backend. Backends register
// themselves from init() so a build without cgo simply lacks the engine.
type BackendDefinition struct {
	Name string

	// Fast marks backends that push the age predicate down to the engine.
	Fast bool

	// Available reports whether the backend can run in this process.
	// Nil means always available.
	Available func() error

	New func(BackendConfig) (Backend, error)
}

var (
	backends   = make(map[string]BackendDefinition)
	backendsMu sync.RWMutex
)

// RegisterBackend adds a backend definition.
// Panics if a backend with the same name is already registered.
func RegisterBackend(def BackendDefinition) {
	backendsMu.Lock()
	defer backendsMu.Unlock()

	if _, exists := backends[def.Name]; exists {
		panic(fmt.Sprintf("backend already registered: %s", def.Name))
	}
	backends[def.Name] = def
}

// GetBackend returns a backend definition by name.
func GetBackend(name string) (BackendDefinition, bool) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	def, ok := backends[name]
	return def, ok
}

// Backends returns every registered backend, fast ones first, then by name.
func Backends() []BackendDefinition {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	result := make([]BackendDefinition, 0, len(backends))
	for _, def := range backends {
		result = append(result, def)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Fast != result[j].Fast {
			return result[i].Fast
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// SelectBackend picks the backend for a build. With preferFast it tries
// the available fast backends first; the reference backend is the
// fallback. The returned warning is non-empty when a requested fast
// backend could not be used. ErrBackendUnavailable is returned only when
// nothing can be constructed.
func SelectBackend(cfg BackendConfig, preferFast bool) (Backend, string, error) {
	defs := Backends()
	var warning string
	if preferFast && (len(defs) == 0 || !defs[0].Fast) {
		warning = "no fast backend compiled in, using reference"
	}
	for _, def := range defs {
		if def.Fast && !preferFast {
			continue
		}
		if def.Available != nil {
			if err := def.Available(); err != nil {
				if def.Fast {
					warning = fmt.Sprintf("fast backend %s unavailable, using reference: %v", def.Name, err)
				}
				continue
			}
		}
		b, err := def.New(cfg)
		if err != nil {
			if def.Fast {
				warning = fmt.Sprintf("fast backend %s failed to start, using reference: %v", def.Name, err)
			}
			continue
		}
		return b, warning, nil
	}
	return nil, warning, ErrBackendUnavailable
}
