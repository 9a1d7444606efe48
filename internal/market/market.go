// Package market holds the source adapters and the extraction helpers they
// share. Each adapter subpackage implements harvest.Source for one
// marketplace and drives the fetch pipeline internally; this package owns
// the registry the CLI and the orchestrator build their adapter set from.
package market

import (
	"fmt"
	"sort"
	"strings"

	"github.com/JakeFAU/market-harvester/internal/harvest"
)

// Registry maps market names to their adapters. Registration happens once
// during startup; the registry is not safe for concurrent mutation.
type Registry struct {
	order   []string
	sources map[string]harvest.Source
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]harvest.Source)}
}

// Register adds an adapter under its own name. Names are case-insensitive
// and must be unique.
func (r *Registry) Register(src harvest.Source) error {
	if src == nil {
		return fmt.Errorf("register: nil source")
	}
	name := strings.ToLower(strings.TrimSpace(src.Name()))
	if name == "" {
		return fmt.Errorf("register: source has no name")
	}
	if _, dup := r.sources[name]; dup {
		return fmt.Errorf("register: duplicate source %q", name)
	}
	r.order = append(r.order, name)
	r.sources[name] = src
	return nil
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (harvest.Source, bool) {
	src, ok := r.sources[strings.ToLower(strings.TrimSpace(name))]
	return src, ok
}

// Names lists registered markets in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Sources resolves the requested market names to adapters, in request
// order. An empty request returns every registered adapter. Unknown names
// fail with a ConfigError naming the known set.
func (r *Registry) Sources(names ...string) ([]harvest.Source, error) {
	if len(names) == 0 {
		out := make([]harvest.Source, 0, len(r.order))
		for _, name := range r.order {
			out = append(out, r.sources[name])
		}
		return out, nil
	}
	out := make([]harvest.Source, 0, len(names))
	for _, name := range names {
		src, ok := r.Get(name)
		if !ok {
			known := r.Names()
			sort.Strings(known)
			return nil, &harvest.ConfigError{
				Field:  "platforms",
				Reason: fmt.Sprintf("unknown market %q (known: %s)", name, strings.Join(known, ", ")),
			}
		}
		out = append(out, src)
	}
	return out, nil
}
