package driver

import (
	"sort"
	"sync"

	"github.com/kismetwireless/kismet-datasource-core/internal/kiserr"
)

// Builder constructs the driver-specific wiring a Source needs once a
// driver has been selected (spec §4.3, §4.4, §9: "a trait/interface
// DriverBuilder plus a tagged variant of driver-specific state").
type Builder interface {
	Caps() Caps

	// HelperArgs returns the extra argv passed to the local capture helper
	// beyond the --in-fd/--out-fd flags every helper gets (spec §4.1).
	HelperArgs(definition string) []string

	// DecapFrame runs any per-driver raw-frame transform before the packet
	// is handed to the packet chain (spec §4.6 step 3, e.g. BTLE
	// radio-header-to-LL). Returning nil means no decap chunk is produced.
	DecapFrame(linkFrame []byte) []byte
}

// Registry maps driver type names to Builders; drivers enumerate at process
// start (spec §4.3).
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
	// order preserves registration order for probe fan-out (spec §4.7
	// scenario 2: "tracker probes each probe-capable driver in registry
	// order").
	order []string
}

func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]Builder)}
}

// Register adds a driver. Re-registering the same name overwrites the
// builder but preserves its position in probe order.
func (r *Registry) Register(b Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := b.Caps().Name
	if _, exists := r.builders[name]; !exists {
		r.order = append(r.order, name)
	}
	r.builders[name] = b
}

// Lookup returns the builder registered under name, by exact type name
// (spec §4.3: "looked up by exact type name when the source definition
// names one").
func (r *Registry) Lookup(name string) (Builder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.builders[name]
	return b, ok
}

// ProbeCapable returns probe-capable builders in registration order, for
// the tracker's driver-less probe fan-out (spec §4.7 scenario 2).
func (r *Registry) ProbeCapable() []Builder {
	return r.filter(func(c Caps) bool { return c.CanProbe })
}

// ListCapable returns list-capable builders in registration order,
// independent of probe capability (SPEC_FULL §C: original's distinct
// list_capable vs probe_capable proxies).
func (r *Registry) ListCapable() []Builder {
	return r.filter(func(c Caps) bool { return c.CanList })
}

func (r *Registry) filter(pred func(Caps) bool) []Builder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Builder
	for _, name := range r.order {
		b := r.builders[name]
		if pred(b.Caps()) {
			out = append(out, b)
		}
	}
	return out
}

// All returns every registered builder's Caps, sorted by name, for the
// HTTP surface / CLI.
func (r *Registry) All() []Caps {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Caps, 0, len(r.builders))
	for _, b := range r.builders {
		out = append(out, b.Caps())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve finds the builder named by definition's explicit type, returning
// BadDefinition if named but unknown.
func (r *Registry) Resolve(typeName string) (Builder, *kiserr.Error) {
	b, ok := r.Lookup(typeName)
	if !ok {
		return nil, kiserr.New(kiserr.KindBadDefinition, "unknown driver type: "+typeName)
	}
	return b, nil
}
