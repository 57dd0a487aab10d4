// Package tracker is the source tracker (spec §4.7, component C7): the
// top-level registry that accepts CLI/API source definitions, dispatches
// probing across drivers when a definition doesn't name one, merges remote
// sources handed off by C8, and answers CRUD/list queries.
package tracker

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/kismetwireless/kismet-datasource-core/internal/config"
	"github.com/kismetwireless/kismet-datasource-core/internal/dlt"
	"github.com/kismetwireless/kismet-datasource-core/internal/driver"
	"github.com/kismetwireless/kismet-datasource-core/internal/eventbus"
	"github.com/kismetwireless/kismet-datasource-core/internal/gps"
	"github.com/kismetwireless/kismet-datasource-core/internal/hop"
	"github.com/kismetwireless/kismet-datasource-core/internal/kiserr"
	"github.com/kismetwireless/kismet-datasource-core/internal/packetchain"
	"github.com/kismetwireless/kismet-datasource-core/internal/protocol"
	"github.com/kismetwireless/kismet-datasource-core/internal/source"
	"github.com/kismetwireless/kismet-datasource-core/internal/transport"
)

// probeDebounce bounds how long a successful all-drivers probe result is
// cached for an interface before a fresh probe is attempted again (spec
// §4.7: "dispatches probe-across-drivers"; avoiding re-probing every
// add_source call for a flappy interface).
const probeDebounce = 5 * time.Second

// Tracker is the source tracker (spec §4.7). All mutation is serialized on
// mu; queries take a snapshot copy (spec §5: "all mutations serialized on a
// single executor; queries are snapshotable").
type Tracker struct {
	mu      sync.RWMutex
	sources []*source.Source

	registry   *driver.Registry
	bus        *eventbus.Bus
	chain      packetchain.Chain
	gpsTracker gps.Tracker
	cfg        *config.Config
	scheduler  *hop.Scheduler
	dlts       *dlt.Registry

	engineCfg protocol.EngineConfig
	ipcOpts   transport.IPCOptions

	probeCache *gocache.Cache
}

// New constructs a Tracker. scheduler may be nil if channel hopping is not
// wired in (e.g. a probe-only deployment). dlts may be nil, in which case
// sources report an empty DLT name (spec SUPPLEMENTED FEATURES: dlttracker.h).
func New(registry *driver.Registry, bus *eventbus.Bus, chain packetchain.Chain, gpsTracker gps.Tracker, cfg *config.Config, scheduler *hop.Scheduler, dlts *dlt.Registry) *Tracker {
	t := &Tracker{
		registry:   registry,
		bus:        bus,
		chain:      chain,
		gpsTracker: gpsTracker,
		cfg:        cfg,
		scheduler:  scheduler,
		dlts:       dlts,
		engineCfg: protocol.EngineConfig{
			CommandTimeout: cfg.CommandTimeout(),
			PingInterval:   cfg.PingInterval(),
			PongTimeout:    cfg.PongTimeout(),
		},
		ipcOpts: transport.IPCOptions{
			MaxFrameBytes: cfg.MaxFrameBytes(),
			QueueDepth:    cfg.ReadQueueDepth(),
		},
		probeCache: gocache.New(probeDebounce, 2*probeDebounce),
	}

	if scheduler != nil {
		bus.Subscribe(eventbus.DatasourceOpened, func(ev eventbus.Event) {
			if src := t.findByKey(ev.SourceKey); src != nil {
				scheduler.Add(src)
			}
		})
	}

	return t
}

// AddSource parses defn, resolves a driver (by explicit type, or by
// all-drivers probe), constructs a Source and opens it. It returns once
// opening has been queued; the caller subscribes to DATASOURCE_OPENED /
// DATASOURCE_ERROR on the bus for completion (spec §4.7 add_source()).
func (t *Tracker) AddSource(defn string) (*source.Source, *kiserr.Error) {
	def, kerr := source.ParseDefinition(defn)
	if kerr != nil {
		return nil, kerr
	}
	if def.UUID != "" {
		parsed, err := uuid.Parse(def.UUID)
		if err != nil {
			return nil, kiserr.New(kiserr.KindBadDefinition, "malformed uuid= value: "+def.UUID)
		}
		def.UUID = parsed.String()
	}
	t.applyDefaultOpenOptions(def)

	b, kerr := t.resolveBuilder(def)
	if kerr != nil {
		return nil, kerr
	}

	src, kerr := source.New(def, b, t.bus, t.chain, t.gpsTracker, t.engineCfg, t.ipcOpts, t.cfg.FaninBufferWhileOpeningBytes(), t.dlts)
	if kerr != nil {
		return nil, kerr
	}
	if kerr := t.register(src); kerr != nil {
		return nil, kerr
	}

	src.Open(nil)
	return src, nil
}

// resolveBuilder implements spec §4.3's lookup order: explicit type name,
// else a cached probe winner for this interface, else a fresh all-drivers
// probe.
func (t *Tracker) resolveBuilder(def *source.Definition) (driver.Builder, *kiserr.Error) {
	if def.Type != "" {
		return t.registry.Resolve(def.Type)
	}

	if cached, ok := t.probeCache.Get(def.Interface); ok {
		return cached.(driver.Builder), nil
	}

	b, kerr := t.probeAcrossDrivers(def)
	if kerr != nil {
		return nil, kerr
	}
	t.probeCache.SetDefault(def.Interface, b)
	return b, nil
}

// probeAcrossDrivers tries each probe-capable driver in registry order
// (spec §4.7 scenario 2) using a throwaway probe-only Source, returning the
// first that claims the interface.
func (t *Tracker) probeAcrossDrivers(def *source.Definition) (driver.Builder, *kiserr.Error) {
	for _, b := range t.registry.ProbeCapable() {
		probeDef := *def
		probeSrc, kerr := source.New(&probeDef, b, t.bus, t.chain, t.gpsTracker, t.engineCfg, t.ipcOpts, 0, t.dlts)
		if kerr != nil {
			continue
		}
		done := make(chan bool, 1)
		probeSrc.Probe(func(ok bool, _ *kiserr.Error) { done <- ok })
		if <-done {
			return b, nil
		}
	}
	return nil, kiserr.New(kiserr.KindBadDefinition, "no registered driver claimed interface "+def.Interface)
}

// applyDefaultOpenOptions implements the default_open_options precedence
// chain: explicit definition keys win, then per-source-type config
// overrides, then global config overrides (spec §4.7).
func (t *Tracker) applyDefaultOpenOptions(def *source.Definition) {
	global := t.cfg.GlobalOpenOptions()
	var perType map[string]string
	if def.Type != "" {
		perType = t.cfg.OpenOptions(def.Type)
	}

	if !def.RetrySet {
		if v, ok := lookupOption(perType, global, "retry"); ok {
			def.Retry = parseBoolOption(v)
			def.RetrySet = true
		}
	}
	if !def.HopSet {
		if v, ok := lookupOption(perType, global, "hop"); ok {
			def.Hop = parseBoolOption(v)
			def.HopSet = true
		}
	}
	if def.Channel == "" {
		if v, ok := lookupOption(perType, global, "channel"); ok {
			def.Channel = v
		}
	}
}

func lookupOption(perType, global map[string]string, key string) (string, bool) {
	if v, ok := perType[key]; ok {
		return v, true
	}
	if v, ok := global[key]; ok {
		return v, true
	}
	return "", false
}

func parseBoolOption(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

// register enforces uuid uniqueness across live sources (spec §3 invariant:
// "uuid is unique across live sources (collision -> source rejected)").
func (t *Tracker) register(src *source.Source) *kiserr.Error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.sources {
		if s.UUID() == src.UUID() {
			return kiserr.New(kiserr.KindBadDefinition, "uuid collision: "+src.UUID())
		}
	}
	t.sources = append(t.sources, src)
	return nil
}

// MergeSource inserts an already-constructed remote source (spec §4.7
// merge_source(), used by C8), enforcing the same uuid uniqueness check.
func (t *Tracker) MergeSource(src *source.Source) *kiserr.Error {
	return t.register(src)
}

// GetOrCreateVirtual returns the existing virtual source for uuid (or for
// the name-derived uuid if uuid is empty), constructing one via the
// "virtual" driver if none exists yet (spec §6.3 scenario 5: "a virtual
// source is created if absent").
func (t *Tracker) GetOrCreateVirtual(uuid, name string) (*source.Source, *kiserr.Error) {
	def := &source.Definition{Interface: name, UUID: uuid, Name: name, Raw: "virtual:uuid=" + uuid + ",name=" + name}
	b, kerr := t.registry.Resolve("virtual")
	if kerr != nil {
		return nil, kerr
	}

	if uuid != "" {
		if existing := t.FindByUUID(uuid); existing != nil {
			return existing, nil
		}
	}

	src, kerr := source.NewVirtual(def, b, t.bus, t.chain, t.gpsTracker, t.dlts)
	if kerr != nil {
		return nil, kerr
	}
	if uuid == "" {
		if existing := t.FindByUUID(src.UUID()); existing != nil {
			return existing, nil
		}
	}
	if kerr := t.register(src); kerr != nil {
		// Lost the register race to a concurrent request for the same
		// derived uuid; use whichever source won.
		if existing := t.FindByUUID(src.UUID()); existing != nil {
			return existing, nil
		}
		return nil, kerr
	}
	return src, nil
}

// RemoveSource transitions the named source to Closing (spec §4.7
// remove_source()).
func (t *Tracker) RemoveSource(uuid string) *kiserr.Error {
	src := t.FindByUUID(uuid)
	if src == nil {
		return kiserr.New(kiserr.KindBadDefinition, "no such source: "+uuid)
	}
	src.CloseAsync(nil)
	return nil
}

// FindByUUID returns the source with the given uuid, or nil.
func (t *Tracker) FindByUUID(uuid string) *source.Source {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.sources {
		if s.UUID() == uuid {
			return s
		}
	}
	return nil
}

// FindByInterface returns the first source bound to the given interface
// name, or nil.
func (t *Tracker) FindByInterface(iface string) *source.Source {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.sources {
		if s.Interface() == iface {
			return s
		}
	}
	return nil
}

func (t *Tracker) findByKey(key uint32) *source.Source {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.sources {
		if s.KeyValue() == key {
			return s
		}
	}
	return nil
}

// Iter returns a snapshot of all tracked sources.
func (t *Tracker) Iter() []*source.Source {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*source.Source, len(t.sources))
	copy(out, t.sources)
	return out
}

// ListInterfaces fans out ListInterfaces to every list-capable driver and
// aggregates the results (spec §4.7 list_interfaces()).
func (t *Tracker) ListInterfaces() ([]protocol.InterfaceEntry, *kiserr.Error) {
	var all []protocol.InterfaceEntry
	var firstErr *kiserr.Error

	for _, b := range t.registry.ListCapable() {
		def := &source.Definition{Interface: "all", Raw: "all"}
		src, kerr := source.New(def, b, t.bus, t.chain, t.gpsTracker, t.engineCfg, t.ipcOpts, 0, t.dlts)
		if kerr != nil {
			if firstErr == nil {
				firstErr = kerr
			}
			continue
		}

		done := make(chan struct{})
		var entries []protocol.InterfaceEntry
		var lerr *kiserr.Error
		src.List(func(e []protocol.InterfaceEntry, kerr *kiserr.Error) {
			entries, lerr = e, kerr
			close(done)
		})
		<-done

		if lerr != nil {
			if firstErr == nil {
				firstErr = lerr
			}
			continue
		}
		all = append(all, entries...)
	}

	if len(all) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return all, nil
}
