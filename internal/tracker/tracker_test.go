package tracker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kismetwireless/kismet-datasource-core/internal/config"
	"github.com/kismetwireless/kismet-datasource-core/internal/dlt"
	"github.com/kismetwireless/kismet-datasource-core/internal/driver"
	"github.com/kismetwireless/kismet-datasource-core/internal/eventbus"
	"github.com/kismetwireless/kismet-datasource-core/internal/gps"
	"github.com/kismetwireless/kismet-datasource-core/internal/kiserr"
	"github.com/kismetwireless/kismet-datasource-core/internal/packetchain"
	"github.com/kismetwireless/kismet-datasource-core/internal/source"
)

type stubBuilder struct{ caps driver.Caps }

func (b stubBuilder) Caps() driver.Caps                     { return b.caps }
func (b stubBuilder) HelperArgs(definition string) []string { return nil }
func (b stubBuilder) DecapFrame(linkFrame []byte) []byte    { return nil }

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)

	reg := driver.NewRegistry()
	reg.Register(stubBuilder{caps: driver.Caps{Name: "virtual", DefaultDLT: dlt.DLTKismetScan, OverrideDLT: dlt.DLTKismetScan}})

	bus := eventbus.New()
	chain := packetchain.NewMemoryChain(8)
	return New(reg, bus, chain, gps.NullTracker{}, cfg, nil, dlt.NewRegistry())
}

func TestAddSourceRejectsUnknownExplicitDriverType(t *testing.T) {
	tr := newTestTracker(t)
	_, kerr := tr.AddSource("wlan0:type=does_not_exist")
	require.NotNil(t, kerr)
	require.Equal(t, kiserr.KindBadDefinition, kerr.Kind)
}

func TestAddSourceRejectsMalformedExplicitUUID(t *testing.T) {
	tr := newTestTracker(t)
	_, kerr := tr.AddSource("virtual:type=virtual,uuid=not-a-uuid")
	require.NotNil(t, kerr)
	require.Equal(t, kiserr.KindBadDefinition, kerr.Kind)
}

func TestAddSourceNormalizesExplicitUUID(t *testing.T) {
	tr := newTestTracker(t)
	src, kerr := tr.AddSource("virtual:type=virtual,uuid=DEADBEEF-DEAD-BEEF-DEAD-BEEFDEADBEEF")
	require.Nil(t, kerr)
	require.Equal(t, "deadbeef-dead-beef-dead-beefdeadbeef", src.UUID())
}

func TestResolveBuilderHitsProbeCacheWithoutReprobing(t *testing.T) {
	tr := newTestTracker(t)
	cached := stubBuilder{caps: driver.Caps{Name: "cached-driver"}}
	tr.probeCache.SetDefault("wlan0", cached)

	def := &source.Definition{Interface: "wlan0"}
	b, kerr := tr.resolveBuilder(def)
	require.Nil(t, kerr)
	require.Equal(t, cached, b, "a cached probe winner must be reused instead of fanning out to ProbeCapable drivers (none registered here)")
}

func TestProbeAcrossDriversReturnsErrorWhenNoDriverClaimsTheInterface(t *testing.T) {
	tr := newTestTracker(t)
	tr.registry.Register(stubBuilder{caps: driver.Caps{Name: "probe-only", CanProbe: true, CanLocal: false}})

	def := &source.Definition{Interface: "wlan0"}
	_, kerr := tr.probeAcrossDrivers(def)
	require.NotNil(t, kerr)
	require.Equal(t, kiserr.KindBadDefinition, kerr.Kind)
}

func TestRegisterRejectsUUIDCollision(t *testing.T) {
	tr := newTestTracker(t)
	b, kerr := tr.registry.Resolve("virtual")
	require.Nil(t, kerr)

	def1 := &source.Definition{Interface: "scan1", UUID: "dup-uuid"}
	src1, kerr := source.NewVirtual(def1, b, tr.bus, tr.chain, tr.gpsTracker, tr.dlts)
	require.Nil(t, kerr)
	require.Nil(t, tr.register(src1))

	def2 := &source.Definition{Interface: "scan2", UUID: "dup-uuid"}
	src2, kerr := source.NewVirtual(def2, b, tr.bus, tr.chain, tr.gpsTracker, tr.dlts)
	require.Nil(t, kerr)
	kerr = tr.register(src2)
	require.NotNil(t, kerr)
	require.Equal(t, kiserr.KindBadDefinition, kerr.Kind)
}

func TestGetOrCreateVirtualReturnsExistingForSameUUID(t *testing.T) {
	tr := newTestTracker(t)
	a, kerr := tr.GetOrCreateVirtual("fixed-uuid", "scan-src")
	require.Nil(t, kerr)

	b, kerr := tr.GetOrCreateVirtual("fixed-uuid", "scan-src")
	require.Nil(t, kerr)
	require.Same(t, a, b)
}

func TestGetOrCreateVirtualDerivesUUIDWhenEmpty(t *testing.T) {
	tr := newTestTracker(t)
	a, kerr := tr.GetOrCreateVirtual("", "scan-src-2")
	require.Nil(t, kerr)

	b, kerr := tr.GetOrCreateVirtual("", "scan-src-2")
	require.Nil(t, kerr)
	require.Same(t, a, b, "deriving the uuid from the same name twice must resolve to the same virtual source")
}

func TestFindByUUIDAndFindByInterface(t *testing.T) {
	tr := newTestTracker(t)
	src, kerr := tr.GetOrCreateVirtual("find-me", "scan-iface")
	require.Nil(t, kerr)

	require.Same(t, src, tr.FindByUUID("find-me"))
	require.Same(t, src, tr.FindByInterface("scan-iface"))
	require.Nil(t, tr.FindByUUID("nope"))
	require.Nil(t, tr.FindByInterface("nope"))
}

func TestRemoveSourceRejectsUnknownUUID(t *testing.T) {
	tr := newTestTracker(t)
	kerr := tr.RemoveSource("nope")
	require.NotNil(t, kerr)
}

func TestListInterfacesAggregatesFirstErrorWhenAllDriversFail(t *testing.T) {
	tr := newTestTracker(t)
	tr.registry.Register(stubBuilder{caps: driver.Caps{Name: "list-only", CanList: true, CanLocal: false}})

	_, kerr := tr.ListInterfaces()
	require.NotNil(t, kerr)
}
