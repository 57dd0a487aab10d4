package remote

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
	"github.com/kismetwireless/kismet-datasource-core/internal/protocol"
	"github.com/kismetwireless/kismet-datasource-core/internal/source"
	"github.com/kismetwireless/kismet-datasource-core/internal/tracker"
	"github.com/kismetwireless/kismet-datasource-core/internal/transport"
)

type stubBuilder struct{ caps driver.Caps }

func (b stubBuilder) Caps() driver.Caps                     { return b.caps }
func (b stubBuilder) HelperArgs(definition string) []string { return nil }
func (b stubBuilder) DecapFrame(linkFrame []byte) []byte    { return nil }

type fakeTransport struct {
	frames chan transport.Frame
	closed bool
}

func newFakeTransport() *fakeTransport { return &fakeTransport{frames: make(chan transport.Frame, 1)} }
func (f *fakeTransport) Frames() <-chan transport.Frame      { return f.frames }
func (f *fakeTransport) WriteFrame(fr transport.Frame) error { return nil }
func (f *fakeTransport) Err() *kiserr.Error                  { return nil }
func (f *fakeTransport) Close() error {
	f.closed = true
	if !isClosedFramesChan(f.frames) {
		close(f.frames)
	}
	return nil
}

func isClosedFramesChan(ch chan transport.Frame) bool {
	select {
	case _, ok := <-ch:
		return !ok
	default:
		return false
	}
}

func newTestListener(t *testing.T, token string) (*Listener, *tracker.Tracker) {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)

	reg := driver.NewRegistry()
	reg.Register(stubBuilder{caps: driver.Caps{Name: "linuxwifi", CanRemote: true}})

	bus := eventbus.New()
	chain := packetchain.NewMemoryChain(8)
	trk := tracker.New(reg, bus, chain, gps.NullTracker{}, cfg, nil, dlt.NewRegistry())

	l := New(Config{Token: token}, reg, trk, bus, chain, gps.NullTracker{}, protocol.EngineConfig{}, dlt.NewRegistry())
	return l, trk
}

func handshakeFrame(rep protocol.Report) transport.Frame {
	return transport.Frame{Version: protocol.WireV3, Content: protocol.EncodeReportV3(rep)}
}

func TestHandshakeRejectsBadToken(t *testing.T) {
	l, trk := newTestListener(t, "s3cr3t")
	tr := newFakeTransport()
	tr.frames <- handshakeFrame(protocol.Report{
		ID: protocol.RptOpenReport, Success: true, UUID: "u1", Driver: "linuxwifi", Token: "wrong",
	})

	l.handshake("test-conn", tr)

	require.True(t, tr.closed)
	require.Nil(t, trk.FindByUUID("u1"))
}

func TestHandshakeRejectsMissingUUID(t *testing.T) {
	l, trk := newTestListener(t, "")
	tr := newFakeTransport()
	tr.frames <- handshakeFrame(protocol.Report{ID: protocol.RptOpenReport, Success: true, Driver: "linuxwifi"})

	l.handshake("test-conn", tr)

	require.True(t, tr.closed)
	require.Empty(t, trk.Iter())
}

func TestHandshakeAssimilatesUnknownUUIDAsNewRemoteSource(t *testing.T) {
	l, trk := newTestListener(t, "")
	tr := newFakeTransport()
	tr.frames <- handshakeFrame(protocol.Report{
		ID: protocol.RptOpenReport, Success: true, UUID: "new-remote-1", Driver: "linuxwifi",
		CapIface: "wlan0mon", DLT: 127, Channels: []string{"1", "6"},
	})

	l.handshake("test-conn", tr)

	src := trk.FindByUUID("new-remote-1")
	require.NotNil(t, src)
	require.Equal(t, source.StateRunning, src.State())
	require.True(t, src.Remote())
}

func TestAssimilateRejectsUnknownDriver(t *testing.T) {
	l, trk := newTestListener(t, "")
	tr := newFakeTransport()

	l.assimilate(tr, protocol.Report{ID: protocol.RptOpenReport, Success: true, UUID: "u2", Driver: "no_such_driver"})

	require.True(t, tr.closed)
	require.Nil(t, trk.FindByUUID("u2"))
}

func TestRebindRejectsLocalSource(t *testing.T) {
	l, trk := newTestListener(t, "")
	b, kerr := l.registry.Resolve("linuxwifi")
	require.Nil(t, kerr)

	def := &source.Definition{Interface: "wlan0", UUID: "local-1"}
	localSrc, kerr := source.New(def, b, l.bus, l.chain, l.gpsTracker, l.engineCfg, transport.IPCOptions{}, 0, l.dlts)
	require.Nil(t, kerr)
	require.Nil(t, trk.MergeSource(localSrc))

	tr := newFakeTransport()
	l.rebind(localSrc, tr, protocol.Report{ID: protocol.RptOpenReport, Success: true, UUID: "local-1", Driver: "linuxwifi"})

	require.True(t, tr.closed)
}

func TestRebindRejectsDuplicateActiveConnection(t *testing.T) {
	l, trk := newTestListener(t, "")
	tr1 := newFakeTransport()
	tr1.frames <- handshakeFrame(protocol.Report{ID: protocol.RptOpenReport, Success: true, UUID: "active-1", Driver: "linuxwifi"})
	l.handshake("test-conn-1", tr1)

	existing := trk.FindByUUID("active-1")
	require.NotNil(t, existing)
	require.Equal(t, source.StateRunning, existing.State())

	tr2 := newFakeTransport()
	l.rebind(existing, tr2, protocol.Report{ID: protocol.RptOpenReport, Success: true, UUID: "active-1", Driver: "linuxwifi"})

	require.True(t, tr2.closed, "a second connection for an already-running remote uuid must be dropped")
}

func TestRebindReattachesErroredSource(t *testing.T) {
	l, trk := newTestListener(t, "")
	b, kerr := l.registry.Resolve("linuxwifi")
	require.Nil(t, kerr)

	def := &source.Definition{Interface: "remote0", UUID: "err-1", RetrySet: true, Retry: false}
	remoteSrc, kerr := source.NewRemote(def, b, newFakeTransport(), l.bus, l.chain, l.gpsTracker, l.engineCfg, 0, l.dlts)
	require.Nil(t, kerr)
	require.NotNil(t, remoteSrc.BindRemote(newFakeTransport(), protocol.Report{ID: protocol.RptOpenReport, Success: false, Msg: "down"}))
	require.Equal(t, source.StateError, remoteSrc.State())
	require.Nil(t, trk.MergeSource(remoteSrc))

	tr := newFakeTransport()
	l.rebind(remoteSrc, tr, protocol.Report{ID: protocol.RptOpenReport, Success: true, UUID: "err-1", Driver: "linuxwifi"})

	require.Equal(t, source.StateRunning, remoteSrc.State())
}
