package source

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kismetwireless/kismet-datasource-core/internal/dlt"
	"github.com/kismetwireless/kismet-datasource-core/internal/driver"
	"github.com/kismetwireless/kismet-datasource-core/internal/eventbus"
	"github.com/kismetwireless/kismet-datasource-core/internal/gps"
	"github.com/kismetwireless/kismet-datasource-core/internal/kiserr"
	"github.com/kismetwireless/kismet-datasource-core/internal/packetchain"
	"github.com/kismetwireless/kismet-datasource-core/internal/protocol"
	"github.com/kismetwireless/kismet-datasource-core/internal/transport"
)

type fakeBuilder struct {
	caps driver.Caps
}

func (f fakeBuilder) Caps() driver.Caps                        { return f.caps }
func (f fakeBuilder) HelperArgs(definition string) []string    { return nil }
func (f fakeBuilder) DecapFrame(linkFrame []byte) []byte        { return nil }

type fakeTransport struct {
	frames chan transport.Frame
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{frames: make(chan transport.Frame, 8)}
}

func (f *fakeTransport) Frames() <-chan transport.Frame { return f.frames }
func (f *fakeTransport) WriteFrame(fr transport.Frame) error { return nil }
func (f *fakeTransport) Err() *kiserr.Error                  { return nil }
func (f *fakeTransport) Close() error                        { close(f.frames); return nil }

func newTestRemoteSource(t *testing.T, bufferLimit int) (*Source, *packetchain.MemoryChain) {
	t.Helper()
	b := fakeBuilder{caps: driver.Caps{Name: "fakedrv", CanRemote: true, DefaultDLT: dlt.DLTRadiotap}}
	bus := eventbus.New()
	chain := packetchain.NewMemoryChain(8)
	def := &Definition{Interface: "remote0"}
	src, kerr := NewRemote(def, b, newFakeTransport(), bus, chain, gps.NullTracker{}, protocol.EngineConfig{}, bufferLimit, dlt.NewRegistry())
	require.Nil(t, kerr)
	return src, chain
}

func TestBindRemoteAppliesHandshakeReportDirectly(t *testing.T) {
	src, _ := newTestRemoteSource(t, 0)
	kerr := src.BindRemote(newFakeTransport(), protocol.Report{
		ID: protocol.RptOpenReport, Success: true, UUID: "u1", Hardware: "hw1",
		DLT: 127, Channels: []string{"1", "6"},
	})
	require.Nil(t, kerr)
	require.Equal(t, StateRunning, src.State())
	require.Equal(t, "hw1", src.Hardware())
	require.Equal(t, 127, src.DLT())
	require.Equal(t, []string{"1", "6"}, src.Channels())
}

func TestBindRemoteFailureReport(t *testing.T) {
	src, _ := newTestRemoteSource(t, 0)
	kerr := src.BindRemote(newFakeTransport(), protocol.Report{ID: protocol.RptOpenReport, Success: false, Msg: "no such device"})
	require.NotNil(t, kerr)
	require.Equal(t, StateError, src.State())
}

func TestBindRemoteInvalidFromRunning(t *testing.T) {
	src, _ := newTestRemoteSource(t, 0)
	require.Nil(t, src.BindRemote(newFakeTransport(), protocol.Report{ID: protocol.RptOpenReport, Success: true, UUID: "u1"}))
	kerr := src.BindRemote(newFakeTransport(), protocol.Report{ID: protocol.RptOpenReport, Success: true, UUID: "u1"})
	require.NotNil(t, kerr)
	require.Equal(t, kiserr.KindUnsupported, kerr.Kind)
}

func TestPreOpenReportsAreBufferedThenFlushedOnSuccessfulOpen(t *testing.T) {
	src, chain := newTestRemoteSource(t, 4096)

	src.mu.Lock()
	src.state = StateOpening
	src.mu.Unlock()

	src.onUnsolicited(protocol.Report{ID: protocol.RptDataReport, Data: protocol.DataPayload{Bytes: []byte{1, 2, 3}}})
	src.onUnsolicited(protocol.Report{ID: protocol.RptDataReport, Data: protocol.DataPayload{Bytes: []byte{4, 5}}})

	src.mu.Lock()
	bufferedCount := len(src.bufferedReports)
	bufferedBytes := src.bufferedBytes
	src.mu.Unlock()
	require.Equal(t, 2, bufferedCount)
	require.Equal(t, 5, bufferedBytes)

	select {
	case <-chain.Packets():
		t.Fatal("report must not reach the chain before open completes")
	default:
	}

	src.handleOpenReport(protocol.Report{ID: protocol.RptOpenReport, Success: true, UUID: "u1", DLT: 1}, nil, nil)

	require.Equal(t, StateRunning, src.State())
	for i := 0; i < 2; i++ {
		select {
		case pkt := <-chain.Packets():
			require.NotNil(t, pkt)
		default:
			t.Fatalf("expected flushed packet %d on the chain", i)
		}
	}

	src.mu.Lock()
	remaining := len(src.bufferedReports)
	src.mu.Unlock()
	require.Zero(t, remaining)
}

func TestPreOpenBufferDropsOverLimit(t *testing.T) {
	src, _ := newTestRemoteSource(t, 4)

	src.mu.Lock()
	src.state = StateOpening
	src.mu.Unlock()

	src.onUnsolicited(protocol.Report{ID: protocol.RptDataReport, Data: protocol.DataPayload{Bytes: []byte{1, 2, 3}}})
	src.onUnsolicited(protocol.Report{ID: protocol.RptDataReport, Data: protocol.DataPayload{Bytes: []byte{4, 5, 6}}})

	src.mu.Lock()
	bufferedCount := len(src.bufferedReports)
	src.mu.Unlock()
	require.Equal(t, 1, bufferedCount, "second report should have been dropped for exceeding the buffer limit")
}

func TestFailDropsBufferedReports(t *testing.T) {
	src, _ := newTestRemoteSource(t, 4096)

	src.mu.Lock()
	src.state = StateOpening
	src.mu.Unlock()

	src.onUnsolicited(protocol.Report{ID: protocol.RptDataReport, Data: protocol.DataPayload{Bytes: []byte{1, 2, 3}}})
	src.fail(kiserr.New(kiserr.KindTransport, "broke"))

	src.mu.Lock()
	remaining := len(src.bufferedReports)
	src.mu.Unlock()
	require.Zero(t, remaining)
	require.Equal(t, StateError, src.State())
}

func TestNewVirtualIsPermanentlyRunningAndTaggedWithSyntheticDLT(t *testing.T) {
	b := fakeBuilder{caps: driver.Caps{Name: "virtual", DefaultDLT: dlt.DLTKismetScan, OverrideDLT: dlt.DLTKismetScan}}
	bus := eventbus.New()
	chain := packetchain.NewMemoryChain(4)
	def := &Definition{Interface: "scan", Name: "scan-source", UUID: "v1"}

	src, kerr := NewVirtual(def, b, bus, chain, gps.NullTracker{}, dlt.NewRegistry())
	require.Nil(t, kerr)
	require.Equal(t, StateRunning, src.State())

	src.IngestReport(protocol.Report{ID: protocol.RptJsonReport, JSON: protocol.JsonPayload{Schema: "DOT11SCAN", JSON: "{}"}})

	select {
	case pkt := <-chain.Packets():
		require.Equal(t, dlt.DLTKismetScan, pkt.DLT)
		require.NotNil(t, pkt.JSONBlob)
		require.Equal(t, "DOT11SCAN", pkt.JSONBlob.Schema)
	default:
		t.Fatal("expected the ingested report to reach the packet chain")
	}
}

func TestPauseResumeRequireRunningOrPaused(t *testing.T) {
	src, _ := newTestRemoteSource(t, 0)
	require.NotNil(t, src.Pause(), "pause from Init must be rejected")

	require.Nil(t, src.BindRemote(newFakeTransport(), protocol.Report{ID: protocol.RptOpenReport, Success: true, UUID: "u1"}))
	require.Nil(t, src.Pause())
	require.True(t, src.Paused())
	require.Nil(t, src.Resume())
	require.False(t, src.Paused())
}
