package fanin

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kismetwireless/kismet-datasource-core/internal/gps"
	"github.com/kismetwireless/kismet-datasource-core/internal/packetchain"
	"github.com/kismetwireless/kismet-datasource-core/internal/protocol"
)

type fixedGPS struct {
	fix gps.Fix
	ok  bool
}

func (f fixedGPS) BestFix() (gps.Fix, bool) { return f.fix, f.ok }

func newProcessor(cfg Config, tracker gps.Tracker) (*Processor, *packetchain.MemoryChain) {
	chain := packetchain.NewMemoryChain(8)
	return New(cfg, tracker, chain), chain
}

func dbm(v int8) *int8 { return &v }

func TestProcessDataUsesReportDLTUntilSetDLT(t *testing.T) {
	p, chain := newProcessor(Config{SourceUUID: "u1", SourceKey: 1}, nil)

	p.Process(protocol.Report{ID: protocol.RptDataReport, Data: protocol.DataPayload{DLT: 105, Bytes: []byte{1, 2}}})
	pkt := <-chain.Packets()
	require.Equal(t, 105, pkt.DLT)

	p.SetDLT(127)
	p.Process(protocol.Report{ID: protocol.RptDataReport, Data: protocol.DataPayload{DLT: 105, Bytes: []byte{1, 2}}})
	pkt = <-chain.Packets()
	require.Equal(t, 127, pkt.DLT, "once the source's effective DLT is known it takes priority over the per-report value")
}

func TestProcessDataOverrideDLTBeatsEverything(t *testing.T) {
	p, chain := newProcessor(Config{SourceUUID: "u1", SourceKey: 1}, nil)
	p.SetDLT(127)
	p.SetOverrideDLT(900)

	p.Process(protocol.Report{ID: protocol.RptDataReport, Data: protocol.DataPayload{DLT: 105, Bytes: []byte{1, 2}}})
	pkt := <-chain.Packets()
	require.Equal(t, 900, pkt.DLT, "a driver override DLT always wins")
}

func TestProcessDataAttachesSignalPreferringDBM(t *testing.T) {
	p, chain := newProcessor(Config{SourceUUID: "u1", SourceKey: 1}, nil)
	p.Process(protocol.Report{
		ID: protocol.RptDataReport,
		Signal: &protocol.Signal{
			DBM: dbm(-55), RSSI: dbm(-30), Channel: "6",
		},
		Data: protocol.DataPayload{Bytes: []byte{0xAA}},
	})
	pkt := <-chain.Packets()
	require.NotNil(t, pkt.L1Signal)
	require.Equal(t, int8(-55), *pkt.L1Signal.DBM)
	require.Equal(t, "6", pkt.L1Signal.Channel)

	snap := p.SignalRRD()
	require.NotEmpty(t, snap)
}

func TestProcessDataGPSPrefersWireFixOverTracker(t *testing.T) {
	tracker := fixedGPS{fix: gps.Fix{Lat: 1, Lon: 2, FixType: 3}, ok: true}
	p, chain := newProcessor(Config{SourceUUID: "u1", SourceKey: 1}, tracker)

	p.Process(protocol.Report{
		ID:     protocol.RptDataReport,
		GpsFix: &protocol.Gps{Lat: 40, Lon: -105, Fix: 2},
		Data:   protocol.DataPayload{Bytes: []byte{0xAA}},
	})
	pkt := <-chain.Packets()
	require.NotNil(t, pkt.Gps)
	require.Equal(t, 40.0, pkt.Gps.Lat)
	require.Equal(t, uint8(2), pkt.Gps.FixType)
}

func TestProcessDataFallsBackToTrackerWhenNoWireFix(t *testing.T) {
	tracker := fixedGPS{fix: gps.Fix{Lat: 9, Lon: 8, FixType: 3}, ok: true}
	p, chain := newProcessor(Config{SourceUUID: "u1", SourceKey: 1}, tracker)

	p.Process(protocol.Report{ID: protocol.RptDataReport, Data: protocol.DataPayload{Bytes: []byte{0xAA}}})
	pkt := <-chain.Packets()
	require.NotNil(t, pkt.Gps)
	require.Equal(t, 9.0, pkt.Gps.Lat)
}

func TestProcessDataSuppressGPSSkipsTrackerFallback(t *testing.T) {
	tracker := fixedGPS{fix: gps.Fix{Lat: 9, Lon: 8, FixType: 3}, ok: true}
	p, chain := newProcessor(Config{SourceUUID: "u1", SourceKey: 1, SuppressGPS: true}, tracker)

	p.Process(protocol.Report{ID: protocol.RptDataReport, Data: protocol.DataPayload{Bytes: []byte{0xAA}}})
	pkt := <-chain.Packets()
	require.Nil(t, pkt.Gps)
}

func TestProcessJSONUsesSchemaAndEffectiveDLT(t *testing.T) {
	p, chain := newProcessor(Config{SourceUUID: "u1", SourceKey: 1}, nil)
	p.SetDLT(900)

	p.Process(protocol.Report{ID: protocol.RptJsonReport, JSON: protocol.JsonPayload{Schema: "DOT11SCAN", JSON: `{"ssid":"x"}`}})
	pkt := <-chain.Packets()
	require.Equal(t, 900, pkt.DLT)
	require.NotNil(t, pkt.JSONBlob)
	require.Equal(t, "DOT11SCAN", pkt.JSONBlob.Schema)
}

func TestSubmitCountsPausedDropsWithoutBlockingOrSubmitting(t *testing.T) {
	p, chain := newProcessor(Config{SourceUUID: "u1", SourceKey: 1}, nil)
	p.SetPaused(true)

	p.Process(protocol.Report{ID: protocol.RptDataReport, Data: protocol.DataPayload{Bytes: []byte{1}}})

	select {
	case <-chain.Packets():
		t.Fatal("a paused source must not submit to the chain")
	default:
	}
	require.Equal(t, uint64(1), p.RxPackets(), "rx_packets counts paused-drops too (spec §8)")
}

func TestSubmitCountsRxErrorsOnChainOverflow(t *testing.T) {
	chain := packetchain.NewMemoryChain(1)
	p := New(Config{SourceUUID: "u1", SourceKey: 1}, nil, chain)

	p.Process(protocol.Report{ID: protocol.RptDataReport, Data: protocol.DataPayload{Bytes: []byte{1}}})
	p.Process(protocol.Report{ID: protocol.RptDataReport, Data: protocol.DataPayload{Bytes: []byte{2}}})

	require.Equal(t, uint64(2), p.RxPackets())
	require.Equal(t, uint64(1), p.RxErrors(), "the second submit should have overflowed the depth-1 chain")
}

func TestResolveTimestampClobbersForRemoteSources(t *testing.T) {
	p, chain := newProcessor(Config{SourceUUID: "u1", SourceKey: 1, Remote: true, ClobberTimestamp: true}, nil)
	p.Process(protocol.Report{ID: protocol.RptDataReport, Data: protocol.DataPayload{TsSec: 1000000, Bytes: []byte{1}}})
	pkt := <-chain.Packets()
	require.NotEqual(t, int64(1000000), pkt.TS.Unix(), "remote sources with ClobberTimestamp must use local receipt time, not the helper's clock")
}

func TestResolveTimestampHonorsWireTimeWhenNotClobbered(t *testing.T) {
	p, chain := newProcessor(Config{SourceUUID: "u1", SourceKey: 1, Remote: false}, nil)
	p.Process(protocol.Report{ID: protocol.RptDataReport, Data: protocol.DataPayload{TsSec: 1000000, Bytes: []byte{1}}})
	pkt := <-chain.Packets()
	require.Equal(t, int64(1000000), pkt.TS.Unix())
}
