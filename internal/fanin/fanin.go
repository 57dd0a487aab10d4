// Package fanin is the packet fan-in (spec §4.6, component C6): it turns a
// DataReport or JsonReport into a packetchain.Packet enriched with the
// source's best known metadata — effective DLT, normalized signal, GPS fix,
// per-second RRDs — and submits it to the packet chain.
package fanin

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kismetwireless/kismet-datasource-core/internal/dlt"
	"github.com/kismetwireless/kismet-datasource-core/internal/gps"
	"github.com/kismetwireless/kismet-datasource-core/internal/metrics"
	"github.com/kismetwireless/kismet-datasource-core/internal/packetchain"
	"github.com/kismetwireless/kismet-datasource-core/internal/printer"
	"github.com/kismetwireless/kismet-datasource-core/internal/protocol"
	"github.com/kismetwireless/kismet-datasource-core/internal/rrd"
)

// rrdWindowSeconds matches the "last-minute signal RRD" referenced in §4.6.
const rrdWindowSeconds = 60

// Config bundles the per-source settings fan-in needs. Decap, when set,
// produces a driver-specific decap chunk from the raw link frame (spec §4.6
// step 3, e.g. BTLE radio-header translation).
type Config struct {
	SourceUUID       string
	SourceKey        uint32
	Remote           bool
	ClobberTimestamp bool // spec §4.6 step 1: default true for remote sources
	SuppressGPS      bool
	Decap            func(linkFrame []byte) []byte
	// DLTs validates a driver's declared DLT against the known table
	// (spec SUPPLEMENTED FEATURES: dlttracker.h); unknown values are never
	// rejected, only logged once and forwarded untranslated. May be nil.
	DLTs *dlt.Registry
}

// Processor holds one source's fan-in state: its effective DLT (set once
// OpenReport arrives), counters, and RRDs.
type Processor struct {
	cfg Config

	dlt         atomic.Int64
	overrideDLT atomic.Int64
	paused      atomic.Bool
	warnUnknownDLTOnce sync.Once

	rxPackets atomic.Uint64
	rxErrors  atomic.Uint64

	packetRRD *rrd.Seconds
	sizeRRD   *rrd.Seconds
	signalRRD *rrd.Seconds

	gpsTracker gps.Tracker
	chain      packetchain.Chain
}

// New constructs a Processor. gpsTracker defaults to gps.NullTracker{} if
// nil.
func New(cfg Config, gpsTracker gps.Tracker, chain packetchain.Chain) *Processor {
	if gpsTracker == nil {
		gpsTracker = gps.NullTracker{}
	}
	return &Processor{
		cfg:        cfg,
		gpsTracker: gpsTracker,
		chain:      chain,
		packetRRD:  rrd.NewSeconds(rrdWindowSeconds),
		sizeRRD:    rrd.NewSeconds(rrdWindowSeconds),
		signalRRD:  rrd.NewSeconds(rrdWindowSeconds),
	}
}

// SetDLT records the source's effective DLT, flagging (once, without
// rejecting) a value absent from the DLT registry.
func (p *Processor) SetDLT(d int) {
	p.dlt.Store(int64(d))
	if p.cfg.DLTs == nil {
		return
	}
	if _, ok := p.cfg.DLTs.Lookup(d); !ok {
		p.warnUnknownDLTOnce.Do(func() {
			printer.Warningf("fanin: source %s declared unregistered dlt %d, forwarding untranslated\n", p.cfg.SourceUUID, d)
		})
	}
}
func (p *Processor) SetOverrideDLT(d int) { p.overrideDLT.Store(int64(d)) }
func (p *Processor) SetPaused(v bool)     { p.paused.Store(v) }

// DLTName returns the registered human name for the processor's effective
// DLT, or "" if no registry was configured (spec SUPPLEMENTED FEATURES).
func (p *Processor) DLTName() string {
	if p.cfg.DLTs == nil {
		return ""
	}
	return p.cfg.DLTs.Name(int(p.dlt.Load()))
}

func (p *Processor) RxPackets() uint64       { return p.rxPackets.Load() }
func (p *Processor) RxErrors() uint64        { return p.rxErrors.Load() }
func (p *Processor) PacketRRD() []float64    { return p.packetRRD.Snapshot() }
func (p *Processor) PacketSizeRRD() []float64 { return p.sizeRRD.Snapshot() }
func (p *Processor) SignalRRD() []float64    { return p.signalRRD.Snapshot() }

// Process dispatches a DataReport or JsonReport through the fan-in steps
// (spec §4.6); any other report ID is ignored.
func (p *Processor) Process(rep protocol.Report) {
	switch rep.ID {
	case protocol.RptDataReport:
		p.processData(rep)
	case protocol.RptJsonReport:
		p.processJSON(rep)
	}
}

func (p *Processor) processData(rep protocol.Report) {
	ts := p.resolveTimestamp(rep.Data.TsSec, rep.Data.TsUsec)

	dlt := int(rep.Data.DLT)
	if ov := int(p.overrideDLT.Load()); ov != 0 {
		dlt = ov
	} else if d := int(p.dlt.Load()); d != 0 {
		dlt = d
	}

	pkt := packetchain.Packet{
		TS:         ts,
		SourceKey:  p.cfg.SourceKey,
		SourceUUID: p.cfg.SourceUUID,
		DLT:        dlt,
		LinkFrame:  rep.Data.Bytes,
	}
	if p.cfg.Decap != nil {
		pkt.DecapChunk = p.cfg.Decap(rep.Data.Bytes)
	}

	p.attachSignal(&pkt, rep.Signal, ts)
	p.attachGPS(&pkt, rep.GpsFix)
	p.submit(pkt, len(rep.Data.Bytes))
}

func (p *Processor) processJSON(rep protocol.Report) {
	ts := time.Now()

	dlt := int(p.overrideDLT.Load())
	if dlt == 0 {
		dlt = int(p.dlt.Load())
	}

	pkt := packetchain.Packet{
		TS:         ts,
		SourceKey:  p.cfg.SourceKey,
		SourceUUID: p.cfg.SourceUUID,
		DLT:        dlt,
		JSONBlob:   &packetchain.JSONBlob{Schema: rep.JSON.Schema, JSON: rep.JSON.JSON},
	}
	p.attachSignal(&pkt, rep.Signal, ts)
	p.attachGPS(&pkt, rep.GpsFix)
	p.submit(pkt, len(rep.JSON.JSON))
}

func (p *Processor) resolveTimestamp(tsSec uint64, tsUsec uint32) time.Time {
	if tsSec == 0 {
		return time.Now()
	}
	if p.cfg.Remote && p.cfg.ClobberTimestamp {
		return time.Now()
	}
	return time.Unix(int64(tsSec), int64(tsUsec)*1000)
}

// attachSignal normalizes the wire Signal, giving dBm priority over RSSI,
// and samples the last-minute signal RRD (spec §4.6 step 4).
func (p *Processor) attachSignal(pkt *packetchain.Packet, sig *protocol.Signal, ts time.Time) {
	if sig == nil {
		return
	}
	norm := &packetchain.Signal{
		RSSI:      sig.RSSI,
		NoiseDBM:  sig.NoiseDBM,
		NoiseRSSI: sig.NoiseRSSI,
		FreqKHz:   sig.FreqKHz,
		Channel:   sig.Channel,
		DataRate:  sig.DataRate,
		Carrier:   sig.Carrier,
		Encoding:  sig.Encoding,
	}
	if sig.DBM != nil {
		norm.DBM = sig.DBM
		p.signalRRD.Sample(ts.Unix(), float64(*sig.DBM))
	} else if sig.RSSI != nil {
		p.signalRRD.Sample(ts.Unix(), float64(*sig.RSSI))
	}
	pkt.L1Signal = norm
}

// attachGPS uses the report's own GPS sub-record if present, else asks the
// GpsTracker collaborator for its best current fix unless suppressed (spec
// §4.6 step 5).
func (p *Processor) attachGPS(pkt *packetchain.Packet, wire *protocol.Gps) {
	if wire != nil {
		pkt.Gps = &packetchain.GpsFix{
			Lat: wire.Lat, Lon: wire.Lon, Alt: wire.Alt, Speed: wire.Speed,
			FixType: wire.Fix, TimeSec: wire.TsSec, TimeUsec: wire.TsUsec,
		}
		return
	}
	if p.cfg.SuppressGPS {
		return
	}
	if fix, ok := p.gpsTracker.BestFix(); ok {
		pkt.Gps = &packetchain.GpsFix{
			Lat: fix.Lat, Lon: fix.Lon, Alt: fix.Alt, Speed: fix.Speed,
			FixType: fix.FixType, TimeSec: fix.TimeSec, TimeUsec: fix.TimeUsec,
		}
	}
}

// submit increments rx_packets unconditionally (spec §8: "sum(rx_packets)
// equals frames accepted into the chain plus paused-drops"), then either
// counts a paused-drop or hands the packet to the chain.
func (p *Processor) submit(pkt packetchain.Packet, size int) {
	now := pkt.TS.Unix()
	p.rxPackets.Add(1)
	p.packetRRD.Sample(now, 1)
	p.sizeRRD.Sample(now, float64(size))
	metrics.RxPackets.WithLabelValues(p.cfg.SourceUUID).Inc()

	if p.paused.Load() {
		metrics.PausedDrops.WithLabelValues(p.cfg.SourceUUID).Inc()
		return
	}
	if !p.chain.Submit(pkt) {
		p.rxErrors.Add(1)
		metrics.RxErrors.WithLabelValues(p.cfg.SourceUUID).Inc()
	}
}
