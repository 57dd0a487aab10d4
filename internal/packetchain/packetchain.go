// Package packetchain defines the Packet type and the Chain collaborator
// interface that C6 (packet fan-in) submits completed packets into. The
// concrete chain (device trackers, log writers, alert engine) is an
// external collaborator out of scope for the data source core (spec §1);
// this package specifies the shape plus a small in-memory chain usable for
// tests and for the scan-report virtual source path.
package packetchain

import "time"

// Signal is the normalized radio signal metadata attached to a packet
// (spec §4.6 step 4; wire shape in §6.2 Signal).
type Signal struct {
	DBM       *int8
	RSSI      *int8
	NoiseDBM  *int8
	NoiseRSSI *int8
	FreqKHz   uint64
	Channel   string
	DataRate  *float64
	Carrier   uint16
	Encoding  uint16
}

// GpsFix mirrors gps.Fix without importing the gps package, so packetchain
// stays a leaf with no dependency on the GPS collaborator's interface type
// (only its data shape).
type GpsFix struct {
	Lat      float64
	Lon      float64
	Alt      *float64
	Speed    *float64
	FixType  uint8
	TimeSec  uint64
	TimeUsec uint32
}

// Packet is the entity delivered to the packet chain (spec §3).
type Packet struct {
	TS         time.Time
	SourceKey  uint32
	SourceUUID string
	DLT        int
	LinkFrame  []byte
	Gps        *GpsFix
	L1Signal   *Signal
	JSONBlob   *JSONBlob
	DecapChunk []byte
	Error      bool
}

// JSONBlob carries a scan-only driver's schema-tagged JSON report (§4.6,
// JsonReport).
type JSONBlob struct {
	Schema string
	JSON   string
}

// Chain is the append-only sink C6 hands completed packets to. Submit must
// not block the caller (spec §5: "C6 never blocks on it (drops and logs on
// overflow)"); implementations that need buffering own it internally.
type Chain interface {
	Submit(Packet) (accepted bool)
}

// MemoryChain is a bounded in-memory chain, useful for tests and for
// headless/embedded uses where no external chain is wired in.
type MemoryChain struct {
	ch chan Packet
}

func NewMemoryChain(capacity int) *MemoryChain {
	return &MemoryChain{ch: make(chan Packet, capacity)}
}

func (m *MemoryChain) Submit(p Packet) bool {
	select {
	case m.ch <- p:
		return true
	default:
		return false
	}
}

func (m *MemoryChain) Packets() <-chan Packet { return m.ch }
