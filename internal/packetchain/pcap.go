package packetchain

import (
	"io"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"

	"github.com/kismetwireless/kismet-datasource-core/internal/printer"
)

// PcapFileChain is a Chain that mirrors every submitted link-frame packet
// into a pcap file, for offline inspection with the same tooling the
// original implementation's pcap-backed capture path produces (mirrors
// pcap.capturePackets' use of gopacket, applied here on the write side via
// pcapgo so no libpcap/cgo dependency is needed just to persist captures).
// Packets with no LinkFrame (JSON-only scan reports) are skipped: pcap has
// no slot for a schema-tagged JSON blob.
type PcapFileChain struct {
	mu       sync.Mutex
	w        *pcapgo.Writer
	closer   io.Closer
	snaplen  uint32
	wroteHdr bool
}

// NewPcapFileChain prepares a Chain that writes to out. The pcap file
// header (and its link type) is written lazily on the first accepted
// packet, since DLT is only known per-source, not at construction time.
func NewPcapFileChain(out io.WriteCloser, snaplen uint32) *PcapFileChain {
	return &PcapFileChain{w: pcapgo.NewWriter(out), closer: out, snaplen: snaplen}
}

// Submit appends p to the pcap file. A pcap file carries one link type for
// its whole body; it is fixed from the first packet's DLT, and packets with
// a different DLT arriving later are still appended (most single-source
// captures never mix DLTs) but won't decode correctly in DLT-aware readers.
func (c *PcapFileChain) Submit(p Packet) bool {
	if p.JSONBlob != nil || len(p.LinkFrame) == 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.wroteHdr {
		if err := c.w.WriteFileHeader(c.snaplen, gopacket.LinkType(p.DLT)); err != nil {
			printer.Warningf("pcap chain: write header failed: %v\n", err)
			return false
		}
		c.wroteHdr = true
	}

	ci := gopacket.CaptureInfo{Timestamp: p.TS, CaptureLength: len(p.LinkFrame), Length: len(p.LinkFrame)}
	if err := c.w.WritePacket(ci, p.LinkFrame); err != nil {
		printer.Warningf("pcap chain: write packet failed: %v\n", err)
		return false
	}
	return true
}

// Close flushes and closes the underlying file.
func (c *PcapFileChain) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closer.Close()
}
