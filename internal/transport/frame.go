// Package transport is the framing transport (spec §4.1, component C1): a
// reliable, ordered byte-stream between a Source and exactly one capture
// helper, over either a pair of file descriptors to a local child process
// or a TCP/WebSocket socket to a remote helper.
package transport

import (
	"encoding/binary"
	"hash/adler32"

	"github.com/kismetwireless/kismet-datasource-core/internal/kiserr"
)

// FrameMagic identifies a well-formed frame; any other value on the wire is
// rejected per spec §4.1.
const FrameMagic uint16 = 0x4B53 // "KS"

const headerSize = 2 + 1 + 1 + 4 + 4 + 4 // magic+version+flags+size+seqno+checksum

// Flag bits carried in the frame header.
const (
	FlagNone     uint8 = 0
	FlagKeepAlive uint8 = 1 << 0
)

// Frame is the wire envelope (spec §3: Frame).
type Frame struct {
	Version  uint8
	Flags    uint8
	Seqno    uint32
	Content  []byte
}

// Encode serializes f into the wire format:
//
//	[magic:u16 BE][version:u8][flags:u8][size:u32 BE][seqno:u32 BE][checksum:u32 BE][payload...]
//
// The checksum is the adler32 of the payload, matching the adler32 use
// elsewhere in the subsystem's UUID derivation (spec §4.4) — the stdlib
// hash/adler32 implementation is used directly rather than a third-party
// checksum library because the spec names this exact algorithm.
func Encode(f Frame) []byte {
	buf := make([]byte, headerSize+len(f.Content))
	binary.BigEndian.PutUint16(buf[0:2], FrameMagic)
	buf[2] = f.Version
	buf[3] = f.Flags
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(f.Content)))
	binary.BigEndian.PutUint32(buf[8:12], f.Seqno)
	binary.BigEndian.PutUint32(buf[12:16], adler32.Checksum(f.Content))
	copy(buf[16:], f.Content)
	return buf
}

// DecodeHeader parses the fixed header from hdr (which must be exactly
// headerSize bytes) and returns the declared version, flags, payload size,
// seqno and checksum. It does not validate the checksum (that requires the
// payload, decoded separately by the caller once it has read `size` bytes).
func DecodeHeader(hdr []byte) (version, flags uint8, size, seqno, checksum uint32, err *kiserr.Error) {
	if len(hdr) != headerSize {
		return 0, 0, 0, 0, 0, kiserr.New(kiserr.KindTransport, "short frame header")
	}
	magic := binary.BigEndian.Uint16(hdr[0:2])
	if magic != FrameMagic {
		return 0, 0, 0, 0, 0, kiserr.New(kiserr.KindTransport, "unknown frame magic")
	}
	version = hdr[2]
	flags = hdr[3]
	size = binary.BigEndian.Uint32(hdr[4:8])
	seqno = binary.BigEndian.Uint32(hdr[8:12])
	checksum = binary.BigEndian.Uint32(hdr[12:16])
	return version, flags, size, seqno, checksum, nil
}

// VerifyChecksum reports whether payload matches the checksum decoded from
// the header.
func VerifyChecksum(payload []byte, checksum uint32) bool {
	return adler32.Checksum(payload) == checksum
}

// HeaderSize is exported for callers sizing their read buffers.
func HeaderSize() int { return headerSize }
