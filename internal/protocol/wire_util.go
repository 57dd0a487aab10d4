package protocol

import (
	"encoding/binary"

	"github.com/kismetwireless/kismet-datasource-core/internal/kiserr"
)

// byteWriter is a tiny growable-buffer writer shared by both wire codecs.
type byteWriter struct {
	buf []byte
}

func (w *byteWriter) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *byteWriter) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}
func (w *byteWriter) u64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}
func (w *byteWriter) bytes(b []byte) {
	w.u32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}
func (w *byteWriter) str(s string) { w.bytes([]byte(s)) }
func (w *byteWriter) boolean(b bool) {
	if b {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

// byteReader is the matching cursor-based reader.
type byteReader struct {
	buf []byte
	pos int
}

func newByteReader(b []byte) *byteReader { return &byteReader{buf: b} }

func (r *byteReader) remaining() int { return len(r.buf) - r.pos }

func (r *byteReader) u8() (uint8, *kiserr.Error) {
	if r.remaining() < 1 {
		return 0, kiserr.New(kiserr.KindProtocol, "truncated u8")
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *byteReader) u32() (uint32, *kiserr.Error) {
	if r.remaining() < 4 {
		return 0, kiserr.New(kiserr.KindProtocol, "truncated u32")
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *byteReader) u64() (uint64, *kiserr.Error) {
	if r.remaining() < 8 {
		return 0, kiserr.New(kiserr.KindProtocol, "truncated u64")
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *byteReader) bytes() ([]byte, *kiserr.Error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if r.remaining() < int(n) {
		return nil, kiserr.New(kiserr.KindProtocol, "truncated bytes field")
	}
	v := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return v, nil
}

func (r *byteReader) str() (string, *kiserr.Error) {
	b, err := r.bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *byteReader) boolean() (bool, *kiserr.Error) {
	v, err := r.u8()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}
