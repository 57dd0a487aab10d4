package transport

import (
	"io"
	"sync"

	"github.com/kismetwireless/kismet-datasource-core/internal/kiserr"
	"github.com/kismetwireless/kismet-datasource-core/internal/printer"
)

// DefaultMaxFrameBytes caps payload size; frames declaring a larger size are
// rejected with a Transport error per spec §4.1. Overridable per-transport
// via the maxFrameBytes constructor argument (IPCOptions.MaxFrameBytes for
// ConnectIPC); a value that is not positive falls back to this default.
const DefaultMaxFrameBytes = 8 * 1024 * 1024

// Transport is the C1 contract: read/write framed messages over an
// underlying byte-stream or message-oriented connection, transitioning to a
// terminal errored state on any framing violation.
type Transport interface {
	// Frames yields parsed frames to the engine via a bounded, backpressured
	// channel. The channel is closed when the transport is closed or errors.
	Frames() <-chan Frame

	// WriteFrame serializes and sends f. Calls are safely serialized
	// internally (spec §4.1: "the write side is serialized").
	WriteFrame(f Frame) error

	// Err returns the terminal error that closed the transport, if any.
	// It is only meaningful after Frames() has been closed.
	Err() *kiserr.Error

	// Close shuts the transport down, reaping any owned child process.
	Close() error
}

// byteStreamTransport implements Transport over any reader/writer pair that
// presents an ordered byte stream (an IPC pipe pair adapted by pipePair, or
// a TCP net.Conn). It is the shared engine behind ConnectIPC and
// AcceptRemoteTCP; only frame acquisition differs for
// WebSocket (message-oriented, see ws.go).
type byteStreamTransport struct {
	rwc rwc

	maxFrameBytes int

	frames chan Frame

	writeMu sync.Mutex

	mu      sync.Mutex
	lastErr *kiserr.Error
	closed  bool

	onClose func() error
}

// rwc is the minimal surface byteStreamTransport needs; satisfied by
// io.ReadWriteCloser.
type rwc interface {
	io.Reader
	io.Writer
}

func newByteStreamTransport(rw rwc, maxFrameBytes int, queueDepth int, onClose func() error) *byteStreamTransport {
	if maxFrameBytes <= 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}
	if queueDepth <= 0 {
		queueDepth = 64
	}
	t := &byteStreamTransport{
		rwc:           rw,
		maxFrameBytes: maxFrameBytes,
		frames:        make(chan Frame, queueDepth),
		onClose:       onClose,
	}
	go t.readLoop()
	return t
}

func (t *byteStreamTransport) readLoop() {
	defer close(t.frames)

	hdr := make([]byte, HeaderSize())
	for {
		if _, err := io.ReadFull(t.rwc, hdr); err != nil {
			t.fail(kiserr.Wrap(kiserr.KindTransport, err, "read frame header"))
			return
		}
		version, flags, size, seqno, checksum, kerr := DecodeHeader(hdr)
		if kerr != nil {
			t.fail(kerr)
			return
		}
		if int(size) > t.maxFrameBytes {
			t.fail(kiserr.New(kiserr.KindTransport, "frame exceeds max size"))
			return
		}
		payload := make([]byte, size)
		if size > 0 {
			if _, err := io.ReadFull(t.rwc, payload); err != nil {
				t.fail(kiserr.Wrap(kiserr.KindTransport, err, "read frame payload"))
				return
			}
		}
		if !VerifyChecksum(payload, checksum) {
			t.fail(kiserr.New(kiserr.KindTransport, "frame checksum mismatch"))
			return
		}

		t.frames <- Frame{Version: version, Flags: flags, Seqno: seqno, Content: payload}
	}
}

func (t *byteStreamTransport) fail(err *kiserr.Error) {
	t.mu.Lock()
	if t.lastErr == nil {
		t.lastErr = err
		printer.Errorf("transport error: %v\n", err)
	}
	t.mu.Unlock()
}

func (t *byteStreamTransport) Frames() <-chan Frame { return t.frames }

func (t *byteStreamTransport) WriteFrame(f Frame) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	buf := Encode(f)
	if _, err := t.rwc.Write(buf); err != nil {
		kerr := kiserr.Wrap(kiserr.KindTransport, err, "write frame")
		t.fail(kerr)
		return kerr
	}
	return nil
}

func (t *byteStreamTransport) Err() *kiserr.Error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

func (t *byteStreamTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	if t.onClose != nil {
		return t.onClose()
	}
	return nil
}
