package transport

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/kismetwireless/kismet-datasource-core/internal/kiserr"
	"github.com/kismetwireless/kismet-datasource-core/internal/printer"
)

// wsTransport implements Transport over a gorilla/websocket connection,
// encapsulating the same frame codec as raw TCP in one binary message per
// frame (spec §4.1: "WebSocket and TCP differ only in the outer
// encapsulation of the same framing").
type wsTransport struct {
	conn *websocket.Conn

	frames chan Frame

	writeMu sync.Mutex

	mu      sync.Mutex
	lastErr *kiserr.Error
	closed  bool

	maxFrameBytes int
}

// AcceptRemoteWS wraps an upgraded *websocket.Conn as a Transport (spec
// §4.8: C8 can terminate a WebSocket upgrade at an HTTP route).
func AcceptRemoteWS(conn *websocket.Conn, maxFrameBytes, queueDepth int) Transport {
	if maxFrameBytes <= 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}
	if queueDepth <= 0 {
		queueDepth = 64
	}
	conn.SetReadLimit(int64(maxFrameBytes) + int64(HeaderSize()))
	t := &wsTransport{conn: conn, frames: make(chan Frame, queueDepth), maxFrameBytes: maxFrameBytes}
	go t.readLoop()
	return t
}

func (t *wsTransport) readLoop() {
	defer close(t.frames)
	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			t.fail(kiserr.Wrap(kiserr.KindTransport, err, "read websocket message"))
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if len(data) < HeaderSize() {
			t.fail(kiserr.New(kiserr.KindTransport, "short websocket frame"))
			return
		}
		version, flags, size, seqno, checksum, kerr := DecodeHeader(data[:HeaderSize()])
		if kerr != nil {
			t.fail(kerr)
			return
		}
		payload := data[HeaderSize():]
		if int(size) != len(payload) {
			t.fail(kiserr.New(kiserr.KindTransport, "websocket frame size mismatch"))
			return
		}
		if int(size) > t.maxFrameBytes {
			t.fail(kiserr.New(kiserr.KindTransport, "frame exceeds max size"))
			return
		}
		if !VerifyChecksum(payload, checksum) {
			t.fail(kiserr.New(kiserr.KindTransport, "frame checksum mismatch"))
			return
		}
		t.frames <- Frame{Version: version, Flags: flags, Seqno: seqno, Content: payload}
	}
}

func (t *wsTransport) fail(err *kiserr.Error) {
	t.mu.Lock()
	if t.lastErr == nil {
		t.lastErr = err
		printer.Errorf("websocket transport error: %v\n", err)
	}
	t.mu.Unlock()
}

func (t *wsTransport) Frames() <-chan Frame { return t.frames }

func (t *wsTransport) WriteFrame(f Frame) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	buf := Encode(f)
	if err := t.conn.WriteMessage(websocket.BinaryMessage, buf); err != nil {
		kerr := kiserr.Wrap(kiserr.KindTransport, err, "write websocket frame")
		t.fail(kerr)
		return kerr
	}
	return nil
}

func (t *wsTransport) Err() *kiserr.Error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()
	return t.conn.Close()
}
