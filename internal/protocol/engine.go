package protocol

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kismetwireless/kismet-datasource-core/internal/kiserr"
	"github.com/kismetwireless/kismet-datasource-core/internal/printer"
	"github.com/kismetwireless/kismet-datasource-core/internal/transport"
)

// EngineConfig bundles the timers the engine owns (spec §4.2).
type EngineConfig struct {
	CommandTimeout time.Duration // default 30s
	PingInterval   time.Duration // default 5s idle
	PongTimeout    time.Duration // default 15s
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 30 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 5 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 15 * time.Second
	}
	return c
}

// UnsolicitedHandler is invoked for every report that isn't a response to an
// in-flight command: DataReport, JsonReport, Message, Warning, Error (when
// not tied to a command), Pong is handled internally.
type UnsolicitedHandler func(Report)

// TransportErrorHandler is invoked once when the underlying transport dies,
// after all in-flight transactions have been failed.
type TransportErrorHandler func(*kiserr.Error)

// Engine is the external protocol engine (component C2): it owns a
// Transport, negotiates the wire version from the helper's handshake frame,
// correlates commands with responses by seqno, and drives ping/pong
// keepalive.
type Engine struct {
	t   transport.Transport
	cfg EngineConfig

	txns *transactionTable

	writeCodec   atomic.Value // Codec
	negotiated   atomic.Bool

	onUnsolicited UnsolicitedHandler
	onTransportErr TransportErrorHandler

	mu           sync.Mutex
	lastActivity time.Time
	pingOutstanding bool
	closed       bool
	doneOnce     sync.Once

	stopCh chan struct{}
}

// NewEngine constructs an engine bound to t. Start must be called to begin
// processing frames.
func NewEngine(t transport.Transport, cfg EngineConfig, onUnsolicited UnsolicitedHandler, onTransportErr TransportErrorHandler) *Engine {
	e := &Engine{
		t:              t,
		cfg:            cfg.withDefaults(),
		onUnsolicited:  onUnsolicited,
		onTransportErr: onTransportErr,
		stopCh:         make(chan struct{}),
		lastActivity:   time.Now(),
	}
	e.txns = newTransactionTable(func() time.Duration { return e.cfg.CommandTimeout })
	e.writeCodec.Store(Codec(codecV3{}))
	return e
}

// Start launches the read loop and keepalive ticker. It does not block.
func (e *Engine) Start() {
	go e.readLoop()
	go e.keepaliveLoop()
}

func (e *Engine) readLoop() {
	for frame := range e.t.Frames() {
		e.mu.Lock()
		e.lastActivity = time.Now()
		e.pingOutstanding = false
		e.mu.Unlock()

		codec, kerr := CodecForVersion(frame.Version)
		if kerr != nil {
			printer.Warningf("dropping frame with unsupported wire version %d\n", frame.Version)
			continue
		}

		if !e.negotiated.Load() {
			e.writeCodec.Store(codec)
			e.negotiated.Store(true)
		}

		rep, kerr := codec.DecodeReport(frame.Content)
		if kerr != nil {
			printer.Warningf("protocol decode error: %v\n", kerr)
			continue
		}
		rep.Seqno = frame.Seqno

		e.dispatch(rep)
	}

	// Transport closed: fail every in-flight transaction and notify.
	kerr := e.t.Err()
	if kerr == nil {
		kerr = kiserr.New(kiserr.KindTransport, "transport closed")
	}
	for _, tx := range e.txns.failAll(kerr.Kind, kerr.Msg) {
		tx.callback(Report{}, kerr)
	}
	if e.onTransportErr != nil {
		e.onTransportErr(kerr)
	}
}

func (e *Engine) dispatch(rep Report) {
	if rep.ID == RptPong {
		return // keepalive already recorded lastActivity above
	}

	if rep.Seqno != 0 {
		if tx, ok := e.txns.complete(rep.Seqno); ok {
			tx.callback(rep, nil)
			return
		}
		// No matching transaction: either a fire-and-forget command's
		// response (e.g. scheduler's seqno=0 channel sets never expect
		// this branch) or a genuinely unknown seqno.
		printer.Debugf("dropping report with unknown seqno %d (proto_unknown_seqno)\n", rep.Seqno)
		return
	}

	// seqno == 0: unsolicited (DataReport, JsonReport, Message, Warning,
	// Error not tied to a command).
	if e.onUnsolicited != nil {
		e.onUnsolicited(rep)
	}
}

func (e *Engine) keepaliveLoop() {
	ticker := time.NewTicker(e.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.mu.Lock()
			idle := time.Since(e.lastActivity)
			alreadyOutstanding := e.pingOutstanding
			e.mu.Unlock()

			if idle < e.cfg.PingInterval {
				continue
			}

			if alreadyOutstanding && idle >= e.cfg.PongTimeout {
				kerr := kiserr.New(kiserr.KindTimeout, "keepalive pong missing")
				for _, tx := range e.txns.failAll(kerr.Kind, kerr.Msg) {
					tx.callback(Report{}, kerr)
				}
				if e.onTransportErr != nil {
					e.onTransportErr(kerr)
				}
				e.t.Close()
				return
			}

			if !alreadyOutstanding {
				e.mu.Lock()
				e.pingOutstanding = true
				e.mu.Unlock()
				e.sendFireAndForget(Command{ID: CmdPing})
			}
		}
	}
}

func (e *Engine) codec() Codec {
	return e.writeCodec.Load().(Codec)
}

// SendCommand allocates a seqno/txid, writes cmd, and invokes cb exactly
// once when the matching report arrives or the 30s timer fires (spec §4.2
// steps 1-4).
func (e *Engine) SendCommand(cmd Command, cb Callback) {
	codec := e.codec()

	tx := e.txns.begin(cmd, func(seqno uint32) {
		if tx, ok := e.txns.complete(seqno); ok {
			tx.callback(Report{}, kiserr.New(kiserr.KindTimeout, "command timed out"))
		}
	}, cb)

	frame := transport.Frame{Version: codec.Version(), Seqno: tx.seqno, Content: codec.EncodeCommand(cmd)}
	if err := e.t.WriteFrame(frame); err != nil {
		if completed, ok := e.txns.complete(tx.seqno); ok {
			completed.callback(Report{}, kiserr.Wrap(kiserr.KindTransport, err, "write command"))
		}
		return
	}

	e.mu.Lock()
	e.lastActivity = time.Now()
	e.mu.Unlock()
}

// sendFireAndForget writes cmd with seqno=0 and no transaction tracking,
// used by the hop scheduler for channel sets (spec §4.5: "fire-and-forget
// semantics: failures are logged but do not count against retry").
func (e *Engine) sendFireAndForget(cmd Command) {
	codec := e.codec()
	frame := transport.Frame{Version: codec.Version(), Seqno: 0, Content: codec.EncodeCommand(cmd)}
	if err := e.t.WriteFrame(frame); err != nil {
		printer.Warningf("fire-and-forget command %s failed: %v\n", cmd.ID, err)
		return
	}
	e.mu.Lock()
	e.lastActivity = time.Now()
	e.mu.Unlock()
}

// SendChannelSet issues ConfigureChannel with fire-and-forget semantics, as
// required by the hop scheduler (spec §4.5).
func (e *Engine) SendChannelSet(channel string) {
	e.sendFireAndForget(Command{ID: CmdConfigureChannel, Chan: Chanset{Channel: channel}})
}

// SendHopConfig issues ConfigureChannelHop, also fire-and-forget: the
// source's local hop_state is only committed once the (unsolicited,
// seqno=0) ConfigureReport comes back (spec §4.4 set_hop).
func (e *Engine) SendHopConfig(hop Hopset) {
	e.sendFireAndForget(Command{ID: CmdConfigureChannelHop, Hop: hop})
}

// SendShutdown issues Shutdown fire-and-forget, as part of source close()
// (spec §4.4): the caller does not wait for a reply before tearing down the
// transport.
func (e *Engine) SendShutdown() {
	e.sendFireAndForget(Command{ID: CmdShutdown})
}

// PendingCount reports the number of in-flight transactions (for tests and
// the "exactly zero in-flight OPEN commands" invariant, spec §3).
func (e *Engine) PendingCount() int { return e.txns.len() }

// Cancel fails every in-flight transaction with Cancelled (spec §4.4
// close()) without touching the transport.
func (e *Engine) Cancel() {
	for _, tx := range e.txns.failAll(kiserr.KindCancelled, "source closing") {
		tx.callback(Report{}, kiserr.New(kiserr.KindCancelled, "source closing"))
	}
}

// Stop halts the keepalive loop. The read loop exits on its own once the
// transport's Frames() channel closes.
func (e *Engine) Stop() {
	e.doneOnce.Do(func() { close(e.stopCh) })
}
