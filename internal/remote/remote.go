// Package remote is the remote/server listener (spec §4.8, component C8):
// it accepts remote capture helpers over raw TCP and WebSocket-upgraded
// HTTP, authenticates their handshake frame, and either re-binds an
// existing Error/Closed remote Source or constructs and merges a new one
// via the tracker (spec §4.7 merge_source).
package remote

import (
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/kismetwireless/kismet-datasource-core/internal/dlt"
	"github.com/kismetwireless/kismet-datasource-core/internal/driver"
	"github.com/kismetwireless/kismet-datasource-core/internal/eventbus"
	"github.com/kismetwireless/kismet-datasource-core/internal/gps"
	"github.com/kismetwireless/kismet-datasource-core/internal/packetchain"
	"github.com/kismetwireless/kismet-datasource-core/internal/printer"
	"github.com/kismetwireless/kismet-datasource-core/internal/protocol"
	"github.com/kismetwireless/kismet-datasource-core/internal/source"
	"github.com/kismetwireless/kismet-datasource-core/internal/tracker"
	"github.com/kismetwireless/kismet-datasource-core/internal/transport"
)

// defaultHandshakeTimeout bounds how long the listener waits for a remote
// helper's first frame before giving up on the connection.
const defaultHandshakeTimeout = 10 * time.Second

// Config bundles the listener's tunables, sourced from internal/config.
type Config struct {
	ListenAddr       string
	WSPath           string
	Token            string
	MaxFrameBytes    int
	QueueDepth       int
	HandshakeTimeout time.Duration
	// FaninBufferWhileOpeningBytes bounds pre-open report buffering on newly
	// assimilated remote sources (spec §9), mirroring the tracker's own
	// local-source setting.
	FaninBufferWhileOpeningBytes int
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	return c
}

// Listener is component C8. It holds no sources itself; every accepted
// helper is handed off to the Tracker via MergeSource or an existing
// Source's BindRemote.
type Listener struct {
	cfg Config

	registry   *driver.Registry
	trk        *tracker.Tracker
	bus        *eventbus.Bus
	chain      packetchain.Chain
	gpsTracker gps.Tracker
	engineCfg  protocol.EngineConfig
	dlts       *dlt.Registry

	upgrader websocket.Upgrader
	ln       net.Listener
}

// New constructs a Listener. Call ListenAndServeTCP to start the raw-TCP
// accept loop and RegisterWS to mount the WebSocket upgrade route on an
// existing router (spec §4.8: "raw TCP and WebSocket upgrade"). dlts may be
// nil, in which case assimilated remote sources report an empty DLT name.
func New(cfg Config, registry *driver.Registry, trk *tracker.Tracker, bus *eventbus.Bus, chain packetchain.Chain, gpsTracker gps.Tracker, engineCfg protocol.EngineConfig, dlts *dlt.Registry) *Listener {
	return &Listener{
		cfg:        cfg.withDefaults(),
		registry:   registry,
		trk:        trk,
		bus:        bus,
		chain:      chain,
		gpsTracker: gpsTracker,
		engineCfg:  engineCfg,
		dlts:       dlts,
		upgrader:   websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
	}
}

// ListenAndServeTCP opens the raw TCP listener and accepts connections until
// Close is called. It blocks the calling goroutine.
func (l *Listener) ListenAndServeTCP() error {
	ln, err := net.Listen("tcp", l.cfg.ListenAddr)
	if err != nil {
		return err
	}
	l.ln = ln
	printer.Infof("remote listener: accepting on %s\n", l.cfg.ListenAddr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		connID := uuid.New().String()
		go l.handshake(connID, transport.AcceptRemoteTCP(conn, l.cfg.MaxFrameBytes, l.cfg.QueueDepth))
	}
}

// RegisterWS mounts the WebSocket upgrade route on router (spec §4.8:
// "optionally terminate a WebSocket upgrade at an HTTP route").
func (l *Listener) RegisterWS(router *mux.Router) {
	router.HandleFunc(l.cfg.WSPath, l.handleWSUpgrade)
}

// Close stops accepting new raw TCP connections. Already-bound remote
// sources are unaffected; they tear down individually on transport error.
func (l *Listener) Close() error {
	if l.ln != nil {
		return l.ln.Close()
	}
	return nil
}

func (l *Listener) handleWSUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		printer.Warningf("remote listener: websocket upgrade failed: %v\n", err)
		return
	}
	l.handshake(uuid.New().String(), transport.AcceptRemoteWS(conn, l.cfg.MaxFrameBytes, l.cfg.QueueDepth))
}

// handshake reads the remote helper's first frame, which must be a
// ProbeReport or OpenReport synthesized by the helper advertising its
// driver, UUID and pre-shared token (spec §4.8), then either re-binds an
// existing source or constructs and merges a new one. connID correlates the
// log lines emitted before the handshake report is decoded, since the
// remote source's own uuid isn't known yet at accept time.
func (l *Listener) handshake(connID string, tr transport.Transport) {
	var frame transport.Frame
	select {
	case f, ok := <-tr.Frames():
		if !ok {
			printer.Warningf("remote listener: conn %s closed before handshake: %v\n", connID, tr.Err())
			tr.Close()
			return
		}
		frame = f
	case <-time.After(l.cfg.HandshakeTimeout):
		printer.Warningf("remote listener: conn %s handshake timed out\n", connID)
		tr.Close()
		return
	}

	codec, kerr := protocol.CodecForVersion(frame.Version)
	if kerr != nil {
		printer.Warningf("remote listener: conn %s: %v\n", connID, kerr)
		tr.Close()
		return
	}
	rep, kerr := codec.DecodeReport(frame.Content)
	if kerr != nil {
		printer.Warningf("remote listener: conn %s: %v\n", connID, kerr)
		tr.Close()
		return
	}

	if rep.ID != protocol.RptProbeReport && rep.ID != protocol.RptOpenReport {
		printer.Warningf("remote listener: conn %s: handshake frame was %s, not a Probe/OpenReport\n", connID, rep.ID)
		tr.Close()
		return
	}
	if l.cfg.Token != "" && rep.Token != l.cfg.Token {
		printer.Warningf("remote listener: conn %s: bad auth token from %s\n", connID, rep.UUID)
		tr.Close()
		return
	}
	if rep.UUID == "" {
		printer.Warningf("remote listener: conn %s: handshake did not advertise a uuid\n", connID)
		tr.Close()
		return
	}

	if existing := l.trk.FindByUUID(rep.UUID); existing != nil {
		l.rebind(existing, tr, rep)
		return
	}
	l.assimilate(tr, rep)
}

// rebind re-attaches tr to an already-known source that must be remote and
// currently Error/Closed (spec §4.8: "re-bind the transport").
func (l *Listener) rebind(existing *source.Source, tr transport.Transport, rep protocol.Report) {
	if !existing.Remote() {
		printer.Warningf("remote listener: uuid %s is bound to a local source, rejecting remote handshake\n", rep.UUID)
		tr.Close()
		return
	}
	switch existing.State() {
	case source.StateError, source.StateClosed:
		if kerr := existing.BindRemote(tr, rep); kerr != nil {
			printer.Errorf("remote listener: rebind of %s failed: %v\n", rep.UUID, kerr)
		} else {
			printer.Infof("remote listener: rebound %s\n", rep.UUID)
		}
	default:
		printer.Warningf("remote listener: uuid %s already active, dropping duplicate remote connection\n", rep.UUID)
		tr.Close()
	}
}

// assimilate constructs a brand-new remote Source for a handshake whose
// uuid isn't already tracked (spec §4.7 assimilate_remote, merge_source).
func (l *Listener) assimilate(tr transport.Transport, rep protocol.Report) {
	b, kerr := l.registry.Resolve(rep.Driver)
	if kerr != nil {
		printer.Errorf("remote listener: %v\n", kerr)
		tr.Close()
		return
	}

	iface := rep.CapIface
	if iface == "" {
		iface = "remote"
	}
	def := &source.Definition{
		Raw:       "remote:type=" + rep.Driver + ",uuid=" + rep.UUID,
		Interface: iface,
		Type:      rep.Driver,
		UUID:      rep.UUID,
		RetrySet:  true, // remote sources never auto-reopen; the helper reconnects instead
		Retry:     false,
	}

	src, kerr := source.NewRemote(def, b, tr, l.bus, l.chain, l.gpsTracker, l.engineCfg, l.cfg.FaninBufferWhileOpeningBytes, l.dlts)
	if kerr != nil {
		printer.Errorf("remote listener: %v\n", kerr)
		tr.Close()
		return
	}
	if kerr := src.BindRemote(tr, rep); kerr != nil {
		printer.Errorf("remote listener: bind of new source %s failed: %v\n", rep.UUID, kerr)
		return
	}
	if kerr := l.trk.MergeSource(src); kerr != nil {
		printer.Errorf("remote listener: %v\n", kerr)
		src.Close()
		return
	}
	printer.Infof("remote listener: assimilated new remote source %s (%s)\n", rep.UUID, rep.Driver)
}
