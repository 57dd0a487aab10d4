package source

import (
	"sync"
	"time"

	"github.com/kismetwireless/kismet-datasource-core/internal/dlt"
	"github.com/kismetwireless/kismet-datasource-core/internal/driver"
	"github.com/kismetwireless/kismet-datasource-core/internal/eventbus"
	"github.com/kismetwireless/kismet-datasource-core/internal/fanin"
	"github.com/kismetwireless/kismet-datasource-core/internal/gps"
	"github.com/kismetwireless/kismet-datasource-core/internal/kiserr"
	"github.com/kismetwireless/kismet-datasource-core/internal/metrics"
	"github.com/kismetwireless/kismet-datasource-core/internal/packetchain"
	"github.com/kismetwireless/kismet-datasource-core/internal/printer"
	"github.com/kismetwireless/kismet-datasource-core/internal/protocol"
	"github.com/kismetwireless/kismet-datasource-core/internal/transport"
)

// Metadata is the optional antenna/amp description (spec §3: metadata).
type Metadata struct {
	AntennaType           string
	AntennaGainDBI         float64
	AntennaOrientationDeg float64
	AntennaBeamwidthDeg   float64
	AmpType               string
	AmpGainDB             float64
}

// HopState is a source's channel-hop configuration (spec §3: hop_state),
// consumed by the hop scheduler (C5).
type HopState struct {
	Hopping     bool
	RateHz      float64
	List        []string
	Offset      uint32
	Split       bool
	Shuffle     bool
	ShuffleSkip uint32
	Cursor      uint32
}

// RetryPolicy is a source's auto-reopen configuration and counters (spec
// §3: retry).
type RetryPolicy struct {
	Auto          bool
	Attempts      uint32
	TotalAttempts uint32
}

// IPCInfo describes the local helper process, if any (spec §3: ipc).
type IPCInfo struct {
	Binary string
	PID    int
}

// Source is one active (or formerly active) capture instance (spec §3,
// §4.4, component C4). All mutation is serialized on mu, matching the
// "per-source single-writer strand" concurrency model (spec §5).
type Source struct {
	mu sync.Mutex

	uuid         string
	key          uint32
	name         string
	definition   *Definition
	capIface     string
	hardware     string
	dlt          int
	overrideDLT  int
	channels     []string
	hop          HopState
	currentChan  string
	pendingChan  string
	lastChannelAckAt time.Time
	state        State
	lastError    *kiserr.Error
	retry        RetryPolicy
	ipc          IPCInfo
	remote       bool
	paused       bool
	warning      string
	metadata     Metadata
	seenbyGPS    *gps.Fix

	builder    driver.Builder
	bus        *eventbus.Bus
	gpsTracker gps.Tracker
	chain      packetchain.Chain
	engineCfg  protocol.EngineConfig
	ipcOpts    transport.IPCOptions

	proc      *fanin.Processor
	engine    *protocol.Engine
	transport transport.Transport

	reopenTimer *time.Timer
	closeOnce   sync.Once

	bufferLimit     int
	bufferedReports []protocol.Report
	bufferedBytes   int
}

// New constructs a locally-driven Source (helper launched via IPC).
// bufferLimit bounds how many bytes of DataReport/JsonReport received while
// still StateOpening are buffered rather than dropped (spec §9: "some
// helpers send DataReports before OpenReport completes"); 0 disables
// buffering.
func New(def *Definition, b driver.Builder, bus *eventbus.Bus, chain packetchain.Chain, gpsTracker gps.Tracker, engineCfg protocol.EngineConfig, ipcOpts transport.IPCOptions, bufferLimit int, dlts *dlt.Registry) (*Source, *kiserr.Error) {
	return newSource(def, b, false, bus, chain, gpsTracker, engineCfg, ipcOpts, bufferLimit, dlts)
}

// NewRemote constructs a Source for an already-handshaked remote transport
// (spec §4.8, used by C8's RemoteListener via C7's merge_source).
func NewRemote(def *Definition, b driver.Builder, tr transport.Transport, bus *eventbus.Bus, chain packetchain.Chain, gpsTracker gps.Tracker, engineCfg protocol.EngineConfig, bufferLimit int, dlts *dlt.Registry) (*Source, *kiserr.Error) {
	s, err := newSource(def, b, true, bus, chain, gpsTracker, engineCfg, transport.IPCOptions{}, bufferLimit, dlts)
	if err != nil {
		return nil, err
	}
	s.transport = tr
	return s, nil
}

// NewVirtual constructs a Source with no helper and no transport (spec §9
// GLOSSARY "Virtual source"): the provenance tag for externally-submitted
// scan reports (spec §6.3). It is permanently Running; IngestReport feeds
// packets into its fan-in processor directly, bypassing the protocol
// engine entirely.
func NewVirtual(def *Definition, b driver.Builder, bus *eventbus.Bus, chain packetchain.Chain, gpsTracker gps.Tracker, dlts *dlt.Registry) (*Source, *kiserr.Error) {
	s, err := newSource(def, b, false, bus, chain, gpsTracker, protocol.EngineConfig{}, transport.IPCOptions{}, 0, dlts)
	if err != nil {
		return nil, err
	}
	caps := b.Caps()
	s.mu.Lock()
	s.state = StateRunning
	s.hardware = "virtual"
	s.dlt = caps.DefaultDLT
	s.mu.Unlock()
	s.proc.SetDLT(caps.DefaultDLT)
	if caps.OverrideDLT != 0 {
		s.proc.SetOverrideDLT(caps.OverrideDLT)
	}
	return s, nil
}

// IngestReport feeds rep directly into the source's fan-in processor (spec
// §6.3: the scan_report HTTP endpoints inject pseudo-packets through a
// virtual source without a capture helper or transport).
func (s *Source) IngestReport(rep protocol.Report) {
	s.proc.Process(rep)
}

func newSource(def *Definition, b driver.Builder, remote bool, bus *eventbus.Bus, chain packetchain.Chain, gpsTracker gps.Tracker, engineCfg protocol.EngineConfig, ipcOpts transport.IPCOptions, bufferLimit int, dlts *dlt.Registry) (*Source, *kiserr.Error) {
	if def == nil {
		return nil, kiserr.New(kiserr.KindBadDefinition, "nil source definition")
	}

	caps := b.Caps()

	uuid := def.UUID
	if uuid == "" {
		uuid = DeriveUUID(caps.Name, def.Interface)
	}

	s := &Source{
		uuid:        uuid,
		key:         Key(uuid),
		name:        def.Name,
		definition:  def,
		channels:    def.Channels,
		currentChan: def.Channel,
		state:       StateInit,
		retry:       RetryPolicy{Auto: !def.RetrySet || def.Retry},
		remote:      remote,
		overrideDLT: caps.OverrideDLT,
		builder:     b,
		bus:         bus,
		gpsTracker:  gpsTracker,
		chain:       chain,
		engineCfg:   engineCfg,
		ipcOpts:     ipcOpts,
		bufferLimit: bufferLimit,
	}
	if def.HopSet {
		s.hop = HopState{Hopping: def.Hop, RateHz: def.HopRate, List: def.Channels, Offset: def.Offset, Split: def.Split, Shuffle: def.Shuffle}
	}

	s.proc = fanin.New(fanin.Config{
		SourceUUID:       uuid,
		SourceKey:        s.key,
		Remote:           remote,
		ClobberTimestamp: remote,
		SuppressGPS:      caps.SuppressGPS,
		Decap:            b.DecapFrame,
		DLTs:             dlts,
	}, gpsTracker, chain)

	return s, nil
}

// connectTransport launches the local helper, or returns the already-bound
// remote transport.
func (s *Source) connectTransport() (transport.Transport, *kiserr.Error) {
	if s.remote {
		s.mu.Lock()
		tr := s.transport
		s.mu.Unlock()
		if tr == nil {
			return nil, kiserr.New(kiserr.KindBadDefinition, "remote source has no bound transport")
		}
		return tr, nil
	}

	caps := s.builder.Caps()
	if !caps.CanLocal {
		return nil, kiserr.New(kiserr.KindUnsupported, "driver does not support local capture")
	}

	args := s.builder.HelperArgs(s.definition.Raw)
	tr, err := transport.ConnectIPC(caps.HelperBinary, args, s.ipcOpts)
	if err != nil {
		if kerr, ok := err.(*kiserr.Error); ok {
			return nil, kerr
		}
		return nil, kiserr.Wrap(kiserr.KindTransport, err, "launch capture helper")
	}

	s.mu.Lock()
	s.transport = tr
	s.ipc.Binary = caps.HelperBinary
	s.mu.Unlock()
	return tr, nil
}

// Probe issues ProbeSource and reports whether the driver claims this
// definition (spec §4.4 probe()). Valid only from Init.
func (s *Source) Probe(cb func(bool, *kiserr.Error)) *kiserr.Error {
	s.mu.Lock()
	if s.state != StateInit {
		st := s.state
		s.mu.Unlock()
		return kiserr.New(kiserr.KindUnsupported, "probe invalid from state "+st.String())
	}
	s.state = StateProbing
	s.mu.Unlock()

	tr, kerr := s.connectTransport()
	if kerr != nil {
		s.mu.Lock()
		s.state = StateClosed
		s.lastError = kerr
		s.mu.Unlock()
		if cb != nil {
			cb(false, kerr)
		}
		return kerr
	}

	eng := protocol.NewEngine(tr, s.engineCfg, func(protocol.Report) {}, func(*kiserr.Error) {})
	eng.Start()
	eng.SendCommand(protocol.Command{ID: protocol.CmdProbeSource, Definition: s.definition.Raw}, func(rep protocol.Report, kerr *kiserr.Error) {
		eng.Stop()
		tr.Close()

		if kerr != nil {
			s.mu.Lock()
			s.state = StateClosed
			s.lastError = kerr
			s.mu.Unlock()
			if cb != nil {
				cb(false, kerr)
			}
			return
		}
		if !rep.Success {
			kerr2 := kiserr.New(kiserr.KindHelperReported, rep.Msg)
			s.mu.Lock()
			s.state = StateClosed
			s.lastError = kerr2
			s.mu.Unlock()
			if cb != nil {
				cb(false, kerr2)
			}
			return
		}

		s.mu.Lock()
		s.state = StateProbed
		if rep.UUID != "" && s.definition.UUID == "" {
			s.uuid = rep.UUID
			s.key = Key(rep.UUID)
		}
		s.hardware = rep.Hardware
		if len(rep.Channels) > 0 {
			s.channels = rep.Channels
		}
		s.mu.Unlock()
		if cb != nil {
			cb(true, nil)
		}
	})
	return nil
}

// List issues ListInterfaces (spec §4.4 list()), valid from Init.
func (s *Source) List(cb func([]protocol.InterfaceEntry, *kiserr.Error)) *kiserr.Error {
	s.mu.Lock()
	if s.state != StateInit {
		st := s.state
		s.mu.Unlock()
		return kiserr.New(kiserr.KindUnsupported, "list invalid from state "+st.String())
	}
	s.state = StateListing
	s.mu.Unlock()

	tr, kerr := s.connectTransport()
	if kerr != nil {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		cb(nil, kerr)
		return kerr
	}

	eng := protocol.NewEngine(tr, s.engineCfg, func(protocol.Report) {}, func(*kiserr.Error) {})
	eng.Start()
	eng.SendCommand(protocol.Command{ID: protocol.CmdListInterfaces}, func(rep protocol.Report, kerr *kiserr.Error) {
		eng.Stop()
		tr.Close()
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		if kerr != nil {
			cb(nil, kerr)
			return
		}
		cb(rep.Interfaces, nil)
	})
	return nil
}

// Open issues OpenSource, committing channels/dlt/cap_interface/uuid on
// success (spec §4.4 open()). Valid from Init, Closed or Error (manual or
// auto reopen).
func (s *Source) Open(cb func(*kiserr.Error)) *kiserr.Error {
	s.mu.Lock()
	switch s.state {
	case StateInit, StateClosed, StateError:
	default:
		st := s.state
		s.mu.Unlock()
		return kiserr.New(kiserr.KindUnsupported, "open invalid from state "+st.String())
	}
	s.state = StateOpening
	s.mu.Unlock()

	tr, kerr := s.connectTransport()
	if kerr != nil {
		s.fail(kerr)
		if cb != nil {
			cb(kerr)
		}
		return kerr
	}

	eng := protocol.NewEngine(tr, s.engineCfg, s.onUnsolicited, s.onTransportError)
	s.mu.Lock()
	s.engine = eng
	s.mu.Unlock()
	eng.Start()

	eng.SendCommand(protocol.Command{ID: protocol.CmdOpenSource, Definition: s.definition.Raw}, func(rep protocol.Report, kerr *kiserr.Error) {
		s.handleOpenReport(rep, kerr, cb)
	})
	return nil
}

func (s *Source) handleOpenReport(rep protocol.Report, kerr *kiserr.Error, cb func(*kiserr.Error)) {
	if kerr != nil {
		s.fail(kerr)
		if cb != nil {
			cb(kerr)
		}
		return
	}
	if !rep.Success {
		kerr2 := kiserr.New(kiserr.KindHelperReported, rep.Msg)
		s.fail(kerr2)
		if cb != nil {
			cb(kerr2)
		}
		return
	}

	s.mu.Lock()
	if s.definition.UUID == "" && rep.UUID != "" && rep.UUID != s.uuid {
		s.uuid = rep.UUID
		s.key = Key(rep.UUID)
	}
	s.hardware = rep.Hardware
	s.capIface = rep.CapIface
	if len(rep.Channels) > 0 {
		s.channels = rep.Channels
	}
	s.dlt = int(rep.DLT)
	effectiveDLT := s.dlt
	if s.overrideDLT != 0 {
		effectiveDLT = s.overrideDLT
	}
	s.warning = rep.Warning
	s.state = StateRunning
	s.retry.Attempts = 0
	uuid, key := s.uuid, s.key
	s.mu.Unlock()

	s.proc.SetDLT(effectiveDLT)
	s.flushBuffered()
	s.bus.Publish(eventbus.Event{Type: eventbus.DatasourceOpened, SourceUUID: uuid, SourceKey: key})
	if cb != nil {
		cb(nil)
	}
}

// flushBuffered replays reports buffered while the source was still
// StateOpening (spec §9) now that open has succeeded and an effective DLT
// is known.
func (s *Source) flushBuffered() {
	s.mu.Lock()
	buffered := s.bufferedReports
	s.bufferedReports = nil
	s.bufferedBytes = 0
	s.mu.Unlock()
	for _, rep := range buffered {
		s.proc.Process(rep)
	}
}

// bufferReport buffers rep instead of processing it immediately if the
// source is still opening and buffering is enabled, returning true if it
// took ownership of rep (buffered, or dropped for being over the byte
// limit). A failed open drops the buffer entirely in fail().
func (s *Source) bufferReport(rep protocol.Report) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpening || s.bufferLimit <= 0 {
		return false
	}
	size := len(rep.Data.Bytes)
	if rep.ID == protocol.RptJsonReport {
		size = len(rep.JSON.JSON)
	}
	if s.bufferedBytes+size > s.bufferLimit {
		printer.Warningf("source %s: dropping report received before open, pre-open buffer full\n", s.uuid)
		return true
	}
	s.bufferedReports = append(s.bufferedReports, rep)
	s.bufferedBytes += size
	return true
}

// BindRemote attaches an already-handshaked remote transport and applies the
// OpenReport the helper sent as its handshake frame, without re-issuing
// OpenSource (spec §4.8: the handshake frame IS the open result). Valid from
// Init (first bind of a newly constructed remote source) or Closed/Error
// (reconnect after RemoteDisconnected, spec §4.8 "re-bind the transport").
func (s *Source) BindRemote(tr transport.Transport, rep protocol.Report) *kiserr.Error {
	s.mu.Lock()
	switch s.state {
	case StateInit, StateClosed, StateError:
	default:
		st := s.state
		s.mu.Unlock()
		return kiserr.New(kiserr.KindUnsupported, "bind invalid from state "+st.String())
	}
	s.transport = tr
	s.state = StateOpening
	s.mu.Unlock()

	eng := protocol.NewEngine(tr, s.engineCfg, s.onUnsolicited, s.onTransportError)
	s.mu.Lock()
	s.engine = eng
	s.mu.Unlock()
	eng.Start()

	if !rep.Success {
		kerr := kiserr.New(kiserr.KindHelperReported, rep.Msg)
		s.fail(kerr)
		return kerr
	}

	s.handleOpenReport(rep, nil, nil)
	return nil
}

// fail transitions the source to Error, records last_error, fires
// DATASOURCE_ERROR, and arms the auto-reopen timer when eligible (spec
// §4.4, §7).
func (s *Source) fail(kerr *kiserr.Error) {
	s.mu.Lock()
	s.state = StateError
	s.lastError = kerr
	remote := s.remote
	autoRetry := s.retry.Auto
	uuid, key := s.uuid, s.key
	eng := s.engine
	s.bufferedReports = nil
	s.bufferedBytes = 0
	s.mu.Unlock()

	if eng != nil {
		eng.Cancel()
	}

	s.bus.Publish(eventbus.Event{Type: eventbus.DatasourceError, SourceUUID: uuid, SourceKey: key, Kind: kerr.Kind.String(), Message: kerr.Msg})

	if autoRetry && !remote && kerr.Kind.RetryEligible() {
		s.scheduleReopen()
	}
}

// scheduleReopen arms a single reopen timer for min(5+attempts*2, 30)
// seconds (spec §4.4). This linear schedule is computed directly rather
// than via github.com/jpillora/backoff, whose exponential model does not
// fit this formula; that library is used instead by the hop scheduler's
// slow-ack doubling (internal/hop).
func (s *Source) scheduleReopen() {
	s.mu.Lock()
	s.retry.Attempts++
	s.retry.TotalAttempts++
	attempts := s.retry.Attempts
	uuid := s.uuid
	s.mu.Unlock()

	delaySec := 5 + int(attempts)*2
	if delaySec > 30 {
		delaySec = 30
	}
	metrics.ReopenAttempts.WithLabelValues(uuid).Inc()
	printer.Infof("source %s: scheduling reopen in %ds (attempt %d)\n", uuid, delaySec, attempts)

	s.mu.Lock()
	if s.reopenTimer != nil {
		s.reopenTimer.Stop()
	}
	s.reopenTimer = time.AfterFunc(time.Duration(delaySec)*time.Second, func() { s.Open(nil) })
	s.mu.Unlock()
}

func (s *Source) onTransportError(kerr *kiserr.Error) {
	s.mu.Lock()
	st := s.state
	remote := s.remote
	s.mu.Unlock()
	if st == StateClosing || st == StateClosed {
		return
	}
	if remote {
		kerr = kiserr.New(kiserr.KindRemoteDisconnected, "remote transport disconnected")
	}
	s.fail(kerr)
}

func (s *Source) onUnsolicited(rep protocol.Report) {
	switch rep.ID {
	case protocol.RptDataReport, protocol.RptJsonReport:
		if s.bufferReport(rep) {
			return
		}
		s.proc.Process(rep)
	case protocol.RptConfigureReport:
		s.handleConfigureReport(rep)
	case protocol.RptWarning:
		s.mu.Lock()
		s.warning = rep.Text
		uuid, key := s.uuid, s.key
		s.mu.Unlock()
		s.bus.Publish(eventbus.Event{Type: eventbus.DatasourceWarning, SourceUUID: uuid, SourceKey: key, Message: rep.Text})
	case protocol.RptMessage:
		if rep.Level == protocol.MsgAlert {
			s.mu.Lock()
			uuid, key := s.uuid, s.key
			s.mu.Unlock()
			s.bus.Publish(eventbus.Event{Type: eventbus.AlertRaised, SourceUUID: uuid, SourceKey: key, Message: rep.Text})
		}
	case protocol.RptError:
		s.mu.Lock()
		s.lastError = kiserr.New(kiserr.KindHelperReported, rep.Text)
		s.mu.Unlock()
	}
}

func (s *Source) handleConfigureReport(rep protocol.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !rep.Success {
		return
	}
	if rep.Channel.Channel != "" {
		s.currentChan = rep.Channel.Channel
		s.lastChannelAckAt = time.Now()
	}
	if len(rep.HopCfg.Channels) > 0 {
		s.hop.List = rep.HopCfg.Channels
		s.hop.RateHz = rep.HopCfg.RateHz
		s.hop.Offset = rep.HopCfg.Offset
		s.hop.Shuffle = rep.HopCfg.Shuffle
		s.hop.Hopping = s.hop.RateHz > 0 && len(s.hop.List) > 0
		s.hop.Cursor = 0
	}
	s.pendingChan = ""
}

// LastChannelAckAt reports when the most recent ConfigureReport carrying a
// channel ack was processed, used by the hop scheduler's slow-ack detection
// (spec §4.5).
func (s *Source) LastChannelAckAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastChannelAckAt
}

// HopChannelSet issues a fire-and-forget channel set on behalf of the hop
// scheduler, bypassing SetChannel's Running/Paused and CanTune gating since
// the scheduler only ever calls this for sources it has itself registered
// as Running and hopping (spec §4.5).
func (s *Source) HopChannelSet(channel string) {
	s.mu.Lock()
	eng := s.engine
	s.mu.Unlock()
	if eng != nil {
		eng.SendChannelSet(channel)
	}
}

// SetChannel issues ConfigureChannel (spec §4.4 set_channel()); the local
// model is only updated once the (unsolicited) ConfigureReport arrives.
func (s *Source) SetChannel(channel string) *kiserr.Error {
	s.mu.Lock()
	if s.state != StateRunning && s.state != StatePaused {
		st := s.state
		s.mu.Unlock()
		return kiserr.New(kiserr.KindUnsupported, "set_channel invalid from state "+st.String())
	}
	if !s.builder.Caps().CanTune {
		s.mu.Unlock()
		return kiserr.New(kiserr.KindUnsupported, "driver does not support tuning")
	}
	eng := s.engine
	s.pendingChan = channel
	s.mu.Unlock()

	eng.SendChannelSet(channel)
	return nil
}

// SetHop issues ConfigureChannelHop (spec §4.4 set_hop()).
func (s *Source) SetHop(rateHz float64, list []string, offset uint32, split, shuffle bool) *kiserr.Error {
	s.mu.Lock()
	if s.state != StateRunning && s.state != StatePaused {
		st := s.state
		s.mu.Unlock()
		return kiserr.New(kiserr.KindUnsupported, "set_hop invalid from state "+st.String())
	}
	if !s.builder.Caps().CanHop {
		s.mu.Unlock()
		return kiserr.New(kiserr.KindUnsupported, "driver does not support channel hopping")
	}
	eng := s.engine
	s.mu.Unlock()

	eng.SendHopConfig(protocol.Hopset{RateHz: rateHz, Channels: list, Offset: offset, Shuffle: shuffle})
	return nil
}

// Pause gates packet forwarding without notifying the helper (spec §4.4
// pause()).
func (s *Source) Pause() *kiserr.Error {
	s.mu.Lock()
	if s.state != StateRunning {
		st := s.state
		s.mu.Unlock()
		return kiserr.New(kiserr.KindUnsupported, "pause invalid from state "+st.String())
	}
	s.state = StatePaused
	s.paused = true
	s.mu.Unlock()
	s.proc.SetPaused(true)
	return nil
}

// Resume reverses Pause (spec §4.4 resume()).
func (s *Source) Resume() *kiserr.Error {
	s.mu.Lock()
	if s.state != StatePaused {
		st := s.state
		s.mu.Unlock()
		return kiserr.New(kiserr.KindUnsupported, "resume invalid from state "+st.String())
	}
	s.state = StateRunning
	s.paused = false
	s.mu.Unlock()
	s.proc.SetPaused(false)
	return nil
}

// Close cancels all in-flight commands, sends Shutdown, and tears down the
// transport (spec §4.4 close()). Idempotent: a second call is a no-op and
// only one DATASOURCE_CLOSED event is ever published (spec §8).
func (s *Source) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		if s.reopenTimer != nil {
			s.reopenTimer.Stop()
		}
		s.state = StateClosing
		eng := s.engine
		tr := s.transport
		uuid, key := s.uuid, s.key
		s.mu.Unlock()

		if eng != nil {
			eng.Cancel()
			eng.SendShutdown()
			eng.Stop()
		}
		if tr != nil {
			tr.Close()
		}

		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()

		s.bus.Publish(eventbus.Event{Type: eventbus.DatasourceClosed, SourceUUID: uuid, SourceKey: key})
	})
}

// CloseAsync is Close but non-blocking; done is invoked after teardown
// completes (spec §4.4 close_async()).
func (s *Source) CloseAsync(done func()) {
	go func() {
		s.Close()
		if done != nil {
			done()
		}
	}()
}

// --- accessors for the HTTP surface, tracker and tests ---

func (s *Source) UUID() string { s.mu.Lock(); defer s.mu.Unlock(); return s.uuid }
func (s *Source) KeyValue() uint32 { s.mu.Lock(); defer s.mu.Unlock(); return s.key }
func (s *Source) Name() string { s.mu.Lock(); defer s.mu.Unlock(); return s.name }
func (s *Source) Interface() string { return s.definition.Interface }
func (s *Source) DefinitionString() string { return s.definition.Raw }
func (s *Source) State() State { s.mu.Lock(); defer s.mu.Unlock(); return s.state }
func (s *Source) Hardware() string { s.mu.Lock(); defer s.mu.Unlock(); return s.hardware }
func (s *Source) CapInterface() string { s.mu.Lock(); defer s.mu.Unlock(); return s.capIface }
func (s *Source) DLT() int { s.mu.Lock(); defer s.mu.Unlock(); return s.dlt }
func (s *Source) Channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.channels...)
}
func (s *Source) CurrentChannel() string { s.mu.Lock(); defer s.mu.Unlock(); return s.currentChan }
func (s *Source) PendingChannel() string { s.mu.Lock(); defer s.mu.Unlock(); return s.pendingChan }
func (s *Source) HopState() HopState     { s.mu.Lock(); defer s.mu.Unlock(); return s.hop }
func (s *Source) LastError() *kiserr.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}
func (s *Source) Retry() RetryPolicy { s.mu.Lock(); defer s.mu.Unlock(); return s.retry }
func (s *Source) Remote() bool       { s.mu.Lock(); defer s.mu.Unlock(); return s.remote }
func (s *Source) Paused() bool       { s.mu.Lock(); defer s.mu.Unlock(); return s.paused }
func (s *Source) Warning() string    { s.mu.Lock(); defer s.mu.Unlock(); return s.warning }
func (s *Source) Metadata() Metadata { s.mu.Lock(); defer s.mu.Unlock(); return s.metadata }
func (s *Source) SetMetadata(m Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata = m
}
func (s *Source) BuilderCaps() driver.Caps { return s.builder.Caps() }

func (s *Source) DLTName() string      { return s.proc.DLTName() }
func (s *Source) RxPackets() uint64    { return s.proc.RxPackets() }
func (s *Source) RxErrors() uint64     { return s.proc.RxErrors() }
func (s *Source) PacketRRD() []float64 { return s.proc.PacketRRD() }
func (s *Source) PacketSizeRRD() []float64 { return s.proc.PacketSizeRRD() }
