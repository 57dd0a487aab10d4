// Package protocol is the external protocol engine (spec §4.2, component
// C2): command/response correlation, timeouts, ping/pong keepalive and
// shutdown, speaking either of two wire versions negotiated at handshake
// (spec §4.2, §6.2).
package protocol

// CommandID enumerates upstream (server->helper) messages.
type CommandID uint8

const (
	CmdProbeSource CommandID = iota + 1
	CmdListInterfaces
	CmdOpenSource
	CmdConfigureChannel
	CmdConfigureChannelHop
	CmdPing
	CmdShutdown
)

func (c CommandID) String() string {
	switch c {
	case CmdProbeSource:
		return "ProbeSource"
	case CmdListInterfaces:
		return "ListInterfaces"
	case CmdOpenSource:
		return "OpenSource"
	case CmdConfigureChannel:
		return "ConfigureChannel"
	case CmdConfigureChannelHop:
		return "ConfigureChannelHop"
	case CmdPing:
		return "Ping"
	case CmdShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// ReportID enumerates downstream (helper->server) messages.
type ReportID uint8

const (
	RptProbeReport ReportID = iota + 1
	RptInterfacesReport
	RptOpenReport
	RptConfigureReport
	RptDataReport
	RptJsonReport
	RptMessage
	RptWarning
	RptError
	RptPong
)

func (r ReportID) String() string {
	switch r {
	case RptProbeReport:
		return "ProbeReport"
	case RptInterfacesReport:
		return "InterfacesReport"
	case RptOpenReport:
		return "OpenReport"
	case RptConfigureReport:
		return "ConfigureReport"
	case RptDataReport:
		return "DataReport"
	case RptJsonReport:
		return "JsonReport"
	case RptMessage:
		return "Message"
	case RptWarning:
		return "Warning"
	case RptError:
		return "Error"
	case RptPong:
		return "Pong"
	default:
		return "Unknown"
	}
}

// ResultCode is the report envelope's result_code (spec §6.2).
type ResultCode uint8

const (
	ResultOK ResultCode = iota
	ResultBadArgs
	ResultHWError
	ResultNotSupported
	ResultAlreadyOpen
	ResultTimeout
)

// MessageLevel is Message.level (spec §6.2).
type MessageLevel uint8

const (
	MsgInfo MessageLevel = iota
	MsgError
	MsgAlert
	MsgDebug
)

// Signal is the wire Signal sub-record (spec §6.2).
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

// Gps is the wire Gps sub-record (spec §6.2).
type Gps struct {
	Lat      float64
	Lon      float64
	Alt      *float64
	Speed    *float64
	Fix      uint8
	TsSec    uint64
	TsUsec   uint32
}

// Chanset is a single-channel configuration sub-record.
type Chanset struct {
	Channel string
}

// Hopset is the hop-configuration sub-record.
type Hopset struct {
	RateHz   float64
	Channels []string
	Offset   uint32
	Shuffle  bool
}

// DataPayload carries a raw captured frame.
type DataPayload struct {
	DLT    uint32
	TsSec  uint64
	TsUsec uint32
	Bytes  []byte
}

// JsonPayload carries a scan-only driver's schema-tagged JSON.
type JsonPayload struct {
	Schema string
	JSON   string
}

// InterfaceEntry is one element of an InterfacesReport.
type InterfaceEntry struct {
	Interface    string
	Options      string
	Hardware     string
	CapInterface string
}

// Command is the upstream envelope (spec §6.2: "{ seqno, command_id,
// payload }").
type Command struct {
	Seqno     uint32
	ID        CommandID
	Definition string   // ProbeSource / OpenSource
	Chan      Chanset  // ConfigureChannel
	Hop       Hopset   // ConfigureChannelHop
}

// Report is the downstream envelope (spec §6.2: "{ seqno, report_id,
// result_code, payload }").
type Report struct {
	Seqno  uint32
	ID     ReportID
	Result ResultCode

	// ProbeReport / OpenReport
	Success    bool
	Msg        string
	UUID       string
	Hardware   string
	Channels   []string
	DLT        uint32
	CapIface   string
	Warning    string
	// Token carries the pre-shared remote-auth token a capture helper
	// advertises on its handshake ProbeReport/OpenReport (spec §4.8).
	// Empty for local (IPC) helpers.
	Token string
	// Driver names the driver type a remote helper's handshake report
	// advertises (spec §4.8: "advertises its driver and UUID"), used by the
	// remote listener to resolve a DriverCaps/Builder. Empty for local
	// helpers, whose driver is already known from the definition.
	Driver string

	// InterfacesReport
	Interfaces []InterfaceEntry

	// ConfigureReport
	Channel Chanset
	HopCfg  Hopset

	// DataReport / JsonReport
	Data   DataPayload
	JSON   JsonPayload
	Signal *Signal
	GpsFix *Gps

	// Message / Warning / Error
	Text  string
	Level MessageLevel
}
