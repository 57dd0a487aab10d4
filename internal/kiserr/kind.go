// Package kiserr defines the error taxonomy shared by the data source
// subsystem (transport, protocol engine, tracker).
package kiserr

// Kind classifies an error so callers can decide on retry/reopen eligibility
// without string-matching messages.
type Kind int

const (
	// KindUnknown is the zero value; it should never be constructed directly.
	KindUnknown Kind = iota

	// KindTransport covers I/O or framing failures against a helper.
	KindTransport

	// KindProtocol covers a valid frame with a schema violation or unknown
	// wire version.
	KindProtocol

	// KindTimeout covers a command that did not receive its ack, or a
	// missing keepalive pong.
	KindTimeout

	// KindHelperReported covers a helper-returned success=false report.
	KindHelperReported

	// KindBadDefinition covers a source definition that could not be parsed
	// or that named an unknown driver.
	KindBadDefinition

	// KindUnsupported covers a requested operation the driver does not
	// support.
	KindUnsupported

	// KindCancelled covers an operation aborted because the source is
	// closing.
	KindCancelled

	// KindRemoteDisconnected covers a remote source that lost its transport.
	KindRemoteDisconnected
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindTimeout:
		return "timeout"
	case KindHelperReported:
		return "helper_reported"
	case KindBadDefinition:
		return "bad_definition"
	case KindUnsupported:
		return "unsupported"
	case KindCancelled:
		return "cancelled"
	case KindRemoteDisconnected:
		return "remote_disconnected"
	default:
		return "unknown"
	}
}

// RetryEligible reports whether an error of this kind is eligible for
// auto-reopen per spec §7 — Transport, Timeout, HelperReported (transient)
// and RemoteDisconnected are eligible, but the caller must additionally gate
// RemoteDisconnected on the source not being remote.
func (k Kind) RetryEligible() bool {
	switch k {
	case KindTransport, KindTimeout, KindHelperReported, KindRemoteDisconnected:
		return true
	default:
		return false
	}
}
