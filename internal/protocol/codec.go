package protocol

import "github.com/kismetwireless/kismet-datasource-core/internal/kiserr"

// Codec encodes/decodes the command/report envelopes for one wire version.
// The engine selects a Codec once per transport based on the version
// advertised in the helper's handshake frame (spec §4.2).
type Codec interface {
	Version() uint8
	EncodeCommand(Command) []byte
	DecodeCommand([]byte) (Command, *kiserr.Error)
	EncodeReport(Report) []byte
	DecodeReport([]byte) (Report, *kiserr.Error)
}

type codecV3 struct{}

func (codecV3) Version() uint8                                    { return WireV3 }
func (codecV3) EncodeCommand(c Command) []byte                    { return EncodeCommandV3(c) }
func (codecV3) DecodeCommand(b []byte) (Command, *kiserr.Error)    { return DecodeCommandV3(b) }
func (codecV3) EncodeReport(r Report) []byte                      { return EncodeReportV3(r) }
func (codecV3) DecodeReport(b []byte) (Report, *kiserr.Error)      { return DecodeReportV3(b) }

type codecV2 struct{}

func (codecV2) Version() uint8                                 { return WireV2 }
func (codecV2) EncodeCommand(c Command) []byte                 { return EncodeCommandV2(c) }
func (codecV2) DecodeCommand(b []byte) (Command, *kiserr.Error) { return DecodeCommandV2(b) }
func (codecV2) EncodeReport(r Report) []byte                    { return EncodeReportV2(r) }
func (codecV2) DecodeReport(b []byte) (Report, *kiserr.Error)   { return DecodeReportV2(b) }

// CodecForVersion resolves a wire version byte (as declared in a frame
// header) to its Codec. Both v2 and v3 must be accepted on read (spec
// §4.2); an unrecognized version is a Protocol error.
func CodecForVersion(version uint8) (Codec, *kiserr.Error) {
	switch version {
	case WireV3:
		return codecV3{}, nil
	case WireV2:
		return codecV2{}, nil
	default:
		return nil, kiserr.New(kiserr.KindProtocol, "unsupported wire version")
	}
}
