package protocol

import "github.com/kismetwireless/kismet-datasource-core/internal/kiserr"

// Wire version 2: the legacy, self-describing record format still spoken by
// existing capture helpers (spec §4.2). Unlike v3's fixed packed field
// order, every field is tagged [tag:u8][len:u32][value], terminated by
// tagEnd, so a v2 reader can skip fields it does not recognize — the
// property the original protobuf-style encoding gave helpers built against
// older/newer schema revisions. New implementations should target v3; v2 is
// retained purely for interoperability with those existing helpers.
const WireV2 uint8 = 2

const tagEnd uint8 = 0xFF

// Field tags, scoped per message type (reused across message types since
// each decoder only looks for tags it understands).
const (
	tagDefinition uint8 = 1
	tagChannel    uint8 = 2
	tagHopRate    uint8 = 3
	tagHopChans   uint8 = 4
	tagHopOffset  uint8 = 5
	tagHopShuffle uint8 = 6

	tagSuccess  uint8 = 10
	tagMsg      uint8 = 11
	tagUUID     uint8 = 12
	tagHardware uint8 = 13
	tagChannels uint8 = 14
	tagDLT      uint8 = 15
	tagCapIface uint8 = 16
	tagWarning  uint8 = 17
	tagIfaces   uint8 = 18

	tagSignal    uint8 = 20
	tagGps       uint8 = 21
	tagDataDLT   uint8 = 22
	tagTsSec     uint8 = 23
	tagTsUsec    uint8 = 24
	tagDataBytes uint8 = 25
	tagSchema    uint8 = 26
	tagJSON      uint8 = 27

	tagText  uint8 = 30
	tagLevel uint8 = 31

	tagToken  uint8 = 40
	tagDriver uint8 = 41
)

// v2Field is one decoded [tag][value] pair.
type v2Field struct {
	tag   uint8
	value []byte
}

type v2Writer struct{ buf []byte }

func (w *v2Writer) field(tag uint8, value []byte) {
	w.buf = append(w.buf, tag)
	bw := &byteWriter{}
	bw.u32(uint32(len(value)))
	w.buf = append(w.buf, bw.buf...)
	w.buf = append(w.buf, value...)
}

func (w *v2Writer) strField(tag uint8, s string)   { w.field(tag, []byte(s)) }
func (w *v2Writer) u8Field(tag uint8, v uint8)     { w.field(tag, []byte{v}) }
func (w *v2Writer) u32Field(tag uint8, v uint32) {
	bw := &byteWriter{}
	bw.u32(v)
	w.field(tag, bw.buf)
}
func (w *v2Writer) u64Field(tag uint8, v uint64) {
	bw := &byteWriter{}
	bw.u64(v)
	w.field(tag, bw.buf)
}
func (w *v2Writer) boolField(tag uint8, v bool) {
	if v {
		w.u8Field(tag, 1)
	} else {
		w.u8Field(tag, 0)
	}
}
func (w *v2Writer) end() { w.buf = append(w.buf, tagEnd) }

func decodeV2Fields(content []byte) ([]v2Field, *kiserr.Error) {
	var fields []v2Field
	pos := 0
	for {
		if pos >= len(content) {
			return nil, kiserr.New(kiserr.KindProtocol, "v2 record missing terminator")
		}
		tag := content[pos]
		pos++
		if tag == tagEnd {
			return fields, nil
		}
		if pos+4 > len(content) {
			return nil, kiserr.New(kiserr.KindProtocol, "v2 field truncated length")
		}
		r := newByteReader(content[pos : pos+4])
		n, err := r.u32()
		if err != nil {
			return nil, err
		}
		pos += 4
		if pos+int(n) > len(content) {
			return nil, kiserr.New(kiserr.KindProtocol, "v2 field truncated value")
		}
		fields = append(fields, v2Field{tag: tag, value: content[pos : pos+int(n)]})
		pos += int(n)
	}
}

func findField(fields []v2Field, tag uint8) ([]byte, bool) {
	for _, f := range fields {
		if f.tag == tag {
			return f.value, true
		}
	}
	return nil, false
}

func fieldStr(fields []v2Field, tag uint8) string {
	v, _ := findField(fields, tag)
	return string(v)
}

func fieldU32(fields []v2Field, tag uint8) uint32 {
	v, ok := findField(fields, tag)
	if !ok {
		return 0
	}
	r := newByteReader(v)
	n, _ := r.u32()
	return n
}

func fieldU64(fields []v2Field, tag uint8) uint64 {
	v, ok := findField(fields, tag)
	if !ok {
		return 0
	}
	r := newByteReader(v)
	n, _ := r.u64()
	return n
}

func fieldBool(fields []v2Field, tag uint8) bool {
	v, ok := findField(fields, tag)
	return ok && len(v) > 0 && v[0] != 0
}

func EncodeCommandV2(cmd Command) []byte {
	w := &v2Writer{}
	w.u8Field(0, uint8(cmd.ID))
	switch cmd.ID {
	case CmdProbeSource, CmdOpenSource:
		w.strField(tagDefinition, cmd.Definition)
	case CmdConfigureChannel:
		w.strField(tagChannel, cmd.Chan.Channel)
	case CmdConfigureChannelHop:
		writeHopsetV2(w, cmd.Hop)
	}
	w.end()
	return w.buf
}

func writeHopsetV2(w *v2Writer, h Hopset) {
	w.u64Field(tagHopRate, float64bits(h.RateHz))
	joined := &byteWriter{}
	joined.u32(uint32(len(h.Channels)))
	for _, c := range h.Channels {
		joined.str(c)
	}
	w.field(tagHopChans, joined.buf)
	w.u32Field(tagHopOffset, h.Offset)
	w.boolField(tagHopShuffle, h.Shuffle)
}

func readHopsetV2(fields []v2Field) Hopset {
	var h Hopset
	h.RateHz = float64frombits(fieldU64(fields, tagHopRate))
	if raw, ok := findField(fields, tagHopChans); ok {
		r := newByteReader(raw)
		n, _ := r.u32()
		for i := uint32(0); i < n; i++ {
			c, err := r.str()
			if err != nil {
				break
			}
			h.Channels = append(h.Channels, c)
		}
	}
	h.Offset = fieldU32(fields, tagHopOffset)
	h.Shuffle = fieldBool(fields, tagHopShuffle)
	return h
}

func DecodeCommandV2(content []byte) (Command, *kiserr.Error) {
	fields, err := decodeV2Fields(content)
	if err != nil {
		return Command{}, err
	}
	id := CommandID(fieldU32andU8(fields, 0))
	cmd := Command{ID: id}
	switch id {
	case CmdProbeSource, CmdOpenSource:
		cmd.Definition = fieldStr(fields, tagDefinition)
	case CmdConfigureChannel:
		cmd.Chan.Channel = fieldStr(fields, tagChannel)
	case CmdConfigureChannelHop:
		cmd.Hop = readHopsetV2(fields)
	case CmdListInterfaces, CmdPing, CmdShutdown:
	default:
		return cmd, kiserr.New(kiserr.KindProtocol, "unknown v2 command id")
	}
	return cmd, nil
}

// fieldU32andU8 reads the single-byte id field (tag 0) written by u8Field.
func fieldU32andU8(fields []v2Field, tag uint8) uint8 {
	v, ok := findField(fields, tag)
	if !ok || len(v) == 0 {
		return 0
	}
	return v[0]
}

func EncodeReportV2(rep Report) []byte {
	w := &v2Writer{}
	w.u8Field(0, uint8(rep.ID))
	w.u8Field(1, uint8(rep.Result))
	switch rep.ID {
	case RptProbeReport:
		w.boolField(tagSuccess, rep.Success)
		w.strField(tagMsg, rep.Msg)
		w.strField(tagUUID, rep.UUID)
		w.strField(tagHardware, rep.Hardware)
		w.field(tagChannels, encodeStrList(rep.Channels))
		w.strField(tagToken, rep.Token)
		w.strField(tagDriver, rep.Driver)
	case RptInterfacesReport:
		ib := &byteWriter{}
		ib.u32(uint32(len(rep.Interfaces)))
		for _, ie := range rep.Interfaces {
			ib.str(ie.Interface)
			ib.str(ie.Options)
			ib.str(ie.Hardware)
			ib.str(ie.CapInterface)
		}
		w.field(tagIfaces, ib.buf)
	case RptOpenReport:
		w.boolField(tagSuccess, rep.Success)
		w.strField(tagMsg, rep.Msg)
		w.strField(tagUUID, rep.UUID)
		w.strField(tagHardware, rep.Hardware)
		w.u32Field(tagDLT, rep.DLT)
		w.strField(tagCapIface, rep.CapIface)
		w.field(tagChannels, encodeStrList(rep.Channels))
		w.strField(tagWarning, rep.Warning)
		w.strField(tagToken, rep.Token)
		w.strField(tagDriver, rep.Driver)
	case RptConfigureReport:
		w.boolField(tagSuccess, rep.Success)
		w.strField(tagMsg, rep.Msg)
		w.strField(tagChannel, rep.Channel.Channel)
		hb := &v2Writer{}
		writeHopsetV2(hb, rep.HopCfg)
		hb.end()
		w.field(tagHopChans<<1, hb.buf) // distinct nested-record tag namespace
	case RptDataReport:
		writeSignalFieldV2(w, rep.Signal)
		writeGpsFieldV2(w, rep.GpsFix)
		w.u32Field(tagDataDLT, rep.Data.DLT)
		w.u64Field(tagTsSec, rep.Data.TsSec)
		w.u32Field(tagTsUsec, rep.Data.TsUsec)
		w.field(tagDataBytes, rep.Data.Bytes)
	case RptJsonReport:
		writeSignalFieldV2(w, rep.Signal)
		writeGpsFieldV2(w, rep.GpsFix)
		w.strField(tagSchema, rep.JSON.Schema)
		w.strField(tagJSON, rep.JSON.JSON)
	case RptMessage, RptWarning, RptError:
		w.strField(tagText, rep.Text)
		w.u8Field(tagLevel, uint8(rep.Level))
	case RptPong:
	}
	w.end()
	return w.buf
}

func encodeStrList(ss []string) []byte {
	bw := &byteWriter{}
	bw.u32(uint32(len(ss)))
	for _, s := range ss {
		bw.str(s)
	}
	return bw.buf
}

func decodeStrList(b []byte) []string {
	r := newByteReader(b)
	n, err := r.u32()
	if err != nil {
		return nil
	}
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := r.str()
		if err != nil {
			break
		}
		out = append(out, s)
	}
	return out
}

func writeSignalFieldV2(w *v2Writer, s *Signal) {
	if s == nil {
		return
	}
	bw := &byteWriter{}
	writeOptInt8(bw, s.DBM)
	writeOptInt8(bw, s.RSSI)
	writeOptInt8(bw, s.NoiseDBM)
	writeOptInt8(bw, s.NoiseRSSI)
	bw.u64(s.FreqKHz)
	bw.str(s.Channel)
	if s.DataRate != nil {
		bw.boolean(true)
		bw.u64(float64bits(*s.DataRate))
	} else {
		bw.boolean(false)
	}
	bw.u32(uint32(s.Carrier)<<16 | uint32(s.Encoding))
	w.field(tagSignal, bw.buf)
}

func readSignalFieldV2(fields []v2Field) *Signal {
	raw, ok := findField(fields, tagSignal)
	if !ok {
		return nil
	}
	r := newByteReader(raw)
	s := &Signal{}
	var err *kiserr.Error
	if s.DBM, err = readOptInt8(r); err != nil {
		return nil
	}
	if s.RSSI, err = readOptInt8(r); err != nil {
		return nil
	}
	if s.NoiseDBM, err = readOptInt8(r); err != nil {
		return nil
	}
	if s.NoiseRSSI, err = readOptInt8(r); err != nil {
		return nil
	}
	if s.FreqKHz, err = r.u64(); err != nil {
		return nil
	}
	if s.Channel, err = r.str(); err != nil {
		return nil
	}
	hasRate, err := r.boolean()
	if err == nil && hasRate {
		bits, e2 := r.u64()
		if e2 == nil {
			v := float64frombits(bits)
			s.DataRate = &v
		}
	}
	packed, err := r.u32()
	if err == nil {
		s.Carrier = uint16(packed >> 16)
		s.Encoding = uint16(packed & 0xFFFF)
	}
	return s
}

func writeGpsFieldV2(w *v2Writer, g *Gps) {
	if g == nil {
		return
	}
	bw := &byteWriter{}
	bw.u64(float64bits(g.Lat))
	bw.u64(float64bits(g.Lon))
	if g.Alt != nil {
		bw.boolean(true)
		bw.u64(float64bits(*g.Alt))
	} else {
		bw.boolean(false)
	}
	if g.Speed != nil {
		bw.boolean(true)
		bw.u64(float64bits(*g.Speed))
	} else {
		bw.boolean(false)
	}
	bw.u8(g.Fix)
	bw.u64(g.TsSec)
	bw.u32(g.TsUsec)
	w.field(tagGps, bw.buf)
}

func readGpsFieldV2(fields []v2Field) *Gps {
	raw, ok := findField(fields, tagGps)
	if !ok {
		return nil
	}
	r := newByteReader(raw)
	g := &Gps{}
	bits, err := r.u64()
	if err != nil {
		return nil
	}
	g.Lat = float64frombits(bits)
	if bits, err = r.u64(); err != nil {
		return nil
	}
	g.Lon = float64frombits(bits)
	hasAlt, err := r.boolean()
	if err == nil && hasAlt {
		if bits, err = r.u64(); err == nil {
			v := float64frombits(bits)
			g.Alt = &v
		}
	}
	hasSpeed, err := r.boolean()
	if err == nil && hasSpeed {
		if bits, err = r.u64(); err == nil {
			v := float64frombits(bits)
			g.Speed = &v
		}
	}
	if g.Fix, err = r.u8(); err != nil {
		return nil
	}
	if g.TsSec, err = r.u64(); err != nil {
		return nil
	}
	if g.TsUsec, err = r.u32(); err != nil {
		return nil
	}
	return g
}

func DecodeReportV2(content []byte) (Report, *kiserr.Error) {
	fields, err := decodeV2Fields(content)
	if err != nil {
		return Report{}, err
	}
	id := ReportID(fieldU32andU8(fields, 0))
	result := ResultCode(fieldU32andU8(fields, 1))
	rep := Report{ID: id, Result: result}
	switch id {
	case RptProbeReport:
		rep.Success = fieldBool(fields, tagSuccess)
		rep.Msg = fieldStr(fields, tagMsg)
		rep.UUID = fieldStr(fields, tagUUID)
		rep.Hardware = fieldStr(fields, tagHardware)
		if raw, ok := findField(fields, tagChannels); ok {
			rep.Channels = decodeStrList(raw)
		}
		rep.Token = fieldStr(fields, tagToken)
		rep.Driver = fieldStr(fields, tagDriver)
	case RptInterfacesReport:
		if raw, ok := findField(fields, tagIfaces); ok {
			r := newByteReader(raw)
			n, _ := r.u32()
			for i := uint32(0); i < n; i++ {
				var ie InterfaceEntry
				ie.Interface, _ = r.str()
				ie.Options, _ = r.str()
				ie.Hardware, _ = r.str()
				ie.CapInterface, _ = r.str()
				rep.Interfaces = append(rep.Interfaces, ie)
			}
		}
	case RptOpenReport:
		rep.Success = fieldBool(fields, tagSuccess)
		rep.Msg = fieldStr(fields, tagMsg)
		rep.UUID = fieldStr(fields, tagUUID)
		rep.Hardware = fieldStr(fields, tagHardware)
		rep.DLT = fieldU32(fields, tagDLT)
		rep.CapIface = fieldStr(fields, tagCapIface)
		if raw, ok := findField(fields, tagChannels); ok {
			rep.Channels = decodeStrList(raw)
		}
		rep.Warning = fieldStr(fields, tagWarning)
		rep.Token = fieldStr(fields, tagToken)
		rep.Driver = fieldStr(fields, tagDriver)
	case RptConfigureReport:
		rep.Success = fieldBool(fields, tagSuccess)
		rep.Msg = fieldStr(fields, tagMsg)
		rep.Channel.Channel = fieldStr(fields, tagChannel)
		if raw, ok := findField(fields, tagHopChans<<1); ok {
			hf, herr := decodeV2Fields(raw)
			if herr == nil {
				rep.HopCfg = readHopsetV2(hf)
			}
		}
	case RptDataReport:
		rep.Signal = readSignalFieldV2(fields)
		rep.GpsFix = readGpsFieldV2(fields)
		rep.Data.DLT = fieldU32(fields, tagDataDLT)
		rep.Data.TsSec = fieldU64(fields, tagTsSec)
		rep.Data.TsUsec = fieldU32(fields, tagTsUsec)
		if raw, ok := findField(fields, tagDataBytes); ok {
			rep.Data.Bytes = raw
		}
	case RptJsonReport:
		rep.Signal = readSignalFieldV2(fields)
		rep.GpsFix = readGpsFieldV2(fields)
		rep.JSON.Schema = fieldStr(fields, tagSchema)
		rep.JSON.JSON = fieldStr(fields, tagJSON)
	case RptMessage, RptWarning, RptError:
		rep.Text = fieldStr(fields, tagText)
		rep.Level = MessageLevel(fieldU32andU8(fields, tagLevel))
	case RptPong:
	default:
		return rep, kiserr.New(kiserr.KindProtocol, "unknown v2 report id")
	}
	return rep, nil
}
