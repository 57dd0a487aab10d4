package protocol

import "github.com/kismetwireless/kismet-datasource-core/internal/kiserr"

// Wire version 3: compact, packed, length-prefixed records in a fixed field
// order per command/report ID. New implementations target v3 (spec §4.2).
// seqno is carried in the outer Frame header (spec §4.1), not duplicated
// inside the envelope payload.

const WireV3 uint8 = 3

func EncodeCommandV3(cmd Command) []byte {
	w := &byteWriter{}
	w.u8(uint8(cmd.ID))
	switch cmd.ID {
	case CmdProbeSource, CmdOpenSource:
		w.str(cmd.Definition)
	case CmdConfigureChannel:
		w.str(cmd.Chan.Channel)
	case CmdConfigureChannelHop:
		writeHopsetV3(w, cmd.Hop)
	case CmdListInterfaces, CmdPing, CmdShutdown:
		// no payload
	}
	return w.buf
}

func writeHopsetV3(w *byteWriter, h Hopset) {
	var rateBits [8]byte
	_ = rateBits
	w.u64(float64bits(h.RateHz))
	w.u32(uint32(len(h.Channels)))
	for _, c := range h.Channels {
		w.str(c)
	}
	w.u32(h.Offset)
	w.boolean(h.Shuffle)
}

func readHopsetV3(r *byteReader) (Hopset, *kiserr.Error) {
	var h Hopset
	bits, err := r.u64()
	if err != nil {
		return h, err
	}
	h.RateHz = float64frombits(bits)
	n, err := r.u32()
	if err != nil {
		return h, err
	}
	h.Channels = make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		c, err := r.str()
		if err != nil {
			return h, err
		}
		h.Channels = append(h.Channels, c)
	}
	if h.Offset, err = r.u32(); err != nil {
		return h, err
	}
	if h.Shuffle, err = r.boolean(); err != nil {
		return h, err
	}
	return h, nil
}

func DecodeCommandV3(content []byte) (Command, *kiserr.Error) {
	r := newByteReader(content)
	idRaw, err := r.u8()
	if err != nil {
		return Command{}, err
	}
	cmd := Command{ID: CommandID(idRaw)}
	switch cmd.ID {
	case CmdProbeSource, CmdOpenSource:
		if cmd.Definition, err = r.str(); err != nil {
			return cmd, err
		}
	case CmdConfigureChannel:
		if cmd.Chan.Channel, err = r.str(); err != nil {
			return cmd, err
		}
	case CmdConfigureChannelHop:
		if cmd.Hop, err = readHopsetV3(r); err != nil {
			return cmd, err
		}
	case CmdListInterfaces, CmdPing, CmdShutdown:
	default:
		return cmd, kiserr.New(kiserr.KindProtocol, "unknown command id")
	}
	return cmd, nil
}

func EncodeReportV3(rep Report) []byte {
	w := &byteWriter{}
	w.u8(uint8(rep.ID))
	w.u8(uint8(rep.Result))
	switch rep.ID {
	case RptProbeReport:
		w.boolean(rep.Success)
		w.str(rep.Msg)
		w.str(rep.UUID)
		w.str(rep.Hardware)
		w.u32(uint32(len(rep.Channels)))
		for _, c := range rep.Channels {
			w.str(c)
		}
		w.str(rep.Token)
		w.str(rep.Driver)
	case RptInterfacesReport:
		w.u32(uint32(len(rep.Interfaces)))
		for _, ie := range rep.Interfaces {
			w.str(ie.Interface)
			w.str(ie.Options)
			w.str(ie.Hardware)
			w.str(ie.CapInterface)
		}
	case RptOpenReport:
		w.boolean(rep.Success)
		w.str(rep.Msg)
		w.str(rep.UUID)
		w.str(rep.Hardware)
		w.u32(rep.DLT)
		w.str(rep.CapIface)
		w.u32(uint32(len(rep.Channels)))
		for _, c := range rep.Channels {
			w.str(c)
		}
		w.str(rep.Warning)
		w.str(rep.Token)
		w.str(rep.Driver)
	case RptConfigureReport:
		w.boolean(rep.Success)
		w.str(rep.Msg)
		w.str(rep.Channel.Channel)
		writeHopsetV3(w, rep.HopCfg)
	case RptDataReport:
		writeSignalV3(w, rep.Signal)
		writeGpsV3(w, rep.GpsFix)
		w.u32(rep.Data.DLT)
		w.u64(rep.Data.TsSec)
		w.u32(rep.Data.TsUsec)
		w.bytes(rep.Data.Bytes)
	case RptJsonReport:
		writeSignalV3(w, rep.Signal)
		writeGpsV3(w, rep.GpsFix)
		w.str(rep.JSON.Schema)
		w.str(rep.JSON.JSON)
	case RptMessage, RptWarning, RptError:
		w.str(rep.Text)
		w.u8(uint8(rep.Level))
	case RptPong:
	}
	return w.buf
}

func writeSignalV3(w *byteWriter, s *Signal) {
	if s == nil {
		w.boolean(false)
		return
	}
	w.boolean(true)
	writeOptInt8(w, s.DBM)
	writeOptInt8(w, s.RSSI)
	writeOptInt8(w, s.NoiseDBM)
	writeOptInt8(w, s.NoiseRSSI)
	w.u64(s.FreqKHz)
	w.str(s.Channel)
	if s.DataRate != nil {
		w.boolean(true)
		w.u64(float64bits(*s.DataRate))
	} else {
		w.boolean(false)
	}
	w.u32(uint32(s.Carrier)<<16 | uint32(s.Encoding))
}

func readSignalV3(r *byteReader) (*Signal, *kiserr.Error) {
	present, err := r.boolean()
	if err != nil || !present {
		return nil, err
	}
	s := &Signal{}
	if s.DBM, err = readOptInt8(r); err != nil {
		return nil, err
	}
	if s.RSSI, err = readOptInt8(r); err != nil {
		return nil, err
	}
	if s.NoiseDBM, err = readOptInt8(r); err != nil {
		return nil, err
	}
	if s.NoiseRSSI, err = readOptInt8(r); err != nil {
		return nil, err
	}
	if s.FreqKHz, err = r.u64(); err != nil {
		return nil, err
	}
	if s.Channel, err = r.str(); err != nil {
		return nil, err
	}
	hasRate, err := r.boolean()
	if err != nil {
		return nil, err
	}
	if hasRate {
		bits, err := r.u64()
		if err != nil {
			return nil, err
		}
		v := float64frombits(bits)
		s.DataRate = &v
	}
	packed, err := r.u32()
	if err != nil {
		return nil, err
	}
	s.Carrier = uint16(packed >> 16)
	s.Encoding = uint16(packed & 0xFFFF)
	return s, nil
}

func writeGpsV3(w *byteWriter, g *Gps) {
	if g == nil {
		w.boolean(false)
		return
	}
	w.boolean(true)
	w.u64(float64bits(g.Lat))
	w.u64(float64bits(g.Lon))
	if g.Alt != nil {
		w.boolean(true)
		w.u64(float64bits(*g.Alt))
	} else {
		w.boolean(false)
	}
	if g.Speed != nil {
		w.boolean(true)
		w.u64(float64bits(*g.Speed))
	} else {
		w.boolean(false)
	}
	w.u8(g.Fix)
	w.u64(g.TsSec)
	w.u32(g.TsUsec)
}

func readGpsV3(r *byteReader) (*Gps, *kiserr.Error) {
	present, err := r.boolean()
	if err != nil || !present {
		return nil, err
	}
	g := &Gps{}
	var bits uint64
	if bits, err = r.u64(); err != nil {
		return nil, err
	}
	g.Lat = float64frombits(bits)
	if bits, err = r.u64(); err != nil {
		return nil, err
	}
	g.Lon = float64frombits(bits)
	hasAlt, err := r.boolean()
	if err != nil {
		return nil, err
	}
	if hasAlt {
		if bits, err = r.u64(); err != nil {
			return nil, err
		}
		v := float64frombits(bits)
		g.Alt = &v
	}
	hasSpeed, err := r.boolean()
	if err != nil {
		return nil, err
	}
	if hasSpeed {
		if bits, err = r.u64(); err != nil {
			return nil, err
		}
		v := float64frombits(bits)
		g.Speed = &v
	}
	if g.Fix, err = r.u8(); err != nil {
		return nil, err
	}
	if g.TsSec, err = r.u64(); err != nil {
		return nil, err
	}
	if g.TsUsec, err = r.u32(); err != nil {
		return nil, err
	}
	return g, nil
}

func writeOptInt8(w *byteWriter, v *int8) {
	if v == nil {
		w.boolean(false)
		return
	}
	w.boolean(true)
	w.u8(uint8(*v))
}

func readOptInt8(r *byteReader) (*int8, *kiserr.Error) {
	present, err := r.boolean()
	if err != nil || !present {
		return nil, err
	}
	raw, err := r.u8()
	if err != nil {
		return nil, err
	}
	v := int8(raw)
	return &v, nil
}

func DecodeReportV3(content []byte) (Report, *kiserr.Error) {
	r := newByteReader(content)
	idRaw, err := r.u8()
	if err != nil {
		return Report{}, err
	}
	resultRaw, err := r.u8()
	if err != nil {
		return Report{}, err
	}
	rep := Report{ID: ReportID(idRaw), Result: ResultCode(resultRaw)}
	switch rep.ID {
	case RptProbeReport:
		if rep.Success, err = r.boolean(); err != nil {
			return rep, err
		}
		if rep.Msg, err = r.str(); err != nil {
			return rep, err
		}
		if rep.UUID, err = r.str(); err != nil {
			return rep, err
		}
		if rep.Hardware, err = r.str(); err != nil {
			return rep, err
		}
		n, err2 := r.u32()
		if err2 != nil {
			return rep, err2
		}
		for i := uint32(0); i < n; i++ {
			c, e := r.str()
			if e != nil {
				return rep, e
			}
			rep.Channels = append(rep.Channels, c)
		}
		if rep.Token, err = r.str(); err != nil {
			return rep, err
		}
		if rep.Driver, err = r.str(); err != nil {
			return rep, err
		}
	case RptInterfacesReport:
		n, err2 := r.u32()
		if err2 != nil {
			return rep, err2
		}
		for i := uint32(0); i < n; i++ {
			var ie InterfaceEntry
			if ie.Interface, err = r.str(); err != nil {
				return rep, err
			}
			if ie.Options, err = r.str(); err != nil {
				return rep, err
			}
			if ie.Hardware, err = r.str(); err != nil {
				return rep, err
			}
			if ie.CapInterface, err = r.str(); err != nil {
				return rep, err
			}
			rep.Interfaces = append(rep.Interfaces, ie)
		}
	case RptOpenReport:
		if rep.Success, err = r.boolean(); err != nil {
			return rep, err
		}
		if rep.Msg, err = r.str(); err != nil {
			return rep, err
		}
		if rep.UUID, err = r.str(); err != nil {
			return rep, err
		}
		if rep.Hardware, err = r.str(); err != nil {
			return rep, err
		}
		if rep.DLT, err = r.u32(); err != nil {
			return rep, err
		}
		if rep.CapIface, err = r.str(); err != nil {
			return rep, err
		}
		n, err2 := r.u32()
		if err2 != nil {
			return rep, err2
		}
		for i := uint32(0); i < n; i++ {
			c, e := r.str()
			if e != nil {
				return rep, e
			}
			rep.Channels = append(rep.Channels, c)
		}
		if rep.Warning, err = r.str(); err != nil {
			return rep, err
		}
		if rep.Token, err = r.str(); err != nil {
			return rep, err
		}
		if rep.Driver, err = r.str(); err != nil {
			return rep, err
		}
	case RptConfigureReport:
		if rep.Success, err = r.boolean(); err != nil {
			return rep, err
		}
		if rep.Msg, err = r.str(); err != nil {
			return rep, err
		}
		if rep.Channel.Channel, err = r.str(); err != nil {
			return rep, err
		}
		if rep.HopCfg, err = readHopsetV3(r); err != nil {
			return rep, err
		}
	case RptDataReport:
		if rep.Signal, err = readSignalV3(r); err != nil {
			return rep, err
		}
		if rep.GpsFix, err = readGpsV3(r); err != nil {
			return rep, err
		}
		if rep.Data.DLT, err = r.u32(); err != nil {
			return rep, err
		}
		if rep.Data.TsSec, err = r.u64(); err != nil {
			return rep, err
		}
		if rep.Data.TsUsec, err = r.u32(); err != nil {
			return rep, err
		}
		if rep.Data.Bytes, err = r.bytes(); err != nil {
			return rep, err
		}
	case RptJsonReport:
		if rep.Signal, err = readSignalV3(r); err != nil {
			return rep, err
		}
		if rep.GpsFix, err = readGpsV3(r); err != nil {
			return rep, err
		}
		if rep.JSON.Schema, err = r.str(); err != nil {
			return rep, err
		}
		if rep.JSON.JSON, err = r.str(); err != nil {
			return rep, err
		}
	case RptMessage, RptWarning, RptError:
		if rep.Text, err = r.str(); err != nil {
			return rep, err
		}
		lvl, e := r.u8()
		if e != nil {
			return rep, e
		}
		rep.Level = MessageLevel(lvl)
	case RptPong:
	default:
		return rep, kiserr.New(kiserr.KindProtocol, "unknown report id")
	}
	return rep, nil
}
