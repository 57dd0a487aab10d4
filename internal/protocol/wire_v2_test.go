package protocol

import "testing"

import "github.com/stretchr/testify/require"

func TestCommandV2Roundtrip(t *testing.T) {
	cases := []Command{
		{ID: CmdProbeSource, Definition: "wlan0:type=linuxwifi"},
		{ID: CmdOpenSource, Definition: "wlan0"},
		{ID: CmdListInterfaces},
		{ID: CmdPing},
		{ID: CmdShutdown},
		{ID: CmdConfigureChannel, Chan: Chanset{Channel: "6HT40+"}},
		{ID: CmdConfigureChannelHop, Hop: Hopset{RateHz: 5, Channels: []string{"1", "6", "11"}, Offset: 2, Shuffle: true}},
	}
	for _, c := range cases {
		got, kerr := DecodeCommandV2(EncodeCommandV2(c))
		require.Nil(t, kerr)
		require.Equal(t, c.ID, got.ID)
		require.Equal(t, c.Definition, got.Definition)
		require.Equal(t, c.Chan, got.Chan)
		require.Equal(t, c.Hop, got.Hop)
	}
}

func TestReportV2RoundtripProbeAndOpenCarryTokenAndDriver(t *testing.T) {
	probe := Report{
		ID: RptProbeReport, Result: ResultOK,
		Success: true, Msg: "ok", UUID: "abc-123", Hardware: "ath9k",
		Channels: []string{"1", "6", "11"}, Token: "s3cr3t", Driver: "linuxwifi",
	}
	got, kerr := DecodeReportV2(EncodeReportV2(probe))
	require.Nil(t, kerr)
	require.Equal(t, probe, got)

	open := Report{
		ID: RptOpenReport, Result: ResultOK,
		Success: true, Msg: "opened", UUID: "abc-123", Hardware: "ath9k",
		DLT: 127, CapIface: "wlan0mon", Channels: []string{"6"},
		Token: "s3cr3t", Driver: "linuxwifi",
	}
	got, kerr = DecodeReportV2(EncodeReportV2(open))
	require.Nil(t, kerr)
	require.Equal(t, open, got)
}

func TestReportV2RoundtripConfigureReportNestedHopset(t *testing.T) {
	rep := Report{
		ID: RptConfigureReport, Result: ResultOK, Success: true, Msg: "configured",
		Channel: Chanset{Channel: "11"},
		HopCfg:  Hopset{RateHz: 3, Channels: []string{"1", "6"}, Offset: 1, Shuffle: false},
	}
	got, kerr := DecodeReportV2(EncodeReportV2(rep))
	require.Nil(t, kerr)
	require.Equal(t, rep, got)
}

func TestReportV2RoundtripDataWithSignalAndGps(t *testing.T) {
	rep := Report{
		ID: RptDataReport,
		Signal: &Signal{
			DBM: int8ptr(-60), RSSI: int8ptr(-40), FreqKHz: 2437000, Channel: "6",
			DataRate: float64ptr(54.0), Carrier: 1, Encoding: 2,
		},
		GpsFix: &Gps{Lat: 40.0, Lon: -105.0, Alt: float64ptr(1600), Fix: 3, TsSec: 1700000000},
		Data:   DataPayload{DLT: 127, TsSec: 1700000000, TsUsec: 500, Bytes: []byte{0xDE, 0xAD, 0xBE, 0xEF}},
	}
	got, kerr := DecodeReportV2(EncodeReportV2(rep))
	require.Nil(t, kerr)
	require.Equal(t, rep, got)
}

func TestReportV2RoundtripJson(t *testing.T) {
	rep := Report{
		ID:   RptJsonReport,
		JSON: JsonPayload{Schema: "DOT11SCAN", JSON: `{"ssid":"test"}`},
	}
	got, kerr := DecodeReportV2(EncodeReportV2(rep))
	require.Nil(t, kerr)
	require.Equal(t, rep, got)
}

func TestDecodeReportV2RejectsMissingTerminator(t *testing.T) {
	_, kerr := DecodeReportV2([]byte{uint8(RptPong)})
	require.NotNil(t, kerr)
}

func TestDecodeReportV2RejectsUnknownID(t *testing.T) {
	w := &v2Writer{}
	w.u8Field(0, 200)
	w.u8Field(1, uint8(ResultOK))
	w.end()
	_, kerr := DecodeReportV2(w.buf)
	require.NotNil(t, kerr)
}
