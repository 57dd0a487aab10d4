package protocol

import "testing"

import "github.com/stretchr/testify/require"

func float64ptr(v float64) *float64 { return &v }
func int8ptr(v int8) *int8          { return &v }

func TestCommandV3Roundtrip(t *testing.T) {
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
		got, kerr := DecodeCommandV3(EncodeCommandV3(c))
		require.Nil(t, kerr)
		require.Equal(t, c.ID, got.ID)
		require.Equal(t, c.Definition, got.Definition)
		require.Equal(t, c.Chan, got.Chan)
		require.Equal(t, c.Hop, got.Hop)
	}
}

func TestReportV3RoundtripProbeAndOpen(t *testing.T) {
	probe := Report{
		ID: RptProbeReport, Result: ResultOK,
		Success: true, Msg: "ok", UUID: "abc-123", Hardware: "ath9k",
		Channels: []string{"1", "6", "11"}, Token: "s3cr3t", Driver: "linuxwifi",
	}
	got, kerr := DecodeReportV3(EncodeReportV3(probe))
	require.Nil(t, kerr)
	require.Equal(t, probe, got)

	open := Report{
		ID: RptOpenReport, Result: ResultOK,
		Success: true, Msg: "opened", UUID: "abc-123", Hardware: "ath9k",
		DLT: 127, CapIface: "wlan0mon", Channels: []string{"6"}, Warning: "",
		Token: "s3cr3t", Driver: "linuxwifi",
	}
	got, kerr = DecodeReportV3(EncodeReportV3(open))
	require.Nil(t, kerr)
	require.Equal(t, open, got)
}

func TestReportV3RoundtripDataWithSignalAndGps(t *testing.T) {
	rep := Report{
		ID: RptDataReport,
		Signal: &Signal{
			DBM: int8ptr(-60), RSSI: int8ptr(-40), FreqKHz: 2437000, Channel: "6",
			DataRate: float64ptr(54.0), Carrier: 1, Encoding: 2,
		},
		GpsFix: &Gps{Lat: 40.0, Lon: -105.0, Alt: float64ptr(1600), Fix: 3, TsSec: 1700000000},
		Data:   DataPayload{DLT: 127, TsSec: 1700000000, TsUsec: 500, Bytes: []byte{0xDE, 0xAD, 0xBE, 0xEF}},
	}
	got, kerr := DecodeReportV3(EncodeReportV3(rep))
	require.Nil(t, kerr)
	require.Equal(t, rep, got)
}

func TestReportV3RoundtripJson(t *testing.T) {
	rep := Report{
		ID:   RptJsonReport,
		JSON: JsonPayload{Schema: "DOT11SCAN", JSON: `{"ssid":"test"}`},
	}
	got, kerr := DecodeReportV3(EncodeReportV3(rep))
	require.Nil(t, kerr)
	require.Equal(t, rep, got)
}

func TestCodecForVersionRejectsUnknown(t *testing.T) {
	_, kerr := CodecForVersion(99)
	require.NotNil(t, kerr)
}

func TestCodecForVersionSelectsV2AndV3(t *testing.T) {
	c3, kerr := CodecForVersion(WireV3)
	require.Nil(t, kerr)
	require.Equal(t, WireV3, c3.Version())

	c2, kerr := CodecForVersion(WireV2)
	require.Nil(t, kerr)
	require.Equal(t, WireV2, c2.Version())
}
