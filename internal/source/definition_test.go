package source

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kismetwireless/kismet-datasource-core/internal/kiserr"
)

func TestParseDefinitionRoundtrip(t *testing.T) {
	cases := []string{
		"wlan0",
		"wlan0:type=linuxwifi,name=mon0,hop=true,hop_rate=5,channels=1;6;11",
		"wlan0:type=linuxwifi,uuid=dead-beef,retry=false,split=true,shuffle=true,offset=2",
	}
	for _, raw := range cases {
		d, kerr := ParseDefinition(raw)
		require.Nil(t, kerr)
		require.Equal(t, raw, d.Format(), "parse(format(defn)) must equal defn")
	}
}

func TestParseDefinitionRejectsEmptyAndMissingInterface(t *testing.T) {
	_, kerr := ParseDefinition("")
	require.NotNil(t, kerr)

	_, kerr = ParseDefinition(":type=linuxwifi")
	require.NotNil(t, kerr)
}

func TestParseDefinitionRejectsConflictingFilters(t *testing.T) {
	_, kerr := ParseDefinition("wlan0:filter_locals=true,filter_interface=eth0")
	require.NotNil(t, kerr)
	require.Equal(t, kiserr.KindBadDefinition, kerr.Kind)
}

func TestParseDefinitionFields(t *testing.T) {
	d, kerr := ParseDefinition("wlan0:type=linuxwifi,name=mon0,channel=6HT40+,hop=false")
	require.Nil(t, kerr)
	require.Equal(t, "wlan0", d.Interface)
	require.Equal(t, "linuxwifi", d.Type)
	require.Equal(t, "mon0", d.Name)
	require.Equal(t, "6HT40+", d.Channel)
	require.True(t, d.HopSet)
	require.False(t, d.Hop)
}
