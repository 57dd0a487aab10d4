package source

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveUUIDDeterministicAndShaped(t *testing.T) {
	a := DeriveUUID("linuxwifi", "wlan0")
	b := DeriveUUID("linuxwifi", "wlan0")
	require.Equal(t, a, b, "same driver/interface must derive the same uuid")

	c := DeriveUUID("linuxwifi", "wlan1")
	require.NotEqual(t, a, c, "different interfaces must derive different uuids")

	require.Len(t, a, 36)
	require.Equal(t, byte('4'), a[14], "version nibble must be pinned to 4")
	require.Contains(t, "89ab", string(a[19]), "variant bits must be pinned to RFC 4122's 10xx")
}

func TestKeyDeterministic(t *testing.T) {
	uuid := DeriveUUID("linuxwifi", "wlan0")
	require.Equal(t, Key(uuid), Key(uuid))
	require.NotEqual(t, Key(uuid), Key(DeriveUUID("linuxwifi", "wlan1")))
}
