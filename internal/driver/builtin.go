package driver

import "github.com/kismetwireless/kismet-datasource-core/internal/dlt"

// genericBuilder is a Caps-driven Builder with no further per-driver state,
// covering the common case where a driver only needs its capability
// declaration and helper argv. Drivers whose DecapFrame does real work
// (e.g. a BTLE radio-header translator) embed genericBuilder and override
// it.
type genericBuilder struct {
	caps Caps
}

func (g genericBuilder) Caps() Caps { return g.caps }

func (g genericBuilder) HelperArgs(definition string) []string {
	return []string{"--source=" + definition}
}

func (g genericBuilder) DecapFrame(linkFrame []byte) []byte { return nil }

// RegisterBuiltins populates reg with the stock drivers the original
// implementation ships (original_source/datasource_*.h), each reduced to
// its capability surface since concrete per-phy dissection is out of scope
// (spec §1).
func RegisterBuiltins(reg *Registry, dlts *dlt.Registry) {
	reg.Register(genericBuilder{caps: Caps{
		Name:         "linuxwifi",
		Description:  "Linux native Wi-Fi capture via netlink/mac80211",
		CanProbe:     true,
		CanList:      true,
		CanLocal:     true,
		CanRemote:    true,
		CanTune:      true,
		CanHop:       true,
		HelperBinary: "kismet_cap_linux_wifi",
		DefaultDLT:   dlt.DLTRadiotap,
	}})

	reg.Register(genericBuilder{caps: Caps{
		Name:         "bladerf_wiphy",
		Description:  "bladeRF SDR synthesized Wi-Fi capture",
		CanProbe:     true,
		CanLocal:     true,
		CanRemote:    true,
		CanTune:      true,
		CanHop:       true,
		HelperBinary: "kismet_cap_bladerf_wiphy",
		DefaultDLT:   dlt.DLTRadiotap,
	}})

	btleDLT := 256 // synthetic BTLE radio header DLT, registered below
	dlts.Register(btleDLT, "BLUETOOTH_LE_LL_WITH_PHDR")
	reg.Register(nrfBuilder{genericBuilder{caps: Caps{
		Name:         "nrf_52840",
		Description:  "Nordic nRF52840 BTLE sniffer",
		CanProbe:     true,
		CanLocal:     true,
		CanTune:      true,
		HelperBinary: "kismet_cap_nrf_52840",
		DefaultDLT:   btleDLT,
		OverrideDLT:  btleDLT,
	}}})

	reg.Register(genericBuilder{caps: Caps{
		Name:         "ti_cc_2531",
		Description:  "TI CC2531 Zigbee/802.15.4 sniffer",
		CanProbe:     true,
		CanLocal:     true,
		CanTune:      true,
		HelperBinary: "kismet_cap_ti_cc_2531",
		DefaultDLT:   195, // DLT_IEEE802_15_4
	}})

	reg.Register(genericBuilder{caps: Caps{
		Name:         "rtladsb",
		Description:  "RTL-SDR ADS-B receiver",
		CanProbe:     true,
		CanLocal:     true,
		CanPassive:   true,
		HelperBinary: "kismet_cap_rtladsb",
		DefaultDLT:   dlt.DLTUnknown, // scan/JSON-only, no link_frame
	}})

	reg.Register(genericBuilder{caps: Caps{
		Name:         "radiacode",
		Description:  "RadiaCode radiation sensor",
		CanProbe:     true,
		CanLocal:     true,
		CanPassive:   true,
		HelperBinary: "kismet_cap_radiacode",
		DefaultDLT:   dlt.DLTUnknown,
	}})

	reg.Register(genericBuilder{caps: Caps{
		Name:        "virtual",
		Description: "Virtual provenance source for externally-submitted scan reports",
		CanRemote:   false,
		DefaultDLT:  dlt.DLTKismetScan,
		OverrideDLT: dlt.DLTKismetScan,
	}})
}

// nrfBuilder overrides DecapFrame to strip the capture helper's raw nRF
// sniffer header down to the BTLE link-layer PDU before the radio header is
// re-synthesized downstream, mirroring the original's per-driver
// handle_rx_datalayer hook (spec §4.3, §9).
type nrfBuilder struct {
	genericBuilder
}

const nrfHeaderLen = 6

func (nrfBuilder) DecapFrame(linkFrame []byte) []byte {
	if len(linkFrame) <= nrfHeaderLen {
		return nil
	}
	chunk := make([]byte, len(linkFrame)-nrfHeaderLen)
	copy(chunk, linkFrame[nrfHeaderLen:])
	return chunk
}
