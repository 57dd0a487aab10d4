// Package dlt is the process-scoped registry mapping data-link-type numbers
// to human names, grounded on the original implementation's dlttracker.h.
// The data source core only needs to validate and label DLTs; the actual
// per-phy dissection is out of scope (spec §1).
package dlt

import "sync"

// Well-known DLTs the core itself reasons about; drivers may register more
// at startup (e.g. a synthetic BTLE radio header DLT).
const (
	DLTEN10MB    = 1   // Ethernet
	DLTIEEE80211 = 105 // raw 802.11
	DLTRadiotap  = 127 // radiotap + 802.11
	DLTPPI       = 192 // Per-Packet Information header
	DLTUnknown   = 0

	// DLTKismetScan is the synthetic link type stamped on packets injected
	// by the virtual/scan-report source (spec §4.8 scenario 5: "dlt=synthetic").
	// It has no on-wire analogue; it only labels provenance.
	DLTKismetScan = 900
)

type Registry struct {
	mu    sync.RWMutex
	names map[int]string
}

func NewRegistry() *Registry {
	r := &Registry{names: map[int]string{
		DLTEN10MB:    "EN10MB",
		DLTIEEE80211: "IEEE802_11",
		DLTRadiotap:  "IEEE802_11_RADIO",
		DLTPPI:        "PPI",
		DLTKismetScan: "KISMET_SCAN_REPORT",
	}}
	return r
}

// Register adds or overrides a DLT name, used by drivers that present a
// synthetic link type (e.g. a BTLE radio header).
func (r *Registry) Register(dlt int, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names[dlt] = name
}

// Name returns the registered name for dlt, or "DLT_UNKNOWN" if unregistered.
// Unknown DLTs are never rejected: the core forwards raw frames with
// whatever link type the driver declares (spec §1).
func (r *Registry) Name(dlt int) string {
	name, ok := r.Lookup(dlt)
	if !ok {
		return "DLT_UNKNOWN"
	}
	return name
}

// Lookup reports whether dlt is a known value and its name, used by
// internal/fanin to flag (without rejecting) a driver's declared DLT when
// it isn't one of the table's known values.
func (r *Registry) Lookup(dlt int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.names[dlt]
	return name, ok
}
