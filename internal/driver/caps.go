// Package driver is the driver registry & builder (spec §4.3, component
// C3): it maps driver names to DriverCaps and constructs Source instances
// with their capture-helper wiring pre-populated.
package driver

// Caps mirrors spec §3's DriverCaps.
type Caps struct {
	Name        string
	Description string
	CanProbe    bool
	CanList     bool
	CanLocal    bool
	CanRemote   bool
	CanPassive  bool
	CanTune     bool
	CanHop      bool

	// HelperBinary is the local IPC capture-helper binary name, empty if
	// CanLocal is false.
	HelperBinary string

	// DefaultDLT is the link type this driver reports when none is
	// overridden; OverrideDLT, when non-zero, forces packets from this
	// driver to carry a synthetic DLT regardless of what the helper reports
	// (spec §4.3: "some drivers present a synthetic BTLE radio header").
	DefaultDLT  int
	OverrideDLT int

	// SuppressGPS, when true, means packets from this driver should never
	// be stamped with the GpsTracker's best fix even if the report omits
	// one — used by drivers whose readings are not meaningfully
	// georeferenced (spec §4.3: "parent or pre-open GPS suppression").
	SuppressGPS bool
}
