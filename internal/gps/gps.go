// Package gps defines the collaborator interface the data source core uses
// to fetch the "best current fix" for packets whose helper did not attach
// its own GPS sub-record (spec §4.6 step 5). Concrete GPS acquisition
// (serial NMEA, gpsd, network GPS) is out of scope (spec §1); this package
// only specifies the shape and ships a no-op implementation for
// environments with no GPS collaborator configured.
package gps

// Fix mirrors the wire Gps sub-record (spec §6.2).
type Fix struct {
	Lat      float64
	Lon      float64
	Alt      *float64
	Speed    *float64
	FixType  uint8 // 0 = no fix, 2 = 2D, 3 = 3D
	TimeSec  uint64
	TimeUsec uint32
}

// Tracker is implemented by the external GPS collaborator.
type Tracker interface {
	// BestFix returns the best current fix, or ok=false if none is
	// available.
	BestFix() (fix Fix, ok bool)
}

// NullTracker never has a fix; it is the default when no GPS collaborator
// is wired in.
type NullTracker struct{}

func (NullTracker) BestFix() (Fix, bool) { return Fix{}, false }
