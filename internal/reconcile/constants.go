package reconcile

import "time"

// Pass-to-pass timing knobs. Expressed as time.Duration rather than the
// raw decisecond counts a C client library would use, since Go has no
// reason to shave off the time package's precision.
const (
	// ScanGateDelay is the minimum time a directory must sit with
	// ScanAgain raised before a fresh scan is issued for it, so a
	// burst of filesystem events collapses into one scan instead of
	// one per event.
	ScanGateDelay = 2 * time.Second

	// ScanningDelay is the revisit interval for a directory whose scan
	// is still outstanding. RecursiveSync does not read it: such a
	// directory reports itself unsettled and is revisited on the
	// caller's next pass.
	ScanningDelay = 500 * time.Millisecond

	// ExtraScanningDelay is the longer revisit interval for a directory
	// whose scan has been outstanding long enough to suspect the worker
	// pool is backed up. Nothing in this package reads it.
	ExtraScanningDelay = 15 * time.Second

	// FileUpdateDelay and FileUpdateMaxDelay carry the same values as
	// movedetect.FileUpdateDelay / FileUpdateMaxDelay. Nothing in this
	// package reads them; movedetect.Detector applies its own copies.
	FileUpdateDelay    = 3 * time.Second
	FileUpdateMaxDelay = 60 * time.Second
)
