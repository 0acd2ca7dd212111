package vmi

import "sync/atomic"

// Metrics are per-process counters instrumenting registry activity,
// adapted from the teacher's package-level atomic counters (metrics.go in
// the teacher repo) to the registry's own operations rather than VM/vCPU
// lifecycle events.
type Metrics struct {
	RegRegistrations    uint64 `json:"reg_registrations"`
	IntrRegistrations   uint64 `json:"intr_registrations"`
	MemRegistrations    uint64 `json:"mem_registrations"`
	StepRegistrations   uint64 `json:"step_registrations"`
	Clears              uint64 `json:"clears"`
	DriverRejections    uint64 `json:"driver_rejections"`
	MaskInvalids        uint64 `json:"mask_invalids"`
	StepReregistrations uint64 `json:"step_reregistrations"`
}

var (
	regRegistrations    uint64
	intrRegistrations   uint64
	memRegistrations    uint64
	stepRegistrations   uint64
	clears              uint64
	driverRejections    uint64
	maskInvalids        uint64
	stepReregistrations uint64
)

// GetMetrics returns a snapshot of the current counters.
func GetMetrics() Metrics {
	return Metrics{
		RegRegistrations:    atomic.LoadUint64(&regRegistrations),
		IntrRegistrations:   atomic.LoadUint64(&intrRegistrations),
		MemRegistrations:    atomic.LoadUint64(&memRegistrations),
		StepRegistrations:   atomic.LoadUint64(&stepRegistrations),
		Clears:              atomic.LoadUint64(&clears),
		DriverRejections:    atomic.LoadUint64(&driverRejections),
		MaskInvalids:        atomic.LoadUint64(&maskInvalids),
		StepReregistrations: atomic.LoadUint64(&stepReregistrations),
	}
}

// ResetMetrics zeroes every counter. Intended for tests.
func ResetMetrics() {
	atomic.StoreUint64(&regRegistrations, 0)
	atomic.StoreUint64(&intrRegistrations, 0)
	atomic.StoreUint64(&memRegistrations, 0)
	atomic.StoreUint64(&stepRegistrations, 0)
	atomic.StoreUint64(&clears, 0)
	atomic.StoreUint64(&driverRejections, 0)
	atomic.StoreUint64(&maskInvalids, 0)
	atomic.StoreUint64(&stepReregistrations, 0)
}

func recordRegRegistration()    { atomic.AddUint64(&regRegistrations, 1) }
func recordIntrRegistration()   { atomic.AddUint64(&intrRegistrations, 1) }
func recordMemRegistration()    { atomic.AddUint64(&memRegistrations, 1) }
func recordStepRegistration()   { atomic.AddUint64(&stepRegistrations, 1) }
func recordClear()              { atomic.AddUint64(&clears, 1) }
func recordDriverRejection()    { atomic.AddUint64(&driverRejections, 1) }
func recordMaskInvalid()        { atomic.AddUint64(&maskInvalids, 1) }
func recordStepReregistration() { atomic.AddUint64(&stepReregistrations, 1) }
