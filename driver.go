package vmi

// Driver is the hypervisor-specific collaborator this package requires
// (spec §6.2). It is the only thing that touches guest state directly;
// the registry never installs an access mask without first getting a nil
// error back from the matching Driver method, and never reports success to
// a caller unless the driver agreed.
//
// Implementations must be safe to call from the same goroutine that calls
// EventsListen, including reentrantly from inside a callback EventsListen
// itself invoked — this package makes no concurrency guarantees beyond
// that single-threaded, cooperative model (spec §5).
type Driver interface {
	// SetRegAccess installs the payload's desired access mask for its
	// register.
	SetRegAccess(reg *RegPayload) error
	// SetIntrAccess arms or disarms notification for the payload's vector.
	SetIntrAccess(intr *InterruptPayload) error
	// SetMemAccess installs combined on the page containing mem's
	// physical address. combined is the registry's recomputed aggregate,
	// not mem.Access alone.
	SetMemAccess(mem *MemPayload, combined MemAccess) error
	// StartSingleStep arms single-stepping for every vCPU set in ss.VCPUs.
	StartSingleStep(ss *SingleStepPayload) error
	// StopSingleStep disarms single-stepping for one vCPU.
	StopSingleStep(vcpu uint32) error
	// ShutdownSingleStep disarms single-stepping for every vCPU.
	ShutdownSingleStep() error
	// EventsListen polls the hypervisor for up to timeoutMs milliseconds
	// and synchronously invokes the callbacks of any subscriptions that
	// matched a delivered event.
	EventsListen(sess *Session, timeoutMs int) error
}
