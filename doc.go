// Package vmi provides the event subscription and dispatch core of a
// virtual-machine introspection library.
//
// A Session observes a running guest from outside, through a pluggable
// Driver, and lets analysis code react to guest-side events: privileged
// register accesses, page- or byte-granular memory accesses, interrupts,
// and per-vCPU single-step execution. The driver owns the hypervisor
// specifics (Xen, KVM, a raw memory-dump file, ...); this package owns the
// bookkeeping that reconciles caller-visible byte granularity against the
// driver's page-granular access control.
//
// # Basic usage
//
// Initialize a session against a driver:
//
//	sess, err := vmi.Init(driver, vmi.Config{EventsEnabled: true, VCPUCount: 1})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sess.Teardown()
//
// Register a byte-granular memory write watch and pump the event loop:
//
//	sub := &vmi.Subscription{
//		Type:     vmi.EventMemory,
//		VCPUID:   0,
//		Callback: onWrite,
//		Mem: &vmi.MemPayload{
//			PhysicalAddress: 0x1000ABC,
//			Granularity:     vmi.GranularityByte,
//			Access:          vmi.MemWrite,
//		},
//	}
//	if err := sess.RegisterEvent(sub); err != nil {
//		log.Fatal(err)
//	}
//	for {
//		if err := sess.EventsListen(100); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// From within a memory callback, a handler may defer re-arming the page
// until the guest has retired a few more instructions:
//
//	func onWrite(sess *vmi.Session, sub *vmi.Subscription) error {
//		if err := sess.ClearEvent(sub); err != nil {
//			return err
//		}
//		return sess.StepMemEvent(sub, 1)
//	}
//
// # Error handling
//
// All operations return a *VMIError carrying a Kind (NotEnabled,
// BadArgument, AlreadyExists, NotFound, DriverRejected, MaskInvalid), plus
// detail in Error() unless VMI_ENV=production (or VMI_DEBUG=false) trims it
// for production logs. Diagnostic messages are also emitted through the
// Logger collaborator for callers who prefer structured logs over parsing
// error strings.
//
// # Non-goals
//
// This package does not interpret guest OS semantics, decode instruction
// bytes, translate physical to machine addresses, or parse kernel symbol
// tables. Those are the concern of the Driver and of callers.
package vmi
