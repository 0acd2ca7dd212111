package vmi

// EventType tags which payload a Subscription carries.
type EventType int

const (
	EventRegister EventType = iota
	EventMemory
	EventInterrupt
	EventSingleStep
)

func (t EventType) String() string {
	switch t {
	case EventRegister:
		return "register"
	case EventMemory:
		return "memory"
	case EventInterrupt:
		return "interrupt"
	case EventSingleStep:
		return "singlestep"
	default:
		return "unknown"
	}
}

// Granularity distinguishes a page-wide memory event from one scoped to a
// single physical address.
type Granularity int

const (
	GranularityPage Granularity = iota
	GranularityByte
)

// RegID identifies a privileged register a caller wants to watch. The
// concrete numbering is defined by the driver/platform; the registry only
// ever compares RegIDs for equality.
type RegID uint32

// RegPayload is the Register event's type-specific record (spec §3).
type RegPayload struct {
	Reg     RegID
	Access  RegAccess
	Enabled bool
}

// InterruptPayload is the Interrupt event's type-specific record.
type InterruptPayload struct {
	Vector  uint32
	Enabled bool
}

// SingleStepPayload is the SingleStep event's type-specific record: a
// bitmap of vCPUs on which stepping is requested, one bit per vCPU index.
type SingleStepPayload struct {
	VCPUs uint64
}

// SetVCPU requests single-stepping on the given vCPU index.
func (p *SingleStepPayload) SetVCPU(vcpu uint32) { p.VCPUs |= 1 << vcpu }

// UnsetVCPU withdraws the single-step request for the given vCPU index.
func (p *SingleStepPayload) UnsetVCPU(vcpu uint32) { p.VCPUs &^= 1 << vcpu }

// HasVCPU reports whether stepping is requested on the given vCPU index.
func (p *SingleStepPayload) HasVCPU(vcpu uint32) bool { return p.VCPUs&(1<<vcpu) != 0 }

// MemPayload is the Memory event's type-specific record.
type MemPayload struct {
	PhysicalAddress uint64
	Granularity     Granularity
	Access          MemAccess
	// Flags is a driver-specific extension point (e.g. "emulate write" on
	// KVM); the registry never inspects it.
	Flags uint32
}

// PageKey returns the frame number (physical address >> 12) this payload's
// memory event belongs to.
func (p *MemPayload) PageKey() uint64 { return p.PhysicalAddress >> 12 }

// Callback is invoked by the driver, from inside EventsListen, when a
// registered event fires. A callback may register or clear memory events
// and request single-stepping (spec §5); it must not block.
type Callback func(sess *Session, sub *Subscription) error

// Subscription is a caller-owned event registration. The library never
// copies it and only ever holds a reference: the caller must keep it live
// until ClearEvent returns, and must not mutate its identifying fields
// (the payload fields the registry keys on) while registered.
type Subscription struct {
	Type     EventType
	VCPUID   uint32
	Callback Callback

	Reg  *RegPayload
	Mem  *MemPayload
	Intr *InterruptPayload
	Step *SingleStepPayload
}

func (s *Subscription) payloadOK() bool {
	switch s.Type {
	case EventRegister:
		return s.Reg != nil
	case EventMemory:
		return s.Mem != nil
	case EventInterrupt:
		return s.Intr != nil
	case EventSingleStep:
		return s.Step != nil
	default:
		return false
	}
}
