package vmi

// fakeDriver is a Driver test double that records every call it receives
// and lets a test inject rejections for a specific key, to exercise the
// driver-first-then-registry atomicity the registries rely on (spec P4).
type fakeDriver struct {
	regCalls      []*RegPayload
	intrCalls     []*InterruptPayload
	memCalls      []fakeMemCall
	stepStarts    []*SingleStepPayload
	stepStops     []uint32
	stepShutdowns int

	rejectReg          map[RegID]bool
	rejectIntr         map[uint32]bool
	rejectMem          map[uint64]bool
	rejectStepStart    bool
	rejectStepStop     map[uint32]bool
	rejectStepShutdown bool

	installedReg  map[RegID]RegAccess
	installedIntr map[uint32]bool
	installedMem  map[uint64]MemAccess
}

type fakeMemCall struct {
	pageKey  uint64
	combined MemAccess
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		rejectReg:     make(map[RegID]bool),
		rejectIntr:    make(map[uint32]bool),
		rejectMem:     make(map[uint64]bool),
		rejectStepStop: make(map[uint32]bool),
		installedReg:  make(map[RegID]RegAccess),
		installedIntr: make(map[uint32]bool),
		installedMem:  make(map[uint64]MemAccess),
	}
}

func (d *fakeDriver) SetRegAccess(reg *RegPayload) error {
	d.regCalls = append(d.regCalls, reg)
	if d.rejectReg[reg.Reg] {
		return errRejected
	}
	d.installedReg[reg.Reg] = reg.Access
	return nil
}

func (d *fakeDriver) SetIntrAccess(intr *InterruptPayload) error {
	d.intrCalls = append(d.intrCalls, intr)
	if d.rejectIntr[intr.Vector] {
		return errRejected
	}
	d.installedIntr[intr.Vector] = intr.Enabled
	return nil
}

func (d *fakeDriver) SetMemAccess(mem *MemPayload, combined MemAccess) error {
	pageKey := mem.PageKey()
	d.memCalls = append(d.memCalls, fakeMemCall{pageKey: pageKey, combined: combined})
	if d.rejectMem[pageKey] {
		return errRejected
	}
	d.installedMem[pageKey] = combined
	return nil
}

func (d *fakeDriver) StartSingleStep(ss *SingleStepPayload) error {
	d.stepStarts = append(d.stepStarts, ss)
	if d.rejectStepStart {
		return errRejected
	}
	return nil
}

func (d *fakeDriver) StopSingleStep(vcpu uint32) error {
	d.stepStops = append(d.stepStops, vcpu)
	if d.rejectStepStop[vcpu] {
		return errRejected
	}
	return nil
}

func (d *fakeDriver) ShutdownSingleStep() error {
	d.stepShutdowns++
	if d.rejectStepShutdown {
		return errRejected
	}
	return nil
}

func (d *fakeDriver) EventsListen(sess *Session, timeoutMs int) error {
	return nil
}

var errRejected = newErr(KindDriverRejected, "fake driver rejected the call")

// noopCallback satisfies Subscription.Callback for registrations that never
// actually fire in a given test.
func noopCallback(sess *Session, sub *Subscription) error { return nil }
