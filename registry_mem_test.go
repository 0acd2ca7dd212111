package vmi

import "testing"

const testPage = 0x4000 // page key 4

func TestRegisterMemPageGranularRead(t *testing.T) {
	driver := newFakeDriver()
	sess, _ := Init(driver, Config{EventsEnabled: true})

	sub := &Subscription{Type: EventMemory, Callback: noopCallback, Mem: &MemPayload{PhysicalAddress: testPage, Granularity: GranularityPage, Access: MemRead}}
	if err := sess.RegisterEvent(sub); err != nil {
		t.Fatalf("RegisterEvent() error = %v", err)
	}

	if driver.installedMem[testPage>>12] != MemRead {
		t.Errorf("driver page access = %s, want R", driver.installedMem[testPage>>12])
	}
	if got := sess.GetMemEvent(testPage, GranularityPage); got != sub {
		t.Errorf("GetMemEvent(page) = %v, want %v", got, sub)
	}
}

// TestRegisterMemByteOnTopOfPageUnions is the spec §8 scenario: a
// byte-granular Write registered on top of an existing page-granular Read
// must union to R|W, installed on the whole page.
func TestRegisterMemByteOnTopOfPageUnions(t *testing.T) {
	driver := newFakeDriver()
	sess, _ := Init(driver, Config{EventsEnabled: true})

	pageSub := &Subscription{Type: EventMemory, Callback: noopCallback, Mem: &MemPayload{PhysicalAddress: testPage, Granularity: GranularityPage, Access: MemRead}}
	byteSub := &Subscription{Type: EventMemory, Callback: noopCallback, Mem: &MemPayload{PhysicalAddress: testPage + 0x20, Granularity: GranularityByte, Access: MemWrite}}

	if err := sess.RegisterEvent(pageSub); err != nil {
		t.Fatalf("RegisterEvent(page) error = %v", err)
	}
	if err := sess.RegisterEvent(byteSub); err != nil {
		t.Fatalf("RegisterEvent(byte) error = %v", err)
	}

	want := MemRead | MemWrite
	if driver.installedMem[testPage>>12] != want {
		t.Errorf("driver page access = %s, want %s", driver.installedMem[testPage>>12], want)
	}
	if got := sess.GetMemEvent(testPage, GranularityPage); got != pageSub {
		t.Errorf("GetMemEvent(page) = %v, want %v", got, pageSub)
	}
	if got := sess.GetMemEvent(testPage+0x20, GranularityByte); got != byteSub {
		t.Errorf("GetMemEvent(byte) = %v, want %v", got, byteSub)
	}
}

// TestClearMemPageLeavesByteEvent is the spec §8 scenario: clearing the
// page-level subscription must recompute the aggregate from the remaining
// byte-level entries (not drop it to None) and keep the Page Entry alive.
func TestClearMemPageLeavesByteEvent(t *testing.T) {
	driver := newFakeDriver()
	sess, _ := Init(driver, Config{EventsEnabled: true})

	pageSub := &Subscription{Type: EventMemory, Callback: noopCallback, Mem: &MemPayload{PhysicalAddress: testPage, Granularity: GranularityPage, Access: MemRead}}
	byteSub := &Subscription{Type: EventMemory, Callback: noopCallback, Mem: &MemPayload{PhysicalAddress: testPage + 0x20, Granularity: GranularityByte, Access: MemWrite}}

	if err := sess.RegisterEvent(pageSub); err != nil {
		t.Fatalf("RegisterEvent(page) error = %v", err)
	}
	if err := sess.RegisterEvent(byteSub); err != nil {
		t.Fatalf("RegisterEvent(byte) error = %v", err)
	}
	if err := sess.ClearEvent(pageSub); err != nil {
		t.Fatalf("ClearEvent(page) error = %v", err)
	}

	if driver.installedMem[testPage>>12] != MemWrite {
		t.Errorf("driver page access after clearing page sub = %s, want W", driver.installedMem[testPage>>12])
	}
	if got := sess.GetMemEvent(testPage, GranularityPage); got != nil {
		t.Errorf("GetMemEvent(page) = %v, want nil after clear", got)
	}
	if got := sess.GetMemEvent(testPage+0x20, GranularityByte); got != byteSub {
		t.Errorf("GetMemEvent(byte) = %v, want %v (still registered)", got, byteSub)
	}
}

// TestClearMemByteRemovesPageEntry is the spec §8 scenario: clearing the
// last byte-level entry on a page with no page-level subscription must
// drop the Page Entry from the registry entirely.
func TestClearMemByteRemovesPageEntry(t *testing.T) {
	driver := newFakeDriver()
	sess, _ := Init(driver, Config{EventsEnabled: true})

	byteSub := &Subscription{Type: EventMemory, Callback: noopCallback, Mem: &MemPayload{PhysicalAddress: testPage + 0x20, Granularity: GranularityByte, Access: MemWrite}}
	if err := sess.RegisterEvent(byteSub); err != nil {
		t.Fatalf("RegisterEvent(byte) error = %v", err)
	}
	if err := sess.ClearEvent(byteSub); err != nil {
		t.Fatalf("ClearEvent(byte) error = %v", err)
	}

	if driver.installedMem[testPage>>12] != MemNone {
		t.Errorf("driver page access after clearing last byte sub = %s, want N", driver.installedMem[testPage>>12])
	}
	if got := sess.GetMemEvent(testPage+0x20, GranularityByte); got != nil {
		t.Errorf("GetMemEvent(byte) = %v, want nil", got)
	}
	if _, exists := sess.memEvents[testPage>>12]; exists {
		t.Error("Page Entry still present in registry after its last subscriber cleared")
	}
}

// TestRegisterMemXOnWriteConflictLeavesDriverUntouched is the spec §8
// scenario: registering XOnWrite against an already-installed conflicting
// access must fail with MaskInvalid and never call the driver.
func TestRegisterMemXOnWriteConflictLeavesDriverUntouched(t *testing.T) {
	driver := newFakeDriver()
	sess, _ := Init(driver, Config{EventsEnabled: true})

	readSub := &Subscription{Type: EventMemory, Callback: noopCallback, Mem: &MemPayload{PhysicalAddress: testPage, Granularity: GranularityPage, Access: MemRead}}
	if err := sess.RegisterEvent(readSub); err != nil {
		t.Fatalf("RegisterEvent(read) error = %v", err)
	}
	callsBefore := len(driver.memCalls)

	xwSub := &Subscription{Type: EventMemory, Callback: noopCallback, Mem: &MemPayload{PhysicalAddress: testPage + 0x40, Granularity: GranularityByte, Access: MemXOnWrite}}
	err := sess.RegisterEvent(xwSub)

	ve, ok := err.(*VMIError)
	if !ok || ve.Kind != KindMaskInvalid {
		t.Fatalf("RegisterEvent(XOnWrite) error = %v, want KindMaskInvalid", err)
	}
	if len(driver.memCalls) != callsBefore {
		t.Errorf("driver received %d calls after a rejected combination, want %d (untouched)", len(driver.memCalls), callsBefore)
	}
	if got := sess.GetMemEvent(testPage+0x40, GranularityByte); got != nil {
		t.Errorf("GetMemEvent(byte) = %v, want nil after a MaskInvalid rejection", got)
	}
}

func TestClearMemDriverRejectionStealAndReinsert(t *testing.T) {
	driver := newFakeDriver()
	sess, _ := Init(driver, Config{EventsEnabled: true})

	first := &Subscription{Type: EventMemory, Callback: noopCallback, Mem: &MemPayload{PhysicalAddress: testPage, Granularity: GranularityByte, Access: MemRead}}
	second := &Subscription{Type: EventMemory, Callback: noopCallback, Mem: &MemPayload{PhysicalAddress: testPage + 0x8, Granularity: GranularityByte, Access: MemWrite}}

	if err := sess.RegisterEvent(first); err != nil {
		t.Fatalf("RegisterEvent(first) error = %v", err)
	}
	if err := sess.RegisterEvent(second); err != nil {
		t.Fatalf("RegisterEvent(second) error = %v", err)
	}

	driver.rejectMem[testPage>>12] = true
	err := sess.ClearEvent(first)
	if err == nil {
		t.Fatal("ClearEvent(first) error = nil, want DriverRejected")
	}

	// The stolen entry must be reinserted: the byte subscription is still
	// visible in the registry even though the driver refused the clear.
	if got := sess.GetMemEvent(testPage, GranularityByte); got != first {
		t.Errorf("GetMemEvent(byte) = %v, want %v reinserted after a rejected clear", got, first)
	}
}
