// Package file implements vmi.Driver against a raw memory-dump file, the
// "file" backend named alongside Xen and KVM in the VMI core's scope (the
// library never enforces real page-fault trapping on a flat file; this
// driver is the portable reference implementation used by govmi's own
// tests and by cmd/govmi, standing in for a live hypervisor).
//
// Installed access masks are tracked in memory rather than enforced by the
// kernel — there is no MMU between the host and this driver's memory — so
// callers that want the registry exercised against real deliveries must
// feed events in through Inject*, mirroring how a real driver's own
// poll loop would notice a guest fault and hand it to the registry.
package file

import (
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/blacktop/govmi"
)

// pageSize is cached like the teacher's memory.go caches
// unix.Getpagesize(), since every alignment check (Open's size check)
// would otherwise make a syscall.
var (
	cachedPageSize int
	cachedPageMask uint64
	pageSizeOnce   sync.Once
)

func pageSize() int {
	pageSizeOnce.Do(func() {
		cachedPageSize = unix.Getpagesize()
		cachedPageMask = uint64(cachedPageSize - 1)
	})
	return cachedPageSize
}

func isPageAligned(addr uint64) bool {
	pageSizeOnce.Do(func() {
		cachedPageSize = unix.Getpagesize()
		cachedPageMask = uint64(cachedPageSize - 1)
	})
	return addr&cachedPageMask == 0
}

// event is a synthetic notification queued by Inject* and drained by
// EventsListen.
type event struct {
	kind   vmi.EventType
	reg    vmi.RegID
	vector uint32
	vcpu   uint32
	paddr  uint64
	gran   vmi.Granularity
}

// Driver mmaps a memory-dump file and tracks the access mask the registry
// has asked to have installed on each page, plus an injectable queue of
// guest notifications for EventsListen to demultiplex.
type Driver struct {
	f    *os.File
	mem  []byte
	path string

	mu          sync.Mutex
	pageAccess  map[uint64]vmi.MemAccess
	regAccess   map[vmi.RegID]vmi.RegAccess
	intrEnabled map[uint32]bool
	stepping    map[uint32]bool

	events chan event
}

// Open mmaps path (created and sized if it doesn't already exist) as the
// guest's physical memory.
func Open(path string, size int) (*Driver, error) {
	if size <= 0 {
		return nil, fmt.Errorf("file: size must be positive")
	}
	if !isPageAligned(uint64(size)) {
		return nil, fmt.Errorf("file: size %d not a multiple of the page size %d", size, pageSize())
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("file: open %s: %w", path, err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, fmt.Errorf("file: truncate %s to %d: %w", path, size, err)
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("file: mmap %s: %w", path, err)
	}

	return &Driver{
		f:           f,
		mem:         mem,
		path:        path,
		pageAccess:  make(map[uint64]vmi.MemAccess),
		regAccess:   make(map[vmi.RegID]vmi.RegAccess),
		intrEnabled: make(map[uint32]bool),
		stepping:    make(map[uint32]bool),
		events:      make(chan event, 64),
	}, nil
}

// Close unmaps and closes the backing file.
func (d *Driver) Close() error {
	var errs []error
	if d.mem != nil {
		if err := unix.Munmap(d.mem); err != nil {
			errs = append(errs, err)
		}
		d.mem = nil
	}
	if err := d.f.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("file: close %s: %v", d.path, errs)
	}
	return nil
}

// ReadAt and WriteAt expose the mmap'd guest memory directly, for tests
// and CLI inspection — not part of the vmi.Driver contract.

func (d *Driver) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || int(off) >= len(d.mem) {
		return 0, fmt.Errorf("file: offset %d out of range", off)
	}
	n := copy(p, d.mem[off:])
	return n, nil
}

func (d *Driver) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || int(off) >= len(d.mem) {
		return 0, fmt.Errorf("file: offset %d out of range", off)
	}
	n := copy(d.mem[off:], p)
	return n, nil
}

// PageAccess returns the access mask currently tracked for the page
// containing paddr — used by tests to assert driver/registry agreement
// (spec P2).
func (d *Driver) PageAccess(paddr uint64) vmi.MemAccess {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pageAccess[paddr>>12]
}

// --- vmi.Driver ---

func (d *Driver) SetRegAccess(reg *vmi.RegPayload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if reg.Access == vmi.RegNone {
		delete(d.regAccess, reg.Reg)
		return nil
	}
	d.regAccess[reg.Reg] = reg.Access
	return nil
}

func (d *Driver) SetIntrAccess(intr *vmi.InterruptPayload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.intrEnabled[intr.Vector] = intr.Enabled
	return nil
}

func (d *Driver) SetMemAccess(mem *vmi.MemPayload, combined vmi.MemAccess) error {
	pageKey := mem.PageKey()
	d.mu.Lock()
	defer d.mu.Unlock()
	if combined == vmi.MemNone {
		delete(d.pageAccess, pageKey)
		return nil
	}
	d.pageAccess[pageKey] = combined
	return nil
}

func (d *Driver) StartSingleStep(ss *vmi.SingleStepPayload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for vcpu := uint32(0); vcpu < 64; vcpu++ {
		if ss.HasVCPU(vcpu) {
			d.stepping[vcpu] = true
		}
	}
	return nil
}

func (d *Driver) StopSingleStep(vcpu uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.stepping, vcpu)
	return nil
}

func (d *Driver) ShutdownSingleStep() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stepping = make(map[uint32]bool)
	return nil
}

// EventsListen drains at most one injected notification, matches it
// against the session's registries, and invokes the matching
// subscription's callback synchronously — the same shape a real driver
// uses to demultiplex hardware VM-exits (spec §4.7, §6.2).
func (d *Driver) EventsListen(sess *vmi.Session, timeoutMs int) error {
	select {
	case ev := <-d.events:
		return d.dispatch(sess, ev)
	case <-time.After(time.Duration(timeoutMs) * time.Millisecond):
		return nil
	}
}

func (d *Driver) dispatch(sess *vmi.Session, ev event) error {
	switch ev.kind {
	case vmi.EventRegister:
		if sub := sess.GetRegEvent(ev.reg); sub != nil {
			return sub.Callback(sess, sub)
		}
	case vmi.EventInterrupt:
		if sub := sess.GetIntrEvent(ev.vector); sub != nil {
			return sub.Callback(sess, sub)
		}
	case vmi.EventMemory:
		if sub := sess.GetMemEvent(ev.paddr, ev.gran); sub != nil {
			return sub.Callback(sess, sub)
		}
	case vmi.EventSingleStep:
		if sub := sess.GetSingleStepEvent(ev.vcpu); sub != nil {
			return sub.Callback(sess, sub)
		}
	}
	return nil
}

// InjectRegAccess queues a synthetic register-access notification for the
// next EventsListen call to deliver.
func (d *Driver) InjectRegAccess(reg vmi.RegID) {
	d.events <- event{kind: vmi.EventRegister, reg: reg}
}

// InjectInterrupt queues a synthetic interrupt notification.
func (d *Driver) InjectInterrupt(vector uint32) {
	d.events <- event{kind: vmi.EventInterrupt, vector: vector}
}

// InjectMemAccess queues a synthetic memory-access notification at paddr,
// matched only against the subscription of the given granularity (the
// page-level one for GranularityPage, the byte-level one at paddr
// otherwise).
func (d *Driver) InjectMemAccess(paddr uint64, gran vmi.Granularity) {
	d.events <- event{kind: vmi.EventMemory, paddr: paddr, gran: gran}
}

// InjectSingleStep queues a synthetic single-step-retired notification on
// vcpu.
func (d *Driver) InjectSingleStep(vcpu uint32) {
	d.events <- event{kind: vmi.EventSingleStep, vcpu: vcpu}
}
