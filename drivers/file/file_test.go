package file

import (
	"path/filepath"
	"testing"

	"github.com/blacktop/govmi"
)

func TestOpenRejectsUnalignedSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mem.img")
	if _, err := Open(path, pageSize()+1); err == nil {
		t.Error("Open() with an unaligned size returned no error")
	}
}

func TestOpenReadWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mem.img")
	d, err := Open(path, pageSize()*4)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer d.Close()

	want := []byte("introspect me")
	if _, err := d.WriteAt(want, 0x100); err != nil {
		t.Fatalf("WriteAt() error = %v", err)
	}

	got := make([]byte, len(want))
	if _, err := d.ReadAt(got, 0x100); err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("ReadAt() = %q, want %q", got, want)
	}
}

func TestSetMemAccessTracksPageAccess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mem.img")
	d, err := Open(path, pageSize()*2)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer d.Close()

	payload := &vmi.MemPayload{PhysicalAddress: 0x1000, Granularity: vmi.GranularityPage, Access: vmi.MemRead}
	if err := d.SetMemAccess(payload, vmi.MemRead|vmi.MemWrite); err != nil {
		t.Fatalf("SetMemAccess() error = %v", err)
	}
	if got := d.PageAccess(0x1000); got != vmi.MemRead|vmi.MemWrite {
		t.Errorf("PageAccess(0x1000) = %s, want RW", got)
	}

	if err := d.SetMemAccess(payload, vmi.MemNone); err != nil {
		t.Fatalf("SetMemAccess(None) error = %v", err)
	}
	if got := d.PageAccess(0x1000); got != vmi.MemNone {
		t.Errorf("PageAccess(0x1000) after clearing = %s, want N", got)
	}
}

func TestEventsListenDispatchesInjectedMemAccess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mem.img")
	d, err := Open(path, pageSize()*2)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer d.Close()

	sess, err := vmi.Init(d, vmi.Config{EventsEnabled: true})
	if err != nil {
		t.Fatalf("vmi.Init() error = %v", err)
	}
	defer sess.Teardown()

	fired := false
	sub := &vmi.Subscription{
		Type: vmi.EventMemory,
		Callback: func(sess *vmi.Session, sub *vmi.Subscription) error {
			fired = true
			return nil
		},
		Mem: &vmi.MemPayload{PhysicalAddress: 0x2000, Granularity: vmi.GranularityPage, Access: vmi.MemWrite},
	}
	if err := sess.RegisterEvent(sub); err != nil {
		t.Fatalf("RegisterEvent() error = %v", err)
	}

	d.InjectMemAccess(0x2000, vmi.GranularityPage)
	if err := sess.EventsListen(100); err != nil {
		t.Fatalf("EventsListen() error = %v", err)
	}
	if !fired {
		t.Error("injected memory access did not reach the registered callback")
	}
}

func TestEventsListenTimesOutWithoutInjectedEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mem.img")
	d, err := Open(path, pageSize())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer d.Close()

	sess, err := vmi.Init(d, vmi.Config{EventsEnabled: true})
	if err != nil {
		t.Fatalf("vmi.Init() error = %v", err)
	}
	defer sess.Teardown()

	if err := sess.EventsListen(5); err != nil {
		t.Errorf("EventsListen() with no injected event error = %v, want nil after the timeout elapses", err)
	}
}
