package proc_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/go-delve/zdbg/pkg/proc"
	protest "github.com/go-delve/zdbg/pkg/proc/test"
)

func TestBreakpointMapIDs(t *testing.T) {
	fp := protest.NewFakeProgram()
	bpmap := proc.NewBreakpointMap(fp, proc.AMD64Arch())

	addrs := []uint64{protest.FakeRet, protest.FakeFunc, protest.FakeEntry}
	for i, addr := range addrs {
		bp, err := bpmap.Set(addr)
		assertNoError(err, t, "Set")
		if bp.ID != i+1 {
			t.Fatalf("breakpoint at %#x has id %d, expected %d", addr, bp.ID, i+1)
		}
	}

	_, err := bpmap.Remove(2)
	assertNoError(err, t, "Remove")
	bp, err := bpmap.Set(protest.FakeFunc)
	assertNoError(err, t, "Set")
	if bp.ID != 4 {
		t.Fatalf("ids must not be reused, got %d", bp.ID)
	}

	list := bpmap.List()
	var ids []int
	for _, bp := range list {
		ids = append(ids, bp.ID)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 3 || ids[2] != 4 {
		t.Fatalf("List() ids = %v", ids)
	}

	// A new table starts from one.
	other := proc.NewBreakpointMap(protest.NewFakeProgram(), proc.AMD64Arch())
	bp, err = other.Set(protest.FakeFunc)
	assertNoError(err, t, "Set")
	if bp.ID != 1 {
		t.Fatalf("new table started at id %d", bp.ID)
	}
}

func TestBreakpointMapNotFound(t *testing.T) {
	bpmap := proc.NewBreakpointMap(protest.NewFakeProgram(), proc.AMD64Arch())
	for name, fn := range map[string]func(int) (*proc.Breakpoint, error){
		"Remove":  bpmap.Remove,
		"Enable":  bpmap.Enable,
		"Disable": bpmap.Disable,
	} {
		_, err := fn(7)
		var nferr *proc.NotFoundError
		if !errors.As(err, &nferr) || nferr.ID != 7 {
			t.Errorf("%s(7): %v", name, err)
		}
	}
}

func TestBreakpointMapRestoreAll(t *testing.T) {
	fp := protest.NewFakeProgram()
	static := fp.Image(protest.FakeEntry, 16)
	bpmap := proc.NewBreakpointMap(fp, proc.AMD64Arch())

	for addr := uint64(protest.FakeEntry); addr < protest.FakeEntry+16; addr += 3 {
		_, err := bpmap.Set(addr)
		assertNoError(err, t, "Set")
	}
	_, err := bpmap.Disable(2)
	assertNoError(err, t, "Disable")

	logical, err := bpmap.LogicalRead(protest.FakeEntry, 16)
	assertNoError(err, t, "LogicalRead")
	if !bytes.Equal(logical, static) {
		t.Fatalf("logical view %x, expected %x", logical, static)
	}

	assertNoError(bpmap.RestoreAll(), t, "RestoreAll")
	if got := fp.Image(protest.FakeEntry, 16); !bytes.Equal(got, static) {
		t.Fatalf("memory %x after RestoreAll, expected %x", got, static)
	}
	for _, bp := range bpmap.List() {
		if bp.Installed {
			t.Errorf("%v still installed", bp)
		}
		if bp.Enabled != (bp.ID != 2) {
			t.Errorf("%v changed its enabled state", bp)
		}
	}

	bpmap.Clear()
	if len(bpmap.List()) != 0 {
		t.Fatal("Clear left breakpoints")
	}
}

func TestBreakpointString(t *testing.T) {
	bp := &proc.Breakpoint{ID: 3, Addr: 0x1000, Enabled: false, TotalHitCount: 2}
	if s := bp.String(); s != "Breakpoint 3 at 0x1000 disabled (2)" {
		t.Fatalf("String() = %q", s)
	}
}
