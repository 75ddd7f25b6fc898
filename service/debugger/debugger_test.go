package debugger

import (
	"errors"
	"syscall"
	"testing"

	"github.com/go-delve/zdbg/pkg/proc"
	protest "github.com/go-delve/zdbg/pkg/proc/test"
)

func newFakeDebugger(t *testing.T) (*Debugger, *protest.FakeProcess) {
	t.Helper()
	fp := protest.NewFakeProgram()
	tgt, err := proc.NewTarget(fp, proc.AMD64Arch(), proc.NewTargetConfig{Path: "fake", StopReason: proc.StopLaunched, ChildProcess: true})
	if err != nil {
		t.Fatal(err)
	}
	return NewWithTarget(&Config{}, tgt), fp
}

func TestDebuggerBreakpointRoundTrip(t *testing.T) {
	d, _ := newFakeDebugger(t)

	bp, err := d.CreateBreakpoint(protest.FakeFunc)
	if err != nil {
		t.Fatal(err)
	}
	again, err := d.CreateBreakpoint(protest.FakeFunc)
	var dup *proc.DuplicateError
	if !errors.As(err, &dup) || again == nil || again.ID != bp.ID {
		t.Fatalf("second CreateBreakpoint: %v %v", again, err)
	}

	state, err := d.Continue()
	if err != nil {
		t.Fatal(err)
	}
	if state.StopReason != proc.StopBreakpoint.String() || state.PC != protest.FakeFunc || state.Breakpoint == nil || state.Breakpoint.ID != bp.ID {
		t.Fatalf("unexpected state %+v", state)
	}
	if state.Breakpoint.TotalHitCount != 1 {
		t.Fatalf("hit count %d", state.Breakpoint.TotalHitCount)
	}

	logical, err := d.ExamineMemory(protest.FakeFunc, 2, false)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := d.ExamineMemory(protest.FakeFunc, 2, true)
	if err != nil {
		t.Fatal(err)
	}
	if logical[0] != protest.OpMovAL || raw[0] != protest.OpInt3 || logical[1] != raw[1] {
		t.Fatalf("logical %x raw %x", logical, raw)
	}
	for _, raw := range []bool{false, true} {
		var accessErr *proc.AccessError
		if _, err := d.ExamineMemory(protest.FakeFunc, -1, raw); !errors.As(err, &accessErr) {
			t.Fatalf("negative length (raw=%v): %v", raw, err)
		}
	}

	bps, _ := d.ListBreakpoints()
	if len(bps) != 1 || bps[0].Disabled {
		t.Fatalf("breakpoints %+v", bps)
	}
	if _, err := d.DisableBreakpoint(bp.ID); err != nil {
		t.Fatal(err)
	}
	bps, _ = d.ListBreakpoints()
	if !bps[0].Disabled {
		t.Fatal("breakpoint not disabled")
	}
	if _, err := d.ClearBreakpoint(bp.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := d.ClearBreakpoint(bp.ID); err == nil {
		t.Fatal("cleared a breakpoint twice")
	}

	state, err = d.Continue()
	if err != nil {
		t.Fatal(err)
	}
	if !state.Exited || state.ExitStatus != protest.FakeExitCode {
		t.Fatalf("unexpected state %+v", state)
	}
}

func TestDebuggerRegisters(t *testing.T) {
	d, _ := newFakeDebugger(t)

	if err := d.SetRegister("rax", 0x99); err != nil {
		t.Fatal(err)
	}
	regs, err := d.ListRegisters()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, reg := range regs {
		if reg.Name == "Rax" {
			found = true
			if reg.Value != "0x0000000000000099" {
				t.Fatalf("Rax = %s", reg.Value)
			}
		}
	}
	if !found {
		t.Fatal("Rax not listed")
	}
	if err := d.SetRegister("nope", 1); err == nil {
		t.Fatal("set an unknown register")
	}
}

func TestDebuggerAbandonedState(t *testing.T) {
	d, fp := newFakeDebugger(t)
	if _, err := d.CreateBreakpoint(protest.FakeEntry); err != nil {
		t.Fatal(err)
	}
	fp.SingleStepErr = syscall.ESRCH

	_, err := d.StepInstruction()
	var execErr *proc.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecutionError, got %v", err)
	}
	state, err := d.GetState()
	if err != nil {
		t.Fatal(err)
	}
	if !state.Abandoned {
		t.Fatal("state not marked abandoned")
	}
	if err := d.Detach(true); err != nil {
		t.Fatal(err)
	}
	if !fp.Killed {
		t.Fatal("process not killed")
	}
}

func TestDebuggerStateNonBlocking(t *testing.T) {
	d, _ := newFakeDebugger(t)
	d.setRunning(true)
	state, err := d.GetStateNonBlocking()
	if err != nil || !state.Running {
		t.Fatalf("state %+v %v", state, err)
	}
	d.setRunning(false)
	state, err = d.GetStateNonBlocking()
	if err != nil || state.Running || state.StopReason != proc.StopLaunched.String() {
		t.Fatalf("state %+v %v", state, err)
	}
}
