package linutil

import (
	"testing"
)

func TestAMD64PtraceRegsRoundTrip(t *testing.T) {
	regs := AMD64PtraceRegs{Rip: 0x401000, Rsp: 0x7ffc0000, Rax: 42, Eflags: 0x246, R15: 15}
	pr := regs.Registers()

	if pc := pr.PC(); pc != 0x401000 {
		t.Fatalf("PC = %#x", pc)
	}
	if sp := pr.SP(); sp != 0x7ffc0000 {
		t.Fatalf("SP = %#x", sp)
	}
	if v, err := pr.Get("eflags"); err != nil || v != 0x246 {
		t.Fatalf("eflags = %#x, %v", v, err)
	}

	if err := pr.Set("rax", 7); err != nil {
		t.Fatal(err)
	}
	pr.SetPC(0x2000)

	var out AMD64PtraceRegs
	out.SetRegisters(pr)
	want := regs
	want.Rax = 7
	want.Rip = 0x2000
	if out != want {
		t.Fatalf("round trip mismatch:\n%+v\n%+v", out, want)
	}
}
