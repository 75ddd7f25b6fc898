package linutil

import (
	"github.com/go-delve/zdbg/pkg/proc"
)

// AMD64PtraceRegs is the struct used by the linux kernel to return the
// general purpose registers for AMD64 CPUs.
type AMD64PtraceRegs struct {
	R15      uint64
	R14      uint64
	R13      uint64
	R12      uint64
	Rbp      uint64
	Rbx      uint64
	R11      uint64
	R10      uint64
	R9       uint64
	R8       uint64
	Rax      uint64
	Rcx      uint64
	Rdx      uint64
	Rsi      uint64
	Rdi      uint64
	Orig_rax uint64
	Rip      uint64
	Cs       uint64
	Eflags   uint64
	Rsp      uint64
	Ss       uint64
	Fs_base  uint64
	Gs_base  uint64
	Ds       uint64
	Es       uint64
	Fs       uint64
	Gs       uint64
}

// fields returns a pointer to every register together with its name.
func (r *AMD64PtraceRegs) fields() []struct {
	k string
	v *uint64
} {
	return []struct {
		k string
		v *uint64
	}{
		{"Rip", &r.Rip},
		{"Rsp", &r.Rsp},
		{"Rax", &r.Rax},
		{"Rbx", &r.Rbx},
		{"Rcx", &r.Rcx},
		{"Rdx", &r.Rdx},
		{"Rdi", &r.Rdi},
		{"Rsi", &r.Rsi},
		{"Rbp", &r.Rbp},
		{"R8", &r.R8},
		{"R9", &r.R9},
		{"R10", &r.R10},
		{"R11", &r.R11},
		{"R12", &r.R12},
		{"R13", &r.R13},
		{"R14", &r.R14},
		{"R15", &r.R15},
		{"Orig_rax", &r.Orig_rax},
		{"Cs", &r.Cs},
		{"Rflags", &r.Eflags},
		{"Ss", &r.Ss},
		{"Fs_base", &r.Fs_base},
		{"Gs_base", &r.Gs_base},
		{"Ds", &r.Ds},
		{"Es", &r.Es},
		{"Fs", &r.Fs},
		{"Gs", &r.Gs},
	}
}

// Registers converts the kernel register set into a proc.Registers.
func (r *AMD64PtraceRegs) Registers() *proc.Registers {
	fields := r.fields()
	out := make([]proc.Register, 0, len(fields))
	for _, f := range fields {
		out = append(out, proc.Register{Name: f.k, Value: *f.v})
	}
	return proc.NewRegisters(proc.AMD64Arch(), out)
}

// SetRegisters copies the values of regs into r. Registers missing from
// regs keep their value.
func (r *AMD64PtraceRegs) SetRegisters(regs *proc.Registers) {
	for _, f := range r.fields() {
		if v, err := regs.Get(f.k); err == nil {
			*f.v = v
		}
	}
}
