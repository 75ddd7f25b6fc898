package proc

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"text/tabwriter"
)

// Register is a single named CPU register.
type Register struct {
	Name  string
	Value uint64
}

// Registers is a snapshot of the general purpose registers of a stopped
// process. Modifying it does not change the process until it is written back
// with SetRegisters.
type Registers struct {
	arch *Arch
	regs []Register
}

// NewRegisters returns a register set for arch. Registers of arch missing
// from regs are set to zero, names not belonging to arch are ignored.
func NewRegisters(arch *Arch, regs []Register) *Registers {
	r := &Registers{arch: arch, regs: make([]Register, len(arch.RegisterNames))}
	for i, name := range arch.RegisterNames {
		r.regs[i].Name = name
	}
	for _, reg := range regs {
		_ = r.Set(reg.Name, reg.Value)
	}
	return r
}

// UnknownRegisterError is returned when a register name does not exist on
// the target architecture.
type UnknownRegisterError struct {
	Name string
}

func (err UnknownRegisterError) Error() string {
	return fmt.Sprintf("unknown register %q", err.Name)
}

func (r *Registers) index(name string) (int, error) {
	canon, ok := r.arch.canonicalRegName(name)
	if !ok {
		return -1, UnknownRegisterError{Name: name}
	}
	for i := range r.regs {
		if r.regs[i].Name == canon {
			return i, nil
		}
	}
	return -1, UnknownRegisterError{Name: name}
}

// Get returns the value of the named register. Names are case insensitive
// and may be one of the architecture aliases (pc, sp, ...).
func (r *Registers) Get(name string) (uint64, error) {
	i, err := r.index(name)
	if err != nil {
		return 0, err
	}
	return r.regs[i].Value, nil
}

// Set changes the value of the named register in this snapshot.
func (r *Registers) Set(name string, value uint64) error {
	i, err := r.index(name)
	if err != nil {
		return err
	}
	r.regs[i].Value = value
	return nil
}

// PC returns the program counter.
func (r *Registers) PC() uint64 {
	v, _ := r.Get(r.arch.pcRegName)
	return v
}

// SetPC changes the program counter.
func (r *Registers) SetPC(pc uint64) {
	_ = r.Set(r.arch.pcRegName, pc)
}

// SP returns the stack pointer.
func (r *Registers) SP() uint64 {
	v, _ := r.Get(r.arch.spRegName)
	return v
}

// Slice returns the registers in display order.
func (r *Registers) Slice() []Register {
	out := make([]Register, len(r.regs))
	copy(out, r.regs)
	return out
}

// Copy returns a copy of these registers that is guaranteed not to change.
func (r *Registers) Copy() *Registers {
	return &Registers{arch: r.arch, regs: r.Slice()}
}

func (r *Registers) String() string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 8, 1, ' ', tabwriter.AlignRight)
	for _, reg := range r.regs {
		if reg.Name == r.arch.flagsRegName {
			fmt.Fprintf(w, "%10s = %s\n", reg.Name, eflagsDescription.Describe(reg.Value, 64))
			continue
		}
		fmt.Fprintf(w, "%10s = %#016x\n", reg.Name, reg.Value)
	}
	w.Flush()
	return buf.String()
}

type flagRegisterDescr []flagDescr
type flagDescr struct {
	name string
	mask uint64
}

var eflagsDescription flagRegisterDescr = []flagDescr{
	{"CF", 1 << 0},
	{"", 1 << 1},
	{"PF", 1 << 2},
	{"AF", 1 << 4},
	{"ZF", 1 << 6},
	{"SF", 1 << 7},
	{"TF", 1 << 8},
	{"IF", 1 << 9},
	{"DF", 1 << 10},
	{"OF", 1 << 11},
	{"IOPL", 1<<12 | 1<<13},
	{"NT", 1 << 14},
	{"RF", 1 << 16},
	{"VM", 1 << 17},
	{"AC", 1 << 18},
	{"VIF", 1 << 19},
	{"VIP", 1 << 20},
	{"ID", 1 << 21},
}

func (descr flagRegisterDescr) Mask() uint64 {
	var r uint64
	for _, f := range descr {
		r = r | f.mask
	}
	return r
}

func (descr flagRegisterDescr) Describe(reg uint64, bitsize int) string {
	var r []string
	for _, f := range descr {
		if f.name == "" {
			continue
		}
		// rbm is f.mask with only the right-most bit set:
		// 0001 1100 -> 0000 0100
		rbm := f.mask & -f.mask
		if rbm == f.mask {
			if reg&f.mask != 0 {
				r = append(r, f.name)
			}
		} else {
			x := (reg & f.mask) >> uint64(math.Log2(float64(rbm)))
			r = append(r, fmt.Sprintf("%s=%x", f.name, x))
		}
	}
	if reg & ^descr.Mask() != 0 {
		r = append(r, fmt.Sprintf("unknown_flags=%x", reg&^descr.Mask()))
	}
	return fmt.Sprintf("%#0*x [%s]", bitsize/4, reg, strings.Join(r, " "))
}

// DescribeFlags formats the value of the flags register listing the flags
// that are set.
func DescribeFlags(v uint64) string {
	return eflagsDescription.Describe(v, 64)
}
