package proc

import (
	"golang.org/x/arch/x86/x86asm"
)

// AsmInstruction represents one assembly instruction.
type AsmInstruction struct {
	PC    uint64
	Bytes []byte
	// Breakpoint is set if an enabled breakpoint sits on this instruction.
	Breakpoint bool
	AtPC       bool

	Size int
	Kind AsmInstructionKind

	inst *x86asm.Inst
}

type AsmInstructionKind uint8

const (
	OtherInstruction AsmInstructionKind = iota
	RetInstruction
)

func (instr *AsmInstruction) IsRet() bool {
	return instr.Kind == RetInstruction
}

// Text returns the instruction in GNU syntax, "?" if it could not be
// decoded.
func (instr *AsmInstruction) Text() string {
	if instr.inst == nil {
		return "?"
	}
	return x86asm.GNUSyntax(*instr.inst, instr.PC, nil)
}

// decodedInst is what the instruction cache stores for an address.
type decodedInst struct {
	bytes []byte
	inst  *x86asm.Inst
	kind  AsmInstructionKind
}

func decodeX86(mem []byte) decodedInst {
	inst, err := x86asm.Decode(mem, 64)
	if err != nil {
		return decodedInst{bytes: mem[:1]}
	}
	d := decodedInst{bytes: mem[:inst.Len], inst: &inst}
	switch inst.Op {
	case x86asm.RET, x86asm.LRET:
		d.kind = RetInstruction
	}
	return d
}

// Disassemble decodes count instructions starting at addr from the logical
// memory image, so breakpoint instructions do not show up in the listing.
// Decoding stops early at the first address that can not be read.
func (t *Target) Disassemble(addr uint64, count int) ([]AsmInstruction, error) {
	if err := t.checkStopped("disassemble"); err != nil {
		return nil, err
	}
	pc, err := t.currentPC()
	if err != nil {
		return nil, &AccessError{Op: "read registers", Err: err}
	}

	r := make([]AsmInstruction, 0, count)
	for len(r) < count {
		d, err := t.decodeAt(addr)
		if err != nil {
			if len(r) == 0 {
				return nil, err
			}
			break
		}
		inst := AsmInstruction{
			PC:    addr,
			Bytes: d.bytes,
			AtPC:  addr == pc,
			Size:  len(d.bytes),
			Kind:  d.kind,
			inst:  d.inst,
		}
		if bp, ok := t.breakpoints.Find(addr); ok && bp.Enabled {
			inst.Breakpoint = true
		}
		r = append(r, inst)
		addr += uint64(inst.Size)
	}
	return r, nil
}

func (t *Target) decodeAt(addr uint64) (decodedInst, error) {
	if v, ok := t.instCache.Get(addr); ok {
		return v.(decodedInst), nil
	}
	var (
		mem []byte
		err error
	)
	// The instruction may end close to the end of a mapping.
	for n := t.arch.MaxInstructionLength(); n > 0; n-- {
		mem, err = t.breakpoints.LogicalRead(addr, n)
		if err == nil {
			break
		}
	}
	if err != nil {
		return decodedInst{}, err
	}
	d := decodeX86(mem)
	t.instCache.Add(addr, d)
	return d, nil
}
