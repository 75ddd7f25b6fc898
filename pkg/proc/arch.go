package proc

import "strings"

// Arch describes the parts of a CPU architecture the debugger core needs:
// the software breakpoint instruction and the general purpose register file.
type Arch struct {
	Name string

	ptrSize              int
	maxInstructionLength int

	breakpointInstruction []byte
	breakInstrMovesPC     bool

	// RegisterNames lists the general purpose registers in display order.
	RegisterNames []string

	pcRegName string
	spRegName string

	// registerAliases maps lower case alternative names to entries of
	// RegisterNames.
	registerAliases map[string]string
	flagsRegName    string
}

var amd64BreakInstruction = []byte{0xCC}

var amd64Arch = &Arch{
	Name:                  "amd64",
	ptrSize:               8,
	maxInstructionLength:  15,
	breakpointInstruction: amd64BreakInstruction,
	breakInstrMovesPC:     true,
	RegisterNames: []string{
		"Rip", "Rsp", "Rax", "Rbx", "Rcx", "Rdx", "Rdi", "Rsi", "Rbp",
		"R8", "R9", "R10", "R11", "R12", "R13", "R14", "R15",
		"Orig_rax", "Cs", "Rflags", "Ss", "Fs_base", "Gs_base", "Ds", "Es", "Fs", "Gs",
	},
	pcRegName: "Rip",
	spRegName: "Rsp",
	registerAliases: map[string]string{
		"pc":     "Rip",
		"ip":     "Rip",
		"sp":     "Rsp",
		"eflags": "Rflags",
		"flags":  "Rflags",
	},
	flagsRegName: "Rflags",
}

// AMD64Arch returns the description of the AMD64 architecture.
func AMD64Arch() *Arch {
	return amd64Arch
}

// PtrSize returns the size of a pointer on this architecture.
func (a *Arch) PtrSize() int {
	return a.ptrSize
}

// MaxInstructionLength returns the maximum length of an instruction.
func (a *Arch) MaxInstructionLength() int {
	return a.maxInstructionLength
}

// BreakpointInstruction returns the Breakpoint
// instruction for this architecture.
func (a *Arch) BreakpointInstruction() []byte {
	return a.breakpointInstruction
}

// BreakpointSize returns the size of the
// breakpoint instruction on this architecture.
func (a *Arch) BreakpointSize() int {
	return len(a.breakpointInstruction)
}

// BreakInstrMovesPC returns whether the
// breakpoint instruction will change the value
// of PC after being executed
func (a *Arch) BreakInstrMovesPC() bool {
	return a.breakInstrMovesPC
}

// canonicalRegName returns the entry of RegisterNames that name refers to,
// matching case insensitively and resolving aliases.
func (a *Arch) canonicalRegName(name string) (string, bool) {
	for _, n := range a.RegisterNames {
		if strings.EqualFold(n, name) {
			return n, true
		}
	}
	if n, ok := a.registerAliases[strings.ToLower(name)]; ok {
		return n, true
	}
	return "", false
}
