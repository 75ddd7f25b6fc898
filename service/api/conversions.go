package api

import (
	"fmt"

	"github.com/go-delve/zdbg/pkg/proc"
)

// ConvertBreakpoint converts from a proc.Breakpoint to
// an api.Breakpoint.
func ConvertBreakpoint(bp *proc.Breakpoint) *Breakpoint {
	if bp == nil {
		return nil
	}
	orig := make([]byte, len(bp.OriginalData))
	copy(orig, bp.OriginalData)
	return &Breakpoint{
		ID:            bp.ID,
		Addr:          bp.Addr,
		Disabled:      !bp.Enabled,
		OriginalData:  orig,
		TotalHitCount: bp.TotalHitCount,
	}
}

// ConvertBreakpoints converts a slice of physical breakpoints into a slice
// of API breakpoints.
func ConvertBreakpoints(bps []*proc.Breakpoint) []*Breakpoint {
	r := make([]*Breakpoint, 0, len(bps))
	for _, bp := range bps {
		r = append(r, ConvertBreakpoint(bp))
	}
	return r
}

// ConvertRegisters converts proc.Registers to api.Registers.
func ConvertRegisters(regs *proc.Registers) Registers {
	r := make(Registers, 0)
	for _, reg := range regs.Slice() {
		value := fmt.Sprintf("%#016x", reg.Value)
		if reg.Name == "Rflags" {
			value = proc.DescribeFlags(reg.Value)
		}
		r = append(r, Register{Name: reg.Name, Value: value})
	}
	return r
}

// ConvertAsmInstruction converts from proc.AsmInstruction to api.AsmInstruction.
func ConvertAsmInstruction(inst proc.AsmInstruction) AsmInstruction {
	return AsmInstruction{
		PC:         inst.PC,
		Text:       inst.Text(),
		Bytes:      inst.Bytes,
		Breakpoint: inst.Breakpoint,
		AtPC:       inst.AtPC,
	}
}

// ConvertStopInfo fills the stop related fields of state from si.
func ConvertStopInfo(state *DebuggerState, si *proc.StopInfo) {
	if si == nil {
		return
	}
	state.StopReason = si.Reason.String()
	state.PC = si.PC
	if si.Signal != 0 {
		state.Signal = si.Signal.String()
	}
	state.Breakpoint = ConvertBreakpoint(si.Breakpoint)
	if si.Exited() {
		state.Exited = true
		state.ExitStatus = si.ExitCode
	}
}
