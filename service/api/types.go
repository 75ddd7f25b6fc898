package api

import (
	"bytes"
	"fmt"
	"text/tabwriter"
)

// DebuggerState represents the current context of the debugger.
type DebuggerState struct {
	// Pid is the process ID of the target.
	Pid int `json:"pid"`
	// Running is true while the target is executing.
	Running bool `json:"running"`
	// Exited indicates whether the debugged process has exited.
	Exited     bool `json:"exited"`
	ExitStatus int  `json:"exitStatus"`
	// Detached is true after the debugger released the target.
	Detached bool `json:"detached"`
	// Abandoned is set when the target can no longer be controlled
	// reliably, only detaching or killing it is possible.
	Abandoned bool `json:"abandoned"`

	// StopReason describes why the target stopped.
	StopReason string `json:"stopReason"`
	// PC is the program counter where the target is stopped.
	PC uint64 `json:"pc"`
	// Signal is the name of the signal that stopped or killed the target.
	Signal string `json:"signal,omitempty"`
	// Breakpoint is the breakpoint at PC, if any.
	Breakpoint *Breakpoint `json:"breakPoint,omitempty"`

	// Err is set when the state could not be determined.
	Err error `json:"-"`
}

// Breakpoint addresses a location at which process execution may be
// suspended.
type Breakpoint struct {
	// ID is a unique identifier for the breakpoint.
	ID int `json:"id"`
	// Addr is the address of the breakpoint.
	Addr uint64 `json:"addr"`
	// Disabled is true if the breakpoint instruction is not in memory.
	Disabled bool `json:"disabled"`
	// OriginalData is the instruction data replaced by the breakpoint.
	OriginalData []byte `json:"originalData"`
	// number of times a breakpoint has been reached
	TotalHitCount uint64 `json:"totalHitCount"`
}

// Register holds information on a CPU register.
type Register struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Registers is a list of CPU registers.
type Registers []Register

func (regs Registers) String() string {
	maxlen := 0
	for _, reg := range regs {
		if n := len(reg.Name); n > maxlen {
			maxlen = n
		}
	}

	var buf bytes.Buffer
	for _, reg := range regs {
		fmt.Fprintf(&buf, "%*s = %s\n", maxlen, reg.Name, reg.Value)
	}
	return buf.String()
}

// AsmInstruction represents one assembly instruction at some address
type AsmInstruction struct {
	// PC is the address of this instruction
	PC uint64 `json:"pc"`
	// Text is the formatted representation of the instruction
	Text string `json:"text"`
	// Bytes is the instruction as read from memory
	Bytes []byte `json:"bytes"`
	// Breakpoint is true if a breakpoint is set on this instruction
	Breakpoint bool `json:"breakpoint"`
	// AtPC is true if this instruction is the current program counter
	AtPC bool `json:"atPC"`
}

// AsmInstructions is a list of assembly instructions.
type AsmInstructions []AsmInstruction

func (insts AsmInstructions) String() string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 8, 1, '\t', 0)
	for _, inst := range insts {
		atpc := ""
		if inst.AtPC {
			atpc = "=>"
		}
		bp := ""
		if inst.Breakpoint {
			bp = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%#x\t%x\t%s\n", atpc, bp, inst.PC, inst.Bytes, inst.Text)
	}
	w.Flush()
	return buf.String()
}
