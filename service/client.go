package service

import (
	"github.com/go-delve/zdbg/service/api"
)

// Client represents a debugger service client. All client methods are
// synchronous.
type Client interface {
	// Returns the pid of the process we are debugging.
	ProcessPid() int
	// Launched returns true if the debugger started the process.
	Launched() bool

	// Detach detaches the debugger, optionally killing the process.
	Detach(killProcess bool) error

	// GetState returns the current debugger state.
	GetState() (*api.DebuggerState, error)
	// GetStateNonBlocking returns the current debugger state, returning immediately if the target is already running.
	GetStateNonBlocking() (*api.DebuggerState, error)

	// Continue resumes process execution.
	Continue() (*api.DebuggerState, error)
	// StepInstruction will step a single cpu instruction.
	StepInstruction() (*api.DebuggerState, error)

	// CreateBreakpoint creates a new breakpoint at addr. If a breakpoint
	// already exists at addr it is returned with a *proc.DuplicateError.
	CreateBreakpoint(addr uint64) (*api.Breakpoint, error)
	// ClearBreakpoint deletes a breakpoint by ID.
	ClearBreakpoint(id int) (*api.Breakpoint, error)
	// EnableBreakpoint reinstalls a disabled breakpoint.
	EnableBreakpoint(id int) (*api.Breakpoint, error)
	// DisableBreakpoint removes the breakpoint from memory keeping it in the list.
	DisableBreakpoint(id int) (*api.Breakpoint, error)
	// ListBreakpoints gets all breakpoints.
	ListBreakpoints() ([]*api.Breakpoint, error)

	// ListRegisters returns the CPU registers.
	ListRegisters() (api.Registers, error)
	// SetRegister changes the value of one register.
	SetRegister(name string, value uint64) error

	// ExamineMemory returns length bytes of memory at address. If raw is
	// false breakpoint instructions are replaced by the original data.
	ExamineMemory(address uint64, length int, raw bool) ([]byte, error)

	// Disassemble disassembles count instructions starting at
	// startPC.
	Disassemble(startPC uint64, count int) (api.AsmInstructions, error)

	// FindSymbol returns the address of a symbol of the executable.
	FindSymbol(name string) (uint64, error)
}
