package debugger

import (
	"errors"
	"sync"

	"github.com/go-delve/zdbg/pkg/logflags"
	"github.com/go-delve/zdbg/pkg/proc"
	"github.com/go-delve/zdbg/pkg/proc/native"
	"github.com/go-delve/zdbg/service"
	"github.com/go-delve/zdbg/service/api"
)

// Debugger service.
//
// Debugger provides a higher level of
// abstraction over proc.Target.
// It handles converting from internal types to
// the types expected by clients. Every operation on the target is
// serialized by targetMutex.
type Debugger struct {
	config *Config
	// arguments to launch a new process.
	processArgs []string

	targetMutex sync.Mutex
	target      *proc.Target

	log logflags.Logger

	running      bool
	runningMutex sync.Mutex
}

var _ service.Client = (*Debugger)(nil)

// Config provides the configuration to start a Debugger.
//
// Only one of ProcessArgs or AttachPid should be specified. If ProcessArgs is
// provided, a new process will be launched. Otherwise, the debugger will try
// to attach to an existing process with AttachPid.
type Config struct {
	// WorkingDir is working directory of the new process. This field is used
	// only when launching a new process.
	WorkingDir string

	// AttachPid is the PID of an existing process to which the debugger should
	// attach.
	AttachPid int

	// DisableASLR starts the new process with address space randomization
	// turned off.
	DisableASLR bool

	// TTY is the path of the terminal the new process uses, empty to share
	// the terminal of the debugger.
	TTY string
}

// New creates a new Debugger. ProcessArgs specify the commandline arguments for the
// new process.
func New(config *Config, processArgs []string) (*Debugger, error) {
	d := &Debugger{
		config:      config,
		processArgs: processArgs,
		log:         logflags.DebuggerLogger(),
	}

	// Create the process by either attaching or launching.
	switch {
	case d.config.AttachPid > 0:
		d.log.Infof("attaching to pid %d", d.config.AttachPid)
		t, err := native.Attach(d.config.AttachPid)
		if err != nil {
			return nil, err
		}
		d.target = t
	default:
		d.log.Infof("launching process with args: %v", d.processArgs)
		var flags proc.LaunchFlags
		if d.config.DisableASLR {
			flags |= proc.LaunchDisableASLR
		}
		t, err := native.Launch(d.processArgs, d.config.WorkingDir, flags, d.config.TTY)
		if err != nil {
			return nil, err
		}
		d.target = t
	}
	return d, nil
}

// NewWithTarget creates a Debugger controlling an existing target.
func NewWithTarget(config *Config, tgt *proc.Target) *Debugger {
	return &Debugger{
		config: config,
		target: tgt,
		log:    logflags.DebuggerLogger(),
	}
}

// ProcessPid returns the PID of the process
// the debugger is attached to.
func (d *Debugger) ProcessPid() int {
	return d.target.Pid()
}

// Launched returns true if the process was started by the debugger.
func (d *Debugger) Launched() bool {
	return d.target.ChildProcess()
}

// Detach detaches from the target process.
// If `kill` is true we will kill the process after
// detaching.
func (d *Debugger) Detach(kill bool) error {
	d.targetMutex.Lock()
	defer d.targetMutex.Unlock()

	d.log.Debugf("detaching (kill=%v)", kill)
	return d.target.Detach(kill)
}

func (d *Debugger) setRunning(running bool) {
	d.runningMutex.Lock()
	d.running = running
	d.runningMutex.Unlock()
}

func (d *Debugger) isRunning() bool {
	d.runningMutex.Lock()
	defer d.runningMutex.Unlock()
	return d.running
}

// GetState returns the current state of the target.
func (d *Debugger) GetState() (*api.DebuggerState, error) {
	d.targetMutex.Lock()
	defer d.targetMutex.Unlock()
	return d.state(), nil
}

// GetStateNonBlocking returns the current state of the target without
// waiting for a running target to stop.
func (d *Debugger) GetStateNonBlocking() (*api.DebuggerState, error) {
	if d.isRunning() {
		return &api.DebuggerState{Pid: d.target.Pid(), Running: true}, nil
	}
	return d.GetState()
}

func (d *Debugger) state() *api.DebuggerState {
	state := &api.DebuggerState{
		Pid:       d.target.Pid(),
		Detached:  d.target.State() == proc.StateDetached,
		Abandoned: d.target.Abandoned() != nil,
	}
	api.ConvertStopInfo(state, d.target.LastStop())
	return state
}

// Continue resumes the target until it stops.
func (d *Debugger) Continue() (*api.DebuggerState, error) {
	return d.resume("continuing", d.target.Continue)
}

// StepInstruction executes one instruction.
func (d *Debugger) StepInstruction() (*api.DebuggerState, error) {
	return d.resume("single stepping", d.target.StepInstruction)
}

func (d *Debugger) resume(descr string, fn func() (*proc.StopInfo, error)) (*api.DebuggerState, error) {
	d.targetMutex.Lock()
	defer d.targetMutex.Unlock()

	d.setRunning(true)
	defer d.setRunning(false)

	d.log.Debug(descr)
	si, err := fn()
	if err != nil {
		var execErr *proc.ExecutionError
		if errors.As(err, &execErr) {
			d.log.WithError(err).Error("target abandoned")
		}
		return nil, err
	}
	d.log.Debugf("stopped: %v at %#x", si.Reason, si.PC)
	return d.state(), nil
}

// CreateBreakpoint creates a breakpoint at addr. If a breakpoint already
// exists at addr it is returned together with a *proc.DuplicateError.
func (d *Debugger) CreateBreakpoint(addr uint64) (*api.Breakpoint, error) {
	d.targetMutex.Lock()
	defer d.targetMutex.Unlock()

	bp, err := d.target.SetBreakpoint(addr)
	if bp == nil {
		return nil, err
	}
	if err == nil {
		d.log.Infof("created breakpoint: %#v", bp)
	}
	return api.ConvertBreakpoint(bp), err
}

// ClearBreakpoint clears a breakpoint.
func (d *Debugger) ClearBreakpoint(id int) (*api.Breakpoint, error) {
	return d.changeBreakpoint("cleared", id, d.target.ClearBreakpoint)
}

// EnableBreakpoint enables a disabled breakpoint.
func (d *Debugger) EnableBreakpoint(id int) (*api.Breakpoint, error) {
	return d.changeBreakpoint("enabled", id, d.target.EnableBreakpoint)
}

// DisableBreakpoint disables a breakpoint.
func (d *Debugger) DisableBreakpoint(id int) (*api.Breakpoint, error) {
	return d.changeBreakpoint("disabled", id, d.target.DisableBreakpoint)
}

func (d *Debugger) changeBreakpoint(descr string, id int, fn func(int) (*proc.Breakpoint, error)) (*api.Breakpoint, error) {
	d.targetMutex.Lock()
	defer d.targetMutex.Unlock()

	bp, err := fn(id)
	if err != nil {
		return nil, err
	}
	d.log.Infof("%s breakpoint: %#v", descr, bp)
	return api.ConvertBreakpoint(bp), nil
}

// ListBreakpoints returns the list of current breakpoints.
func (d *Debugger) ListBreakpoints() ([]*api.Breakpoint, error) {
	d.targetMutex.Lock()
	defer d.targetMutex.Unlock()
	return api.ConvertBreakpoints(d.target.Breakpoints().List()), nil
}

// ListRegisters returns the general purpose registers of the target.
func (d *Debugger) ListRegisters() (api.Registers, error) {
	d.targetMutex.Lock()
	defer d.targetMutex.Unlock()

	regs, err := d.target.Registers()
	if err != nil {
		return nil, err
	}
	return api.ConvertRegisters(regs), nil
}

// SetRegister changes the value of a single register.
func (d *Debugger) SetRegister(name string, value uint64) error {
	d.targetMutex.Lock()
	defer d.targetMutex.Unlock()

	if err := d.target.SetRegister(name, value); err != nil {
		return err
	}
	d.log.Debugf("register %s set to %#x", name, value)
	return nil
}

// ExamineMemory returns the raw memory stored at the given address.
// The amount of data to be read is specified by length.
// If raw is false breakpoint instructions are hidden.
func (d *Debugger) ExamineMemory(address uint64, length int, raw bool) ([]byte, error) {
	d.targetMutex.Lock()
	defer d.targetMutex.Unlock()

	if raw {
		return d.target.ReadMemory(address, length)
	}
	return d.target.LogicalReadMemory(address, length)
}

// Disassemble returns count instructions starting at startPC.
func (d *Debugger) Disassemble(startPC uint64, count int) (api.AsmInstructions, error) {
	d.targetMutex.Lock()
	defer d.targetMutex.Unlock()

	insts, err := d.target.Disassemble(startPC, count)
	if err != nil {
		return nil, err
	}
	r := make(api.AsmInstructions, 0, len(insts))
	for _, inst := range insts {
		r = append(r, api.ConvertAsmInstruction(inst))
	}
	return r, nil
}

// FindSymbol returns the address of the named symbol of the executable.
func (d *Debugger) FindSymbol(name string) (uint64, error) {
	d.targetMutex.Lock()
	defer d.targetMutex.Unlock()
	return d.target.FindSymbol(name)
}
