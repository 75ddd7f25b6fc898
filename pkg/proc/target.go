package proc

import (
	"errors"
	"fmt"
	"syscall"

	lru "github.com/hashicorp/golang-lru"

	"github.com/go-delve/zdbg/pkg/logflags"
)

var (
	// ErrTargetAbandoned is returned by every operation except Detach on a
	// target whose execution state could not be kept consistent.
	ErrTargetAbandoned = errors.New("target is in an inconsistent state, only quit is possible")

	// ErrProcessDetached indicates that we detached from the target process.
	ErrProcessDetached = errors.New("detached from the process")

	// ErrNotStopped is returned when registers or memory are accessed while
	// the process is not stopped.
	ErrNotStopped = errors.New("process is not stopped")
)

// ErrProcessExited indicates that the process has exited and contains both
// process id and exit status.
type ErrProcessExited struct {
	Pid    int
	Status int
}

func (pe ErrProcessExited) Error() string {
	return fmt.Sprintf("Process %d has exited with status %d", pe.Pid, pe.Status)
}

// ExecutionError is returned when an operating system request fails while
// the target is being stepped over a breakpoint or resumed. After an
// ExecutionError the target is abandoned.
type ExecutionError struct {
	Op  string
	Err error
}

func (err *ExecutionError) Error() string {
	return fmt.Sprintf("execution error during %s: %v", err.Op, err.Err)
}

func (err *ExecutionError) Unwrap() error {
	return err.Err
}

// TargetState is the run state of the target process.
type TargetState uint8

const (
	StateStopped TargetState = iota
	StateRunning
	StateExited
	StateSignaled
	StateDetached
)

func (s TargetState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateSignaled:
		return "signaled"
	case StateDetached:
		return "detached"
	}
	return "unknown"
}

// StopReason describes the reason why the target process is stopped.
type StopReason uint8

const (
	StopUnknown             StopReason = iota
	StopLaunched                       // The process was just launched
	StopAttached                       // The debugger stopped the process after attaching
	StopBreakpoint                     // The process hit a breakpoint
	StopStep                           // A single instruction step completed
	StopHardcodedBreakpoint            // The process executed a breakpoint instruction it contains
	StopSignal                         // The process received a signal
	StopExited                         // The process exited
	StopSignaled                       // The process was killed by a signal
)

func (sr StopReason) String() string {
	switch sr {
	case StopLaunched:
		return "launched"
	case StopAttached:
		return "attached"
	case StopBreakpoint:
		return "breakpoint"
	case StopStep:
		return "step"
	case StopHardcodedBreakpoint:
		return "hardcoded breakpoint"
	case StopSignal:
		return "signal"
	case StopExited:
		return "exited"
	case StopSignaled:
		return "signaled"
	}
	return "unknown"
}

// StopInfo describes the last state change of the target.
type StopInfo struct {
	Reason StopReason
	PC     uint64
	// Breakpoint is the breakpoint that was hit for StopBreakpoint, or the
	// breakpoint at PC after a StopStep.
	Breakpoint *Breakpoint
	// Signal is the signal that stopped or terminated the process.
	Signal   syscall.Signal
	ExitCode int
}

// Exited returns true if the process is gone.
func (si *StopInfo) Exited() bool {
	return si.Reason == StopExited || si.Reason == StopSignaled
}

// NewTargetConfig are the parameters of NewTarget.
type NewTargetConfig struct {
	Path         string     // path of the executable, informational
	StopReason   StopReason // StopLaunched or StopAttached
	ChildProcess bool       // the process was launched by the debugger
}

// Target represents the process being debugged. It owns the breakpoint
// table of the process and is the only place where the process is resumed.
type Target struct {
	proc        Process
	arch        *Arch
	breakpoints *BreakpointMap

	path         string
	childProcess bool
	state        TargetState
	lastStop     *StopInfo

	// pendingSignal is a signal that stopped the process and must be
	// delivered when it is resumed.
	pendingSignal syscall.Signal

	// abandoned is the error that made the execution state unreliable.
	abandoned error

	// instCache caches decoded instructions of the logical memory image.
	// It is purged every time the process runs or memory is written.
	instCache *lru.Cache

	log logflags.Logger
}

const instCacheSize = 1024

// NewTarget returns a Target for a stopped process.
func NewTarget(p Process, arch *Arch, cfg NewTargetConfig) (*Target, error) {
	cache, err := lru.New(instCacheSize)
	if err != nil {
		return nil, err
	}
	t := &Target{
		proc:         p,
		arch:         arch,
		breakpoints:  NewBreakpointMap(p, arch),
		path:         cfg.Path,
		childProcess: cfg.ChildProcess,
		state:        StateStopped,
		instCache:    cache,
		log:          logflags.DebuggerLogger().WithField("pid", p.Pid()),
	}
	pc, err := t.currentPC()
	if err != nil {
		return nil, err
	}
	t.lastStop = &StopInfo{Reason: cfg.StopReason, PC: pc}
	return t, nil
}

// Pid returns the process ID.
func (t *Target) Pid() int {
	return t.proc.Pid()
}

// Path returns the path of the executable.
func (t *Target) Path() string {
	return t.path
}

// Arch returns the architecture of the target.
func (t *Target) Arch() *Arch {
	return t.arch
}

// ChildProcess returns true if the debugger launched the process.
func (t *Target) ChildProcess() bool {
	return t.childProcess
}

// State returns the run state of the process.
func (t *Target) State() TargetState {
	return t.state
}

// LastStop returns the last state change of the process.
func (t *Target) LastStop() *StopInfo {
	return t.lastStop
}

// Abandoned returns the error that made the target unusable, or nil.
func (t *Target) Abandoned() error {
	return t.abandoned
}

// LoadBase returns the load address of a position independent executable.
func (t *Target) LoadBase() uint64 {
	return t.proc.LoadBase()
}

// Breakpoints returns the breakpoint table.
func (t *Target) Breakpoints() *BreakpointMap {
	return t.breakpoints
}

// Valid returns whether the process is still attached to and
// has not exited.
func (t *Target) Valid() (bool, error) {
	switch t.state {
	case StateDetached:
		return false, ErrProcessDetached
	case StateExited, StateSignaled:
		return false, ErrProcessExited{Pid: t.Pid(), Status: t.lastStop.ExitCode}
	}
	if t.abandoned != nil {
		return false, fmt.Errorf("%w: %v", ErrTargetAbandoned, t.abandoned)
	}
	return true, nil
}

// checkStopped returns an error unless the process can be inspected.
func (t *Target) checkStopped(op string) error {
	if ok, err := t.Valid(); !ok {
		return err
	}
	if t.state != StateStopped {
		return &AccessError{Op: op, Err: ErrNotStopped}
	}
	return nil
}

// SetBreakpoint sets a breakpoint at addr. Setting a breakpoint where one
// already exists returns the existing breakpoint and a *DuplicateError.
func (t *Target) SetBreakpoint(addr uint64) (*Breakpoint, error) {
	if err := t.checkStopped("set breakpoint"); err != nil {
		return nil, err
	}
	bp, err := t.breakpoints.Set(addr)
	if err == nil {
		t.log.Debugf("breakpoint %d set at %#x, original data %x", bp.ID, bp.Addr, bp.OriginalData)
	}
	return bp, err
}

// ClearBreakpoint removes the breakpoint with the given id.
func (t *Target) ClearBreakpoint(id int) (*Breakpoint, error) {
	if err := t.checkStopped("clear breakpoint"); err != nil {
		return nil, err
	}
	return t.breakpoints.Remove(id)
}

// EnableBreakpoint enables the breakpoint with the given id.
func (t *Target) EnableBreakpoint(id int) (*Breakpoint, error) {
	if err := t.checkStopped("enable breakpoint"); err != nil {
		return nil, err
	}
	return t.breakpoints.Enable(id)
}

// DisableBreakpoint disables the breakpoint with the given id.
func (t *Target) DisableBreakpoint(id int) (*Breakpoint, error) {
	if err := t.checkStopped("disable breakpoint"); err != nil {
		return nil, err
	}
	return t.breakpoints.Disable(id)
}

// Registers returns a snapshot of the registers.
func (t *Target) Registers() (*Registers, error) {
	if err := t.checkStopped("read registers"); err != nil {
		return nil, err
	}
	regs, err := t.proc.Registers()
	if err != nil {
		return nil, &AccessError{Op: "read registers", Err: err}
	}
	return regs, nil
}

// SetRegisters replaces all registers.
func (t *Target) SetRegisters(regs *Registers) error {
	if err := t.checkStopped("write registers"); err != nil {
		return err
	}
	if err := t.proc.SetRegisters(regs); err != nil {
		return &AccessError{Op: "write registers", Err: err}
	}
	t.lastStop.PC = regs.PC()
	return nil
}

// SetRegister changes a single register, leaving the others untouched.
func (t *Target) SetRegister(name string, value uint64) error {
	regs, err := t.Registers()
	if err != nil {
		return err
	}
	if err := regs.Set(name, value); err != nil {
		return &AccessError{Op: "write registers", Err: err}
	}
	return t.SetRegisters(regs)
}

// ReadMemory reads raw memory, breakpoint instructions included.
func (t *Target) ReadMemory(addr uint64, length int) ([]byte, error) {
	if err := t.checkStopped("read memory"); err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, &AccessError{Op: "read memory", Addr: addr, Err: ErrNegativeLength}
	}
	buf := make([]byte, length)
	if length == 0 {
		return buf, nil
	}
	if err := readFull(t.proc, buf, addr); err != nil {
		return nil, err
	}
	return buf, nil
}

// LogicalReadMemory reads memory as the program sees it, with the
// breakpoint instructions replaced by the original data.
func (t *Target) LogicalReadMemory(addr uint64, length int) ([]byte, error) {
	if err := t.checkStopped("read memory"); err != nil {
		return nil, err
	}
	return t.breakpoints.LogicalRead(addr, length)
}

// WriteMemory writes data at addr. Breakpoints inside the written range
// stay installed and take the written bytes as their original data.
func (t *Target) WriteMemory(addr uint64, data []byte) error {
	if err := t.checkStopped("write memory"); err != nil {
		return err
	}
	t.instCache.Purge()
	if err := writeFull(t.proc, addr, data); err != nil {
		return err
	}
	return t.breakpoints.absorbWrite(addr, data)
}

func (t *Target) currentPC() (uint64, error) {
	regs, err := t.proc.Registers()
	if err != nil {
		return 0, err
	}
	return regs.PC(), nil
}

// abandon marks the target unusable and returns the execution error.
func (t *Target) abandon(op string, err error) error {
	execErr := &ExecutionError{Op: op, Err: err}
	t.abandoned = execErr
	t.log.Errorf("abandoning target: %v", execErr)
	return execErr
}

func (t *Target) checkCanResume() error {
	if ok, err := t.Valid(); !ok {
		return err
	}
	if t.state != StateStopped {
		return fmt.Errorf("can not resume, process is %v", t.state)
	}
	return nil
}

// Continue resumes the process until it hits a breakpoint, receives a
// signal or terminates. If the program counter is on a breakpoint the
// original instruction is executed first, with the breakpoint removed for
// that single instruction.
func (t *Target) Continue() (*StopInfo, error) {
	if err := t.checkCanResume(); err != nil {
		return nil, err
	}
	pc, err := t.currentPC()
	if err != nil {
		return nil, t.abandon("read program counter", err)
	}
	if bp, ok := t.breakpoints.FindInstalled(pc); ok {
		si, err := t.stepOverBreakpoint(bp)
		if err != nil {
			return nil, err
		}
		if si != nil {
			// The single step did not complete normally: the process
			// terminated or received a signal.
			return si, nil
		}
	}

	sig := t.pendingSignal
	t.pendingSignal = 0
	t.log.Debugf("continue from %#x (signal %d)", pc, sig)
	t.state = StateRunning
	t.instCache.Purge()
	if err := t.proc.Resume(sig); err != nil {
		t.state = StateStopped
		return nil, t.abandon("continue", err)
	}
	ev, err := t.proc.Wait()
	if err != nil {
		return nil, t.abandon("wait", err)
	}
	return t.handleStop(ev, false)
}

// StepInstruction executes exactly one instruction. A breakpoint on the
// current instruction is removed for the step and reinstalled afterwards.
func (t *Target) StepInstruction() (*StopInfo, error) {
	if err := t.checkCanResume(); err != nil {
		return nil, err
	}
	pc, err := t.currentPC()
	if err != nil {
		return nil, t.abandon("read program counter", err)
	}
	if bp, ok := t.breakpoints.FindInstalled(pc); ok {
		si, err := t.stepOverBreakpoint(bp)
		if err != nil {
			return nil, err
		}
		if si != nil {
			return si, nil
		}
		return t.stepCompleted()
	}

	ev, err := t.singleStep()
	if err != nil {
		return nil, err
	}
	return t.handleStop(ev, true)
}

// singleStep executes one instruction and waits for the resulting stop.
func (t *Target) singleStep() (StopEvent, error) {
	sig := t.pendingSignal
	t.pendingSignal = 0
	t.state = StateRunning
	t.instCache.Purge()
	if err := t.proc.SingleStep(sig); err != nil {
		t.state = StateStopped
		return StopEvent{}, t.abandon("single step", err)
	}
	ev, err := t.proc.Wait()
	if err != nil {
		return StopEvent{}, t.abandon("wait", err)
	}
	return ev, nil
}

// stepOverBreakpoint executes the instruction replaced by bp: the original
// data is written back, one instruction is stepped and the breakpoint
// instruction is written again. It returns a non-nil StopInfo if the step
// ended with something other than the expected trap.
func (t *Target) stepOverBreakpoint(bp *Breakpoint) (*StopInfo, error) {
	t.log.Debugf("stepping over breakpoint %d at %#x", bp.ID, bp.Addr)
	if err := t.breakpoints.uninstall(bp); err != nil {
		return nil, t.abandon("restore original instruction", err)
	}
	ev, err := t.singleStep()
	if err != nil {
		return nil, err
	}
	if ev.Kind != EventStopped {
		return t.handleStop(ev, true)
	}
	if err := t.breakpoints.install(bp); err != nil {
		t.state = StateStopped
		return nil, t.abandon("reinstall breakpoint", err)
	}
	if ev.Signal != syscall.SIGTRAP {
		return t.handleStop(ev, true)
	}
	t.state = StateStopped
	return nil, nil
}

// stepCompleted records a completed single step.
func (t *Target) stepCompleted() (*StopInfo, error) {
	pc, err := t.currentPC()
	if err != nil {
		return nil, t.abandon("read program counter", err)
	}
	si := &StopInfo{Reason: StopStep, PC: pc}
	if bp, ok := t.breakpoints.Find(pc); ok {
		si.Breakpoint = bp
	}
	t.state = StateStopped
	t.lastStop = si
	return si, nil
}

// handleStop converts a stop event into a StopInfo, rewinding the program
// counter if the process stopped on one of our breakpoints.
func (t *Target) handleStop(ev StopEvent, stepping bool) (*StopInfo, error) {
	t.log.Debugf("stop event %v", ev)
	switch ev.Kind {
	case EventExited:
		return t.exited(&StopInfo{Reason: StopExited, ExitCode: ev.ExitCode}), nil
	case EventSignaled:
		return t.exited(&StopInfo{Reason: StopSignaled, Signal: ev.Signal, ExitCode: -int(ev.Signal)}), nil
	}

	t.state = StateStopped
	if ev.Signal != syscall.SIGTRAP {
		t.pendingSignal = ev.Signal
		pc, err := t.currentPC()
		if err != nil {
			return nil, t.abandon("read program counter", err)
		}
		t.lastStop = &StopInfo{Reason: StopSignal, PC: pc, Signal: ev.Signal}
		return t.lastStop, nil
	}

	if stepping {
		return t.stepCompleted()
	}

	regs, err := t.proc.Registers()
	if err != nil {
		return nil, t.abandon("read registers", err)
	}
	pc := regs.PC()
	bpaddr := pc
	if t.arch.BreakInstrMovesPC() {
		bpaddr = pc - uint64(t.arch.BreakpointSize())
	}
	if bp, ok := t.breakpoints.FindInstalled(bpaddr); ok {
		if bpaddr != pc {
			regs.SetPC(bpaddr)
			if err := t.proc.SetRegisters(regs); err != nil {
				return nil, t.abandon("rewind program counter", err)
			}
		}
		bp.TotalHitCount++
		t.lastStop = &StopInfo{Reason: StopBreakpoint, PC: bpaddr, Breakpoint: bp}
		return t.lastStop, nil
	}

	si := &StopInfo{Reason: StopSignal, PC: pc, Signal: ev.Signal}
	if t.arch.BreakInstrMovesPC() {
		buf := make([]byte, t.arch.BreakpointSize())
		if _, err := t.proc.ReadMemory(buf, bpaddr); err == nil && t.breakpoints.isBreakpointInstruction(buf) {
			si.Reason = StopHardcodedBreakpoint
		}
	}
	t.lastStop = si
	return si, nil
}

func (t *Target) exited(si *StopInfo) *StopInfo {
	if si.Reason == StopExited {
		t.state = StateExited
	} else {
		t.state = StateSignaled
	}
	t.breakpoints.Clear()
	t.instCache.Purge()
	t.lastStop = si
	t.log.Debugf("process %d %v (status %d)", t.Pid(), si.Reason, si.ExitCode)
	return si
}

// Detach stops debugging the process. The original data of every
// breakpoint is written back first so that the process continues with an
// unmodified code image. If kill is true the process is killed instead of
// released.
func (t *Target) Detach(kill bool) error {
	switch t.state {
	case StateExited, StateSignaled, StateDetached:
		return nil
	}
	if err := t.breakpoints.RestoreAll(); err != nil {
		if !kill {
			return fmt.Errorf("could not restore breakpoints before detaching: %w", err)
		}
		t.log.Warnf("could not restore breakpoints before killing: %v", err)
	}
	t.breakpoints.Clear()
	if kill {
		if err := t.proc.Kill(); err != nil {
			return err
		}
		t.exited(&StopInfo{Reason: StopSignaled, Signal: syscall.SIGKILL, ExitCode: -int(syscall.SIGKILL)})
		return nil
	}
	sig := t.pendingSignal
	t.pendingSignal = 0
	if err := t.proc.Detach(sig); err != nil {
		t.pendingSignal = sig
		return err
	}
	t.state = StateDetached
	return nil
}
