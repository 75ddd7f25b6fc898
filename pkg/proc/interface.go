package proc

import (
	"errors"
	"fmt"
	"syscall"
)

// Process is the interface a backend implements to give the debugger core
// control over one traced process. Every method except Pid requires the
// process to be stopped, and none of them is safe for concurrent use.
type Process interface {
	MemoryReadWriter

	Pid() int

	// Registers reads the general purpose registers.
	Registers() (*Registers, error)
	// SetRegisters replaces the general purpose registers.
	SetRegisters(*Registers) error

	// Resume continues the process, delivering sig if it is not zero.
	Resume(sig syscall.Signal) error
	// SingleStep executes exactly one instruction, delivering sig if it is
	// not zero.
	SingleStep(sig syscall.Signal) error
	// Wait blocks until the process stops or terminates.
	Wait() (StopEvent, error)

	// Kill terminates the process and reaps it.
	Kill() error
	// Detach stops tracing, letting the process run unmodified. A non
	// zero sig is delivered to the process as it is released.
	Detach(sig syscall.Signal) error

	// LoadBase returns the address the main executable was mapped at if it
	// is position independent, zero otherwise.
	LoadBase() uint64
}

// StopEventKind is the kind of state change reported by Process.Wait.
type StopEventKind uint8

const (
	// EventStopped means the process is in a tracing stop.
	EventStopped StopEventKind = iota
	// EventExited means the process exited normally.
	EventExited
	// EventSignaled means the process was terminated by a signal.
	EventSignaled
)

// StopEvent is a state change of the traced process.
type StopEvent struct {
	Kind StopEventKind
	// Signal is the stop signal for EventStopped and the terminating
	// signal for EventSignaled.
	Signal syscall.Signal
	// ExitCode is set for EventExited.
	ExitCode int
}

func (ev StopEvent) String() string {
	switch ev.Kind {
	case EventStopped:
		return fmt.Sprintf("stopped(%v)", ev.Signal)
	case EventExited:
		return fmt.Sprintf("exited(%d)", ev.ExitCode)
	case EventSignaled:
		return fmt.Sprintf("signaled(%v)", ev.Signal)
	}
	return "unknown"
}

// LaunchFlags modify how a new process is started.
type LaunchFlags uint8

const (
	// LaunchDisableASLR starts the process with address space layout
	// randomization turned off.
	LaunchDisableASLR LaunchFlags = 1 << iota
)

// LaunchError is returned when a new process can not be started under
// tracing.
type LaunchError struct {
	Path string
	Err  error
}

func (err *LaunchError) Error() string {
	return fmt.Sprintf("could not launch process %q: %v", err.Path, err.Err)
}

func (err *LaunchError) Unwrap() error {
	return err.Err
}

// AttachError is returned when tracing can not be established on an
// existing process.
type AttachError struct {
	Pid int
	Err error
}

func (err *AttachError) Error() string {
	msg := fmt.Sprintf("could not attach to pid %d: %v", err.Pid, err.Err)
	if errors.Is(err.Err, syscall.EPERM) {
		msg += "\nIf you are not root check the value of /proc/sys/kernel/yama/ptrace_scope"
	}
	return msg
}

func (err *AttachError) Unwrap() error {
	return err.Err
}

// ErrNativeBackendDisabled is returned when the native backend is not
// available on this platform.
var ErrNativeBackendDisabled = errors.New("native backend disabled")
