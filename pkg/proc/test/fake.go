package test

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/go-delve/zdbg/pkg/proc"
)

// Opcodes understood by FakeProcess. They are a subset of amd64 so that
// the listings produced by the disassembler are meaningful.
const (
	OpNop   = 0x90 // one byte no-op
	OpRet   = 0xC3 // exits the process with the low byte of rax as status
	OpInt3  = 0xCC // breakpoint trap
	OpMovAL = 0xB0 // mov al, imm8
	OpHlt   = 0xF4 // raises SIGUSR1 and continues after the instruction
	OpUD2a  = 0x0F // 0x0F 0x0B raises SIGILL without advancing
	OpUD2b  = 0x0B
)

// maxFakeSteps bounds a single Resume so that a broken program can not
// hang a test.
const maxFakeSteps = 1 << 20

// ErrFakeRunaway is returned by Wait when the program did not stop within
// maxFakeSteps instructions.
var ErrFakeRunaway = errors.New("fake process did not stop")

type fakeRegion struct {
	addr uint64
	data []byte
}

// FakeProcess implements proc.Process on top of an in-memory byte code
// machine. Memory is a set of regions, every address outside of them is
// unmapped.
type FakeProcess struct {
	pid     int
	arch    *proc.Arch
	regions []fakeRegion
	regs    *proc.Registers

	pending *proc.StopEvent
	exited  bool

	// Trace records the address of every instruction executed.
	Trace []uint64

	// Resumes counts Resume and SingleStep requests.
	Resumes int

	// ResumeErr, SingleStepErr and WriteErr, if set, are returned by the
	// corresponding operation instead of performing it.
	ResumeErr     error
	SingleStepErr error
	WriteErr      error

	Killed   bool
	Detached bool
	// DetachSignal is the signal passed to Detach.
	DetachSignal syscall.Signal
}

// NewFakeProcess returns a stopped FakeProcess with the program counter at
// entry.
func NewFakeProcess(pid int, entry uint64) *FakeProcess {
	arch := proc.AMD64Arch()
	fp := &FakeProcess{
		pid:  pid,
		arch: arch,
		regs: proc.NewRegisters(arch, nil),
	}
	fp.regs.SetPC(entry)
	_ = fp.regs.Set("Rsp", 0x7fff0000)
	return fp
}

// Map adds a memory region containing a copy of data at addr.
func (fp *FakeProcess) Map(addr uint64, data []byte) *FakeProcess {
	buf := make([]byte, len(data))
	copy(buf, data)
	fp.regions = append(fp.regions, fakeRegion{addr: addr, data: buf})
	return fp
}

// Image returns the current content of the memory at addr, ignoring
// breakpoints. It panics if the range is not mapped.
func (fp *FakeProcess) Image(addr uint64, n int) []byte {
	buf := make([]byte, n)
	if _, err := fp.ReadMemory(buf, addr); err != nil {
		panic(err)
	}
	return buf
}

func (fp *FakeProcess) find(addr uint64, n int) ([]byte, bool) {
	for _, r := range fp.regions {
		if addr >= r.addr && addr+uint64(n) <= r.addr+uint64(len(r.data)) {
			off := addr - r.addr
			return r.data[off : off+uint64(n)], true
		}
	}
	return nil, false
}

func (fp *FakeProcess) Pid() int { return fp.pid }

func (fp *FakeProcess) LoadBase() uint64 { return 0 }

func (fp *FakeProcess) ReadMemory(buf []byte, addr uint64) (int, error) {
	mem, ok := fp.find(addr, len(buf))
	if !ok {
		return 0, syscall.EFAULT
	}
	return copy(buf, mem), nil
}

func (fp *FakeProcess) WriteMemory(addr uint64, data []byte) (int, error) {
	if fp.WriteErr != nil {
		return 0, fp.WriteErr
	}
	mem, ok := fp.find(addr, len(data))
	if !ok {
		return 0, syscall.EFAULT
	}
	return copy(mem, data), nil
}

func (fp *FakeProcess) Registers() (*proc.Registers, error) {
	if fp.exited {
		return nil, syscall.ESRCH
	}
	return fp.regs.Copy(), nil
}

func (fp *FakeProcess) SetRegisters(regs *proc.Registers) error {
	if fp.exited {
		return syscall.ESRCH
	}
	fp.regs = regs.Copy()
	return nil
}

func (fp *FakeProcess) Resume(sig syscall.Signal) error {
	if fp.ResumeErr != nil {
		return fp.ResumeErr
	}
	fp.Resumes++
	if fp.deliver(sig) {
		return nil
	}
	for i := 0; i < maxFakeSteps; i++ {
		if ev, stop := fp.exec(); stop {
			fp.pending = &ev
			return nil
		}
	}
	return nil
}

func (fp *FakeProcess) SingleStep(sig syscall.Signal) error {
	if fp.SingleStepErr != nil {
		return fp.SingleStepErr
	}
	fp.Resumes++
	if fp.deliver(sig) {
		return nil
	}
	ev, stop := fp.exec()
	if !stop {
		ev = proc.StopEvent{Kind: proc.EventStopped, Signal: syscall.SIGTRAP}
	}
	fp.pending = &ev
	return nil
}

// deliver applies the default action of sig, which terminates the process
// for every signal the machine can raise.
func (fp *FakeProcess) deliver(sig syscall.Signal) bool {
	if sig == 0 {
		return false
	}
	fp.exited = true
	fp.pending = &proc.StopEvent{Kind: proc.EventSignaled, Signal: sig}
	return true
}

// exec executes the instruction at PC and returns the resulting event if
// the process stopped.
func (fp *FakeProcess) exec() (proc.StopEvent, bool) {
	pc := fp.regs.PC()
	var op [2]byte
	if _, err := fp.ReadMemory(op[:1], pc); err != nil {
		return proc.StopEvent{Kind: proc.EventStopped, Signal: syscall.SIGSEGV}, true
	}
	fp.Trace = append(fp.Trace, pc)
	switch op[0] {
	case OpNop:
		fp.regs.SetPC(pc + 1)
	case OpInt3:
		fp.regs.SetPC(pc + 1)
		return proc.StopEvent{Kind: proc.EventStopped, Signal: syscall.SIGTRAP}, true
	case OpRet:
		rax, _ := fp.regs.Get("Rax")
		fp.exited = true
		return proc.StopEvent{Kind: proc.EventExited, ExitCode: int(rax & 0xff)}, true
	case OpMovAL:
		if _, err := fp.ReadMemory(op[1:], pc+1); err != nil {
			return proc.StopEvent{Kind: proc.EventStopped, Signal: syscall.SIGSEGV}, true
		}
		rax, _ := fp.regs.Get("Rax")
		_ = fp.regs.Set("Rax", rax&^0xff|uint64(op[1]))
		fp.regs.SetPC(pc + 2)
	case OpHlt:
		fp.regs.SetPC(pc + 1)
		return proc.StopEvent{Kind: proc.EventStopped, Signal: syscall.SIGUSR1}, true
	default:
		return proc.StopEvent{Kind: proc.EventStopped, Signal: syscall.SIGILL}, true
	}
	return proc.StopEvent{}, false
}

func (fp *FakeProcess) Wait() (proc.StopEvent, error) {
	if fp.pending == nil {
		if fp.exited {
			return proc.StopEvent{}, syscall.ECHILD
		}
		return proc.StopEvent{}, ErrFakeRunaway
	}
	ev := *fp.pending
	fp.pending = nil
	return ev, nil
}

func (fp *FakeProcess) Kill() error {
	if fp.exited {
		return fmt.Errorf("process %d already exited", fp.pid)
	}
	fp.exited = true
	fp.Killed = true
	return nil
}

func (fp *FakeProcess) Detach(sig syscall.Signal) error {
	fp.Detached = true
	fp.DetachSignal = sig
	return nil
}

// Layout of the program returned by NewFakeProgram. Execution starts at
// FakeEntry and falls into the function at FakeFunc, which loads
// FakeExitCode in al, runs four no-ops and returns at FakeRet: five steps
// from FakeFunc land on the ret. The code at FakeAlt exits with
// FakeAltExitCode.
const (
	FakeEntry       = 0xff8
	FakeFunc        = 0x1000
	FakeRet         = 0x1006
	FakeExitCode    = 42
	FakeAlt         = 0x2000
	FakeAltExitCode = 7
)

// NewFakeProgram returns a FakeProcess loaded with FakeProgram.
func NewFakeProgram() *FakeProcess {
	entry := []byte{OpNop, OpNop, OpNop, OpNop, OpNop, OpNop, OpNop, OpNop}
	fn := []byte{
		OpMovAL, FakeExitCode, // 0x1000
		OpNop,  // 0x1002
		OpNop,  // 0x1003
		OpNop,  // 0x1004
		OpNop,  // 0x1005
		OpRet,  // 0x1006
		OpInt3, // 0x1007 unreachable
	}
	alt := []byte{OpMovAL, FakeAltExitCode, OpRet}
	return NewFakeProcess(1234, FakeEntry).
		Map(FakeEntry, append(entry, fn...)).
		Map(FakeAlt, alt)
}
