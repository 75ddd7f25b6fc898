//go:build linux && amd64

package native

import (
	"fmt"
	"syscall"

	sys "golang.org/x/sys/unix"

	"github.com/go-delve/zdbg/pkg/proc"
	"github.com/go-delve/zdbg/pkg/proc/linutil"
)

// ReadMemory reads len(data) bytes at addr. It tries process_vm_readv
// first and falls back to PTRACE_PEEKDATA for whatever it could not read,
// process_vm_readv refuses some mappings that ptrace can access.
func (dbp *nativeProcess) ReadMemory(data []byte, addr uint64) (n int, err error) {
	if err := dbp.checkValid(); err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	dbp.execPtraceFunc(func() {
		n, err = processVmRead(dbp.pid, uintptr(addr), data)
		if err == nil && n == len(data) {
			return
		}
		var m int
		m, err = sys.PtracePeekData(dbp.pid, uintptr(addr)+uintptr(n), data[n:])
		n += m
	})
	if err != nil {
		return n, err
	}
	if n != len(data) {
		return n, syscall.EFAULT
	}
	return n, nil
}

// WriteMemory writes data at addr using PTRACE_POKEDATA, which can write
// to read-only text pages.
func (dbp *nativeProcess) WriteMemory(addr uint64, data []byte) (written int, err error) {
	if err := dbp.checkValid(); err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	dbp.execPtraceFunc(func() { written, err = sys.PtracePokeData(dbp.pid, uintptr(addr), data) })
	return
}

// Registers reads the general purpose registers.
func (dbp *nativeProcess) Registers() (*proc.Registers, error) {
	regs, err := dbp.ptraceRegs()
	if err != nil {
		return nil, err
	}
	return regs.Registers(), nil
}

// SetRegisters writes back the general purpose registers.
func (dbp *nativeProcess) SetRegisters(regs *proc.Registers) error {
	r, err := dbp.ptraceRegs()
	if err != nil {
		return err
	}
	r.SetRegisters(regs)
	sregs := sys.PtraceRegs(*r)
	dbp.execPtraceFunc(func() { err = sys.PtraceSetRegs(dbp.pid, &sregs) })
	if err != nil {
		return fmt.Errorf("could not set registers: %w", err)
	}
	return nil
}

func (dbp *nativeProcess) ptraceRegs() (*linutil.AMD64PtraceRegs, error) {
	if err := dbp.checkValid(); err != nil {
		return nil, err
	}
	var (
		regs sys.PtraceRegs
		err  error
	)
	dbp.execPtraceFunc(func() { err = sys.PtraceGetRegs(dbp.pid, &regs) })
	if err != nil {
		return nil, fmt.Errorf("could not get registers: %w", err)
	}
	r := linutil.AMD64PtraceRegs(regs)
	return &r, nil
}

// Resume continues the process delivering sig.
func (dbp *nativeProcess) Resume(sig syscall.Signal) (err error) {
	if err := dbp.checkValid(); err != nil {
		return err
	}
	dbp.execPtraceFunc(func() { err = ptraceCont(dbp.pid, int(sig)) })
	return
}

// SingleStep executes one instruction delivering sig.
func (dbp *nativeProcess) SingleStep(sig syscall.Signal) (err error) {
	if err := dbp.checkValid(); err != nil {
		return err
	}
	dbp.execPtraceFunc(func() { err = ptraceSingleStep(dbp.pid, int(sig)) })
	return
}
