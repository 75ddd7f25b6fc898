//go:build linux && amd64

package native

import (
	"os"
	"runtime"

	"github.com/go-delve/zdbg/pkg/logflags"
	"github.com/go-delve/zdbg/pkg/proc"
)

// nativeProcess represents all of the information the debugger
// is holding onto regarding the process we are debugging.
// It implements proc.Process on top of ptrace(2).
type nativeProcess struct {
	pid int // Process Pid

	loadBase     uint64
	comm         string
	ctty         *os.File
	childProcess bool // this process was launched, not attached to

	ptraceChan     chan func()
	ptraceDoneChan chan interface{}

	exited, detached bool
	exitStatus       int

	log logflags.Logger
}

var _ proc.Process = (*nativeProcess)(nil)

// newProcess returns an initialized Process struct. Before returning,
// it will also launch a goroutine in order to handle ptrace(2)
// functions. For more information, see the documentation on
// `handlePtraceFuncs`.
func newProcess(pid int) *nativeProcess {
	dbp := &nativeProcess{
		pid:            pid,
		ptraceChan:     make(chan func()),
		ptraceDoneChan: make(chan interface{}),
		log:            logflags.NativeLogger(),
	}
	go dbp.handlePtraceFuncs()
	return dbp
}

// Pid returns the process ID.
func (dbp *nativeProcess) Pid() int {
	return dbp.pid
}

// LoadBase returns the load address of a position independent executable.
func (dbp *nativeProcess) LoadBase() uint64 {
	return dbp.loadBase
}

func (dbp *nativeProcess) handlePtraceFuncs() {
	// We must ensure here that we are running on the same thread during
	// while invoking the ptrace(2) syscall. This is due to the fact that ptrace(2) expects
	// all commands after PTRACE_ATTACH to come from the same thread.
	runtime.LockOSThread()

	for fn := range dbp.ptraceChan {
		fn()
		dbp.ptraceDoneChan <- nil
	}
}

func (dbp *nativeProcess) execPtraceFunc(fn func()) {
	dbp.ptraceChan <- fn
	<-dbp.ptraceDoneChan
}

// postExit releases the ptrace goroutine, it must be called once the
// process is gone or detached.
func (dbp *nativeProcess) postExit() {
	if dbp.ctty != nil {
		dbp.ctty.Close()
	}
	close(dbp.ptraceChan)
	close(dbp.ptraceDoneChan)
}

func (dbp *nativeProcess) checkValid() error {
	if dbp.detached {
		return proc.ErrProcessDetached
	}
	if dbp.exited {
		return proc.ErrProcessExited{Pid: dbp.pid, Status: dbp.exitStatus}
	}
	return nil
}
