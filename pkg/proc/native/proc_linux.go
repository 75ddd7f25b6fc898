//go:build linux && amd64

package native

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	isatty "github.com/mattn/go-isatty"
	sys "golang.org/x/sys/unix"

	"github.com/go-delve/zdbg/pkg/proc"
	"github.com/go-delve/zdbg/pkg/proc/linutil"
)

const (
	personalityGetPersonality = 0xffffffff // argument to pass to personality syscall to get the current personality
	_ADDR_NO_RANDOMIZE        = 0x0040000  // ADDR_NO_RANDOMIZE linux constant
)

// Launch creates and begins debugging a new process. First entry in
// `cmd` is the program to run, and then rest are the arguments
// to be supplied to that process. `wd` is working directory of the program.
// If tty is not empty the process uses it as its controlling terminal.
// The process is stopped at the first instruction of the new image.
func Launch(cmd []string, wd string, flags proc.LaunchFlags, tty string) (*proc.Target, error) {
	if len(cmd) == 0 {
		return nil, &proc.LaunchError{Err: errors.New("no program specified")}
	}

	var (
		process *exec.Cmd
		err     error
	)

	dbp := newProcess(0)
	dbp.execPtraceFunc(func() {
		if flags&proc.LaunchDisableASLR != 0 {
			oldPersonality, _, err := syscall.Syscall(sys.SYS_PERSONALITY, personalityGetPersonality, 0, 0)
			if err == syscall.Errno(0) {
				newPersonality := oldPersonality | _ADDR_NO_RANDOMIZE
				syscall.Syscall(sys.SYS_PERSONALITY, newPersonality, 0, 0)
				defer syscall.Syscall(sys.SYS_PERSONALITY, oldPersonality, 0, 0)
			}
		}

		process = exec.Command(cmd[0])
		process.Args = cmd
		process.Stdin = os.Stdin
		process.Stdout = os.Stdout
		process.Stderr = os.Stderr
		process.SysProcAttr = &syscall.SysProcAttr{
			Ptrace:  true,
			Setpgid: true,
		}
		if tty != "" {
			dbp.ctty, err = attachProcessToTTY(process, tty)
			if err != nil {
				return
			}
		}
		if wd != "" {
			process.Dir = wd
		}
		err = process.Start()
	})
	if err != nil {
		dbp.postExit()
		return nil, &proc.LaunchError{Path: cmd[0], Err: err}
	}
	dbp.pid = process.Process.Pid
	dbp.childProcess = true

	ev, err := dbp.Wait()
	if err != nil {
		dbp.Kill()
		return nil, &proc.LaunchError{Path: cmd[0], Err: fmt.Errorf("waiting for target execve failed: %w", err)}
	}
	if ev.Kind != proc.EventStopped || ev.Signal != syscall.SIGTRAP {
		if ev.Kind == proc.EventStopped {
			dbp.Kill()
		}
		return nil, &proc.LaunchError{Path: cmd[0], Err: fmt.Errorf("unexpected initial state %v", ev)}
	}

	dbp.execPtraceFunc(func() { err = syscall.PtraceSetOptions(dbp.pid, sys.PTRACE_O_EXITKILL) })
	if err != nil {
		dbp.Kill()
		return nil, &proc.LaunchError{Path: cmd[0], Err: fmt.Errorf("could not set ptrace options: %w", err)}
	}

	return dbp.initialize(findExecutable(dbp.pid), proc.StopLaunched)
}

// Attach to an existing process with the given PID. The process is
// stopped when Attach returns.
func Attach(pid int) (*proc.Target, error) {
	dbp := newProcess(pid)

	var err error
	dbp.execPtraceFunc(func() { err = ptraceAttach(dbp.pid) })
	if err != nil {
		dbp.postExit()
		return nil, &proc.AttachError{Pid: pid, Err: err}
	}

	// Other signals may be reported before the SIGSTOP sent by
	// PTRACE_ATTACH, they are delivered back to the process.
	for {
		ev, err := dbp.Wait()
		if err != nil {
			dbp.releaseAttach()
			return nil, &proc.AttachError{Pid: pid, Err: err}
		}
		if ev.Kind != proc.EventStopped {
			// Wait already released the process.
			return nil, &proc.AttachError{Pid: pid, Err: fmt.Errorf("process terminated while attaching: %v", ev)}
		}
		if ev.Signal == syscall.SIGSTOP {
			break
		}
		if err := dbp.Resume(ev.Signal); err != nil {
			dbp.releaseAttach()
			return nil, &proc.AttachError{Pid: pid, Err: err}
		}
	}

	return dbp.initialize(findExecutable(pid), proc.StopAttached)
}

// releaseAttach undoes a PTRACE_ATTACH that could not be completed and
// releases the ptrace goroutine. The process may already be gone.
func (dbp *nativeProcess) releaseAttach() {
	var err error
	dbp.execPtraceFunc(func() { err = ptraceDetach(dbp.pid, 0) })
	if errors.Is(err, sys.ESRCH) {
		// Not in a ptrace stop yet, wait for the stop caused by the attach.
		var s sys.WaitStatus
		if _, werr := sys.Wait4(dbp.pid, &s, sys.WALL, nil); werr == nil && s.Stopped() {
			sig := 0
			if s.StopSignal() != sys.SIGSTOP {
				sig = int(s.StopSignal())
			}
			dbp.execPtraceFunc(func() { err = ptraceDetach(dbp.pid, sig) })
		}
	}
	if err != nil {
		dbp.log.Debugf("could not detach from %d: %v", dbp.pid, err)
	}
	dbp.detached = true
	dbp.postExit()
}

// findExecutable returns the path of the executable running as pid. The
// link is resolved so that the file can still be opened after the process
// is gone.
func findExecutable(pid int) string {
	path := fmt.Sprintf("/proc/%d/exe", pid)
	if exe, err := os.Readlink(path); err == nil {
		return exe
	}
	return path
}

func (dbp *nativeProcess) initialize(path string, reason proc.StopReason) (*proc.Target, error) {
	comm, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", dbp.pid))
	if err == nil {
		dbp.comm = string(bytes.TrimSuffix(comm, []byte("\n")))
	}

	dbp.loadBase, err = linutil.LoadBase(dbp.pid, proc.AMD64Arch().PtrSize())
	if err != nil {
		dbp.log.Warnf("could not determine load base of %d: %v", dbp.pid, err)
	}
	dbp.log.Debugf("initialized pid=%d comm=%q load base %#x", dbp.pid, dbp.comm, dbp.loadBase)

	tgt, err := proc.NewTarget(dbp, proc.AMD64Arch(), proc.NewTargetConfig{
		Path:         path,
		StopReason:   reason,
		ChildProcess: dbp.childProcess,
	})
	if err != nil {
		if dbp.childProcess {
			dbp.Kill()
		} else {
			dbp.Detach(0)
		}
		return nil, err
	}
	return tgt, nil
}

// Wait blocks until the process stops or terminates.
func (dbp *nativeProcess) Wait() (proc.StopEvent, error) {
	if err := dbp.checkValid(); err != nil {
		return proc.StopEvent{}, err
	}
	status, err := dbp.wait()
	if err != nil {
		return proc.StopEvent{}, err
	}
	switch {
	case status.Exited():
		dbp.exited = true
		dbp.exitStatus = status.ExitStatus()
		dbp.postExit()
		return proc.StopEvent{Kind: proc.EventExited, ExitCode: status.ExitStatus()}, nil
	case status.Signaled():
		dbp.exited = true
		dbp.exitStatus = -int(status.Signal())
		dbp.postExit()
		return proc.StopEvent{Kind: proc.EventSignaled, Signal: status.Signal()}, nil
	case status.Stopped():
		return proc.StopEvent{Kind: proc.EventStopped, Signal: status.StopSignal()}, nil
	}
	return proc.StopEvent{}, fmt.Errorf("unexpected wait status %#x", uint32(status))
}

func (dbp *nativeProcess) wait() (sys.WaitStatus, error) {
	var s sys.WaitStatus
	for {
		wpid, err := sys.Wait4(dbp.pid, &s, sys.WALL, nil)
		if err == sys.EINTR {
			continue
		}
		if err != nil {
			return s, err
		}
		if wpid == dbp.pid {
			return s, nil
		}
	}
}

// Kill kills the target process.
func (dbp *nativeProcess) Kill() error {
	if dbp.exited {
		return nil
	}
	if dbp.detached {
		return proc.ErrProcessDetached
	}
	if err := sys.Kill(dbp.pid, sys.SIGKILL); err != nil {
		return errors.New("could not deliver signal " + err.Error())
	}
	for {
		ev, err := dbp.Wait()
		if err != nil {
			return err
		}
		if ev.Kind != proc.EventStopped {
			return nil
		}
	}
}

// Detach stops tracing the process, letting it continue with sig.
func (dbp *nativeProcess) Detach(sig syscall.Signal) (err error) {
	if err := dbp.checkValid(); err != nil {
		return err
	}
	dbp.execPtraceFunc(func() { err = ptraceDetach(dbp.pid, int(sig)) })
	if err != nil {
		return err
	}
	dbp.detached = true
	dbp.postExit()
	return nil
}

func attachProcessToTTY(process *exec.Cmd, tty string) (*os.File, error) {
	f, err := os.OpenFile(tty, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	if !isatty.IsTerminal(f.Fd()) {
		f.Close()
		return nil, fmt.Errorf("%s is not a terminal", f.Name())
	}
	process.Stdin = f
	process.Stdout = f
	process.Stderr = f
	process.SysProcAttr.Setpgid = false
	process.SysProcAttr.Setsid = true
	process.SysProcAttr.Setctty = true

	return f, nil
}
