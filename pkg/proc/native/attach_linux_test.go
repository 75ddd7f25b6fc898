//go:build linux && amd64

package native

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"testing"

	protest "github.com/go-delve/zdbg/pkg/proc/test"
)

func tracerPid(t *testing.T, pid int) int {
	status, err := os.ReadFile(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		t.Fatal(err)
	}
	for _, line := range bytes.Split(status, []byte("\n")) {
		if v, ok := bytes.CutPrefix(line, []byte("TracerPid:")); ok {
			n, err := strconv.Atoi(strings.TrimSpace(string(v)))
			if err != nil {
				t.Fatal(err)
			}
			return n
		}
	}
	t.Fatalf("no TracerPid in /proc/%d/status", pid)
	return 0
}

func TestReleaseAttach(t *testing.T) {
	fixture := protest.BuildFixture(t, "spin")
	cmd := exec.Command(fixture.Path)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.Fatal(err)
	}
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() {
		cmd.Process.Kill()
		cmd.Wait()
	}()
	if _, err := bufio.NewReader(stdout).ReadString('\n'); err != nil {
		t.Fatal(err)
	}
	pid := cmd.Process.Pid

	// The stop caused by the attach is left unreaped, as it is when an
	// attach fails part way through.
	dbp := newProcess(pid)
	dbp.execPtraceFunc(func() { err = ptraceAttach(pid) })
	if errors.Is(err, syscall.EPERM) {
		dbp.postExit()
		t.Skip("not allowed to attach:", err)
	}
	if err != nil {
		dbp.postExit()
		t.Fatal(err)
	}

	dbp.releaseAttach()

	if tracer := tracerPid(t, pid); tracer != 0 {
		t.Fatalf("process still traced by %d", tracer)
	}
	select {
	case _, ok := <-dbp.ptraceChan:
		if ok {
			t.Fatal("unexpected ptrace request")
		}
	default:
		t.Fatal("ptrace goroutine not released")
	}
	if err := syscall.Kill(pid, 0); err != nil {
		t.Fatalf("process gone after release: %v", err)
	}
}
