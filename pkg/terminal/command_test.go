package terminal

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-delve/zdbg/pkg/config"
	"github.com/go-delve/zdbg/pkg/logflags"
	"github.com/go-delve/zdbg/pkg/proc"
	protest "github.com/go-delve/zdbg/pkg/proc/test"
	"github.com/go-delve/zdbg/service/debugger"
)

func TestMain(m *testing.M) {
	var logConf string
	flag.StringVar(&logConf, "log", "", "configures logging")
	flag.Parse()
	logflags.Setup(logConf != "", logConf, "")
	os.Setenv("GODEBUG", "asyncpreemptoff=1")
	os.Exit(protest.RunTestsWithFixtures(m))
}

type FakeTerminal struct {
	*Term
	t testing.TB
}

const logCommandOutput = false

func (ft *FakeTerminal) Exec(cmdstr string) (outstr string, err error) {
	var buf bytes.Buffer
	termstdout := ft.Term.stdout
	ft.Term.stdout = &buf
	defer func() {
		ft.Term.stdout = termstdout
		outstr = buf.String()
		if logCommandOutput {
			ft.t.Logf("command %q -> %q", cmdstr, outstr)
		}
	}()
	err = ft.cmds.Call(cmdstr, ft.Term)
	return
}

func (ft *FakeTerminal) MustExec(cmdstr string) string {
	outstr, err := ft.Exec(cmdstr)
	if err != nil {
		ft.t.Errorf("output of %q: %q", cmdstr, outstr)
		ft.t.Fatalf("Error executing <%s>: %v", cmdstr, err)
	}
	return outstr
}

func (ft *FakeTerminal) AssertExec(cmdstr, tgt string) {
	out := ft.MustExec(cmdstr)
	if out != tgt {
		ft.t.Fatalf("Error executing %q, expected %q got %q", cmdstr, tgt, out)
	}
}

func (ft *FakeTerminal) AssertExecContains(cmdstr string, tgts ...string) string {
	out := ft.MustExec(cmdstr)
	for _, tgt := range tgts {
		if !strings.Contains(out, tgt) {
			ft.t.Fatalf("Error executing %q, expected output to contain %q got %q", cmdstr, tgt, out)
		}
	}
	return out
}

func (ft *FakeTerminal) AssertExecError(cmdstr, tgterr string) {
	_, err := ft.Exec(cmdstr)
	if err == nil {
		ft.t.Fatalf("Expected error executing %q", cmdstr)
	}
	if err.Error() != tgterr {
		ft.t.Fatalf("Expected error %q executing %q, got error %q", tgterr, cmdstr, err.Error())
	}
}

func newFakeTerminal(t testing.TB, client *debugger.Debugger, conf *config.Config) *FakeTerminal {
	term := New(client, conf)
	term.dumb = true
	return &FakeTerminal{Term: term, t: t}
}

func withFakeTerminal(t testing.TB, conf *config.Config, fn func(ft *FakeTerminal, fp *protest.FakeProcess)) {
	fp := protest.NewFakeProgram()
	tgt, err := proc.NewTarget(fp, proc.AMD64Arch(), proc.NewTargetConfig{Path: "fake", StopReason: proc.StopLaunched, ChildProcess: true})
	if err != nil {
		t.Fatal(err)
	}
	ft := newFakeTerminal(t, debugger.NewWithTarget(&debugger.Config{}, tgt), conf)
	defer ft.Close()
	fn(ft, fp)
}

func trimLines(s string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	return strings.Join(lines, "\n")
}

func TestCommandDefault(t *testing.T) {
	var (
		cmds = Commands{}
		cmd  = cmds.Find("non-existant-command")
	)

	err := cmd(nil, "")
	if err == nil {
		t.Fatal("cmd() did not default")
	}

	if err.Error() != "command not available" {
		t.Fatal("wrong command output")
	}
}

func TestCommandReplayWithoutPreviousCommand(t *testing.T) {
	var (
		cmds = DebugCommands(nil)
		err  = cmds.Call("", nil)
	)

	if err != nil {
		t.Error("Null command not returned", err)
	}
}

func TestComplete(t *testing.T) {
	cmds := DebugCommands(nil)
	if got := cmds.Complete("re"); len(got) != 2 || got[0] != "registers" || got[1] != "regs" {
		t.Fatalf("Complete(re) = %v", got)
	}
	if got := cmds.Complete("zz"); len(got) != 0 {
		t.Fatalf("Complete(zz) = %v", got)
	}
	n := 0
	for _, cmd := range cmds.cmds {
		n += len(cmd.aliases)
	}
	if got := cmds.Complete(""); len(got) != n {
		t.Fatalf("Complete(\"\") returned %d aliases, expected %d", len(got), n)
	}
}

func TestCommandPrefix(t *testing.T) {
	withFakeTerminal(t, nil, func(ft *FakeTerminal, fp *protest.FakeProcess) {
		ft.AssertExecContains("regi", "Rip = 0x0000000000000ff8")
		ft.AssertExec("b 0x1000", "Breakpoint 1 set at 0x1000\n")
		ft.AssertExec("disab 1", "Breakpoint 1 disabled at 0x1000\n")
		ft.AssertExecError("e 1", `ambiguous command "e": enable, exit`)
		ft.AssertExecError("foo", "command not available")
	})
}

func TestBreakContinueExit(t *testing.T) {
	withFakeTerminal(t, nil, func(ft *FakeTerminal, fp *protest.FakeProcess) {
		ft.AssertExec("break 0x1000", "Breakpoint 1 set at 0x1000\n")
		ft.AssertExec("break 0x1000", "Breakpoint 1 already set at 0x1000\n")

		out := ft.AssertExecContains("continue", "> Breakpoint 1 hit at 0x1000 (hits: 1)\n", "mov $0x2a,%al")
		if !strings.Contains(out, "=>") || !strings.Contains(out, "*") {
			t.Fatalf("current instruction not marked: %q", out)
		}

		ft.AssertExec("c", "Process 1234 has exited with status 42\n")
		ft.AssertExecError("c", "Process 1234 has exited with status 42")
		ft.AssertExecError("disassemble", "Process 1234 has exited with status 42")
	})
}

func TestBreakpointBookkeeping(t *testing.T) {
	withFakeTerminal(t, nil, func(ft *FakeTerminal, fp *protest.FakeProcess) {
		ft.AssertExec("breakpoints", "No breakpoints.\n")
		ft.MustExec("b 0x1000")
		ft.MustExec("b 0x2000")
		ft.AssertExec("bp", "Breakpoint 1 at 0x1000 (0)\n\toriginal b0\nBreakpoint 2 at 0x2000 (0)\n\toriginal b0\n")

		ft.AssertExec("disable 2", "Breakpoint 2 disabled at 0x2000\n")
		ft.AssertExecContains("bp", "Breakpoint 2 at 0x2000 (disabled) (0)")
		ft.AssertExec("disable 2", "Breakpoint 2 disabled at 0x2000\n")
		ft.AssertExec("enable 2", "Breakpoint 2 enabled at 0x2000\n")

		ft.AssertExec("delete 1", "Breakpoint 1 cleared at 0x1000\n")
		ft.AssertExecError("clear 1", "no breakpoint with id 1")
		ft.AssertExecError("d foo", `"foo" is not a valid breakpoint id`)
		ft.AssertExecError("d", "not enough arguments")
		ft.AssertExecError("break", "usage: break <address>")

		if img := fp.Image(protest.FakeFunc, 1); img[0] != protest.OpMovAL {
			t.Fatalf("original instruction not restored: %#x", img[0])
		}

		// a deleted id is never reused
		ft.AssertExec("b 0x1000", "Breakpoint 3 set at 0x1000\n")
	})
}

func TestStepCommand(t *testing.T) {
	withFakeTerminal(t, nil, func(ft *FakeTerminal, fp *protest.FakeProcess) {
		ft.AssertExecContains("step", "> Stepped to 0xff9\n", "nop")
		ft.AssertExecContains("", "> Stepped to 0xffa\n")
		ft.AssertExecContains("si 3", "> Stepped to 0xffd\n")
		ft.AssertExecError("step foo", "count must be a positive integer")

		ft.MustExec("b 0x1000")
		ft.AssertExecContains("stepi 100", "> Stepped to 0x1000 (breakpoint 1)\n")
		ft.AssertExecContains("s", "> Stepped to 0x1002\n")
		ft.AssertExecContains("s 10", "Process 1234 has exited with status 42\n")
	})
}

func TestRegisterCommands(t *testing.T) {
	withFakeTerminal(t, nil, func(ft *FakeTerminal, fp *protest.FakeProcess) {
		ft.AssertExec("setreg rax 0x99", "")
		ft.AssertExecContains("registers", "Rax = 0x0000000000000099", "Rip = 0x0000000000000ff8")

		_, err := ft.Exec("set-register bogus 1")
		var unkErr proc.UnknownRegisterError
		if !errors.As(err, &unkErr) {
			t.Fatalf("expected UnknownRegisterError, got %v", err)
		}
		ft.AssertExecError("setreg rax", "usage: set-register <name> <value>")

		ft.MustExec("setreg pc 0x2000")
		ft.AssertExec("c", fmt.Sprintf("Process 1234 has exited with status %d\n", protest.FakeAltExitCode))
	})
}

func TestExamineMemoryCommand(t *testing.T) {
	withFakeTerminal(t, nil, func(ft *FakeTerminal, fp *protest.FakeProcess) {
		ft.MustExec("b 0x1000")

		out := ft.MustExec("x 0x1000 4")
		if got := trimLines(out); got != "0x1000:   0xb0   0x2a   0x90   0x90\n" {
			t.Fatalf("logical view: %q", got)
		}
		out = ft.MustExec("memory -raw 0x1000 4")
		if got := trimLines(out); got != "0x1000:   0xcc   0x2a   0x90   0x90\n" {
			t.Fatalf("raw view: %q", got)
		}
		out = ft.MustExec("x -fmt dec -size 2 0x1000 4")
		if got := trimLines(out); got != "0x1000:   010928   037008\n" {
			t.Fatalf("decimal view: %q", got)
		}

		ft.AssertExecError("x", "no address specified")
		ft.AssertExecError("x -fmt foo 0x1000", `"foo" is not a valid format`)
		ft.AssertExecError("x -size 9 0x1000", "size must be a positive integer (<=8)")
		ft.AssertExecError("x -size 2 0x1000 3", "length 3 is not a multiple of size 2")
		ft.AssertExecError("x 0x1000 5000", "read memory range must be less than or equal to 4096 bytes")
		ft.AssertExecError("x -q 0x1000", `unknown option "-q"`)

		_, err := ft.Exec("x 0x5000 4")
		var accessErr *proc.AccessError
		if !errors.As(err, &accessErr) {
			t.Fatalf("expected AccessError, got %v", err)
		}
	})
}

func TestExamineMemoryLimitFromConfig(t *testing.T) {
	withFakeTerminal(t, &config.Config{MaxMemoryRead: 8}, func(ft *FakeTerminal, fp *protest.FakeProcess) {
		ft.MustExec("x 0x1000 8")
		ft.AssertExecError("x 0x1000 16", "read memory range must be less than or equal to 8 bytes")
	})
}

func TestDisassembleCommand(t *testing.T) {
	withFakeTerminal(t, nil, func(ft *FakeTerminal, fp *protest.FakeProcess) {
		out := ft.MustExec("disassemble")
		if n := strings.Count(out, "\n"); n != 10 {
			t.Fatalf("expected 10 instructions, got %d:\n%s", n, out)
		}
		if !strings.HasPrefix(out, "=>") {
			t.Fatalf("first instruction not marked as current: %q", out)
		}

		ft.MustExec("b 0x1000")
		out = ft.AssertExecContains("disass 0x1000 2", "b02a", "mov $0x2a,%al", "nop")
		if n := strings.Count(out, "\n"); n != 2 {
			t.Fatalf("expected 2 instructions, got %q", out)
		}
		ft.AssertExecError("disass 0x1000 0", "count must be a positive integer")
		ft.AssertExecError("disass 1 2 3", "usage: disassemble [<address>] [<count>]")
	})
}

func TestSymbolNotAvailable(t *testing.T) {
	withFakeTerminal(t, nil, func(ft *FakeTerminal, fp *protest.FakeProcess) {
		if _, err := ft.Exec("break main.main"); err == nil {
			t.Fatal("expected error for a symbol of a process without executable")
		}
		ft.AssertExecError("b main.main+zz", `wrong offset "zz": strconv.ParseUint: parsing "zz": invalid syntax`)
	})
}

func TestExitCommand(t *testing.T) {
	withFakeTerminal(t, nil, func(ft *FakeTerminal, fp *protest.FakeProcess) {
		_, err := ft.Exec("quit -k")
		if _, ok := err.(ExitRequestError); !ok {
			t.Fatalf("expected ExitRequestError, got %v", err)
		}
		if ft.quitKill == nil || !*ft.quitKill {
			t.Fatal("quit -k did not request kill")
		}
		ft.Exec("exit -d")
		if ft.quitKill == nil || *ft.quitKill {
			t.Fatal("exit -d did not request detach")
		}
		ft.Exec("q")
		if ft.quitKill != nil {
			t.Fatal("quit without flags overrides the default")
		}
		ft.AssertExecError("q -z", `unknown option "-z"`)
	})
}

func TestAbandonedTarget(t *testing.T) {
	withFakeTerminal(t, nil, func(ft *FakeTerminal, fp *protest.FakeProcess) {
		ft.MustExec("b 0xff8")
		fp.SingleStepErr = errors.New("single step failed")

		_, err := ft.Exec("continue")
		var execErr *proc.ExecutionError
		if !errors.As(err, &execErr) {
			t.Fatalf("expected ExecutionError, got %v", err)
		}
		_, err = ft.Exec("regs")
		if !errors.Is(err, proc.ErrTargetAbandoned) {
			t.Fatalf("expected ErrTargetAbandoned, got %v", err)
		}

		state, err := ft.client.GetState()
		if err != nil || !state.Abandoned {
			t.Fatalf("state %+v %v", state, err)
		}
		if err := ft.client.Detach(false); err != nil {
			t.Fatalf("Detach: %v", err)
		}
		if !fp.Detached || fp.Image(protest.FakeEntry, 1)[0] != protest.OpNop {
			t.Fatal("process not released with its original code")
		}
	})
}

func TestHelp(t *testing.T) {
	withFakeTerminal(t, nil, func(ft *FakeTerminal, fp *protest.FakeProcess) {
		ft.AssertExecContains("help", "Manipulating breakpoints:", "break (alias: b)", "Type help followed by a command for full documentation.")
		out := ft.MustExec("help x")
		if !strings.HasPrefix(out, "Examine raw memory at the given address.") {
			t.Fatalf("help x: %q", out)
		}
		ft.AssertExecError("help nope", "command not available")
	})
}

func TestConfigAliases(t *testing.T) {
	conf := &config.Config{Aliases: map[string][]string{"breakpoints": {"lsbp"}, "quit": {"bye"}}}
	withFakeTerminal(t, conf, func(ft *FakeTerminal, fp *protest.FakeProcess) {
		ft.AssertExec("lsbp", "No breakpoints.\n")
		if _, err := ft.Exec("bye"); err == nil {
			t.Fatal("alias of quit did not exit")
		}
		if got := ft.cmds.Complete("ls"); len(got) != 1 || got[0] != "lsbp" {
			t.Fatalf("Complete(ls) = %v", got)
		}
	})
}

func TestConfigCommand(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	conf := &config.Config{Aliases: map[string][]string{}}
	withFakeTerminal(t, conf, func(ft *FakeTerminal, fp *protest.FakeProcess) {
		ft.AssertExecError("config", `wrong number of arguments to "config"`)
		ft.AssertExecError("config nope 1", `"nope" is not a configuration parameter`)
		ft.AssertExecError("config max-memory-read x", `argument to "max-memory-read" must be a number`)

		ft.MustExec("config max-memory-read 8")
		ft.AssertExecError("x 0x1000 16", "read memory range must be less than or equal to 8 bytes")
		ft.MustExec("config disable-aslr true")
		if conf.DisableASLR == nil || !*conf.DisableASLR {
			t.Fatalf("disable-aslr not set: %v", conf.DisableASLR)
		}
		ft.MustExec(`config prompt "(dbg) "`)
		if ft.prompt != "(dbg) " {
			t.Fatalf("prompt %q", ft.prompt)
		}

		ft.MustExec("config alias registers r")
		ft.AssertExecContains("r", "Rip = 0x0000000000000ff8")
		list := ft.AssertExecContains("config -list", "registers: r\n", `"(dbg) "`)
		found := false
		for _, line := range strings.Split(list, "\n") {
			if f := strings.Fields(line); len(f) == 2 && f[0] == "max-memory-read" && f[1] == "8" {
				found = true
			}
		}
		if !found {
			t.Fatalf("max-memory-read not listed: %q", list)
		}
		if got := ft.cmds.Complete("r"); len(got) != 3 {
			t.Fatalf("Complete(r) = %v", got)
		}
		ft.MustExec("config alias r")
		if got := ft.cmds.Complete("r"); len(got) != 2 || got[0] != "registers" || got[1] != "regs" {
			t.Fatalf("Complete(r) after removing alias = %v", got)
		}

		ft.AssertExecContains("config -save", "Configuration saved to ")
		saved, err := config.LoadConfig()
		if err != nil {
			t.Fatal(err)
		}
		if saved.GetMaxMemoryRead() != 8 || saved.Prompt != "(dbg) " {
			t.Fatalf("saved configuration %+v", saved)
		}
	})
}

func TestPromptFromConfig(t *testing.T) {
	withFakeTerminal(t, &config.Config{Prompt: "> "}, func(ft *FakeTerminal, fp *protest.FakeProcess) {
		if ft.prompt != "> " {
			t.Fatalf("prompt %q", ft.prompt)
		}
	})
	withFakeTerminal(t, nil, func(ft *FakeTerminal, fp *protest.FakeProcess) {
		if ft.prompt != defaultPrompt {
			t.Fatalf("prompt %q", ft.prompt)
		}
	})
}

func TestExecuteFile(t *testing.T) {
	withFakeTerminal(t, nil, func(ft *FakeTerminal, fp *protest.FakeProcess) {
		path := filepath.Join(t.TempDir(), "init")
		script := "break 0x1000\n\n# comment\nbogus\ncontinue\n"
		if err := os.WriteFile(path, []byte(script), 0600); err != nil {
			t.Fatal(err)
		}
		var buf bytes.Buffer
		ft.stdout = &buf
		if err := ft.cmds.executeFile(ft.Term, path); err != nil {
			t.Fatal(err)
		}
		out := buf.String()
		for _, tgt := range []string{"Breakpoint 1 set at 0x1000\n", path + ":4: command not available\n", "Breakpoint 1 hit at 0x1000"} {
			if !strings.Contains(out, tgt) {
				t.Fatalf("output %q does not contain %q", out, tgt)
			}
		}

		if err := os.WriteFile(path, []byte("quit -k\nbogus\n"), 0600); err != nil {
			t.Fatal(err)
		}
		if _, ok := ft.cmds.executeFile(ft.Term, path).(ExitRequestError); !ok {
			t.Fatal("quit in a script did not stop it")
		}
	})
}

func TestWriteMarkdown(t *testing.T) {
	var buf bytes.Buffer
	DebugCommands(nil).WriteMarkdown(&buf)
	out := buf.String()
	for _, tgt := range []string{"## Running the program\n", "[continue](#continue) | Run until breakpoint or program termination.\n", "## break\n", "Aliases: b\n", historyFile} {
		if !strings.Contains(out, tgt) {
			t.Fatalf("documentation does not contain %q", tgt)
		}
	}
}

func TestTerminalLiveExitcode(t *testing.T) {
	protest.MustSupportNative(t)
	fixture := protest.BuildFixture(t, "exitcode")
	client, err := debugger.New(&debugger.Config{DisableASLR: true}, []string{fixture.Path})
	if err != nil {
		t.Fatal(err)
	}
	ft := newFakeTerminal(t, client, nil)
	defer func() {
		ft.Close()
		client.Detach(true)
	}()

	ft.AssertExec("break main.answer", "Breakpoint 1 set at "+breakpointAddr(t, client)+"\n")
	ft.AssertExecContains("continue", "> Breakpoint 1 hit at ")
	ft.AssertExec("continue", fmt.Sprintf("Process %d has exited with status 3\n", client.ProcessPid()))
}

func breakpointAddr(t *testing.T, client *debugger.Debugger) string {
	addr, err := client.FindSymbol("main.answer")
	if err != nil {
		t.Fatal(err)
	}
	return fmt.Sprintf("%#x", addr)
}
