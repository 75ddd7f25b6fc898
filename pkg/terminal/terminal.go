package terminal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-delve/liner"
	isatty "github.com/mattn/go-isatty"

	"github.com/go-delve/zdbg/pkg/config"
	"github.com/go-delve/zdbg/pkg/logflags"
	"github.com/go-delve/zdbg/pkg/proc"
	"github.com/go-delve/zdbg/service"
)

const (
	historyFile                 string = ".zdbg_history"
	terminalHighlightEscapeCode string = "\033[%2dm"
	terminalResetEscapeCode     string = "\033[0m"
	defaultPrompt               string = "(zdbg) "
)

const ansiBlue = 34

// Term represents the terminal running zdbg.
type Term struct {
	client   service.Client
	conf     *config.Config
	prompt   string
	line     *liner.State
	cmds     *Commands
	dumb     bool
	stdout   io.Writer
	InitFile string

	// quitKill is set by the quit command when -k or -d is given.
	quitKill *bool
}

// New returns a new Term.
func New(client service.Client, conf *config.Config) *Term {
	cmds := DebugCommands(client)
	if conf != nil && conf.Aliases != nil {
		cmds.Merge(conf.Aliases)
	}

	if conf == nil {
		conf = &config.Config{}
	}

	var w io.Writer

	dumb := strings.ToLower(os.Getenv("TERM")) == "dumb" || !isatty.IsTerminal(os.Stdout.Fd())
	if dumb {
		w = os.Stdout
	} else {
		w = getColorableWriter()
	}

	prompt := defaultPrompt
	if conf.Prompt != "" {
		prompt = conf.Prompt
	}

	return &Term{
		client: client,
		conf:   conf,
		prompt: prompt,
		line:   liner.NewLiner(),
		cmds:   cmds,
		dumb:   dumb,
		stdout: w,
	}
}

// Close returns the terminal to its previous mode.
func (t *Term) Close() {
	t.line.Close()
}

// sigintGuard reports the state of the target on SIGINT. A running target
// can not be interrupted, the debugger waits for it to stop.
func (t *Term) sigintGuard(ch <-chan os.Signal) {
	for range ch {
		state, err := t.client.GetStateNonBlocking()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			continue
		}
		if state.Running {
			fmt.Fprintf(os.Stderr, "received SIGINT, process %d is running and can not be interrupted\n", state.Pid)
			continue
		}
		fmt.Fprintln(os.Stderr, "received SIGINT, use quit to exit")
	}
}

// Run begins running zdbg in the terminal.
func (t *Term) Run() (int, error) {
	defer t.Close()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT)
	defer signal.Stop(ch)
	go t.sigintGuard(ch)

	t.line.SetCompleter(func(line string) []string {
		return t.cmds.Complete(line)
	})

	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Printf("Unable to load history file: %v.", err)
	}

	f, err := os.Open(fullHistoryFile)
	if err != nil {
		f, err = os.Create(fullHistoryFile)
		if err != nil {
			fmt.Printf("Unable to open history file: %v. History will not be saved for this session.", err)
		}
	}

	if f != nil {
		t.line.ReadHistory(f)
		f.Close()
	}
	fmt.Println("Type 'help' for list of commands.")

	if t.InitFile != "" {
		err := t.cmds.executeFile(t, t.InitFile)
		if err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			fmt.Fprintf(os.Stderr, "Error executing init file: %s\n", err)
		}
	}

	for {
		cmdstr, err := t.promptForInput()
		if err != nil {
			if err == io.EOF {
				fmt.Println("exit")
				return t.handleExit()
			}
			return 1, fmt.Errorf("Prompt for input failed.\n")
		}

		if err := t.cmds.Call(cmdstr, t); err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			t.reportError(err)
		}
	}
}

func (t *Term) reportError(err error) {
	var exitedErr proc.ErrProcessExited
	if errors.As(err, &exitedErr) {
		fmt.Fprintln(os.Stderr, err.Error())
		return
	}
	fmt.Fprintf(os.Stderr, "Command failed: %s\n", err)

	var execErr *proc.ExecutionError
	if errors.As(err, &execErr) || errors.Is(err, proc.ErrTargetAbandoned) {
		fmt.Fprintln(os.Stderr, "The process can not be controlled anymore, use quit to kill it or quit -d to detach.")
	}
}

// Println prints a line to the terminal.
func (t *Term) Println(prefix, str string) {
	if !t.dumb {
		terminalColorEscapeCode := fmt.Sprintf(terminalHighlightEscapeCode, ansiBlue)
		prefix = fmt.Sprintf("%s%s%s", terminalColorEscapeCode, prefix, terminalResetEscapeCode)
	}
	fmt.Fprintf(t.stdout, "%s%s\n", prefix, str)
}

func (t *Term) promptForInput() (string, error) {
	l, err := t.line.Prompt(t.prompt)
	if err != nil {
		return "", err
	}

	l = strings.TrimSuffix(l, "\n")
	if l != "" {
		t.line.AppendHistory(l)
	}

	return l, nil
}

func (t *Term) handleExit() (int, error) {
	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Println("Error saving history file:", err)
	} else {
		if f, err := os.OpenFile(fullHistoryFile, os.O_RDWR, 0666); err == nil {
			_, err = t.line.WriteHistory(f)
			if err != nil {
				fmt.Println("readline history error:", err)
			}
			f.Close()
		}
	}

	s, err := t.client.GetState()
	if err != nil {
		return 1, err
	}
	if s.Exited || s.Detached {
		return 0, nil
	}

	kill := t.client.Launched() || t.conf.KillOnQuit
	if t.quitKill != nil {
		kill = *t.quitKill
	}
	logflags.TerminalLogger().Debugf("quitting, kill=%v", kill)
	if err := t.client.Detach(kill); err != nil {
		return 1, err
	}
	return 0, nil
}
