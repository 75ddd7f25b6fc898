// Package terminal implements functions for responding to user
// input and dispatching to appropriate backend commands.
package terminal

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cosiner/argv"
	"github.com/derekparker/trie"

	"github.com/go-delve/zdbg/pkg/proc"
	"github.com/go-delve/zdbg/service"
	"github.com/go-delve/zdbg/service/api"
)

type cmdfunc func(t *Term, args string) error

type command struct {
	aliases        []string
	builtinAliases []string
	group          commandGroup
	helpMsg        string
	cmdFn          cmdfunc
}

// Returns true if the command string matches one of the aliases for this command
func (c command) match(cmdstr string) bool {
	for _, v := range c.aliases {
		if v == cmdstr {
			return true
		}
	}
	return false
}

// Commands represents the commands for the zdbg terminal.
type Commands struct {
	cmds   []command
	client service.Client
	// prefixes maps every alias to the index of its command in cmds.
	prefixes *trie.Trie
	lastCmd  string
}

// DebugCommands returns a Commands struct with default commands defined.
func DebugCommands(client service.Client) *Commands {
	c := &Commands{client: client}

	c.cmds = []command{
		{aliases: []string{"help", "h"}, cmdFn: c.help, helpMsg: `Prints the help message.

	help [command]

Type "help" followed by the name of a command for more information about it.`},
		{aliases: []string{"break", "b"}, group: breakCmds, cmdFn: breakpoint, helpMsg: `Sets a breakpoint.

	break <address>
	break <symbol>[+<offset>]

The address is a number in Go syntax (0x1000, 4096, 0o10000). Symbols are
looked up in the symbol table of the executable. Setting a breakpoint where
one already exists is not an error, the existing breakpoint is reported.

See also: "help delete", "help disable"`},
		{aliases: []string{"delete", "clear", "d"}, group: breakCmds, cmdFn: clear, helpMsg: `Deletes breakpoint.

	delete <breakpoint id>

The original instruction bytes are written back.`},
		{aliases: []string{"enable"}, group: breakCmds, cmdFn: enable, helpMsg: `Enables a disabled breakpoint.

	enable <breakpoint id>`},
		{aliases: []string{"disable"}, group: breakCmds, cmdFn: disable, helpMsg: `Disables a breakpoint without deleting it.

	disable <breakpoint id>`},
		{aliases: []string{"breakpoints", "bp"}, group: breakCmds, cmdFn: breakpoints, helpMsg: "Print out info for active breakpoints."},
		{aliases: []string{"continue", "c"}, group: runCmds, cmdFn: c.cont, helpMsg: `Run until breakpoint or program termination.

	continue

Stops caused by signals are reported. The signal is delivered to the
program when it is resumed.`},
		{aliases: []string{"step", "si", "stepi", "s"}, group: runCmds, cmdFn: c.stepInstruction, helpMsg: `Single step a single cpu instruction.

	step [count]

With count, steps count instructions, stopping early on a breakpoint, a
signal or program termination.`},
		{aliases: []string{"registers", "regs"}, group: dataCmds, cmdFn: regs, helpMsg: "Print contents of CPU registers."},
		{aliases: []string{"set-register", "setreg"}, group: dataCmds, cmdFn: setRegister, helpMsg: `Changes the value of a CPU register.

	set-register <name> <value>

Register names are case insensitive (rax, RAX, rip, pc, sp).`},
		{aliases: []string{"memory", "x"}, group: dataCmds, cmdFn: c.examineMemory, helpMsg: `Examine raw memory at the given address.

	memory [-raw] [-fmt <format>] [-size <bytes>] <address> [<length>]

Format represents the data format and the value is one of this list (default hex): oct(octal), hex(hexadecimal), dec(decimal), bin(binary).
Size is the size of each displayed item in bytes (1 to 8, default 1).
Length is the number of bytes to read (default 16).
Installed breakpoint instructions are shown as the original bytes they
replace, -raw shows memory as it is.

For example:

    memory -fmt hex 0x401000 32
    x -size 8 -fmt dec main.main 64`},
		{aliases: []string{"disassemble", "disass"}, group: dataCmds, cmdFn: c.disassemble, helpMsg: `Disassembler.

	disassemble [<address>] [<count>]

Without arguments disassembles from the current program counter.
Breakpoints are shown with a '*', the current instruction with '=>'.`},
		{aliases: []string{"config"}, cmdFn: configureCmd, helpMsg: `Changes configuration parameters.

	config -list

Show all configuration parameters.

	config -save

Saves the configuration file to disk, overwriting the current configuration file.

	config <parameter> <value>

Changes the value of a configuration parameter.

	config alias <command> <alias>
	config alias <alias>

Defines <alias> as an alias to <command> or removes an alias.`},
		{aliases: []string{"quit", "exit", "q"}, cmdFn: exitCommand, helpMsg: `Exit the debugger.

	quit [-k|-d]

A launched process is killed, an attached one is detached from unless
kill-on-quit is set in the configuration. -k kills the process and -d
detaches from it, leaving it running. Breakpoint instructions are removed
first in every case.`},
	}

	sort.Sort(byFirstAlias(c.cmds))
	c.buildPrefixes()
	return c
}

// byFirstAlias will sort by the first
// alias of a command.
type byFirstAlias []command

func (a byFirstAlias) Len() int           { return len(a) }
func (a byFirstAlias) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a byFirstAlias) Less(i, j int) bool { return a[i].aliases[0] < a[j].aliases[0] }

func (c *Commands) buildPrefixes() {
	c.prefixes = trie.New()
	for i := range c.cmds {
		for _, alias := range c.cmds[i].aliases {
			c.prefixes.Add(alias, i)
		}
	}
}

// Complete returns the sorted list of aliases starting with prefix.
func (c *Commands) Complete(prefix string) []string {
	r := c.prefixes.PrefixSearch(strings.ToLower(prefix))
	sort.Strings(r)
	return r
}

// Find will look up the command function for the given command input.
// An unambiguous prefix of an alias selects its command. If it cannot find
// the command it will default to noCmdAvailable().
func (c *Commands) Find(cmdstr string) cmdfunc {
	if cmdstr == "" {
		return nullCommand
	}

	for _, v := range c.cmds {
		if v.match(cmdstr) {
			return v.cmdFn
		}
	}

	if c.prefixes == nil {
		return noCmdAvailable
	}
	found := -1
	for _, key := range c.prefixes.PrefixSearch(cmdstr) {
		node, ok := c.prefixes.Find(key)
		if !ok {
			continue
		}
		idx := node.Meta().(int)
		if found >= 0 && found != idx {
			return ambiguousCommand(cmdstr, c.Complete(cmdstr))
		}
		found = idx
	}
	if found < 0 {
		return noCmdAvailable
	}
	return c.cmds[found].cmdFn
}

// Call takes a command to execute. An empty command repeats the previous
// one.
func (c *Commands) Call(cmdstr string, t *Term) error {
	cmdstr = strings.TrimSpace(cmdstr)
	if cmdstr == "" {
		cmdstr = c.lastCmd
	} else {
		c.lastCmd = cmdstr
	}
	vals := strings.SplitN(cmdstr, " ", 2)
	cmdname := vals[0]
	var args string
	if len(vals) > 1 {
		args = strings.TrimSpace(vals[1])
	}
	return c.Find(cmdname)(t, args)
}

// Merge takes aliases defined in the config struct and merges them with the default aliases.
func (c *Commands) Merge(allAliases map[string][]string) {
	for i := range c.cmds {
		if c.cmds[i].builtinAliases != nil {
			c.cmds[i].aliases = append(c.cmds[i].aliases[:0], c.cmds[i].builtinAliases...)
		}
	}
	for i := range c.cmds {
		if aliases, ok := allAliases[c.cmds[i].aliases[0]]; ok {
			if c.cmds[i].builtinAliases == nil {
				c.cmds[i].builtinAliases = make([]string, len(c.cmds[i].aliases))
				copy(c.cmds[i].builtinAliases, c.cmds[i].aliases)
			}
			c.cmds[i].aliases = append(c.cmds[i].aliases, aliases...)
		}
	}
	c.buildPrefixes()
}

var errNoCmd = errors.New("command not available")

func noCmdAvailable(t *Term, args string) error {
	return errNoCmd
}

func nullCommand(t *Term, args string) error {
	return nil
}

func ambiguousCommand(cmdstr string, candidates []string) cmdfunc {
	return func(t *Term, args string) error {
		return fmt.Errorf("ambiguous command %q: %s", cmdstr, strings.Join(candidates, ", "))
	}
}

func (c *Commands) help(t *Term, args string) error {
	if args != "" {
		for _, cmd := range c.cmds {
			for _, alias := range cmd.aliases {
				if alias == args {
					fmt.Fprintln(t.stdout, cmd.helpMsg)
					return nil
				}
			}
		}
		return errNoCmd
	}

	fmt.Fprintln(t.stdout, "The following commands are available:")

	for _, cgd := range commandGroupDescriptions {
		fmt.Fprintf(t.stdout, "\n%s:\n", cgd.description)
		w := new(tabwriter.Writer)
		w.Init(t.stdout, 0, 8, 0, '-', 0)
		for _, cmd := range c.cmds {
			if cmd.group != cgd.group {
				continue
			}
			h := cmd.helpMsg
			if idx := strings.Index(h, "\n"); idx >= 0 {
				h = h[:idx]
			}
			if len(cmd.aliases) > 1 {
				fmt.Fprintf(w, "    %s (alias: %s) \t %s\n", cmd.aliases[0], strings.Join(cmd.aliases[1:], " | "), h)
			} else {
				fmt.Fprintf(w, "    %s \t %s\n", cmd.aliases[0], h)
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(t.stdout)
	fmt.Fprintln(t.stdout, "Type help followed by a command for full documentation.")
	return nil
}

// splitArgs splits args the way a shell would.
func splitArgs(args string) ([]string, error) {
	if args == "" {
		return nil, nil
	}
	v, err := argv.Argv(args,
		func(s string) (string, error) {
			return "", fmt.Errorf("Backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return nil, err
	}
	if len(v) != 1 {
		return nil, fmt.Errorf("illegal command line '%s'", args)
	}
	return v[0], nil
}

// parseAddress converts a number or a symbol name, optionally followed by
// +offset, to an address.
func parseAddress(t *Term, s string) (uint64, error) {
	if addr, err := strconv.ParseUint(s, 0, 64); err == nil {
		return addr, nil
	}
	name, offstr := s, ""
	if i := strings.LastIndex(s, "+"); i > 0 {
		name, offstr = s[:i], s[i+1:]
	}
	var off uint64
	if offstr != "" {
		var err error
		off, err = strconv.ParseUint(offstr, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("wrong offset %q: %v", offstr, err)
		}
	}
	addr, err := t.client.FindSymbol(name)
	if err != nil {
		return 0, err
	}
	return addr + off, nil
}

func parseBreakpointID(args string) (int, error) {
	if args == "" {
		return 0, errors.New("not enough arguments")
	}
	id, err := strconv.Atoi(args)
	if err != nil {
		return 0, fmt.Errorf("%q is not a valid breakpoint id", args)
	}
	return id, nil
}

func breakpoint(t *Term, args string) error {
	v, err := splitArgs(args)
	if err != nil {
		return err
	}
	if len(v) != 1 {
		return errors.New("usage: break <address>")
	}
	addr, err := parseAddress(t, v[0])
	if err != nil {
		return err
	}
	bp, err := t.client.CreateBreakpoint(addr)
	var dupErr *proc.DuplicateError
	if errors.As(err, &dupErr) && bp != nil {
		fmt.Fprintf(t.stdout, "%s already set at %#x\n", formatBreakpointName(bp, true), bp.Addr)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "%s set at %#x\n", formatBreakpointName(bp, true), bp.Addr)
	return nil
}

func clear(t *Term, args string) error {
	id, err := parseBreakpointID(args)
	if err != nil {
		return err
	}
	bp, err := t.client.ClearBreakpoint(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "%s cleared at %#x\n", formatBreakpointName(bp, true), bp.Addr)
	return nil
}

func enable(t *Term, args string) error {
	id, err := parseBreakpointID(args)
	if err != nil {
		return err
	}
	bp, err := t.client.EnableBreakpoint(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "%s enabled at %#x\n", formatBreakpointName(bp, true), bp.Addr)
	return nil
}

func disable(t *Term, args string) error {
	id, err := parseBreakpointID(args)
	if err != nil {
		return err
	}
	bp, err := t.client.DisableBreakpoint(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "%s disabled at %#x\n", formatBreakpointName(bp, true), bp.Addr)
	return nil
}

func breakpoints(t *Term, args string) error {
	bps, err := t.client.ListBreakpoints()
	if err != nil {
		return err
	}
	if len(bps) == 0 {
		fmt.Fprintln(t.stdout, "No breakpoints.")
		return nil
	}
	for _, bp := range bps {
		state := ""
		if bp.Disabled {
			state = " (disabled)"
		}
		fmt.Fprintf(t.stdout, "%s at %#x%s (%d)\n\toriginal %x\n", formatBreakpointName(bp, true), bp.Addr, state, bp.TotalHitCount, bp.OriginalData)
	}
	return nil
}

func formatBreakpointName(bp *api.Breakpoint, upcase bool) string {
	thing := "breakpoint"
	if upcase {
		thing = "Breakpoint"
	}
	return fmt.Sprintf("%s %d", thing, bp.ID)
}

func (c *Commands) cont(t *Term, args string) error {
	state, err := t.client.Continue()
	if err != nil {
		return err
	}
	printcontext(t, state)
	return nil
}

func (c *Commands) stepInstruction(t *Term, args string) error {
	count := 1
	if args != "" {
		var err error
		count, err = strconv.Atoi(args)
		if err != nil || count <= 0 {
			return fmt.Errorf("count must be a positive integer")
		}
	}
	var state *api.DebuggerState
	for i := 0; i < count; i++ {
		var err error
		state, err = t.client.StepInstruction()
		if err != nil {
			return err
		}
		if state.Exited || state.StopReason != proc.StopStep.String() || state.Breakpoint != nil {
			break
		}
	}
	printcontext(t, state)
	return nil
}

// printcontext reports why the target stopped and the instruction it is
// stopped at.
func printcontext(t *Term, state *api.DebuggerState) {
	if state.Exited {
		if state.StopReason == proc.StopSignaled.String() {
			fmt.Fprintf(t.stdout, "Process %d was killed by signal %s\n", state.Pid, state.Signal)
			return
		}
		fmt.Fprintf(t.stdout, "Process %d has exited with status %d\n", state.Pid, state.ExitStatus)
		return
	}

	var descr string
	switch state.StopReason {
	case proc.StopBreakpoint.String():
		if state.Breakpoint == nil {
			descr = fmt.Sprintf("Breakpoint hit at %#x", state.PC)
			break
		}
		descr = fmt.Sprintf("%s hit at %#x (hits: %d)", formatBreakpointName(state.Breakpoint, true), state.PC, state.Breakpoint.TotalHitCount)
	case proc.StopStep.String():
		descr = fmt.Sprintf("Stepped to %#x", state.PC)
		if state.Breakpoint != nil {
			descr += fmt.Sprintf(" (%s)", formatBreakpointName(state.Breakpoint, false))
		}
	case proc.StopHardcodedBreakpoint.String():
		descr = fmt.Sprintf("Hardcoded breakpoint at %#x", state.PC)
	case proc.StopSignal.String():
		descr = fmt.Sprintf("Received signal %s at %#x, it will be delivered on resume", state.Signal, state.PC)
	default:
		descr = fmt.Sprintf("Process %d stopped at %#x", state.Pid, state.PC)
	}
	t.Println("> ", descr)

	insts, err := t.client.Disassemble(state.PC, 1)
	if err == nil {
		fmt.Fprint(t.stdout, insts)
	}
}

func regs(t *Term, args string) error {
	regs, err := t.client.ListRegisters()
	if err != nil {
		return err
	}
	fmt.Fprint(t.stdout, regs)
	return nil
}

func setRegister(t *Term, args string) error {
	v, err := splitArgs(args)
	if err != nil {
		return err
	}
	if len(v) != 2 {
		return errors.New("usage: set-register <name> <value>")
	}
	value, err := strconv.ParseUint(v[1], 0, 64)
	if err != nil {
		n, err2 := strconv.ParseInt(v[1], 0, 64)
		if err2 != nil {
			return fmt.Errorf("wrong value %q: %v", v[1], err)
		}
		value = uint64(n)
	}
	return t.client.SetRegister(v[0], value)
}

func (c *Commands) examineMemory(t *Term, args string) error {
	v, err := splitArgs(args)
	if err != nil {
		return err
	}

	// Default value
	priFmt := byte('x')
	size := 1
	length := 16
	raw := false

	var positional []string
	for i := 0; i < len(v); i++ {
		switch v[i] {
		case "-fmt":
			i++
			if i >= len(v) {
				return fmt.Errorf("expected argument after -fmt")
			}
			fmtMapToPriFmt := map[string]byte{
				"oct":         'o',
				"octal":       'o',
				"hex":         'x',
				"hexadecimal": 'x',
				"dec":         'd',
				"decimal":     'd',
				"bin":         'b',
				"binary":      'b',
			}
			var ok bool
			priFmt, ok = fmtMapToPriFmt[v[i]]
			if !ok {
				return fmt.Errorf("%q is not a valid format", v[i])
			}
		case "-size":
			i++
			if i >= len(v) {
				return fmt.Errorf("expected argument after -size")
			}
			size, err = strconv.Atoi(v[i])
			if err != nil || size <= 0 || size > 8 {
				return fmt.Errorf("size must be a positive integer (<=8)")
			}
		case "-raw":
			raw = true
		default:
			if strings.HasPrefix(v[i], "-") {
				return fmt.Errorf("unknown option %q", v[i])
			}
			positional = append(positional, v[i])
		}
	}

	switch len(positional) {
	case 0:
		return fmt.Errorf("no address specified")
	case 1:
	case 2:
		length, err = strconv.Atoi(positional[1])
		if err != nil || length <= 0 {
			return fmt.Errorf("length must be a positive integer")
		}
	default:
		return fmt.Errorf("too many arguments")
	}

	if limit := t.conf.GetMaxMemoryRead(); length > limit {
		return fmt.Errorf("read memory range must be less than or equal to %d bytes", limit)
	}
	if length%size != 0 {
		return fmt.Errorf("length %d is not a multiple of size %d", length, size)
	}

	address, err := parseAddress(t, positional[0])
	if err != nil {
		return err
	}

	memArea, err := t.client.ExamineMemory(address, length, raw)
	if err != nil {
		return err
	}
	fmt.Fprint(t.stdout, api.PrettyExamineMemory(uintptr(address), memArea, true, priFmt, size))
	return nil
}

func (c *Commands) disassemble(t *Term, args string) error {
	v, err := splitArgs(args)
	if err != nil {
		return err
	}
	if len(v) > 2 {
		return errors.New("usage: disassemble [<address>] [<count>]")
	}

	var addr uint64
	if len(v) > 0 {
		addr, err = parseAddress(t, v[0])
		if err != nil {
			return err
		}
	} else {
		state, err := t.client.GetState()
		if err != nil {
			return err
		}
		if state.Exited {
			return fmt.Errorf("Process %d has exited with status %d", state.Pid, state.ExitStatus)
		}
		addr = state.PC
	}

	count := t.conf.GetDisassembleCount()
	if len(v) > 1 {
		count, err = strconv.Atoi(v[1])
		if err != nil || count <= 0 {
			return fmt.Errorf("count must be a positive integer")
		}
	}

	insts, err := t.client.Disassemble(addr, count)
	if err != nil {
		return err
	}
	fmt.Fprint(t.stdout, insts)
	return nil
}

// ExitRequestError is returned when the user
// exits zdbg.
type ExitRequestError struct{}

func (ere ExitRequestError) Error() string {
	return ""
}

func exitCommand(t *Term, args string) error {
	switch args {
	case "":
		t.quitKill = nil
	case "-k":
		kill := true
		t.quitKill = &kill
	case "-d":
		kill := false
		t.quitKill = &kill
	default:
		return fmt.Errorf("unknown option %q", args)
	}
	return ExitRequestError{}
}

func (c *Commands) executeFile(t *Term, name string) error {
	fh, err := os.Open(name)
	if err != nil {
		return err
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	lineno := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineno++

		if line == "" || line[0] == '#' {
			continue
		}

		if err := c.Call(line, t); err != nil {
			if _, isExitRequest := err.(ExitRequestError); isExitRequest {
				return err
			}
			fmt.Fprintf(t.stdout, "%s:%d: %v\n", name, lineno, err)
		}
	}

	return scanner.Err()
}
