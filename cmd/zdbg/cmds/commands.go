package cmds

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/go-delve/zdbg/cmd/zdbg/cmds/helphelpers"
	"github.com/go-delve/zdbg/pkg/config"
	"github.com/go-delve/zdbg/pkg/logflags"
	"github.com/go-delve/zdbg/pkg/terminal"
	"github.com/go-delve/zdbg/pkg/version"
	"github.com/go-delve/zdbg/service/debugger"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// initFile is the path to initialization file.
	initFile string
	// workingDir is the working directory for running the program.
	workingDir string
	// disableASLR is true if the program is started with address space
	// layout randomization turned off.
	disableASLR bool
	// tty is used to provide an alternate TTY for the program you wish to debug.
	tty string
	// verbose prints the build information with the version.
	verbose bool

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config
)

const zdbgCommandLongDesc = `zdbg is a debugger for native x86-64 Linux programs.

zdbg controls a program through ptrace: it sets software breakpoints, runs and
single steps the program, and reads and writes its registers and memory.

Pass flags to the program you are debugging using ` + "`--`" + `, for example:

` + "`zdbg exec ./hello -- server --config conf/config.toml`"

// New returns an initialized command tree.
func New() *cobra.Command {
	// Config setup and load.
	var err error
	conf, err = config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	// Main zdbg root command.
	rootCommand = &cobra.Command{
		Use:   "zdbg",
		Short: "zdbg is a ptrace debugger for x86-64 Linux programs.",
		Long:  zdbgCommandLongDesc,
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable debugger logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (see 'zdbg help log')`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'zdbg help log').")
	rootCommand.PersistentFlags().StringVar(&initFile, "init", "", "Init file, executed by the terminal client.")
	rootCommand.PersistentFlags().StringVar(&workingDir, "wd", "", "Working directory for running the program.")
	rootCommand.PersistentFlags().BoolVar(&disableASLR, "disable-aslr", conf.GetDisableASLR(), "Disables address space randomization of the program.")

	defaultHelp := rootCommand.HelpFunc()
	rootCommand.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		helphelpers.Prepare(cmd)
		defaultHelp(cmd, args)
	})

	// 'attach' subcommand.
	attachCommand := &cobra.Command{
		Use:   "attach pid",
		Short: "Attach to running process and begin debugging.",
		Long: `Attach to an already running process and begin debugging it.

This command will cause zdbg to take control of an already running process, and
begin a new debug session. When exiting the debug session the process is
detached from and continues running, unless quit -k is used or kill-on-quit is
set in the configuration file.
`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("you must provide a PID")
			}
			if pid, err := strconv.Atoi(args[0]); err != nil || pid <= 0 {
				return fmt.Errorf("invalid pid: %s", args[0])
			}
			return nil
		},
		Run: attachCmd,
	}
	rootCommand.AddCommand(attachCommand)

	// 'exec' subcommand.
	execCommand := &cobra.Command{
		Use:   "exec <path/to/binary> [-- args]",
		Short: "Execute a binary, and begin a debug session.",
		Long: `Execute a binary and begin a debug session.

This command will cause zdbg to exec the binary and stop it at its first
instruction, before any of its code runs. The process is killed when the debug
session ends.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("you must provide a path to a binary")
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(execute(0, args))
		},
	}
	execCommand.Flags().StringVar(&tty, "tty", "", "TTY to use for the target program")
	rootCommand.AddCommand(execCommand)

	// 'version' subcommand.
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "zdbg Debugger\n%s\n", version.ZdbgVersion)
			if verbose {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", version.BuildInfo())
			}
		},
	}
	versionCommand.Flags().BoolVarP(&verbose, "verbose", "v", false, "print verbose version info")
	rootCommand.AddCommand(versionCommand)

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which components should produce logs.

The argument of --log-output must be a comma separated list of component
names selected from this list:


	debugger	Log debugger commands
	native		Log process control (launch, attach, wait, kill)
	ptrace		Log every ptrace request
	terminal	Log terminal commands

Additionally --log-dest can be used to specify where the logs should be
written.
If the argument is a number it will be interpreted as a file descriptor,
otherwise as a file path.
`,
	})

	// 'commands' subcommand, used to generate the terminal documentation.
	rootCommand.AddCommand(&cobra.Command{
		Use:    "commands",
		Short:  "Prints the documentation of the terminal commands in markdown.",
		Hidden: true,
		Args:   cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			terminal.DebugCommands(nil).WriteMarkdown(cmd.OutOrStdout())
		},
	})

	rootCommand.DisableAutoGenTag = true

	return rootCommand
}

func attachCmd(cmd *cobra.Command, args []string) {
	pid, _ := strconv.Atoi(args[0])
	os.Exit(execute(pid, nil))
}

func execute(attachPid int, processArgs []string) int {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer logflags.Close()

	client, err := debugger.New(&debugger.Config{
		AttachPid:   attachPid,
		WorkingDir:  workingDir,
		DisableASLR: disableASLR,
		TTY:         tty,
	}, processArgs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	term := terminal.New(client, conf)
	term.InitFile = initFile
	status, err := term.Run()
	if err != nil {
		fmt.Println(err)
	}
	return status
}
