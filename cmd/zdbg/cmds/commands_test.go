package cmds

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	root := New()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := runCommand(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "zdbg Debugger\nVersion: 0.3.0") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestArgumentValidation(t *testing.T) {
	tests := []struct {
		args   []string
		tgterr string
	}{
		{[]string{"attach"}, "you must provide a PID"},
		{[]string{"attach", "foo"}, "invalid pid: foo"},
		{[]string{"attach", "0"}, "invalid pid: 0"},
		{[]string{"exec"}, "you must provide a path to a binary"},
	}
	for _, tc := range tests {
		_, err := runCommand(t, tc.args...)
		if err == nil {
			t.Errorf("%q: expected error", tc.args)
			continue
		}
		if err.Error() != tc.tgterr {
			t.Errorf("%q: expected error %q, got %q", tc.args, tc.tgterr, err)
		}
	}
}

func TestHelpHidesFlags(t *testing.T) {
	out, err := runCommand(t, "help", "attach")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "--wd") || strings.Contains(out, "--disable-aslr") {
		t.Errorf("launch flags shown for attach:\n%s", out)
	}
	if !strings.Contains(out, "--log-output") {
		t.Errorf("logging flags not shown for attach:\n%s", out)
	}

	out, err = runCommand(t, "help", "exec")
	if err != nil {
		t.Fatal(err)
	}
	for _, flag := range []string{"--tty", "--wd", "--disable-aslr", "--init"} {
		if !strings.Contains(out, flag) {
			t.Errorf("flag %s not shown for exec:\n%s", flag, out)
		}
	}
}

func TestCommandsMarkdown(t *testing.T) {
	out, err := runCommand(t, "commands")
	if err != nil {
		t.Fatal(err)
	}
	for _, tgt := range []string{"# Commands\n", "## break\n", "## config\n", "Aliases: b\n"} {
		if !strings.Contains(out, tgt) {
			t.Errorf("documentation does not contain %q", tgt)
		}
	}

	out, err = runCommand(t, "help")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "commands ") {
		t.Errorf("hidden command listed in help:\n%s", out)
	}
}
