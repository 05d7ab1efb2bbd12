package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	if cmd == nil {
		t.Fatal("Root command should not be nil")
	}

	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Logf("Help command returned error (this is ok): %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "crucible") {
		t.Errorf("Help text should contain 'crucible', got: %s", output)
	}
	if !strings.Contains(output, "refinement") {
		t.Errorf("Help text should mention refinement, got: %s", output)
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	cmd := NewRootCommand()
	if cmd.Use != "crucible" {
		t.Errorf("Expected Use to be 'crucible', got '%s'", cmd.Use)
	}

	want := map[string]bool{"run": false, "analyze": false, "eval": false, "toolchains": false}
	for _, sub := range cmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestVersionFlag(t *testing.T) {
	cmd := NewRootCommand()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--version"})

	_ = cmd.Execute()

	if !strings.Contains(buf.String(), "version") {
		t.Errorf("Version output should contain 'version', got: %s", buf.String())
	}
}

func TestToolchainsCommand(t *testing.T) {
	out, err := executeCommand(t, "toolchains", "--config", missingConfig(t))
	if err != nil {
		t.Fatalf("toolchains failed: %v", err)
	}
	for _, name := range []string{"go", "python", "elixir", "shell"} {
		if !strings.Contains(out, name) {
			t.Errorf("toolchains output should list %s, got: %s", name, out)
		}
	}
	if !strings.Contains(out, "* python") {
		t.Errorf("default toolchain should be marked, got: %s", out)
	}
}
