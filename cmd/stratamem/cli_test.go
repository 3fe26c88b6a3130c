package main

import (
	"bytes"
	"strings"
	"testing"
)

func runRootCommandForTest(args ...string) (string, error) {
	root := buildRootCommand()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestRootHelpListsCommands(t *testing.T) {
	output, err := runRootCommandForTest("--help")
	if err != nil {
		t.Fatalf("execute --help: %v\nOutput:\n%s", err, output)
	}
	for _, want := range []string{"init", "log", "recent", "search", "consolidate", "stats", "shell", "version"} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q command:\n%s", want, output)
		}
	}
}

func TestRootWithoutSubcommandFails(t *testing.T) {
	_, err := runRootCommandForTest()
	if err == nil {
		t.Fatal("expected an error when no subcommand is given")
	}
	if !strings.Contains(err.Error(), "subcommand") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUnknownCommandFails(t *testing.T) {
	_, err := runRootCommandForTest("frobnicate")
	if err == nil {
		t.Fatal("expected an error for an unknown command")
	}
}
