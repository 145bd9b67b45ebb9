package main

import "testing"

func TestVersionDefaults(t *testing.T) {
	if Version == "" {
		t.Error("Version must not be empty")
	}
	if GitCommit == "" {
		t.Error("GitCommit must not be empty")
	}
	if BuildDate == "" {
		t.Error("BuildDate must not be empty")
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	want := map[string]bool{"run": false, "version": false, "settings": false}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}
