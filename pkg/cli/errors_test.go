package cli

import (
	"errors"
	"testing"
)

func TestConfigErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *ConfigError
		want string
	}{
		{
			name: "with key",
			err:  NewConfigError("server.listen_address", "missing required field"),
			want: "invalid configuration at server.listen_address: missing required field",
		},
		{
			name: "load failure has no key",
			err:  NewConfigError("", "failed to load config: open gatekeeper.yaml: no such file"),
			want: "invalid configuration: failed to load config: open gatekeeper.yaml: no such file",
		},
		{
			name: "llm section",
			err:  NewConfigError("llm.base_url", "must be an http or https URL"),
			want: "invalid configuration at llm.base_url: must be an http or https URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCommandErrorMessage(t *testing.T) {
	cause := errors.New("settings store is locked")
	err := NewCommandError("settings", cause)

	want := "gatekeeper settings: settings store is locked"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestCommandErrorWrapsCause(t *testing.T) {
	cause := errors.New("listen tcp 127.0.0.1:8377: address already in use")
	err := NewCommandError("run", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatal("errors.As should match *CommandError")
	}
	if cmdErr.Command != "run" {
		t.Errorf("Command = %q, want %q", cmdErr.Command, "run")
	}
}
