package main

import (
	"errors"
	"testing"

	"github.com/urfave/cli/v2"
)

func TestExitErrHandler_NilError(t *testing.T) {
	// Should not panic or exit on nil error
	exitErrHandler(nil, nil)
}

func TestExitErrHandler_ExitCoder(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"success", cli.Exit("", 0), 0},
		{"decode failure", cli.Exit("", 1), 1},
		{"config error", cli.Exit("--redis-url or transport.url is required", 2), 2},
		{"runtime error", cli.Exit("open meta cache storage: denied", 3), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var exitCoder cli.ExitCoder
			if !errors.As(tt.err, &exitCoder) {
				t.Fatalf("error should be cli.ExitCoder")
			}
			if exitCoder.ExitCode() != tt.wantCode {
				t.Errorf("exit code = %d, want %d", exitCoder.ExitCode(), tt.wantCode)
			}
		})
	}
}

func TestExitErrHandler_WrappedExitCoder(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), cli.Exit("inner error", 42))

	var exitCoder cli.ExitCoder
	if !errors.As(wrapped, &exitCoder) {
		t.Fatal("wrapped error should still match cli.ExitCoder")
	}
	if exitCoder.ExitCode() != 42 {
		t.Errorf("exit code = %d, want 42", exitCoder.ExitCode())
	}
}

func TestNewApp_Commands(t *testing.T) {
	app := newApp()
	want := []string{"decode", "consume", "chunk", "cache", "version"}
	if len(app.Commands) != len(want) {
		t.Fatalf("len(Commands) = %d, want %d", len(app.Commands), len(want))
	}
	for i, name := range want {
		if app.Commands[i].Name != name {
			t.Errorf("Commands[%d] = %q, want %q", i, app.Commands[i].Name, name)
		}
	}
}
