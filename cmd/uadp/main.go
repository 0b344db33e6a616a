// Package main provides the uadp CLI entrypoint.
//
// Usage:
//
//	uadp <command> [subcommand] [options]
//
// Exit codes:
//   - 0: success
//   - 1: one or more messages did not decode
//   - 2: configuration or usage error
//   - 3: runtime failure (storage, transport)
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/uadp/cli/cmd"
	"github.com/pithecene-io/uadp/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func newApp() *cli.App {
	return &cli.App{
		Name:           "uadp",
		Usage:          "OPC UA PubSub UADP decoder",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.DecodeCommand(),
			cmd.ConsumeCommand(),
			cmd.ChunkCommand(),
			cmd.CacheCommand(),
			cmd.VersionCommand(commit),
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		// This branch handles unexpected errors that weren't wrapped.
		os.Exit(1)
	}
}

// exitErrHandler handles errors from the CLI, preserving exit codes from cli.Exit().
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	// Check for ExitCoder (from cli.Exit), handles wrapped errors
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() returns "exit status N", so skip those
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
