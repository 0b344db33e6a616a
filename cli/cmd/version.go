package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/uadp/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version string `json:"version"`
	// ContractVersion is the DecodedEvent schema version adapters publish.
	ContractVersion string `json:"contract_version"`
	Commit          string `json:"commit"`
}

// VersionCommand returns the version command.
// It never opens storage or the transport.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := tableRenderer(c)
		if err != nil {
			return err
		}

		// TUI not supported for version command
		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version command", 1)
		}

		resp := VersionResponse{
			Version:         types.Version,
			ContractVersion: types.ContractVersion,
			Commit:          commit,
		}

		return r.Render(resp)
	}
}
