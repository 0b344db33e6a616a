package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/uadp/adapter"
	"github.com/pithecene-io/uadp/cli/render"
	"github.com/pithecene-io/uadp/cli/tui"
	"github.com/pithecene-io/uadp/decode"
)

// DecodeCommand returns the decode command.
// Decode reads network messages from a file or stdin and prints each one.
// Meta frames given with --meta are decoded first so data frames that
// depend on them resolve.
func DecodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "Decode UADP network messages from a file or stdin",
		ArgsUsage: "[file|-]",
		Flags: append(append(ReadOnlyFlags(), DecoderFlags()...),
			&cli.BoolFlag{
				Name:  "hex",
				Usage: "Input is hex text with one message per line",
			},
			&cli.StringSliceFlag{
				Name:  "meta",
				Usage: "File of meta frames decoded before the input (repeatable)",
			},
		),
		Action: decodeAction,
	}
}

func decodeAction(c *cli.Context) error {
	if c.NArg() > 1 {
		return cli.Exit("decode takes at most one input file", exitConfigError)
	}
	useTUI := c.Bool("tui")
	if useTUI {
		if err := tui.CheckSupported(tui.ViewDecode); err != nil {
			return cli.Exit(err.Error(), exitConfigError)
		}
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	applyDecoderFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	logger, err := newLogger(cfg.Log.Level, c.App.ErrWriter)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid log level: %v", err), exitConfigError)
	}
	defer func() { _ = logger.Sync() }()

	p, err := buildPipeline(c.Context, cfg, logger, "file", "")
	if err != nil {
		return cli.Exit(err.Error(), exitRuntimeError)
	}

	hexMode := c.Bool("hex")
	for _, path := range c.StringSlice("meta") {
		payloads, err := readInput(c, path, hexMode)
		if err != nil {
			return cli.Exit(err.Error(), exitConfigError)
		}
		for i, payload := range payloads {
			if p.decoder.Decode(payload) == nil {
				return cli.Exit(fmt.Sprintf("%s: message %d did not decode", path, i+1), exitDecodeFailure)
			}
		}
	}

	input := c.Args().First()
	payloads, err := readInput(c, input, hexMode)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	var events []*adapter.DecodedEvent
	failed := 0
	for i, payload := range payloads {
		m := p.decoder.Decode(payload)
		if m == nil {
			failed++
			fmt.Fprintf(c.App.ErrWriter, "message %d: no result (%d bytes)\n", i+1, len(payload))
			continue
		}
		ev := adapter.NewDecodedEvent(decode.Event{Message: m, Topic: displayName(input)})
		if useTUI {
			events = append(events, ev)
			continue
		}
		if err := r.RenderMessage(m, ev); err != nil {
			return err
		}
	}

	if useTUI {
		if err := tui.RunInspectTUI(events); err != nil {
			return err
		}
	}

	if failed > 0 {
		return cli.Exit("", exitDecodeFailure)
	}
	return nil
}
