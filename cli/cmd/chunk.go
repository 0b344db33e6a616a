package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/uadp/message"
)

// ChunkCommand returns the chunk command.
// Chunk decodes one network message and re-encodes its body as chunk
// envelopes, printed as hex lines that decode --hex reads back.
func ChunkCommand() *cli.Command {
	return &cli.Command{
		Name:      "chunk",
		Usage:     "Split a network message into chunk envelopes (hex output)",
		ArgsUsage: "[file|-]",
		Flags: append(DecoderFlags(),
			&cli.IntFlag{
				Name:  "size",
				Usage: "Maximum body bytes per chunk",
				Value: 1024,
			},
			&cli.IntFlag{
				Name:  "sequence",
				Usage: "Sequence number shared by the chunks",
			},
			&cli.BoolFlag{
				Name:  "hex",
				Usage: "Input is hex text with one message per line",
			},
			&cli.StringSliceFlag{
				Name:  "meta",
				Usage: "File of meta frames decoded before the input (repeatable)",
			},
		),
		Action: chunkAction,
	}
}

func chunkAction(c *cli.Context) error {
	if c.Int("size") <= 0 {
		return cli.Exit("--size must be positive", exitConfigError)
	}
	if seq := c.Int("sequence"); seq < 0 || seq > 0xffff {
		return cli.Exit("--sequence must fit in 16 bits", exitConfigError)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	applyDecoderFlags(c, cfg)
	logger, err := newLogger(cfg.Log.Level, c.App.ErrWriter)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid log level: %v", err), exitConfigError)
	}
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
		for _, payload := range payloads {
			p.decoder.Decode(payload)
		}
	}

	payloads, err := readInput(c, c.Args().First(), hexMode)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	var out [][]byte
	for i, payload := range payloads {
		m := p.decoder.Decode(payload)
		writerID, ok := chunkWriterID(m)
		if !ok {
			return cli.Exit(fmt.Sprintf("message %d: not a fully decoded meta or data frame", i+1), exitDecodeFailure)
		}
		chunks, err := message.EncodeChunks(m, writerID, uint16(c.Int("sequence")), c.Int("size"))
		if err != nil {
			return cli.Exit(fmt.Sprintf("message %d: %v", i+1, err), exitDecodeFailure)
		}
		out = append(out, chunks...)
	}
	return writeHex(c.App.Writer, out)
}

// chunkWriterID returns the writer id carried by chunks of m.
func chunkWriterID(m message.NetworkMessage) (uint16, bool) {
	switch m := m.(type) {
	case *message.MetaFrame:
		return m.WriterID, true
	case *message.KeyFrame:
		return m.WriterID(), true
	case *message.DeltaFrame:
		return m.WriterID(), true
	case *message.KeepAliveFrame:
		return m.WriterID(), true
	default:
		return 0, false
	}
}
