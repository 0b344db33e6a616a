// Package cmd provides CLI commands for the uadp binary.
package cmd

import (
	"os"

	"github.com/urfave/cli/v2"
)

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml, text.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml, text",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for decode and consume.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (decode, consume only)",
	}
)

// Flags shared by every command that builds a decoder.
var (
	// ConfigFlag points at a uadp.yaml file. Without it, ./uadp.yaml is
	// read when present.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to uadp.yaml config file",
	}

	// LegacyFlag selects one-byte field flag encoding in meta frames.
	LegacyFlag = &cli.BoolFlag{
		Name:  "legacy-field-flags",
		Usage: "Decode meta frame field flags as a single byte",
	}

	// LogLevelFlag sets the minimum log level.
	LogLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level: debug, info, warn, error",
		Value: "warn",
	}
)

// Storage flags select where meta frames are mirrored.
var (
	CacheDirFlag = &cli.StringFlag{
		Name:  "cache-dir",
		Usage: "Directory meta frames are mirrored to (fs backend)",
	}
	CacheBackendFlag = &cli.StringFlag{
		Name:  "cache-backend",
		Usage: "Meta cache storage backend: fs, s3, memory",
	}
	CachePathFlag = &cli.StringFlag{
		Name:  "cache-path",
		Usage: "Meta cache storage path (bucket/prefix for s3)",
	}
	CacheRegionFlag = &cli.StringFlag{
		Name:  "cache-region",
		Usage: "AWS region for the s3 backend",
	}
	CacheEndpointFlag = &cli.StringFlag{
		Name:  "cache-endpoint",
		Usage: "Custom S3 endpoint (e.g. MinIO)",
	}
	CachePathStyleFlag = &cli.BoolFlag{
		Name:  "cache-s3-path-style",
		Usage: "Force path-style S3 addressing",
	}
	CacheCapacityFlag = &cli.IntFlag{
		Name:  "cache-capacity",
		Usage: "Meta frame versions kept per publisher and writer",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// DecoderFlags returns the flags that configure a decoder and its meta
// cache.
func DecoderFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		LegacyFlag,
		LogLevelFlag,
		CacheDirFlag,
		CacheBackendFlag,
		CachePathFlag,
		CacheRegionFlag,
		CacheEndpointFlag,
		CachePathStyleFlag,
		CacheCapacityFlag,
	}
}

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
