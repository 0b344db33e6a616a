package cmd

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
)

// maxHexLine bounds one hex-encoded message line.
const maxHexLine = 16 << 20

// readInput reads the payloads in name, or stdin for "" and "-".
func readInput(c *cli.Context, name string, hexMode bool) ([][]byte, error) {
	var r io.Reader
	if name == "" || name == "-" {
		r = c.App.Reader
	} else {
		f, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	payloads, err := readPayloads(r, hexMode)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", displayName(name), err)
	}
	return payloads, nil
}

// readPayloads returns the whole input as one payload, or in hex mode one
// payload per non-empty line. Whitespace inside a line and lines starting
// with # are ignored.
func readPayloads(r io.Reader, hexMode bool) ([][]byte, error) {
	if !hexMode {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		return [][]byte{data}, nil
	}

	var payloads [][]byte
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxHexLine)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		text = strings.Join(strings.Fields(text), "")
		data, err := hex.DecodeString(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		payloads = append(payloads, data)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return payloads, nil
}

// writeHex writes each payload as one hex line, the format readPayloads
// accepts.
func writeHex(w io.Writer, payloads [][]byte) error {
	var buf bytes.Buffer
	for _, p := range payloads {
		buf.WriteString(hex.EncodeToString(p))
		buf.WriteByte('\n')
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func displayName(name string) string {
	if name == "" || name == "-" {
		return "stdin"
	}
	return name
}
