package cmd

import (
	"bytes"
	"encoding/hex"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/uadp/cli/config"
	"github.com/pithecene-io/uadp/message"
	"github.com/pithecene-io/uadp/types"
)

var v10 = message.ConfigurationVersion{Major: 1}

func testMeta(publisherID string, writerID uint16, v message.ConfigurationVersion) *message.MetaFrame {
	return &message.MetaFrame{
		Envelope:             message.Envelope{NetworkHeader: message.NewNetworkMessageHeader(publisherID, message.MessageTypeDiscoveryResponse)},
		WriterID:             writerID,
		Name:                 "tap changer",
		ConfigurationVersion: v,
		Fields:               []message.FieldMetaData{{Name: "position", Type: message.FieldTypeInt32}},
	}
}

func testDelta(publisherID string, writerID uint16, v message.ConfigurationVersion, value int32) *message.DeltaFrame {
	h := message.NewNetworkMessageHeader(publisherID, message.MessageTypeDataSet)
	f := &message.DeltaFrame{
		DataFrame:    *message.NewDataFrame(h, writerID, message.DataSetDeltaFrame, v),
		FieldIndices: []uint16{0},
	}
	f.Items = []message.DataPoint{{Index: 0, Value: message.Int32Value(value)}}
	return f
}

func encode(t *testing.T, m message.NetworkMessage) []byte {
	t.Helper()
	b, err := message.EncodeBytes(m, true)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return b
}

func hexLines(t *testing.T, msgs ...message.NetworkMessage) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, m := range msgs {
		buf.WriteString(hex.EncodeToString(encode(t, m)))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// runApp runs the CLI with the given stdin and returns stdout, stderr and
// the exit code the process would have used.
func runApp(t *testing.T, stdin []byte, args ...string) (string, string, int) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := 0
	app := &cli.App{
		Name:      "uadp",
		Reader:    bytes.NewReader(stdin),
		Writer:    &out,
		ErrWriter: &errOut,
		ExitErrHandler: func(_ *cli.Context, err error) {
			var ec cli.ExitCoder
			if errors.As(err, &ec) {
				code = ec.ExitCode()
				return
			}
			code = 1
		},
		Commands: []*cli.Command{
			DecodeCommand(),
			ChunkCommand(),
			CacheCommand(),
			VersionCommand("test"),
		},
	}
	if err := app.Run(append([]string{"uadp"}, args...)); err != nil && code == 0 {
		code = 1
	}
	return out.String(), errOut.String(), code
}

// --- Flags ---

func TestReadOnlyFlags_IncludesTUI(t *testing.T) {
	hasTUI := false
	for _, f := range ReadOnlyFlags() {
		if f.Names()[0] == "tui" {
			hasTUI = true
			break
		}
	}
	if !hasTUI {
		t.Error("ReadOnlyFlags should include --tui flag for explicit error handling")
	}
}

func TestDecoderFlags_IncludesConfig(t *testing.T) {
	names := map[string]bool{}
	for _, f := range DecoderFlags() {
		names[f.Names()[0]] = true
	}
	for _, want := range []string{"config", "legacy-field-flags", "cache-dir", "cache-backend", "log-level"} {
		if !names[want] {
			t.Errorf("DecoderFlags missing --%s", want)
		}
	}
}

func TestIsStderrTTY(_ *testing.T) {
	// Actual TTY behavior depends on runtime environment.
	_ = isStderrTTY()
}

// --- Config precedence ---

// newTestCLIContext builds a minimal *cli.Context with the given flags set.
// flagValues maps flag names to their string values. All listed flags are
// registered and marked as explicitly set (c.IsSet returns true).
// defaultFlags maps flag names to default values (not explicitly set).
func newTestCLIContext(t *testing.T, flagValues map[string]string, defaultFlags map[string]string) *cli.Context {
	t.Helper()
	app := cli.NewApp()

	allFlags := make(map[string]string)
	for k, v := range defaultFlags {
		allFlags[k] = v
	}
	for k, v := range flagValues {
		allFlags[k] = v
	}

	var cliFlags []cli.Flag
	for name, val := range allFlags {
		cliFlags = append(cliFlags, &cli.StringFlag{Name: name, Value: val})
	}
	app.Flags = cliFlags

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	for name, val := range allFlags {
		fs.String(name, val, "")
	}

	// Only set the flagValues (not defaults) so c.IsSet works
	for name, val := range flagValues {
		if err := fs.Set(name, val); err != nil {
			t.Fatalf("failed to set flag %s: %v", name, err)
		}
	}

	return cli.NewContext(app, fs, nil)
}

func TestResolveString_CLIWins(t *testing.T) {
	c := newTestCLIContext(t, map[string]string{"redis-url": "redis://cli"}, nil)
	if got := resolveString(c, "redis-url", "redis://config"); got != "redis://cli" {
		t.Errorf("expected CLI to win, got %q", got)
	}
}

func TestResolveString_ConfigFallback(t *testing.T) {
	c := newTestCLIContext(t, nil, map[string]string{"redis-url": ""})
	if got := resolveString(c, "redis-url", "redis://config"); got != "redis://config" {
		t.Errorf("expected config fallback, got %q", got)
	}
}

func TestResolveString_DefaultWhenBothEmpty(t *testing.T) {
	c := newTestCLIContext(t, nil, map[string]string{"log-level": "warn"})
	if got := resolveString(c, "log-level", ""); got != "warn" {
		t.Errorf("expected flag default, got %q", got)
	}
}

func TestApplyDecoderFlags_Precedence(t *testing.T) {
	c := newTestCLIContext(t,
		map[string]string{"cache-dir": "/cli/meta", "cache-capacity": "4"},
		map[string]string{"log-level": "warn", "legacy-field-flags": "false", "cache-backend": ""},
	)
	cfg := &config.Config{
		Encoding: config.EncodingOptions{LegacyFieldFlagEncoding: true, DiskMetaMessageCacheDirectory: "/cfg/meta"},
		Cache:    config.CacheConfig{Backend: "fs", Capacity: 20},
		Log:      config.LogConfig{Level: "debug"},
	}

	applyDecoderFlags(c, cfg)

	if cfg.Encoding.DiskMetaMessageCacheDirectory != "/cli/meta" {
		t.Errorf("cache dir = %q, want /cli/meta", cfg.Encoding.DiskMetaMessageCacheDirectory)
	}
	if cfg.Cache.Capacity != 4 {
		t.Errorf("capacity = %d, want 4", cfg.Cache.Capacity)
	}
	if !cfg.Encoding.LegacyFieldFlagEncoding {
		t.Error("legacy encoding from config was overridden by an unset flag")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Cache.Backend != "fs" {
		t.Errorf("backend = %q, want fs", cfg.Cache.Backend)
	}
}

func TestApplyConsumeFlags_RetriesOnlyWhenSet(t *testing.T) {
	c := newTestCLIContext(t, nil, map[string]string{"adapter-retries": "0", "queue-size": "1024"})
	cfg := &config.Config{Transport: config.TransportConfig{QueueSize: 64}}
	applyConsumeFlags(c, cfg)
	if cfg.Adapter.Retries != nil {
		t.Errorf("retries = %d, want nil", *cfg.Adapter.Retries)
	}
	if cfg.Transport.QueueSize != 64 {
		t.Errorf("queue size = %d, want 64", cfg.Transport.QueueSize)
	}

	c = newTestCLIContext(t, map[string]string{"adapter-retries": "0"}, nil)
	applyConsumeFlags(c, cfg)
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 0 {
		t.Errorf("retries = %v, want pointer to 0", cfg.Adapter.Retries)
	}
}

// --- Input ---

func TestReadPayloads_Binary(t *testing.T) {
	payloads, err := readPayloads(bytes.NewReader([]byte{0x01, 0x02, 0x0a, 0x03}), false)
	if err != nil {
		t.Fatalf("readPayloads: %v", err)
	}
	if len(payloads) != 1 || len(payloads[0]) != 4 {
		t.Fatalf("payloads = %v, want one 4-byte payload", payloads)
	}
}

func TestReadPayloads_Hex(t *testing.T) {
	input := "# captured frames\n0102 03\n\n  ff00\n"
	payloads, err := readPayloads(strings.NewReader(input), true)
	if err != nil {
		t.Fatalf("readPayloads: %v", err)
	}
	if len(payloads) != 2 {
		t.Fatalf("len(payloads) = %d, want 2", len(payloads))
	}
	if !bytes.Equal(payloads[0], []byte{1, 2, 3}) || !bytes.Equal(payloads[1], []byte{0xff, 0}) {
		t.Errorf("payloads = %x", payloads)
	}
}

func TestReadPayloads_InvalidHex(t *testing.T) {
	_, err := readPayloads(strings.NewReader("0102\nzz\n"), true)
	if err == nil {
		t.Fatal("expected error for invalid hex")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error = %q, want line number", err)
	}
}

func TestWriteHex_RoundTrip(t *testing.T) {
	in := [][]byte{{0xde, 0xad}, {0xbe, 0xef, 0x00}}
	var buf bytes.Buffer
	if err := writeHex(&buf, in); err != nil {
		t.Fatalf("writeHex: %v", err)
	}
	out, err := readPayloads(&buf, true)
	if err != nil {
		t.Fatalf("readPayloads: %v", err)
	}
	if len(out) != 2 || !bytes.Equal(out[0], in[0]) || !bytes.Equal(out[1], in[1]) {
		t.Errorf("round trip = %x, want %x", out, in)
	}
}

// --- Commands ---

func TestDecode_MetaThenDeltaFromStdin(t *testing.T) {
	stdin := hexLines(t, testMeta("pub-1", 7, v10), testDelta("pub-1", 7, v10, 42))

	out, errOut, code := runApp(t, stdin, "decode", "--format", "json", "--hex", "-")
	if code != exitSuccess {
		t.Fatalf("exit code = %d, want 0 (stderr: %s)", code, errOut)
	}
	for _, want := range []string{`"kind": "meta"`, `"kind": "delta"`, `"dataset": "tap changer"`, `"value": 42`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s:\n%s", want, out)
		}
	}
}

func TestDecode_SchemaMissIsNotAFailure(t *testing.T) {
	stdin := hexLines(t, testDelta("pub-1", 7, v10, 42))

	out, _, code := runApp(t, stdin, "decode", "--format", "json", "--hex")
	if code != exitSuccess {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if !strings.Contains(out, `"kind": "dataframe"`) {
		t.Errorf("expected header-only data frame:\n%s", out)
	}
}

func TestDecode_UndecodableInput(t *testing.T) {
	_, errOut, code := runApp(t, []byte{0x02}, "decode", "--format", "json")
	if code != exitDecodeFailure {
		t.Errorf("exit code = %d, want %d", code, exitDecodeFailure)
	}
	if !strings.Contains(errOut, "no result") {
		t.Errorf("stderr = %q, want no result report", errOut)
	}
}

func TestDecode_MetaFileAndTable(t *testing.T) {
	dir := t.TempDir()
	metaPath := writeFile(t, dir, "meta.bin", encode(t, testMeta("pub-1", 7, v10)))
	deltaPath := writeFile(t, dir, "delta.bin", encode(t, testDelta("pub-1", 7, v10, 42)))

	out, errOut, code := runApp(t, nil, "decode", "--format", "table", "--meta", metaPath, deltaPath)
	if code != exitSuccess {
		t.Fatalf("exit code = %d, want 0 (stderr: %s)", code, errOut)
	}
	for _, want := range []string{"delta", "position", "42"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestDecode_InvalidFormat(t *testing.T) {
	_, _, code := runApp(t, nil, "decode", "--format", "xml")
	if code != exitConfigError {
		t.Errorf("exit code = %d, want %d", code, exitConfigError)
	}
}

func TestDecode_TooManyArgs(t *testing.T) {
	_, _, code := runApp(t, nil, "decode", "a", "b")
	if code != exitConfigError {
		t.Errorf("exit code = %d, want %d", code, exitConfigError)
	}
}

func TestChunk_OutputDecodesBack(t *testing.T) {
	dir := t.TempDir()
	metaPath := writeFile(t, dir, "meta.bin", encode(t, testMeta("pub-1", 7, v10)))

	chunked, errOut, code := runApp(t, nil, "chunk", "--size", "8", "--sequence", "3", metaPath)
	if code != exitSuccess {
		t.Fatalf("chunk exit code = %d (stderr: %s)", code, errOut)
	}
	lines := strings.Split(strings.TrimSpace(chunked), "\n")
	if len(lines) < 2 {
		t.Fatalf("got %d chunks, want several", len(lines))
	}

	out, errOut, code := runApp(t, []byte(chunked), "decode", "--format", "json", "--hex")
	if code != exitSuccess {
		t.Fatalf("decode exit code = %d (stderr: %s)", code, errOut)
	}
	if got := strings.Count(out, `"kind": "chunk"`); got != len(lines)-1 {
		t.Errorf("chunk events = %d, want %d", got, len(lines)-1)
	}
	if !strings.Contains(out, `"kind": "meta"`) || !strings.Contains(out, `"dataset": "tap changer"`) {
		t.Errorf("reassembled meta frame missing:\n%s", out)
	}
}

func TestChunk_InvalidSize(t *testing.T) {
	_, _, code := runApp(t, nil, "chunk", "--size", "0")
	if code != exitConfigError {
		t.Errorf("exit code = %d, want %d", code, exitConfigError)
	}
}

func TestCache_ListAfterDecode(t *testing.T) {
	cacheDir := filepath.Join(t.TempDir(), "meta")
	stdin := hexLines(t, testMeta("pub-1", 7, v10), testMeta("pub-1", 7, message.ConfigurationVersion{Major: 2}))

	if _, errOut, code := runApp(t, stdin, "decode", "--format", "json", "--hex", "--cache-dir", cacheDir); code != exitSuccess {
		t.Fatalf("decode exit code = %d (stderr: %s)", code, errOut)
	}

	out, errOut, code := runApp(t, nil, "cache", "list", "--format", "json", "--cache-dir", cacheDir)
	if code != exitSuccess {
		t.Fatalf("cache list exit code = %d (stderr: %s)", code, errOut)
	}
	for _, want := range []string{`"file": "pub-1-7-1-0.meta"`, `"file": "pub-1-7-2-0.meta"`, `"dataset": "tap changer"`, `"fields": 1`} {
		if !strings.Contains(out, want) {
			t.Errorf("cache list missing %s:\n%s", want, out)
		}
	}
}

func TestCache_ReconcileRemovesOrphans(t *testing.T) {
	cacheDir := t.TempDir()
	writeFile(t, cacheDir, "pub-1-7-1-0.meta", encode(t, testMeta("pub-1", 7, v10)))
	writeFile(t, cacheDir, "pub-9-1-1-0.meta", []byte{0x01, 0xff})

	out, errOut, code := runApp(t, nil, "cache", "reconcile", "--format", "json", "--cache-dir", cacheDir)
	if code != exitSuccess {
		t.Fatalf("exit code = %d (stderr: %s)", code, errOut)
	}
	if !strings.Contains(out, `"resident": 1`) || !strings.Contains(out, "pub-9-1-1-0.meta") {
		t.Errorf("unexpected reconcile output:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(cacheDir, "pub-9-1-1-0.meta")); !os.IsNotExist(err) {
		t.Errorf("orphan still present: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cacheDir, "pub-1-7-1-0.meta")); err != nil {
		t.Errorf("resident frame removed: %v", err)
	}
}

func TestCache_RequiresStorage(t *testing.T) {
	_, _, code := runApp(t, nil, "cache", "list")
	if code != exitConfigError {
		t.Errorf("exit code = %d, want %d", code, exitConfigError)
	}
}

func TestCache_RejectsTUI(t *testing.T) {
	_, _, code := runApp(t, nil, "cache", "list", "--tui", "--cache-dir", t.TempDir())
	if code != exitConfigError {
		t.Errorf("exit code = %d, want %d", code, exitConfigError)
	}
}

func TestVersion_JSON(t *testing.T) {
	out, _, code := runApp(t, nil, "version", "--format", "json")
	if code != exitSuccess {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(out, `"version": "`+types.Version+`"`) || !strings.Contains(out, `"commit": "test"`) {
		t.Errorf("unexpected version output:\n%s", out)
	}
}
