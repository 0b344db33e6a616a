// Package render provides centralized output rendering for the uadp CLI.
//
// Format selection rules:
//   - If output is a TTY, default to text
//   - If output is not a TTY, default to json
//   - --format flag always overrides defaults
//   - Invalid formats are errors
//
// Color handling:
//   - --no-color affects table output only
//   - TUI mode is unaffected by --no-color (uses its own styling)
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/uadp/adapter"
)

// Format represents an output format.
type Format string

// Supported formats.
const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
	// FormatText prints the message dump produced by its String method.
	FormatText Format = "text"
)

// ParseFormat parses a format string, returning an error for invalid formats.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "table":
		return FormatTable, nil
	case "yaml":
		return FormatYAML, nil
	case "text":
		return FormatText, nil
	case "":
		return "", nil // Let caller decide default
	default:
		return "", fmt.Errorf("invalid format: %q (must be json, table, yaml, or text)", s)
	}
}

// Renderer handles output formatting.
type Renderer struct {
	format  Format
	noColor bool
	out     io.Writer
}

// NewRenderer creates a renderer from CLI context.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	format, err := ParseFormat(c.String("format"))
	if err != nil {
		return nil, err
	}

	if format == "" {
		if isTTY(os.Stdout) {
			format = FormatText
		} else {
			format = FormatJSON
		}
	}

	return &Renderer{
		format:  format,
		noColor: c.Bool("no-color"),
		out:     c.App.Writer,
	}, nil
}

// NewRendererWithWriter creates a renderer with a custom writer (for testing).
func NewRendererWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	return &Renderer{
		format:  format,
		noColor: noColor,
		out:     out,
	}
}

// Format returns the selected output format.
func (r *Renderer) Format() Format {
	return r.format
}

// Render outputs the data in the configured format.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		return r.renderJSON(data)
	case FormatTable:
		if ev, ok := data.(*adapter.DecodedEvent); ok {
			return r.renderEventTable(ev)
		}
		return r.renderTable(data)
	case FormatYAML:
		return r.renderYAML(data)
	case FormatText:
		return r.renderText(data)
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}

// RenderMessage renders a decoded event, using text for the raw message
// dump when that format is selected.
func (r *Renderer) RenderMessage(text fmt.Stringer, event *adapter.DecodedEvent) error {
	if r.format == FormatText {
		return r.renderText(text)
	}
	return r.Render(event)
}

func (r *Renderer) renderJSON(data any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (r *Renderer) renderYAML(data any) error {
	enc := yaml.NewEncoder(r.out)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return enc.Close()
}

func (r *Renderer) renderText(data any) error {
	if s, ok := data.(fmt.Stringer); ok {
		_, err := io.WriteString(r.out, s.String())
		return err
	}
	_, err := fmt.Fprintf(r.out, "%v\n", data)
	return err
}

// renderEventTable prints the event header as key/value rows followed by
// one row per field or schema entry.
func (r *Renderer) renderEventTable(ev *adapter.DecodedEvent) error {
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "kind:\t%s\n", ev.Kind)
	if ev.Topic != "" {
		fmt.Fprintf(w, "topic:\t%s\n", ev.Topic)
	}
	fmt.Fprintf(w, "publisher_id:\t%s\n", ev.PublisherID)
	fmt.Fprintf(w, "writer_id:\t%d\n", ev.WriterID)
	fmt.Fprintf(w, "sequence_number:\t%d\n", ev.SequenceNumber)
	if ev.Version != nil {
		fmt.Fprintf(w, "version:\t%s\n", ev.Version)
	}
	if ev.DataSet != "" {
		fmt.Fprintf(w, "dataset:\t%s\n", ev.DataSet)
	}
	if ev.Timestamp != "" {
		fmt.Fprintf(w, "timestamp:\t%s\n", ev.Timestamp)
	}
	if ev.Chunk != nil {
		fmt.Fprintf(w, "chunk:\t%d+%d of %d\n", ev.Chunk.Offset, ev.Chunk.Size, ev.Chunk.Total)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	switch {
	case len(ev.Fields) > 0:
		fmt.Fprintln(r.out)
		return r.renderSliceTable(reflect.ValueOf(ev.Fields))
	case len(ev.Schema) > 0:
		fmt.Fprintln(r.out)
		return r.renderSliceTable(reflect.ValueOf(ev.Schema))
	}
	return nil
}

func (r *Renderer) renderTable(data any) error {
	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Slice {
		return r.renderSliceTable(v)
	}
	return r.renderStructTable(data)
}

func (r *Renderer) renderSliceTable(v reflect.Value) error {
	if v.Len() == 0 {
		fmt.Fprintln(r.out, "(no results)")
		return nil
	}

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	headers := r.getHeaders(v.Index(0))
	fmt.Fprintln(w, strings.Join(headers, "\t"))

	for i := 0; i < v.Len(); i++ {
		row := r.getRowValues(v.Index(i), headers)
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}

	return nil
}

func (r *Renderer) renderStructTable(data any) error {
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			field := t.Field(i)
			name := r.getFieldName(field)
			val := r.formatValue(v.Field(i))
			fmt.Fprintf(w, "%s:\t%s\n", name, val)
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			key := fmt.Sprintf("%v", iter.Key().Interface())
			val := r.formatValue(iter.Value())
			fmt.Fprintf(w, "%s:\t%s\n", key, val)
		}
	default:
		fmt.Fprintf(w, "%v\n", data)
	}

	return nil
}

func (r *Renderer) getHeaders(v reflect.Value) []string {
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	var headers []string
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			headers = append(headers, r.getFieldName(t.Field(i)))
		}
	case reflect.Map:
		for _, key := range v.MapKeys() {
			headers = append(headers, fmt.Sprintf("%v", key.Interface()))
		}
	}
	return headers
}

func (r *Renderer) getRowValues(v reflect.Value, headers []string) []string {
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	var values []string
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			values = append(values, r.formatValue(v.Field(i)))
		}
	case reflect.Map:
		for _, h := range headers {
			val := v.MapIndex(reflect.ValueOf(h))
			if val.IsValid() {
				values = append(values, r.formatValue(val))
			} else {
				values = append(values, "")
			}
		}
	}
	return values
}

func (r *Renderer) getFieldName(f reflect.StructField) string {
	if tag := f.Tag.Get("json"); tag != "" {
		parts := strings.Split(tag, ",")
		if parts[0] != "" && parts[0] != "-" {
			return parts[0]
		}
	}
	return strings.ToLower(f.Name)
}

func (r *Renderer) formatValue(v reflect.Value) string {
	if !v.IsValid() {
		return ""
	}

	if v.Kind() == reflect.Interface || v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}

	if s, ok := v.Interface().(fmt.Stringer); ok {
		return s.String()
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "[]"
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return fmt.Sprintf("[%d bytes]", v.Len())
		}
		if v.Len() <= 4 {
			return fmt.Sprintf("%v", v.Interface())
		}
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		if v.Len() == 0 {
			return "{}"
		}
		return fmt.Sprintf("{%d keys}", v.Len())
	case reflect.Struct:
		return fmt.Sprintf("%+v", v.Interface())
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

// isTTY returns true if the writer is a TTY.
func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
