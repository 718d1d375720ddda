// Package output renders detections, device lists and recordings as text,
// JSON lines or YAML documents.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/metalblueberry/tuner/pkg/audio"
	"github.com/metalblueberry/tuner/pkg/note"
	"github.com/metalblueberry/tuner/pkg/record"
)

const (
	FORMAT_TEXT = "text"
	FORMAT_JSON = "json"
	FORMAT_YAML = "yaml"

	METER_WIDTH = 21
	CENTS_RANGE = 50
)

// Formatter turns a value into bytes ready to be written.
type Formatter interface {
	Format(v any) ([]byte, error)
}

// JSONFormatter writes one JSON document per line.
type JSONFormatter struct{}

func (JSONFormatter) Format(v any) ([]byte, error) {
	data, err := json.Marshal(v)

	if err != nil {
		return nil, err
	}

	return append(data, '\n'), nil
}

// YAMLFormatter writes one YAML document per value.
type YAMLFormatter struct{}

func (YAMLFormatter) Format(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	if err := enc.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// TextFormatter writes human readable lines and tables.
type TextFormatter struct{}

func (TextFormatter) Format(v any) ([]byte, error) {
	var buf bytes.Buffer

	switch val := v.(type) {
	case note.Detection:
		fmt.Fprintf(&buf, "%-4s %+4d¢ %s %8.2f Hz\n", note.Label(val.Value), val.Cents, Meter(val.Cents), val.Frequency)
	case []note.Detection:
		tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "FREQUENCY\tNOTE\tVALUE\tCENTS")
		for _, d := range val {
			fmt.Fprintf(tw, "%.2f\t%s\t%d\t%+d\n", d.Frequency, note.Label(d.Value), d.Value, d.Cents)
		}
		tw.Flush()
	case []audio.Device:
		tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "DEFAULT\tNAME\tHOST API\tINPUTS\tOUTPUTS\tRATE")
		for _, d := range val {
			mark := ""
			if d.DefaultInput {
				mark = "*"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%.0f\n", mark, d.Name, d.HostAPI, d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate)
		}
		tw.Flush()
	case *record.Recording:
		fmt.Fprintf(&buf, "recorded %s (%d samples at %d Hz, %d chunks) to %s\n",
			val.Duration.Round(time.Millisecond), val.Samples, val.SampleRate, val.Chunks, val.Path)
	case string:
		buf.WriteString(val)
		buf.WriteByte('\n')
	default:
		fmt.Fprintf(&buf, "%v\n", val)
	}

	return buf.Bytes(), nil
}

// Meter draws a needle for an offset in cents, centered when in tune.
func Meter(cents int) string {
	if cents < -CENTS_RANGE {
		cents = -CENTS_RANGE
	} else if cents > CENTS_RANGE {
		cents = CENTS_RANGE
	}

	half := METER_WIDTH / 2
	pos := half + (cents*half)/CENTS_RANGE
	cells := []rune(strings.Repeat("-", METER_WIDTH))
	cells[half] = '|'
	cells[pos] = '●'
	return "[" + string(cells) + "]"
}

// NewFormatter returns the formatter registered under name.
func NewFormatter(name string) (Formatter, error) {
	switch name {
	case FORMAT_TEXT, "":
		return TextFormatter{}, nil
	case FORMAT_JSON:
		return JSONFormatter{}, nil
	case FORMAT_YAML:
		return YAMLFormatter{}, nil
	}

	return nil, fmt.Errorf("unknown output format %q", name)
}

// Printer serialises writes of formatted values to w.
type Printer struct {
	mu        sync.Mutex
	w         io.Writer
	formatter Formatter
}

// NewPrinter creates a printer for the named format.
func NewPrinter(w io.Writer, format string) (*Printer, error) {
	f, err := NewFormatter(format)

	if err != nil {
		return nil, err
	}

	return &Printer{w: w, formatter: f}, nil
}

// Print formats v and writes it in one call.
func (p *Printer) Print(v any) error {
	data, err := p.formatter.Format(v)

	if err != nil {
		return fmt.Errorf("format output: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_, err = p.w.Write(data)
	return err
}

// ChangeFilter passes a detection on only when the note differs from the
// previous one, so a held string prints once.
type ChangeFilter struct {
	mu       sync.Mutex
	previous string
}

// Changed reports whether d holds a different note than the last call.
func (f *ChangeFilter) Changed(d note.Detection) bool {
	label := note.Label(d.Value)

	f.mu.Lock()
	defer f.mu.Unlock()

	if label == f.previous {
		return false
	}

	f.previous = label
	return true
}
