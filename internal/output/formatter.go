package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/emmett/hark/internal/supervisor"
)

// Formatter renders supervisor events to a stream
type Formatter interface {
	// WriteEvent writes one event
	WriteEvent(ev supervisor.Event) error

	// Close releases resources
	Close() error
}

// NewFormatter returns the formatter for format: "json" or "text"
func NewFormatter(format string, w io.Writer) (Formatter, error) {
	switch strings.ToLower(format) {
	case "json":
		return NewJSONFormatter(w), nil
	case "text", "plain", "":
		return NewPlainTextFormatter(w), nil
	}
	return nil, fmt.Errorf("unknown output format: %s", format)
}

// JSONFormatter writes one JSON object per line
type JSONFormatter struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(w io.Writer) *JSONFormatter {
	return &JSONFormatter{encoder: json.NewEncoder(w)}
}

// WriteEvent writes an event as a JSON line
func (j *JSONFormatter) WriteEvent(ev supervisor.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.encoder.Encode(ev)
}

// Close closes the formatter
func (j *JSONFormatter) Close() error { return nil }

// PlainTextFormatter writes human-readable lines
type PlainTextFormatter struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewPlainTextFormatter creates a new plain text formatter
func NewPlainTextFormatter(w io.Writer) *PlainTextFormatter {
	return &PlainTextFormatter{writer: w}
}

// WriteEvent writes an event as one line
func (p *PlainTextFormatter) WriteEvent(ev supervisor.Event) error {
	var line string
	switch ev.Type {
	case supervisor.EventResult:
		line = ev.Text
	case supervisor.EventTrigger:
		line = fmt.Sprintf("TRIGGER %q: %s", ev.Word, ev.Text)
	case supervisor.EventError:
		line = fmt.Sprintf("error (%s): %s", ev.Category, ev.Error)
	case supervisor.EventLog:
		line = ev.Message
	default:
		line = string(ev.Type)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintf(p.writer, "[%s] %s\n", ev.Time.Format("15:04:05"), line)
	return err
}

// Close closes the formatter
func (p *PlainTextFormatter) Close() error { return nil }

// FormatterSink adapts a Formatter to supervisor.EventSink. Write failures
// are logged and dropped.
type FormatterSink struct {
	formatter Formatter
	log       zerolog.Logger
}

// NewFormatterSink wraps f
func NewFormatterSink(f Formatter, log zerolog.Logger) *FormatterSink {
	return &FormatterSink{formatter: f, log: log}
}

// Emit writes ev
func (s *FormatterSink) Emit(ev supervisor.Event) {
	if err := s.formatter.WriteEvent(ev); err != nil {
		s.log.Warn().Err(err).Str("type", string(ev.Type)).Msg("failed to write event")
	}
}
