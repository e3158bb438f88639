package logging

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// New builds the process logger. format "json" selects the JSON formatter;
// anything else logs text. Unknown levels fall back to info.
func New(level, format string) *log.Logger {
	return NewWithWriter(os.Stderr, level, format)
}

func NewWithWriter(w io.Writer, level, format string) *log.Logger {
	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = log.InfoLevel
	}
	opts := log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		Formatter:       log.TextFormatter,
	}
	if strings.EqualFold(format, "json") {
		opts.Formatter = log.JSONFormatter
	}
	return log.NewWithOptions(w, opts)
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}
