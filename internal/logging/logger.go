package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Logger is a wrapper around the log.Logger from the charmbracelet/log package.
type Logger struct {
	*log.Logger
}

// New creates a logger writing to w at the given level ("debug", "info",
// "warn", "error"). Unknown levels fall back to info. Setting DEBUG=1 in the
// environment forces debug level with caller and timestamp reporting.
func New(w io.Writer, level string) *Logger {
	if os.Getenv("DEBUG") == "1" {
		l := log.NewWithOptions(w, log.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			Prefix:          "gallery",
		})
		l.SetLevel(log.DebugLevel)
		return &Logger{Logger: l}
	}

	l := log.NewWithOptions(w, log.Options{Prefix: "gallery"})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	l.SetLevel(lvl)
	return &Logger{Logger: l}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return New(io.Discard, "error")
}

// With returns a child logger that always includes the given key/value pairs.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	return &Logger{Logger: l.Logger.With(keyvals...)}
}
