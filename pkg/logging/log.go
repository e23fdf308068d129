// Package logging configures the logrus loggers used across the exporter.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// NamedLogger creates a component logger writing to stderr. Verbose enables debug output.
func NamedLogger(name string, verbose bool) *logrus.Entry {
	return NewLogger(os.Stderr, verbose).WithField(componentField, name)
}

// NewLogger creates a logger with the exporter's text format writing to out.
func NewLogger(out io.Writer, verbose bool) *logrus.Logger {
	level := logrus.InfoLevel
	if verbose {
		level = logrus.DebugLevel
	}
	return &logrus.Logger{
		Out: out,
		Formatter: &ComponentTextFormatter{
			TextFormatter: logrus.TextFormatter{
				FullTimestamp:   true,
				TimestampFormat: "15:04:05.000",
			},
		},
		Hooks: make(logrus.LevelHooks),
		Level: level,
	}
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *logrus.Logger {
	l := NewLogger(io.Discard, false)
	l.SetLevel(logrus.PanicLevel)
	return l
}

const componentField = "component"

// ComponentTextFormatter prefixes each message with the component name.
type ComponentTextFormatter struct {
	logrus.TextFormatter
}

// Format renders a single log entry.
func (f *ComponentTextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	if name, ok := entry.Data[componentField]; ok {
		// Copy so the prefix does not leak into other formatters sharing the entry
		e := *entry
		e.Data = make(logrus.Fields, len(entry.Data))
		for k, v := range entry.Data {
			if k != componentField {
				e.Data[k] = v
			}
		}
		e.Message = fmt.Sprintf("[%-9s] %s", name, entry.Message)
		return f.TextFormatter.Format(&e)
	}
	return f.TextFormatter.Format(entry)
}
