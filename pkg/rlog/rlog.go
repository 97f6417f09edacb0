// Package rlog is a thin, colored, leveled logger wrapping logrus. It
// keeps the five-level API (Debug/Info/Warn/Error/Success) and the
// section/banner helpers the example binaries use, but every line is
// a structured logrus entry rather than a formatted string.
package rlog

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// ANSI color codes, reused for Section/Banner which still print
// directly to stdout rather than through logrus.
const (
	ColorReset  = "\033[0m"
	ColorGreen  = "\033[32m"
	ColorCyan   = "\033[36m"
)

var base = logrus.New()

func init() {
	base.SetOutput(os.Stderr)
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
	base.SetLevel(logrus.InfoLevel)
}

// SetLevel sets the minimum level of the default logger.
func SetLevel(level logrus.Level) {
	base.SetLevel(level)
}

// Logger is a component-scoped logger: every entry carries a
// "component" field so log lines from the engine, the façade, and the
// timeout policy can be told apart without parsing message text.
type Logger struct {
	entry *logrus.Entry
}

// New returns a Logger scoped to component, plus any additional
// static fields (e.g. a socket's correlation id).
func New(component string, fields logrus.Fields) *Logger {
	f := logrus.Fields{"component": component}
	for k, v := range fields {
		f[k] = v
	}
	return &Logger{entry: base.WithFields(f)}
}

// With returns a derived Logger with additional fields merged in,
// e.g. a peer address or sequence number for one call's duration.
func (l *Logger) With(fields logrus.Fields) *Logger {
	return &Logger{entry: l.entry.WithFields(fields)}
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

// Success logs at info level tagged outcome=success.
func (l *Logger) Success(format string, args ...interface{}) {
	l.entry.WithField("outcome", "success").Infof(format, args...)
}

// Fatal logs at fatal level and exits, used by the example binaries
// on unrecoverable startup errors.
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.entry.Fatalf(format, args...)
}

// Section prints a boxed section header to stdout, for the example
// binaries' startup banners.
func Section(title string) {
	border := "═══════════════════════════════════════════════════════════"
	fmt.Printf("\n%s╔%s╗%s\n", ColorCyan, border, ColorReset)
	fmt.Printf("%s║%s %-57s %s║%s\n", ColorCyan, ColorReset, title, ColorCyan, ColorReset)
	fmt.Printf("%s╚%s╝%s\n\n", ColorCyan, border, ColorReset)
}

// Banner prints the example binaries' startup banner.
func Banner(title, version string) {
	fmt.Printf("%sreudp%s %s%s%s (%s)\n", ColorCyan, ColorReset, ColorGreen, title, ColorReset, version)
}
