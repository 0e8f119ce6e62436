package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"
)

// Logger wraps standard log with level-based output and an optional
// component name.
type Logger struct {
	info  *log.Logger
	warn  *log.Logger
	error *log.Logger
	debug *log.Logger

	name    string
	verbose bool
}

// NewLogger creates a logger writing info/warn/debug to stdout and errors to stderr
func NewLogger() *Logger {
	return NewLoggerWithOutput(os.Stdout, os.Stderr)
}

// NewLoggerWithOutput creates a logger with explicit sinks; tests pass io.Discard.
func NewLoggerWithOutput(out, errOut io.Writer) *Logger {
	flags := log.Lmsgprefix
	return &Logger{
		info:  log.New(out, "[INFO]  ", flags),
		warn:  log.New(out, "[WARN]  ", flags),
		error: log.New(errOut, "[ERROR] ", flags),
		debug: log.New(out, "[DEBUG] ", flags),
	}
}

// SetDebug toggles Debug output.
func (l *Logger) SetDebug(on bool) {
	l.verbose = on
}

// SetLevel accepts "debug" to enable debug output; any other value disables it.
func (l *Logger) SetLevel(level string) {
	l.SetDebug(strings.EqualFold(strings.TrimSpace(level), "debug"))
}

// Named returns a copy of the logger tagging every line with the component name.
func (l *Logger) Named(name string) *Logger {
	cp := *l
	if cp.name != "" {
		cp.name = cp.name + "." + name
	} else {
		cp.name = name
	}
	return &cp
}

func (l *Logger) prefix() string {
	if l.name == "" {
		return fmt.Sprintf(" %s ", time.Now().Format("15:04:05"))
	}
	return fmt.Sprintf(" %s [%s] ", time.Now().Format("15:04:05"), l.name)
}

func (l *Logger) Info(msg string, args ...interface{}) {
	l.info.Printf(l.prefix()+msg, args...)
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	l.warn.Printf(l.prefix()+msg, args...)
}

func (l *Logger) Error(msg string, args ...interface{}) {
	l.error.Printf(l.prefix()+msg, args...)
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	if !l.verbose {
		return
	}
	l.debug.Printf(l.prefix()+msg, args...)
}
