// Package grootlog implements a small leveled logger for groot, in the
// style of apptainer's pkg/sylog: single-line, colorized when attached to
// a terminal, controlled by one verbosity switch rather than a config file.
package grootlog

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

type level int

const (
	fatalLevel level = iota
	errorLevel
	warnLevel
	infoLevel
	debugLevel
)

var levelNames = map[level]string{
	fatalLevel: "FATAL",
	errorLevel: "ERROR",
	warnLevel:  "WARN",
	infoLevel:  "INFO",
	debugLevel: "DEBUG",
}

var levelColors = map[level]string{
	fatalLevel: "\x1b[31m",
	errorLevel: "\x1b[31m",
	warnLevel:  "\x1b[33m",
	infoLevel:  "\x1b[34m",
}

var (
	current  = infoLevel
	out      = io.Writer(os.Stderr)
	colorize = term.IsTerminal(int(os.Stderr.Fd()))
)

// SetDebug raises the logger to debug level. This is the only verbosity
// knob groot exposes (the -d flag / GROOT_DEBUG env var).
func SetDebug(on bool) {
	if on {
		current = debugLevel
	} else {
		current = infoLevel
	}
}

// SetWriter redirects log output, returning the previous writer so tests
// can restore it.
func SetWriter(w io.Writer) io.Writer {
	prev := out
	if w != nil {
		out = w
	}
	return prev
}

func prefix(l level) string {
	name := levelNames[l] + ":"
	if !colorize {
		return fmt.Sprintf("%-7s ", name)
	}
	color, ok := levelColors[l]
	if !ok {
		return fmt.Sprintf("%-7s ", name)
	}
	return fmt.Sprintf("%s%-7s\x1b[0m ", color, name)
}

func writef(l level, format string, a ...interface{}) {
	if l > current {
		return
	}
	msg := strings.TrimRight(fmt.Sprintf(format, a...), "\n")
	fmt.Fprintf(out, "%s%s\n", prefix(l), msg)
}

// Fatalf logs at fatal level and terminates the process with status 1,
// matching groot's documented exit code for setup errors.
func Fatalf(format string, a ...interface{}) {
	writef(fatalLevel, format, a...)
	os.Exit(1)
}

// Errorf logs at error level without exiting.
func Errorf(format string, a ...interface{}) {
	writef(errorLevel, format, a...)
}

// Warnf logs at warn level.
func Warnf(format string, a ...interface{}) {
	writef(warnLevel, format, a...)
}

// Infof logs at info level.
func Infof(format string, a ...interface{}) {
	writef(infoLevel, format, a...)
}

// Debugf logs at debug level, only visible with -d/GROOT_DEBUG set.
func Debugf(format string, a ...interface{}) {
	writef(debugLevel, format, a...)
}
