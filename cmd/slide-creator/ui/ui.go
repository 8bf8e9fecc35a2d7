// Package ui renders progress and results for the slide-creator CLI.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

var (
	noColorFlag bool
	verboseFlag bool

	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

var (
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	cyan   = color.New(color.FgCyan)
	blue   = color.New(color.FgBlue)
	bold   = color.New(color.Bold)
)

// InitUI initializes the UI with color and verbose settings.
func InitUI(noColor, verbose bool) {
	noColorFlag = noColor
	verboseFlag = verbose

	if noColor {
		color.NoColor = true
	}
}

// SetOutput redirects messages, mainly for tests. A nil writer keeps the
// current one.
func SetOutput(out, errOut io.Writer) {
	if out != nil {
		stdout = out
	}
	if errOut != nil {
		stderr = errOut
	}
}

// Verbose reports whether verbose output was requested.
func Verbose() bool { return verboseFlag }

// IsTerminal checks if stdout is a terminal.
func IsTerminal() bool {
	f, ok := stdout.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// Interactive reports whether animated output should be drawn.
func Interactive() bool {
	return IsTerminal() && !noColorFlag
}

func paint(w io.Writer, c *color.Color, prefix, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if noColorFlag || color.NoColor {
		fmt.Fprintf(w, "%s %s\n", prefix, msg)
		return
	}
	c.Fprintf(w, "%s %s\n", prefix, msg)
}

// Message displays a simple message without decoration.
func Message(format string, args ...interface{}) {
	fmt.Fprintf(stdout, format, args...)
	fmt.Fprintln(stdout)
}

// Success displays a success message.
func Success(format string, args ...interface{}) {
	paint(stdout, green, "✓", format, args...)
}

// Error displays an error message to stderr.
func Error(format string, args ...interface{}) {
	paint(stderr, red, "✗", format, args...)
}

// Warning displays a warning message.
func Warning(format string, args ...interface{}) {
	paint(stdout, yellow, "⚠", format, args...)
}

// Info displays an informational message.
func Info(format string, args ...interface{}) {
	paint(stdout, cyan, "ℹ", format, args...)
}

// Step displays a progress step.
func Step(format string, args ...interface{}) {
	paint(stdout, blue, "→", format, args...)
}

// Debug displays a message only in verbose mode.
func Debug(format string, args ...interface{}) {
	if verboseFlag {
		fmt.Fprintf(stdout, "  %s\n", fmt.Sprintf(format, args...))
	}
}

// Newline prints a newline.
func Newline() {
	fmt.Fprintln(stdout)
}

// Section displays a section header.
func Section(title string) {
	if noColorFlag || color.NoColor {
		fmt.Fprintf(stdout, "\n%s\n", title)
	} else {
		bold.Fprintf(stdout, "\n%s\n", title)
	}
	fmt.Fprintf(stdout, "%s\n\n", strings.Repeat("=", len(title)))
}

// Rule prints a horizontal separator.
func Rule() {
	fmt.Fprintln(stdout, strings.Repeat("=", 60))
}
