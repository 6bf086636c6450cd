// Package console provides the terminal output and interactive prompts shared
// by all commands. Messages are colorized only when the target stream is a TTY,
// and debug output is suppressed unless enabled.
package console

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// ANSI escape codes.
const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	cyan   = "\033[36m"
	yellow = "\033[33m"
	red    = "\033[31m"
	dim    = "\033[2m"
)

// Logger writes leveled, optionally colorized messages and runs interactive
// prompts. A single Logger is created per invocation and passed down the call
// chain so tests can capture output and script prompt answers.
type Logger struct {
	out    io.Writer
	errOut io.Writer
	in     *bufio.Reader
	stdin  io.Reader
	debug  bool
}

// New creates a Logger writing to out and errOut and reading prompt answers
// from in.
func New(out, errOut io.Writer, in io.Reader) *Logger {
	return &Logger{
		out:    out,
		errOut: errOut,
		in:     bufio.NewReader(in),
		stdin:  in,
	}
}

// Default returns a Logger bound to the process streams.
func Default() *Logger {
	return New(os.Stdout, os.Stderr, os.Stdin)
}

// SetDebug enables or disables debug output.
func (l *Logger) SetDebug(enabled bool) {
	l.debug = enabled
}

// colorize wraps msg in an ANSI color sequence only when w is a TTY.
func colorize(w io.Writer, color, msg string) string {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return color + bold + msg + reset
	}
	return msg
}

// Info prints an informational message.
func (l *Logger) Info(format string, args ...any) {
	fmt.Fprintf(l.out, "%s %s\n", colorize(l.out, cyan, "[+]"), fmt.Sprintf(format, args...))
}

// Warn prints a warning message.
func (l *Logger) Warn(format string, args ...any) {
	fmt.Fprintf(l.out, "%s %s\n", colorize(l.out, yellow, "[!]"), fmt.Sprintf(format, args...))
}

// Error prints an error message to the error stream.
func (l *Logger) Error(format string, args ...any) {
	fmt.Fprintf(l.errOut, "%s %s\n", colorize(l.errOut, red, "[!]"), fmt.Sprintf(format, args...))
}

// Debug prints a message only when debug output is enabled.
func (l *Logger) Debug(format string, args ...any) {
	if !l.debug {
		return
	}
	fmt.Fprintf(l.out, "%s %s\n", colorize(l.out, dim, "[*]"), fmt.Sprintf(format, args...))
}

// Step prints an indented bullet line, used to enumerate details under an
// Info headline.
func (l *Logger) Step(format string, args ...any) {
	fmt.Fprintf(l.out, " • %s\n", fmt.Sprintf(format, args...))
}

// DumpYAML prints v as a YAML document between delimiter lines. With debugOnly
// set the dump is suppressed unless debug output is enabled.
func (l *Logger) DumpYAML(v any, debugOnly bool) {
	if debugOnly && !l.debug {
		return
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		l.Warn("could not render configuration: %v", err)
		return
	}
	delimiter := strings.Repeat("-", 55)
	fmt.Fprintf(l.out, "%s\n%s\n%s\n", delimiter, strings.TrimSpace(string(data)), delimiter)
}

// Confirm asks a yes/no question and returns true only for an affirmative
// answer. EOF or a read error counts as "no".
func (l *Logger) Confirm(prompt string) bool {
	fmt.Fprintf(l.out, "%s [yN]? ", prompt)
	answer, err := l.in.ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	answer = strings.TrimSpace(answer)
	return answer == "y" || answer == "Y"
}

// Prompt reads a line of input after displaying label.
func (l *Logger) Prompt(label string) (string, error) {
	fmt.Fprintf(l.out, "Please enter %s: ", label)
	answer, err := l.in.ReadString('\n')
	if err != nil && answer == "" {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

// PromptSecret reads a value without echoing it when the input stream is a
// terminal. Falls back to a plain line read otherwise, so tests can script it.
func (l *Logger) PromptSecret(label string) (string, error) {
	if f, ok := l.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(l.out, "Please enter %s: ", label)
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(l.out)
		if err != nil {
			return "", fmt.Errorf("read secret: %w", err)
		}
		return string(secret), nil
	}
	return l.Prompt(label)
}
