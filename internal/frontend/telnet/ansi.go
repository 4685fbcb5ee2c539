// Package telnet provides a line-oriented Telnet acceptor with IAC filtering
// and ANSI color helpers.
package telnet

import (
	"fmt"
	"strings"
)

// ANSI SGR sequences used by the text renderer.
const (
	Reset = "\033[0m"
	Bold  = "\033[1m"
	Dim   = "\033[2m"

	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	White   = "\033[37m"

	BrightCyan   = "\033[96m"
	BrightWhite  = "\033[97m"
	BrightYellow = "\033[93m"
)

// Colorize wraps text with the given ANSI sequence and a reset suffix.
func Colorize(color, text string) string {
	return color + text + Reset
}

// Colorf wraps a formatted string with the given ANSI sequence.
func Colorf(color, format string, args ...any) string {
	return Colorize(color, fmt.Sprintf(format, args...))
}

// StripANSI removes every ESC [ ... m sequence, leaving the printable text.
// An unterminated sequence is kept verbatim.
func StripANSI(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for {
		start := strings.Index(s, "\033[")
		if start < 0 {
			b.WriteString(s)
			return b.String()
		}
		end := strings.IndexByte(s[start+2:], 'm')
		if end < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:start])
		s = s[start+2+end+1:]
	}
}
