// Package protocol implements the line protocol spoken over the serial link:
// a narrow parser for the structured (JSON-shaped) command form, the legacy
// plain-text form, and the formatting of every outbound message.
package protocol

import (
	"errors"
	"math"
	"strings"
)

const (
	// MaxNameLen bounds the command name taken from a structured line.
	MaxNameLen = 63
	// MaxParamsLen bounds the raw params object taken from a structured line.
	MaxParamsLen = 127
)

var (
	// ErrNotStructured is returned for lines that do not start with '{'.
	ErrNotStructured = errors.New("protocol: not a structured line")
	// ErrFieldNotFound is returned when a required key is absent or malformed.
	ErrFieldNotFound = errors.New("protocol: field not found")
)

// Form is the textual form a command arrived in.
type Form int

const (
	Legacy Form = iota
	Structured
)

func (f Form) String() string {
	if f == Structured {
		return "structured"
	}
	return "legacy"
}

// Command is a parsed request line.
type Command struct {
	Form   Form
	Name   string
	Params string // Structured: raw params object, "" if absent
	Value  string // Legacy: text after '='
	HasArg bool   // Legacy: line had '='
}

// Trim removes leading spaces and tabs and trailing spaces, tabs, CR and LF.
func Trim(s string) string {
	s = strings.TrimLeft(s, " \t")
	return strings.TrimRight(s, " \t\r\n")
}

// Parse detects the form of a trimmed line. Structured lines whose command
// key cannot be found fall back to legacy handling of the whole line.
func Parse(line string) Command {
	if cmd, err := ParseStructured(line); err == nil {
		return cmd
	}
	return ParseLegacy(line)
}

// ParseStructured extracts the "command" string and the raw "params" object
// from a line shaped like {"type":"cmd","command":"X","params":{...}}.
// It is not a JSON parser: only those two keys are located.
func ParseStructured(line string) (Command, error) {
	if len(line) == 0 || line[0] != '{' {
		return Command{}, ErrNotStructured
	}

	rest, ok := valueOf(line, "command")
	if !ok || len(rest) == 0 || rest[0] != '"' {
		return Command{}, ErrFieldNotFound
	}
	end := strings.IndexByte(rest[1:], '"')
	if end < 0 {
		return Command{}, ErrFieldNotFound
	}
	name := rest[1 : 1+end]
	if len(name) > MaxNameLen {
		name = name[:MaxNameLen]
	}

	cmd := Command{Form: Structured, Name: name}
	if rest, ok := valueOf(line, "params"); ok {
		if obj, ok := matchBraces(rest); ok {
			if len(obj) > MaxParamsLen {
				obj = obj[:MaxParamsLen]
			}
			cmd.Params = obj
		}
	}
	return cmd, nil
}

// ParseLegacy splits a CMD or CMD=value line.
func ParseLegacy(line string) Command {
	if i := strings.IndexByte(line, '='); i >= 0 {
		return Command{Form: Legacy, Name: line[:i], Value: line[i+1:], HasArg: true}
	}
	return Command{Form: Legacy, Name: line}
}

// IntField returns the integer following "key": in a params object.
func IntField(params, key string) (int, error) {
	rest, ok := valueOf(params, key)
	if !ok {
		return 0, ErrFieldNotFound
	}
	return Atoi(rest), nil
}

// Atoi converts the leading decimal integer of s the way C atoi does:
// leading blanks and one sign are accepted, conversion stops at the first
// non-digit, and no digits yield 0. Results saturate at the int32 range.
func Atoi(s string) int {
	i := 0
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	neg := false
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		neg = s[i] == '-'
		i++
	}
	var n int64
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		n = n*10 + int64(s[i]-'0')
		if n > math.MaxInt32+1 {
			n = math.MaxInt32 + 1
		}
	}
	if neg {
		n = -n
	}
	if n > math.MaxInt32 {
		n = math.MaxInt32
	}
	return int(n)
}

// valueOf finds "key" followed by ':' and returns the text after the colon
// with leading whitespace removed.
func valueOf(s, key string) (string, bool) {
	pat := `"` + key + `"`
	from := 0
	for {
		i := strings.Index(s[from:], pat)
		if i < 0 {
			return "", false
		}
		rest := strings.TrimLeft(s[from+i+len(pat):], " \t")
		if len(rest) > 0 && rest[0] == ':' {
			return strings.TrimLeft(rest[1:], " \t"), true
		}
		// A value equal to the key name, keep looking.
		from += i + len(pat)
	}
}

// matchBraces returns the object starting at s[0] up to its matching brace.
func matchBraces(s string) (string, bool) {
	if len(s) == 0 || s[0] != '{' {
		return "", false
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}
