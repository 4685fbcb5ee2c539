package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cory-johannsen/proxsync/internal/game/spatial"
)

// ErrUsage is returned when a command's arguments do not match its usage.
var ErrUsage = errors.New("usage")

// ParseResult holds the parsed command name and arguments from a text line.
type ParseResult struct {
	// Command is the first word of the input, lowercased.
	Command string
	// Args are the remaining words after the command.
	Args []string
	// RawArgs is the raw text after the command, spacing preserved for say.
	RawArgs string
}

// Parse splits a text line into a command and arguments.
//
// Postcondition: Returns a ParseResult. If line is blank, Command is empty.
func Parse(line string) ParseResult {
	line = strings.TrimSpace(line)
	if line == "" {
		return ParseResult{}
	}

	cmd, rest, found := strings.Cut(line, " ")
	if !found {
		return ParseResult{Command: strings.ToLower(line)}
	}
	rest = strings.TrimSpace(rest)

	var args []string
	if rest != "" {
		args = strings.Fields(rest)
	}
	return ParseResult{
		Command: strings.ToLower(cmd),
		Args:    args,
		RawArgs: rest,
	}
}

// ParsePosition reads a "<x> <y>" argument pair.
//
// Postcondition: Returns a finite Position, or an error wrapping ErrUsage.
func ParsePosition(args []string) (spatial.Position, error) {
	if len(args) != 2 {
		return spatial.Position{}, fmt.Errorf("%w: expected 2 coordinates, got %d", ErrUsage, len(args))
	}
	var coords [2]float64
	for i, arg := range args {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return spatial.Position{}, fmt.Errorf("%w: %q is not a coordinate", ErrUsage, arg)
		}
		coords[i] = v
	}
	pos := spatial.Position{X: coords[0], Y: coords[1]}
	if !pos.IsFinite() {
		return spatial.Position{}, fmt.Errorf("%w: coordinates must be finite", ErrUsage)
	}
	return pos, nil
}
