package command

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/proxsync/internal/game/spatial"
)

func TestParse_Empty(t *testing.T) {
	result := Parse("")
	assert.Equal(t, "", result.Command)
	assert.Nil(t, result.Args)
}

func TestParse_SingleWord(t *testing.T) {
	result := Parse("look")
	assert.Equal(t, "look", result.Command)
	assert.Nil(t, result.Args)
	assert.Equal(t, "", result.RawArgs)
}

func TestParse_Lowercase(t *testing.T) {
	result := Parse("NORTH")
	assert.Equal(t, "north", result.Command)
}

func TestParse_WithArgs(t *testing.T) {
	result := Parse("say hello world")
	assert.Equal(t, "say", result.Command)
	assert.Equal(t, []string{"hello", "world"}, result.Args)
	assert.Equal(t, "hello world", result.RawArgs)
}

func TestParse_ExtraWhitespace(t *testing.T) {
	result := Parse("  say   hello   world  ")
	assert.Equal(t, "say", result.Command)
	assert.Equal(t, []string{"hello", "world"}, result.Args)
	assert.Equal(t, "hello   world", result.RawArgs)
}

func TestParse_MoveWithCoordinates(t *testing.T) {
	result := Parse("MOVE 12.5 -3")
	assert.Equal(t, "move", result.Command)
	assert.Equal(t, []string{"12.5", "-3"}, result.Args)
}

func TestParsePosition(t *testing.T) {
	pos, err := ParsePosition([]string{"12.5", "-3"})
	require.NoError(t, err)
	assert.Equal(t, spatial.Position{X: 12.5, Y: -3}, pos)
}

func TestParsePosition_Invalid(t *testing.T) {
	cases := map[string][]string{
		"missing":    {"1"},
		"extra":      {"1", "2", "3"},
		"not number": {"one", "2"},
		"nan":        {"NaN", "2"},
		"inf":        {"1", "+Inf"},
	}
	for name, args := range cases {
		args := args
		t.Run(name, func(t *testing.T) {
			_, err := ParsePosition(args)
			assert.ErrorIs(t, err, ErrUsage)
		})
	}
}

func TestPropertyParseAlwaysLowercasesCommand(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		word := rapid.StringMatching(`[A-Za-z]{1,20}`).Draw(t, "word")
		result := Parse(word)
		for _, c := range result.Command {
			if c >= 'A' && c <= 'Z' {
				t.Fatalf("command %q contains uppercase char in Parse result %q", word, result.Command)
			}
		}
	})
}

func TestPropertyParseNonEmptyInputHasCommand(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		word := rapid.StringMatching(`[a-z]{1,10}`).Draw(t, "word")
		result := Parse(word)
		if result.Command == "" {
			t.Fatalf("non-empty input %q produced empty command", word)
		}
	})
}

func TestPropertyParsePositionRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		x := rapid.IntRange(-100000, 100000).Draw(t, "x")
		y := rapid.IntRange(-100000, 100000).Draw(t, "y")
		result := Parse(fmt.Sprintf("move %d %d", x, y))
		pos, err := ParsePosition(result.Args)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if pos.X != float64(x) || pos.Y != float64(y) {
			t.Fatalf("got %+v, want (%d, %d)", pos, x, y)
		}
	})
}
