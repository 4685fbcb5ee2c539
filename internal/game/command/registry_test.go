package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.NotNil(t, r)
	assert.Len(t, r.Commands(), len(BuiltinCommands()))
}

func TestResolve_CanonicalAndAlias(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		input   string
		name    string
		handler string
	}{
		{"move", "move", HandlerMove},
		{"m", "move", HandlerMove},
		{"goto", "move", HandlerMove},
		{"say", "say", HandlerSay},
		{"'", "say", HandlerSay},
		{"who", "who", HandlerWho},
		{"w", "who", HandlerWho},
		{"help", "help", HandlerHelp},
		{"?", "help", HandlerHelp},
		{"quit", "quit", HandlerQuit},
		{"exit", "quit", HandlerQuit},
	}

	for _, tt := range tests {
		cmd, ok := r.Resolve(tt.input)
		require.True(t, ok, "input %q not found", tt.input)
		assert.Equal(t, tt.name, cmd.Name, "input %q wrong command", tt.input)
		assert.Equal(t, tt.handler, cmd.Handler, "input %q wrong handler", tt.input)
	}
}

func TestResolve_NotFound(t *testing.T) {
	r := DefaultRegistry()

	_, ok := r.Resolve("teleport")
	assert.False(t, ok)
}

func TestNewRegistry_DuplicateName(t *testing.T) {
	cmds := []Command{
		{Name: "test", Handler: "a"},
		{Name: "test", Handler: "b"},
	}
	_, err := NewRegistry(cmds)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate command name")
}

func TestNewRegistry_DuplicateAlias(t *testing.T) {
	cmds := []Command{
		{Name: "test1", Aliases: []string{"t"}, Handler: "a"},
		{Name: "test2", Aliases: []string{"t"}, Handler: "b"},
	}
	_, err := NewRegistry(cmds)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate alias")
}

func TestNewRegistry_AliasCollidesWithName(t *testing.T) {
	cmds := []Command{
		{Name: "who", Handler: "a"},
		{Name: "whois", Aliases: []string{"who"}, Handler: "b"},
	}
	_, err := NewRegistry(cmds)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "conflicts with command name")
}

func TestCommands_SortedByCategoryThenName(t *testing.T) {
	cmds := DefaultRegistry().Commands()
	names := make([]string, 0, len(cmds))
	for _, c := range cmds {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"say", "move", "help", "quit", "who"}, names)
}

func TestPropertyResolveAllBuiltinNamesAndAliases(t *testing.T) {
	r := DefaultRegistry()
	cmds := BuiltinCommands()
	rapid.Check(t, func(t *rapid.T) {
		cmd := cmds[rapid.IntRange(0, len(cmds)-1).Draw(t, "cmd")]
		inputs := append([]string{cmd.Name}, cmd.Aliases...)
		input := inputs[rapid.IntRange(0, len(inputs)-1).Draw(t, "input")]
		got, ok := r.Resolve(input)
		if !ok {
			t.Fatalf("input %q did not resolve", input)
		}
		if got.Name != cmd.Name {
			t.Fatalf("input %q resolved to %q, want %q", input, got.Name, cmd.Name)
		}
	})
}
