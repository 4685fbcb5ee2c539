package gameserver

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/proxsync/internal/game/moderation"
)

func TestChatPolicy_Defaults(t *testing.T) {
	p := NewChatPolicy(0, 0, 0, nil)
	assert.Equal(t, DefaultChatMaxLength, p.MaxLength())
	assert.Nil(t, p.NewLimiter())
}

func TestChatPolicy_Length(t *testing.T) {
	p := NewChatPolicy(4, 0, 0, nil)

	got, err := p.Apply(nil, "  abcd ")
	require.NoError(t, err)
	assert.Equal(t, "abcd", got)

	// Length counts runes, not bytes.
	got, err = p.Apply(nil, "héé!")
	require.NoError(t, err)
	assert.Equal(t, "héé!", got)

	_, err = p.Apply(nil, "abcde")
	assert.ErrorIs(t, err, ErrChatRejected)

	_, err = p.Apply(nil, "")
	assert.ErrorIs(t, err, ErrChatRejected)
	_, err = p.Apply(nil, strings.Repeat(" ", 3))
	assert.ErrorIs(t, err, ErrChatRejected)
}

func TestChatPolicy_RateLimitPerLimiter(t *testing.T) {
	p := NewChatPolicy(0, 0.001, 2, nil)
	first := p.NewLimiter()
	second := p.NewLimiter()
	require.NotNil(t, first)

	for i := 0; i < 2; i++ {
		_, err := p.Apply(first, "hi")
		require.NoError(t, err)
	}
	_, err := p.Apply(first, "hi")
	assert.ErrorIs(t, err, ErrChatRateLimited)
	assert.ErrorIs(t, err, ErrChatRejected)

	// Budgets are independent.
	_, err = p.Apply(second, "hi")
	assert.NoError(t, err)
}

func TestChatPolicy_InvalidMessageSpendsNoBudget(t *testing.T) {
	p := NewChatPolicy(3, 0.001, 1, nil)
	lim := p.NewLimiter()

	_, err := p.Apply(lim, "too long")
	require.ErrorIs(t, err, ErrChatRejected)
	_, err = p.Apply(lim, "ok")
	assert.NoError(t, err)
}

func TestChatPolicy_Censors(t *testing.T) {
	mod, err := moderation.NewModerator([]string{"heck"}, '#')
	require.NoError(t, err)
	p := NewChatPolicy(0, 0, 0, mod)

	got, err := p.Apply(nil, "what the heck")
	require.NoError(t, err)
	assert.Equal(t, "what the ####", got)
}
