package moderation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCensor(t *testing.T) {
	m, err := NewModerator([]string{"darn", "heck"}, '*')
	require.NoError(t, err)

	cases := map[string]string{
		"hello there":       "hello there",
		"darn it":           "**** it",
		"what the HECK":     "what the ****",
		"d.a.r.n":           "*.*.*.*",
		"oh darn, oh heck!": "oh ****, oh ****!",
		"":                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, m.Censor(in), "input %q", in)
	}
}

func TestNewModerator_DefaultCensorChar(t *testing.T) {
	m, err := NewModerator([]string{"bad"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "*** day", m.Censor("bad day"))
}

func TestNewModerator_EmptyList(t *testing.T) {
	_, err := NewModerator(nil, '*')
	assert.Error(t, err)
	_, err = NewModerator([]string{"  ", "!!"}, '*')
	assert.Error(t, err)
}

func TestLoadWordList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "words.yaml")
	require.NoError(t, os.WriteFile(path, []byte("words:\n  - darn\n  - ' heck '\n  - ''\n"), 0644))

	words, err := LoadWordList(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"darn", "heck"}, words)
}

func TestLoadWordList_Errors(t *testing.T) {
	_, err := LoadWordList("/nonexistent/words.yaml")
	assert.Error(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("words: [unterminated"), 0644))
	_, err = LoadWordList(path)
	assert.Error(t, err)
}
