// Package moderation censors configured words out of chat messages.
package moderation

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
	"gopkg.in/yaml.v3"
)

// DefaultCensorChar replaces every rune of a matched word.
const DefaultCensorChar = '*'

// yamlWordList is the on-disk word list format.
type yamlWordList struct {
	Words []string `yaml:"words"`
}

// Moderator replaces forbidden words in chat text. Matching ignores case and
// any non letter/digit runes between letters, so "B.a d" matches "bad".
// A Moderator is immutable after construction and safe for concurrent use.
type Moderator struct {
	matcher    *goahocorasick.Machine
	censorChar rune
}

// NewModerator builds the automaton for words.
//
// Precondition: words must contain at least one word with a letter or digit.
// Postcondition: Returns a ready Moderator or a non-nil error.
func NewModerator(words []string, censorChar rune) (*Moderator, error) {
	var patterns [][]rune
	for _, w := range words {
		p := normalizeRunes([]rune(w))
		if len(p) == 0 {
			continue
		}
		patterns = append(patterns, p)
	}
	if len(patterns) == 0 {
		return nil, errors.New("moderation: word list is empty")
	}
	// The double-array trie underneath expects sorted, unique keys.
	slices.SortFunc(patterns, slices.Compare[[]rune])
	patterns = slices.CompactFunc(patterns, slices.Equal[[]rune])
	if censorChar == 0 {
		censorChar = DefaultCensorChar
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, fmt.Errorf("moderation: building matcher: %w", err)
	}
	return &Moderator{matcher: m, censorChar: censorChar}, nil
}

// LoadWordList reads a YAML file of the form `words: [a, b]`.
//
// Postcondition: Returns the words (possibly empty) or a non-nil error.
func LoadWordList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading word list %s: %w", path, err)
	}
	var list yamlWordList
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parsing word list %s: %w", path, err)
	}
	words := make([]string, 0, len(list.Words))
	for _, w := range list.Words {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	return words, nil
}

// Censor returns text with every matched word replaced by the censor rune.
// Spacing and unmatched runes are preserved.
func (m *Moderator) Censor(text string) string {
	orig := []rune(text)
	norm, origIdx := normalize(orig)
	if len(norm) == 0 {
		return text
	}

	terms := m.matcher.MultiPatternSearch(norm, false)
	if len(terms) == 0 {
		return text
	}

	for _, term := range terms {
		start := term.Pos
		end := start + len(term.Word)
		if start < 0 || end > len(origIdx) {
			continue
		}
		for i := origIdx[start]; i <= origIdx[end-1]; i++ {
			if isSignificant(orig[i]) {
				orig[i] = m.censorChar
			}
		}
	}
	return string(orig)
}

// normalize keeps letters and digits lowercased and records where each kept
// rune came from in the original text.
func normalize(in []rune) ([]rune, []int) {
	norm := make([]rune, 0, len(in))
	idx := make([]int, 0, len(in))
	for i, r := range in {
		if !isSignificant(r) {
			continue
		}
		norm = append(norm, unicode.ToLower(r))
		idx = append(idx, i)
	}
	return norm, idx
}

func normalizeRunes(in []rune) []rune {
	out, _ := normalize(in)
	return out
}

func isSignificant(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
