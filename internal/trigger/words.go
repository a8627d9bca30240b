// Package trigger holds the trigger-word set and the utterance matcher
package trigger

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// WordSet is a normalized, sorted and deduplicated list of trigger words.
// A WordSet is never mutated after construction; Channel swaps whole sets.
type WordSet struct {
	words []string
}

// Normalize builds a WordSet from raw input: trim, lower-case, drop empty, dedupe
func Normalize(words []string) WordSet {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		n := fold(w)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return WordSet{words: out}
}

// Words returns a copy of the words in iteration order
func (s WordSet) Words() []string {
	out := make([]string, len(s.words))
	copy(out, s.words)
	return out
}

// Len returns the number of words in the set
func (s WordSet) Len() int { return len(s.words) }

// Contains reports whether w (after normalization) is in the set
func (s WordSet) Contains(w string) bool {
	n := fold(w)
	i := sort.SearchStrings(s.words, n)
	return i < len(s.words) && s.words[i] == n
}

// fold lower-cases and trims s. NFC composition keeps precomposed and
// decomposed accents comparable.
func fold(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	// a Caser carries state, so one per call keeps fold safe across goroutines
	return norm.NFC.String(cases.Lower(language.Und).String(s))
}
