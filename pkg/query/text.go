package query

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Text is a message folded for vocabulary matching: lowercase, without diacritics, with every
// run of non-alphanumeric characters collapsed to a single space and padded on both ends.
type Text string

// Fold normalizes s into a Text.
func Fold(s string) Text {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	stripped = strings.ToLower(stripped)

	var b strings.Builder
	b.Grow(len(stripped) + 2)
	b.WriteByte(' ')
	space := true
	for _, r := range stripped {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return Text(b.String())
}

// Has reports whether phrase occurs in t on word boundaries.
func (t Text) Has(phrase string) bool {
	p := strings.TrimSpace(string(Fold(phrase)))
	if p == "" {
		return false
	}
	return strings.Contains(string(t), " "+p+" ")
}

// HasAny reports whether any of phrases occurs in t on word boundaries.
func (t Text) HasAny(phrases ...string) bool {
	for _, p := range phrases {
		if t.Has(p) {
			return true
		}
	}
	return false
}

// without removes every word-bounded occurrence of phrases from t.
func (t Text) without(phrases ...string) Text {
	s := string(t)
	for _, phrase := range phrases {
		p := strings.TrimSpace(string(Fold(phrase)))
		if p == "" {
			continue
		}
		for strings.Contains(s, " "+p+" ") {
			s = strings.Replace(s, " "+p+" ", " ", 1)
		}
	}
	return Text(s)
}

// Contains reports whether the folded form of s occurs anywhere in t, ignoring word boundaries.
func (t Text) Contains(s string) bool {
	p := strings.TrimSpace(string(Fold(s)))
	return p != "" && strings.Contains(string(t), p)
}

func (t Text) String() string { return strings.TrimSpace(string(t)) }
