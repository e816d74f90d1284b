// Package token normalizes and splits raw text into comparable word tokens.
//
// Each [Token] keeps two forms: Normalized, used for alignment comparison,
// and Display, the original surface form used for rendering the diff. The
// same [Tokenizer] (and therefore the same punctuation set) must be used for
// the reference and the submission so that scoring stays fair.
package token

import "strings"

// defaultPunctuation is the set of characters removed during normalization.
// Apostrophes are kept so that contractions ("don't") survive as typed.
const defaultPunctuation = ".,!?;:\"()[]{}<>«»“”‘’…—–-_/\\|@#$%^&*+=~`"

// Token is a single comparable word.
type Token struct {
	// Normalized is the lowercased, punctuation-stripped form used for
	// comparison. It may be empty when the source word was pure punctuation.
	Normalized string `json:"normalized"`

	// Display is the original surface form, preserved for rendering.
	Display string `json:"display"`

	// SourceIndex is the zero-based word position in the originating text,
	// used to map highlights back onto the input.
	SourceIndex int `json:"source_index"`
}

// Option is a functional option for configuring a [Tokenizer].
type Option func(*Tokenizer)

// WithPunctuation replaces the set of characters stripped during
// normalization. Pass the characters as a single string.
func WithPunctuation(chars string) Option {
	return func(t *Tokenizer) {
		t.strip = stripSet(chars)
	}
}

// Tokenizer splits text into [Token] values. It has no mutable state after
// construction and is safe for concurrent use.
type Tokenizer struct {
	strip map[rune]struct{}
}

// New returns a [Tokenizer] with the default punctuation set.
func New(opts ...Option) *Tokenizer {
	t := &Tokenizer{strip: stripSet(defaultPunctuation)}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Tokenize splits text on whitespace and normalizes each word. Empty input
// yields an empty (non-nil) slice, never an error.
func (t *Tokenizer) Tokenize(text string) []Token {
	fields := strings.Fields(text)
	tokens := make([]Token, 0, len(fields))
	for i, f := range fields {
		tokens = append(tokens, Token{
			Normalized:  t.normalize(f),
			Display:     f,
			SourceIndex: i,
		})
	}
	return tokens
}

// normalize lowercases word and removes every configured punctuation rune.
func (t *Tokenizer) normalize(word string) string {
	var b strings.Builder
	b.Grow(len(word))
	for _, r := range strings.ToLower(word) {
		if _, drop := t.strip[r]; drop {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// stripSet converts a character string into a rune lookup set.
func stripSet(chars string) map[rune]struct{} {
	set := make(map[rune]struct{}, len(chars))
	for _, r := range chars {
		set[r] = struct{}{}
	}
	return set
}
