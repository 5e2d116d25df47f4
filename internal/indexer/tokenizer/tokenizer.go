// Package tokenizer provides text normalisation for the search engine.
// It lower-cases input, replaces everything outside [a-z0-9] and whitespace
// with a space, and splits the result on whitespace. Terms are neither
// stemmed nor stop-word filtered here.
package tokenizer

import (
	"strings"
	"unicode"
)

// Token represents a single normalised term and its position in the
// normalised text.
type Token struct {
	Term     string
	Position int
}

// Normalize lower-cases text, blanks out punctuation and collapses
// whitespace to single spaces.
func Normalize(text string) string {
	return strings.Join(Terms(text), " ")
}

// Terms returns the ordered term sequence for text.
func Terms(text string) []string {
	mapped := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		// whitespace and punctuation both become separators
		return ' '
	}, strings.ToLower(text))
	return strings.FieldsFunc(mapped, unicode.IsSpace)
}

// Tokenize breaks text into positioned Tokens.
func Tokenize(text string) []Token {
	terms := Terms(text)
	tokens := make([]Token, len(terms))
	for i, term := range terms {
		tokens[i] = Token{
			Term:     term,
			Position: i,
		}
	}
	return tokens
}
