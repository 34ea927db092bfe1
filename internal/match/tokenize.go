package match

import (
	"regexp"
	"strings"
)

var nonWord = regexp.MustCompile(`[^\w\s-]`)

var stopWords = func() map[string]bool {
	words := []string{
		"a", "an", "the", "is", "are", "be", "to", "of", "and", "or",
		"for", "with", "my", "me", "it", "this", "that", "please",
		"make", "want", "need", "can", "you", "do", "does", "how",
	}
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}()

// Tokenize lowercases text, strips punctuation and stop words, and
// returns the remaining tokens. Used for keyword scoring and for the
// adaptation relevance filter.
func Tokenize(text string) []string {
	text = strings.ToLower(text)
	text = nonWord.ReplaceAllString(text, " ")
	text = strings.ReplaceAll(text, "_", " ")
	text = strings.ReplaceAll(text, "-", " ")

	var tokens []string
	for _, token := range strings.Fields(text) {
		if len(token) > 1 && !stopWords[token] {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// TokenSet returns the tokens of text as a set.
func TokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, token := range Tokenize(text) {
		set[token] = true
	}
	return set
}
