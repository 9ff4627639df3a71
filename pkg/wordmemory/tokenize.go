package wordmemory

import (
	"strings"
	"unicode"
)

// Tokenize lowercases content, splits it on runs of non-letter/non-digit
// runes and returns the unigrams followed by every adjacent bigram.
func Tokenize(content string) []string {
	words := strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(words) == 0 {
		return nil
	}
	tokens := make([]string, 0, len(words)*2-1)
	tokens = append(tokens, words...)
	for i := 0; i+1 < len(words); i++ {
		tokens = append(tokens, words[i]+" "+words[i+1])
	}
	return tokens
}

// CountTokens tallies the tokens produced by Tokenize.
func CountTokens(content string) map[string]int {
	tokens := Tokenize(content)
	if len(tokens) == 0 {
		return nil
	}
	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		if key := normalizeToken(tok); key != "" {
			counts[key]++
		}
	}
	return counts
}

func normalizeToken(token string) string {
	return strings.ToLower(strings.TrimSpace(token))
}
