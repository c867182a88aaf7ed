package lexical

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// wordPattern grabs letter/digit/underscore runs. Underscores survive the
// initial split so snake_case identifiers can be broken apart below.
var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Tokenize lowercases text and splits it into index terms. Compound
// identifiers common in technical notes (snake_case, camelCase) are split
// into their parts. Tokens shorter than minLen runes and tokens in stop
// are dropped.
func Tokenize(text string, minLen int, stop map[string]struct{}) []string {
	words := wordPattern.FindAllString(text, -1)
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		for _, part := range splitCompound(word) {
			tok := strings.ToLower(part)
			if utf8.RuneCountInString(tok) < minLen {
				continue
			}
			if _, drop := stop[tok]; drop {
				continue
			}
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// splitCompound breaks snake_case apart, then camelCase within each part.
func splitCompound(word string) []string {
	if strings.Contains(word, "_") {
		var parts []string
		for _, p := range strings.Split(word, "_") {
			if p != "" {
				parts = append(parts, splitCamel(p)...)
			}
		}
		return parts
	}
	return splitCamel(word)
}

// splitCamel splits camelCase and PascalCase while keeping acronym runs
// together: "parseHTTPRequest" becomes ["parse", "HTTP", "Request"].
func splitCamel(s string) []string {
	if s == "" {
		return nil
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevIsLower || nextIsLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}

	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

// BuildStopWordSet converts a stop word list to a lookup set.
func BuildStopWordSet(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}

// DefaultStopWords is the English function-word list filtered from both
// indexed bodies and queries. Query expansion shares it when picking
// candidate terms.
var DefaultStopWords = []string{
	"a", "about", "after", "all", "also", "an", "and", "any", "are", "as",
	"at", "be", "been", "but", "by", "can", "could", "did", "do", "does",
	"for", "from", "had", "has", "have", "he", "her", "his", "how", "if",
	"in", "into", "is", "it", "its", "just", "like", "may", "me", "more",
	"most", "my", "no", "not", "of", "on", "one", "only", "or", "other",
	"our", "out", "over", "she", "so", "some", "such", "than", "that",
	"the", "their", "them", "then", "there", "these", "they", "this", "to",
	"under", "up", "was", "we", "were", "what", "when", "where", "which",
	"who", "will", "with", "would", "you", "your",
}
