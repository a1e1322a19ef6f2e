// Package tokenizer provides text tokenisation for both the index builder and
// the query path. It applies NFKC normalisation and lower-casing, splits text
// on Unicode (UAX #29) word boundaries, and drops stop-words and tokens
// outside the indexed length range. No stemming is applied.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/clipperhouse/uax29/v2/words"
	"golang.org/x/text/unicode/norm"
)

const (
	minTokenRunes = 3
	maxTokenRunes = 25
)

var englishStopWords = []string{
	"a", "about", "above", "after", "again", "against", "all", "am", "an", "and", "any", "are", "as", "at", "be",
	"because", "been", "before", "being", "below", "between", "both", "but", "by", "could", "did", "do", "does",
	"doing", "down", "during", "each", "few", "for", "from", "further", "had", "has", "have", "having", "he", "her",
	"here", "hers", "herself", "him", "himself", "his", "how", "i", "if", "in", "into", "is", "it", "its", "itself",
	"me", "more", "most", "my", "myself", "no", "nor", "not", "of", "off", "on", "once", "only", "or", "other",
	"ought", "our", "ours", "ourselves", "out", "over", "own", "same", "she", "should", "so", "some", "such", "than",
	"that", "the", "their", "theirs", "them", "themselves", "then", "there", "these", "they", "this", "those",
	"through", "to", "too", "under", "until", "up", "very", "was", "we", "were", "what", "when", "where", "which",
	"while", "who", "whom", "why", "with", "would", "you", "your", "yours", "yourself", "yourselves",
}

// corpusStopWords are frequent Wikipedia boilerplate terms.
var corpusStopWords = []string{
	"category", "references", "also", "external", "links", "may", "first", "see", "history", "people", "one", "two",
	"part", "thumb", "including", "second", "following", "many", "however", "would", "became",
}

var stopWords = buildStopWords(englishStopWords, corpusStopWords)

func buildStopWords(lists ...[]string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, list := range lists {
		for _, w := range list {
			set[w] = struct{}{}
		}
	}
	return set
}

// IsStopWord reports whether term is removed by Tokenize.
func IsStopWord(term string) bool {
	_, ok := stopWords[term]
	return ok
}

// Tokenize breaks text into the ordered sequence of normalised terms with
// stop-words removed. Repeated terms are kept; callers derive counts.
func Tokenize(text string) []string {
	normalized := strings.ToLower(norm.NFKC.String(text))
	segments := words.FromString(normalized)
	tokens := make([]string, 0, 8)
	for segments.Next() {
		word := segments.Value()
		if !isIndexable(word) {
			continue
		}
		if IsStopWord(word) {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

// isIndexable keeps word-like segments of minTokenRunes..maxTokenRunes runes
// that start with a letter, digit or underscore. Apostrophes are allowed
// inside a token.
func isIndexable(word string) bool {
	n := utf8.RuneCountInString(word)
	if n < minTokenRunes || n > maxTokenRunes {
		return false
	}
	for i, r := range word {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_':
		case r == '\'' && i > 0:
		default:
			return false
		}
	}
	return true
}
