// Deterministic tokenizer shared by the length and drift checks.
//
// Counting is approximate by design but must be reproducible: the same
// text always yields the same token stream, independent of any model
// tokenizer.

package lint

import (
	"strings"
	"unicode"
)

// Tokenize splits text into lowercase word and number tokens. Letters
// and digits group; everything else separates.
func Tokenize(text string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, strings.ToLower(cur.String()))
			cur.Reset()
		}
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// CountTokens returns the deterministic token count of text.
func CountTokens(text string) int {
	return len(Tokenize(text))
}

// stopwords excluded from keyword sets.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true,
	"at": true, "be": true, "by": true, "for": true, "from": true,
	"has": true, "in": true, "is": true, "it": true, "its": true,
	"of": true, "on": true, "or": true, "that": true, "the": true,
	"this": true, "to": true, "was": true, "were": true, "with": true,
}

// Keywords returns the set of non-stopword tokens of text.
func Keywords(text string) map[string]bool {
	out := map[string]bool{}
	for _, tok := range Tokenize(text) {
		if len(tok) > 1 && !stopwords[tok] {
			out[tok] = true
		}
	}
	return out
}

// Entities extracts named-entity-like spans: runs of capitalized words
// and standalone numbers. A single capitalized word that only ever
// appears sentence-initially is ignored, since its capitalization is
// uninformative. Crude, but deterministic, which is what the drift
// bound needs.
func Entities(text string) map[string]bool {
	out := map[string]bool{}
	words := strings.Fields(text)
	var run []string
	flush := func() {
		if len(run) > 1 || (len(run) == 1 && !sentenceInitial(words, run[0])) {
			out[strings.Join(run, " ")] = true
		}
		run = nil
	}
	for _, w := range words {
		clean := trimWord(w)
		switch {
		case clean == "":
			flush()
		case isNumber(clean):
			flush()
			out[clean] = true
		case isCapitalized(clean):
			// Capitalized stopwords ("The", "It") never start a run.
			if len(run) == 0 && stopwords[strings.ToLower(clean)] {
				continue
			}
			run = append(run, clean)
			if endsSentence(w) {
				flush()
			}
		default:
			flush()
		}
	}
	flush()
	return out
}

func trimWord(w string) string {
	return strings.TrimFunc(w, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func isCapitalized(w string) bool {
	r := []rune(w)
	return len(r) > 0 && unicode.IsUpper(r[0])
}

func isNumber(w string) bool {
	seen := false
	for _, r := range w {
		if !unicode.IsDigit(r) && r != '.' && r != ',' {
			return false
		}
		if unicode.IsDigit(r) {
			seen = true
		}
	}
	return seen
}

func endsSentence(w string) bool {
	return strings.HasSuffix(w, ".") || strings.HasSuffix(w, "!") ||
		strings.HasSuffix(w, "?") || strings.HasSuffix(w, ":")
}

// sentenceInitial reports whether word only ever appears at the start
// of text or after sentence punctuation, which makes its capitalization
// uninformative.
func sentenceInitial(words []string, word string) bool {
	prevEnd := true
	for _, w := range words {
		if trimWord(w) == word && !prevEnd {
			return false
		}
		prevEnd = endsSentence(w)
	}
	return true
}
