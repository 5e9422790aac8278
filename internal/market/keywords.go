package market

import (
	"strings"
	"unicode"
)

const maxKeywords = 6

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"before": true, "by": true, "can": true, "did": true, "do": true, "does": true,
	"end": true, "for": true, "from": true, "has": true, "have": true, "how": true,
	"if": true, "in": true, "is": true, "it": true, "its": true, "many": true,
	"more": true, "most": true, "much": true, "next": true, "not": true, "of": true,
	"on": true, "or": true, "over": true, "than": true, "that": true, "the": true,
	"this": true, "to": true, "under": true, "up": true, "was": true, "what": true,
	"when": true, "which": true, "who": true, "will": true, "with": true, "out": true,
	"yes": true, "no": true, "any": true, "after": true, "between": true,
}

// Keywords extracts up to six distinct search terms from a market question,
// in order of appearance. Stopwords, pure numbers and one-letter tokens are
// dropped.
func Keywords(question string) []string {
	fields := strings.FieldsFunc(question, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '\''
	})

	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, maxKeywords)
	for _, f := range fields {
		w := strings.ToLower(strings.Trim(f, "-'"))
		w = strings.TrimSuffix(w, "'s")
		if len(w) < 2 || stopwords[w] || seen[w] || isNumber(w) {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
