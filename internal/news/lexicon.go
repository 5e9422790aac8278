package news

import (
	"strings"
	"unicode"
)

var positiveWords = wordSet(
	"achieve", "advance", "agree", "agreement", "ahead", "approve", "approved", "beat", "benefit",
	"boost", "breakthrough", "confident", "deal", "expand", "favorite", "gain", "gains", "good",
	"grow", "growth", "improve", "improved", "lead", "leading", "leads", "optimism", "optimistic",
	"pass", "passed", "positive", "progress", "rally", "record", "recover", "recovery", "rise",
	"rises", "secure", "secured", "strong", "success", "successful", "support", "surge", "surges",
	"victory", "win", "wins", "won",
)

var negativeWords = wordSet(
	"attack", "ban", "block", "blocked", "collapse", "concern", "concerns", "crash", "crisis",
	"decline", "defeat", "delay", "delayed", "deny", "denied", "drop", "drops", "fail", "failed",
	"failure", "fall", "falls", "fear", "fears", "lawsuit", "lose", "loses", "loss", "lost",
	"negative", "oppose", "opposition", "plunge", "reject", "rejected", "resign", "risk", "scandal",
	"setback", "slump", "stall", "struggle", "threat", "trail", "trails", "uncertain", "veto",
	"warn", "warning", "weak", "worse",
)

var negators = wordSet("not", "no", "never", "without", "unlikely", "fails", "hardly")

func wordSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// Polarity scores text in [-1, 1] as (positive-negative)/(positive+negative)
// hits. A negator flips the polarity of the word after it.
func Polarity(text string) float64 {
	var pos, neg int
	tokens := tokenize(text)
	for i, tok := range tokens {
		var sign int
		switch {
		case positiveWords[tok]:
			sign = 1
		case negativeWords[tok]:
			sign = -1
		default:
			continue
		}
		if i > 0 && (negators[tokens[i-1]] || strings.HasSuffix(tokens[i-1], "n't")) {
			sign = -sign
		}
		if sign > 0 {
			pos++
		} else {
			neg++
		}
	}
	if pos+neg == 0 {
		return 0
	}
	return float64(pos-neg) / float64(pos+neg)
}

// Relevance is the share of keywords that occur in text.
func Relevance(keywords []string, text string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(lower, kw) {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}
