// Package selection ranks scored candidates and picks at most one.
package selection

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"polysignal/internal/config"
	"polysignal/internal/model"
)

// tieEpsilon is the confidence distance under which two candidates are tied.
const tieEpsilon = 1e-9

// Policy applies eligibility rules and a total ranking order.
type Policy struct {
	minConfidence float64
	minLeadTime   time.Duration
	include       map[string]bool
	exclude       map[string]bool
}

func NewPolicy(cfg config.SelectionConfig) *Policy {
	return &Policy{
		minConfidence: cfg.MinConfidence,
		minLeadTime:   cfg.MinLeadTime.Duration,
		include:       categorySet(cfg.Categories),
		exclude:       categorySet(cfg.ExcludeCategories),
	}
}

// Select returns the best eligible candidate at time now, or NoSelection.
// The input slice is not modified.
func (p *Policy) Select(scored []model.ScoredCandidate, now time.Time) model.Decision {
	eligible := make([]model.ScoredCandidate, 0, len(scored))
	for _, sc := range scored {
		if reason := p.rejectReason(sc, now); reason != "" {
			slog.Debug("candidate rejected",
				"market", sc.Candidate.ID,
				"confidence", sc.Confidence,
				"reason", reason,
			)
			continue
		}
		eligible = append(eligible, sc)
	}

	if len(eligible) == 0 {
		return model.NoSelection{Reason: model.ReasonNoEligibleCandidate}
	}

	Rank(eligible)
	best := eligible[0]

	return model.Selected{
		Candidate:  best,
		Confidence: best.Confidence,
		Direction:  best.Direction,
		Rationale:  Rationale(best),
		Eligible:   len(eligible),
	}
}

func (p *Policy) rejectReason(sc model.ScoredCandidate, now time.Time) string {
	c := sc.Candidate
	if !c.CloseTime.IsZero() && c.CloseTime.Sub(now) < p.minLeadTime {
		return "closes within minimum lead time"
	}
	if math.IsNaN(sc.Confidence) || sc.Confidence < p.minConfidence {
		return "confidence below threshold"
	}
	category := strings.ToLower(c.Category)
	if len(p.include) > 0 && !p.include[category] {
		return "category not allowed"
	}
	if p.exclude[category] {
		return "category excluded"
	}
	return ""
}

// Rank sorts candidates best first: confidence, then coverage, then the more
// distant close, then the smaller ID. Candidates are first put in ID order so
// the outcome does not depend on the order they arrived in.
func Rank(cs []model.ScoredCandidate) {
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].Candidate.ID < cs[j].Candidate.ID })
	sort.SliceStable(cs, func(i, j int) bool { return better(cs[i], cs[j]) })
}

func better(a, b model.ScoredCandidate) bool {
	if d := a.Confidence - b.Confidence; math.Abs(d) > tieEpsilon {
		return d > 0
	}
	if a.Sentiment.Coverage != b.Sentiment.Coverage {
		return a.Sentiment.Coverage > b.Sentiment.Coverage
	}
	if ac, bc := closeKey(a), closeKey(b); !ac.Equal(bc) {
		return ac.After(bc)
	}
	return a.Candidate.ID < b.Candidate.ID
}

// closeKey treats a market with no scheduled close as the most distant one.
func closeKey(sc model.ScoredCandidate) time.Time {
	if sc.Candidate.CloseTime.IsZero() {
		return time.Unix(1<<62, 0)
	}
	return sc.Candidate.CloseTime
}

// Rationale explains a score in one line.
func Rationale(sc model.ScoredCandidate) string {
	b := sc.Breakdown
	var sb strings.Builder
	fmt.Fprintf(&sb, "market lean %+.3f at p=%.3f (weight %.2f", b.MarketLean, sc.Candidate.Probability, b.MarketWeight)
	if b.StalenessFactor < 1 {
		fmt.Fprintf(&sb, ", stale price %s old, penalty x%.2f", b.PriceAge.Round(time.Second), b.StalenessFactor)
	}
	sb.WriteString(")")

	if sc.Sentiment.Coverage == 0 {
		sb.WriteString("; no news coverage, sentiment ignored")
	} else {
		fmt.Fprintf(&sb, "; sentiment lean %+.3f from %d articles (weight %.2f, coverage x%.2f)",
			b.SentimentLean, sc.Sentiment.Coverage, b.SentimentWeight, b.CoverageFactor)
	}

	fmt.Fprintf(&sb, "; combined %+.3f -> %s with confidence %.3f", b.CombinedLean, sc.Direction, sc.Confidence)
	return sb.String()
}

func categorySet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.ToLower(strings.TrimSpace(n))] = true
	}
	return set
}
