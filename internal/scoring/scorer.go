// Package scoring fuses a market's implied probability with its news sentiment.
package scoring

import (
	"math"
	"time"

	"polysignal/internal/config"
	"polysignal/internal/model"
)

// Weights is the fusion policy. Market + Sentiment must equal 1; config.Validate
// enforces this before a Scorer is built.
type Weights struct {
	Market                   float64
	Sentiment                float64
	MinCoverageForFullWeight int
	MaxPriceAge              time.Duration
	DecayWindow              time.Duration
}

// WeightsFromConfig collects the fusion settings from the loaded config.
func WeightsFromConfig(cfg *config.Config) Weights {
	return Weights{
		Market:                   cfg.Weights.Market,
		Sentiment:                cfg.Weights.Sentiment,
		MinCoverageForFullWeight: cfg.Weights.MinCoverageForFullWeight,
		MaxPriceAge:              cfg.Staleness.MaxAge.Duration,
		DecayWindow:              cfg.Staleness.DecayWindow.Duration,
	}
}

// Scorer turns a candidate and its sentiment into a ScoredCandidate.
type Scorer struct {
	w Weights
}

func NewScorer(w Weights) *Scorer {
	if w.MinCoverageForFullWeight < 1 {
		w.MinCoverageForFullWeight = 1
	}
	return &Scorer{w: w}
}

// Score never fails: a candidate without sentiment scores on its price alone.
func (s *Scorer) Score(c model.MarketCandidate, est model.SentimentEstimate, now time.Time) model.ScoredCandidate {
	p := c.Probability
	if math.IsNaN(p) {
		p = 0.5
	}
	p = math.Max(0, math.Min(1, p))
	marketLean := 2*p - 1

	priceAge := now.Sub(c.PriceTime)
	if c.PriceTime.IsZero() || priceAge < 0 {
		priceAge = 0
	}
	staleness := s.stalenessFactor(priceAge)
	coverage := s.coverageFactor(est.Coverage)

	polarity := est.Polarity
	if est.Coverage == 0 || math.IsNaN(polarity) {
		polarity = 0
	}

	marketTerm := s.w.Market * marketLean * staleness
	sentimentTerm := s.w.Sentiment * polarity * coverage
	combined := marketTerm + sentimentTerm

	return model.ScoredCandidate{
		Candidate:  c,
		Sentiment:  est,
		Confidence: math.Abs(combined),
		Direction:  model.DirectionOf(combined),
		Breakdown: model.Breakdown{
			MarketLean:      marketLean,
			MarketWeight:    s.w.Market,
			StalenessFactor: staleness,
			MarketTerm:      marketTerm,
			SentimentLean:   polarity,
			SentimentWeight: s.w.Sentiment,
			CoverageFactor:  coverage,
			SentimentTerm:   sentimentTerm,
			CombinedLean:    combined,
			PriceAge:        priceAge,
		},
	}
}

func (s *Scorer) coverageFactor(coverage int) float64 {
	if coverage <= 0 {
		return 0
	}
	return math.Min(1, float64(coverage)/float64(s.w.MinCoverageForFullWeight))
}

// stalenessFactor is 1 up to MaxPriceAge and 0 past it. A positive
// DecayWindow replaces the cutoff with a linear fade over that window.
func (s *Scorer) stalenessFactor(age time.Duration) float64 {
	if s.w.MaxPriceAge <= 0 || age <= s.w.MaxPriceAge {
		return 1
	}
	if s.w.DecayWindow <= 0 {
		return 0
	}
	over := float64(age - s.w.MaxPriceAge)
	return math.Max(0, 1-over/float64(s.w.DecayWindow))
}
