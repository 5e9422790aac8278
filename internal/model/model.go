package model

import (
	"math"
	"time"
)

// NoFreshness marks a sentiment estimate with no contributing articles.
const NoFreshness = time.Duration(math.MaxInt64)

// MarketCandidate is an immutable snapshot of one market offered for selection.
type MarketCandidate struct {
	ID          string    `json:"id"`
	Question    string    `json:"question"`
	Keywords    []string  `json:"keywords"`
	Probability float64   `json:"probability"` // implied probability of YES, 0.0-1.0
	PriceTime   time.Time `json:"price_time"`
	CloseTime   time.Time `json:"close_time"` // zero when the market has no scheduled close
	Category    string    `json:"category"`
	Volume      float64   `json:"volume,omitempty"`
	URL         string    `json:"url,omitempty"`
	Source      string    `json:"source,omitempty"`
}

// ArticleSignal is one scored news article returned by a sentiment source.
type ArticleSignal struct {
	Source      string    `json:"source"`
	Title       string    `json:"title,omitempty"`
	URL         string    `json:"url,omitempty"`
	Polarity    float64   `json:"polarity"`  // -1.0 (negative) to 1.0 (positive)
	Relevance   float64   `json:"relevance"` // 0.0-1.0
	PublishedAt time.Time `json:"published_at"`
}

// SentimentEstimate is the aggregated news sentiment for one market.
// A zero Coverage always carries Polarity 0 and LowConfidence.
type SentimentEstimate struct {
	MarketID      string
	Polarity      float64
	Coverage      int
	Freshness     time.Duration
	LowConfidence bool
}

// NoCoverage returns the estimate used when no sentiment could be gathered.
func NoCoverage(marketID string) SentimentEstimate {
	return SentimentEstimate{
		MarketID:      marketID,
		Freshness:     NoFreshness,
		LowConfidence: true,
	}
}

// Direction is the side a combined lean points to.
type Direction string

const (
	Favor   Direction = "YES"
	Against Direction = "NO"
	Neutral Direction = "NEUTRAL"
)

// DirectionOf maps a signed lean to a Direction.
func DirectionOf(lean float64) Direction {
	switch {
	case lean > 0:
		return Favor
	case lean < 0:
		return Against
	default:
		return Neutral
	}
}

// Breakdown records every term that went into a confidence score.
type Breakdown struct {
	MarketLean      float64
	MarketWeight    float64
	StalenessFactor float64
	MarketTerm      float64
	SentimentLean   float64
	SentimentWeight float64
	CoverageFactor  float64
	SentimentTerm   float64
	CombinedLean    float64
	PriceAge        time.Duration
}

// ScoredCandidate is a candidate with its sentiment and fused confidence.
type ScoredCandidate struct {
	Candidate  MarketCandidate
	Sentiment  SentimentEstimate
	Confidence float64
	Direction  Direction
	Breakdown  Breakdown
}
