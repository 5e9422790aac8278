// Package sentiment reduces scored news articles to one estimate per market.
package sentiment

import (
	"math"
	"time"

	"polysignal/internal/config"
	"polysignal/internal/model"
)

// Aggregator computes relevance-weighted polarity over a set of articles.
// It holds no mutable state and is safe for concurrent use.
type Aggregator struct {
	minRelevance float64
	maxAge       time.Duration // 0 disables the age filter
}

func NewAggregator(cfg config.AggregationConfig) *Aggregator {
	return &Aggregator{
		minRelevance: cfg.MinRelevance,
		maxAge:       cfg.MaxArticleAge.Duration,
	}
}

// Aggregate returns the sentiment estimate for marketID at time now.
func (a *Aggregator) Aggregate(marketID string, articles []model.ArticleSignal, now time.Time) model.SentimentEstimate {
	var (
		weightSum   float64
		weightedPol float64
		coverage    int
		newest      time.Time
	)

	for _, art := range articles {
		if math.IsNaN(art.Relevance) || math.IsNaN(art.Polarity) {
			continue
		}
		relevance := clamp(art.Relevance, 0, 1)
		if relevance < a.minRelevance {
			continue
		}
		if a.maxAge > 0 && !art.PublishedAt.IsZero() && now.Sub(art.PublishedAt) > a.maxAge {
			continue
		}

		weightSum += relevance
		weightedPol += relevance * clamp(art.Polarity, -1, 1)
		coverage++
		if art.PublishedAt.After(newest) {
			newest = art.PublishedAt
		}
	}

	// Zero total weight means nothing usable survived, whatever the count.
	if weightSum == 0 {
		return model.NoCoverage(marketID)
	}

	freshness := model.NoFreshness
	if !newest.IsZero() {
		freshness = now.Sub(newest)
		if freshness < 0 {
			freshness = 0
		}
	}

	return model.SentimentEstimate{
		MarketID:  marketID,
		Polarity:  clamp(weightedPol/weightSum, -1, 1),
		Coverage:  coverage,
		Freshness: freshness,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
