// Package engine runs the fusion pipeline: fetch markets, gather sentiment
// concurrently, score and select.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"polysignal/internal/config"
	"polysignal/internal/metrics"
	"polysignal/internal/model"
	"polysignal/internal/scoring"
	"polysignal/internal/selection"
	"polysignal/internal/sentiment"
)

// MarketSource lists the markets currently open for selection.
type MarketSource interface {
	FetchActiveMarkets(ctx context.Context) ([]model.MarketCandidate, error)
}

// SentimentSource returns recent scored articles for a keyword set. An empty
// result is not an error.
type SentimentSource interface {
	FetchArticles(ctx context.Context, keywords []string, maxAge time.Duration) ([]model.ArticleSignal, error)
}

// Engine is the decision facade. It holds no per-call state, so concurrent
// SelectMarket calls do not interfere.
type Engine struct {
	markets    MarketSource
	sentiment  SentimentSource
	aggregator *sentiment.Aggregator
	scorer     *scoring.Scorer
	policy     *selection.Policy
	cfg        config.ConcurrencyConfig
	articleAge time.Duration
	metrics    *metrics.Recorder
	now        func() time.Time
}

type Option func(*Engine)

// WithClock fixes the time source, which makes selections reproducible.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithMetrics(r *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = r }
}

// New builds an Engine from a validated config.
func New(markets MarketSource, sent SentimentSource, cfg *config.Config, opts ...Option) *Engine {
	e := &Engine{
		markets:    markets,
		sentiment:  sent,
		aggregator: sentiment.NewAggregator(cfg.Aggregation),
		scorer:     scoring.NewScorer(scoring.WeightsFromConfig(cfg)),
		policy:     selection.NewPolicy(cfg.Selection),
		cfg:        cfg.Concurrency,
		articleAge: cfg.Aggregation.MaxArticleAge.Duration,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SelectMarket fetches active markets and selects at most one of them. It
// always returns a Decision; upstream failures become NoSelection or
// zero-coverage sentiment.
func (e *Engine) SelectMarket(ctx context.Context) model.Decision {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.cfg.OverallDeadline.Duration)
	defer cancel()

	candidates, err := e.markets.FetchActiveMarkets(ctx)
	if err != nil {
		slog.Error("market source failed", "error", err)
		d := model.NoSelection{Reason: model.ReasonMarketSourceUnavailable}
		e.metrics.RecordNoSelection(d.Reason, 0, time.Since(start).Seconds())
		return d
	}
	slog.Info("markets fetched", "count", len(candidates))

	return e.Select(ctx, candidates, NewLimiter(e.cfg.MaxParallelLookups))
}

// Select scores and ranks the given candidates. Sentiment lookups are bounded
// by lim, each by the per-lookup timeout, and all of them by the overall
// deadline. A nil lim gets a fresh limiter sized from the config.
func (e *Engine) Select(ctx context.Context, candidates []model.MarketCandidate, lim *Limiter) model.Decision {
	if lim == nil {
		lim = NewLimiter(e.cfg.MaxParallelLookups)
	}
	start := time.Now()
	now := e.now()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.OverallDeadline.Duration)
	defer cancel()

	estimates := e.gatherSentiment(ctx, candidates, lim, now)

	scored := make([]model.ScoredCandidate, len(candidates))
	for i, c := range candidates {
		scored[i] = e.scorer.Score(c, estimates[i], now)
	}

	d := e.policy.Select(scored, now)
	elapsed := time.Since(start)

	switch v := d.(type) {
	case model.Selected:
		slog.Info("market selected",
			"market", v.Candidate.Candidate.ID,
			"direction", v.Direction,
			"confidence", v.Confidence,
			"eligible", v.Eligible,
			"candidates", len(candidates),
			"elapsed", elapsed,
		)
		e.metrics.RecordSelected(v.Confidence, len(candidates), elapsed.Seconds())
	case model.NoSelection:
		slog.Info("no market selected", "reason", v.Reason, "candidates", len(candidates), "elapsed", elapsed)
		e.metrics.RecordNoSelection(v.Reason, len(candidates), elapsed.Seconds())
	}
	return d
}

type lookupResult struct {
	idx int
	est model.SentimentEstimate
}

// gatherSentiment returns one estimate per candidate, index-aligned. Each
// worker owns its result until it sends it; nothing else is shared.
func (e *Engine) gatherSentiment(ctx context.Context, candidates []model.MarketCandidate, lim *Limiter, now time.Time) []model.SentimentEstimate {
	estimates := make([]model.SentimentEstimate, len(candidates))
	for i, c := range candidates {
		estimates[i] = model.NoCoverage(c.ID)
	}
	if e.sentiment == nil || len(candidates) == 0 {
		return estimates
	}

	results := make(chan lookupResult, len(candidates))
	for i := range candidates {
		go func(i int, c model.MarketCandidate) {
			results <- lookupResult{idx: i, est: e.lookup(ctx, c, lim, now)}
		}(i, candidates[i])
	}

	pending := len(candidates)
	for pending > 0 {
		select {
		case r := <-results:
			estimates[r.idx] = r.est
			pending--
		case <-ctx.Done():
			// Keep whatever already landed; the rest stay at zero coverage.
			for drained := false; !drained; {
				select {
				case r := <-results:
					estimates[r.idx] = r.est
					pending--
				default:
					drained = true
				}
			}
			if pending > 0 {
				slog.Warn("overall deadline reached, scoring remaining candidates without sentiment",
					"missing", pending,
					"candidates", len(candidates),
				)
			}
			return estimates
		}
	}
	return estimates
}

func (e *Engine) lookup(ctx context.Context, c model.MarketCandidate, lim *Limiter, now time.Time) model.SentimentEstimate {
	if len(c.Keywords) == 0 {
		e.metrics.RecordLookup(metrics.LookupSkipped)
		return model.NoCoverage(c.ID)
	}

	if err := lim.Acquire(ctx); err != nil {
		e.metrics.RecordLookup(metrics.LookupTimeout)
		return model.NoCoverage(c.ID)
	}
	defer lim.Release()

	articles, err := e.fetchWithTimeout(ctx, c.Keywords)
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		slog.Warn("sentiment lookup timed out", "market", c.ID, "keywords", c.Keywords)
		e.metrics.RecordLookup(metrics.LookupTimeout)
		return model.NoCoverage(c.ID)
	case err != nil:
		slog.Warn("sentiment lookup failed", "market", c.ID, "error", err)
		e.metrics.RecordLookup(metrics.LookupError)
		return model.NoCoverage(c.ID)
	case len(articles) == 0:
		e.metrics.RecordLookup(metrics.LookupEmpty)
	default:
		e.metrics.RecordLookup(metrics.LookupOK)
	}

	est := e.aggregator.Aggregate(c.ID, articles, now)
	slog.Debug("sentiment aggregated",
		"market", c.ID,
		"articles", len(articles),
		"coverage", est.Coverage,
		"polarity", est.Polarity,
	)
	return est
}

// fetchWithTimeout stops waiting at the per-lookup timeout even when the
// source ignores its context.
func (e *Engine) fetchWithTimeout(ctx context.Context, keywords []string) ([]model.ArticleSignal, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.PerLookupTimeout.Duration)
	defer cancel()

	type fetched struct {
		articles []model.ArticleSignal
		err      error
	}
	ch := make(chan fetched, 1)
	go func() {
		arts, err := e.sentiment.FetchArticles(ctx, keywords, e.articleAge)
		ch <- fetched{arts, err}
	}()

	select {
	case f := <-ch:
		return f.articles, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
