package market

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonnyspicer/mango"

	"polysignal/internal/model"
)

// marketSearcher is the part of *mango.Client the source needs.
type marketSearcher interface {
	SearchMarkets(req mango.SearchMarketsRequest) (*[]mango.FullMarket, error)
}

// ManifoldSource lists open binary Manifold markets sorted by liquidity.
type ManifoldSource struct {
	client marketSearcher
	limit  int64
	now    func() time.Time
}

func NewManifoldSource(client marketSearcher, limit int64) *ManifoldSource {
	return &ManifoldSource{client: client, limit: limit, now: time.Now}
}

func (s *ManifoldSource) Name() string { return "manifold" }

// FetchActiveMarkets runs the search off the caller's goroutine because the
// mango client takes no context.
func (s *ManifoldSource) FetchActiveMarkets(ctx context.Context) ([]model.MarketCandidate, error) {
	type searchResult struct {
		markets *[]mango.FullMarket
		err     error
	}
	ch := make(chan searchResult, 1)
	go func() {
		markets, err := s.client.SearchMarkets(mango.SearchMarketsRequest{
			Filter:       "open",
			ContractType: "BINARY",
			Sort:         "liquidity",
			Limit:        s.limit,
		})
		ch <- searchResult{markets, err}
	}()

	var res searchResult
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, fmt.Errorf("manifold: %w: %w", model.ErrSourceUnavailable, ctx.Err())
	}
	if res.err != nil {
		return nil, fmt.Errorf("manifold: %w: searching binary markets: %w", model.ErrSourceUnavailable, res.err)
	}
	if res.markets == nil {
		return nil, nil
	}

	fetchedAt := s.now()
	result := make([]model.MarketCandidate, 0, len(*res.markets))
	for _, m := range *res.markets {
		if m.IsResolved {
			continue
		}
		result = append(result, fullMarketToCandidate(m, fetchedAt))
	}
	slog.Info("scanned manifold markets", "count", len(result))
	return result, nil
}

func fullMarketToCandidate(m mango.FullMarket, fetchedAt time.Time) model.MarketCandidate {
	var closeTime time.Time
	if m.CloseTime > 0 {
		closeTime = time.UnixMilli(m.CloseTime).UTC()
	}
	return model.MarketCandidate{
		ID:          "manifold:" + m.Id,
		Question:    m.Question,
		Keywords:    Keywords(m.Question),
		Probability: m.Probability,
		PriceTime:   fetchedAt,
		CloseTime:   closeTime,
		Volume:      m.Volume,
		URL:         m.Url,
		Source:      "manifold",
	}
}
