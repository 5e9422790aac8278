package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"polysignal/internal/model"
)

// Source is a named market source.
type Source interface {
	Name() string
	FetchActiveMarkets(ctx context.Context) ([]model.MarketCandidate, error)
}

// MultiSource merges several sources in order. The first occurrence of an ID
// wins. It fails only when every source fails.
type MultiSource struct {
	sources []Source
}

func NewMultiSource(sources ...Source) *MultiSource {
	return &MultiSource{sources: sources}
}

func (m *MultiSource) FetchActiveMarkets(ctx context.Context) ([]model.MarketCandidate, error) {
	if len(m.sources) == 0 {
		return nil, fmt.Errorf("no market sources configured: %w", model.ErrSourceUnavailable)
	}

	var (
		merged []model.MarketCandidate
		errs   []error
		seen   = make(map[string]bool)
	)
	for _, src := range m.sources {
		candidates, err := src.FetchActiveMarkets(ctx)
		if err != nil {
			slog.Warn("market source failed", "source", src.Name(), "error", err)
			errs = append(errs, err)
			continue
		}
		for _, c := range candidates {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			merged = append(merged, c)
		}
	}

	if len(errs) == len(m.sources) {
		return nil, errors.Join(errs...)
	}
	return merged, nil
}
