package market

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"polysignal/internal/model"
)

// FileSource reads a JSON array of candidates from disk on every fetch.
// Candidates without keywords get them from their question.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (f *FileSource) Name() string { return "file" }

func (f *FileSource) FetchActiveMarkets(ctx context.Context) ([]model.MarketCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("file source: %w: %w", model.ErrSourceUnavailable, err)
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("file source: %w: %w", model.ErrSourceUnavailable, err)
	}

	var candidates []model.MarketCandidate
	if err := json.Unmarshal(data, &candidates); err != nil {
		return nil, fmt.Errorf("file source: %w: decoding %s: %w", model.ErrSourceUnavailable, f.path, err)
	}
	for i := range candidates {
		if len(candidates[i].Keywords) == 0 {
			candidates[i].Keywords = Keywords(candidates[i].Question)
		}
		if candidates[i].Source == "" {
			candidates[i].Source = f.Name()
		}
	}
	return candidates, nil
}
