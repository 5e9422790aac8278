package cache

import (
	"context"
	"encoding/json"
	"time"

	"polysignal/internal/model"
)

// Store is a shared second tier that outlives one process, so separate runs
// inside the same window reuse each other's lookups.
type Store interface {
	Name() string
	Get(ctx context.Context, key string) ([]model.ArticleSignal, bool, error)
	Set(ctx context.Context, key string, articles []model.ArticleSignal, ttl time.Duration) error
}

func encodeArticles(articles []model.ArticleSignal) ([]byte, error) {
	if articles == nil {
		articles = []model.ArticleSignal{}
	}
	return json.Marshal(articles)
}

func decodeArticles(data []byte) ([]model.ArticleSignal, error) {
	var articles []model.ArticleSignal
	if err := json.Unmarshal(data, &articles); err != nil {
		return nil, err
	}
	if articles == nil {
		articles = []model.ArticleSignal{}
	}
	return articles, nil
}
