package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"polysignal/internal/model"
)

// SQLiteStore keeps cached lookups in the sentiment_cache table created by
// db.Migrate.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

func (s *SQLiteStore) Name() string { return "sqlite" }

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]model.ArticleSignal, bool, error) {
	var (
		payload   string
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT articles, expires_at FROM sentiment_cache WHERE cache_key = ?`, key,
	).Scan(&payload, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading sentiment cache: %w", err)
	}
	if s.now().Unix() >= expiresAt {
		return nil, false, nil
	}

	articles, err := decodeArticles([]byte(payload))
	if err != nil {
		return nil, false, fmt.Errorf("decoding cached articles for %q: %w", key, err)
	}
	return articles, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, articles []model.ArticleSignal, ttl time.Duration) error {
	data, err := encodeArticles(articles)
	if err != nil {
		return fmt.Errorf("encoding articles: %w", err)
	}

	now := s.now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sentiment_cache (cache_key, articles, stored_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			articles = excluded.articles,
			stored_at = excluded.stored_at,
			expires_at = excluded.expires_at`,
		key, string(data), now.Unix(), now.Add(ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("writing sentiment cache: %w", err)
	}
	return nil
}
