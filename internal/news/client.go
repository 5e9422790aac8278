// Package news turns NewsAPI search results into scored article signals.
package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"polysignal/internal/config"
	"polysignal/internal/model"
)

// Client queries NewsAPI behind a token-bucket limiter and a circuit breaker.
type Client struct {
	http    *http.Client
	cfg     config.NewsConfig
	baseURL string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	now     func() time.Time
}

func NewClient(cfg config.NewsConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout.Duration}
	}

	st := gobreaker.Settings{
		Name:    "newsapi",
		Timeout: cfg.BreakerCooldown.Duration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// A caller giving up is not a fault of the upstream.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &Client{
		http:    httpClient,
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breaker: gobreaker.NewCircuitBreaker(st),
		now:     time.Now,
	}
}

type apiResponse struct {
	Status       string       `json:"status"`
	Code         string       `json:"code"`
	Message      string       `json:"message"`
	TotalResults int          `json:"totalResults"`
	Articles     []apiArticle `json:"articles"`
}

type apiArticle struct {
	Source struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"source"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
}

// FetchArticles searches for the keywords and scores every returned article.
// maxAge bounds the search window when positive.
func (c *Client) FetchArticles(ctx context.Context, keywords []string, maxAge time.Duration) ([]model.ArticleSignal, error) {
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("newsapi: %w: no API key configured", model.ErrUpstreamUnavailable)
	}
	if len(keywords) == 0 {
		return nil, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("newsapi: rate limit wait: %w", err)
	}

	res, err := c.breaker.Execute(func() (any, error) {
		return c.search(ctx, keywords, maxAge)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("newsapi: %w: %w", model.ErrUpstreamUnavailable, err)
		}
		return nil, err
	}

	resp := res.(*apiResponse)
	signals := make([]model.ArticleSignal, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		if a.Title == "" || a.Title == "[Removed]" {
			continue
		}
		published, err := time.Parse(time.RFC3339, a.PublishedAt)
		if err != nil {
			slog.Debug("skipping article with bad timestamp", "url", a.URL, "published_at", a.PublishedAt)
			continue
		}
		text := a.Title + " " + a.Description
		signals = append(signals, model.ArticleSignal{
			Source:      a.Source.Name,
			Title:       a.Title,
			URL:         a.URL,
			Polarity:    Polarity(text),
			Relevance:   Relevance(keywords, text),
			PublishedAt: published.UTC(),
		})
	}
	slog.Debug("newsapi search done", "query", strings.Join(keywords, " "), "total", resp.TotalResults, "kept", len(signals))
	return signals, nil
}

func (c *Client) search(ctx context.Context, keywords []string, maxAge time.Duration) (*apiResponse, error) {
	params := url.Values{}
	params.Set("q", strings.Join(keywords, " "))
	params.Set("language", c.cfg.Language)
	params.Set("pageSize", strconv.Itoa(c.cfg.PageSize))
	if c.cfg.Endpoint == "everything" {
		params.Set("sortBy", c.cfg.SortBy)
		if maxAge > 0 {
			params.Set("from", c.now().Add(-maxAge).UTC().Format(time.RFC3339))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+c.cfg.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("newsapi: build request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.cfg.APIKey)
	req.Header.Set("User-Agent", "polysignal/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("newsapi: %w: %w", model.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("newsapi: %w: decoding response (%s): %w", model.ErrUpstreamUnavailable, resp.Status, err)
	}
	if resp.StatusCode != http.StatusOK || body.Status != "ok" {
		return nil, fmt.Errorf("newsapi: %w: %s %s: %s", model.ErrUpstreamUnavailable, resp.Status, body.Code, body.Message)
	}
	return &body, nil
}
