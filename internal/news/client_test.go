package news

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polysignal/internal/config"
	"polysignal/internal/model"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const okBody = `{"status":"ok","totalResults":3,"articles":[
 {"source":{"id":"reuters","name":"Reuters"},"title":"Fed signals strong support for March cut",
  "description":"Officials grow confident","url":"https://example.com/1","publishedAt":"2026-03-01T10:00:00Z"},
 {"source":{"name":"AP"},"title":"[Removed]","url":"https://removed.com","publishedAt":"2026-03-01T09:00:00Z"},
 {"source":{"name":"Blog"},"title":"Rates outlook","description":"no change","url":"https://example.com/3","publishedAt":"yesterday"}
]}`

func testNewsConfig(baseURL string) config.NewsConfig {
	cfg := config.DefaultConfig().News
	cfg.APIKey = "secret"
	cfg.BaseURL = baseURL
	cfg.RequestsPerSecond = 1000
	cfg.Burst = 100
	return cfg
}

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate func(*config.NewsConfig)) (*Client, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := testNewsConfig(srv.URL)
	if mutate != nil {
		mutate(&cfg)
	}
	c := NewClient(cfg, srv.Client())
	c.now = func() time.Time { return now }
	return c, &hits
}

func TestClient_Everything(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/everything", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		q := r.URL.Query()
		assert.Equal(t, "fed march", q.Get("q"))
		assert.Equal(t, "en", q.Get("language"))
		assert.Equal(t, "20", q.Get("pageSize"))
		assert.Equal(t, "publishedAt", q.Get("sortBy"))
		assert.Equal(t, "2026-02-26T12:00:00Z", q.Get("from"))
		w.Write([]byte(okBody))
	}, nil)

	got, err := c.FetchArticles(context.Background(), []string{"fed", "march"}, 72*time.Hour)
	require.NoError(t, err)
	require.Len(t, got, 1, "removed and undated articles are dropped")

	a := got[0]
	assert.Equal(t, "Reuters", a.Source)
	assert.Equal(t, 1.0, a.Polarity)
	assert.Equal(t, 1.0, a.Relevance)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), a.PublishedAt)
}

func TestClient_TopHeadlines(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/top-headlines", r.URL.Path)
		assert.Empty(t, r.URL.Query().Get("sortBy"))
		assert.Empty(t, r.URL.Query().Get("from"))
		w.Write([]byte(`{"status":"ok","totalResults":0,"articles":[]}`))
	}, func(cfg *config.NewsConfig) { cfg.Endpoint = "top-headlines" })

	got, err := c.FetchArticles(context.Background(), []string{"fed"}, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClient_ErrorStatus(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"status":"error","code":"apiKeyInvalid","message":"Your API key is invalid."}`))
	}, nil)

	_, err := c.FetchArticles(context.Background(), []string{"fed"}, time.Hour)
	require.ErrorIs(t, err, model.ErrUpstreamUnavailable)
	assert.Contains(t, err.Error(), "apiKeyInvalid")
}

func TestClient_MissingKey(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {}, func(cfg *config.NewsConfig) { cfg.APIKey = "" })

	_, err := c.FetchArticles(context.Background(), []string{"fed"}, time.Hour)
	assert.ErrorIs(t, err, model.ErrUpstreamUnavailable)
	assert.Equal(t, int32(0), hits.Load())
}

func TestClient_BreakerOpens(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"status":"error","code":"unexpectedError","message":"boom"}`))
	}, func(cfg *config.NewsConfig) {
		cfg.BreakerFailures = 2
		cfg.BreakerCooldown = config.Duration{Duration: time.Minute}
	})

	for i := 0; i < 2; i++ {
		_, err := c.FetchArticles(context.Background(), []string{"fed"}, time.Hour)
		require.ErrorIs(t, err, model.ErrUpstreamUnavailable)
	}
	_, err := c.FetchArticles(context.Background(), []string{"fed"}, time.Hour)
	assert.ErrorIs(t, err, model.ErrUpstreamUnavailable)
	assert.Equal(t, int32(2), hits.Load(), "open breaker must not call upstream")
}

func TestClient_CancelledCallDoesNotTripBreaker(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.Write([]byte(`{"status":"ok","articles":[]}`))
	}, func(cfg *config.NewsConfig) { cfg.BreakerFailures = 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.FetchArticles(ctx, []string{"fed"}, time.Hour)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = c.FetchArticles(context.Background(), []string{"fed"}, time.Hour)
	assert.NoError(t, err)
}

func TestPolarity(t *testing.T) {
	cases := []struct {
		text string
		want float64
	}{
		{"Candidate surges ahead after strong debate", 1},
		{"Bill rejected amid scandal", -1},
		{"Senate does not approve the deal", 0},
		{"Talks stall but markets rally", 0},
		{"Weather today", 0},
		{"Bill won't pass", -1},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			assert.InDelta(t, tc.want, Polarity(tc.text), 1e-9)
		})
	}
}

func TestRelevance(t *testing.T) {
	assert.Equal(t, 0.5, Relevance([]string{"fed", "bitcoin"}, "The Fed held rates"))
	assert.Equal(t, 0.0, Relevance(nil, "anything"))
	assert.Equal(t, 1.0, Relevance([]string{"GPT-5"}, "OpenAI ships gpt-5"))
}
