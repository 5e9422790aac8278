package market

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonnyspicer/mango"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polysignal/internal/config"
	"polysignal/internal/model"
)

var fetchedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const homepage = `<!DOCTYPE html><html><head></head><body>
<script id="__NEXT_DATA__" type="application/json">
{"props":{"pageProps":{"dehydratedState":{"queries":[{"state":{"data":{"pages":[{"events":[
  {"title":"Will the Fed cut rates in March?","slug":"fed-cut-march","endDate":"2026-03-19T18:00:00Z",
   "tags":[{"label":"Economy"}],"volume":"125000.5",
   "markets":[{"outcomes":"[\"Yes\", \"No\"]","outcomePrices":"[\"0.62\", \"0.38\"]"}]},
  {"title":"Which team wins the final?","slug":"final-winner","endDate":"2026-06-01",
   "category":"Sports","volume":9000,
   "markets":[{"outcomes":["No","Yes"],"outcomePrices":[0.7,0.3]}]},
  {"title":"Broken event","slug":"broken","markets":[]},
  {"title":"Third event","slug":"third","markets":[{"outcomes":["Yes","No"],"outcomePrices":["0.5","0.5"]}]}
]}]}}}]}}}}
</script></body></html>`

func newPolymarket(t *testing.T, body string, status int, maxEvents int) *PolymarketSource {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	cfg := config.PolymarketConfig{BaseURL: srv.URL, MaxEvents: maxEvents, Timeout: config.Duration{Duration: time.Second}}
	p := NewPolymarketSource(cfg, srv.Client())
	p.now = func() time.Time { return fetchedAt }
	return p
}

func TestPolymarketSource_ParsesBothEncodings(t *testing.T) {
	p := newPolymarket(t, homepage, http.StatusOK, 20)

	got, err := p.FetchActiveMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)

	fed := got[0]
	assert.Equal(t, "fed-cut-march", fed.ID)
	assert.Equal(t, 0.62, fed.Probability)
	assert.Equal(t, "economy", fed.Category)
	assert.Equal(t, 125000.5, fed.Volume)
	assert.Equal(t, time.Date(2026, 3, 19, 18, 0, 0, 0, time.UTC), fed.CloseTime)
	assert.Equal(t, fetchedAt, fed.PriceTime)
	assert.Equal(t, []string{"fed", "cut", "rates", "march"}, fed.Keywords)
	assert.Equal(t, p.baseURL+"/market/fed-cut-march", fed.URL)
	assert.Equal(t, "polymarket", fed.Source)

	final := got[1]
	assert.Equal(t, 0.3, final.Probability, "price of the Yes outcome, not the first one")
	assert.Equal(t, "sports", final.Category)
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), final.CloseTime)

	assert.True(t, got[2].CloseTime.IsZero())
}

func TestPolymarketSource_MaxEvents(t *testing.T) {
	p := newPolymarket(t, homepage, http.StatusOK, 1)

	got, err := p.FetchActiveMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fed-cut-march", got[0].ID)
}

const homepageWithBadEvents = `<html><body>
<script id="__NEXT_DATA__" type="application/json">
{"props":{"pageProps":{"dehydratedState":{"queries":[{"state":{"data":{"pages":[{"events":[
  {"title":"Odd volume","slug":"odd-volume","volume":"n/a",
   "markets":[{"outcomes":["Yes","No"],"outcomePrices":["0.4","0.6"]}]},
  {"title":"Garbled outcomes","slug":"garbled","markets":[{"outcomes":"not-json","outcomePrices":"[]"}]},
  {"title":"Wrong shape","slug":["not","a","string"]},
  {"title":"Clean event","slug":"clean","volume":42,
   "markets":[{"outcomes":["Yes","No"],"outcomePrices":[0.8,0.2]}]}
]}]}}}]}}}}
</script></body></html>`

func TestPolymarketSource_SkipsMalformedEvents(t *testing.T) {
	p := newPolymarket(t, homepageWithBadEvents, http.StatusOK, 20)

	got, err := p.FetchActiveMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "odd-volume", got[0].ID)
	assert.Equal(t, 0.4, got[0].Probability)
	assert.Equal(t, 0.0, got[0].Volume)

	assert.Equal(t, "clean", got[1].ID)
	assert.Equal(t, 0.8, got[1].Probability)
	assert.Equal(t, 42.0, got[1].Volume)
}

func TestPolymarketSource_Failures(t *testing.T) {
	cases := map[string]struct {
		body   string
		status int
	}{
		"server error":   {body: "oops", status: http.StatusBadGateway},
		"no next data":   {body: "<html><body>maintenance</body></html>", status: http.StatusOK},
		"malformed json": {body: `<script id="__NEXT_DATA__">{not json</script>`, status: http.StatusOK},
		"no queries":     {body: `<script id="__NEXT_DATA__">{"props":{}}</script>`, status: http.StatusOK},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			p := newPolymarket(t, tc.body, tc.status, 20)
			_, err := p.FetchActiveMarkets(context.Background())
			assert.ErrorIs(t, err, model.ErrSourceUnavailable)
		})
	}
}

func TestYesPrice(t *testing.T) {
	p, ok := yesPrice(flexList{"Trump", "Harris"}, flexList{"0.55", "0.45"})
	assert.True(t, ok)
	assert.Equal(t, 0.55, p)

	_, ok = yesPrice(flexList{"Yes"}, nil)
	assert.False(t, ok)

	_, ok = yesPrice(flexList{"Yes", "No"}, flexList{"1.5", "0"})
	assert.False(t, ok)
}

type fakeSearcher struct {
	markets []mango.FullMarket
	err     error
	req     mango.SearchMarketsRequest
}

func (f *fakeSearcher) SearchMarkets(req mango.SearchMarketsRequest) (*[]mango.FullMarket, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &f.markets, nil
}

func TestManifoldSource_Converts(t *testing.T) {
	fs := &fakeSearcher{markets: []mango.FullMarket{
		{Id: "abc", Question: "Will SpaceX land Starship on Mars by 2030?", Probability: 0.12, CloseTime: 1900000000000, Volume: 300, Url: "https://manifold.markets/x/abc"},
		{Id: "done", Question: "Resolved", Probability: 1, IsResolved: true},
	}}
	s := NewManifoldSource(fs, 50)
	s.now = func() time.Time { return fetchedAt }

	got, err := s.FetchActiveMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, "BINARY", fs.req.ContractType)
	assert.Equal(t, int64(50), fs.req.Limit)
	assert.Equal(t, "manifold:abc", got[0].ID)
	assert.Equal(t, 0.12, got[0].Probability)
	assert.Equal(t, time.UnixMilli(1900000000000).UTC(), got[0].CloseTime)
	assert.Equal(t, []string{"spacex", "land", "starship", "mars"}, got[0].Keywords)
}

func TestManifoldSource_Error(t *testing.T) {
	s := NewManifoldSource(&fakeSearcher{err: errors.New("502")}, 10)
	_, err := s.FetchActiveMarkets(context.Background())
	assert.ErrorIs(t, err, model.ErrSourceUnavailable)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markets.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id":"m1","question":"Will Bitcoin close above 100k?","probability":0.4,
		 "price_time":"2026-03-01T11:59:00Z","close_time":"2026-04-01T00:00:00Z","category":"crypto"}
	]`), 0o644))

	got, err := NewFileSource(path).FetchActiveMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"bitcoin", "close", "above", "100k"}, got[0].Keywords)
	assert.Equal(t, "file", got[0].Source)

	_, err = NewFileSource(filepath.Join(t.TempDir(), "missing.json")).FetchActiveMarkets(context.Background())
	assert.ErrorIs(t, err, model.ErrSourceUnavailable)
}

type staticSource struct {
	name       string
	candidates []model.MarketCandidate
	err        error
}

func (s staticSource) Name() string { return s.name }

func (s staticSource) FetchActiveMarkets(context.Context) ([]model.MarketCandidate, error) {
	return s.candidates, s.err
}

func TestMultiSource_MergesAndDedupes(t *testing.T) {
	a := staticSource{name: "a", candidates: []model.MarketCandidate{{ID: "x", Probability: 0.1}, {ID: "y"}}}
	b := staticSource{name: "b", candidates: []model.MarketCandidate{{ID: "x", Probability: 0.9}, {ID: "z"}}}
	broken := staticSource{name: "c", err: model.ErrSourceUnavailable}

	got, err := NewMultiSource(a, broken, b).FetchActiveMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 0.1, got[0].Probability)
	assert.Equal(t, "z", got[2].ID)
}

func TestMultiSource_AllFail(t *testing.T) {
	broken := staticSource{name: "c", err: errors.New("polymarket: " + model.ErrSourceUnavailable.Error())}
	_, err := NewMultiSource(broken, staticSource{name: "d", err: model.ErrSourceUnavailable}).FetchActiveMarkets(context.Background())
	assert.ErrorIs(t, err, model.ErrSourceUnavailable)

	_, err = NewMultiSource().FetchActiveMarkets(context.Background())
	assert.ErrorIs(t, err, model.ErrSourceUnavailable)
}

func TestKeywords(t *testing.T) {
	assert.Equal(t, []string{"biden", "drop", "race"}, Keywords("Will Biden drop out of the race?"))
	assert.Equal(t, []string{"openai", "gpt-5", "release"}, Keywords("OpenAI: GPT-5 release... GPT-5 release?"))
	assert.Len(t, Keywords("alpha beta gamma delta epsilon zeta eta theta"), 6)
	assert.Empty(t, Keywords("Will it be?"))
}
