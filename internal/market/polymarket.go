package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"polysignal/internal/config"
	"polysignal/internal/model"
)

// PolymarketSource scrapes the events embedded in the Polymarket homepage.
type PolymarketSource struct {
	client    *http.Client
	baseURL   string
	maxEvents int
	now       func() time.Time
}

func NewPolymarketSource(cfg config.PolymarketConfig, client *http.Client) *PolymarketSource {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout.Duration}
	}
	return &PolymarketSource{
		client:    client,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		maxEvents: cfg.MaxEvents,
		now:       time.Now,
	}
}

func (p *PolymarketSource) Name() string { return "polymarket" }

// FetchActiveMarkets returns one candidate per listed event, priced from the
// event's first market.
func (p *PolymarketSource) FetchActiveMarkets(ctx context.Context) ([]model.MarketCandidate, error) {
	doc, err := p.fetchDocument(ctx)
	if err != nil {
		return nil, fmt.Errorf("polymarket: %w: %w", model.ErrSourceUnavailable, err)
	}

	raw := doc.Find("script#__NEXT_DATA__").First().Text()
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("polymarket: %w: page has no __NEXT_DATA__ payload", model.ErrSourceUnavailable)
	}

	events, err := parseEvents([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("polymarket: %w: %w", model.ErrSourceUnavailable, err)
	}
	if len(events) > p.maxEvents {
		events = events[:p.maxEvents]
	}

	fetchedAt := p.now()
	out := make([]model.MarketCandidate, 0, len(events))
	for _, ev := range events {
		c, ok := p.toCandidate(ev, fetchedAt)
		if !ok {
			slog.Debug("skipping polymarket event", "slug", ev.Slug)
			continue
		}
		out = append(out, c)
	}
	slog.Info("scraped polymarket events", "events", len(events), "candidates", len(out))
	return out, nil
}

func (p *PolymarketSource) fetchDocument(ctx context.Context) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "polysignal/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request homepage: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("homepage returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

type nextData struct {
	Props struct {
		PageProps struct {
			DehydratedState struct {
				Queries []struct {
					State struct {
						Data struct {
							Pages []struct {
								Events []json.RawMessage `json:"events"`
							} `json:"pages"`
						} `json:"data"`
					} `json:"state"`
				} `json:"queries"`
			} `json:"dehydratedState"`
		} `json:"pageProps"`
	} `json:"props"`
}

type pmEvent struct {
	Title    string     `json:"title"`
	Slug     string     `json:"slug"`
	EndDate  string     `json:"endDate"`
	Category string     `json:"category"`
	Volume   flexFloat  `json:"volume"`
	Tags     []pmTag    `json:"tags"`
	Markets  []pmMarket `json:"markets"`
}

type pmTag struct {
	Label string `json:"label"`
}

type pmMarket struct {
	Question      string    `json:"question"`
	EndDate       string    `json:"endDate"`
	Outcomes      flexList  `json:"outcomes"`
	OutcomePrices flexList  `json:"outcomePrices"`
	Volume        flexFloat `json:"volume"`
}

func parseEvents(raw []byte) ([]pmEvent, error) {
	var nd nextData
	if err := json.Unmarshal(raw, &nd); err != nil {
		return nil, fmt.Errorf("decode __NEXT_DATA__: %w", err)
	}
	queries := nd.Props.PageProps.DehydratedState.Queries
	if len(queries) == 0 || len(queries[0].State.Data.Pages) == 0 {
		return nil, fmt.Errorf("no events in __NEXT_DATA__")
	}
	rawEvents := queries[0].State.Data.Pages[0].Events
	events := make([]pmEvent, 0, len(rawEvents))
	for i, re := range rawEvents {
		var ev pmEvent
		if err := json.Unmarshal(re, &ev); err != nil {
			slog.Debug("skipping malformed polymarket event", "index", i, "error", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func (p *PolymarketSource) toCandidate(ev pmEvent, fetchedAt time.Time) (model.MarketCandidate, bool) {
	if ev.Slug == "" || len(ev.Markets) == 0 {
		return model.MarketCandidate{}, false
	}
	m := ev.Markets[0]

	prob, ok := yesPrice(m.Outcomes, m.OutcomePrices)
	if !ok {
		return model.MarketCandidate{}, false
	}

	question := ev.Title
	if question == "" {
		question = m.Question
	}

	closeTime := parseTime(ev.EndDate)
	if closeTime.IsZero() {
		closeTime = parseTime(m.EndDate)
	}

	category := ev.Category
	if category == "" && len(ev.Tags) > 0 {
		category = ev.Tags[0].Label
	}

	volume := float64(ev.Volume)
	if volume == 0 {
		volume = float64(m.Volume)
	}

	return model.MarketCandidate{
		ID:          ev.Slug,
		Question:    question,
		Keywords:    Keywords(question),
		Probability: prob,
		PriceTime:   fetchedAt,
		CloseTime:   closeTime,
		Category:    strings.ToLower(category),
		Volume:      volume,
		URL:         p.baseURL + "/market/" + ev.Slug,
		Source:      p.Name(),
	}, true
}

// yesPrice returns the price of the "Yes" outcome, or of the first outcome
// when there is none.
func yesPrice(outcomes, prices flexList) (float64, bool) {
	n := min(len(outcomes), len(prices))
	if n == 0 {
		return 0, false
	}
	idx := 0
	for i := 0; i < n; i++ {
		if strings.EqualFold(strings.TrimSpace(outcomes[i]), "yes") {
			idx = i
			break
		}
	}
	p, err := strconv.ParseFloat(strings.TrimSpace(prices[idx]), 64)
	if err != nil || p < 0 || p > 1 {
		return 0, false
	}
	return p, true
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// flexList accepts a JSON array or a string holding a JSON array. Elements may
// be strings or numbers.
type flexList []string

func (l *flexList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return err
		}
		if strings.TrimSpace(inner) == "" {
			*l = nil
			return nil
		}
		data = []byte(inner)
	}
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return fmt.Errorf("outcome list: %w", err)
	}
	out := make(flexList, len(elems))
	for i, e := range elems {
		var s string
		if err := json.Unmarshal(e, &s); err == nil {
			out[i] = s
			continue
		}
		out[i] = string(e)
	}
	*l = out
	return nil
}

// flexFloat accepts a JSON number or a numeric string. Anything else reads as 0.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		v = 0
	}
	*f = flexFloat(v)
	return nil
}
