package report

import (
	"log/slog"
	"sync"

	"polysignal/internal/model"
)

// Tracker accumulates decisions across watch-mode runs. It keeps nothing on
// disk.
type Tracker struct {
	mu  sync.Mutex
	sum Summary
}

// Summary contains the running decision statistics.
type Summary struct {
	Runs          int
	Selected      int
	NoSelection   int
	SelectionRate float64
	AvgConfidence float64
	MaxConfidence float64
	LastMarket    string
	ByDirection   map[model.Direction]int
	ByReason      map[string]int
	ByMarket      map[string]int
}

func NewTracker() *Tracker {
	return &Tracker{sum: Summary{
		ByDirection: make(map[model.Direction]int),
		ByReason:    make(map[string]int),
		ByMarket:    make(map[string]int),
	}}
}

// Record adds one decision.
func (t *Tracker) Record(d model.Decision) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := &t.sum
	s.Runs++
	switch v := d.(type) {
	case model.Selected:
		// Running mean over selected runs only.
		s.AvgConfidence += (v.Confidence - s.AvgConfidence) / float64(s.Selected+1)
		s.Selected++
		if v.Confidence > s.MaxConfidence {
			s.MaxConfidence = v.Confidence
		}
		s.LastMarket = v.Candidate.Candidate.ID
		s.ByDirection[v.Direction]++
		s.ByMarket[v.Candidate.Candidate.ID]++
	case model.NoSelection:
		s.NoSelection++
		s.ByReason[v.Reason]++
	}
	s.SelectionRate = float64(s.Selected) / float64(s.Runs)
}

// Summary returns a copy of the current statistics.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := t.sum
	out.ByDirection = make(map[model.Direction]int, len(t.sum.ByDirection))
	for k, v := range t.sum.ByDirection {
		out.ByDirection[k] = v
	}
	out.ByReason = make(map[string]int, len(t.sum.ByReason))
	for k, v := range t.sum.ByReason {
		out.ByReason[k] = v
	}
	out.ByMarket = make(map[string]int, len(t.sum.ByMarket))
	for k, v := range t.sum.ByMarket {
		out.ByMarket[k] = v
	}
	return out
}

// LogSummary logs the statistics as structured JSON.
func LogSummary(s Summary) {
	slog.Info("=== DECISION SUMMARY ===",
		"runs", s.Runs,
		"selected", s.Selected,
		"no_selection", s.NoSelection,
		"selection_rate", s.SelectionRate,
		"avg_confidence", s.AvgConfidence,
		"max_confidence", s.MaxConfidence,
		"last_market", s.LastMarket,
	)

	for reason, n := range s.ByReason {
		slog.Info("abstentions", "reason", reason, "count", n)
	}
	for dir, n := range s.ByDirection {
		slog.Info("selections by direction", "direction", dir, "count", n)
	}
}
