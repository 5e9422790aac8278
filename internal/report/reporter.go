// Package report renders decisions for people and for downstream tools.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"polysignal/internal/model"
)

// LogDecision logs a decision with its score breakdown as structured fields.
func LogDecision(d model.Decision) {
	switch v := d.(type) {
	case model.Selected:
		b := v.Candidate.Breakdown
		slog.Info("=== DECISION ===",
			"selected", true,
			"market", v.Candidate.Candidate.ID,
			"question", v.Candidate.Candidate.Question,
			"direction", v.Direction,
			"confidence", v.Confidence,
			"eligible", v.Eligible,
			"market_term", b.MarketTerm,
			"sentiment_term", b.SentimentTerm,
			"staleness_factor", b.StalenessFactor,
			"coverage", v.Candidate.Sentiment.Coverage,
			"low_confidence", v.Candidate.Sentiment.LowConfidence,
		)
		slog.Info("rationale", "market", v.Candidate.Candidate.ID, "text", v.Rationale)
	case model.NoSelection:
		slog.Info("=== DECISION ===", "selected", false, "reason", v.Reason)
	}
}

// WriteJSON writes the decision payload as one indented JSON document.
func WriteJSON(w io.Writer, d model.Decision) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(model.NewPayload(d)); err != nil {
		return fmt.Errorf("encoding decision: %w", err)
	}
	return nil
}
