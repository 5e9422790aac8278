package model

import "errors"

// Reasons carried by NoSelection.
const (
	ReasonNoEligibleCandidate     = "no eligible candidate"
	ReasonMarketSourceUnavailable = "market source unavailable"
)

var (
	// ErrSourceUnavailable is wrapped by market sources that cannot list markets.
	ErrSourceUnavailable = errors.New("market source unavailable")
	// ErrUpstreamUnavailable is wrapped by sentiment sources on transport failures.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Decision is the terminal result of a selection: either Selected or NoSelection.
type Decision interface {
	decision()
}

// Selected is a Decision naming the chosen market.
type Selected struct {
	Candidate  ScoredCandidate
	Confidence float64
	Direction  Direction
	Rationale  string
	Eligible   int // number of candidates that passed eligibility
}

// NoSelection is a Decision to abstain.
type NoSelection struct {
	Reason string
}

func (Selected) decision()    {}
func (NoSelection) decision() {}

// Payload is the flat record handed to whatever transport exposes decisions.
type Payload struct {
	Selected   bool      `json:"selected"`
	MarketID   string    `json:"market_id,omitempty"`
	Question   string    `json:"question,omitempty"`
	URL        string    `json:"url,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Direction  Direction `json:"direction,omitempty"`
	Rationale  string    `json:"rationale,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

// NewPayload flattens a Decision.
func NewPayload(d Decision) Payload {
	switch v := d.(type) {
	case Selected:
		return Payload{
			Selected:   true,
			MarketID:   v.Candidate.Candidate.ID,
			Question:   v.Candidate.Candidate.Question,
			URL:        v.Candidate.Candidate.URL,
			Confidence: v.Confidence,
			Direction:  v.Direction,
			Rationale:  v.Rationale,
		}
	case NoSelection:
		return Payload{Reason: v.Reason}
	default:
		return Payload{Reason: "unknown decision"}
	}
}
