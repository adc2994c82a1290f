package models

import (
	"strings"
	"time"
)

// Tier is an evaluator's profitability class.
type Tier string

const (
	TierHot  Tier = "HOT"
	TierGood Tier = "GOOD"
	TierFair Tier = "FAIR"
	TierBad  Tier = "BAD"
)

// ParseTier maps evaluator output onto a Tier. Anything unrecognized is BAD.
func ParseTier(s string) Tier {
	switch Tier(strings.ToUpper(strings.TrimSpace(s))) {
	case TierHot:
		return TierHot
	case TierGood:
		return TierGood
	case TierFair:
		return TierFair
	default:
		return TierBad
	}
}

// Notifiable reports whether listings of this tier are worth an alert.
func (t Tier) Notifiable() bool {
	return t == TierHot || t == TierGood
}

// Verdict is the evaluator's judgment for one listing.
type Verdict struct {
	Tier             Tier    `json:"verdict"`
	EstimatedValue   int     `json:"estimated_market_value"`
	EstimatedProfit  int     `json:"estimated_profit"`
	ProfitPercentage float64 `json:"profit_percentage"`
	Rationale        string  `json:"reason"`
	ComparisonCount  int     `json:"comparison_count"`
}

// FallbackVerdict is substituted whenever an evaluator fails or answers garbage.
func FallbackVerdict(reason string) Verdict {
	return Verdict{Tier: TierBad, Rationale: reason}
}

// RunSummary aggregates counters for one orchestrator run.
type RunSummary struct {
	RunID        string        `json:"run_id"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	Searches     int           `json:"searches"`
	PagesFetched int           `json:"pages_fetched"`
	Candidates   int           `json:"candidates"`
	Accepted     int           `json:"accepted"`
	Evaluated    int           `json:"evaluated"`
	Hot          int           `json:"hot"`
	Good         int           `json:"good"`
	Notified     int           `json:"notified"`
	Purged       int64         `json:"purged"`
	Errors       int           `json:"errors"`
}
