package ai

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/pauljones0/flipscout/internal/models"
)

// Flipping economics shared by the rule evaluator and the model prompt.
const (
	TransactionCost = 200

	hotMinPercent  = 50.0
	hotMinProfit   = 1000
	goodMinPercent = 25.0
	goodMinProfit  = 500
	fairMinPercent = 10.0
)

// Classify maps a profit and margin onto a tier.
func Classify(profit int, pct float64) models.Tier {
	switch {
	case pct >= hotMinPercent && profit >= hotMinProfit:
		return models.TierHot
	case pct >= goodMinPercent && profit >= goodMinProfit:
		return models.TierGood
	case pct >= fairMinPercent:
		return models.TierFair
	default:
		return models.TierBad
	}
}

// RuleEvaluator prices listings from a fixed table of conservative resale values.
// It needs no network and always answers.
type RuleEvaluator struct {
	refs []models.ReferencePrice
}

func NewRuleEvaluator(refs []models.ReferencePrice) *RuleEvaluator {
	sorted := make([]models.ReferencePrice, 0, len(refs))
	for _, r := range refs {
		if kw := strings.ToLower(strings.TrimSpace(r.Keyword)); kw != "" && r.Value > 0 {
			sorted = append(sorted, models.ReferencePrice{Keyword: kw, Value: r.Value})
		}
	}
	// Longest keyword first so "rtx 3080 ti" beats "rtx 3080".
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Keyword) > len(sorted[j].Keyword)
	})
	return &RuleEvaluator{refs: sorted}
}

func (r *RuleEvaluator) Name() string { return "rules" }

func (r *RuleEvaluator) Evaluate(ctx context.Context, l models.Listing) (models.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return models.Verdict{}, err
	}
	if l.Price <= 0 {
		return models.Verdict{}, fmt.Errorf("listing %s has no price", l.ID)
	}

	ref, ok := r.match(l.Title)
	if !ok {
		return models.Verdict{
			Tier:      models.TierBad,
			Rationale: "No reference price for this hardware",
		}, nil
	}

	profit := ref.Value - l.Price - TransactionCost
	pct := math.Round(float64(profit)/float64(l.Price)*1000) / 10
	return models.Verdict{
		Tier:             Classify(profit, pct),
		EstimatedValue:   ref.Value,
		EstimatedProfit:  profit,
		ProfitPercentage: pct,
		ComparisonCount:  1,
		Rationale: fmt.Sprintf("Reference value %d kr for %q, minus %d kr price and %d kr costs",
			ref.Value, ref.Keyword, l.Price, TransactionCost),
	}, nil
}

func (r *RuleEvaluator) match(title string) (models.ReferencePrice, bool) {
	lower := strings.ToLower(title)
	for _, ref := range r.refs {
		if strings.Contains(lower, ref.Keyword) {
			return ref, true
		}
	}
	return models.ReferencePrice{}, false
}
