package ai

import (
	"fmt"

	"github.com/pauljones0/flipscout/internal/models"
)

// BuildPrompt asks a model to judge one listing as a resale opportunity.
func BuildPrompt(l models.Listing) string {
	location := l.Location
	if location == "" {
		location = "unknown"
	}
	return fmt.Sprintf(`You evaluate second-hand computer hardware on a Swedish classifieds site as buy-to-resell opportunities.

Listing:
Title: %q
Asking price: %d kr
Location: %s
URL: %s

Rules:
1. Estimate the realistic resale value in Sweden today for the exact item. Be conservative; assume a quick sale, not a best-case one.
2. Profit = resale value - asking price - %d kr for fees, transport and risk.
3. Profit percentage = profit / asking price * 100.
4. HOT: at least %.0f%% and at least %d kr profit. GOOD: at least %.0f%% and at least %d kr. FAIR: at least %.0f%%. Otherwise BAD.
5. If you cannot identify the item or have no comparable sales, answer BAD.

Respond with JSON only:
{"verdict": "HOT|GOOD|FAIR|BAD", "estimated_market_value": 0, "estimated_profit": 0, "profit_percentage": 0, "comparison_count": 0, "reason": "one sentence"}
`,
		l.Title, l.Price, location, l.URL,
		TransactionCost,
		hotMinPercent, hotMinProfit, goodMinPercent, goodMinProfit, fairMinPercent,
	)
}
