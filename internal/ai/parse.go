package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pauljones0/flipscout/internal/models"
)

// MissingReason is used when a model answers without explaining itself.
const MissingReason = "Missing field in AI response"

var ErrNoJSON = errors.New("no JSON object in model response")

var numberRegex = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)

// flexNumber accepts 1500, 1500.0, "1500", "1 500 kr" and "45.5%".
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == "" {
		return nil
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		m := numberRegex.FindString(strings.Join(strings.Fields(str), ""))
		if m == "" {
			*n = 0
			return nil
		}
		// "1,500" groups thousands; "12,5" is a decimal comma.
		if whole, frac, ok := strings.Cut(m, ","); ok && len(frac) == 3 {
			m = whole + frac
		}
		s = strings.Replace(m, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", s)
	}
	*n = flexNumber(f)
	return nil
}

type rawVerdict struct {
	Verdict          string     `json:"verdict"`
	Reason           *string    `json:"reason"`
	MarketValue      flexNumber `json:"estimated_market_value"`
	Profit           flexNumber `json:"estimated_profit"`
	ProfitPercentage flexNumber `json:"profit_percentage"`
	ComparisonCount  flexNumber `json:"comparison_count"`
}

// ParseVerdict decodes a model's JSON answer, tolerating markdown fences and
// surrounding prose. Missing figures default to zero.
func ParseVerdict(text string) (models.Verdict, error) {
	body, err := extractJSON(text)
	if err != nil {
		return models.Verdict{}, err
	}
	var raw rawVerdict
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return models.Verdict{}, fmt.Errorf("failed to parse model response: %w", err)
	}

	v := models.Verdict{
		Tier:             models.ParseTier(raw.Verdict),
		EstimatedValue:   round(raw.MarketValue),
		EstimatedProfit:  round(raw.Profit),
		ProfitPercentage: float64(raw.ProfitPercentage),
		ComparisonCount:  round(raw.ComparisonCount),
		Rationale:        MissingReason,
	}
	if raw.Reason != nil && strings.TrimSpace(*raw.Reason) != "" {
		v.Rationale = strings.TrimSpace(*raw.Reason)
	}
	return v, nil
}

func extractJSON(text string) (string, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", ErrNoJSON
	}
	return s[start : end+1], nil
}

func round(n flexNumber) int {
	return int(math.Round(float64(n)))
}
