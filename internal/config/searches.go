package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/pauljones0/flipscout/internal/models"
	"github.com/pauljones0/flipscout/internal/validator"
)

//go:embed searches.json
var embeddedSearches []byte

// Searches is the scan plan: which searches to run and the reference prices
// the rule evaluator compares against.
type Searches struct {
	Searches        []models.SearchSpec     `json:"searches" validate:"required,min=1,dive"`
	ReferencePrices []models.ReferencePrice `json:"reference_prices" validate:"dive"`
}

// LoadSearches reads the scan plan from path, or the embedded default when path is empty.
func LoadSearches(path string) (*Searches, error) {
	data := embeddedSearches
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read searches config: %w", err)
		}
		data = raw
		slog.Info("Loaded searches from external file", "path", path)
	}
	return ParseSearches(data)
}

// ParseSearches decodes and validates a scan plan.
func ParseSearches(data []byte) (*Searches, error) {
	var s Searches
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse searches config JSON: %w", err)
	}
	if err := validator.New().ValidateStruct(s); err != nil {
		return nil, fmt.Errorf("invalid searches config: %w", err)
	}
	return &s, nil
}
