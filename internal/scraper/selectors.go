package scraper

import (
	"encoding/json"
	"fmt"
	"os"
)

// SelectorConfig holds the markup assumptions each extraction strategy relies on.
// It is JSON so selector drift can be fixed without a rebuild.
type SelectorConfig struct {
	ListingPaths []string            `json:"listing_paths"`
	Structured   StructuredSelectors `json:"structured"`
	Heuristic    HeuristicSelectors  `json:"heuristic"`
}

type StructuredSelectors struct {
	Container string `json:"container"`
	Title     string `json:"title"`
	Price     string `json:"price"`
	Link      string `json:"link"`
	Location  string `json:"location"`
	Image     string `json:"image"`
}

type HeuristicSelectors struct {
	Container     string   `json:"container"`
	Title         string   `json:"title"`
	MinTextLength int      `json:"min_text_length"`
	NoiseWords    []string `json:"noise_words"`
}

// LoadSelectors loads the selector configuration from the specified JSON file.
func LoadSelectors(path string) (SelectorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SelectorConfig{}, fmt.Errorf("failed to read selector config file: %w", err)
	}

	return LoadSelectorsFromBytes(data)
}

// LoadSelectorsFromBytes parses selector configuration from raw JSON bytes.
func LoadSelectorsFromBytes(data []byte) (SelectorConfig, error) {
	var config SelectorConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return SelectorConfig{}, fmt.Errorf("failed to parse selector config JSON: %w", err)
	}
	if len(config.ListingPaths) == 0 {
		return SelectorConfig{}, fmt.Errorf("selector config has no listing_paths")
	}

	return config, nil
}

// DefaultSelectors returns the fallback configuration if no JSON file is loaded.
// Keep it in sync with the embedded selectors.json.
func DefaultSelectors() SelectorConfig {
	return SelectorConfig{
		ListingPaths: []string{"/annons/", "/recommerce/forsale/item/"},
		Structured: StructuredSelectors{
			Container: `article.sf-search-ad, article[data-testid^="search-result"], div[data-cy="search-results"] article`,
			Title:     `h2 a, h2, [class*="Subject"]`,
			Price:     `[class*="Price"], [data-testid="price"], .font-bold span`,
			Link:      `a.sf-search-ad-link, a[href*="/annons/"], a[href*="/item/"]`,
			Location:  `[class*="TopInfoLink"], .s-text-subtle span`,
			Image:     "img",
		},
		Heuristic: HeuristicSelectors{
			Container:     "article",
			Title:         "h2, h3",
			MinTextLength: 30,
			NoiseWords:    []string{"relevans", "sortera", "filter", "kategori"},
		},
	}
}
