package scraper

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/pauljones0/flipscout/internal/models"
)

const searchPath = "/annonser/hela_sverige"

// SearchURL builds the first result page URL for a configured search.
// Free-text searches push the price window to the marketplace; category searches
// use the configured path verbatim.
func SearchURL(base string, s models.SearchSpec) (string, error) {
	base = strings.TrimRight(base, "/")
	if strings.TrimSpace(s.Query) == "" {
		if s.CategoryPath == "" {
			return "", fmt.Errorf("search %q has neither query nor category path", s.Name)
		}
		if strings.HasPrefix(s.CategoryPath, "http://") || strings.HasPrefix(s.CategoryPath, "https://") {
			return s.CategoryPath, nil
		}
		u, err := url.Parse(base + "/" + strings.TrimLeft(s.CategoryPath, "/"))
		if err != nil {
			return "", fmt.Errorf("invalid category path for search %q: %w", s.Name, err)
		}
		return u.String(), nil
	}

	u, err := url.Parse(base + searchPath)
	if err != nil {
		return "", fmt.Errorf("invalid marketplace URL %q: %w", base, err)
	}
	q := url.Values{}
	q.Set("q", strings.TrimSpace(s.Query))
	if s.MaxPrice > 0 {
		q.Set("price_end", strconv.Itoa(s.MaxPrice))
	}
	if s.MinPrice > 0 {
		q.Set("price_start", strconv.Itoa(s.MinPrice))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
