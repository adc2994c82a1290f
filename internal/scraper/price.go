package scraper

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/pauljones0/flipscout/internal/util"
)

// priceRegex matches "12 345 kr", "4500:-" or "800 SEK". Grouping may use plain,
// non-breaking or narrow no-break spaces. A grouped amount must lead with 1-3 digits
// and must not continue a longer number, so "RTX 3080 500 kr" reads as 500, not 3080500.
var priceRegex = regexp.MustCompile(`(?i)(?:^|\D)(\d{1,3}(?:[ \x{00a0}\x{202f}]\d{3})+|\d+)[\s\x{00a0}\x{202f}]*(?:kr\b|sek\b|:-)`)

// ParsePrice finds the first currency-marked amount in text.
// Zero or missing means unparseable, never free.
func ParsePrice(text string) (int, bool) {
	m := priceRegex.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(util.CleanNumericString(m[1]))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// HasPrice reports whether text contains a currency-marked amount.
func HasPrice(text string) bool {
	return priceRegex.MatchString(text)
}

var listingIDRegex = regexp.MustCompile(`(\d{4,})$`)

// ListingID returns the numeric ad id that ends a listing URL's path.
func ListingID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	m := listingIDRegex.FindStringSubmatch(strings.TrimRight(u.Path, "/"))
	if m == nil {
		return ""
	}
	return m[1]
}
