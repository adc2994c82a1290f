package browser

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultBlockMarkers are phrases that only appear on bot-check and access-denied pages.
var DefaultBlockMarkers = []string{
	"access denied",
	"åtkomst nekad",
	"verify you are human",
	"are you a robot",
	"unusual traffic",
	"request blocked",
	"checking your browser",
	"captcha",
}

// DetectBlock reports whether a response looks like a block or challenge page
// rather than search results, and why.
func DetectBlock(status int, text string, markers []string) (string, bool) {
	if status == http.StatusForbidden || status == http.StatusTooManyRequests {
		return fmt.Sprintf("http status %d", status), true
	}
	lower := strings.ToLower(text)
	for _, m := range markers {
		if m != "" && strings.Contains(lower, strings.ToLower(m)) {
			return fmt.Sprintf("page contains %q", m), true
		}
	}
	return "", false
}

// VisibleText returns the text a reader would see, ignoring scripts and styles.
func VisibleText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript, template").Remove()
	return doc.Find("body").Text()
}
