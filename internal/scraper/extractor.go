package scraper

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/pauljones0/flipscout/internal/models"
	"github.com/pauljones0/flipscout/internal/util"
	"github.com/pauljones0/flipscout/internal/validator"
)

const (
	minTitleLength    = 5
	maxAncestorClimbs = 4
)

// Strategy is one self-contained attempt at mapping page markup to listings.
type Strategy struct {
	Name    string
	Extract func(doc *goquery.Document) []models.Listing
}

// Extractor turns a rendered result page into listings. It performs no I/O.
type Extractor struct {
	base       *url.URL
	source     string
	selectors  SelectorConfig
	validator  *validator.Validator
	strategies []Strategy
}

func New(marketplaceURL, source string, selectors SelectorConfig) (*Extractor, error) {
	base, err := url.Parse(marketplaceURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid marketplace URL %q", marketplaceURL)
	}
	e := &Extractor{
		base:      base,
		source:    source,
		selectors: selectors,
		validator: validator.New(),
	}
	// Most specific first; the text-pattern scan only runs when the rest find nothing.
	e.strategies = []Strategy{
		{Name: "structured", Extract: e.structured},
		{Name: "jsonld", Extract: e.jsonLD},
		{Name: "heuristic", Extract: e.heuristic},
		{Name: "textpattern", Extract: e.textPattern},
	}
	return e, nil
}

// Strategies lists strategy names in the order they are tried.
func (e *Extractor) Strategies() []string {
	names := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		names[i] = s.Name
	}
	return names
}

// Extract returns the listings found by the first strategy that yields any
// well-formed listing. Content no strategy understands yields nil.
func (e *Extractor) Extract(content string) []models.Listing {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		slog.Warn("Failed to parse page content", "error", err)
		return nil
	}

	for _, s := range e.strategies {
		listings := s.Extract(doc)
		if len(listings) > 0 {
			slog.Debug("Extraction strategy matched", "strategy", s.Name, "listings", len(listings))
			return listings
		}
		slog.Debug("Extraction strategy found nothing, falling back", "strategy", s.Name)
	}
	return nil
}

// fields is the raw material a strategy scraped from one container.
type fields struct {
	title     string
	price     int
	priceText string
	href      string
	location  string
	image     string
}

// build normalizes raw fields into a listing and reports whether it is well-formed.
func (e *Extractor) build(f fields) (models.Listing, bool) {
	title := util.CollapseSpace(f.title)
	if utf8.RuneCountInString(title) < minTitleLength {
		return models.Listing{}, false
	}

	price := f.price
	if price <= 0 {
		var ok bool
		if price, ok = ParsePrice(f.priceText); !ok {
			return models.Listing{}, false
		}
	}

	link, ok := e.listingURL(f.href)
	if !ok {
		return models.Listing{}, false
	}

	l := models.Listing{
		ID:       ListingID(link),
		Title:    title,
		Price:    price,
		URL:      link,
		Location: util.CollapseSpace(f.location),
		Image:    e.imageURL(f.image),
		Source:   e.source,
	}
	return l, e.validator.Valid(l)
}

// listingURL canonicalizes href and checks it points at an ad on the marketplace.
func (e *Extractor) listingURL(href string) (string, bool) {
	if href == "" {
		return "", false
	}
	link, err := util.CanonicalURL(e.base, href)
	if err != nil {
		return "", false
	}
	u, err := url.Parse(link)
	if err != nil || !util.SameSite(u.Host, e.base.Host) || !e.isListingPath(u.Path) {
		return "", false
	}
	return link, true
}

func (e *Extractor) isListingPath(path string) bool {
	for _, p := range e.selectors.ListingPaths {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}

func (e *Extractor) imageURL(src string) string {
	src = strings.TrimSpace(src)
	if src == "" || strings.HasPrefix(src, "data:") {
		return ""
	}
	ref, err := url.Parse(src)
	if err != nil {
		return ""
	}
	return e.base.ResolveReference(ref).String()
}

// each parses every container independently. A container that panics or yields a
// partial record is dropped without affecting its siblings.
func (e *Extractor) each(strategy string, containers *goquery.Selection, parse func(*goquery.Selection) fields) []models.Listing {
	var out []models.Listing
	dropped := 0
	containers.Each(func(i int, s *goquery.Selection) {
		l, ok := e.safeBuild(strategy, i, s, parse)
		if !ok {
			dropped++
			return
		}
		out = append(out, l)
	})
	if dropped > 0 {
		slog.Debug("Dropped malformed containers", "strategy", strategy, "dropped", dropped, "kept", len(out))
	}
	return out
}

func (e *Extractor) safeBuild(strategy string, i int, s *goquery.Selection, parse func(*goquery.Selection) fields) (l models.Listing, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("Container parse panicked", "strategy", strategy, "index", i, "panic", r)
			l, ok = models.Listing{}, false
		}
	}()
	return e.build(parse(s))
}

func (e *Extractor) structured(doc *goquery.Document) []models.Listing {
	sel := e.selectors.Structured
	if sel.Container == "" {
		return nil
	}
	return e.each("structured", doc.Find(sel.Container), func(s *goquery.Selection) fields {
		return fields{
			title:     firstText(s, sel.Title),
			priceText: firstText(s, sel.Price),
			href:      e.firstListingHref(s, sel.Link),
			location:  firstText(s, sel.Location),
			image:     firstImage(s, sel.Image),
		}
	})
}

func (e *Extractor) heuristic(doc *goquery.Document) []models.Listing {
	h := e.selectors.Heuristic
	if h.Container == "" {
		return nil
	}
	containers := doc.Find(h.Container).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return !isNoise(util.CollapseSpace(blockText(s)), h.MinTextLength, h.NoiseWords)
	})
	return e.each("heuristic", containers, func(s *goquery.Selection) fields {
		price, _ := nodePrice(s)
		return fields{
			title:     firstText(s, h.Title),
			price:     price,
			priceText: blockText(s),
			href:      e.firstListingHref(s, "a[href]"),
			image:     firstImage(s, "img"),
		}
	})
}

// textPattern is the last resort: every anchor that looks like an ad link, with
// the nearest ancestor carrying a price standing in for the container.
func (e *Extractor) textPattern(doc *goquery.Document) []models.Listing {
	anchors := doc.Find("a[href]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		_, ok := e.listingURL(href)
		return ok
	})

	candidates := e.each("textpattern", anchors, func(a *goquery.Selection) fields {
		container := a
		for i := 0; i < maxAncestorClimbs && !HasPrice(blockText(container)); i++ {
			container = container.Parent()
		}
		href, _ := a.Attr("href")
		title := util.CollapseSpace(a.Text())
		if utf8.RuneCountInString(title) < minTitleLength {
			title = firstText(container, "h1, h2, h3, h4")
		}
		if title == "" {
			title, _ = a.Attr("title")
		}
		price, _ := nodePrice(container)
		return fields{
			title:     title,
			price:     price,
			priceText: blockText(container),
			href:      href,
			image:     firstImage(container, "img"),
		}
	})

	// Ads usually carry several anchors (image and title); keep the first per id.
	seen := make(map[string]bool, len(candidates))
	out := candidates[:0]
	for _, l := range candidates {
		if seen[l.ID] {
			continue
		}
		seen[l.ID] = true
		out = append(out, l)
	}
	return out
}

func isNoise(text string, minLen int, noiseWords []string) bool {
	if utf8.RuneCountInString(text) < minLen {
		return true
	}
	lower := strings.ToLower(text)
	for _, w := range noiseWords {
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

// blockText is the text under s with a space between text nodes. Selection.Text
// glues adjacent elements, so "T480" and "4 500 kr" would read "T4804 500 kr".
func blockText(s *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		case n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style"):
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}

// nodePrice returns the first price found inside a single text node under s, so
// a model number in a neighbouring heading can never merge into the amount.
func nodePrice(s *goquery.Selection) (int, bool) {
	var price int
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.TextNode {
			if p, ok := ParsePrice(n.Data); ok {
				price = p
				return true
			}
			return false
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return false
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	for _, n := range s.Nodes {
		if walk(n) {
			return price, true
		}
	}
	return 0, false
}

// firstText returns the first non-empty text among the elements selector matches under s.
func firstText(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	var text string
	s.Find(selector).EachWithBreak(func(_ int, m *goquery.Selection) bool {
		text = util.CollapseSpace(m.Text())
		return text == ""
	})
	return text
}

func firstImage(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	img := s.Find(selector).First()
	for _, attr := range []string{"src", "data-src"} {
		if v, ok := img.Attr(attr); ok && v != "" && !strings.HasPrefix(v, "data:") {
			return v
		}
	}
	return ""
}

// firstListingHref returns the first href under s, or s itself when it is an anchor,
// that points at an ad.
func (e *Extractor) firstListingHref(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	var found string
	s.Find(selector).AddSelection(s.Filter("a[href]")).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if _, ok := e.listingURL(href); ok {
			found = href
			return false
		}
		return true
	})
	return found
}
