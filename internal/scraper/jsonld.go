package scraper

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pauljones0/flipscout/internal/models"
)

// jsonLDNode covers the subset of schema.org the marketplace embeds for SEO:
// an ItemList of ListItems wrapping Products with an Offer, possibly inside @graph.
type jsonLDNode struct {
	Name            string          `json:"name"`
	URL             string          `json:"url"`
	Image           json.RawMessage `json:"image"`
	Offers          json.RawMessage `json:"offers"`
	Item            json.RawMessage `json:"item"`
	ItemListElement []jsonLDNode    `json:"itemListElement"`
	Graph           []jsonLDNode    `json:"@graph"`
}

type jsonLDOffer struct {
	Price             json.RawMessage `json:"price"`
	PriceCurrency     string          `json:"priceCurrency"`
	AvailableAtOrFrom *struct {
		Address struct {
			AddressLocality string `json:"addressLocality"`
		} `json:"address"`
	} `json:"availableAtOrFrom"`
}

func (e *Extractor) jsonLD(doc *goquery.Document) []models.Listing {
	var nodes []jsonLDNode
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		nodes = append(nodes, decodeJSONLD([]byte(s.Text()))...)
	})
	if len(nodes) == 0 {
		return nil
	}

	var products []jsonLDNode
	for _, n := range nodes {
		collectProducts(n, &products, 0)
	}

	var out []models.Listing
	for _, p := range products {
		offer := firstOffer(p.Offers)
		f := fields{
			title: p.Name,
			price: offerPrice(offer),
			href:  p.URL,
			image: firstJSONLDImage(p.Image),
		}
		if offer.AvailableAtOrFrom != nil {
			f.location = offer.AvailableAtOrFrom.Address.AddressLocality
		}
		if l, ok := e.build(f); ok {
			out = append(out, l)
		}
	}
	return out
}

// decodeJSONLD accepts either a single object or a top-level array. Broken
// payloads are ignored; pages routinely embed JSON-LD unrelated to listings.
func decodeJSONLD(raw []byte) []jsonLDNode {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	if raw[0] == '[' {
		var many []jsonLDNode
		if json.Unmarshal(raw, &many) != nil {
			return nil
		}
		return many
	}
	var one jsonLDNode
	if json.Unmarshal(raw, &one) != nil {
		return nil
	}
	return []jsonLDNode{one}
}

func collectProducts(n jsonLDNode, out *[]jsonLDNode, depth int) {
	if depth > 4 {
		return
	}
	if n.Name != "" && n.URL != "" && len(n.Offers) > 0 {
		*out = append(*out, n)
	}
	// ListItem.item may be a bare URL string; only objects can hold a product.
	if item := bytes.TrimSpace(n.Item); len(item) > 0 && item[0] == '{' {
		var child jsonLDNode
		if json.Unmarshal(item, &child) == nil {
			collectProducts(child, out, depth+1)
		}
	}
	for _, child := range n.ItemListElement {
		collectProducts(child, out, depth+1)
	}
	for _, child := range n.Graph {
		collectProducts(child, out, depth+1)
	}
}

func firstOffer(raw json.RawMessage) jsonLDOffer {
	raw = bytes.TrimSpace(raw)
	var offer jsonLDOffer
	if len(raw) == 0 {
		return offer
	}
	if raw[0] == '[' {
		var offers []jsonLDOffer
		if json.Unmarshal(raw, &offers) == nil && len(offers) > 0 {
			return offers[0]
		}
		return offer
	}
	_ = json.Unmarshal(raw, &offer)
	return offer
}

// offerPrice reads price given as a number or a numeric string.
func offerPrice(o jsonLDOffer) int {
	raw := strings.Trim(strings.TrimSpace(string(o.Price)), `"`)
	if raw == "" {
		return 0
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(raw, " ", ""), 64)
	if err != nil || f <= 0 || f > math.MaxInt32 {
		return 0
	}
	return int(math.Round(f))
}

func firstJSONLDImage(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil && len(list) > 0 {
		return list[0]
	}
	var obj struct {
		URL string `json:"url"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return obj.URL
	}
	return ""
}
