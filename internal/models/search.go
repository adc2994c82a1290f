package models

import (
	"strings"
)

// SearchSpec is one configured marketplace search.
type SearchSpec struct {
	Name         string   `json:"name" validate:"required"`
	Query        string   `json:"query"`
	CategoryPath string   `json:"category_path" validate:"required_without=Query"`
	MinPrice     int      `json:"min_price" validate:"gte=0"`
	MaxPrice     int      `json:"max_price" validate:"gt=0,gtefield=MinPrice"`
	MaxPages     int      `json:"max_pages" validate:"gte=1"`
	Keywords     []string `json:"keywords"`
}

// Accepts reports whether a listing passes the search's price window and keyword set.
// An empty keyword set accepts on price alone.
func (s SearchSpec) Accepts(l Listing) bool {
	if l.Price < s.MinPrice || l.Price > s.MaxPrice {
		return false
	}
	if len(s.Keywords) == 0 {
		return true
	}
	title := strings.ToLower(l.Title)
	for _, kw := range s.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(title, kw) {
			return true
		}
	}
	return false
}

// ReferencePrice is a conservative resale value for hardware whose title contains Keyword.
type ReferencePrice struct {
	Keyword string `json:"keyword" validate:"required"`
	Value   int    `json:"value" validate:"gt=0"`
}
