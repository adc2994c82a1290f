package models

import (
	"time"
)

// SourceBlocket tags listings scraped from blocket.se.
const SourceBlocket = "blocket"

// Listing represents one marketplace advertisement normalized from a search result page.
type Listing struct {
	ID        string `json:"id" validate:"required,numeric"`
	Title     string `json:"title" validate:"required,min=5"`
	Price     int    `json:"price" validate:"gt=0"`
	URL       string `json:"url" validate:"required,url"`
	Location  string `json:"location,omitempty"`
	Image     string `json:"image,omitempty" validate:"omitempty,url"`
	Source    string `json:"source" validate:"required"`
	SearchTag string `json:"search_tag,omitempty"`
}

// SeenRecord is the durable dedup entry written the first time a listing is accepted.
type SeenRecord struct {
	ID          string    `firestore:"id" db:"id"`
	Title       string    `firestore:"title" db:"title"`
	Price       int       `firestore:"price" db:"price"`
	URL         string    `firestore:"url" db:"url"`
	Source      string    `firestore:"source" db:"source"`
	FirstSeenAt time.Time `firestore:"firstSeenAt" db:"first_seen_at"`
}

// NewSeenRecord builds the seen-set row for an accepted listing.
func NewSeenRecord(l Listing, now time.Time) SeenRecord {
	return SeenRecord{
		ID:          l.ID,
		Title:       l.Title,
		Price:       l.Price,
		URL:         l.URL,
		Source:      l.Source,
		FirstSeenAt: now.UTC(),
	}
}
