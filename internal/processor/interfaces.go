package processor

import (
	"context"
	"time"

	"github.com/pauljones0/flipscout/internal/models"
)

// SeenStore abstracts the durable seen-set.
type SeenStore interface {
	IsSeen(ctx context.Context, id string) (bool, error)
	MarkSeen(ctx context.Context, rec models.SeenRecord) (bool, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// PageFetcher returns the rendered markup of one search result page.
type PageFetcher interface {
	Fetch(ctx context.Context, searchURL string, page int) (string, error)
}

// ListingExtractor turns page markup into candidate listings.
type ListingExtractor interface {
	Extract(content string) []models.Listing
}

// Evaluator judges a single listing.
type Evaluator interface {
	Evaluate(ctx context.Context, l models.Listing) (models.Verdict, error)
}

// ListingNotifier abstracts the notification layer.
type ListingNotifier interface {
	Send(ctx context.Context, l models.Listing, v models.Verdict) error
	SendSummary(ctx context.Context, s models.RunSummary) error
}
