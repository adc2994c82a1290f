package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pauljones0/flipscout/internal/models"
)

// FilterStats counts why candidates were dropped.
type FilterStats struct {
	Candidates  int
	Duplicates  int
	AlreadySeen int
	Rejected    int
	LostRace    int
	Accepted    int
}

// Filter reduces a page of candidates to listings that are new and match the
// search. Accepted listings are recorded in the store before Filter returns, so
// nothing is announced twice even if a later step fails. Order is preserved.
func Filter(ctx context.Context, candidates []models.Listing, spec models.SearchSpec, store SeenStore, now time.Time) ([]models.Listing, FilterStats, error) {
	stats := FilterStats{Candidates: len(candidates)}
	batch := make(map[string]bool, len(candidates))
	var accepted []models.Listing

	for _, l := range candidates {
		if batch[l.ID] {
			stats.Duplicates++
			continue
		}
		batch[l.ID] = true

		seen, err := store.IsSeen(ctx, l.ID)
		if err != nil {
			return nil, stats, fmt.Errorf("seen check for %s: %w", l.ID, err)
		}
		if seen {
			stats.AlreadySeen++
			continue
		}

		if !spec.Accepts(l) {
			stats.Rejected++
			continue
		}

		inserted, err := store.MarkSeen(ctx, models.NewSeenRecord(l, now))
		if err != nil {
			return nil, stats, fmt.Errorf("record %s: %w", l.ID, err)
		}
		if !inserted {
			slog.Debug("Listing recorded concurrently, skipping", "id", l.ID)
			stats.LostRace++
			continue
		}
		accepted = append(accepted, l)
	}

	stats.Accepted = len(accepted)
	return accepted, stats, nil
}
