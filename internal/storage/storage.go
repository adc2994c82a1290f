// Package storage persists the seen-set: the ids of listings that were already
// accepted, so a listing is evaluated and announced at most once.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pauljones0/flipscout/internal/config"
	"github.com/pauljones0/flipscout/internal/models"
)

const seenCollection = "seen_listings"

// ErrUnknownBackend is returned for a STORE_BACKEND with no implementation.
var ErrUnknownBackend = errors.New("unknown store backend")

// Store is a durable set of listing ids with first-seen timestamps.
type Store interface {
	IsSeen(ctx context.Context, id string) (bool, error)
	// MarkSeen records rec unless its id is already present. It reports whether
	// this call inserted the row; false means another writer got there first.
	MarkSeen(ctx context.Context, rec models.SeenRecord) (bool, error)
	// PurgeOlderThan deletes rows first seen before cutoff and returns how many.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}

// New opens the store selected by cfg.StoreBackend.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StoreBackend {
	case "sqlite":
		return NewSQLite(ctx, cfg.DatabasePath)
	case "firestore":
		return NewFirestore(ctx, cfg.ProjectID)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.StoreBackend)
	}
}
