package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pauljones0/flipscout/internal/models"
	"github.com/pauljones0/flipscout/internal/util"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS seen_listings (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	price         INTEGER NOT NULL,
	url           TEXT NOT NULL,
	source        TEXT NOT NULL,
	first_seen_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_seen_listings_first_seen_at ON seen_listings (first_seen_at);`

// Postgres shares one seen-set between several scanner instances.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	err = util.RetryWithBackoff(ctx, 3, time.Second, func(attempt int) error {
		if err := pool.Ping(ctx); err != nil {
			slog.Warn("Postgres not reachable yet", "attempt", attempt+1, "error", err)
			return err
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create postgres schema: %w", err)
	}
	slog.Info("Seen-set opened", "backend", "postgres")
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) IsSeen(ctx context.Context, id string) (bool, error) {
	var seen bool
	err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM seen_listings WHERE id = $1)`, id).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("check seen %s: %w", id, err)
	}
	return seen, nil
}

func (p *Postgres) MarkSeen(ctx context.Context, rec models.SeenRecord) (bool, error) {
	tag, err := p.pool.Exec(ctx,
		`INSERT INTO seen_listings (id, title, price, url, source, first_seen_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.Title, rec.Price, rec.URL, rec.Source, rec.FirstSeenAt,
	)
	if err != nil {
		return false, fmt.Errorf("mark seen %s: %w", rec.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM seen_listings WHERE first_seen_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge seen listings: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM seen_listings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count seen listings: %w", err)
	}
	return n, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
