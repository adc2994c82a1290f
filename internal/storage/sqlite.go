package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pauljones0/flipscout/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS seen_listings (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	price         INTEGER NOT NULL,
	url           TEXT NOT NULL,
	source        TEXT NOT NULL,
	first_seen_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_seen_listings_first_seen_at ON seen_listings (first_seen_at);`

// SQLite is the single-file seen-set used when running on one machine.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY between our own goroutines.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	slog.Info("Seen-set opened", "backend", "sqlite", "path", path)
	return &SQLite{db: db}, nil
}

func (s *SQLite) IsSeen(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM seen_listings WHERE id = ?`, id).Scan(&one)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, fmt.Errorf("check seen %s: %w", id, err)
	}
	return true, nil
}

func (s *SQLite) MarkSeen(ctx context.Context, rec models.SeenRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_listings (id, title, price, url, source, first_seen_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Title, rec.Price, rec.URL, rec.Source, rec.FirstSeenAt.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("mark seen %s: %w", rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark seen %s: %w", rec.ID, err)
	}
	return n == 1, nil
}

func (s *SQLite) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM seen_listings WHERE first_seen_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("purge seen listings: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLite) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM seen_listings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count seen listings: %w", err)
	}
	return n, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
