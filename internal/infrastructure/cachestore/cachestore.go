// Package cachestore persists upstream API payloads in SQLite, keyed by
// request fingerprint. Lookups never fail the caller: a broken read counts
// as a miss and a broken write is logged and dropped.
package cachestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tahminlab/matchcast/internal/observability"
	"github.com/tahminlab/matchcast/internal/platform/cachekey"
	"github.com/tahminlab/matchcast/internal/platform/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	fingerprint TEXT PRIMARY KEY,
	category    TEXT NOT NULL,
	payload     BLOB NOT NULL,
	created_at  INTEGER NOT NULL,
	expires_at  INTEGER NOT NULL,
	hit_count   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_category ON cache_entries (category);
CREATE INDEX IF NOT EXISTS idx_cache_entries_expires ON cache_entries (expires_at);

CREATE TABLE IF NOT EXISTS cache_stats (
	day      TEXT NOT NULL,
	category TEXT NOT NULL,
	hits     INTEGER NOT NULL DEFAULT 0,
	misses   INTEGER NOT NULL DEFAULT 0,
	saves    INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (day, category)
);`

// DayStats is one day's counters for a category.
type DayStats struct {
	Day      string `db:"day" json:"day"`
	Category string `db:"category" json:"category"`
	Hits     int64  `db:"hits" json:"hits"`
	Misses   int64  `db:"misses" json:"misses"`
	Saves    int64  `db:"saves" json:"saves"`
}

// HitRate is hits over lookups, 0 when the day saw no lookups.
func (s DayStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type Store struct {
	db      *sqlx.DB
	ttls    map[string]time.Duration
	logger  *logging.Logger
	metrics *observability.Metrics

	now func() time.Time
}

// Open opens (creating if needed) the cache database at path.
func Open(path string, ttls map[string]time.Duration, logger *logging.Logger, metrics *observability.Metrics) (*Store, error) {
	if logger == nil {
		logger = logging.Default()
	}

	db, err := sqlx.Connect("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply cache schema: %w", err)
	}

	return &Store{
		db:      db,
		ttls:    ttls,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// TTL returns the configured lifetime for a category, one hour when the
// category has no explicit TTL.
func (s *Store) TTL(category string) time.Duration {
	if ttl, ok := s.ttls[category]; ok {
		return ttl
	}
	return time.Hour
}

// Lookup returns the cached payload for (category, kwargs) when a fresh
// entry exists. Expired rows are deleted on the way out and count as misses.
func (s *Store) Lookup(ctx context.Context, category string, kwargs map[string]string) ([]byte, bool) {
	fingerprint := cachekey.Fingerprint(category, kwargs)
	now := s.now().UTC()

	var row struct {
		Payload   []byte `db:"payload"`
		ExpiresAt int64  `db:"expires_at"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT payload, expires_at FROM cache_entries WHERE fingerprint = ?`, fingerprint)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.recordLookup(ctx, category, "miss", now)
		return nil, false
	case err != nil:
		s.logger.Warn("cache read failed, treating as miss", "category", category, "error", err)
		s.recordLookup(ctx, category, "miss", now)
		return nil, false
	}

	if row.ExpiresAt <= now.Unix() {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM cache_entries WHERE fingerprint = ?`, fingerprint); err != nil {
			s.logger.Warn("cache expiry delete failed", "category", category, "error", err)
		}
		s.recordLookup(ctx, category, "expired", now)
		return nil, false
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE cache_entries SET hit_count = hit_count + 1 WHERE fingerprint = ?`, fingerprint); err != nil {
		s.logger.Warn("cache hit count update failed", "category", category, "error", err)
	}
	s.recordLookup(ctx, category, "hit", now)

	return row.Payload, true
}

// Save stores a payload under (category, kwargs) with the category's TTL.
// Failures are logged and swallowed so a broken cache never blocks a
// prediction.
func (s *Store) Save(ctx context.Context, category string, kwargs map[string]string, payload []byte) {
	fingerprint := cachekey.Fingerprint(category, kwargs)
	now := s.now().UTC()
	expiresAt := now.Add(s.TTL(category))

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (fingerprint, category, payload, created_at, expires_at, hit_count)
		VALUES (?, ?, ?, ?, ?, 0)
		ON CONFLICT (fingerprint) DO UPDATE SET
			payload = excluded.payload,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			hit_count = 0`,
		fingerprint, category, payload, now.Unix(), expiresAt.Unix())
	if err != nil {
		s.logger.Warn("cache write failed, dropping payload", "category", category, "error", err)
		return
	}

	s.bumpStat(ctx, category, "saves", now)
}

// Invalidate drops every entry of a category, returning the number of rows
// removed. Long-lived categories rely on this when the data behind them is
// rebuilt.
func (s *Store) Invalidate(ctx context.Context, category string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE category = ?`, category)
	if err != nil {
		return 0, fmt.Errorf("invalidate cache category %s: %w", category, err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected invalidate: %w", err)
	}
	return removed, nil
}

// InvalidateKey drops the single entry for (category, kwargs). Removing a
// missing entry is not an error.
func (s *Store) InvalidateKey(ctx context.Context, category string, kwargs map[string]string) error {
	fingerprint := cachekey.Fingerprint(category, kwargs)
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE fingerprint = ?`, fingerprint); err != nil {
		return fmt.Errorf("invalidate cache entry %s: %w", category, err)
	}
	return nil
}

// PurgeExpired removes all rows past their expiry.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at <= ?`, s.now().UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("purge expired cache entries: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected purge: %w", err)
	}
	return removed, nil
}

// StatsForDay returns per-category counters for a UTC day ("2006-01-02").
func (s *Store) StatsForDay(ctx context.Context, day string) ([]DayStats, error) {
	var out []DayStats
	err := s.db.SelectContext(ctx, &out,
		`SELECT day, category, hits, misses, saves FROM cache_stats WHERE day = ? ORDER BY category`, day)
	if err != nil {
		return nil, fmt.Errorf("select cache stats: %w", err)
	}
	return out, nil
}

// TodayStats returns counters for the current UTC day.
func (s *Store) TodayStats(ctx context.Context) ([]DayStats, error) {
	return s.StatsForDay(ctx, s.now().UTC().Format("2006-01-02"))
}

func (s *Store) recordLookup(ctx context.Context, category, result string, now time.Time) {
	if s.metrics != nil {
		s.metrics.RecordCacheLookup(category, result)
	}
	column := "misses"
	if result == "hit" {
		column = "hits"
	}
	s.bumpStat(ctx, category, column, now)
}

func (s *Store) bumpStat(ctx context.Context, category, column string, now time.Time) {
	// column is one of hits, misses, saves; never user input.
	query := fmt.Sprintf(`
		INSERT INTO cache_stats (day, category, %[1]s) VALUES (?, ?, 1)
		ON CONFLICT (day, category) DO UPDATE SET %[1]s = %[1]s + 1`, column)
	if _, err := s.db.ExecContext(ctx, query, now.Format("2006-01-02"), category); err != nil {
		s.logger.Warn("cache stat update failed", "category", category, "column", column, "error", err)
	}
}
