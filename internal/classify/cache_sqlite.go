package classify

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/parkpulse/parkpulse/internal/model"
)

// SQLiteCache is a file-backed classification cache for runs without
// Postgres (laptops, one-off backfills).
type SQLiteCache struct {
	db *sql.DB
}

const sqliteCacheMigration = `
CREATE TABLE IF NOT EXISTS classification_cache (
	park_id        INTEGER NOT NULL,
	attraction_id  INTEGER NOT NULL,
	schema_version INTEGER NOT NULL,
	tier           INTEGER NOT NULL,
	confidence     REAL NOT NULL,
	rationale      TEXT,
	cached_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (park_id, attraction_id, schema_version)
);
`

// NewSQLiteCache opens (or creates) a SQLite cache at the given path and
// configures WAL mode.
func NewSQLiteCache(dsn string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "classify: open sqlite cache")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "classify: sqlite exec %s", pragma)
		}
	}
	if _, err := db.Exec(sqliteCacheMigration); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "classify: migrate sqlite cache")
	}
	return &SQLiteCache{db: db}, nil
}

func (c *SQLiteCache) Get(ctx context.Context, key Key, schemaVersion int) (*CacheEntry, error) {
	entry := CacheEntry{Key: key, SchemaVersion: schemaVersion}
	var tier int
	var rationale sql.NullString
	var cachedAt string
	err := c.db.QueryRowContext(ctx,
		`SELECT tier, confidence, rationale, cached_at FROM classification_cache
		 WHERE park_id = ? AND attraction_id = ? AND schema_version = ?`,
		key.ParkID, key.AttractionID, schemaVersion,
	).Scan(&tier, &entry.Confidence, &rationale, &cachedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "classify: sqlite cache lookup for %s", key)
	}

	entry.Tier = model.Tier(tier)
	if !entry.Tier.Valid() {
		return nil, eris.Errorf("classify: sqlite cache row for %s has invalid tier %d", key, tier)
	}
	entry.Rationale = rationale.String
	if t, err := time.Parse("2006-01-02 15:04:05", cachedAt); err == nil {
		entry.CachedAt = t
	}
	return &entry, nil
}

func (c *SQLiteCache) Put(ctx context.Context, entry CacheEntry) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO classification_cache
		 (park_id, attraction_id, schema_version, tier, confidence, rationale, cached_at)
		 VALUES (?, ?, ?, ?, ?, ?, datetime('now'))
		 ON CONFLICT (park_id, attraction_id, schema_version)
		 DO UPDATE SET tier = excluded.tier, confidence = excluded.confidence,
		               rationale = excluded.rationale, cached_at = datetime('now')`,
		entry.Key.ParkID, entry.Key.AttractionID, entry.SchemaVersion,
		int(entry.Tier), entry.Confidence, entry.Rationale,
	)
	if err != nil {
		return eris.Wrapf(err, "classify: sqlite cache put for %s", entry.Key)
	}
	return nil
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
