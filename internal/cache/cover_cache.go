package cache

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// CoverCache persists downloaded album art across runs, keyed by URL.
// A whole library ripped from one album would otherwise re-download the
// same image once per track.
type CoverCache struct {
	db  *sql.DB
	ttl time.Duration
	mu  sync.Mutex
}

// OpenCoverCache opens (and if needed creates) the cache database at path.
func OpenCoverCache(path string, ttl time.Duration) (*CoverCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cover cache: %w", err)
	}

	const schema = `CREATE TABLE IF NOT EXISTS covers (
		url        TEXT PRIMARY KEY,
		data       BLOB NOT NULL,
		created_at INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init cover cache schema: %w", err)
	}

	c := &CoverCache{db: db, ttl: ttl}
	c.pruneExpired()
	return c, nil
}

func (c *CoverCache) Get(url string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var data []byte
	var createdAt int64
	err := c.db.QueryRow(
		"SELECT data, created_at FROM covers WHERE url = ?", url,
	).Scan(&data, &createdAt)
	if err != nil {
		return nil, false
	}
	if time.Since(time.Unix(createdAt, 0)) > c.ttl {
		_, _ = c.db.Exec("DELETE FROM covers WHERE url = ?", url)
		return nil, false
	}
	return data, true
}

func (c *CoverCache) Put(url string, data []byte) {
	if len(data) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	_, _ = c.db.Exec(
		"INSERT OR REPLACE INTO covers (url, data, created_at) VALUES (?, ?, ?)",
		url, data, time.Now().Unix())
}

func (c *CoverCache) pruneExpired() {
	cutoff := time.Now().Add(-c.ttl).Unix()
	_, _ = c.db.Exec("DELETE FROM covers WHERE created_at < ?", cutoff)
}

func (c *CoverCache) Close() error {
	return c.db.Close()
}
