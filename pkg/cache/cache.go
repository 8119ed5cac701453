// Package cache implements the content-addressed result cache (L6):
// CacheGet/CachePut keyed by (tool, sha256(canonical_json(args))), backed by
// the shared SQLite store's tool_cache table, per spec.md §4.4.
//
// Canonical JSON (object keys sorted recursively before hashing) is
// grounded on the teacher's cache-key helpers in pkg/memory — same
// approach of normalizing before hashing so semantically identical args in
// different key order hit the same entry.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wjabrac/agentrun/pkg/metrics"
	"github.com/wjabrac/agentrun/pkg/store"
)

// Cache is the process-wide result cache singleton.
type Cache struct {
	store   *store.Store
	metrics *metrics.Registry
}

// New wraps a shared *store.Store as a result Cache.
func New(s *store.Store, m *metrics.Registry) *Cache {
	return &Cache{store: s, metrics: m}
}

// ArgsHash computes sha256(canonical_json(args)) hex-encoded — the second
// half of a cache key, per spec.md §4.4.
func ArgsHash(args map[string]any) (string, error) {
	canon, err := canonicalJSON(args)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

func cacheKey(tool, argsHash string) string {
	return tool + ":" + argsHash
}

// Get returns the cached value for (tool, argsHash), or ok=false if absent
// or expired. An expired entry is deleted lazily on read, per spec.md §4.4.
func (c *Cache) Get(ctx context.Context, tool, argsHash string) (map[string]any, bool, error) {
	key := cacheKey(tool, argsHash)

	var value string
	var ttlS int
	var createdAt time.Time
	err := c.store.DB().QueryRowContext(ctx,
		`SELECT value, ttl_s, created_at FROM tool_cache WHERE cache_key = ?`, key,
	).Scan(&value, &ttlS, &createdAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get: %w", err)
	}

	if ttlS > 0 && time.Since(createdAt) > time.Duration(ttlS)*time.Second {
		_, _ = c.store.DB().ExecContext(ctx, `DELETE FROM tool_cache WHERE cache_key = ?`, key)
		return nil, false, nil
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(value), &out); err != nil {
		return nil, false, fmt.Errorf("cache: decode: %w", err)
	}
	if c.metrics != nil {
		c.metrics.RecordCacheHit(tool)
	}
	return out, true, nil
}

// Put replaces (or inserts) the cache entry for (tool, argsHash). ttlS must
// be > 0 — callers are responsible for skipping Put entirely when
// ttlS == 0, per spec.md §4.4's "do not cache" rule.
func (c *Cache) Put(ctx context.Context, tool, argsHash string, value map[string]any, ttlS int) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal: %w", err)
	}
	key := cacheKey(tool, argsHash)
	_, err = c.store.DB().ExecContext(ctx,
		`INSERT INTO tool_cache (cache_key, tool, args_hash, value, ttl_s, created_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET value = excluded.value, ttl_s = excluded.ttl_s, created_at = excluded.created_at`,
		key, tool, argsHash, string(data), ttlS, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("cache: put: %w", err)
	}
	return nil
}

// canonicalJSON marshals v for hashing. encoding/json already serializes
// map[string]any keys in sorted order, so two maps differing only in
// construction order produce identical bytes without any extra
// normalization pass.
func canonicalJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}
