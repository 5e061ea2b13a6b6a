// Package cache implements the edge cache (§4.1): a uniform key-value view
// over per-edge quotes with per-quote TTL, batched writes and pattern scans.
// It also hosts the key families used by the quote-deposit-execution
// pipeline, since both share the same backing KeyValueStore.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/plm/liquidity-mesh-router/routing/model"
)

// KeyValueStore is the external collaborator interface from §6: string keys
// and values, per-key TTL, atomic primitives, pipelined multi-write and
// cursor-based scan with a linear KEYS fallback.
type KeyValueStore interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, bool, error)
	Del(ctx context.Context, keys ...string) error
	MGet(ctx context.Context, keys ...string) ([]string, error)
	SetBatch(ctx context.Context, items map[string]string, ttl time.Duration) error
	ScanPrefix(ctx context.Context, prefix string) ([]string, error)
}

// RedisStore is the production KeyValueStore backed by go-redis.
type RedisStore struct {
	rdb redis.UniversalClient
}

// NewRedisStore wraps an already-connected Redis client.
func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

func (s *RedisStore) MGet(ctx context.Context, keys ...string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	raw, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(raw))
	for i, v := range raw {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			out[i] = s
		}
	}
	return out, nil
}

// SetBatch writes multiple key/value pairs with a shared TTL using a
// pipeline, per §4.1's "pipelined multi-write" requirement.
func (s *RedisStore) SetBatch(ctx context.Context, items map[string]string, ttl time.Duration) error {
	if len(items) == 0 {
		return nil
	}
	pipe := s.rdb.Pipeline()
	for k, v := range items {
		pipe.Set(ctx, k, v, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// ScanPrefix returns every key under the given prefix using a non-blocking
// cursor-based SCAN, falling back to KEYS if SCAN returns any error (e.g.
// against a minimal test double).
func (s *RedisStore) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.rdb.Scan(ctx, cursor, prefix+"*", 200).Result()
		if err != nil {
			return s.rdb.Keys(ctx, prefix+"*").Result()
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// EdgeCache is the §4.1 edge cache: quotes keyed by the OTC and DEX key
// families, with TTL derived from each quote's own expiry.
type EdgeCache struct {
	store KeyValueStore
}

// NewEdgeCache builds an edge cache over the given KeyValueStore.
func NewEdgeCache(store KeyValueStore) *EdgeCache {
	return &EdgeCache{store: store}
}

// otcKey is the key family for OTC edges.
func otcKey(from, to, venueID string) string {
	return fmt.Sprintf("otc:quotes:%s:%s:%s", from, to, venueID)
}

// dexKey is the key family for DEX edges. "solana" is a design-time
// namespace literal, not a runtime dimension (§4.1).
func dexKey(from, to, venueID string) string {
	return fmt.Sprintf("routing:edge:solana:%s:%s:%s", from, to, venueID)
}

func keyFor(q *model.EdgeQuote) string {
	if q.VenueKind == model.VenueDEX {
		return dexKey(q.FromToken, q.ToToken, q.VenueID)
	}
	return otcKey(q.FromToken, q.ToToken, q.VenueID)
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

// PutQuote computes TTL as max(1s, expiryTs-now) and stores the JSON-encoded
// quote.
func (c *EdgeCache) PutQuote(ctx context.Context, q *model.EdgeQuote) error {
	if err := q.Valid(); err != nil {
		return errors.Wrap(err, "edge cache: refusing to store invalid quote")
	}
	ttl := time.Duration(q.ExpiryTs-nowMs()) * time.Millisecond
	if ttl < time.Second {
		ttl = time.Second
	}
	data, err := json.Marshal(q)
	if err != nil {
		return errors.Wrap(err, "edge cache: marshal quote")
	}
	return c.store.Set(ctx, keyFor(q), string(data), ttl)
}

// PutQuoteBatch writes every quote with a pipelined multi-write, each under
// its own TTL.
func (c *EdgeCache) PutQuoteBatch(ctx context.Context, quotes []*model.EdgeQuote) error {
	if len(quotes) == 0 {
		return nil
	}
	// quotes in the same batch can have different TTLs; SetBatch shares one
	// TTL per call, so group by whole-second (truncated) TTL to keep this a small
	// number of pipelined calls rather than one SET per quote.
	groups := make(map[int64]map[string]string)
	for _, q := range quotes {
		if err := q.Valid(); err != nil {
			log.Printf("⚠️  edge cache: skipping invalid quote in batch: %v", err)
			continue
		}
		ttlSec := (q.ExpiryTs - nowMs()) / 1000
		if ttlSec < 1 {
			ttlSec = 1
		}
		data, err := json.Marshal(q)
		if err != nil {
			log.Printf("⚠️  edge cache: skipping unmarshalable quote in batch: %v", err)
			continue
		}
		g, ok := groups[ttlSec]
		if !ok {
			g = make(map[string]string)
			groups[ttlSec] = g
		}
		g[keyFor(q)] = string(data)
	}
	for ttlSec, items := range groups {
		if err := c.store.SetBatch(ctx, items, time.Duration(ttlSec)*time.Second); err != nil {
			return errors.Wrap(err, "edge cache: batch write")
		}
	}
	return nil
}

// ScanByPair returns every key under both families for (from,to).
func (c *EdgeCache) ScanByPair(ctx context.Context, from, to string) ([]string, error) {
	otcKeys, err := c.store.ScanPrefix(ctx, fmt.Sprintf("otc:quotes:%s:%s:", from, to))
	if err != nil {
		return nil, errors.Wrap(err, "edge cache: scan otc keys")
	}
	dexKeys, err := c.store.ScanPrefix(ctx, fmt.Sprintf("routing:edge:solana:%s:%s:", from, to))
	if err != nil {
		return nil, errors.Wrap(err, "edge cache: scan dex keys")
	}
	return append(otcKeys, dexKeys...), nil
}

// GetCachedByPair parses and returns the live quotes cached for (from,to).
// Records that fail to parse are dropped with a warning, not propagated as
// an error.
func (c *EdgeCache) GetCachedByPair(ctx context.Context, from, to string) ([]*model.EdgeQuote, error) {
	keys, err := c.ScanByPair(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	values, err := c.store.MGet(ctx, keys...)
	if err != nil {
		return nil, errors.Wrap(err, "edge cache: mget")
	}
	now := nowMs()
	var quotes []*model.EdgeQuote
	for i, v := range values {
		if v == "" {
			continue
		}
		var q model.EdgeQuote
		if err := json.Unmarshal([]byte(v), &q); err != nil {
			log.Printf("⚠️  edge cache: dropping unparsable record at %s: %v", keys[i], err)
			continue
		}
		if q.ExpiryTs <= now {
			continue
		}
		quotes = append(quotes, &q)
	}
	return quotes, nil
}
