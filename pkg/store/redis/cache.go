// Package redis caches remote mapping service answers in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/rmax-ai/ontoma/pkg/logging"
	"github.com/rmax-ai/ontoma/pkg/lookup"
	"github.com/rmax-ai/ontoma/pkg/provider"
)

const keyPrefix = "ontoma:"

// DefaultTTL bounds how long a service answer is reused.
const DefaultTTL = 24 * time.Hour

// Cache stores fuzzy-match and cross-reference answers, including misses.
// Service failures are never cached. A cache that cannot be reached falls
// through to the wrapped service.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger logrus.FieldLogger
}

// NewCache returns a cache over client. A non-positive ttl uses DefaultTTL.
func NewCache(client *redis.Client, ttl time.Duration, logger logrus.FieldLogger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

// fuzzyEntry is the cached form of a best-match answer.
type fuzzyEntry struct {
	Miss      bool               `json:"miss,omitempty"`
	Candidate provider.Candidate `json:"candidate"`
}

// Matcher wraps next with the cache.
func (c *Cache) Matcher(next provider.FuzzyMatcher) provider.FuzzyMatcher {
	return &cachedMatcher{cache: c, next: next}
}

// CrossReferencer wraps next with the cache.
func (c *Cache) CrossReferencer(next provider.CrossReferencer) provider.CrossReferencer {
	return &cachedCrossReferencer{cache: c, next: next}
}

type cachedMatcher struct {
	cache *Cache
	next  provider.FuzzyMatcher
}

func (m *cachedMatcher) BestMatch(ctx context.Context, ontologies []string, label string) (provider.Candidate, error) {
	key := fuzzyKey(ontologies, label)

	var entry fuzzyEntry
	if m.cache.get(ctx, key, &entry) {
		if entry.Miss {
			return provider.Candidate{}, lookup.ErrNoMatch
		}
		return entry.Candidate, nil
	}

	cand, err := m.next.BestMatch(ctx, ontologies, label)
	switch {
	case err == nil:
		m.cache.set(ctx, key, fuzzyEntry{Candidate: cand})
	case errors.Is(err, lookup.ErrNoMatch):
		m.cache.set(ctx, key, fuzzyEntry{Miss: true})
	}
	return cand, err
}

type cachedCrossReferencer struct {
	cache *Cache
	next  provider.CrossReferencer
}

func (x *cachedCrossReferencer) Map(ctx context.Context, codes []string, sourceSystem, targetSystem string, maxDistance int) (map[string][]provider.CrossReference, error) {
	key := xrefKey(codes, sourceSystem, targetSystem, maxDistance)

	var cached map[string][]provider.CrossReference
	if x.cache.get(ctx, key, &cached) {
		if cached == nil {
			cached = map[string][]provider.CrossReference{}
		}
		return cached, nil
	}

	out, err := x.next.Map(ctx, codes, sourceSystem, targetSystem, maxDistance)
	if err != nil {
		return out, err
	}
	x.cache.set(ctx, key, out)
	return out, nil
}

// get decodes the value at key into dst and reports whether it was a hit.
func (c *Cache) get(ctx context.Context, key string, dst any) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).WithField("key", key).Warn("cache_get_failed")
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("cache_entry_corrupt")
		return false
	}
	return true
}

func (c *Cache) set(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("cache_encode_failed")
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("cache_set_failed")
	}
}

// Flush removes every cached answer.
func (c *Cache) Flush(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to scan cache keys: %w", err)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("failed to delete cache keys: %w", err)
			}
			removed += int(n)
		}
		if next == 0 {
			return removed, nil
		}
		cursor = next
	}
}

func fuzzyKey(ontologies []string, label string) string {
	onts := append([]string(nil), ontologies...)
	sort.Strings(onts)
	return keyPrefix + "fuzzy:" + strings.Join(onts, ",") + ":" + label
}

func xrefKey(codes []string, sourceSystem, targetSystem string, maxDistance int) string {
	sorted := append([]string(nil), codes...)
	sort.Strings(sorted)
	return keyPrefix + "xref:" + sourceSystem + ":" + targetSystem + ":" +
		strconv.Itoa(maxDistance) + ":" + strings.Join(sorted, ",")
}
