package concept

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// ClosureCache keeps expanded closures in Redis, keyed by the seed id set and
// the separation limit. The underlying relation is immutable for the process
// lifetime, so entries never need invalidation beyond their TTL. Cache
// failures degrade to a store lookup and are never surfaced to callers.
type ClosureCache struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewClosureCache creates a cache around an existing Redis client.
func NewClosureCache(client *redis.Client, ttl time.Duration, log zerolog.Logger) *ClosureCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ClosureCache{client: client, ttl: ttl, log: log}
}

func closureKey(seedIDs []int64, maxSeparation int) string {
	sorted := make([]int64, len(seedIDs))
	copy(sorted, seedIDs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("closure:v1:%s:%d", strings.Join(parts, ","), maxSeparation)
}

// Get returns the cached closure for the seed set, if present.
func (c *ClosureCache) Get(ctx context.Context, seedIDs []int64, maxSeparation int) (*Closure, bool) {
	data, err := c.client.Get(ctx, closureKey(seedIDs, maxSeparation)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("closure cache get failed")
		return nil, false
	}

	var cl Closure
	if err := json.Unmarshal(data, &cl); err != nil {
		c.log.Warn().Err(err).Msg("closure cache entry corrupt")
		return nil, false
	}
	return &cl, true
}

// Put stores the closure for the seed set.
func (c *ClosureCache) Put(ctx context.Context, seedIDs []int64, maxSeparation int, cl *Closure) {
	data, err := json.Marshal(cl)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, closureKey(seedIDs, maxSeparation), data, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("closure cache put failed")
	}
}
