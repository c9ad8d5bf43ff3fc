package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/redcentre/carbonsvc/internal/store"
)

// DefaultSliding is the default sliding expiration of cached session state.
const DefaultSliding = 60 * time.Second

// CacheStats holds the counters of the in-memory tier.
type CacheStats struct {
	Entries    int    `json:"entries"`
	Insertions uint64 `json:"insertions"`
	Hits       uint64 `json:"hits"`
	Misses     uint64 `json:"misses"`
	Evictions  uint64 `json:"evictions"`
}

// Cache saves and loads session engine state. Every access to an entry
// refreshes its expiration; a miss is served from the durable store and seeds
// the memory tier again. It is safe for concurrent use. Writes for one session
// are expected to be serialized by the caller.
type Cache struct {
	store  store.StateStore
	items  *ttlcache.Cache[string, []string]
	logger *slog.Logger
}

// NewCache creates a cache over st. A non-positive sliding selects DefaultSliding.
func NewCache(st store.StateStore, sliding time.Duration, logger *slog.Logger) *Cache {
	if sliding <= 0 {
		sliding = DefaultSliding
	}
	items := ttlcache.New[string, []string](
		ttlcache.WithTTL[string, []string](sliding),
	)
	items.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, []string]) {
		cacheEvictionsTotal.WithLabelValues(evictionReason(reason)).Inc()
		logger.Debug("session state evicted", "session_id", item.Key(), "reason", evictionReason(reason))
	})
	return &Cache{store: st, items: items, logger: logger}
}

// Start runs the expiry loop until Stop is called. It blocks.
func (c *Cache) Start() {
	c.items.Start()
}

// Stop ends the expiry loop.
func (c *Cache) Stop() {
	c.items.Stop()
}

// Save writes every element to the durable store in index order, drops any
// elements left over from a longer earlier save, then inserts or refreshes
// the memory entry. An empty string is an absent element.
func (c *Cache) Save(ctx context.Context, sessionID string, state []string) error {
	for i, s := range state {
		if err := c.store.Write(ctx, sessionID, i, []byte(s)); err != nil {
			return fmt.Errorf("save session %s: %w", sessionID, err)
		}
	}
	if err := c.store.Truncate(ctx, sessionID, len(state)); err != nil {
		return fmt.Errorf("save session %s: %w", sessionID, err)
	}
	c.items.Set(sessionID, clone(state), ttlcache.DefaultTTL)
	c.logger.Debug("session state saved", "session_id", sessionID, "elements", len(state))
	return nil
}

// Load returns a copy of the session state. A session with no stored state
// yields an empty slice.
func (c *Cache) Load(ctx context.Context, sessionID string) ([]string, error) {
	if item := c.items.Get(sessionID); item != nil {
		cacheHitsTotal.Inc()
		return clone(item.Value()), nil
	}
	cacheMissesTotal.Inc()

	blobs, err := c.store.Read(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	state := make([]string, len(blobs))
	found := false
	for i, b := range blobs {
		if b != nil {
			state[i] = string(b)
			found = true
		}
	}
	if found {
		c.items.Set(sessionID, clone(state), ttlcache.DefaultTTL)
	}
	c.logger.Debug("session state loaded from store", "session_id", sessionID, "elements", len(state))
	return state, nil
}

// Delete removes the memory entry and all durable blobs of the session and
// returns the bytes freed. Deleting an unknown session returns 0.
func (c *Cache) Delete(ctx context.Context, sessionID string) (int64, error) {
	c.items.Delete(sessionID)
	freed, err := c.store.Delete(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return freed, nil
}

// Exists reports whether durable state is stored for the session.
func (c *Cache) Exists(ctx context.Context, sessionID string) (bool, error) {
	return c.store.Exists(ctx, sessionID)
}

// Stats returns the memory tier counters.
func (c *Cache) Stats() CacheStats {
	m := c.items.Metrics()
	return CacheStats{
		Entries:    c.items.Len(),
		Insertions: m.Insertions,
		Hits:       m.Hits,
		Misses:     m.Misses,
		Evictions:  m.Evictions,
	}
}

func evictionReason(r ttlcache.EvictionReason) string {
	switch r {
	case ttlcache.EvictionReasonExpired:
		return "expired"
	case ttlcache.EvictionReasonDeleted:
		return "deleted"
	case ttlcache.EvictionReasonCapacityReached:
		return "capacity"
	default:
		return "other"
	}
}

func clone(s []string) []string {
	return append(make([]string, 0, len(s)), s...)
}
