package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces every key written by RedisStateStore.
const DefaultRedisPrefix = "carbonsvc:"

// Compile-time interface satisfaction check.
var _ StateStore = (*RedisStateStore)(nil)

// RedisStateStore implements StateStore with one Redis hash per session:
// field names are the blob indexes.
type RedisStateStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStateStore wraps an existing client. An empty prefix selects
// DefaultRedisPrefix.
func NewRedisStateStore(rdb *redis.Client, prefix string) *RedisStateStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStateStore{rdb: rdb, prefix: prefix}
}

// OpenRedisStateStore connects to addr and verifies the connection.
func OpenRedisStateStore(ctx context.Context, addr string, db int, prefix string) (*RedisStateStore, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewRedisStateStore(rdb, prefix), nil
}

func (s *RedisStateStore) key(sessionID string) string {
	return s.prefix + "state:" + sessionID
}

// Close closes the Redis client.
func (s *RedisStateStore) Close() error {
	return s.rdb.Close()
}

// Write sets one hash field.
func (s *RedisStateStore) Write(ctx context.Context, sessionID string, index int, data []byte) error {
	if err := s.rdb.HSet(ctx, s.key(sessionID), strconv.Itoa(index), data).Err(); err != nil {
		return fmt.Errorf("write state blob %d: %w", index, err)
	}
	return nil
}

// Truncate removes the hash fields at index n and above.
func (s *RedisStateStore) Truncate(ctx context.Context, sessionID string, n int) error {
	key := s.key(sessionID)
	fields, err := s.rdb.HKeys(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("truncate state at %d: %w", n, err)
	}

	var extra []string
	for _, f := range fields {
		if idx, err := strconv.Atoi(f); err != nil || idx >= n {
			extra = append(extra, f)
		}
	}
	if len(extra) == 0 {
		return nil
	}
	if err := s.rdb.HDel(ctx, key, extra...).Err(); err != nil {
		return fmt.Errorf("truncate state at %d: %w", n, err)
	}
	return nil
}

// Read returns the session's blobs in index order.
func (s *RedisStateStore) Read(ctx context.Context, sessionID string) ([][]byte, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	idxs := make([]int, 0, len(fields))
	byIdx := make(map[int]string, len(fields))
	for f, v := range fields {
		idx, err := strconv.Atoi(f)
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("read state: bad field %q", f)
		}
		idxs = append(idxs, idx)
		byIdx[idx] = v
	}
	sort.Ints(idxs)

	blobs := [][]byte{}
	for _, idx := range idxs {
		for len(blobs) < idx {
			blobs = append(blobs, nil)
		}
		var data []byte
		if v := byIdx[idx]; v != "" {
			data = []byte(v)
		}
		blobs = append(blobs, data)
	}
	return blobs, nil
}

// Delete removes the session hash and reports the bytes freed.
func (s *RedisStateStore) Delete(ctx context.Context, sessionID string) (int64, error) {
	key := s.key(sessionID)
	vals, err := s.rdb.HVals(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("measure state: %w", err)
	}
	var freed int64
	for _, v := range vals {
		freed += int64(len(v))
	}
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return 0, fmt.Errorf("delete state: %w", err)
	}
	return freed, nil
}

// Exists reports whether the session hash exists.
func (s *RedisStateStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.key(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("check state: %w", err)
	}
	return n > 0, nil
}
