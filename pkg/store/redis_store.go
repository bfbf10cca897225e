package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
)

// RedisStore is the Redis-backed TermStore implementation: per-key hash
// counters, pipelined bulk updates, Scan-based export. Its atomicity is
// weaker than BoltStore's: a Pipeline batches commands but is not a
// MULTI/EXEC transaction.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ctx       context.Context
}

// OpenRedis connects to addr (a redis:// URL) and returns a RedisStore
// keyed under keyPrefix.
func OpenRedis(redisURL, keyPrefix string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	client := redis.NewClient(opt)

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return &RedisStore{client: client, keyPrefix: keyPrefix, ctx: ctx}, nil
}

func (s *RedisStore) termKey(key string) string {
	// Hash over-length keys to keep Redis key size manageable, the same
	// pattern as redis_bayes.go getTokenKey, using xxhash since it is
	// already in the dependency graph via go-redis.
	if len(key) > 200 {
		h := xxhash.Sum64String(key)
		key = fmt.Sprintf("hash_%x", h)
	}
	return fmt.Sprintf("%s:term:%s", s.keyPrefix, key)
}

func (s *RedisStore) registryKey() string { return s.keyPrefix + ":registry" }
func (s *RedisStore) globalsKey() string  { return s.keyPrefix + ":globals" }

// Get implements TermStore.
func (s *RedisStore) Get(key string) (TermRecord, bool, error) {
	vals, err := s.client.HGetAll(s.ctx, s.termKey(key)).Result()
	if err != nil {
		return TermRecord{}, false, fmt.Errorf("%w: %v", ErrStoreTransient, err)
	}
	if len(vals) == 0 {
		return TermRecord{}, false, nil
	}
	good, _ := strconv.ParseInt(vals["good"], 10, 64)
	spam, _ := strconv.ParseInt(vals["spam"], 10, 64)
	last, _ := strconv.ParseInt(vals["last_update"], 10, 64)
	return TermRecord{GoodCount: good, SpamCount: spam, LastUpdate: last}, true, nil
}

// BulkUpdate implements TermStore.
func (s *RedisStore) BulkUpdate(deltas map[string]Delta, now int64) error {
	if len(deltas) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for key, d := range deltas {
		tk := s.termKey(key)
		if d.Good != 0 {
			pipe.HIncrBy(s.ctx, tk, "good", d.Good)
		}
		if d.Spam != 0 {
			pipe.HIncrBy(s.ctx, tk, "spam", d.Spam)
		}
		pipe.HSet(s.ctx, tk, "last_update", now)
	}
	if _, err := pipe.Exec(s.ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreTransient, err)
	}

	return s.clampNonNegativeKeys(deltas)
}

// clampNonNegativeKeys reloads touched keys and clamps any counter that
// drifted below zero (Redis HINCRBY has no floor) back to the
// non-negative invariant all TermStore implementations maintain.
func (s *RedisStore) clampNonNegativeKeys(deltas map[string]Delta) error {
	for key := range deltas {
		rec, ok, err := s.Get(key)
		if err != nil || !ok {
			continue
		}
		if rec.GoodCount < 0 || rec.SpamCount < 0 {
			tk := s.termKey(key)
			pipe := s.client.Pipeline()
			pipe.HSet(s.ctx, tk, "good", clampNonNegative(rec.GoodCount))
			pipe.HSet(s.ctx, tk, "spam", clampNonNegative(rec.SpamCount))
			if _, err := pipe.Exec(s.ctx); err != nil {
				return fmt.Errorf("%w: %v", ErrStoreTransient, err)
			}
		}
	}
	return nil
}

// MessageKnown implements TermStore.
func (s *RedisStore) MessageKnown(digest string) (Label, bool, error) {
	v, err := s.client.HGet(s.ctx, s.registryKey(), digest).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrStoreTransient, err)
	}
	return Label(v[0]), true, nil
}

// RegisterMessage implements TermStore.
func (s *RedisStore) RegisterMessage(digest string, label Label) error {
	existing, found, err := s.MessageKnown(digest)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	switch {
	case !found:
		pipe.HIncrBy(s.ctx, s.globalsKey(), globalField(label), 1)
	case existing != label:
		pipe.HIncrBy(s.ctx, s.globalsKey(), globalField(existing), -1)
		pipe.HIncrBy(s.ctx, s.globalsKey(), globalField(label), 1)
	default:
		return nil
	}
	pipe.HSet(s.ctx, s.registryKey(), digest, string(label))

	if _, err := pipe.Exec(s.ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreTransient, err)
	}
	return nil
}

// UnregisterMessage implements TermStore.
func (s *RedisStore) UnregisterMessage(digest string) (Label, error) {
	prior, found, err := s.MessageKnown(digest)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrNotFound
	}

	pipe := s.client.Pipeline()
	pipe.HIncrBy(s.ctx, s.globalsKey(), globalField(prior), -1)
	pipe.HDel(s.ctx, s.registryKey(), digest)
	if _, err := pipe.Exec(s.ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreTransient, err)
	}
	return prior, nil
}

func globalField(label Label) string {
	if label == Spam {
		return "spam"
	}
	return "good"
}

// Globals implements TermStore.
func (s *RedisStore) Globals() (int64, int64, error) {
	vals, err := s.client.HGetAll(s.ctx, s.globalsKey()).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrStoreTransient, err)
	}
	good, _ := strconv.ParseInt(vals["good"], 10, 64)
	spam, _ := strconv.ParseInt(vals["spam"], 10, 64)
	return clampNonNegative(good), clampNonNegative(spam), nil
}

// Cleanup implements TermStore.
func (s *RedisStore) Cleanup(maxCount int64, maxAgeDays int, now int64) (int64, error) {
	cutoff := now - int64(maxAgeDays)*86400
	var removed int64

	err := s.scanTerms(func(redisKey string, rec TermRecord) error {
		ageOK := maxAgeDays == 0 || rec.LastUpdate < cutoff
		if rec.GoodCount+rec.SpamCount <= maxCount && ageOK {
			if err := s.client.Del(s.ctx, redisKey).Err(); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreTransient, err)
	}
	return removed, nil
}

// Purge implements TermStore.
func (s *RedisStore) Purge(maxCount int64) (int64, error) {
	var removed int64
	err := s.scanTerms(func(redisKey string, rec TermRecord) error {
		if rec.GoodCount+rec.SpamCount < maxCount {
			if err := s.client.Del(s.ctx, redisKey).Err(); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreTransient, err)
	}
	return removed, nil
}

func (s *RedisStore) scanTerms(fn func(redisKey string, rec TermRecord) error) error {
	pattern := s.keyPrefix + ":term:*"
	iter := s.client.Scan(s.ctx, 0, pattern, 100).Iterator()
	for iter.Next(s.ctx) {
		redisKey := iter.Val()
		vals, err := s.client.HGetAll(s.ctx, redisKey).Result()
		if err != nil {
			return err
		}
		good, _ := strconv.ParseInt(vals["good"], 10, 64)
		spam, _ := strconv.ParseInt(vals["spam"], 10, 64)
		last, _ := strconv.ParseInt(vals["last_update"], 10, 64)
		if err := fn(redisKey, TermRecord{GoodCount: good, SpamCount: spam, LastUpdate: last}); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Export implements TermStore.
func (s *RedisStore) Export(fn func(Entry) error) error {
	prefix := s.keyPrefix + ":term:"
	return s.scanTerms(func(redisKey string, rec TermRecord) error {
		key := redisKey[len(prefix):]
		return fn(Entry{Key: key, Good: rec.GoodCount, Spam: rec.SpamCount, LastUpdate: rec.LastUpdate})
	})
}

// Import implements TermStore.
func (s *RedisStore) Import(entries []Entry, now int64) (int64, error) {
	var applied int64
	pipe := s.client.Pipeline()
	for _, e := range entries {
		last := e.LastUpdate
		if last == 0 {
			last = now
		}
		tk := s.termKey(e.Key)
		pipe.HSet(s.ctx, tk, "good", clampNonNegative(e.Good))
		pipe.HSet(s.ctx, tk, "spam", clampNonNegative(e.Spam))
		pipe.HSet(s.ctx, tk, "last_update", last)
		applied++
	}
	if _, err := pipe.Exec(s.ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreTransient, err)
	}
	return applied, nil
}

// Vacuum implements TermStore. Redis has no user-triggered compaction API
// analogous to bbolt's; this is a documented no-op for the Redis backend.
func (s *RedisStore) Vacuum() error { return nil }

// Close implements TermStore. Idempotent.
func (s *RedisStore) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

var _ TermStore = (*RedisStore)(nil)
