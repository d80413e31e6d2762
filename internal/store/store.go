// Package store implements the State Store Adapter (spec §4.A): the
// single piece of shared mutable state the rest of the core depends on.
// It wraps a Redis client (sorted sets for priority queues, sets for
// visited/dedup tracking, hashes for crawl records, lists for per-crawl
// job fan-out, and pub/sub for crawl lifecycle events) behind bounded
// exponential backoff, so transient broker errors are retried and a
// persistent failure surfaces as model.StoreUnavailable.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"

	"raito/internal/model"
)

// Store is the concrete Redis-backed implementation of the abstract
// State Store Adapter. All keys are namespaced under "raito:" the same
// way the teacher's rate limiter namespaced "raito:rl:...".
type Store struct {
	rdb        *redis.Client
	maxRetries uint64
	baseDelay  time.Duration
}

// New wraps an already-connected *redis.Client. maxRetries and baseDelay
// configure the bounded exponential backoff applied to every operation;
// callers with no opinion should pass 5 and 50*time.Millisecond.
func New(rdb *redis.Client, maxRetries uint64, baseDelay time.Duration) *Store {
	return &Store{rdb: rdb, maxRetries: maxRetries, baseDelay: baseDelay}
}

// withRetry runs fn under a bounded exponential backoff policy. Any
// error fn returns is treated as retryable (go-redis already
// distinguishes context cancellation from broker errors by returning
// ctx.Err() directly, which retry.Do respects). Once the retry budget
// is exhausted, the last error is wrapped as model.StoreUnavailable.
func (s *Store) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	backoff := retry.NewExponential(s.baseDelay)
	backoff = retry.WithMaxRetries(s.maxRetries, backoff)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			if ctx.Err() != nil {
				return err
			}
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return &model.StoreUnavailable{Op: op, Err: err}
	}
	return nil
}

func key(parts ...string) string {
	k := "raito"
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

// --- Sorted sets: priority queues (spec §4.A "zadd/zrem/zrangebyscore/zpopmin/zcard/zremrangebyscore") ---

// ZAdd enqueues member at the given priority score into the named
// sorted set (e.g. the pending-jobs queue).
func (s *Store) ZAdd(ctx context.Context, setName, member string, score float64) error {
	return s.withRetry(ctx, "zadd", func(ctx context.Context) error {
		return s.rdb.ZAdd(ctx, key(setName), redis.Z{Score: score, Member: member}).Err()
	})
}

// ZRem removes member from the named sorted set unconditionally.
func (s *Store) ZRem(ctx context.Context, setName, member string) error {
	return s.withRetry(ctx, "zrem", func(ctx context.Context) error {
		return s.rdb.ZRem(ctx, key(setName), member).Err()
	})
}

// ZRangeByScore returns members with score in [min, max], ascending.
func (s *Store) ZRangeByScore(ctx context.Context, setName string, min, max float64, limit int64) ([]string, error) {
	var out []string
	err := s.withRetry(ctx, "zrangebyscore", func(ctx context.Context) error {
		res, err := s.rdb.ZRangeByScore(ctx, key(setName), &redis.ZRangeBy{
			Min:   fmt.Sprintf("%f", min),
			Max:   fmt.Sprintf("%f", max),
			Count: limit,
		}).Result()
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

// ZPopMin atomically pops and returns the lowest-score member, the
// primitive the Concurrency Admission component (spec §4.B) uses to
// claim the next-highest-priority pending job.
func (s *Store) ZPopMin(ctx context.Context, setName string) (string, float64, bool, error) {
	var member string
	var score float64
	var found bool
	err := s.withRetry(ctx, "zpopmin", func(ctx context.Context) error {
		res, err := s.rdb.ZPopMin(ctx, key(setName), 1).Result()
		if err != nil {
			return err
		}
		if len(res) == 0 {
			found = false
			return nil
		}
		found = true
		member = fmt.Sprintf("%v", res[0].Member)
		score = res[0].Score
		return nil
	})
	return member, score, found, err
}

// ZCard returns the number of members in the named sorted set.
func (s *Store) ZCard(ctx context.Context, setName string) (int64, error) {
	var n int64
	err := s.withRetry(ctx, "zcard", func(ctx context.Context) error {
		res, err := s.rdb.ZCard(ctx, key(setName)).Result()
		if err != nil {
			return err
		}
		n = res
		return nil
	})
	return n, err
}

// ZRemRangeByScore removes every member scored in [min, max]; used by
// the admission sweep to clear stalled lease entries in bulk.
func (s *Store) ZRemRangeByScore(ctx context.Context, setName string, min, max float64) error {
	return s.withRetry(ctx, "zremrangebyscore", func(ctx context.Context) error {
		return s.rdb.ZRemRangeByScore(ctx, key(setName),
			fmt.Sprintf("%f", min), fmt.Sprintf("%f", max)).Err()
	})
}

// --- Sets: visited/dedup tracking (spec §4.A "sadd/smembers/srem/sismember") ---

// SAdd adds member to the named set and reports whether it was newly
// added (false means it was already present, the dedup signal
// lock_url relies on, spec §4.D).
func (s *Store) SAdd(ctx context.Context, setName, member string) (bool, error) {
	var added bool
	err := s.withRetry(ctx, "sadd", func(ctx context.Context) error {
		n, err := s.rdb.SAdd(ctx, key(setName), member).Result()
		if err != nil {
			return err
		}
		added = n > 0
		return nil
	})
	return added, err
}

// SMembers returns every member of the named set.
func (s *Store) SMembers(ctx context.Context, setName string) ([]string, error) {
	var out []string
	err := s.withRetry(ctx, "smembers", func(ctx context.Context) error {
		res, err := s.rdb.SMembers(ctx, key(setName)).Result()
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

// SRem removes member from the named set.
func (s *Store) SRem(ctx context.Context, setName, member string) error {
	return s.withRetry(ctx, "srem", func(ctx context.Context) error {
		return s.rdb.SRem(ctx, key(setName), member).Err()
	})
}

// SIsMember reports whether member is present in the named set.
func (s *Store) SIsMember(ctx context.Context, setName, member string) (bool, error) {
	var ok bool
	err := s.withRetry(ctx, "sismember", func(ctx context.Context) error {
		res, err := s.rdb.SIsMember(ctx, key(setName), member).Result()
		if err != nil {
			return err
		}
		ok = res
		return nil
	})
	return ok, err
}

// --- Lists: per-crawl job fan-out (spec §4.A "rpush/lpop/llen") ---

// RPush appends value to the named list.
func (s *Store) RPush(ctx context.Context, listName, value string) error {
	return s.withRetry(ctx, "rpush", func(ctx context.Context) error {
		return s.rdb.RPush(ctx, key(listName), value).Err()
	})
}

// LPop removes and returns the first element of the named list, or
// found=false if the list is empty.
func (s *Store) LPop(ctx context.Context, listName string) (string, bool, error) {
	var val string
	var found bool
	err := s.withRetry(ctx, "lpop", func(ctx context.Context) error {
		res, err := s.rdb.LPop(ctx, key(listName)).Result()
		if err == redis.Nil {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		val = res
		found = true
		return nil
	})
	return val, found, err
}

// LLen returns the length of the named list.
func (s *Store) LLen(ctx context.Context, listName string) (int64, error) {
	var n int64
	err := s.withRetry(ctx, "llen", func(ctx context.Context) error {
		res, err := s.rdb.LLen(ctx, key(listName)).Result()
		if err != nil {
			return err
		}
		n = res
		return nil
	})
	return n, err
}

// --- Hashes: crawl/job records (spec §4.A "hset/hget/hdel") ---

// HSet sets field=value on the named hash.
func (s *Store) HSet(ctx context.Context, hashName, field, value string) error {
	return s.withRetry(ctx, "hset", func(ctx context.Context) error {
		return s.rdb.HSet(ctx, key(hashName), field, value).Err()
	})
}

// HGet returns field from the named hash, with found=false if either
// the hash or the field is absent.
func (s *Store) HGet(ctx context.Context, hashName, field string) (string, bool, error) {
	var val string
	var found bool
	err := s.withRetry(ctx, "hget", func(ctx context.Context) error {
		res, err := s.rdb.HGet(ctx, key(hashName), field).Result()
		if err == redis.Nil {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		val = res
		found = true
		return nil
	})
	return val, found, err
}

// HGetAll returns every field/value pair in the named hash.
func (s *Store) HGetAll(ctx context.Context, hashName string) (map[string]string, error) {
	var out map[string]string
	err := s.withRetry(ctx, "hgetall", func(ctx context.Context) error {
		res, err := s.rdb.HGetAll(ctx, key(hashName)).Result()
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

// HDel removes field from the named hash.
func (s *Store) HDel(ctx context.Context, hashName, field string) error {
	return s.withRetry(ctx, "hdel", func(ctx context.Context) error {
		return s.rdb.HDel(ctx, key(hashName), field).Err()
	})
}

// HIncrBy atomically increments a numeric field; the Crawl Registry
// uses it for the "done" counter (spec §4.D "add_done").
func (s *Store) HIncrBy(ctx context.Context, hashName, field string, by int64) (int64, error) {
	var n int64
	err := s.withRetry(ctx, "hincrby", func(ctx context.Context) error {
		res, err := s.rdb.HIncrBy(ctx, key(hashName), field, by).Result()
		if err != nil {
			return err
		}
		n = res
		return nil
	})
	return n, err
}

// --- Strings: TTL'd flags and idempotent markers (spec §4.A "set w/TTL+NX, del") ---

// SetNX sets name=value only if name does not already exist, with ttl
// applied only when the key is newly set. Returns false if the key already
// existed, the signal try_finalize (spec §4.D) uses to guarantee
// exactly-once crawl completion.
func (s *Store) SetNX(ctx context.Context, name, value string, ttl time.Duration) (bool, error) {
	var set bool
	err := s.withRetry(ctx, "setnx", func(ctx context.Context) error {
		res, err := s.rdb.SetNX(ctx, key(name), value, ttl).Result()
		if err != nil {
			return err
		}
		set = res
		return nil
	})
	return set, err
}

// Get returns the value stored at name, with found=false if absent.
func (s *Store) Get(ctx context.Context, name string) (string, bool, error) {
	var val string
	var found bool
	err := s.withRetry(ctx, "get", func(ctx context.Context) error {
		res, err := s.rdb.Get(ctx, key(name)).Result()
		if err == redis.Nil {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		val = res
		found = true
		return nil
	})
	return val, found, err
}

// Del removes name unconditionally.
func (s *Store) Del(ctx context.Context, name string) error {
	return s.withRetry(ctx, "del", func(ctx context.Context) error {
		return s.rdb.Del(ctx, key(name)).Err()
	})
}

// Expire sets or refreshes a TTL on an existing key; the Crawl Registry
// uses it to age out a finalized crawl's visited/enrolled keys.
func (s *Store) Expire(ctx context.Context, name string, ttl time.Duration) error {
	return s.withRetry(ctx, "expire", func(ctx context.Context) error {
		return s.rdb.Expire(ctx, key(name), ttl).Err()
	})
}

// --- Pub/Sub: crawl lifecycle events (spec §4.A "publish/subscribe") ---

// Publish broadcasts payload on the named channel to any listener. No
// component in this repository calls it.
func (s *Store) Publish(ctx context.Context, channel, payload string) error {
	return s.withRetry(ctx, "publish", func(ctx context.Context) error {
		return s.rdb.Publish(ctx, key(channel), payload).Err()
	})
}

// Subscribe returns a live subscription to the named channel. Reconnect
// on transient broker errors is handled internally by go-redis's
// PubSub; the retry wrapper does not apply here since the subscription
// itself is long-lived, not a single request/response op.
func (s *Store) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	return s.rdb.Subscribe(ctx, key(channel))
}
