// Package redisstore implements collector.Store on top of Redis, matching
// the original Python prototype's `redis.asyncio`-backed async aggregator
// (SPEC_FULL.md §6, §7) and the durable key layout of spec.md §6:
// `ruth:round:{r}:updates` (list) and `ruth:round:{r}:count` (integer).
package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/luxfi/ruth/collector"
	"github.com/luxfi/ruth/pkg/errs"
)

const keyPrefix = "ruth:round:"

// casStatus atomically compares-and-sets a status key: if its current
// value equals from (or it is unset and from == StatusOpen, the implicit
// default), it is set to to and the script returns 1; otherwise 0.
var casStatus = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur == false then cur = ARGV[1] end
if cur == ARGV[2] then
	redis.call('SET', KEYS[1], ARGV[3])
	return 1
end
return 0
`)

// Store is a Redis-backed collector.Store.
type Store struct {
	rdb *redis.Client
}

// New wraps an existing *redis.Client. The caller owns the client's
// lifecycle (connection pool sizing, Close on shutdown) per spec.md §5
// "Resource hygiene".
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func updatesKey(round uint64) string { return fmt.Sprintf("%s%d:updates", keyPrefix, round) }
func countKey(round uint64) string   { return fmt.Sprintf("%s%d:count", keyPrefix, round) }
func statusKey(round uint64) string  { return fmt.Sprintf("%s%d:status", keyPrefix, round) }

func (s *Store) AppendAndIncr(ctx context.Context, round uint64, b []byte) (uint64, error) {
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, updatesKey(round), b)
	incr := pipe.Incr(ctx, countKey(round))
	pipe.SetNX(ctx, statusKey(round), string(collector.StatusOpen), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, errs.New(errs.StoreError, "redisstore.AppendAndIncr", err)
	}
	return uint64(incr.Val()), nil
}

func (s *Store) Count(ctx context.Context, round uint64) (uint64, error) {
	v, err := s.rdb.Get(ctx, countKey(round)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, errs.New(errs.StoreError, "redisstore.Count", err)
	}
	return uint64(v), nil
}

func (s *Store) ReadAll(ctx context.Context, round uint64) ([][]byte, error) {
	vals, err := s.rdb.LRange(ctx, updatesKey(round), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, errs.New(errs.StoreError, "redisstore.ReadAll", err)
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

func (s *Store) DeleteBoth(ctx context.Context, round uint64) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, updatesKey(round))
	pipe.Del(ctx, countKey(round))
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.New(errs.StoreError, "redisstore.DeleteBoth", err)
	}
	return nil
}

func (s *Store) TryTransition(ctx context.Context, round uint64, from, to collector.Status) (bool, error) {
	res, err := casStatus.Run(ctx, s.rdb, []string{statusKey(round)},
		string(collector.StatusOpen), string(from), string(to)).Int()
	if err != nil {
		return false, errs.New(errs.StoreError, "redisstore.TryTransition", err)
	}
	return res == 1, nil
}

func (s *Store) SetStatus(ctx context.Context, round uint64, status collector.Status) error {
	if err := s.rdb.Set(ctx, statusKey(round), string(status), 0).Err(); err != nil {
		return errs.New(errs.StoreError, "redisstore.SetStatus", err)
	}
	return nil
}

// ScanRounds walks every `ruth:round:*:status` key via Redis SCAN (not
// KEYS, so it never blocks the server on a large keyspace) and returns the
// round ids whose status is not StatusClosed — the restart-tolerant round
// discovery adopted from the original prototype's SCAN-based loop
// (SPEC_FULL.md §7).
func (s *Store) ScanRounds(ctx context.Context) ([]uint64, error) {
	var rounds []uint64
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, keyPrefix+"*:status", 100).Result()
		if err != nil {
			return nil, errs.New(errs.StoreError, "redisstore.ScanRounds", err)
		}
		for _, k := range keys {
			round, ok := parseRoundFromStatusKey(k)
			if !ok {
				continue
			}
			status, err := s.rdb.Get(ctx, k).Result()
			if err != nil && err != redis.Nil {
				return nil, errs.New(errs.StoreError, "redisstore.ScanRounds", err)
			}
			if collector.Status(status) != collector.StatusClosed {
				rounds = append(rounds, round)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return rounds, nil
}

func parseRoundFromStatusKey(key string) (uint64, bool) {
	rest := strings.TrimPrefix(key, keyPrefix)
	idx := strings.Index(rest, ":")
	if idx < 0 {
		return 0, false
	}
	round, err := strconv.ParseUint(rest[:idx], 10, 64)
	if err != nil {
		return 0, false
	}
	return round, true
}
