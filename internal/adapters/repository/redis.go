package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/okian/paddle/internal/domain/ledger"
	"github.com/okian/paddle/internal/domain/ranking"
)

// redisDocument is the value stored under the ledger key.
type redisDocument struct {
	Players     []ledger.Player     `json:"players"`
	Games       []ledger.GameRecord `json:"games"`
	Leaderboard []ranking.Entry     `json:"leaderboard"`
}

// RedisStore keeps the ledger as one JSON document next to a revision key.
// Save runs inside WATCH so a concurrent writer aborts the transaction.
type RedisStore struct {
	rdb    *redis.Client
	key    string
	revKey string
}

// NewRedisStore connects to addr, which is host:port or a redis:// URL.
func NewRedisStore(ctx context.Context, addr, key string) (*RedisStore, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("redis address required")
	}
	opts := &redis.Options{Addr: addr}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		var err error
		if opts, err = redis.ParseURL(addr); err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStoreWithClient(rdb, key), nil
}

// NewRedisStoreWithClient uses an existing client.
func NewRedisStoreWithClient(rdb *redis.Client, key string) *RedisStore {
	return &RedisStore{rdb: rdb, key: key, revKey: key + ":revision"}
}

func (s *RedisStore) Load(ctx context.Context) (*ledger.Ledger, error) {
	// MGET reads both keys atomically.
	vals, err := s.rdb.MGet(ctx, s.key, s.revKey).Result()
	if err != nil {
		return nil, err
	}
	l := ledger.New()
	if vals[1] != nil {
		rev, err := strconv.ParseUint(fmt.Sprint(vals[1]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: revision: %v", ErrCorrupt, err)
		}
		l.Revision = rev
	}
	if vals[0] == nil {
		return l, nil
	}
	raw, ok := vals[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected %T", ErrCorrupt, vals[0])
	}
	var doc redisDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	l.Players, l.Games = doc.Players, doc.Games
	return l, nil
}

func (s *RedisStore) Save(ctx context.Context, l *ledger.Ledger, board ranking.Board) error {
	raw, err := json.Marshal(redisDocument{Players: l.Players, Games: l.Games, Leaderboard: board.Entries})
	if err != nil {
		return err
	}
	next := l.Revision + 1

	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		rev, err := tx.Get(ctx, s.revKey).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if rev != l.Revision {
			return ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, raw, 0)
			pipe.Set(ctx, s.revKey, next, 0)
			return nil
		})
		return err
	}, s.key, s.revKey)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	if err != nil {
		return err
	}
	l.Revision = next
	return nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
