package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/game"
)

const aggregateKeyPrefix = "x01:state:"

// AggregateKey is the redis key of a match snapshot
func AggregateKey(matchID string) string {
	return aggregateKeyPrefix + matchID
}

// Redis keeps one JSON snapshot per match id
type Redis struct {
	rdb        *redis.Client
	ttl        time.Duration
	optimistic bool
}

// NewRedis returns an aggregate store. With optimistic set, Put refuses to
// overwrite a snapshot whose version moved since it was loaded.
func NewRedis(rdb *redis.Client, ttl time.Duration, optimistic bool) *Redis {
	return &Redis{rdb: rdb, ttl: ttl, optimistic: optimistic}
}

// Get loads the snapshot of matchID
func (r *Redis) Get(ctx context.Context, matchID string) (*game.Aggregate, error) {
	data, err := r.rdb.Get(ctx, AggregateKey(matchID)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("aggregate %s: %w", matchID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get aggregate %s: %w", matchID, err)
	}
	var agg game.Aggregate
	if err := json.Unmarshal(data, &agg); err != nil {
		return nil, fmt.Errorf("decode aggregate %s: %w", matchID, err)
	}
	return &agg, nil
}

// Put writes the whole snapshot and bumps its version
func (r *Redis) Put(ctx context.Context, agg *game.Aggregate) error {
	matchID := agg.MatchID()
	if matchID == "" {
		return fmt.Errorf("put aggregate: %w", game.ErrNoMatch)
	}
	if r.optimistic {
		return r.putChecked(ctx, agg)
	}

	agg.Version++
	data, err := json.Marshal(agg)
	if err != nil {
		agg.Version--
		return fmt.Errorf("encode aggregate %s: %w", matchID, err)
	}
	if err := r.rdb.Set(ctx, AggregateKey(matchID), data, r.ttl).Err(); err != nil {
		agg.Version--
		return fmt.Errorf("put aggregate %s: %w", matchID, err)
	}
	return nil
}

func (r *Redis) putChecked(ctx context.Context, agg *game.Aggregate) error {
	key := AggregateKey(agg.MatchID())
	loaded := agg.Version

	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := storedVersion(ctx, tx, key)
		if err != nil {
			return err
		}
		if current != loaded {
			return ErrConflict
		}

		next := *agg
		next.Version = loaded + 1
		data, err := json.Marshal(&next)
		if err != nil {
			return fmt.Errorf("encode aggregate: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		err = ErrConflict
	}
	if err != nil {
		return fmt.Errorf("put aggregate %s: %w", agg.MatchID(), err)
	}
	agg.Version = loaded + 1
	return nil
}

// storedVersion reads the version of the watched snapshot; a missing key is version 0
func storedVersion(ctx context.Context, tx *redis.Tx, key string) (int64, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var head struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return 0, fmt.Errorf("decode stored version: %w", err)
	}
	return head.Version, nil
}
