// Package cache loads a match aggregate for the duration of one command,
// lets the command mutate it and writes the whole aggregate back.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/game"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/models"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/store"
)

// ErrNoAggregate is returned when saving a snapshot that holds nothing
var ErrNoAggregate = errors.New("snapshot holds no aggregate")

// AggregateStore persists whole aggregates keyed by match id
type AggregateStore interface {
	Get(ctx context.Context, matchID string) (*game.Aggregate, error)
	Put(ctx context.Context, agg *game.Aggregate) error
}

// RecordReader reads the durable per-record copy of a match
type RecordReader interface {
	ReadMatch(ctx context.Context, matchID string) (models.Match, error)
	ListPlayers(ctx context.Context, matchID string) ([]models.Player, error)
	ListThrows(ctx context.Context, matchID string) ([]models.Throw, error)
	ListUsers(ctx context.Context, userIDs []string) ([]models.User, error)
}

type Cache struct {
	aggregates AggregateStore
	records    RecordReader
}

// New returns a cache over aggregates. records may be nil, in which case a
// missing snapshot is never reconstructed.
func New(aggregates AggregateStore, records RecordReader) *Cache {
	return &Cache{aggregates: aggregates, records: records}
}

// Load fetches the aggregate of matchID into a fresh snapshot owned by the
// caller. When the cached copy expired it is rebuilt from the records; when
// the match does not exist at all the snapshot holds no aggregate.
func (c *Cache) Load(ctx context.Context, matchID string) (*Snapshot, error) {
	agg, err := c.aggregates.Get(ctx, matchID)
	if err == nil {
		return &Snapshot{agg: agg, store: c.aggregates}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if c.records == nil {
		return &Snapshot{store: c.aggregates}, nil
	}

	snap, err := c.Rebuild(ctx, matchID)
	if errors.Is(err, store.ErrNotFound) {
		return &Snapshot{store: c.aggregates}, nil
	}
	return snap, err
}

// Create writes the empty aggregate of a newly created match
func (c *Cache) Create(ctx context.Context, match models.Match) (*Snapshot, error) {
	snap := &Snapshot{agg: game.NewAggregate(match), store: c.aggregates}
	if err := snap.Save(ctx); err != nil {
		return nil, err
	}
	return snap, nil
}

// Rebuild reconstructs the aggregate of matchID from the durable records and
// saves it over whatever snapshot is cached.
func (c *Cache) Rebuild(ctx context.Context, matchID string) (*Snapshot, error) {
	if c.records == nil {
		return nil, fmt.Errorf("rebuild %s: no record store", matchID)
	}
	match, err := c.records.ReadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	players, err := c.records.ListPlayers(ctx, matchID)
	if err != nil {
		return nil, err
	}
	throws, err := c.records.ListThrows(ctx, matchID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(players))
	for _, p := range players {
		ids = append(ids, p.PlayerID)
	}
	users := []models.User{}
	if len(ids) > 0 {
		if users, err = c.records.ListUsers(ctx, ids); err != nil {
			return nil, err
		}
	}

	agg := game.NewAggregate(match)
	for _, p := range players {
		agg.AddPlayer(p)
	}
	for _, t := range throws {
		agg.AddThrow(t)
	}
	// keep users in player order
	for _, id := range ids {
		for _, u := range users {
			if u.UserID == id {
				agg.AddUser(u)
			}
		}
	}

	// Carry the cached version so a version-checked save replaces it.
	if cached, err := c.aggregates.Get(ctx, matchID); err == nil {
		agg.Version = cached.Version
	}

	snap := &Snapshot{agg: agg, store: c.aggregates}
	if err := snap.Save(ctx); err != nil {
		return nil, err
	}
	log.Printf("[CACHE] Rebuilt match %s from records (players=%d throws=%d)", matchID, len(players), len(throws))
	return snap, nil
}
