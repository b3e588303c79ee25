package cache

import (
	"context"

	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/game"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/models"
)

// Snapshot is the in-memory aggregate of one command. It is not shared
// between commands and is not safe for concurrent use.
type Snapshot struct {
	agg   *game.Aggregate
	store AggregateStore
}

// Aggregate returns the loaded aggregate, nil when the match does not exist
func (s *Snapshot) Aggregate() *game.Aggregate {
	return s.agg
}

// Exists reports whether an aggregate was loaded
func (s *Snapshot) Exists() bool {
	return s.agg != nil
}

// Save writes the whole aggregate back, replacing the stored one
func (s *Snapshot) Save(ctx context.Context) error {
	if s.agg == nil {
		return ErrNoAggregate
	}
	return s.store.Put(ctx, s.agg)
}

// AddPlayer adds p unless the player is already part of the match
func (s *Snapshot) AddPlayer(p models.Player) bool {
	if s.agg == nil {
		return false
	}
	return s.agg.AddPlayer(p)
}

// AddThrow appends t to the throw log
func (s *Snapshot) AddThrow(t models.Throw) {
	if s.agg != nil {
		s.agg.AddThrow(t)
	}
}

// HasThrow reports whether a throw with id is already in the log
func (s *Snapshot) HasThrow(id string) bool {
	if s.agg == nil {
		return false
	}
	for _, t := range s.agg.Throws {
		if t.ID == id {
			return true
		}
	}
	return false
}

// AddUser adds u unless a user with the same id is present
func (s *Snapshot) AddUser(u models.User) bool {
	if s.agg == nil {
		return false
	}
	return s.agg.AddUser(u)
}

// SetMatch replaces the match header
func (s *Snapshot) SetMatch(m models.Match) {
	if s.agg != nil {
		s.agg.SetMatch(m)
	}
}

// SetConnection refreshes the live connection of a user already in the match
func (s *Snapshot) SetConnection(userID, connectionID string) bool {
	if s.agg == nil {
		return false
	}
	return s.agg.SetConnection(userID, connectionID)
}
