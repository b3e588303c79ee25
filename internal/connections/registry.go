package connections

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "connection:"

// Key is the redis key mirroring which player owns a live connection
func Key(connectionID string) string {
	return keyPrefix + connectionID
}

// UserConnections persists the live connection id on the user record
type UserConnections interface {
	UpdateConnection(ctx context.Context, userID, connectionID string) error
}

// Registry keeps the player -> live connection mapping
type Registry struct {
	users UserConnections
	rdb   *redis.Client
	ttl   time.Duration
}

// NewRegistry returns a registry. rdb may be nil to skip the redis mirror.
func NewRegistry(users UserConnections, rdb *redis.Client, ttl time.Duration) *Registry {
	return &Registry{users: users, rdb: rdb, ttl: ttl}
}

// UpdateConnection records connectionID as the live connection of playerID.
// Repeating the call with the same values is harmless.
func (r *Registry) UpdateConnection(ctx context.Context, playerID, connectionID string) error {
	if playerID == "" || connectionID == "" {
		return fmt.Errorf("update connection: player and connection ids are required")
	}
	if err := r.users.UpdateConnection(ctx, playerID, connectionID); err != nil {
		return err
	}
	if r.rdb != nil {
		if err := r.rdb.Set(ctx, Key(connectionID), playerID, r.ttl).Err(); err != nil {
			// the mirror is advisory; the user row is authoritative
			log.Printf("[CONN] mirror connection %s for player %s failed: %v", connectionID, playerID, err)
		}
	}
	return nil
}

// Owner returns the player mirrored for connectionID, "" when unknown
func (r *Registry) Owner(ctx context.Context, connectionID string) string {
	if r.rdb == nil {
		return ""
	}
	playerID, err := r.rdb.Get(ctx, Key(connectionID)).Result()
	if err != nil {
		return ""
	}
	return playerID
}

// Forget drops the mirror of a closed connection
func (r *Registry) Forget(ctx context.Context, connectionID string) {
	if r.rdb == nil {
		return
	}
	if err := r.rdb.Del(ctx, Key(connectionID)).Err(); err != nil {
		log.Printf("[CONN] forget connection %s failed: %v", connectionID, err)
	}
}
