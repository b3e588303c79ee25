package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const relayChannel = "x01:push"

// Locator tells whether a connection id is live anywhere in the deployment
type Locator interface {
	Owner(ctx context.Context, connectionID string) string
}

type relayEnvelope struct {
	Origin       string `json:"origin"`
	ConnectionID string `json:"connection_id"`
	Payload      []byte `json:"payload"`
}

// Relay pushes to local connections directly and to connections held by
// other instances through redis pub/sub.
type Relay struct {
	hub      *Hub
	rdb      *redis.Client
	locator  Locator
	instance string
}

func NewRelay(hub *Hub, rdb *redis.Client, locator Locator) *Relay {
	return &Relay{hub: hub, rdb: rdb, locator: locator, instance: uuid.NewString()}
}

// Push delivers payload locally when possible, otherwise publishes it for the
// instance holding the connection. ErrGone when no instance has it.
func (r *Relay) Push(ctx context.Context, connectionID string, payload []byte) error {
	err := r.hub.Push(ctx, connectionID, payload)
	if !errors.Is(err, ErrGone) {
		return err
	}
	if r.locator == nil || r.locator.Owner(ctx, connectionID) == "" {
		return ErrGone
	}
	env, err := json.Marshal(relayEnvelope{Origin: r.instance, ConnectionID: connectionID, Payload: payload})
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, relayChannel, env).Err()
}

// Start subscribes to the relay channel and delivers to local connections
// until ctx is done. The returned channel closes once the subscription is live.
func (r *Relay) Start(ctx context.Context) <-chan struct{} {
	ready := make(chan struct{})
	pubsub := r.rdb.Subscribe(ctx, relayChannel)

	go func() {
		defer pubsub.Close()
		if _, err := pubsub.Receive(ctx); err != nil {
			log.Printf("[WS] relay subscribe failed: %v", err)
			close(ready)
			return
		}
		close(ready)
		log.Printf("[WS] relay subscriber started (instance=%s)", r.instance)

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env relayEnvelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					log.Printf("[WS] invalid relay payload: %v", err)
					continue
				}
				if env.Origin == r.instance {
					continue
				}
				if err := r.hub.Push(ctx, env.ConnectionID, env.Payload); err != nil && !errors.Is(err, ErrGone) {
					log.Printf("[WS] relay delivery to %s failed: %v", env.ConnectionID, err)
				}
			}
		}
	}()
	return ready
}
