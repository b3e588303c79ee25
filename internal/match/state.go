package match

import (
	"context"
	"fmt"

	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/game"
)

// State returns the derived view of a match without changing it. The
// meeting credential is included when identity belongs to a player.
func (s *Service) State(ctx context.Context, matchID, identity string) (*SocketMessage, error) {
	if matchID == "" {
		return nil, invalid("match id is required")
	}
	playerID := ""
	if identity != "" {
		id, err := s.resolve(ctx, identity)
		if err != nil {
			return nil, err
		}
		playerID = id
	}

	snap, err := s.load(ctx, matchID)
	if err != nil {
		return nil, err
	}
	md, err := game.CalculateFor(snap.Aggregate(), playerID)
	if err != nil {
		return nil, fmt.Errorf("calculate %s: %w", matchID, err)
	}
	return &SocketMessage{Action: ActionState, Metadata: md}, nil
}
