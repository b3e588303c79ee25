package match

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/game"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/models"
)

// Create opens a qualifying match with a fresh meeting room
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (_ *SocketMessage, err error) {
	started := time.Now()
	defer func() { s.metrics.Command(ActionCreate, started, err) }()

	if cmd.Identity == "" {
		return nil, invalid("identity is required")
	}
	if cmd.Sets < 1 || cmd.Sets%2 == 0 {
		return nil, invalid("sets must be a positive odd number, got %d", cmd.Sets)
	}
	if cmd.Legs < 1 || cmd.Legs%2 == 0 {
		return nil, invalid("legs must be a positive odd number, got %d", cmd.Legs)
	}

	playerID, err := s.resolve(ctx, cmd.Identity)
	if err != nil {
		return nil, err
	}
	if cmd.ConnectionID != "" {
		if err := s.connections.UpdateConnection(ctx, playerID, cmd.ConnectionID); err != nil {
			return nil, fmt.Errorf("update connection: %w", err)
		}
	}

	m := models.NewMatch(s.opts.RequiredPlayers, models.NewX01Settings(cmd.Sets, cmd.Legs, s.opts.StartingScore), "", s.now())
	room, err := s.meetings.CreateRoom(ctx, m.MatchID)
	if err != nil {
		return nil, fmt.Errorf("meeting room: %w", err)
	}
	m.MeetingIdentifier = room

	if err := s.records.CreateMatch(ctx, m); err != nil {
		return nil, fmt.Errorf("write match: %w", err)
	}
	snap, err := s.snapshots.Create(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("create aggregate: %w", err)
	}

	md, err := game.Calculate(snap.Aggregate())
	if err != nil {
		return nil, fmt.Errorf("calculate %s: %w", m.MatchID, err)
	}
	log.Printf("[CREATE] Player %s created match %s (sets=%d legs=%d)", playerID, m.MatchID, cmd.Sets, cmd.Legs)
	return &SocketMessage{Action: ActionCreate, Message: m.MatchID, Metadata: md}, nil
}
