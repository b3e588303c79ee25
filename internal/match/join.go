package match

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/cache"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/game"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/models"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/store"
)

// Join attaches the caller to a match. Joining again is harmless: the
// player is not added twice and a started match is not started again.
// Every other connection on the match is notified.
func (s *Service) Join(ctx context.Context, cmd JoinCommand) (_ *SocketMessage, err error) {
	started := time.Now()
	defer func() { s.metrics.Command(ActionJoin, started, err) }()

	if cmd.MatchID == "" {
		return nil, invalid("match id is required")
	}
	if cmd.ConnectionID == "" {
		return nil, invalid("connection id is required")
	}
	if cmd.Identity == "" {
		return nil, invalid("identity is required")
	}

	playerID, err := s.resolve(ctx, cmd.Identity)
	if err != nil {
		return nil, err
	}
	if err := s.connections.UpdateConnection(ctx, playerID, cmd.ConnectionID); err != nil {
		return nil, fmt.Errorf("update connection: %w", err)
	}

	var (
		view, shared *game.Metadata
		recipients   []string
	)
	err = s.attempt("JOIN", func() error {
		snap, err := s.load(ctx, cmd.MatchID)
		if err != nil {
			return err
		}
		agg := snap.Aggregate()

		if snap.SetConnection(playerID, cmd.ConnectionID) {
			if err := snap.Save(ctx); err != nil {
				return fmt.Errorf("save connection: %w", err)
			}
		}

		if !agg.HasPlayer(playerID) {
			if agg.IsFull() {
				return fmt.Errorf("%w: %s has %d players", ErrMatchFull, cmd.MatchID, len(agg.Players))
			}
			if err := s.addPlayer(ctx, snap, playerID, cmd); err != nil {
				return err
			}
		}

		if agg.IsFull() && agg.Match.Status == models.StatusQualifying {
			m := *agg.Match
			m.Status = models.StatusStarted
			if err := s.records.WriteMatch(ctx, m); err != nil {
				return fmt.Errorf("start match: %w", err)
			}
			snap.SetMatch(m)
			if err := snap.Save(ctx); err != nil {
				return fmt.Errorf("save started match: %w", err)
			}
			log.Printf("[JOIN] Match %s started with %d players", m.MatchID, len(agg.Players))
		}

		if view, err = game.CalculateFor(agg, playerID); err != nil {
			return fmt.Errorf("calculate %s: %w", cmd.MatchID, err)
		}
		if shared, err = game.Calculate(agg); err != nil {
			return fmt.Errorf("calculate %s: %w", cmd.MatchID, err)
		}
		recipients = agg.ConnectionIDs()
		return nil
	})
	if err != nil {
		log.Printf("[JOIN] player %s on match %s failed: %v", playerID, cmd.MatchID, err)
		return nil, err
	}

	s.fanOut(ctx, ActionJoin, shared, recipients, cmd.ConnectionID)
	return &SocketMessage{Action: ActionJoin, Metadata: view}, nil
}

// addPlayer creates the participant with a meeting credential and records
// it with its user in the snapshot.
func (s *Service) addPlayer(ctx context.Context, snap *cache.Snapshot, playerID string, cmd JoinCommand) error {
	agg := snap.Aggregate()

	user, err := s.records.ReadUser(ctx, playerID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: user %s", ErrPlayerNotFound, playerID)
	}
	if err != nil {
		return fmt.Errorf("read user: %w", err)
	}
	name := cmd.DisplayName
	if name == "" {
		name = user.Profile.UserName
	}

	token, err := s.meetings.JoinRoom(ctx, agg.Match.MeetingIdentifier, name, playerID)
	if err != nil {
		return fmt.Errorf("meeting credential: %w", err)
	}

	p := models.NewPlayer(agg.MatchID(), playerID, token, s.now())
	if err := s.records.WritePlayer(ctx, p); err != nil {
		return fmt.Errorf("write player: %w", err)
	}
	snap.AddPlayer(p)

	user.ConnectionID = cmd.ConnectionID
	snap.AddUser(user)

	if err := snap.Save(ctx); err != nil {
		return fmt.Errorf("save player: %w", err)
	}
	log.Printf("[JOIN] Player %s joined match %s (%d/%d)", playerID, agg.MatchID(), len(agg.Players), agg.Match.PlayerCount)
	return nil
}
