package match

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/game"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/models"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/store"
)

const maxTurnScore = 180

// Score records one turn of the caller, finishes the match when the turn
// decides it and notifies every connection on the match, the caller included.
func (s *Service) Score(ctx context.Context, cmd ScoreCommand) (_ *SocketMessage, err error) {
	started := time.Now()
	defer func() { s.metrics.Command(ActionScore, started, err) }()

	if cmd.MatchID == "" {
		return nil, invalid("match id is required")
	}
	if cmd.Identity == "" {
		return nil, invalid("identity is required")
	}
	if cmd.ConnectionID == "" {
		return nil, invalid("connection id is required")
	}
	if cmd.Input < 0 || cmd.Input > maxTurnScore {
		return nil, invalid("input %d outside 0..%d", cmd.Input, maxTurnScore)
	}
	if cmd.Score < 0 {
		return nil, invalid("score %d is negative", cmd.Score)
	}

	playerID, err := s.resolve(ctx, cmd.Identity)
	if err != nil {
		return nil, err
	}
	if err := s.connections.UpdateConnection(ctx, playerID, cmd.ConnectionID); err != nil {
		return nil, fmt.Errorf("update connection: %w", err)
	}

	// One id for every attempt so a retried step upserts the same throw.
	throwID := uuid.NewString()

	var (
		view, shared *game.Metadata
		recipients   []string
		// written: the throw row exists. saved: an aggregate save carried it.
		written, saved bool
	)
	err = s.attempt("SCORE", func() error {
		snap, err := s.load(ctx, cmd.MatchID)
		if err != nil {
			return err
		}
		agg := snap.Aggregate()
		if !agg.HasPlayer(playerID) {
			return fmt.Errorf("%w: %s is not in match %s", ErrPlayerNotFound, playerID, cmd.MatchID)
		}

		if !snap.HasThrow(throwID) {
			if agg.Match.Status != models.StatusStarted {
				return fmt.Errorf("%w: match %s is %s", ErrMatchNotInPlay, cmd.MatchID, agg.Match.Status)
			}
			remaining := game.RemainingFor(agg, playerID)
			if cmd.Input > remaining {
				return invalid("input %d exceeds remaining %d", cmd.Input, remaining)
			}
			if cmd.Score != remaining-cmd.Input {
				return invalid("score %d does not match remaining %d minus input %d", cmd.Score, remaining, cmd.Input)
			}

			set, leg := game.NextSetLeg(agg)
			t := models.NewThrow(agg.MatchID(), playerID, cmd.Input, cmd.Score, set, leg, game.NextThrowTime(agg, s.now()))
			t.ID = throwID
			if err := s.records.WriteThrow(ctx, t); err != nil {
				return fmt.Errorf("write throw: %w", err)
			}
			written = true
			snap.AddThrow(t)
			snap.SetConnection(playerID, cmd.ConnectionID)
			if err := snap.Save(ctx); err != nil {
				return fmt.Errorf("save throw: %w", err)
			}
			s.metrics.ThrowRecorded()
		}
		saved = true

		current, err := game.Calculate(agg)
		if err != nil {
			return fmt.Errorf("calculate %s: %w", cmd.MatchID, err)
		}
		if current.Decided() && agg.Match.Status != models.StatusFinished {
			if err := s.finish(ctx, agg.MatchID(), current.Winner(), func(m models.Match) error {
				snap.SetMatch(m)
				return snap.Save(ctx)
			}); err != nil {
				return err
			}
		}

		if shared, err = game.Calculate(agg); err != nil {
			return fmt.Errorf("calculate %s: %w", cmd.MatchID, err)
		}
		if view, err = game.CalculateFor(agg, playerID); err != nil {
			return fmt.Errorf("calculate %s: %w", cmd.MatchID, err)
		}
		recipients = agg.ConnectionIDs()
		return nil
	})
	if err != nil {
		log.Printf("[SCORE] player %s on match %s failed: %v", playerID, cmd.MatchID, err)
		if written && !saved {
			// The aggregate never took the throw, so a rebuild must not see it either.
			if derr := s.records.DeleteThrow(ctx, throwID); derr != nil {
				log.Printf("[SCORE] Failed to discard throw %s on match %s: %v", throwID, cmd.MatchID, derr)
			}
		}
		return nil, err
	}

	s.fanOut(ctx, ActionScore, shared, recipients, "")
	return &SocketMessage{Action: ActionScore, Metadata: view}, nil
}

// finish marks the authoritative match record finished and hands it to apply
func (s *Service) finish(ctx context.Context, matchID, winner string, apply func(models.Match) error) error {
	m, err := s.records.ReadMatch(ctx, matchID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
	}
	if err != nil {
		return fmt.Errorf("read match: %w", err)
	}
	m.Status = models.StatusFinished
	if err := s.records.WriteMatch(ctx, m); err != nil {
		return fmt.Errorf("finish match: %w", err)
	}
	if err := apply(m); err != nil {
		return fmt.Errorf("save finished match: %w", err)
	}
	s.metrics.MatchFinished()
	log.Printf("[SCORE] Match %s finished, winner %s", matchID, winner)
	return nil
}
