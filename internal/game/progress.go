package game

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/models"
)

var (
	ErrNoMatch           = errors.New("aggregate has no match")
	ErrUnknownPlayer     = errors.New("throw references unknown player")
	ErrUnknownUser       = errors.New("player has no user record")
	ErrDuplicateCheckout = errors.New("leg closed more than once")
)

type legKey struct {
	set int
	leg int
}

// progress is the replayed set/leg state of a throw log
type progress struct {
	throws      []models.Throw         // chronological, truncated at the deciding throw
	legWins     map[int]map[string]int // set -> player -> legs won
	setsWon     map[string]int
	setClosedAt map[int]int // set -> index of the throw that closed it
	winner      string
}

// orderedThrows returns the log sorted by creation time, keeping log order on ties
func orderedThrows(throws []models.Throw) []models.Throw {
	out := make([]models.Throw, len(throws))
	copy(out, throws)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// validateThrows checks every throw names a participant and no leg closes twice
func validateThrows(agg *Aggregate) error {
	seen := make(map[legKey]string)
	for _, t := range agg.Throws {
		if !agg.HasPlayer(t.PlayerID) {
			return fmt.Errorf("%w: throw %s player %s", ErrUnknownPlayer, t.ID, t.PlayerID)
		}
		if !t.IsCheckout() {
			continue
		}
		k := legKey{t.Set, t.Leg}
		if prev, ok := seen[k]; ok {
			return fmt.Errorf("%w: set %d leg %d by %s and %s", ErrDuplicateCheckout, t.Set, t.Leg, prev, t.PlayerID)
		}
		seen[k] = t.PlayerID
	}
	return nil
}

// replay walks the throw log in time order and resolves legs, sets and the
// match winner. Throws after the deciding checkout are dropped.
func replay(agg *Aggregate) (*progress, error) {
	if agg == nil || agg.Match == nil {
		return nil, ErrNoMatch
	}
	if err := validateThrows(agg); err != nil {
		return nil, err
	}

	legsToWin := agg.Match.X01.LegsToWinSet()
	setsToWin := agg.Match.X01.SetsToWinMatch()

	p := &progress{
		legWins:     make(map[int]map[string]int),
		setsWon:     make(map[string]int),
		setClosedAt: make(map[int]int),
	}

	ordered := orderedThrows(agg.Throws)
	for i, t := range ordered {
		p.throws = append(p.throws, t)
		if !t.IsCheckout() {
			continue
		}
		if _, ok := p.legWins[t.Set]; !ok {
			p.legWins[t.Set] = make(map[string]int)
		}
		p.legWins[t.Set][t.PlayerID]++

		if _, closed := p.setClosedAt[t.Set]; closed {
			continue
		}
		if p.legWins[t.Set][t.PlayerID] >= legsToWin {
			p.setClosedAt[t.Set] = i
			p.setsWon[t.PlayerID]++
			if p.setsWon[t.PlayerID] >= setsToWin {
				p.winner = t.PlayerID
				break
			}
		}
	}
	return p, nil
}

// last returns the most recent considered throw
func (p *progress) last() (models.Throw, bool) {
	if len(p.throws) == 0 {
		return models.Throw{}, false
	}
	return p.throws[len(p.throws)-1], true
}

// currentSet is the set of the most recent considered throw
func (p *progress) currentSet() int {
	if t, ok := p.last(); ok {
		return t.Set
	}
	return 1
}

// lastCheckout returns the most recent leg-closing throw
func (p *progress) lastCheckout() (models.Throw, bool) {
	for i := len(p.throws) - 1; i >= 0; i-- {
		if p.throws[i].IsCheckout() {
			return p.throws[i], true
		}
	}
	return models.Throw{}, false
}

// firstThrow returns the opening throw of a set (leg == 0) or of a set/leg
func (p *progress) firstThrow(set, leg int) (models.Throw, bool) {
	for _, t := range p.throws {
		if t.Set == set && (leg == 0 || t.Leg == leg) {
			return t, true
		}
	}
	return models.Throw{}, false
}

// NextSetLeg returns the set and leg to stamp on the next throw. It replays
// the log counting leg wins per player inside the running set: a checkout
// either opens the next leg or, when it takes the set, opens leg 1 of the
// next set.
func NextSetLeg(agg *Aggregate) (int, int) {
	set, leg := 1, 1
	if agg == nil || agg.Match == nil {
		return set, leg
	}
	legsToWin := agg.Match.X01.LegsToWinSet()
	setsToWin := agg.Match.X01.SetsToWinMatch()

	wins := make(map[string]int)
	setsWon := make(map[string]int)
	for _, t := range orderedThrows(agg.Throws) {
		if !t.IsCheckout() {
			continue
		}
		wins[t.PlayerID]++
		if wins[t.PlayerID] < legsToWin {
			leg++
			continue
		}
		setsWon[t.PlayerID]++
		set++
		leg = 1
		wins = make(map[string]int)
		if setsWon[t.PlayerID] >= setsToWin {
			break
		}
	}
	return set, leg
}

// RemainingFor returns what playerID still needs in the open leg: the
// remaining score of their latest throw in it, or the starting score.
func RemainingFor(agg *Aggregate, playerID string) int {
	if agg == nil || agg.Match == nil {
		return 0
	}
	set, leg := NextSetLeg(agg)
	remaining := agg.Match.X01.StartingScore
	for _, t := range orderedThrows(agg.Throws) {
		if t.PlayerID == playerID && t.Set == set && t.Leg == leg {
			remaining = t.RemainingScore
		}
	}
	return remaining
}

// NextThrowTime returns a creation time strictly after every throw in the log.
// Microsecond precision matches what the record store keeps.
func NextThrowTime(agg *Aggregate, now time.Time) time.Time {
	now = now.UTC().Truncate(time.Microsecond)
	if agg == nil {
		return now
	}
	for _, t := range agg.Throws {
		if !now.After(t.CreatedAt) {
			now = t.CreatedAt.Add(time.Microsecond)
		}
	}
	return now
}
