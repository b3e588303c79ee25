package game

import (
	"fmt"
	"strings"
)

// Calculate derives the match view from an aggregate. It is pure: the
// aggregate is not modified and nothing is read from outside it.
func Calculate(agg *Aggregate) (*Metadata, error) {
	p, err := replay(agg)
	if err != nil {
		return nil, err
	}

	md := &Metadata{
		Game: &GameView{
			ID:          agg.Match.MatchID,
			Type:        agg.Match.Type,
			Status:      agg.Match.Status,
			PlayerCount: agg.Match.PlayerCount,
			X01:         agg.Match.X01,
		},
		Players:           make([]PlayerView, 0, len(agg.Players)),
		Darts:             make(map[string][]DartView, len(agg.Players)),
		MeetingIdentifier: agg.Match.MeetingIdentifier,
	}

	current := p.currentSet()
	_, currentClosed := p.setClosedAt[current]

	for _, pl := range agg.Players {
		u, ok := agg.User(pl.PlayerID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownUser, pl.PlayerID)
		}
		legs := 0
		if !currentClosed {
			legs = p.legWins[current][pl.PlayerID]
		}
		md.Players = append(md.Players, PlayerView{
			PlayerID:   pl.PlayerID,
			PlayerName: u.Profile.UserName,
			Country:    strings.ToLower(u.Profile.Country),
			Sets:       p.setsWon[pl.PlayerID],
			Legs:       legs,
		})
		md.Darts[pl.PlayerID] = []DartView{}
	}

	// Only the open leg is shown: throws strictly after the last checkout.
	checkout, hasCheckout := p.lastCheckout()
	for _, t := range p.throws {
		if hasCheckout && !t.CreatedAt.After(checkout.CreatedAt) {
			continue
		}
		md.Darts[t.PlayerID] = append(md.Darts[t.PlayerID], dartView(t))
	}

	if p.winner != "" {
		w := p.winner
		md.WinningPlayer = &w
		return md, nil
	}

	if next := nextPlayer(agg, p); next != "" {
		md.NextPlayer = &next
	}
	return md, nil
}

// CalculateFor is Calculate plus the meeting credential of playerID, when
// that caller participates in the match.
func CalculateFor(agg *Aggregate, playerID string) (*Metadata, error) {
	md, err := Calculate(agg)
	if err != nil {
		return nil, err
	}
	if pl, ok := agg.Player(playerID); ok {
		md.MeetingToken = pl.MeetingToken
	}
	return md, nil
}

// nextPlayer resolves whose turn it is in an undecided match.
//
// Mid-leg the turn passes to the next player in join order. When the last
// throw closed a leg the next leg is opened by the other player if the
// winner also opened the leg, otherwise by the winner. When it closed a set
// the player after the opener of that set opens the next one.
func nextPlayer(agg *Aggregate, p *progress) string {
	if len(agg.Players) < 2 {
		return ""
	}
	last, ok := p.last()
	if !ok {
		return agg.Players[0].PlayerID
	}
	if !last.IsCheckout() {
		return playerAfter(agg, last.PlayerID)
	}

	if idx, closed := p.setClosedAt[last.Set]; closed && idx == len(p.throws)-1 {
		opener, ok := p.firstThrow(last.Set, 0)
		if !ok {
			return playerAfter(agg, last.PlayerID)
		}
		return playerAfter(agg, opener.PlayerID)
	}

	opener, ok := p.firstThrow(last.Set, last.Leg)
	if !ok || opener.PlayerID == last.PlayerID {
		return playerAfter(agg, last.PlayerID)
	}
	return last.PlayerID
}

// playerAfter returns the participant following playerID in join order, wrapping
func playerAfter(agg *Aggregate, playerID string) string {
	i := agg.playerIndex(playerID)
	if i < 0 {
		return agg.Players[0].PlayerID
	}
	return agg.Players[(i+1)%len(agg.Players)].PlayerID
}
