package game

import (
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/models"
)

// Aggregate is the cached snapshot of one match: header, participants,
// the full throw log and the lightweight users behind the players.
// It is persisted and loaded as a single unit keyed by match id.
type Aggregate struct {
	Match   *models.Match   `json:"match"`
	Players []models.Player `json:"players"`
	Throws  []models.Throw  `json:"throws"`
	Users   []models.User   `json:"users"`
	Version int64           `json:"version"`
}

// NewAggregate creates an empty aggregate for a freshly created match
func NewAggregate(match models.Match) *Aggregate {
	m := match
	return &Aggregate{
		Match:   &m,
		Players: []models.Player{},
		Throws:  []models.Throw{},
		Users:   []models.User{},
	}
}

// MatchID returns the id of the match held by the aggregate
func (a *Aggregate) MatchID() string {
	if a == nil || a.Match == nil {
		return ""
	}
	return a.Match.MatchID
}

// HasPlayer reports whether playerID already participates in the match
func (a *Aggregate) HasPlayer(playerID string) bool {
	return a.playerIndex(playerID) >= 0
}

// Player returns the participant record of playerID
func (a *Aggregate) Player(playerID string) (models.Player, bool) {
	if i := a.playerIndex(playerID); i >= 0 {
		return a.Players[i], true
	}
	return models.Player{}, false
}

func (a *Aggregate) playerIndex(playerID string) int {
	for i, p := range a.Players {
		if p.PlayerID == playerID {
			return i
		}
	}
	return -1
}

// AddPlayer appends p unless a player with the same id is present.
// Returns true when the player was added.
func (a *Aggregate) AddPlayer(p models.Player) bool {
	if a.HasPlayer(p.PlayerID) {
		return false
	}
	a.Players = append(a.Players, p)
	return true
}

// AddThrow appends t to the throw log
func (a *Aggregate) AddThrow(t models.Throw) {
	a.Throws = append(a.Throws, t)
}

// User returns the user record of userID
func (a *Aggregate) User(userID string) (models.User, bool) {
	for _, u := range a.Users {
		if u.UserID == userID {
			return u, true
		}
	}
	return models.User{}, false
}

// AddUser appends u unless a user with the same id is present
func (a *Aggregate) AddUser(u models.User) bool {
	if _, ok := a.User(u.UserID); ok {
		return false
	}
	a.Users = append(a.Users, u)
	return true
}

// SetMatch replaces the match header (status transitions)
func (a *Aggregate) SetMatch(m models.Match) {
	mm := m
	a.Match = &mm
}

// SetConnection refreshes the live connection id of a known user.
// Returns false when the user is not part of the aggregate.
func (a *Aggregate) SetConnection(userID, connectionID string) bool {
	for i := range a.Users {
		if a.Users[i].UserID == userID {
			a.Users[i].ConnectionID = connectionID
			return true
		}
	}
	return false
}

// ConnectionIDs returns the non-empty live connection ids of every user
func (a *Aggregate) ConnectionIDs() []string {
	ids := make([]string, 0, len(a.Users))
	for _, u := range a.Users {
		if u.ConnectionID != "" {
			ids = append(ids, u.ConnectionID)
		}
	}
	return ids
}

// IsFull reports whether the required number of players has joined
func (a *Aggregate) IsFull() bool {
	return a.Match != nil && a.Match.PlayerCount > 0 && len(a.Players) >= a.Match.PlayerCount
}
