package match

import "github.com/flyingdarts/flyingdarts-turbo-sub000/internal/game"

// Action tags of commands and notifications
const (
	ActionCreate = "games/x01/create"
	ActionJoin   = "games/x01/join"
	ActionScore  = "games/x01/score"
	ActionState  = "games/x01/state"
)

// SocketMessage is the response and notification envelope
type SocketMessage struct {
	Action   string         `json:"action"`
	Message  string         `json:"message,omitempty"`
	Metadata *game.Metadata `json:"metadata"`
}

// CreateCommand opens a new X01 match
type CreateCommand struct {
	Identity     string `json:"-"`
	ConnectionID string `json:"-"`
	Sets         int    `json:"sets"`
	Legs         int    `json:"legs"`
}

// JoinCommand attaches the caller to a match
type JoinCommand struct {
	MatchID      string `json:"gameId"`
	DisplayName  string `json:"playerName"`
	Identity     string `json:"-"`
	ConnectionID string `json:"-"`
}

// ScoreCommand records one turn. Input is the points thrown, Score the
// remaining score the client computed after it.
type ScoreCommand struct {
	MatchID      string `json:"gameId"`
	Input        int    `json:"input"`
	Score        int    `json:"score"`
	Identity     string `json:"-"`
	ConnectionID string `json:"-"`
}
