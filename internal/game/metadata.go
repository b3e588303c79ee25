package game

import (
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/models"
)

// Metadata is the derived, never persisted view of a match sent to clients
type Metadata struct {
	Game              *GameView             `json:"game"`
	Players           []PlayerView          `json:"players"`
	Darts             map[string][]DartView `json:"darts"`
	NextPlayer        *string               `json:"next_player"`
	WinningPlayer     *string               `json:"winning_player"`
	MeetingIdentifier string                `json:"meeting_identifier,omitempty"`
	MeetingToken      string                `json:"meeting_token,omitempty"`
}

// GameView describes the match header
type GameView struct {
	ID          string             `json:"id"`
	Type        string             `json:"type"`
	Status      models.MatchStatus `json:"status"`
	PlayerCount int                `json:"player_count"`
	X01         models.X01Settings `json:"x01"`
}

// PlayerView is one participant with the score line
type PlayerView struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
	Country    string `json:"country"`
	Sets       int    `json:"sets"`
	Legs       int    `json:"legs"`
}

// DartView is one throw of the open leg
type DartView struct {
	ID             string `json:"id"`
	Score          int    `json:"score"`
	RemainingScore int    `json:"remaining_score"`
	Set            int    `json:"set"`
	Leg            int    `json:"leg"`
	CreatedAt      int64  `json:"created_at"`
}

// Decided reports whether the match has a winner
func (m *Metadata) Decided() bool {
	return m != nil && m.WinningPlayer != nil
}

// Winner returns the winning player id or ""
func (m *Metadata) Winner() string {
	if m == nil || m.WinningPlayer == nil {
		return ""
	}
	return *m.WinningPlayer
}

// Next returns the next-to-throw player id or ""
func (m *Metadata) Next() string {
	if m == nil || m.NextPlayer == nil {
		return ""
	}
	return *m.NextPlayer
}

func dartView(t models.Throw) DartView {
	return DartView{
		ID:             t.ID,
		Score:          t.Score,
		RemainingScore: t.RemainingScore,
		Set:            t.Set,
		Leg:            t.Leg,
		CreatedAt:      t.CreatedAt.UnixMicro(),
	}
}
