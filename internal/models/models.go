package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// MatchStatus is the lifecycle status of a match
type MatchStatus string

const (
	StatusQualifying MatchStatus = "Qualifying"
	StatusStarted    MatchStatus = "Started"
	StatusFinished   MatchStatus = "Finished"
)

// MatchTypeX01 is the only game variant served
const MatchTypeX01 = "X01"

// X01Settings is the configuration of an X01 match
type X01Settings struct {
	Sets          int  `json:"sets"`
	Legs          int  `json:"legs"`
	DoubleIn      bool `json:"double_in"`
	DoubleOut     bool `json:"double_out"`
	StartingScore int  `json:"starting_score"`
}

// NewX01Settings returns settings with the house defaults: 501, double out.
func NewX01Settings(sets, legs, startingScore int) X01Settings {
	if startingScore <= 0 {
		startingScore = 501
	}
	return X01Settings{
		Sets:          sets,
		Legs:          legs,
		DoubleIn:      false,
		DoubleOut:     true,
		StartingScore: startingScore,
	}
}

// LegsToWinSet returns the legs a player needs to take a set (best-of)
func (s X01Settings) LegsToWinSet() int {
	return (s.Legs + 1) / 2
}

// SetsToWinMatch returns the sets a player needs to take the match (best-of)
func (s X01Settings) SetsToWinMatch() int {
	return (s.Sets + 1) / 2
}

// Match is the header record of one X01 contest
type Match struct {
	MatchID           string      `json:"match_id"`
	Type              string      `json:"type"`
	Status            MatchStatus `json:"status"`
	PlayerCount       int         `json:"player_count"`
	X01               X01Settings `json:"x01"`
	MeetingIdentifier string      `json:"meeting_identifier"`
	CreatedAt         time.Time   `json:"created_at"`
}

// NewMatchID returns a time-ordered, globally unique match identifier (UUIDv7)
func NewMatchID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewMatch creates a qualifying match waiting for playerCount players
func NewMatch(playerCount int, settings X01Settings, meetingIdentifier string, now time.Time) Match {
	return Match{
		MatchID:           NewMatchID(),
		Type:              MatchTypeX01,
		Status:            StatusQualifying,
		PlayerCount:       playerCount,
		X01:               settings,
		MeetingIdentifier: meetingIdentifier,
		CreatedAt:         now.UTC(),
	}
}

// Player is one participant of a match
type Player struct {
	MatchID      string    `db:"match_id" json:"match_id"`
	PlayerID     string    `db:"player_id" json:"player_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	MeetingToken string    `db:"meeting_token" json:"meeting_token,omitempty"`
}

// NewPlayer creates the participant record for playerID
func NewPlayer(matchID, playerID, meetingToken string, now time.Time) Player {
	return Player{
		MatchID:      matchID,
		PlayerID:     playerID,
		CreatedAt:    now.UTC(),
		MeetingToken: meetingToken,
	}
}

// Throw is one recorded scoring turn. Immutable once written.
type Throw struct {
	ID             string    `db:"id" json:"id"`
	MatchID        string    `db:"match_id" json:"match_id"`
	PlayerID       string    `db:"player_id" json:"player_id"`
	Score          int       `db:"score" json:"score"`
	RemainingScore int       `db:"remaining_score" json:"remaining_score"`
	Set            int       `db:"set_number" json:"set"`
	Leg            int       `db:"leg_number" json:"leg"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// NewThrow creates a throw with a fresh id
func NewThrow(matchID, playerID string, score, remaining, set, leg int, createdAt time.Time) Throw {
	return Throw{
		ID:             uuid.NewString(),
		MatchID:        matchID,
		PlayerID:       playerID,
		Score:          score,
		RemainingScore: remaining,
		Set:            set,
		Leg:            leg,
		CreatedAt:      createdAt.UTC(),
	}
}

// IsCheckout reports whether the throw closed its leg
func (t Throw) IsCheckout() bool {
	return t.RemainingScore == 0
}

// UserProfile is the public profile shown next to a player
type UserProfile struct {
	UserName string `db:"user_name" json:"user_name"`
	Email    string `db:"email" json:"email,omitempty"`
	Country  string `db:"country" json:"country"`
	Picture  string `db:"picture" json:"picture,omitempty"`
}

// User is a lightweight profile plus the live connection of a player
type User struct {
	UserID             string      `json:"user_id"`
	AuthProviderUserID string      `json:"auth_provider_user_id"`
	ConnectionID       string      `json:"connection_id"`
	Profile            UserProfile `json:"profile"`
	CreatedAt          time.Time   `json:"created_at"`
}

// AdminAccount is an operator allowed to inspect and repair match state
type AdminAccount struct {
	Phone       string         `db:"phone" json:"phone"`
	DisplayName string         `db:"display_name" json:"display_name"`
	TokenHash   string         `db:"token_hash" json:"-"`
	Roles       pq.StringArray `db:"roles" json:"roles"`
	AllowedIPs  pq.StringArray `db:"allowed_ips" json:"allowed_ips"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// AdminAudit is one audited operator action
type AdminAudit struct {
	ID         int             `db:"id" json:"id"`
	AdminPhone string          `db:"admin_phone" json:"admin_phone"`
	IP         string          `db:"ip" json:"ip"`
	Route      string          `db:"route" json:"route"`
	Action     string          `db:"action" json:"action"`
	Details    json.RawMessage `db:"details" json:"details"`
	Success    bool            `db:"success" json:"success"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}
