package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/models"
)

// Postgres is the durable per-record store for matches, players, throws and users
type Postgres struct {
	db *sqlx.DB
}

func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

type matchRow struct {
	MatchID           string    `db:"match_id"`
	Type              string    `db:"match_type"`
	Status            string    `db:"status"`
	PlayerCount       int       `db:"player_count"`
	Sets              int       `db:"sets"`
	Legs              int       `db:"legs"`
	DoubleIn          bool      `db:"double_in"`
	DoubleOut         bool      `db:"double_out"`
	StartingScore     int       `db:"starting_score"`
	MeetingIdentifier string    `db:"meeting_identifier"`
	CreatedAt         time.Time `db:"created_at"`
}

func (r matchRow) toModel() models.Match {
	return models.Match{
		MatchID:     r.MatchID,
		Type:        r.Type,
		Status:      models.MatchStatus(r.Status),
		PlayerCount: r.PlayerCount,
		X01: models.X01Settings{
			Sets:          r.Sets,
			Legs:          r.Legs,
			DoubleIn:      r.DoubleIn,
			DoubleOut:     r.DoubleOut,
			StartingScore: r.StartingScore,
		},
		MeetingIdentifier: r.MeetingIdentifier,
		CreatedAt:         r.CreatedAt.UTC(),
	}
}

type userRow struct {
	UserID             string    `db:"user_id"`
	AuthProviderUserID string    `db:"auth_provider_user_id"`
	ConnectionID       string    `db:"connection_id"`
	CreatedAt          time.Time `db:"created_at"`
	models.UserProfile
}

func (r userRow) toModel() models.User {
	return models.User{
		UserID:             r.UserID,
		AuthProviderUserID: r.AuthProviderUserID,
		ConnectionID:       r.ConnectionID,
		Profile:            r.UserProfile,
		CreatedAt:          r.CreatedAt.UTC(),
	}
}

const matchColumns = `match_id, match_type, status, player_count, sets, legs, double_in, double_out, starting_score, meeting_identifier, created_at`

const userColumns = `user_id, auth_provider_user_id, connection_id, user_name, email, country, picture, created_at`

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// CreateMatch inserts a new match and fails if the id is already taken
func (p *Postgres) CreateMatch(ctx context.Context, m models.Match) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO matches (`+matchColumns+`, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
	`, m.MatchID, m.Type, string(m.Status), m.PlayerCount, m.X01.Sets, m.X01.Legs,
		m.X01.DoubleIn, m.X01.DoubleOut, m.X01.StartingScore, m.MeetingIdentifier, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("create match %s: %w", m.MatchID, err)
	}
	return nil
}

// WriteMatch inserts the match or updates its mutable fields
func (p *Postgres) WriteMatch(ctx context.Context, m models.Match) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO matches (`+matchColumns+`, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (match_id) DO UPDATE SET
			status = EXCLUDED.status,
			player_count = EXCLUDED.player_count,
			meeting_identifier = EXCLUDED.meeting_identifier,
			updated_at = NOW()
	`, m.MatchID, m.Type, string(m.Status), m.PlayerCount, m.X01.Sets, m.X01.Legs,
		m.X01.DoubleIn, m.X01.DoubleOut, m.X01.StartingScore, m.MeetingIdentifier, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("write match %s: %w", m.MatchID, err)
	}
	return nil
}

// ReadMatch returns the authoritative match record
func (p *Postgres) ReadMatch(ctx context.Context, matchID string) (models.Match, error) {
	var row matchRow
	err := p.db.GetContext(ctx, &row, `SELECT `+matchColumns+` FROM matches WHERE match_id=$1`, matchID)
	if err != nil {
		return models.Match{}, notFound(err, "read match "+matchID)
	}
	return row.toModel(), nil
}

// WritePlayer records a participant; a repeated write is a no-op
func (p *Postgres) WritePlayer(ctx context.Context, pl models.Player) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO match_players (match_id, player_id, meeting_token, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (match_id, player_id) DO NOTHING
	`, pl.MatchID, pl.PlayerID, pl.MeetingToken, pl.CreatedAt)
	if err != nil {
		return fmt.Errorf("write player %s/%s: %w", pl.MatchID, pl.PlayerID, err)
	}
	return nil
}

// WriteThrow upserts a throw by id. A retried score flow may re-stamp the
// same throw, so set, leg and timestamps follow the latest write.
func (p *Postgres) WriteThrow(ctx context.Context, t models.Throw) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO throws (id, match_id, player_id, score, remaining_score, set_number, leg_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			remaining_score = EXCLUDED.remaining_score,
			set_number = EXCLUDED.set_number,
			leg_number = EXCLUDED.leg_number,
			created_at = EXCLUDED.created_at
	`, t.ID, t.MatchID, t.PlayerID, t.Score, t.RemainingScore, t.Set, t.Leg, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("write throw %s: %w", t.ID, err)
	}
	return nil
}

// DeleteThrow removes a throw row that no aggregate save ever carried
func (p *Postgres) DeleteThrow(ctx context.Context, throwID string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM throws WHERE id=$1`, throwID); err != nil {
		return fmt.Errorf("delete throw %s: %w", throwID, err)
	}
	return nil
}

// ListPlayers returns the participants of a match in join order
func (p *Postgres) ListPlayers(ctx context.Context, matchID string) ([]models.Player, error) {
	players := []models.Player{}
	err := p.db.SelectContext(ctx, &players, `
		SELECT match_id, player_id, meeting_token, created_at
		FROM match_players
		WHERE match_id=$1
		ORDER BY created_at, player_id
	`, matchID)
	if err != nil {
		return nil, fmt.Errorf("list players %s: %w", matchID, err)
	}
	return players, nil
}

// ListThrows returns the throw log of a match in creation order
func (p *Postgres) ListThrows(ctx context.Context, matchID string) ([]models.Throw, error) {
	throws := []models.Throw{}
	err := p.db.SelectContext(ctx, &throws, `
		SELECT id, match_id, player_id, score, remaining_score, set_number, leg_number, created_at
		FROM throws
		WHERE match_id=$1
		ORDER BY created_at, id
	`, matchID)
	if err != nil {
		return nil, fmt.Errorf("list throws %s: %w", matchID, err)
	}
	return throws, nil
}

// ReadUser returns the user behind a player id
func (p *Postgres) ReadUser(ctx context.Context, userID string) (models.User, error) {
	var row userRow
	err := p.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE user_id=$1`, userID)
	if err != nil {
		return models.User{}, notFound(err, "read user "+userID)
	}
	return row.toModel(), nil
}

// ReadUserByIdentity returns the user registered for an external identity
func (p *Postgres) ReadUserByIdentity(ctx context.Context, authProviderUserID string) (models.User, error) {
	var row userRow
	err := p.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE auth_provider_user_id=$1`, authProviderUserID)
	if err != nil {
		return models.User{}, notFound(err, "read identity "+authProviderUserID)
	}
	return row.toModel(), nil
}

// ListUsers returns the users with the given ids, in no particular order
func (p *Postgres) ListUsers(ctx context.Context, userIDs []string) ([]models.User, error) {
	var rows []userRow
	err := p.db.SelectContext(ctx, &rows, `SELECT `+userColumns+` FROM users WHERE user_id = ANY($1)`, pq.Array(userIDs))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]models.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toModel())
	}
	return users, nil
}

// WriteUser inserts a user or refreshes its profile
func (p *Postgres) WriteUser(ctx context.Context, u models.User) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			user_name = EXCLUDED.user_name,
			email = EXCLUDED.email,
			country = EXCLUDED.country,
			picture = EXCLUDED.picture,
			updated_at = NOW()
	`, u.UserID, u.AuthProviderUserID, u.ConnectionID, u.Profile.UserName, u.Profile.Email,
		u.Profile.Country, u.Profile.Picture, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("write user %s: %w", u.UserID, err)
	}
	return nil
}

// UpdateConnection stores the live connection id of a user
func (p *Postgres) UpdateConnection(ctx context.Context, userID, connectionID string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE users SET connection_id=$2, updated_at=NOW() WHERE user_id=$1
	`, userID, connectionID)
	if err != nil {
		return fmt.Errorf("update connection %s: %w", userID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update connection %s: %w", userID, ErrNotFound)
	}
	return nil
}
