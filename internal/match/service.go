package match

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/cache"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/metrics"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/models"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/store"
)

// IdentityResolver maps an external identity to a player id
type IdentityResolver interface {
	ResolvePlayerID(ctx context.Context, externalIdentity string) (string, error)
}

// ConnectionRegistry records the live connection of a player
type ConnectionRegistry interface {
	UpdateConnection(ctx context.Context, playerID, connectionID string) error
}

// MeetingService opens video rooms and hands out participant credentials
type MeetingService interface {
	CreateRoom(ctx context.Context, name string) (string, error)
	JoinRoom(ctx context.Context, roomID, displayName, playerID string) (string, error)
}

// RecordStore persists individual records next to the cached aggregate
type RecordStore interface {
	CreateMatch(ctx context.Context, m models.Match) error
	WriteMatch(ctx context.Context, m models.Match) error
	ReadMatch(ctx context.Context, matchID string) (models.Match, error)
	WritePlayer(ctx context.Context, p models.Player) error
	WriteThrow(ctx context.Context, t models.Throw) error
	DeleteThrow(ctx context.Context, throwID string) error
	ReadUser(ctx context.Context, userID string) (models.User, error)
}

// Snapshots loads and creates per-command aggregate snapshots
type Snapshots interface {
	Load(ctx context.Context, matchID string) (*cache.Snapshot, error)
	Create(ctx context.Context, m models.Match) (*cache.Snapshot, error)
}

// Pusher delivers a payload to one live connection
type Pusher interface {
	Push(ctx context.Context, connectionID string, payload []byte) error
}

// Deps are the collaborators of the match flows
type Deps struct {
	Identities  IdentityResolver
	Connections ConnectionRegistry
	Meetings    MeetingService
	Records     RecordStore
	Snapshots   Snapshots
	Pusher      Pusher
	Metrics     *metrics.Metrics
}

type Options struct {
	RequiredPlayers int
	StartingScore   int
	// Optimistic retries a flow when the aggregate save loses a version race
	Optimistic  bool
	MaxRetries  int
	PushTimeout time.Duration
}

// Service runs the create, join, score and state commands of X01 matches.
// It holds no match state between calls.
type Service struct {
	identities  IdentityResolver
	connections ConnectionRegistry
	meetings    MeetingService
	records     RecordStore
	snapshots   Snapshots
	pusher      Pusher
	metrics     *metrics.Metrics
	opts        Options
	now         func() time.Time
}

func NewService(d Deps, opts Options) *Service {
	if opts.RequiredPlayers < 1 {
		opts.RequiredPlayers = 2
	}
	if opts.StartingScore <= 0 {
		opts.StartingScore = 501
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Service{
		identities:  d.Identities,
		connections: d.Connections,
		meetings:    d.Meetings,
		records:     d.Records,
		snapshots:   d.Snapshots,
		pusher:      d.Pusher,
		metrics:     d.Metrics,
		opts:        opts,
		now:         time.Now,
	}
}

// resolve returns the player id of identity; unknown identities are a not-found failure
func (s *Service) resolve(ctx context.Context, identity string) (string, error) {
	playerID, err := s.identities.ResolvePlayerID(ctx, identity)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w: identity %s", ErrPlayerNotFound, identity)
	}
	if err != nil {
		return "", fmt.Errorf("resolve identity: %w", err)
	}
	return playerID, nil
}

// load returns the snapshot of matchID, failing when the match does not exist
func (s *Service) load(ctx context.Context, matchID string) (*cache.Snapshot, error) {
	snap, err := s.snapshots.Load(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("load match %s: %w", matchID, err)
	}
	if !snap.Exists() {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
	}
	return snap, nil
}

// attempt runs one load-mutate-save step. In optimistic mode a lost version
// race re-runs the step from a fresh load.
func (s *Service) attempt(tag string, step func() error) error {
	tries := 1
	if s.opts.Optimistic {
		tries += s.opts.MaxRetries
	}
	var err error
	for i := 1; i <= tries; i++ {
		err = step()
		if !errors.Is(err, store.ErrConflict) {
			return err
		}
		s.metrics.Conflict()
		log.Printf("[%s] aggregate changed underneath, attempt %d/%d", tag, i, tries)
	}
	return err
}
