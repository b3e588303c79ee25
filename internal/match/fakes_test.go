package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/cache"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/game"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/models"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/store"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/ws"
)

type fakeIdentities map[string]string

func (f fakeIdentities) ResolvePlayerID(_ context.Context, identity string) (string, error) {
	id, ok := f[identity]
	if !ok {
		return "", fmt.Errorf("identity %s: %w", identity, store.ErrNotFound)
	}
	return id, nil
}

type fakeConnections struct {
	mu      sync.Mutex
	current map[string]string
}

func (f *fakeConnections) UpdateConnection(_ context.Context, playerID, connectionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current[playerID] = connectionID
	return nil
}

type fakeMeetings struct {
	joinErr error
	joins   int
}

func (f *fakeMeetings) CreateRoom(_ context.Context, name string) (string, error) {
	return "room-" + name, nil
}

func (f *fakeMeetings) JoinRoom(_ context.Context, roomID, displayName, playerID string) (string, error) {
	if f.joinErr != nil {
		return "", f.joinErr
	}
	f.joins++
	return "tok-" + playerID, nil
}

// fakeRecords is an in-memory record store
type fakeRecords struct {
	mu          sync.Mutex
	matches     map[string]models.Match
	players     map[string]models.Player
	throws      map[string]models.Throw
	users       map[string]models.User
	matchWrites []models.Match
	throwErr    error
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{
		matches: map[string]models.Match{},
		players: map[string]models.Player{},
		throws:  map[string]models.Throw{},
		users:   map[string]models.User{},
	}
}

func (f *fakeRecords) CreateMatch(_ context.Context, m models.Match) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.matches[m.MatchID]; ok {
		return fmt.Errorf("match %s already exists", m.MatchID)
	}
	f.matches[m.MatchID] = m
	f.matchWrites = append(f.matchWrites, m)
	return nil
}

func (f *fakeRecords) WriteMatch(_ context.Context, m models.Match) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matches[m.MatchID] = m
	f.matchWrites = append(f.matchWrites, m)
	return nil
}

func (f *fakeRecords) ReadMatch(_ context.Context, id string) (models.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.matches[id]
	if !ok {
		return models.Match{}, store.ErrNotFound
	}
	return m, nil
}

func (f *fakeRecords) WritePlayer(_ context.Context, p models.Player) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.players[p.MatchID+"/"+p.PlayerID] = p
	return nil
}

func (f *fakeRecords) WriteThrow(_ context.Context, t models.Throw) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.throwErr != nil {
		return f.throwErr
	}
	f.throws[t.ID] = t
	return nil
}

func (f *fakeRecords) DeleteThrow(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.throws, id)
	return nil
}

func (f *fakeRecords) ReadUser(_ context.Context, id string) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return models.User{}, store.ErrNotFound
	}
	return u, nil
}

func (f *fakeRecords) startedWrites(matchID string) int {
	n := 0
	for _, m := range f.matchWrites {
		if m.MatchID == matchID && m.Status == models.StatusStarted {
			n++
		}
	}
	return n
}

// memAggregates stores aggregates as JSON like the redis store does, with
// an optional version check and a one-shot hook run before a put.
type memAggregates struct {
	mu         sync.Mutex
	data       map[string][]byte
	optimistic bool
	beforePut  func(matchID string)
}

func newMemAggregates(optimistic bool) *memAggregates {
	return &memAggregates{data: map[string][]byte{}, optimistic: optimistic}
}

func (m *memAggregates) Get(_ context.Context, matchID string) (*game.Aggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[matchID]
	if !ok {
		return nil, store.ErrNotFound
	}
	var agg game.Aggregate
	if err := json.Unmarshal(raw, &agg); err != nil {
		return nil, err
	}
	return &agg, nil
}

func (m *memAggregates) Put(_ context.Context, agg *game.Aggregate) error {
	m.mu.Lock()
	hook := m.beforePut
	m.beforePut = nil
	m.mu.Unlock()
	if hook != nil {
		hook(agg.MatchID())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.optimistic {
		var stored int64
		if raw, ok := m.data[agg.MatchID()]; ok {
			var head game.Aggregate
			json.Unmarshal(raw, &head)
			stored = head.Version
		}
		if stored != agg.Version {
			return store.ErrConflict
		}
	}
	agg.Version++
	raw, err := json.Marshal(agg)
	if err != nil {
		return err
	}
	m.data[agg.MatchID()] = raw
	return nil
}

// fakePusher records delivered payloads per connection
type fakePusher struct {
	mu        sync.Mutex
	delivered map[string][]SocketMessage
	gone      map[string]bool
	failing   map[string]error
}

func newFakePusher() *fakePusher {
	return &fakePusher{delivered: map[string][]SocketMessage{}, gone: map[string]bool{}, failing: map[string]error{}}
}

func (f *fakePusher) Push(_ context.Context, connectionID string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gone[connectionID] {
		return ws.ErrGone
	}
	if err := f.failing[connectionID]; err != nil {
		return err
	}
	var msg SocketMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return err
	}
	f.delivered[connectionID] = append(f.delivered[connectionID], msg)
	return nil
}

func (f *fakePusher) count(connectionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivered[connectionID])
}

func (f *fakePusher) last(connectionID string) SocketMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.delivered[connectionID]
	if len(msgs) == 0 {
		return SocketMessage{}
	}
	return msgs[len(msgs)-1]
}

func (f *fakePusher) connections() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id := range f.delivered {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// harness wires a service over the fakes with three registered users
type harness struct {
	svc        *Service
	records    *fakeRecords
	aggregates *memAggregates
	pusher     *fakePusher
	meetings   *fakeMeetings
	conns      *fakeConnections
	clock      time.Time
}

func newHarness(optimistic bool) *harness {
	h := &harness{
		records:    newFakeRecords(),
		aggregates: newMemAggregates(optimistic),
		pusher:     newFakePusher(),
		meetings:   &fakeMeetings{},
		conns:      &fakeConnections{current: map[string]string{}},
		clock:      time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC),
	}
	for _, u := range []models.User{
		{UserID: "anna", AuthProviderUserID: "auth|anna", Profile: models.UserProfile{UserName: "Anna", Country: "NL"}},
		{UserID: "bert", AuthProviderUserID: "auth|bert", Profile: models.UserProfile{UserName: "Bert", Country: "BE"}},
		{UserID: "carl", AuthProviderUserID: "auth|carl", Profile: models.UserProfile{UserName: "Carl", Country: "DE"}},
	} {
		h.records.users[u.UserID] = u
	}

	h.svc = NewService(Deps{
		Identities:  fakeIdentities{"auth|anna": "anna", "auth|bert": "bert", "auth|carl": "carl"},
		Connections: h.conns,
		Meetings:    h.meetings,
		Records:     h.records,
		Snapshots:   cache.New(h.aggregates, nil),
		Pusher:      h.pusher,
	}, Options{RequiredPlayers: 2, StartingScore: 501, Optimistic: optimistic, MaxRetries: 3, PushTimeout: time.Second})
	h.svc.now = func() time.Time {
		h.clock = h.clock.Add(time.Second)
		return h.clock
	}
	return h
}

func (h *harness) create(sets, legs int) string {
	msg, err := h.svc.Create(context.Background(), CreateCommand{Identity: "auth|anna", Sets: sets, Legs: legs})
	if err != nil {
		panic(err)
	}
	return msg.Metadata.Game.ID
}

func (h *harness) join(matchID, who, conn string) (*SocketMessage, error) {
	return h.svc.Join(context.Background(), JoinCommand{MatchID: matchID, Identity: "auth|" + who, ConnectionID: conn})
}

// startedMatch creates a match and joins anna (conn-a) then bert (conn-b)
func (h *harness) startedMatch(sets, legs int) string {
	id := h.create(sets, legs)
	if _, err := h.join(id, "anna", "conn-a"); err != nil {
		panic(err)
	}
	if _, err := h.join(id, "bert", "conn-b"); err != nil {
		panic(err)
	}
	return id
}

// score throws input for who, computing the resulting score from the current state
func (h *harness) score(matchID, who string, input int) (*SocketMessage, error) {
	agg, err := h.aggregates.Get(context.Background(), matchID)
	if err != nil {
		return nil, err
	}
	remaining := game.RemainingFor(agg, who)
	return h.svc.Score(context.Background(), ScoreCommand{
		MatchID:      matchID,
		Identity:     "auth|" + who,
		ConnectionID: "conn-" + who[:1],
		Input:        input,
		Score:        remaining - input,
	})
}

func (h *harness) aggregate(matchID string) *game.Aggregate {
	agg, err := h.aggregates.Get(context.Background(), matchID)
	if err != nil {
		panic(err)
	}
	return agg
}

var errBoom = errors.New("boom")
