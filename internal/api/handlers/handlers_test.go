package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/game"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/identity"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/match"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/ws"
)

const testSecret = "test-secret"

type fakeService struct {
	mu     sync.Mutex
	err    error
	create match.CreateCommand
	join   match.JoinCommand
	score  match.ScoreCommand
	state  [2]string
}

func (f *fakeService) reply(action string) (*match.SocketMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &match.SocketMessage{Action: action, Message: "m1", Metadata: &game.Metadata{Game: &game.GameView{ID: "m1"}}}, nil
}

func (f *fakeService) Create(_ context.Context, cmd match.CreateCommand) (*match.SocketMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.create = cmd
	return f.reply(match.ActionCreate)
}

func (f *fakeService) Join(_ context.Context, cmd match.JoinCommand) (*match.SocketMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.join = cmd
	return f.reply(match.ActionJoin)
}

func (f *fakeService) Score(_ context.Context, cmd match.ScoreCommand) (*match.SocketMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.score = cmd
	return f.reply(match.ActionScore)
}

func (f *fakeService) State(_ context.Context, matchID, ident string) (*match.SocketMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = [2]string{matchID, ident}
	return f.reply(match.ActionState)
}

func matchRouter(svc MatchService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/api/v1/matches", AuthMiddleware(testSecret))
	g.POST("", CreateMatch(svc))
	g.POST("/:id/join", JoinMatch(svc))
	g.POST("/:id/score", ScoreMatch(svc))
	g.GET("/:id", GetMatch(svc))
	return r
}

func bearer(t *testing.T, subject string) string {
	t.Helper()
	token, err := identity.IssueToken(testSecret, subject, time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return "Bearer " + token
}

func do(r http.Handler, method, path, auth, conn, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	if conn != "" {
		req.Header.Set(ConnectionHeader, conn)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMatchRoutesRequireToken(t *testing.T) {
	r := matchRouter(&fakeService{})
	if w := do(r, http.MethodGet, "/api/v1/matches/m1", "", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/api/v1/matches/m1", "Bearer garbage", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d", w.Code)
	}
}

func TestMatchCommandsCarryCallerContext(t *testing.T) {
	svc := &fakeService{}
	r := matchRouter(svc)
	auth := bearer(t, "auth|anna")

	w := do(r, http.MethodPost, "/api/v1/matches", auth, "conn-a", `{"sets":3,"legs":5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("create status = %d: %s", w.Code, w.Body)
	}
	if svc.create.Identity != "auth|anna" || svc.create.ConnectionID != "conn-a" || svc.create.Sets != 3 || svc.create.Legs != 5 {
		t.Errorf("create command = %+v", svc.create)
	}
	if w.Header().Get("X-Match-ID") != "m1" {
		t.Errorf("X-Match-ID = %q", w.Header().Get("X-Match-ID"))
	}

	w = do(r, http.MethodPost, "/api/v1/matches/m1/join", auth, "conn-a", "")
	if w.Code != http.StatusOK || svc.join.MatchID != "m1" || svc.join.ConnectionID != "conn-a" {
		t.Errorf("join status = %d command = %+v", w.Code, svc.join)
	}

	w = do(r, http.MethodPost, "/api/v1/matches/m1/score", auth, "conn-a", `{"input":60,"score":441}`)
	if w.Code != http.StatusOK || svc.score.Input != 60 || svc.score.Score != 441 || svc.score.MatchID != "m1" {
		t.Errorf("score status = %d command = %+v", w.Code, svc.score)
	}

	w = do(r, http.MethodGet, "/api/v1/matches/m1", auth, "", "")
	if w.Code != http.StatusOK || svc.state != [2]string{"m1", "auth|anna"} {
		t.Errorf("state status = %d args = %v", w.Code, svc.state)
	}
	var msg match.SocketMessage
	if err := json.Unmarshal(w.Body.Bytes(), &msg); err != nil || msg.Metadata.Game.ID != "m1" {
		t.Errorf("body = %s (%v)", w.Body, err)
	}
}

func TestMatchErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad", match.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: m1", match.ErrMatchNotFound), http.StatusNotFound},
		{match.ErrMatchFull, http.StatusConflict},
		{errors.New("redis down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		r := matchRouter(&fakeService{err: tc.err})
		w := do(r, http.MethodPost, "/api/v1/matches/m1/join", bearer(t, "auth|anna"), "conn-a", "")
		if w.Code != tc.want {
			t.Errorf("%v: status = %d, want %d", tc.err, w.Code, tc.want)
		}
		if tc.want == http.StatusInternalServerError && strings.Contains(w.Body.String(), "redis") {
			t.Errorf("internal error leaked: %s", w.Body)
		}
	}
}

func TestScoreRejectsMalformedBody(t *testing.T) {
	r := matchRouter(&fakeService{})
	w := do(r, http.MethodPost, "/api/v1/matches/m1/score", bearer(t, "auth|anna"), "conn-a", `{"input":"lots"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

type fakePlayers struct {
	mu      sync.Mutex
	updated map[string]string
}

func (f *fakePlayers) ResolvePlayerID(_ context.Context, ident string) (string, error) {
	return strings.TrimPrefix(ident, "auth|"), nil
}

func (f *fakePlayers) UpdateConnection(_ context.Context, playerID, connectionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated[playerID] = connectionID
	return nil
}

func (f *fakePlayers) get(playerID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updated[playerID]
}

func TestWebSocketDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := ws.NewHub()
	go hub.Run(ctx)

	svc := &fakeService{}
	players := &fakePlayers{updated: map[string]string{}}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", HandleWebSocket(hub, svc, players, testSecret))
	srv := httptest.NewServer(r)
	defer srv.Close()

	token, _ := identity.IssueToken(testSecret, "auth|anna", time.Minute)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var open match.SocketMessage
	if err := conn.ReadJSON(&open); err != nil {
		t.Fatalf("read open frame: %v", err)
	}
	if open.Action != ActionConnectionOpen || open.Message == "" {
		t.Fatalf("open frame = %+v", open)
	}

	conn.WriteJSON(map[string]interface{}{"action": match.ActionJoin, "message": map[string]string{"gameId": "m1"}})
	var joined match.SocketMessage
	if err := conn.ReadJSON(&joined); err != nil {
		t.Fatalf("read join reply: %v", err)
	}
	if joined.Action != match.ActionJoin {
		t.Errorf("reply = %+v", joined)
	}
	svc.mu.Lock()
	got := svc.join
	svc.mu.Unlock()
	if got.MatchID != "m1" || got.Identity != "auth|anna" || got.ConnectionID != open.Message {
		t.Errorf("join command = %+v", got)
	}
	if players.get("anna") != open.Message {
		t.Errorf("connection not registered on open: %q", players.get("anna"))
	}

	conn.WriteJSON(map[string]interface{}{"action": "games/x01/bogus"})
	var frame errorFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	if frame.Status != http.StatusBadRequest || frame.Error != "unknown action" {
		t.Errorf("error frame = %+v", frame)
	}
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", HandleWebSocket(ws.NewHub(), &fakeService{}, &fakePlayers{}, testSecret))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws?token=nope", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}
