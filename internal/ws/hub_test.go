package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

func testClient(id string) *Client {
	return &Client{id: id, send: make(chan []byte, 4), done: make(chan struct{})}
}

func TestPushUnknownConnectionIsGone(t *testing.T) {
	h := NewHub()
	if err := h.Push(context.Background(), "nope", []byte("{}")); !errors.Is(err, ErrGone) {
		t.Fatalf("err = %v, want ErrGone", err)
	}
}

func TestPushQueuesForLocalClient(t *testing.T) {
	h := NewHub()
	c := testClient("c1")
	h.add(c)

	if err := h.Push(context.Background(), "c1", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if got := string(<-c.send); got != `{"a":1}` {
		t.Errorf("queued payload = %s", got)
	}

	h.remove(c)
	if err := h.Push(context.Background(), "c1", []byte("{}")); !errors.Is(err, ErrGone) {
		t.Fatalf("after remove err = %v, want ErrGone", err)
	}
	if c.Send([]byte("x")) {
		t.Error("Send on closed client reported success")
	}
}

func TestPushHonoursDeadline(t *testing.T) {
	h := NewHub()
	c := &Client{id: "slow", send: make(chan []byte), done: make(chan struct{})}
	h.add(c)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := h.Push(ctx, "slow", []byte("{}")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestStoppedHubReleasesClients(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(ran)
	}()

	live := testClient("live")
	if !h.join(live) {
		t.Fatal("join on running hub refused")
	}
	cancel()
	<-ran

	left := make(chan struct{})
	go func() {
		h.leave(live)
		close(left)
	}()
	select {
	case <-left:
	case <-time.After(2 * time.Second):
		t.Fatal("leave blocked after the hub stopped")
	}

	late := testClient("late")
	joined := make(chan bool, 1)
	go func() { joined <- h.join(late) }()
	select {
	case ok := <-joined:
		if ok {
			t.Error("join succeeded on a stopped hub")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("join blocked after the hub stopped")
	}
	select {
	case <-late.done:
	default:
		t.Error("late client left open")
	}
}

type staticLocator map[string]string

func (l staticLocator) Owner(_ context.Context, id string) string { return l[id] }

func TestRelayDeliversAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	rdbA := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rdbB := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdbA.Close()
	defer rdbB.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hubA, hubB := NewHub(), NewHub()
	remote := testClient("remote")
	hubB.add(remote)

	locator := staticLocator{"remote": "p1"}
	relayA := NewRelay(hubA, rdbA, locator)
	relayB := NewRelay(hubB, rdbB, locator)
	<-relayB.Start(ctx)

	if err := relayA.Push(ctx, "remote", []byte(`{"hello":true}`)); err != nil {
		t.Fatalf("relay push: %v", err)
	}
	select {
	case got := <-remote.send:
		if string(got) != `{"hello":true}` {
			t.Errorf("delivered payload = %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("payload never reached the remote instance")
	}

	if err := relayA.Push(ctx, "unknown", []byte("{}")); !errors.Is(err, ErrGone) {
		t.Errorf("unknown connection err = %v, want ErrGone", err)
	}
}

func TestServeDispatchesFrames(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	received := make(chan Message, 1)
	opened := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Serve(w, r, "auth0|1", func(c *Client) { opened <- c.ID() }, func(_ context.Context, c *Client, msg Message) {
			received <- msg
			c.SendJSON(map[string]string{"action": msg.Action, "echo": c.Identity()})
		})
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var connID string
	select {
	case connID = <-opened:
	case <-time.After(2 * time.Second):
		t.Fatal("connection never opened")
	}

	if err := conn.WriteJSON(map[string]interface{}{"action": "games/x01/join", "message": map[string]string{"gameId": "1"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case msg := <-received:
		if msg.Action != "games/x01/join" || !strings.Contains(string(msg.Message), `"gameId"`) {
			t.Errorf("dispatched frame = %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frame never dispatched")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply map[string]string
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if reply["echo"] != "auth0|1" {
		t.Errorf("reply = %v", reply)
	}

	if err := h.Push(context.Background(), connID, []byte(`{"pushed":1}`)); err != nil {
		t.Fatalf("push to live socket: %v", err)
	}
	var pushed map[string]int
	if err := conn.ReadJSON(&pushed); err != nil || pushed["pushed"] != 1 {
		t.Fatalf("pushed frame = %v, %v", pushed, err)
	}

	// malformed frames get an error frame back
	conn.WriteMessage(websocket.TextMessage, []byte("not json"))
	var errFrame map[string]string
	if err := conn.ReadJSON(&errFrame); err != nil || errFrame["action"] != "error" {
		t.Fatalf("error frame = %v, %v", errFrame, err)
	}
}
