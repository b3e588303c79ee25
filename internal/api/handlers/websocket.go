package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/identity"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/match"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/ws"
)

// ActionConnectionOpen is the first frame of every socket, carrying its connection id
const ActionConnectionOpen = "connection/open"

// SocketServer accepts WebSocket connections
type SocketServer interface {
	Serve(w http.ResponseWriter, r *http.Request, identity string, onOpen func(c *ws.Client), handle ws.Handler)
}

// PlayerConnections records which socket a player is on
type PlayerConnections interface {
	ResolvePlayerID(ctx context.Context, externalIdentity string) (string, error)
	UpdateConnection(ctx context.Context, playerID, connectionID string) error
}

type errorFrame struct {
	Action string `json:"action"`
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// HandleWebSocket authenticates the socket from the token query parameter
// (or bearer header) and dispatches its frames to the match commands.
func HandleWebSocket(hub SocketServer, svc MatchService, players PlayerConnections, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token, _ = identity.BearerToken(c.GetHeader("Authorization"))
		}
		subject, err := identity.ParseToken(secret, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		onOpen := func(cl *ws.Client) {
			cl.SendJSON(match.SocketMessage{Action: ActionConnectionOpen, Message: cl.ID()})
			ctx := context.Background()
			playerID, err := players.ResolvePlayerID(ctx, subject)
			if err != nil {
				log.Printf("[WS] connection %s: identity %s not resolved: %v", cl.ID(), subject, err)
				return
			}
			if err := players.UpdateConnection(ctx, playerID, cl.ID()); err != nil {
				log.Printf("[WS] connection %s: update for player %s failed: %v", cl.ID(), playerID, err)
			}
		}
		hub.Serve(c.Writer, c.Request, subject, onOpen, Dispatch(svc))
	}
}

// Dispatch routes socket frames to the match commands and replies on the same socket
func Dispatch(svc MatchService) ws.Handler {
	return func(ctx context.Context, cl *ws.Client, msg ws.Message) {
		var (
			resp *match.SocketMessage
			err  error
		)
		switch msg.Action {
		case match.ActionCreate:
			var cmd match.CreateCommand
			if !decode(cl, msg, &cmd) {
				return
			}
			cmd.Identity, cmd.ConnectionID = cl.Identity(), cl.ID()
			resp, err = svc.Create(ctx, cmd)
		case match.ActionJoin:
			var cmd match.JoinCommand
			if !decode(cl, msg, &cmd) {
				return
			}
			cmd.Identity, cmd.ConnectionID = cl.Identity(), cl.ID()
			resp, err = svc.Join(ctx, cmd)
		case match.ActionScore:
			var cmd match.ScoreCommand
			if !decode(cl, msg, &cmd) {
				return
			}
			cmd.Identity, cmd.ConnectionID = cl.Identity(), cl.ID()
			resp, err = svc.Score(ctx, cmd)
		case match.ActionState:
			var q struct {
				MatchID string `json:"gameId"`
			}
			if !decode(cl, msg, &q) {
				return
			}
			resp, err = svc.State(ctx, q.MatchID, cl.Identity())
		default:
			cl.SendJSON(errorFrame{Action: msg.Action, Error: "unknown action", Status: http.StatusBadRequest})
			return
		}

		if err != nil {
			code := match.StatusCode(err)
			text := err.Error()
			if code >= http.StatusInternalServerError {
				log.Printf("[WS] %s on connection %s: %v", msg.Action, cl.ID(), err)
				text = "internal error"
			}
			cl.SendJSON(errorFrame{Action: msg.Action, Error: text, Status: code})
			return
		}
		cl.SendJSON(resp)
	}
}

func decode(cl *ws.Client, msg ws.Message, v interface{}) bool {
	if len(msg.Message) == 0 {
		return true
	}
	if err := json.Unmarshal(msg.Message, v); err != nil {
		cl.SendJSON(errorFrame{Action: msg.Action, Error: "invalid message", Status: http.StatusBadRequest})
		return false
	}
	return true
}
