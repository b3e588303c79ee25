package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/match"
)

// ConnectionHeader names the caller's live socket on HTTP commands
const ConnectionHeader = "X-Connection-ID"

// MatchService runs the match commands
type MatchService interface {
	Create(ctx context.Context, cmd match.CreateCommand) (*match.SocketMessage, error)
	Join(ctx context.Context, cmd match.JoinCommand) (*match.SocketMessage, error)
	Score(ctx context.Context, cmd match.ScoreCommand) (*match.SocketMessage, error)
	State(ctx context.Context, matchID, identity string) (*match.SocketMessage, error)
}

// respond writes the command result, mapping errors to their status code
func respond(c *gin.Context, tag string, msg *match.SocketMessage, err error) {
	if err != nil {
		code := match.StatusCode(err)
		if code >= http.StatusInternalServerError {
			log.Printf("[%s] %s %s: %v", tag, c.Request.Method, c.Request.URL.Path, err)
			c.JSON(code, gin.H{"error": "internal error"})
			return
		}
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, msg)
}

// CreateMatch opens a new match for the caller
func CreateMatch(svc MatchService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cmd match.CreateCommand
		if err := c.ShouldBindJSON(&cmd); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request. sets and legs required."})
			return
		}
		cmd.Identity = callerIdentity(c)
		cmd.ConnectionID = c.GetHeader(ConnectionHeader)

		msg, err := svc.Create(c.Request.Context(), cmd)
		if err == nil {
			c.Header("X-Match-ID", msg.Message)
		}
		respond(c, "CREATE", msg, err)
	}
}

// JoinMatch attaches the caller to the match in the path
func JoinMatch(svc MatchService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cmd match.JoinCommand
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&cmd); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
				return
			}
		}
		cmd.MatchID = c.Param("id")
		cmd.Identity = callerIdentity(c)
		cmd.ConnectionID = c.GetHeader(ConnectionHeader)

		msg, err := svc.Join(c.Request.Context(), cmd)
		respond(c, "JOIN", msg, err)
	}
}

// ScoreMatch records one turn of the caller
func ScoreMatch(svc MatchService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cmd match.ScoreCommand
		if err := c.ShouldBindJSON(&cmd); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request. input and score required."})
			return
		}
		cmd.MatchID = c.Param("id")
		cmd.Identity = callerIdentity(c)
		cmd.ConnectionID = c.GetHeader(ConnectionHeader)

		msg, err := svc.Score(c.Request.Context(), cmd)
		respond(c, "SCORE", msg, err)
	}
}

// GetMatch returns the derived state of a match
func GetMatch(svc MatchService) gin.HandlerFunc {
	return func(c *gin.Context) {
		msg, err := svc.State(c.Request.Context(), c.Param("id"), callerIdentity(c))
		respond(c, "STATE", msg, err)
	}
}
