package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/identity"
)

const identityKey = "identity"

// AuthMiddleware validates the bearer JWT and stores its subject as the caller identity
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := identity.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		subject, err := identity.ParseToken(secret, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(identityKey, subject)
		c.Next()
	}
}

// callerIdentity returns the identity set by AuthMiddleware
func callerIdentity(c *gin.Context) string {
	return c.GetString(identityKey)
}
