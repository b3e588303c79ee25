package middleware

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/config"
)

// AllowedOrigins returns the browser origins accepted for HTTP and WebSocket traffic
func AllowedOrigins(cfg *config.Config) []string {
	var origins []string
	if cfg.Environment == "development" {
		origins = append(origins, "http://localhost:4200", "http://127.0.0.1:4200")
	} else {
		origins = append(origins, "https://flyingdarts.net", "https://www.flyingdarts.net")
	}
	if cfg.FrontendURL != "" {
		origins = append(origins, strings.TrimRight(cfg.FrontendURL, "/"))
	}
	return origins
}

// CORSMiddleware returns a CORS middleware configured for the environment
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	origins := AllowedOrigins(cfg)
	log.Printf("[CORS] Environment: %s, allowed origins: %v", cfg.Environment, origins)

	return cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Length", "Content-Type", "Authorization",
			"X-Admin-Phone", "X-Admin-Token", "Accept", "Cache-Control",
		},
		ExposeHeaders:    []string{"Content-Length", "X-Connection-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// WebSocketOriginCheck rejects upgrade requests from origins not in AllowedOrigins.
// Outside development a missing Origin header is rejected too.
func WebSocketOriginCheck(cfg *config.Config) gin.HandlerFunc {
	allowed := make(map[string]bool)
	for _, o := range AllowedOrigins(cfg) {
		allowed[o] = true
	}
	return func(c *gin.Context) {
		if !strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
			c.Next()
			return
		}

		origin := c.GetHeader("Origin")
		switch {
		case origin == "" && cfg.Environment == "development":
		case origin == "":
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "WebSocket origin required"})
			return
		case !allowed[origin]:
			log.Printf("[WS] Rejected origin %s", origin)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "WebSocket origin not allowed"})
			return
		}
		c.Next()
	}
}
