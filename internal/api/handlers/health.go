package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

var startTime = time.Now()

const version = "1.0.0"

// ConnectionCounter reports open sockets on this instance
type ConnectionCounter interface {
	Count() int
}

// HealthCheck returns server health status
func HealthCheck(hub ConnectionCounter) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"service":     "flyingdarts-x01",
			"version":     version,
			"uptime":      time.Since(startTime).String(),
			"connections": hub.Count(),
		})
	}
}
