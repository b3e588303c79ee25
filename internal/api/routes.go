package api

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/admin"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/api/handlers"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/config"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/middleware"
)

// Socket is the live connection hub behind the WebSocket route
type Socket interface {
	handlers.SocketServer
	handlers.ConnectionCounter
}

// Deps are the collaborators the routes are built from
type Deps struct {
	Matches    handlers.MatchService
	Hub        Socket
	Players    handlers.PlayerConnections
	Admins     handlers.AdminAccounts
	Aggregates handlers.AggregateMaintenance
	Gatherer   prometheus.Gatherer
}

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, d Deps, cfg *config.Config) {
	router.Use(middleware.CORSMiddleware(cfg))

	if cfg.Environment != "production" {
		router.Use(func(c *gin.Context) {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
			c.Next()
		})
		log.Println("[DEV MODE] no-cache headers enabled for all routes")
	}

	if d.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.HealthCheck(d.Hub))

		v1.GET("/ws", middleware.WebSocketOriginCheck(cfg), handlers.HandleWebSocket(d.Hub, d.Matches, d.Players, cfg.JWTSecret))

		matches := v1.Group("/matches", handlers.AuthMiddleware(cfg.JWTSecret))
		{
			matches.POST("", handlers.CreateMatch(d.Matches))
			matches.GET("/:id", handlers.GetMatch(d.Matches))
			matches.POST("/:id/join", handlers.JoinMatch(d.Matches))
			matches.POST("/:id/score", handlers.ScoreMatch(d.Matches))
		}

		if d.Admins != nil {
			adm := v1.Group("/admin", handlers.AdminMiddleware(d.Admins, admin.RoleOperator))
			{
				adm.GET("/matches/:id/aggregate", handlers.GetAdminAggregate(d.Admins, d.Aggregates))
				adm.POST("/matches/:id/rebuild", handlers.RebuildAdminAggregate(d.Admins, d.Aggregates))
				adm.GET("/audit", handlers.GetAdminAuditLogs(d.Admins))
			}
		}
	}
}
