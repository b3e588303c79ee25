package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/admin"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/cache"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/models"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/store"
)

const adminKey = "admin_account"

// AdminAccounts authenticates operators and keeps their audit trail
type AdminAccounts interface {
	Authenticate(ctx context.Context, phone, token, ip string) (*models.AdminAccount, error)
	Record(ctx context.Context, adminPhone, ip, route, action string, details map[string]interface{}, success bool) error
	Audit(ctx context.Context, adminPhone string, limit, offset int) ([]models.AdminAudit, error)
}

// AggregateMaintenance loads and rebuilds cached match aggregates
type AggregateMaintenance interface {
	Load(ctx context.Context, matchID string) (*cache.Snapshot, error)
	Rebuild(ctx context.Context, matchID string) (*cache.Snapshot, error)
}

// AdminMiddleware validates X-Admin-Phone / X-Admin-Token and requires role
func AdminMiddleware(accounts AdminAccounts, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		phone := c.GetHeader("X-Admin-Phone")
		token := c.GetHeader("X-Admin-Token")
		if phone == "" || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		acc, err := accounts.Authenticate(c.Request.Context(), phone, token, c.ClientIP())
		if err != nil {
			accounts.Record(c.Request.Context(), phone, c.ClientIP(), c.FullPath(), "authenticate", nil, false)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		if !admin.HasRole(acc, role) {
			accounts.Record(c.Request.Context(), phone, c.ClientIP(), c.FullPath(), "authorize", map[string]interface{}{"role": role}, false)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient role"})
			return
		}
		c.Set(adminKey, acc)
		c.Next()
	}
}

func adminPhone(c *gin.Context) string {
	if acc, ok := c.Get(adminKey); ok {
		return acc.(*models.AdminAccount).Phone
	}
	return ""
}

// GetAdminAggregate returns the cached aggregate of a match, rebuilding it from records when expired
func GetAdminAggregate(accounts AdminAccounts, aggregates AggregateMaintenance) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		matchID := c.Param("id")
		details := map[string]interface{}{"match_id": matchID}

		snap, err := aggregates.Load(ctx, matchID)
		if err != nil {
			log.Printf("[ADMIN] Failed to load aggregate %s: %v", matchID, err)
			accounts.Record(ctx, adminPhone(c), c.ClientIP(), c.FullPath(), "get_aggregate", details, false)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load aggregate"})
			return
		}
		if !snap.Exists() {
			accounts.Record(ctx, adminPhone(c), c.ClientIP(), c.FullPath(), "get_aggregate", details, false)
			c.JSON(http.StatusNotFound, gin.H{"error": "Match not found"})
			return
		}

		accounts.Record(ctx, adminPhone(c), c.ClientIP(), c.FullPath(), "get_aggregate", details, true)
		c.JSON(http.StatusOK, gin.H{"aggregate": snap.Aggregate()})
	}
}

// RebuildAdminAggregate replaces the cached aggregate with one rebuilt from the records
func RebuildAdminAggregate(accounts AdminAccounts, aggregates AggregateMaintenance) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		matchID := c.Param("id")
		details := map[string]interface{}{"match_id": matchID}

		snap, err := aggregates.Rebuild(ctx, matchID)
		if err != nil {
			accounts.Record(ctx, adminPhone(c), c.ClientIP(), c.FullPath(), "rebuild_aggregate", details, false)
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Match not found"})
				return
			}
			log.Printf("[ADMIN] Failed to rebuild aggregate %s: %v", matchID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to rebuild aggregate"})
			return
		}

		agg := snap.Aggregate()
		details["players"] = len(agg.Players)
		details["throws"] = len(agg.Throws)
		accounts.Record(ctx, adminPhone(c), c.ClientIP(), c.FullPath(), "rebuild_aggregate", details, true)
		log.Printf("[ADMIN] %s rebuilt aggregate of match %s", adminPhone(c), matchID)
		c.JSON(http.StatusOK, gin.H{"aggregate": agg})
	}
}
