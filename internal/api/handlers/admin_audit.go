package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GetAdminAuditLogs returns paginated audit log entries, newest first
func GetAdminAuditLogs(accounts AdminAccounts) gin.HandlerFunc {
	return func(c *gin.Context) {
		phone := c.DefaultQuery("admin_phone", "")
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "25"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		if limit > 200 {
			limit = 200
		}

		logs, err := accounts.Audit(c.Request.Context(), phone, limit, offset)
		if err != nil {
			log.Printf("[ADMIN] Failed to fetch audit logs: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch audit logs"})
			return
		}

		// viewing the audit log is not audited itself
		c.JSON(http.StatusOK, gin.H{"logs": logs, "limit": limit, "offset": offset})
	}
}
