package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hms-sync/internal/session"
	"hms-sync/internal/telemetry"
)

// RegisterDebugRoutes wires operator endpoints that are off in production.
// They sit outside the JWT group, so never enable them on a public listener.
func RegisterDebugRoutes(router gin.IRouter, sessions *session.Manager, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	debug := router.Group("/debug")
	debug.GET("/sessions", func(c *gin.Context) {
		if sessions == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session manager not configured"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": sessions.Summaries()})
	})
	debug.GET("/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit_test", "audit pipeline check", actorFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
