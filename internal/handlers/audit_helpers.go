package handlers

import (
	"github.com/gin-gonic/gin"

	"hms-sync/internal/middleware"
	"hms-sync/internal/observability"
	"hms-sync/internal/telemetry"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := observability.RequestIDFromRequest(c.Request)
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func actorFromContext(c *gin.Context) telemetry.Actor {
	actor := telemetry.Actor{RequestID: requestIDFromContext(c)}
	if id, ok := middleware.IdentityFrom(c); ok {
		actor.UserID = id.UserID
		actor.HospitalID = id.HospitalID
	}
	return actor
}
