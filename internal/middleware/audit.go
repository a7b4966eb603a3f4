package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/lan-attendance-api/internal/models"
)

const contextAuditResourceKey = "auditResourceID"

// SetAuditResource records the resource a handler acted on when the route has no id parameter.
func SetAuditResource(c *gin.Context, id string) {
	if id != "" {
		c.Set(contextAuditResourceKey, id)
	}
}

// AuditWriter persists audit entries.
type AuditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Audit creates a middleware that records audit logs after successful requests.
// resourceParam names the route parameter identifying the resource, if any.
func Audit(repo AuditWriter, logger *zap.Logger, action, resource, resourceParam string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if c.Writer.Status() >= 400 || repo == nil {
			return
		}

		actor := "anonymous"
		if claims := Claims(c); claims != nil {
			actor = claims.UserID
		}

		var resourceID *string
		if resourceParam != "" {
			if v := c.Param(resourceParam); v != "" {
				resourceID = &v
			}
		}
		if resourceID == nil {
			if v := c.GetString(contextAuditResourceKey); v != "" {
				resourceID = &v
			}
		}

		body, _ := json.Marshal(map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		})
		detail := string(body)

		if err := repo.CreateAuditLog(c.Request.Context(), &models.AuditLog{
			Actor:      actor,
			Action:     action,
			Resource:   resource,
			ResourceID: resourceID,
			Detail:     &detail,
			IPAddress:  c.ClientIP(),
			UserAgent:  c.GetHeader("User-Agent"),
			CreatedAt:  start,
		}); err != nil {
			logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
		}
	}
}
