package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bursary-api/internal/models"
	"github.com/noah-isme/bursary-api/pkg/middleware/requestid"
)

const auditResourceIDKey = "audit_resource_id"

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// SetAuditResourceID records the identifier of the resource a handler created or changed.
func SetAuditResourceID(c *gin.Context, id string) {
	if c == nil || id == "" {
		return
	}
	c.Set(auditResourceIDKey, id)
}

// AuditResourceID returns the identifier stored by SetAuditResourceID.
func AuditResourceID(c *gin.Context) string {
	if v, ok := c.Get(auditResourceIDKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// Audit creates a middleware that records audit logs after money-moving requests.
// Failed requests are skipped, except a rejected vault payment which still leaves a trace.
func Audit(repo auditWriter, action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		status := c.Writer.Status()
		if repo == nil || (status >= 400 && status != http.StatusUnprocessableEntity) {
			return
		}

		var resourceID *string
		if id := AuditResourceID(c); id != "" {
			resourceID = &id
		} else if id := c.Param("id"); id != "" {
			resourceID = &id
		}

		body, _ := json.Marshal(map[string]interface{}{
			"path":       c.FullPath(),
			"method":     c.Request.Method,
			"status":     status,
			"latency":    time.Since(start).Milliseconds(),
			"request_id": requestid.Value(c),
		})

		_ = repo.CreateAuditLog(c.Request.Context(), &models.AuditLog{
			Action:     action,
			Resource:   resource,
			ResourceID: resourceID,
			Payload:    body,
			IPAddress:  c.ClientIP(),
			UserAgent:  c.GetHeader("User-Agent"),
		})
	}
}
