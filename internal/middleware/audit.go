package middleware

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/unipoints/course-api/internal/models"
	"github.com/unipoints/course-api/pkg/jobs"
)

// Audit records an audit-log entry for successful requests. Entries are
// handed to the background queue so persistence stays off the request path.
func Audit(queue *jobs.Queue, action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if queue == nil || c.Writer.Status() >= 400 {
			return
		}

		var userID *int64
		if actor, ok := CurrentActor(c); ok {
			id := actor.UserID
			userID = &id
		}

		var resourceID *int64
		if raw := c.Param("id"); raw != "" {
			if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
				resourceID = &id
			}
		}

		detail, _ := json.Marshal(map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		})

		_ = queue.Enqueue(jobs.Job{
			ID:   uuid.NewString(),
			Type: action,
			Payload: &models.AuditLog{
				UserID:     userID,
				Action:     action,
				Resource:   resource,
				ResourceID: resourceID,
				Detail:     detail,
				IPAddress:  c.ClientIP(),
				UserAgent:  c.GetHeader("User-Agent"),
			},
		})
	}
}
