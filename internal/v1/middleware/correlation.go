// Package middleware holds gin middleware for the ops HTTP server.
package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/parlorchat/parlor/internal/v1/logging"
)

const correlationHeader = "X-Correlation-ID"

// Correlation ensures every ops request carries a correlation ID: the
// inbound header when present, a fresh uuid otherwise. The ID is echoed in
// the response and stored on the request context for log lines.
func Correlation() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader(correlationHeader)
		if cid == "" {
			cid = uuid.NewString()
		}

		ctx := context.WithValue(c.Request.Context(), logging.CorrelationIDKey, cid)
		c.Request = c.Request.WithContext(ctx)
		c.Header(correlationHeader, cid)

		c.Next()
	}
}
