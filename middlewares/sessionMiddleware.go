package middlewares

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tsgsafety/osha_tracker/utils"
)

const correlationHeader = "x-correlation-id"

// CorrelationMiddleware puts the caller's correlation id (or a new one) on
// the request context and echoes it back.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader(correlationHeader)
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Header(correlationHeader, cid)
		c.Next()
	}
}

func RequestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		logger.WithFields(logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"latency":        latency.String(),
			"correlation_id": cid,
		}).Info("request")
	}
}
