package middlewares

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const RequestIdHeader = "X-Request-Id"

func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestId := c.GetHeader(RequestIdHeader)
		if requestId == "" {
			requestId = uuid.New().String()
		}
		c.Header(RequestIdHeader, requestId)

		start := time.Now()
		c.Next()

		log.WithField("request_id", requestId).
			WithField("status", c.Writer.Status()).
			WithField("latency", time.Since(start)).
			Debugf("http %s %s", c.Request.Method, c.Request.URL.Path)
	}
}
