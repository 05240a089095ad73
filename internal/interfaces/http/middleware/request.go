package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/turtacn/keystore/internal/interfaces/http/handlers"
	"github.com/turtacn/keystore/pkg/constants"
	"github.com/turtacn/keystore/pkg/errors"
	"github.com/turtacn/keystore/pkg/logger"
)

// RequestID propagates or assigns an X-Request-ID and stores a request
// scoped logger carrying it.
func RequestID(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(constants.HeaderRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(string(constants.ContextKeyRequestID), id)
		c.Header(constants.HeaderRequestID, id)

		ctx := context.WithValue(c.Request.Context(), constants.ContextKeyRequestID, id)
		ctx = logger.NewContext(ctx, log.WithFields(logger.Fields{"request_id": id}))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// Logging logs incoming requests.
func Logging(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := logger.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		}
		if requester := handlers.RequesterFromContext(c); requester != "" {
			fields["requester_id"] = requester
		}

		ctx := c.Request.Context()
		switch {
		case c.Writer.Status() >= 500:
			var err error
			if last := c.Errors.Last(); last != nil {
				err = last.Err
			}
			log.Error(ctx, "Request failed", err, fields)
		case c.Writer.Status() >= 400:
			log.Warn(ctx, "Request rejected", fields)
		default:
			log.Info(ctx, "Request processed", fields)
		}
	}
}

// Recovery turns a panic into a 500 response.
func Recovery(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error(c.Request.Context(), "Panic recovered", fmt.Errorf("panic: %v", r), logger.Fields{
					"path": c.Request.URL.Path,
				})
				handlers.SendError(c, errors.ErrInternal("internal server error"))
			}
		}()
		c.Next()
	}
}
