package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/keystore/internal/domain/service"
	"github.com/turtacn/keystore/internal/interfaces/http/handlers"
	"github.com/turtacn/keystore/pkg/constants"
	"github.com/turtacn/keystore/pkg/errors"
	"github.com/turtacn/keystore/pkg/logger"
)

// Identity resolves the caller from the bearer token. A request without an
// Authorization header continues anonymously and the key service decides
// whether that is acceptable; a present but invalid credential is rejected.
func Identity(verifier service.IdentityVerifier, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(constants.HeaderAuthorization)
		if header == "" {
			c.Next()
			return
		}

		if len(header) < len(constants.BearerPrefix) || !strings.EqualFold(header[:len(constants.BearerPrefix)], constants.BearerPrefix) {
			handlers.SendError(c, errors.ErrUnauthenticated("authorization header must use the Bearer scheme"))
			return
		}
		token := strings.TrimSpace(header[len(constants.BearerPrefix):])

		requester, err := verifier.VerifyIdentity(c.Request.Context(), token)
		if err != nil {
			log.Debug(c.Request.Context(), "Bearer token rejected", logger.Fields{"path": c.Request.URL.Path})
			handlers.SendError(c, err)
			return
		}

		c.Set(string(constants.ContextKeyRequester), requester)
		ctx := context.WithValue(c.Request.Context(), constants.ContextKeyRequester, requester)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
