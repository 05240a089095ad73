// Package handlers holds the gin handlers of the key store HTTP API.
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/turtacn/keystore/pkg/errors"
)

// SendError writes err as a JSON error body with its HTTP status and aborts the chain.
func SendError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(errors.GetHTTPStatus(err), errors.ToErrorResponse(err))
}
