package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/keystore/internal/application/dto"
	"github.com/turtacn/keystore/internal/application/service"
	"github.com/turtacn/keystore/pkg/constants"
	"github.com/turtacn/keystore/pkg/errors"
	"github.com/turtacn/keystore/pkg/logger"
	"github.com/turtacn/keystore/pkg/utils"
)

// UserKeyHandler serves the per-user public key endpoints.
type UserKeyHandler struct {
	keys         service.UserKeyAppService
	organization string
	log          logger.Logger
}

// NewUserKeyHandler creates a new UserKeyHandler answering for organization.
func NewUserKeyHandler(keys service.UserKeyAppService, organization string, log logger.Logger) *UserKeyHandler {
	if organization == "" {
		organization = constants.DefaultOrganization
	}
	return &UserKeyHandler{
		keys:         keys,
		organization: organization,
		log:          log.WithComponent("user_key_handler"),
	}
}

// GetOwnPublicKey godoc
// @Summary      Get the caller's SSH public key
// @Description  Returns the caller's public key, generating a keypair on first access.
// @Tags         keys
// @Produce      json
// @Param        organization  path  string  true  "Organization"
// @Success      200  {object}  dto.PublicKeyResponse
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      401  {object}  errors.ErrorResponse
// @Router       /organizations/{organization}/user/publickey [get]
func (h *UserKeyHandler) GetOwnPublicKey(c *gin.Context) {
	requester, ok := h.admit(c)
	if !ok {
		return
	}
	h.getPublicKey(c, requester, requester)
}

// GetUserPublicKey godoc
// @Summary      Get a user's SSH public key
// @Description  Only the user themselves may read it.
// @Tags         keys
// @Produce      json
// @Param        organization  path  string  true  "Organization"
// @Param        user          path  string  true  "User id"
// @Success      200  {object}  dto.PublicKeyResponse
// @Failure      401  {object}  errors.ErrorResponse
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      403  {object}  errors.ErrorResponse
// @Router       /organizations/{organization}/users/{user}/publickey [get]
func (h *UserKeyHandler) GetUserPublicKey(c *gin.Context) {
	requester, ok := h.admit(c)
	if !ok {
		return
	}
	if user, ok := userParam(c); ok {
		h.getPublicKey(c, requester, user)
	}
}

// DeleteOwnPublicKey godoc
// @Summary      Delete the caller's SSH keypair
// @Tags         keys
// @Produce      json
// @Param        organization  path  string  true  "Organization"
// @Success      200  {object}  dto.EmptyResponse
// @Failure      401  {object}  errors.ErrorResponse
// @Router       /organizations/{organization}/user/publickey [delete]
func (h *UserKeyHandler) DeleteOwnPublicKey(c *gin.Context) {
	requester, ok := h.admit(c)
	if !ok {
		return
	}
	h.deleteKey(c, requester, requester)
}

// DeleteUserPublicKey godoc
// @Summary      Delete a user's SSH keypair
// @Tags         keys
// @Produce      json
// @Param        organization  path  string  true  "Organization"
// @Param        user          path  string  true  "User id"
// @Success      200  {object}  dto.EmptyResponse
// @Failure      401  {object}  errors.ErrorResponse
// @Failure      403  {object}  errors.ErrorResponse
// @Router       /organizations/{organization}/users/{user}/publickey [delete]
func (h *UserKeyHandler) DeleteUserPublicKey(c *gin.Context) {
	requester, ok := h.admit(c)
	if !ok {
		return
	}
	if user, ok := userParam(c); ok {
		h.deleteKey(c, requester, user)
	}
}

func (h *UserKeyHandler) getPublicKey(c *gin.Context, requester, target string) {
	resp, err := h.keys.GetPublicKey(c.Request.Context(), requester, target)
	if err != nil {
		SendError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, resp)
}

func (h *UserKeyHandler) deleteKey(c *gin.Context, requester, target string) {
	if err := h.keys.DeleteKey(c.Request.Context(), requester, target); err != nil {
		SendError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.EmptyResponse{})
}

// admit resolves the caller before anything about the request path is
// revealed: anonymous callers get 401 whatever the organization or user.
func (h *UserKeyHandler) admit(c *gin.Context) (string, bool) {
	requester := RequesterFromContext(c)
	if requester == "" {
		SendError(c, errors.ErrUnauthenticated("authentication required"))
		return "", false
	}
	// A token subject has to satisfy the same rules as a stored owner id.
	if err := utils.ValidateOwnerID(requester); err != nil {
		SendError(c, err)
		return "", false
	}
	if !h.checkOrganization(c) {
		return "", false
	}
	return requester, true
}

// userParam returns the :user segment, rejecting ids no backend can store.
func userParam(c *gin.Context) (string, bool) {
	user := c.Param("user")
	if err := utils.ValidateOwnerID(user); err != nil {
		SendError(c, err)
		return "", false
	}
	return user, true
}

func (h *UserKeyHandler) checkOrganization(c *gin.Context) bool {
	if org := c.Param("organization"); org != h.organization {
		SendError(c, errors.ErrUnknownOrganization(org))
		return false
	}
	return true
}

// RequesterFromContext returns the authenticated caller set by the identity
// middleware, or "" for anonymous requests.
func RequesterFromContext(c *gin.Context) string {
	return c.GetString(string(constants.ContextKeyRequester))
}
