package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"foco/internal/service"
	"foco/internal/validation"
)

type AuthHandler struct {
	base
	auth         *service.AuthService
	orgs         *service.OrganizationService
	cookieName   string
	secureCookie bool
}

func NewAuthHandler(b base, auth *service.AuthService, orgs *service.OrganizationService, cookieName string, secureCookie bool) *AuthHandler {
	return &AuthHandler{base: b, auth: auth, orgs: orgs, cookieName: cookieName, secureCookie: secureCookie}
}

// Register POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req validation.RegisterInput
	if !h.bind(c, &req) {
		return
	}
	user, err := h.auth.Register(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Info("User registered", zap.String("user_id", user.ID.String()))
	c.JSON(http.StatusCreated, user)
}

// Login POST /api/v1/auth/login，同时写入 session cookie
func (h *AuthHandler) Login(c *gin.Context) {
	var req validation.LoginInput
	if !h.bind(c, &req) {
		return
	}
	token, user, err := h.auth.Login(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, token, int(h.auth.TokenTTL().Seconds()), "/", "", h.secureCookie, true)
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"token_type": "Bearer",
		"expires_in": int(h.auth.TokenTTL().Seconds()),
		"user":       user,
	})
}

// Logout POST /api/v1/auth/logout；token 本身无状态，只清 cookie
func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, "", -1, "/", "", h.secureCookie, true)
	c.Status(http.StatusNoContent)
}

// Me GET /api/v1/me
func (h *AuthHandler) Me(c *gin.Context) {
	ctx := c.Request.Context()
	userID := currentUser(c)
	user, err := h.auth.Me(ctx, userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	orgs, err := h.orgs.ListForUser(ctx, userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "organizations": orgs})
}
