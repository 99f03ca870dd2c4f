package http

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"learnhub/internal/domain"
	"learnhub/internal/service"
)

// actionResponse es la forma comun de todas las respuestas de /auth.
type actionResponse struct {
	Error      string             `json:"error,omitempty"`
	Success    string             `json:"success,omitempty"`
	TwoFactor  bool               `json:"twoFactor,omitempty"`
	User       *domain.User       `json:"user,omitempty"`
	Tokens     *service.TokenPair `json:"tokens,omitempty"`
	RedirectTo string             `json:"redirectTo,omitempty"`
}

// AuthHandler mantiene dependencias para endpoints de auth.
type AuthHandler struct {
	logger  *zap.Logger
	authSvc *service.AuthService
	jwtSvc  *service.JWTService
}

// NewAuthHandler crea una instancia de AuthHandler con dependencias necesarias.
func NewAuthHandler(logger *zap.Logger, authSvc *service.AuthService, jwtSvc *service.JWTService) *AuthHandler {
	return &AuthHandler{
		logger:  logger,
		authSvc: authSvc,
		jwtSvc:  jwtSvc,
	}
}

// Register maneja POST /auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if !h.bind(c, &req, "register") {
		return
	}

	msg, err := h.authSvc.Register(c.Request.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		h.writeError(c, "register", err)
		return
	}
	c.JSON(http.StatusCreated, actionResponse{Success: msg})
}

// Login maneja POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		Code        string `json:"code"`
		CallbackURL string `json:"callbackUrl"`
	}
	if !h.bind(c, &req, "login") {
		return
	}

	res, err := h.authSvc.Login(c.Request.Context(), service.LoginInput{
		Email:      req.Email,
		Password:   req.Password,
		Code:       req.Code,
		RedirectTo: req.CallbackURL,
	})
	if err != nil {
		h.writeError(c, "login", err)
		return
	}

	switch {
	case res.TwoFactor:
		c.JSON(http.StatusOK, actionResponse{TwoFactor: true})
	case res.Session != nil:
		c.JSON(http.StatusOK, actionResponse{
			User:       &res.Session.User,
			Tokens:     &res.Session.Tokens,
			RedirectTo: res.Session.RedirectTo,
		})
	default:
		c.JSON(http.StatusOK, actionResponse{Success: res.Success})
	}
}

// ResetPassword maneja POST /auth/reset-password.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if !h.bind(c, &req, "reset password") {
		return
	}

	msg, err := h.authSvc.RequestPasswordReset(c.Request.Context(), service.ResetInput{Email: req.Email})
	if err != nil {
		h.writeError(c, "reset password", err)
		return
	}
	c.JSON(http.StatusOK, actionResponse{Success: msg})
}

// NewPassword maneja POST /auth/new-password. El token puede venir en el
// body o en ?token=.
func (h *AuthHandler) NewPassword(c *gin.Context) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !h.bind(c, &req, "new password") {
		return
	}

	msg, err := h.authSvc.ApplyNewPassword(c.Request.Context(), service.NewPasswordInput{
		Token:    tokenParam(c, req.Token),
		Password: req.Password,
	})
	if err != nil {
		h.writeError(c, "new password", err)
		return
	}
	c.JSON(http.StatusOK, actionResponse{Success: msg})
}

// NewVerification maneja POST /auth/new-verification.
func (h *AuthHandler) NewVerification(c *gin.Context) {
	var req struct {
		Token string `json:"token"`
	}
	// el body es opcional: el link del correo trae ?token=
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn("invalid new verification request", zap.Error(err))
		c.JSON(http.StatusBadRequest, actionResponse{Error: service.MsgInvalidFields})
		return
	}

	msg, err := h.authSvc.ConfirmVerification(c.Request.Context(), tokenParam(c, req.Token))
	if err != nil {
		h.writeError(c, "new verification", err)
		return
	}
	c.JSON(http.StatusOK, actionResponse{Success: msg})
}

// OAuthLogin maneja POST /auth/oauth.
func (h *AuthHandler) OAuthLogin(c *gin.Context) {
	var req struct {
		Provider    string `json:"provider" binding:"required"`
		Subject     string `json:"subject" binding:"required"`
		Email       string `json:"email"`
		DisplayName string `json:"display_name"`
	}
	if !h.bind(c, &req, "oauth") {
		return
	}

	session, err := h.authSvc.OAuthSignIn(c.Request.Context(), service.OAuthInput{
		Provider:    req.Provider,
		Subject:     req.Subject,
		Email:       req.Email,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		h.writeError(c, "oauth", err)
		return
	}
	c.JSON(http.StatusOK, actionResponse{
		User:       &session.User,
		Tokens:     &session.Tokens,
		RedirectTo: session.RedirectTo,
	})
}

// RefreshToken maneja POST /auth/refresh.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if !h.bind(c, &req, "refresh") {
		return
	}
	tokens, err := h.authSvc.RefreshSession(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrJWTInvalid) || errors.Is(err, service.ErrJWTExpired) {
			c.JSON(http.StatusUnauthorized, actionResponse{Error: service.MsgInvalidToken})
			return
		}
		h.writeError(c, "refresh", err)
		return
	}
	c.JSON(http.StatusOK, actionResponse{Tokens: &tokens})
}

// Logout maneja POST /auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if !h.bind(c, &req, "logout") {
		return
	}
	if err := h.jwtSvc.RevokeRefresh(c.Request.Context(), req.RefreshToken); err != nil {
		h.logger.Debug("logout with unusable refresh token", zap.Error(err))
	}
	c.Status(http.StatusNoContent)
}

// Me maneja GET /auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, actionResponse{Error: service.MsgInvalidToken})
		return
	}
	user, err := h.authSvc.GetUser(c.Request.Context(), claims.UserID)
	if err != nil {
		h.writeError(c, "me", err)
		return
	}
	c.JSON(http.StatusOK, actionResponse{User: &user})
}

// SetTwoFactor maneja PUT /auth/two-factor.
func (h *AuthHandler) SetTwoFactor(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, actionResponse{Error: service.MsgInvalidToken})
		return
	}
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if !h.bind(c, &req, "two-factor") {
		return
	}
	user, err := h.authSvc.SetTwoFactor(c.Request.Context(), claims.UserID, *req.Enabled)
	if err != nil {
		h.writeError(c, "two-factor", err)
		return
	}
	c.JSON(http.StatusOK, actionResponse{Success: "Settings updated", User: &user})
}

func (h *AuthHandler) bind(c *gin.Context, req any, op string) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.logger.Warn("invalid "+op+" request", zap.Error(err))
		c.JSON(http.StatusBadRequest, actionResponse{Error: service.MsgInvalidFields})
		return false
	}
	return true
}

// writeError traduce errores de servicio a status + mensaje. Lo que no
// trae mensaje propio se loguea y sale como "Something went wrong".
func (h *AuthHandler) writeError(c *gin.Context, op string, err error) {
	msg, ok := service.UserMessage(err)
	if !ok {
		h.logger.Error(op+" failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, actionResponse{Error: service.MsgSomethingWentWrong})
		return
	}
	c.JSON(statusFor(err), actionResponse{Error: msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrExpired):
		return http.StatusGone
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrCredential):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrUpstream):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func tokenParam(c *gin.Context, fromBody string) string {
	if token := strings.TrimSpace(fromBody); token != "" {
		return token
	}
	return strings.TrimSpace(c.Query("token"))
}
