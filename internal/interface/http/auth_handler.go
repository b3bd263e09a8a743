package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-ddd-auth/config"
	"github.com/oksasatya/go-ddd-auth/internal/application"
	"github.com/oksasatya/go-ddd-auth/internal/domain/apperror"
	"github.com/oksasatya/go-ddd-auth/internal/interface/middleware"
	"github.com/oksasatya/go-ddd-auth/pkg/helpers"
	"github.com/oksasatya/go-ddd-auth/pkg/mailer"
	tpl "github.com/oksasatya/go-ddd-auth/pkg/mailer/templates"
	"github.com/oksasatya/go-ddd-auth/pkg/response"
	"github.com/oksasatya/go-ddd-auth/pkg/validation"
)

const codeValidation = "VALIDATION_ERROR"

// EmailQueue is satisfied by helpers.RabbitPublisher.
type EmailQueue interface {
	PublishJSON(ctx context.Context, body any) error
}

type AuthHandler struct {
	Svc     *application.AuthService
	Logger  *logrus.Logger
	Cfg     *config.Config
	Cookies *helpers.Manager
	Queue   EmailQueue
}

func NewAuthHandler(svc *application.AuthService, logger *logrus.Logger, cfg *config.Config, queue EmailQueue) *AuthHandler {
	return &AuthHandler{
		Svc:     svc,
		Logger:  logger,
		Cfg:     cfg,
		Cookies: helpers.NewCookie(cfg.CookieDomain, cfg.CookieSecure),
		Queue:   queue,
	}
}

type registerRequest struct {
	Email           string `json:"email" binding:"required,email,max=254"`
	Username        string `json:"username" binding:"required,username"`
	Password        string `json:"password" binding:"required,pwd"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

type loginRequest struct {
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
	RememberMe bool   `json:"remember_me"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,pwd"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

type tokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// statusFor maps domain error codes to HTTP status codes.
func statusFor(code apperror.Code) int {
	switch code {
	case apperror.CodeInvalidCredentials, apperror.CodeTokenInvalid, apperror.CodeTokenExpired:
		return http.StatusUnauthorized
	case apperror.CodeAccountLocked:
		return http.StatusLocked
	case apperror.CodeAccountInactive:
		return http.StatusForbidden
	case apperror.CodeEmailExists, apperror.CodeUsernameExists:
		return http.StatusConflict
	case apperror.CodeWeakPassword, apperror.CodePasswordMismatch, apperror.CodeInvalidEmail, apperror.CodeInvalidUser:
		return http.StatusBadRequest
	case apperror.CodeUserNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (h *AuthHandler) fail(c *gin.Context, err error) {
	code := apperror.CodeOf(err)
	msg := apperror.ErrInternal.Message
	var ae *apperror.Error
	if errors.As(err, &ae) && code != apperror.CodeInternal {
		msg = ae.Message
	}
	response.ErrorCode[any](c, statusFor(code), string(code), msg, nil)
}

func invalidPayload(c *gin.Context, err error) {
	response.ErrorCode[any](c, http.StatusBadRequest, codeValidation, "invalid payload", validation.ToDetails(err))
}

// Register POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidPayload(c, err)
		return
	}
	res, err := h.Svc.Register(c.Request.Context(), application.RegisterInput{
		Email:           req.Email,
		Username:        req.Username,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, res, "registered", nil)
}

// Login POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidPayload(c, err)
		return
	}
	res, err := h.Svc.Login(c.Request.Context(), application.LoginInput{
		Email:      req.Email,
		Password:   req.Password,
		RememberMe: req.RememberMe,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.setCookies(c, res)
	response.Success(c, http.StatusOK, res, "login successful", nil)
}

// Refresh POST /api/v1/auth/refresh {refresh_token} or refresh_token cookie
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	_ = c.ShouldBindJSON(&req)
	tok := req.RefreshToken
	if tok == "" {
		tok, _ = c.Cookie(helpers.RefreshCookie)
	}
	if tok == "" {
		response.ErrorCode[any](c, http.StatusUnauthorized, string(apperror.CodeTokenInvalid), "missing refresh token", nil)
		return
	}
	res, err := h.Svc.Refresh(c.Request.Context(), tok)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.setCookies(c, res)
	response.Success(c, http.StatusOK, res, "token refreshed", nil)
}

// Logout POST /api/v1/auth/logout (auth required). Without a refresh token
// every session of the user is revoked.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req refreshRequest
	_ = c.ShouldBindJSON(&req)
	tok := req.RefreshToken
	if tok == "" {
		tok, _ = c.Cookie(helpers.RefreshCookie)
	}
	if err := h.Svc.Logout(c.Request.Context(), c.GetString(middleware.CtxUserIDKey), tok); err != nil {
		h.fail(c, err)
		return
	}
	h.Cookies.Clear(c)
	response.Success(c, http.StatusOK, gin.H{"logged_out": true, "all_sessions": tok == ""}, "logged out", nil)
}

// Me GET /api/v1/auth/me (auth required)
func (h *AuthHandler) Me(c *gin.Context) {
	u, err := h.Svc.Profile(c.Request.Context(), c.GetString(middleware.CtxUserIDKey))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, u, "profile", nil)
}

// ChangePassword PUT /api/v1/auth/password (auth required)
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidPayload(c, err)
		return
	}
	err := h.Svc.ChangePassword(c.Request.Context(), application.ChangePasswordInput{
		UserID:          c.GetString(middleware.CtxUserIDKey),
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.Cookies.Clear(c)
	response.Success(c, http.StatusOK, gin.H{"changed": true}, "password updated", nil)
}

// VerifyInit POST /api/v1/auth/verify/init (auth required)
// Issues a verification token and enqueues the email carrying the link.
func (h *AuthHandler) VerifyInit(c *gin.Context) {
	t, err := h.Svc.RequestEmailVerification(c.Request.Context(), c.GetString(middleware.CtxUserIDKey))
	if err != nil {
		h.fail(c, err)
		return
	}
	if t.AlreadyVerified {
		response.Success(c, http.StatusOK, gin.H{"already_verified": true}, "already verified", nil)
		return
	}

	link := h.Cfg.VerifyEmailURL + "?token=" + url.QueryEscape(t.Token)
	if h.Queue != nil && h.Cfg.MailSendEnabled {
		data := tpl.NewVerifyEmailData(h.Cfg, t.Username, t.Email, link,
			tpl.WithTime(time.Now()),
			tpl.WithExpiresAt(t.ExpiresAt),
			tpl.WithIP(clientIP(c)),
		)
		job := mailer.EmailJob{To: t.Email, Template: tpl.VerifyEmail, Data: data}
		if err := h.Queue.PublishJSON(c.Request.Context(), job); err != nil {
			h.Logger.WithError(err).WithField("user_id", t.UserID).Warn("enqueue verify email failed")
		}
	}

	out := gin.H{"already_verified": false, "expires_at": t.ExpiresAt}
	if h.Cfg.Env == "development" {
		out["verify_link"] = link
	}
	response.Success(c, http.StatusOK, out, "verification email sent", nil)
}

// VerifyConfirm POST /api/v1/auth/verify/confirm {token}
func (h *AuthHandler) VerifyConfirm(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidPayload(c, err)
		return
	}
	u, err := h.Svc.ConfirmEmailVerification(c.Request.Context(), req.Token)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, u, "email verified", nil)
}

// VerifyToken POST /api/v1/auth/verify-token {token}
func (h *AuthHandler) VerifyToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidPayload(c, err)
		return
	}
	info := h.Svc.IntrospectToken(req.Token)
	response.Success(c, http.StatusOK, info, "token introspected", nil)
}

func (h *AuthHandler) setCookies(c *gin.Context, res *application.LoginResult) {
	aexp := time.Now().Add(time.Duration(res.ExpiresIn) * time.Second)
	rexp, ok := h.Svc.Tokens.GetExpiry(res.RefreshToken)
	if !ok {
		rexp = aexp
	}
	h.Cookies.SetPair(c, res.AccessToken, aexp, res.RefreshToken, rexp)
}

func clientIP(c *gin.Context) string {
	if ip := c.GetString("real_ip"); ip != "" {
		return ip
	}
	return c.ClientIP()
}
