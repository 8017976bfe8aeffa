package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/osiastedian/syshub/libs/auth"
	"github.com/osiastedian/syshub/libs/challenge"
	"github.com/osiastedian/syshub/libs/kafka"
	"github.com/osiastedian/syshub/libs/password"
	"github.com/osiastedian/syshub/libs/rate"
	"github.com/osiastedian/syshub/services/auth/internal/security"
	"github.com/osiastedian/syshub/services/auth/internal/storage"
)

const invalidCredential = "invalid credential"

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type Store interface {
	GetUserByEmail(ctx context.Context, email string) (*storage.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*storage.User, error)
	CreateUser(ctx context.Context, email, passwordHash string) (uuid.UUID, error)
	GetRefreshTokenByHash(ctx context.Context, hash string) (*storage.RefreshToken, error)
	CreateRefreshToken(ctx context.Context, userID, sessionID uuid.UUID, tokenHash string, expiresAt time.Time, ip string, userAgent string) (uuid.UUID, error)
	RotateToken(ctx context.Context, old *storage.RefreshToken, newHash string, expiresAt time.Time, ip string, userAgent string) (uuid.UUID, error)
	RevokeTokenByHash(ctx context.Context, hash string) error
	RevokeAllTokens(ctx context.Context, userID uuid.UUID) error
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
	CreatePasswordReset(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error
	ResetPassword(ctx context.Context, tokenHash, passwordHash string, now time.Time) (uuid.UUID, error)
	InsertAudit(ctx context.Context, log storage.AuditLog) error
}

type Settings struct {
	JWTSecret        string
	Issuer           string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	ReauthTTL        time.Duration
	ResetTTL         time.Duration
	MinPasswordScore int
	Argon2           password.Params
}

type AuthHandler struct {
	Store       Store
	Logger      *slog.Logger
	Settings    Settings
	Signer      security.Signer
	RateLimiter rate.Limiter
	Verifier    *challenge.Verifier
	Sender      challenge.Sender
	Publisher   kafka.Publisher
	TokenGen    security.TokenGenerator
	Clock       Clock
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	MFACode  string `json:"mfa_code"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type reauthRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	TokenType    string    `json:"token_type"`
	UserID       uuid.UUID `json:"user_id"`
}

type reauthResponse struct {
	ReauthToken string `json:"reauth_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func NewAuthHandler(store Store, logger *slog.Logger, settings Settings, limiter rate.Limiter, verifier *challenge.Verifier, publisher kafka.Publisher) *AuthHandler {
	if publisher == nil {
		publisher = kafka.NewLogPublisher(logger)
	}
	return &AuthHandler{
		Store:    store,
		Logger:   logger,
		Settings: settings,
		Signer: security.Signer{
			Secret:    []byte(settings.JWTSecret),
			Issuer:    settings.Issuer,
			AccessTTL: settings.AccessTTL,
			ReauthTTL: settings.ReauthTTL,
		},
		RateLimiter: limiter,
		Verifier:    verifier,
		Sender:      challenge.LogSender{Logger: logger},
		Publisher:   publisher,
		TokenGen:    security.DefaultTokenGenerator{},
		Clock:       systemClock{},
	}
}

func (h *AuthHandler) RegisterRoutes(r *gin.Engine) {
	r.POST("/auth/signup", h.Signup)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/login/sms", h.LoginSMS)
	r.POST("/auth/refresh", h.Refresh)
	r.POST("/auth/logout", h.Logout)
	r.POST("/auth/password/reset", h.RequestPasswordReset)
	r.POST("/auth/password/reset/confirm", h.ConfirmPasswordReset)

	authed := r.Group("/auth", auth.Middleware(h.Signer.Secret))
	authed.POST("/reauthenticate", h.Reauthenticate)
	authed.POST("/password", h.ChangePassword)
}

func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}

	email, ok := normalizeEmail(req.Email)
	if !ok {
		writeValidation(c, "invalid email", map[string]string{"email": "invalid"})
		return
	}
	if fields := h.checkPassword(req.Password); fields != nil {
		writeValidation(c, "password too weak", fields)
		return
	}

	if !h.allow(c, "signup:"+c.ClientIP()) {
		return
	}

	hash, err := password.Hash(req.Password, h.Settings.Argon2)
	if err != nil {
		h.internalError(c, "password hash failed", err)
		return
	}

	id, err := h.Store.CreateUser(c.Request.Context(), email, hash)
	if err != nil {
		if errors.Is(err, storage.ErrEmailTaken) {
			writeError(c, http.StatusConflict, "EMAIL_TAKEN", "email already registered")
			return
		}
		h.internalError(c, "create user failed", err)
		return
	}

	h.audit(c, id, "auth.signup")
	c.JSON(http.StatusCreated, gin.H{"user_id": id})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}

	if !h.allow(c, rate.LoginKey(c.ClientIP())) {
		return
	}

	user, ok := h.checkCredentials(c, req.Email, req.Password)
	if !ok {
		return
	}

	factors := user.Factors()
	if factors.Enabled() {
		code := strings.TrimSpace(req.MFACode)
		if code == "" {
			writeError(c, http.StatusUnauthorized, "MFA_REQUIRED", "mfa code required")
			return
		}
		valid, err := h.Verifier.Check(c.Request.Context(), user.ID.String(), factors, code)
		var limited *challenge.LimitedError
		if errors.As(err, &limited) {
			if limited.RetryAfter > 0 {
				c.Header("Retry-After", retryAfterSeconds(limited.RetryAfter))
			}
			writeError(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many verification attempts")
			return
		}
		if err != nil {
			h.internalError(c, "mfa check failed", err)
			return
		}
		if !valid {
			writeError(c, http.StatusUnauthorized, "INVALID_CREDENTIAL", "invalid verification code")
			return
		}
	}

	resp, ok := h.startSession(c, user.ID)
	if !ok {
		return
	}
	h.audit(c, user.ID, "auth.login")
	c.JSON(http.StatusOK, resp)
}

// LoginSMS sends a login code to an account with SMS verification enabled.
// Other accounts get the same 202 so the endpoint reveals nothing beyond the
// credential check.
func (h *AuthHandler) LoginSMS(c *gin.Context) {
	var req reauthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}
	if !h.allow(c, "sms:"+c.ClientIP()) {
		return
	}

	user, ok := h.checkCredentials(c, req.Email, req.Password)
	if !ok {
		return
	}

	accepted := gin.H{"status": "accepted"}
	if !user.SMSEnabled || user.Phone == nil || h.Verifier.SMS == nil {
		c.JSON(http.StatusAccepted, accepted)
		return
	}

	code, err := h.Verifier.SMS.Issue(c.Request.Context(), user.ID.String())
	if err != nil {
		h.internalError(c, "sms issue failed", err)
		return
	}
	if err := h.Sender.Send(c.Request.Context(), *user.Phone, code); err != nil {
		h.internalError(c, "sms send failed", err)
		return
	}
	c.JSON(http.StatusAccepted, accepted)
}

// checkCredentials writes the 401 itself so unknown emails and wrong
// passwords are indistinguishable.
func (h *AuthHandler) checkCredentials(c *gin.Context, email, pw string) (*storage.User, bool) {
	user, err := h.Store.GetUserByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(c, http.StatusUnauthorized, "INVALID_CREDENTIAL", invalidCredential)
			return nil, false
		}
		h.internalError(c, "login lookup failed", err)
		return nil, false
	}

	ok, err := password.Verify(pw, user.PasswordHash)
	if err != nil || !ok || user.Status != "active" {
		writeError(c, http.StatusUnauthorized, "INVALID_CREDENTIAL", invalidCredential)
		return nil, false
	}
	return user, true
}

func (h *AuthHandler) startSession(c *gin.Context, userID uuid.UUID) (authResponse, bool) {
	now := h.Clock.Now()
	sessionID := uuid.New()

	access, err := h.Signer.Access(userID.String(), sessionID.String(), now)
	if err != nil {
		h.internalError(c, "jwt sign failed", err)
		return authResponse{}, false
	}

	refreshToken, refreshHash, err := h.TokenGen.New()
	if err != nil {
		h.internalError(c, "refresh token generation failed", err)
		return authResponse{}, false
	}

	_, err = h.Store.CreateRefreshToken(c.Request.Context(), userID, sessionID, refreshHash, now.Add(h.Settings.RefreshTTL), c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		h.internalError(c, "refresh token insert failed", err)
		return authResponse{}, false
	}

	return authResponse{
		AccessToken:  access,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(h.Settings.AccessTTL.Seconds()),
		TokenType:    "Bearer",
		UserID:       userID,
	}, true
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}

	providedHash := security.HashToken(req.RefreshToken)
	token, err := h.Store.GetRefreshTokenByHash(c.Request.Context(), providedHash)
	if err != nil {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
		return
	}

	if token.RevokedAt != nil {
		if err := h.Store.RevokeAllTokens(c.Request.Context(), token.UserID); err != nil {
			h.Logger.Error("revoke after reuse failed", "error", err, "user_id", token.UserID)
		}
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "token reuse detected")
		return
	}

	now := h.Clock.Now()
	if token.ExpiresAt.Before(now) {
		_ = h.Store.RevokeTokenByHash(c.Request.Context(), providedHash)
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "token expired")
		return
	}

	newToken, newHash, err := h.TokenGen.New()
	if err != nil {
		h.internalError(c, "refresh token generation failed", err)
		return
	}

	if _, err := h.Store.RotateToken(c.Request.Context(), token, newHash, now.Add(h.Settings.RefreshTTL), c.ClientIP(), c.Request.UserAgent()); err != nil {
		h.internalError(c, "token rotation failed", err)
		return
	}

	access, err := h.Signer.Access(token.UserID.String(), token.SessionID.String(), now)
	if err != nil {
		h.internalError(c, "jwt sign failed", err)
		return
	}

	c.JSON(http.StatusOK, authResponse{
		AccessToken:  access,
		RefreshToken: newToken,
		ExpiresIn:    int64(h.Settings.AccessTTL.Seconds()),
		TokenType:    "Bearer",
		UserID:       token.UserID,
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}

	if err := h.Store.RevokeTokenByHash(c.Request.Context(), security.HashToken(req.RefreshToken)); err != nil {
		h.internalError(c, "revoke token failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Reauthenticate re-checks the password of the signed-in user and returns a
// token that only the account-deletion endpoint accepts.
func (h *AuthHandler) Reauthenticate(c *gin.Context) {
	var req reauthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}

	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing user")
		return
	}
	if !h.allow(c, "reauth:"+userID.String()) {
		return
	}

	user, ok := h.checkCredentials(c, req.Email, req.Password)
	if !ok {
		return
	}
	if user.ID != userID {
		writeError(c, http.StatusUnauthorized, "INVALID_CREDENTIAL", invalidCredential)
		return
	}

	token, err := h.Signer.Reauth(userID.String(), c.GetString(auth.ContextSessionIDKey), h.Clock.Now())
	if err != nil {
		h.internalError(c, "jwt sign failed", err)
		return
	}

	h.audit(c, userID, "auth.reauthenticate")
	c.JSON(http.StatusOK, reauthResponse{ReauthToken: token, ExpiresIn: int64(h.Settings.ReauthTTL.Seconds())})
}

func (h *AuthHandler) allow(c *gin.Context, key string) bool {
	allowed, retryAfter, err := h.RateLimiter.Allow(c.Request.Context(), key, h.Clock.Now())
	if err != nil {
		h.internalError(c, "rate limiter failed", err)
		return false
	}
	if !allowed {
		if retryAfter > 0 {
			c.Header("Retry-After", retryAfterSeconds(retryAfter))
		}
		writeError(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
		return false
	}
	return true
}

func (h *AuthHandler) audit(c *gin.Context, userID uuid.UUID, action string) {
	if err := h.Store.InsertAudit(c.Request.Context(), storage.AuditLog{
		ActorID:   userID,
		Action:    action,
		EntityID:  &userID,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}); err != nil {
		h.Logger.Error("audit log failed", "error", err, "action", action)
	}
}

func (h *AuthHandler) internalError(c *gin.Context, msg string, err error) {
	h.Logger.Error(msg, "error", err)
	writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{Code: code, Message: message})
}

func writeValidation(c *gin.Context, message string, fields map[string]string) {
	c.JSON(http.StatusNotAcceptable, errorResponse{Code: "VALIDATION", Message: message, Fields: fields})
}

func normalizeEmail(raw string) (string, bool) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", false
	}
	return email, true
}
