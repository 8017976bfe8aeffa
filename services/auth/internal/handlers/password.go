package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"

	"github.com/osiastedian/syshub/libs/auth"
	"github.com/osiastedian/syshub/libs/kafka"
	"github.com/osiastedian/syshub/libs/password"
	"github.com/osiastedian/syshub/libs/portal"
	"github.com/osiastedian/syshub/services/auth/internal/security"
	"github.com/osiastedian/syshub/services/auth/internal/storage"
)

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type resetRequest struct {
	Email string `json:"email"`
}

type resetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (h *AuthHandler) checkPassword(pw string) map[string]string {
	if portal.PasswordStrength(pw) < h.Settings.MinPasswordScore {
		return map[string]string{"password": "too weak"}
	}
	return nil
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}

	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing user")
		return
	}

	user, err := h.Store.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing user")
			return
		}
		h.internalError(c, "user lookup failed", err)
		return
	}

	if ok, err := password.Verify(req.OldPassword, user.PasswordHash); err != nil || !ok {
		writeError(c, http.StatusUnauthorized, "INVALID_CREDENTIAL", "wrong password")
		return
	}
	if fields := h.checkPassword(req.NewPassword); fields != nil {
		writeValidation(c, "password too weak", map[string]string{"new_password": fields["password"]})
		return
	}

	hash, err := password.Hash(req.NewPassword, h.Settings.Argon2)
	if err != nil {
		h.internalError(c, "password hash failed", err)
		return
	}
	if err := h.Store.UpdatePassword(c.Request.Context(), userID, hash); err != nil {
		h.internalError(c, "password update failed", err)
		return
	}

	h.audit(c, userID, "auth.password_changed")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RequestPasswordReset answers 202 whether or not the email is known.
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}
	if !h.allow(c, "reset:"+c.ClientIP()) {
		return
	}

	accepted := gin.H{"status": "accepted"}
	ctx := c.Request.Context()

	email, ok := normalizeEmail(req.Email)
	if !ok {
		c.JSON(http.StatusAccepted, accepted)
		return
	}
	user, err := h.Store.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			h.Logger.Error("reset lookup failed", "error", err)
		}
		c.JSON(http.StatusAccepted, accepted)
		return
	}

	token, hash, err := h.TokenGen.New()
	if err != nil {
		h.Logger.Error("reset token generation failed", "error", err)
		c.JSON(http.StatusAccepted, accepted)
		return
	}
	expiresAt := h.Clock.Now().Add(h.Settings.ResetTTL)
	if err := h.Store.CreatePasswordReset(ctx, user.ID, hash, expiresAt); err != nil {
		h.Logger.Error("reset insert failed", "error", err)
		c.JSON(http.StatusAccepted, accepted)
		return
	}

	env, err := kafka.NewEnvelope(kafka.TopicPasswordResetRequested, 1, c.GetHeader("X-Request-ID"))
	if err == nil {
		event := kafka.PasswordResetRequestedEvent{
			Envelope:  env,
			UserID:    user.ID.String(),
			Email:     user.Email,
			Token:     token,
			ExpiresAt: expiresAt.UTC(),
		}
		_, _, err = h.Publisher.PublishJSON(ctx, kafka.TopicPasswordResetRequested, user.ID.String(), event)
	}
	if err != nil {
		h.Logger.Error("reset event publish failed", "error", err, "user_id", user.ID)
	}

	h.audit(c, user.ID, "auth.password_reset_requested")
	c.JSON(http.StatusAccepted, accepted)
}

func (h *AuthHandler) ConfirmPasswordReset(c *gin.Context) {
	var req resetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}
	if fields := h.checkPassword(req.NewPassword); fields != nil {
		writeValidation(c, "password too weak", map[string]string{"new_password": fields["password"]})
		return
	}

	hash, err := password.Hash(req.NewPassword, h.Settings.Argon2)
	if err != nil {
		h.internalError(c, "password hash failed", err)
		return
	}

	userID, err := h.Store.ResetPassword(c.Request.Context(), security.HashToken(req.Token), hash, h.Clock.Now())
	if err != nil {
		if errors.Is(err, storage.ErrResetInvalid) {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid or expired token")
			return
		}
		h.internalError(c, "password reset failed", err)
		return
	}

	h.audit(c, userID, "auth.password_reset")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func retryAfterSeconds(d time.Duration) string {
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return strconv.FormatInt(secs, 10)
}
