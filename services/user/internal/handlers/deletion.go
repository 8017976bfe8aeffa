package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"

	"github.com/osiastedian/syshub/libs/auth"
	"github.com/osiastedian/syshub/libs/kafka"
	"github.com/osiastedian/syshub/libs/portal"
)

// DeleteUser removes the account. It needs a fresh reauth token minted for the
// caller's login session and, when 2FA is on, a valid code.
func (h *Handler) DeleteUser(c *gin.Context) {
	var req codeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
			return
		}
	}

	subject := c.GetString(auth.ContextUserIDKey)
	sessionID := c.GetString(auth.ContextSessionIDKey)
	reauth := c.GetHeader(portal.ReauthHeader)
	if reauth == "" {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "reauthentication required")
		return
	}
	if err := auth.VerifyReauth(reauth, h.Secret, subject, sessionID, h.ReauthMaxAge, h.Now()); err != nil {
		message := "reauthentication required"
		if errors.Is(err, auth.ErrStaleReauth) {
			message = "reauthentication expired"
		}
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", message)
		return
	}

	user, ok := h.loadUser(c)
	if !ok {
		return
	}

	if factors := user.Factors(); factors.Enabled() {
		valid, err := h.Verifier.Check(c.Request.Context(), user.ID.String(), factors, req.Code)
		if err != nil {
			h.codeCheckFailed(c, err)
			return
		}
		if !valid {
			writeInvalidCode(c)
			return
		}
	}

	deleted, err := h.Store.DeleteUser(c.Request.Context(), user.ID, h.auditLog(c, user.ID, "delete.user"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "user not found")
			return
		}
		h.internalError(c, "user delete failed", err)
		return
	}

	h.Logger.Info("user deleted",
		"user_id", user.ID,
		"masternodes_released", deleted.MasternodesReleased,
		"votes_removed", deleted.VotesRemoved,
	)
	h.publish(c, kafka.TopicUserDeleted, user.ID.String(), func(env kafka.Envelope) any {
		return kafka.UserDeletedEvent{Envelope: env, UserID: user.ID.String()}
	})

	c.Status(http.StatusNoContent)
}
