package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osiastedian/syshub/libs/challenge"
	"github.com/osiastedian/syshub/libs/portal"
)

type codeRequest struct {
	Code string `json:"code"`
}

func (h *Handler) TwoFactorStatus(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, portal.TwoFactorStatus{
		Enabled: user.SMSEnabled || user.GAuthEnabled,
		SMS:     user.SMSEnabled,
		GAuth:   user.GAuthEnabled,
	})
}

// VerifyCode checks a code against the active factor without consuming it,
// so the same code can confirm the follow-up request.
func (h *Handler) VerifyCode(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}

	user, ok := h.loadUser(c)
	if !ok {
		return
	}

	valid, err := h.Verifier.Check(c.Request.Context(), user.ID.String(), user.Factors(), req.Code)
	if err != nil {
		h.codeCheckFailed(c, err)
		return
	}
	if !valid {
		writeInvalidCode(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// SendSMSCode texts a fresh code to the phone on file. A new code replaces
// any pending one.
func (h *Handler) SendSMSCode(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	if user.Phone == nil || *user.Phone == "" {
		writeValidation(c, map[string]string{"phone": "required"})
		return
	}
	if h.Codes == nil {
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "sms verification unavailable")
		return
	}

	code, err := h.Codes.Issue(c.Request.Context(), user.ID.String())
	if err != nil {
		if errors.Is(err, challenge.ErrTooManyAttempts) {
			writeError(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
			return
		}
		h.internalError(c, "sms issue failed", err)
		return
	}
	if err := h.Sender.Send(c.Request.Context(), *user.Phone, code); err != nil {
		h.internalError(c, "sms send failed", err)
		return
	}

	h.audit(c, user.ID, "issue.sms_code")
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}
