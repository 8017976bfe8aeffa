package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/osiastedian/syshub/libs/kafka"
	"github.com/osiastedian/syshub/libs/password"
	"github.com/osiastedian/syshub/libs/portal"
	"github.com/osiastedian/syshub/libs/syscoin"
	"github.com/osiastedian/syshub/libs/totp"
	"github.com/osiastedian/syshub/services/user/internal/storage"
)

// factorChange is the resolved effect of a two_fa update.
type factorChange struct {
	enableSMS    bool
	enableGAuth  bool
	disableSMS   bool
	disableGAuth bool
}

func (f factorChange) toggles() bool {
	return f.enableSMS || f.enableGAuth || f.disableSMS || f.disableGAuth
}

func (f factorChange) disables() bool { return f.disableSMS || f.disableGAuth }

// planFactors applies the request on top of the stored state. Only one
// method may be active, and switching methods needs the current one
// disabled first.
func planFactors(user *storage.User, req *portal.TwoFactorUpdate, fields map[string]string) factorChange {
	wantSMS, wantGAuth := user.SMSEnabled, user.GAuthEnabled
	if req.SMS != nil {
		wantSMS = *req.SMS
	}
	if req.GAuth != nil {
		wantGAuth = *req.GAuth
	}

	if wantSMS && wantGAuth {
		if user.SMSEnabled || user.GAuthEnabled {
			fields["two_fa"] = "disable the current verification method first"
		} else {
			fields["two_fa"] = "only one verification method can be enabled"
		}
		return factorChange{}
	}

	change := factorChange{
		enableSMS:    wantSMS && !user.SMSEnabled,
		enableGAuth:  wantGAuth && !user.GAuthEnabled,
		disableSMS:   !wantSMS && user.SMSEnabled,
		disableGAuth: !wantGAuth && user.GAuthEnabled,
	}
	if !change.toggles() {
		switch {
		case (req.SMS != nil && *req.SMS) || (req.GAuth != nil && *req.GAuth):
			fields["two_fa"] = "already enabled"
		case req.SMS != nil || req.GAuth != nil:
			fields["two_fa"] = "not enabled"
		default:
			fields["two_fa"] = "no change requested"
		}
	}
	return change
}

func (h *Handler) UpdateUser(c *gin.Context) {
	var req portal.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}

	user, ok := h.loadUser(c)
	if !ok {
		return
	}

	fields := map[string]string{}
	var update storage.UserUpdate

	if req.VotingAddress != nil {
		addr := strings.TrimSpace(*req.VotingAddress)
		if addr != "" && !syscoin.ValidAddress(addr) {
			fields["voting_address"] = "invalid syscoin address"
		} else {
			update.VotingAddress = &addr
		}
	}

	phoneOnFile := user.Phone != nil && *user.Phone != ""
	if req.Phone != nil {
		phone := ""
		if strings.TrimSpace(*req.Phone) != "" {
			normalized, valid := NormalizePhone(*req.Phone)
			if !valid {
				fields["phone"] = "invalid phone number"
			}
			phone = normalized
		}
		if _, bad := fields["phone"]; !bad {
			update.Phone = &phone
		}
	}

	var change factorChange
	if req.TwoFA != nil {
		change = planFactors(user, req.TwoFA, fields)
	}

	phoneChanged := update.Phone != nil && (user.Phone == nil || *update.Phone != *user.Phone)
	switch {
	case change.enableSMS && !phoneOnFile:
		fields["phone"] = "a verified phone number is required"
	case change.enableSMS && phoneChanged:
		fields["phone"] = "phone cannot change while enabling sms verification"
	case user.SMSEnabled && !change.disableSMS && phoneChanged:
		fields["phone"] = "disable sms verification before changing the phone number"
	}
	if change.enableGAuth && strings.TrimSpace(req.TwoFA.Secret) == "" {
		fields["secret"] = "required"
	}
	if req.TwoFA != nil {
		if req.Password == "" {
			fields["password"] = "required"
		}
		if !totp.IsCodeFormat(req.Code) {
			fields["code"] = "must be 6 digits"
		}
	}

	if len(fields) > 0 {
		writeValidation(c, fields)
		return
	}

	if change.toggles() {
		if !h.checkFactorChange(c, user, &req, change) {
			return
		}
		applyFactorChange(&update, change, strings.TrimSpace(req.TwoFA.Secret))
	}

	updated, err := h.Store.UpdateUser(c.Request.Context(), user.ID, update)
	if err != nil {
		h.internalError(c, "user update failed", err)
		return
	}

	h.audit(c, user.ID, "update.user")
	if change.toggles() {
		h.audit(c, user.ID, "update.two_factor")
		h.publish(c, kafka.TopicTwoFactorChanged, user.ID.String(), func(env kafka.Envelope) any {
			return kafka.TwoFactorChangedEvent{
				Envelope:     env,
				UserID:       user.ID.String(),
				SMSEnabled:   updated.SMSEnabled,
				GAuthEnabled: updated.GAuthEnabled,
			}
		})
	}

	c.JSON(http.StatusOK, toResponse(updated))
}

// checkFactorChange verifies the password and the code for a 2FA toggle and
// writes the failure response itself.
func (h *Handler) checkFactorChange(c *gin.Context, user *storage.User, req *portal.UpdateUserRequest, change factorChange) bool {
	if ok, err := password.Verify(req.Password, user.PasswordHash); err != nil || !ok {
		writeError(c, http.StatusUnauthorized, "INVALID_CREDENTIAL", "wrong password")
		return false
	}

	var valid bool
	switch {
	case change.enableGAuth:
		valid = totp.ValidateAt(strings.TrimSpace(req.TwoFA.Secret), req.Code, h.Now())
	case change.enableSMS:
		ok, err := h.Verifier.Check(c.Request.Context(), user.ID.String(), storage.SMSOnly(), req.Code)
		if err != nil {
			h.codeCheckFailed(c, err)
			return false
		}
		valid = ok
	case change.disables():
		ok, err := h.Verifier.Check(c.Request.Context(), user.ID.String(), user.Factors(), req.Code)
		if err != nil {
			h.codeCheckFailed(c, err)
			return false
		}
		valid = ok
	}
	if !valid {
		writeInvalidCode(c)
		return false
	}
	return true
}

func applyFactorChange(update *storage.UserUpdate, change factorChange, secret string) {
	on, off, none := true, false, ""
	switch {
	case change.enableGAuth:
		update.GAuthEnabled, update.SMSEnabled, update.TOTPSecret = &on, &off, &secret
	case change.enableSMS:
		update.SMSEnabled, update.GAuthEnabled, update.TOTPSecret = &on, &off, &none
	}
	if change.disableGAuth {
		update.GAuthEnabled, update.TOTPSecret = &off, &none
	}
	if change.disableSMS {
		update.SMSEnabled = &off
	}
}
