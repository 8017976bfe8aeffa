package portal

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnexpected wraps server failures the caller is not expected to handle.
	ErrUnexpected   = errors.New("unexpected server error")
	ErrNotLoggedIn  = errors.New("not logged in")
	ErrInvalidState = errors.New("operation not allowed in current state")
	ErrFlowClosed   = errors.New("flow closed")

	// ErrAlreadyEnabled is returned when a second factor is already active.
	ErrAlreadyEnabled = errors.New("two-factor verification already enabled")
)

// APIError is a decoded `{code,message}` error body.
type APIError struct {
	Status  int               `json:"-"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Error returns the server message unchanged so it can be shown as is.
func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

// ValidationError is raised locally before any request is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func IsValidation(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status == http.StatusNotAcceptable || ae.Status == http.StatusBadRequest
	}
	return false
}

func IsAuth(err error) bool {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status == http.StatusUnauthorized || ae.Status == http.StatusForbidden
	}
	return false
}

// IsMFARequired reports a sign-in rejected only for a missing second factor.
func IsMFARequired(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Code == "MFA_REQUIRED"
}
