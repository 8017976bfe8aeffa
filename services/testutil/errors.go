package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

const (
	ErrorCodeInvalidRequest    = "INVALID_REQUEST"
	ErrorCodeUnauthorized      = "UNAUTHORIZED"
	ErrorCodeInvalidCredential = "INVALID_CREDENTIAL"
	ErrorCodeMFARequired       = "MFA_REQUIRED"
	ErrorCodeForbidden         = "FORBIDDEN"
	ErrorCodeNotFound          = "NOT_FOUND"
	ErrorCodeConflict          = "CONFLICT"
	ErrorCodeEmailTaken        = "EMAIL_TAKEN"
	ErrorCodeValidation        = "VALIDATION"
	ErrorCodeInvalidCode       = "INVALID_CODE"
	ErrorCodeRateLimited       = "RATE_LIMITED"
	ErrorCodeInternalError     = "INTERNAL_ERROR"
)

type ErrorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func DecodeError(t *testing.T, resp *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var errResp ErrorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("decode error response: %v (%s)", err, resp.Body.String())
	}
	return errResp
}

func AssertErrorCode(t *testing.T, resp *httptest.ResponseRecorder, expectedCode string) {
	t.Helper()
	if want := StatusForErrorCode(expectedCode); resp.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, resp.Code, resp.Body.String())
	}
	if got := DecodeError(t, resp).Code; got != expectedCode {
		t.Fatalf("expected error code %q, got %q", expectedCode, got)
	}
}

func AssertErrorMessage(t *testing.T, resp *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	if got := DecodeError(t, resp).Message; got != expectedMessage {
		t.Fatalf("expected error message %q, got %q", expectedMessage, got)
	}
}

func AssertHTTPStatus(t *testing.T, resp *httptest.ResponseRecorder, expectedStatus int) {
	t.Helper()
	if resp.Code != expectedStatus {
		t.Fatalf("expected status %d, got %d: %s", expectedStatus, resp.Code, resp.Body.String())
	}
}

func StatusForErrorCode(code string) int {
	switch code {
	case ErrorCodeInvalidRequest:
		return http.StatusBadRequest
	case ErrorCodeUnauthorized, ErrorCodeInvalidCredential, ErrorCodeMFARequired:
		return http.StatusUnauthorized
	case ErrorCodeForbidden:
		return http.StatusForbidden
	case ErrorCodeNotFound:
		return http.StatusNotFound
	case ErrorCodeConflict, ErrorCodeEmailTaken:
		return http.StatusConflict
	case ErrorCodeValidation, ErrorCodeInvalidCode:
		return http.StatusNotAcceptable
	case ErrorCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
