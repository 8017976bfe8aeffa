// Package totp enrolls authenticator apps and checks the six-digit codes they
// produce (RFC 6238: SHA1, 30 second steps, one step of clock skew).
package totp

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// Period is the step length in seconds.
	Period    = 30
	// Skew is how many steps either side of now are accepted.
	Skew      = 1
	// CodeLen is the number of digits in a code.
	CodeLen   = 6
	qrSize    = 200
	secretLen = 20
)

// ErrEmptyAccount is returned by Generate when the account email is blank.
var ErrEmptyAccount = errors.New("account email is required")

var validateOpts = totp.ValidateOpts{
	Period:    Period,
	Skew:      Skew,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// SetupData lives only as long as one enable attempt. The secret is never
// serialized back out of the user service.
type SetupData struct {
	Secret        string `json:"secret"`
	EncodedSecret string `json:"encoded_secret"`
	OTPAuthURL    string `json:"otpauth_url"`
	QRCodeURL     string `json:"qr_code_url"`
}

// Generate creates a fresh secret for email along with its otpauth URL and QR image.
func Generate(issuer, email string) (*SetupData, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrEmptyAccount
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: email,
		Period:      Period,
		SecretSize:  secretLen,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp key: %w", err)
	}

	qr, err := qrDataURL(key)
	if err != nil {
		return nil, err
	}

	return &SetupData{
		Secret:        key.Secret(),
		EncodedSecret: group(key.Secret(), 4),
		OTPAuthURL:    key.URL(),
		QRCodeURL:     qr,
	}, nil
}

// Validate reports whether code matches secret for the current or an adjacent step.
func Validate(secret, code string) bool {
	return ValidateAt(secret, code, time.Now())
}

// ValidateAt is Validate evaluated at t.
func ValidateAt(secret, code string, t time.Time) bool {
	if secret == "" || !IsCodeFormat(code) {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, t.UTC(), validateOpts)
	return err == nil && ok
}

// CodeAt returns the expected code at t.
func CodeAt(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t.UTC(), validateOpts)
}

// IsCodeFormat reports whether code is exactly CodeLen ASCII digits.
func IsCodeFormat(code string) bool {
	if len(code) != CodeLen {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

func qrDataURL(key *otp.Key) (string, error) {
	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return "", fmt.Errorf("render qr code: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode qr code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func group(s string, n int) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && i%n == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
