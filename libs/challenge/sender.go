package challenge

import (
	"context"
	"log/slog"
)

// Sender delivers an issued code to a phone number.
type Sender interface {
	Send(ctx context.Context, phone, code string) error
}

// LogSender writes codes to the log instead of an SMS gateway. Dev only.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, phone, code string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "sms code issued", "phone", MaskPhone(phone), "code", code)
	return nil
}

// MaskPhone keeps the last three digits.
func MaskPhone(phone string) string {
	if len(phone) <= 3 {
		return "***"
	}
	masked := make([]byte, len(phone))
	for i := range phone {
		if i < len(phone)-3 {
			masked[i] = '*'
		} else {
			masked[i] = phone[i]
		}
	}
	return string(masked)
}
