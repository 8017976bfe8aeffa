package handlers

import (
	"regexp"
	"strings"
)

var (
	phoneRe    = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)
	phoneStrip = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
)

// NormalizePhone strips formatting and returns the E.164 form, or false.
func NormalizePhone(raw string) (string, bool) {
	phone := phoneStrip.Replace(strings.TrimSpace(raw))
	if strings.HasPrefix(phone, "00") {
		phone = "+" + phone[2:]
	}
	return phone, phoneRe.MatchString(phone)
}
