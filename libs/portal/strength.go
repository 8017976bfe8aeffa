package portal

import "unicode"

// PasswordStrength scores a password from 0 (unusable) to 4 (strong).
func PasswordStrength(pw string) int {
	runes := []rune(pw)
	if len(runes) < 8 {
		return 0
	}

	var lower, upper, digit, symbol bool
	for _, r := range runes {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}

	classes := 0
	for _, ok := range []bool{lower, upper, digit, symbol} {
		if ok {
			classes++
		}
	}

	score := classes - 1
	if len(runes) >= 12 {
		score++
	}
	switch {
	case score < 1:
		return 1
	case score > 4:
		return 4
	}
	return score
}
