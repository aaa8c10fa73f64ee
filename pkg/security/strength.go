// Package security scores the password hygiene of stored accounts.
package security

import "unicode/utf8"

// PasswordStrength represents the strength level of a password.
type PasswordStrength int

const (
	// PasswordWeak indicates an insecure password (fewer than 8 characters).
	PasswordWeak PasswordStrength = iota
	// PasswordFair indicates a minimally acceptable password.
	PasswordFair
	// PasswordGood indicates a good password.
	PasswordGood
	// PasswordStrong indicates a strong password.
	PasswordStrong
)

// String returns a human-readable representation of the password strength.
func (s PasswordStrength) String() string {
	switch s {
	case PasswordWeak:
		return "Weak"
	case PasswordFair:
		return "Fair"
	case PasswordGood:
		return "Good"
	case PasswordStrong:
		return "Strong"
	default:
		return "Unknown"
	}
}

// Points returns the score points for this strength level.
// Used in StrengthScore calculation: Weak=0, Fair=8, Good=17, Strong=25.
func (s PasswordStrength) Points() int {
	switch s {
	case PasswordWeak:
		return 0
	case PasswordFair:
		return 8
	case PasswordGood:
		return 17
	case PasswordStrong:
		return 25
	default:
		return 0
	}
}

// CalculateStrength rates a password by length in characters, following
// NIST SP 800-63B: length matters, composition rules do not.
func CalculateStrength(password string) PasswordStrength {
	switch n := utf8.RuneCountInString(password); {
	case n >= 20:
		return PasswordStrong
	case n >= 14:
		return PasswordGood
	case n >= 8:
		return PasswordFair
	default:
		return PasswordWeak
	}
}
