// Package totp generates RFC 6238 codes for stored 2FA secrets.
package totp

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Period is the code lifetime in seconds.
const Period = 30

// Digits is the code length.
const Digits = 6

// ErrInvalidSecret indicates an empty secret or one that is not base32.
var ErrInvalidSecret = errors.New("totp: invalid secret")

// Code is a generated code and the seconds left in its period.
type Code struct {
	Code      string `json:"code"`
	Remaining int    `json:"remaining"`
}

// Normalize removes all whitespace and upper-cases secret.
func Normalize(secret string) string {
	return strings.ToUpper(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, secret))
}

// Generate returns the SHA1, 6-digit, 30-second code for secret at now.
func Generate(secret string, now time.Time) (*Code, error) {
	clean := Normalize(secret)
	if clean == "" {
		return nil, fmt.Errorf("%w: secret is empty", ErrInvalidSecret)
	}

	code, err := totp.GenerateCodeCustom(clean, now, totp.ValidateOpts{
		Period:    Period,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}

	return &Code{
		Code:      code,
		Remaining: Period - int(now.Unix()%Period),
	}, nil
}
