package auth

import (
	"fmt"
	"io"
)

// TokenLength is the number of characters in a session token.
const TokenLength = 64

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// maxUnbiased is the largest multiple of len(tokenAlphabet) that fits in a byte.
const maxUnbiased = 256 - 256%len(tokenAlphabet)

// newToken draws TokenLength alphanumeric characters from r using rejection
// sampling so every character is equally likely.
func newToken(r io.Reader) (string, error) {
	out := make([]byte, 0, TokenLength)
	buf := make([]byte, TokenLength)
	for len(out) < TokenLength {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("auth: failed to generate session token: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxUnbiased {
				continue
			}
			out = append(out, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(out) == TokenLength {
				break
			}
		}
	}
	return string(out), nil
}
