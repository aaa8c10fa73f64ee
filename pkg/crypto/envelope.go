package crypto

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// EnvelopeVersion is the only envelope version tag accepted by DecryptField.
const EnvelopeVersion = "v2"

const envelopePrefix = EnvelopeVersion + ":"

// FieldErrorKind classifies why a field envelope could not be decrypted.
type FieldErrorKind int

const (
	KindUnsupportedVersion FieldErrorKind = iota + 1
	KindMalformed
	KindBadEncoding
	KindBadNonceLength
	KindAuthenticationFailed
	KindInvalidUTF8
)

func (k FieldErrorKind) String() string {
	switch k {
	case KindUnsupportedVersion:
		return "unsupported envelope version"
	case KindMalformed:
		return "malformed envelope"
	case KindBadEncoding:
		return "bad base64 encoding"
	case KindBadNonceLength:
		return "bad nonce length"
	case KindAuthenticationFailed:
		return "authentication failed"
	case KindInvalidUTF8:
		return "invalid utf-8 plaintext"
	default:
		return "unknown"
	}
}

// FieldError is returned by DecryptField.
type FieldError struct {
	Kind FieldErrorKind
	Err  error
}

func (e *FieldError) Error() string {
	if e.Err != nil && e.Kind != KindAuthenticationFailed {
		return fmt.Sprintf("crypto: %s: %v", e.Kind, e.Err)
	}
	return "crypto: " + e.Kind.String()
}

func (e *FieldError) Unwrap() error {
	if e.Kind == KindAuthenticationFailed {
		return ErrDecryptionFailed
	}
	return e.Err
}

// IsFieldError reports whether err is a *FieldError of the given kind.
func IsFieldError(err error, kind FieldErrorKind) bool {
	var fe *FieldError
	return errors.As(err, &fe) && fe.Kind == kind
}

// EncryptField seals a UTF-8 string under key and returns the envelope
// "v2:<base64 nonce>:<base64 ciphertext||tag>".
func EncryptField(plaintext string, key []byte) (string, error) {
	ciphertext, nonce, err := Encrypt(key, []byte(plaintext))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(len(envelopePrefix) + base64.StdEncoding.EncodedLen(len(nonce)) + 1 +
		base64.StdEncoding.EncodedLen(len(ciphertext)))
	b.WriteString(envelopePrefix)
	b.WriteString(base64.StdEncoding.EncodeToString(nonce))
	b.WriteByte(':')
	b.WriteString(base64.StdEncoding.EncodeToString(ciphertext))
	return b.String(), nil
}

// DecryptField opens an envelope produced by EncryptField.
//
// Any envelope that does not carry the v2 tag is rejected outright; there is
// no fallback to unversioned data.
func DecryptField(envelope string, key []byte) (string, error) {
	if len(key) != KeyLength {
		return "", ErrInvalidKeyLength
	}

	rest, ok := strings.CutPrefix(envelope, envelopePrefix)
	if !ok {
		return "", &FieldError{Kind: KindUnsupportedVersion}
	}

	noncePart, ctPart, ok := strings.Cut(rest, ":")
	if !ok {
		return "", &FieldError{Kind: KindMalformed, Err: errors.New("missing ciphertext part")}
	}

	nonce, err := base64.StdEncoding.DecodeString(noncePart)
	if err != nil {
		return "", &FieldError{Kind: KindBadEncoding, Err: fmt.Errorf("nonce: %w", err)}
	}
	if len(nonce) != NonceLength {
		return "", &FieldError{Kind: KindBadNonceLength, Err: fmt.Errorf("got %d bytes", len(nonce))}
	}

	ciphertext, err := base64.StdEncoding.DecodeString(ctPart)
	if err != nil {
		return "", &FieldError{Kind: KindBadEncoding, Err: fmt.Errorf("ciphertext: %w", err)}
	}

	plaintext, err := Decrypt(key, ciphertext, nonce)
	if err != nil {
		return "", &FieldError{Kind: KindAuthenticationFailed}
	}

	if !utf8.Valid(plaintext) {
		SecureWipe(plaintext)
		return "", &FieldError{Kind: KindInvalidUTF8}
	}
	return string(plaintext), nil
}
