package backup

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"

	"github.com/forest6511/acctvault/pkg/crypto"
)

const (
	// SaltLength is the length of the archive salt in bytes.
	SaltLength = 32

	// HMACLength is the length of the HMAC-SHA256 in bytes.
	HMACLength = 32

	// KeyLength is the length of encryption keys in bytes (256 bits).
	KeyLength = 32
)

// HKDF info strings for key derivation.
const (
	hkdfInfoEncryption = "acctvault-backup-encryption"
	hkdfInfoMAC        = "acctvault-backup-mac"
)

// GenerateSalt generates a cryptographically secure random salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("backup: failed to generate salt: %w", err)
	}
	return salt, nil
}

// Upper bounds for KDF parameters read from an archive header.
const (
	maxKDFMemory     = 1024 * 1024 // KiB
	maxKDFIterations = 16
)

// NewKDFParams returns the parameters used for new archives with a fresh salt.
func NewKDFParams() (KDFParams, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return KDFParams{}, err
	}
	return KDFParams{
		Salt:        salt,
		Memory:      crypto.Argon2Memory,
		Iterations:  crypto.Argon2Time,
		Parallelism: crypto.Argon2Threads,
	}, nil
}

// DeriveBackupKeys derives encryption and MAC keys from a password with
// Argon2id under params, then splits the result with HKDF.
func DeriveBackupKeys(password []byte, params KDFParams) (encKey, macKey []byte, err error) {
	if len(password) == 0 {
		return nil, nil, ErrEmptyPassword
	}
	if len(params.Salt) == 0 || params.Memory == 0 || params.Memory > maxKDFMemory ||
		params.Iterations == 0 || params.Iterations > maxKDFIterations || params.Parallelism == 0 {
		return nil, nil, fmt.Errorf("%w: unusable KDF parameters", ErrUnsupportedVersion)
	}

	root := argon2.IDKey(password, params.Salt, params.Iterations, params.Memory, params.Parallelism, KeyLength)
	defer crypto.SecureWipe(root)

	encKey, err = deriveHKDF(root, []byte(hkdfInfoEncryption))
	if err != nil {
		return nil, nil, fmt.Errorf("backup: failed to derive encryption key: %w", err)
	}

	macKey, err = deriveHKDF(root, []byte(hkdfInfoMAC))
	if err != nil {
		crypto.SecureWipe(encKey)
		return nil, nil, fmt.Errorf("backup: failed to derive MAC key: %w", err)
	}

	return encKey, macKey, nil
}

// deriveHKDF derives a key using HKDF-SHA256.
func deriveHKDF(secret, info []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, nil, info)
	key := make([]byte, KeyLength)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// encryptPayload returns nonce||ciphertext under key.
func encryptPayload(plaintext, key []byte) ([]byte, error) {
	ciphertext, nonce, err := crypto.Encrypt(key, plaintext)
	if err != nil {
		return nil, fmt.Errorf("backup: encryption failed: %w", err)
	}
	out := make([]byte, 0, len(nonce)+len(ciphertext))
	out = append(out, nonce...)
	return append(out, ciphertext...), nil
}

// decryptPayload opens nonce||ciphertext under key.
func decryptPayload(data, key []byte) ([]byte, error) {
	if len(data) < crypto.NonceLength {
		return nil, ErrDecryptionFailed
	}
	plaintext, err := crypto.Decrypt(key, data[crypto.NonceLength:], data[:crypto.NonceLength])
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// ComputeHMAC computes HMAC-SHA256 over the given data.
func ComputeHMAC(data, key []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// VerifyHMAC verifies the HMAC-SHA256 of the given data.
func VerifyHMAC(data, expectedMAC, key []byte) bool {
	return hmac.Equal(ComputeHMAC(data, key), expectedMAC)
}
